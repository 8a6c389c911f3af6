// Package receipt implements the ErxReceipt generator (spec §3, §4.3):
// the composition-metadata document built on task close, carrying a
// detached signature produced by the service itself rather than by an
// external QES device.
//
// Grounded on the teacher's core/pkg/compliance/evidence.Evidence
// generator (build a structured artifact, hash/sign it, hand back an
// opaque identifier), generalized from an evidence-bundle shape to the
// ErxReceipt's Composition + detached-CMS-signature shape.
package receipt

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/codec"
	"github.com/erx-dienst/erx-core/pkg/codec/bracefmt"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
	"github.com/erx-dienst/erx-core/pkg/records"
	"github.com/erx-dienst/erx-core/pkg/signature"
)

// DocumentStore is the subset of docstore.Store the generator needs,
// declared locally so this package doesn't import docstore directly.
type DocumentStore interface {
	Put(ctx context.Context, kind, data string) (string, error)
}

// Signer issues the detached signature over a receipt's content. The
// production signer wraps signature.SignDetached with the service's own
// certificate/key; tests substitute a deterministic stub.
type Signer interface {
	Sign(content []byte) (envelope []byte, err error)
}

// RSASigner adapts signature.SignDetached to the Signer interface using
// the service's own certificate and private key.
type RSASigner struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// Sign produces a detached CMS envelope over content under the service's
// own certificate.
func (s RSASigner) Sign(content []byte) ([]byte, error) {
	return signature.SignDetached(content, s.Cert, s.Key)
}

// envelope is a small internal storage wrapper pairing the Composition's
// wire bytes with its detached CMS signature. It is not one of the
// spec's wire formats (tag/brace) — purely an implementation detail of
// how this package persists what it generates, so encoding/json is used
// directly rather than routed through pkg/codec.
type envelope struct {
	Content   []byte `json:"content"`
	Signature []byte `json:"signature"`
}

// Generator builds and signs ErxReceipt documents.
type Generator struct {
	clock  clock.Clock
	docs   DocumentStore
	signer Signer
}

// New constructs a Generator. signer may be nil, in which case receipts
// are generated unsigned (useful for tests that don't exercise §4.7).
func New(c clock.Clock, docs DocumentStore, signer Signer) *Generator {
	if c == nil {
		c = clock.System{}
	}
	return &Generator{clock: c, docs: docs, signer: signer}
}

// IssueReceipt builds a Composition for taskID, signs it, stores the
// result, and returns its content address — satisfying task.ReceiptIssuer.
func (g *Generator) IssueReceipt(ctx context.Context, taskID string, beneficiary ids.KVNR, eventStart, eventEnd time.Time) (string, []byte, error) {
	comp := records.Composition{
		ID:          uuid.NewString(),
		Beneficiary: beneficiary.String(),
		Author:      "Device/erx-core",
		EventStart:  eventStart.UTC().Format(time.RFC3339),
		EventEnd:    eventEnd.UTC().Format(time.RFC3339),
		SectionRefs: []string{"Task/" + taskID},
	}

	enc := codec.NewStreamEncoder()
	if err := records.EncodeComposition(enc, comp); err != nil {
		return "", nil, fmt.Errorf("receipt: encode composition: %w", err)
	}
	content, err := bracefmt.Serialize(enc.Items())
	if err != nil {
		return "", nil, fmt.Errorf("receipt: serialize composition: %w", err)
	}

	var sig []byte
	if g.signer != nil {
		sig, err = g.signer.Sign(content)
		if err != nil {
			return "", nil, fmt.Errorf("receipt: sign: %w", err)
		}
	}

	data, err := json.Marshal(envelope{Content: content, Signature: sig})
	if err != nil {
		return "", nil, fmt.Errorf("receipt: marshal envelope: %w", err)
	}

	id, err := g.docs.Put(ctx, "receipt", string(data))
	if err != nil {
		return "", nil, fmt.Errorf("receipt: store: %w", err)
	}
	return id, data, nil
}

// Unwrap splits a stored receipt blob back into its Composition content
// and detached signature, the inverse of IssueReceipt's storage format.
func Unwrap(data []byte) (content, sig []byte, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("receipt: unmarshal envelope: %w", err)
	}
	return env.Content, env.Signature, nil
}

// Verify is a thin convenience wrapper so callers needn't import
// pkg/signature directly just to re-verify a receipt they hold.
func Verify(content, sigEnvelope []byte, trust signature.TrustList, now time.Time) error {
	_, err := signature.VerifyDetached(sigEnvelope, content, trust, now)
	return err
}
