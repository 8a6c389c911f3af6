package records

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/erx-dienst/erx-core/pkg/signature"
)

// SignedData wraps a detached CMS SignedData envelope together with the
// content it signs (§12 supplemented feature): a typed record entry
// point for the detached verification path, symmetrical to the
// enveloped XML-DSig path's Task/Communication/etc. byte documents.
// Unlike every other adapter in this package it does not go through the
// neutral codec event stream — the payload is ASN.1 DER, not a
// tag/brace document.
type SignedData struct {
	Envelope []byte // DER-encoded CMS ContentInfo wrapping SignedData
	Content  []byte // the detached payload the envelope signs
}

// cmsContentInfo mirrors just enough of CMS's outer ContentInfo to
// validate the envelope's shape before handing it to signature.VerifyDetached.
type cmsContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// DecodeSignedData validates that envelope is a well-formed CMS
// ContentInfo/SignedData DER structure, without verifying any
// signature — that is signature.VerifyDetached's job once a TrustList
// is available.
func DecodeSignedData(envelope, content []byte) (SignedData, error) {
	var outer cmsContentInfo
	if _, err := asn1.Unmarshal(envelope, &outer); err != nil {
		return SignedData{}, fmt.Errorf("records: malformed SignedData envelope: %w", err)
	}
	return SignedData{Envelope: envelope, Content: content}, nil
}

// EncodeSignedData returns sd's envelope verbatim. The detached content
// travels alongside out-of-band; it is never embedded in the CMS
// structure itself, per the detached-signature convention.
func EncodeSignedData(sd SignedData) ([]byte, error) {
	if len(sd.Envelope) == 0 {
		return nil, fmt.Errorf("records: empty SignedData envelope")
	}
	return sd.Envelope, nil
}

// Verify checks sd's envelope against trust using the detached CMS
// verification chain.
func (sd SignedData) Verify(trust signature.TrustList, now time.Time) ([]*x509.Certificate, error) {
	return signature.VerifyDetached(sd.Envelope, sd.Content, trust, now)
}
