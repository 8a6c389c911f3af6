// Package docstore implements the content-addressed stores that own the
// signed e-prescription binary, the patient receipt, and the generated
// ErxReceipt (spec §3 Ownership: "the task store holds only identifiers
// into them"). Grounded on the teacher's core/pkg/store.AirgapStore
// (mutex-guarded map keyed by content hash, with an optional durable
// backing file) — here backed by an in-memory map only, since erx-core
// does not define a write-ahead log (spec §6 Persisted state layout).
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when an identifier has no stored document.
var ErrNotFound = errors.New("docstore: not found")

// Store is a content-addressed blob store partitioned by kind (e.g.
// "e-prescription", "patient-receipt", "receipt"). The address is the
// SHA-256 of the kind and the content, so identical documents of the same
// kind collapse to one entry.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores data under kind and returns its content address.
func (s *Store) Put(ctx context.Context, kind, data string) (string, error) {
	id := addressFor(kind, []byte(data))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = []byte(data)
	return id, nil
}

// PutBytes is Put for callers already holding a []byte, avoiding a string
// copy of binary payloads.
func (s *Store) PutBytes(ctx context.Context, kind string, data []byte) (string, error) {
	id := addressFor(kind, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[id] = cp
	return id, nil
}

// Get retrieves the document at id.
func (s *Store) Get(ctx context.Context, kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, nil
}

// Delete removes the document at id. Deleting an absent id is not an
// error: abort's cascade-delete may race a retention sweep for the same
// artifact.
func (s *Store) Delete(ctx context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func addressFor(kind string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
