package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/erx-dienst/erx-core/internal/clock"
)

var (
	// ErrEntryNotFound is returned when a lookup by id or hash misses.
	ErrEntryNotFound = errors.New("audit: entry not found")
	// ErrChainBroken is returned by VerifyChain when tampering is detected.
	ErrChainBroken = errors.New("audit: hash chain is broken")
)

// Entry is a single immutable, hash-chained audit-log row. It wraps Event
// with the chaining metadata, adapted from the teacher's
// store.AuditStore.AuditEntry.
type Entry struct {
	EntryID      string    `json:"entry_id"`
	Sequence     uint64    `json:"sequence"`
	Event        Event     `json:"event"`
	PayloadHash  string    `json:"payload_hash"`
	PreviousHash string    `json:"previous_hash"`
	EntryHash    string    `json:"entry_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// Recorder is the interface the task/comm/dispense components depend on to
// publish a single Event per request. Satisfied by *Store.
type Recorder interface {
	Record(evt Event) (*Entry, error)
}

// Store is an append-only, hash-chained audit log. Safe for concurrent use;
// writers are serialized by an internal mutex, readers take a read lock.
type Store struct {
	mu          sync.RWMutex
	entries     []*Entry
	byID        map[string]*Entry
	byHash      map[string]*Entry
	sequence    uint64
	chainHead   string
	clock       clock.Clock
	byReference map[string][]*Entry // keyed by Event.What, for "audit entries referencing T" queries
	catalog     *Catalog
}

// NewStore creates an empty audit store.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{
		byID:        make(map[string]*Entry),
		byHash:      make(map[string]*Entry),
		byReference: make(map[string][]*Entry),
		chainHead:   "genesis",
		clock:       c,
	}
}

// Record appends evt to the log, computing the next hash-chain link.
func (s *Store) Record(evt Event) (*Entry, error) {
	if evt.RecordedAt.IsZero() {
		evt.RecordedAt = s.clock.Now()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal event: %w", err)
	}
	// Canonicalize per RFC 8785 before hashing, so the chain hash doesn't
	// depend on encoding/json's incidental field ordering (the teacher's
	// rir.ComputeBundleHash hand-rolls this with sort.Slice; jcs.Transform
	// does it generically for arbitrary JSON).
	canonical, err := jcs.Transform(payload)
	if err != nil {
		return nil, fmt.Errorf("audit: canonicalize event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	entry := &Entry{
		EntryID:      uuid.New().String(),
		Sequence:     s.sequence,
		Event:        evt,
		PayloadHash:  hashBytes(canonical),
		PreviousHash: s.chainHead,
		Timestamp:    s.clock.Now(),
	}
	entry.EntryHash = computeEntryHash(entry)
	s.chainHead = entry.EntryHash

	s.entries = append(s.entries, entry)
	s.byID[entry.EntryID] = entry
	s.byHash[entry.EntryHash] = entry
	if evt.What != "" {
		s.byReference[evt.What] = append(s.byReference[evt.What], entry)
	}

	return entry, nil
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:])
}

func computeEntryHash(e *Entry) string {
	hashable := struct {
		Sequence     uint64  `json:"sequence"`
		PayloadHash  string  `json:"payload_hash"`
		PreviousHash string  `json:"previous_hash"`
		Action       Action  `json:"action"`
		SubType      SubType `json:"sub_type"`
	}{e.Sequence, e.PayloadHash, e.PreviousHash, e.Event.Action, e.Event.SubType}
	data, _ := json.Marshal(hashable)
	return hashBytes(data)
}

// Get retrieves an entry by id.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// ForReference returns every entry whose Event.What equals reference, in
// insertion order — used to assert "the number of audit entries referencing
// T increases by exactly 1" per operation (§8).
func (s *Store) ForReference(reference string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.byReference[reference]))
	copy(out, s.byReference[reference])
	return out
}

// ChainHead returns the current chain head hash.
func (s *Store) ChainHead() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainHead
}

// Size returns the number of entries recorded.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// All returns every entry, oldest first. Intended for export/tests only.
func (s *Store) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// VerifyChain recomputes every entry's hash and checks chain linkage,
// detecting tampering or truncation of the audit log.
func (s *Store) VerifyChain() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expectedPrev := "genesis"
	for i, e := range s.entries {
		if e.PreviousHash != expectedPrev {
			return fmt.Errorf("%w: entry %d previous_hash=%s want %s", ErrChainBroken, i, e.PreviousHash, expectedPrev)
		}
		payload, err := json.Marshal(e.Event)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i, err)
		}
		canonical, err := jcs.Transform(payload)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i, err)
		}
		if hashBytes(canonical) != e.PayloadHash {
			return fmt.Errorf("%w: entry %d payload hash mismatch", ErrChainBroken, i)
		}
		if computeEntryHash(e) != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i)
		}
		expectedPrev = e.EntryHash
	}
	return nil
}
