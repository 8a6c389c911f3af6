// Package dispense implements the medication-dispense ledger (spec §4.3):
// an append-only, keyed set of dispense records written exactly once per
// task close, readable by subject or by dispensing pharmacy.
//
// Grounded on the teacher's core/pkg/store.ReceiptStore (append-only
// receipt store keyed by id, idempotent Store, subject-scoped List), with
// the SQL backing dropped in favor of a plain in-memory map per DESIGN.md —
// erx-core's task store is itself in-memory, so a durable ledger without a
// durable task store would desynchronize on restart.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

var (
	// ErrNotFound is returned when a dispense id is unknown.
	ErrNotFound = errors.New("dispense: not found")
	// ErrForbidden is returned when the caller's scope excludes the entry.
	ErrForbidden = errors.New("dispense: forbidden")
)

// Entry is one ledger row (§3 MedicationDispense).
type Entry struct {
	ID             string
	PrescriptionID ids.PrescriptionID
	Subject        ids.KVNR
	Performer      ids.TelematikID
	SupportingTask string
	Payload        []byte
	RecordedAt     time.Time
}

// Ledger is the append-only, keyed medication-dispense set.
type Ledger struct {
	mu          sync.RWMutex
	clock       clock.Clock
	byID        map[string]*Entry
	byPrescription map[ids.PrescriptionID]*Entry
	bySubject   map[ids.KVNR][]*Entry
}

// NewLedger constructs an empty Ledger.
func NewLedger(c clock.Clock) *Ledger {
	if c == nil {
		c = clock.System{}
	}
	return &Ledger{
		clock:          c,
		byID:           make(map[string]*Entry),
		byPrescription: make(map[ids.PrescriptionID]*Entry),
		bySubject:      make(map[ids.KVNR][]*Entry),
	}
}

// Append inserts one entry, keyed by prescription id. Idempotent: a second
// Append for a prescription id already recorded for the same supporting
// task is a no-op (one recorded for a different task is an error), matching
// task.Close's "re-validate under lock" retry path (§4.3: "insertion ...
// is idempotent by id").
func (l *Ledger) Append(ctx context.Context, in task.MedicationDispenseInput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byPrescription[in.PrescriptionID]; ok {
		if existing.SupportingTask != in.SupportingTask {
			return fmt.Errorf("dispense: prescription %s already recorded for a different task", in.PrescriptionID)
		}
		return nil
	}

	entry := &Entry{
		ID:             string(in.PrescriptionID),
		PrescriptionID: in.PrescriptionID,
		Subject:        in.Subject,
		Performer:      in.Performer,
		SupportingTask: in.SupportingTask,
		Payload:        in.Payload,
		RecordedAt:     l.clock.Now(),
	}
	l.byID[entry.ID] = entry
	l.byPrescription[entry.PrescriptionID] = entry
	l.bySubject[entry.Subject] = append(l.bySubject[entry.Subject], entry)
	return nil
}

// Get returns the entry with id, scoped to the caller's subject or
// pharmacy identifier — at least one of which must be supplied and match.
func (l *Ledger) Get(ctx context.Context, id string, callerSubject ids.KVNR, callerPharmacy ids.TelematikID) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if callerSubject != "" && entry.Subject == callerSubject {
		return entry, nil
	}
	if callerPharmacy != "" && entry.Performer == callerPharmacy {
		return entry, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrForbidden, id)
}

// ForSubject lists every entry belonging to a patient (the patient-facing
// surface, §4.3: "patients see only their own").
func (l *Ledger) ForSubject(ctx context.Context, subject ids.KVNR) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.bySubject[subject]))
	copy(out, l.bySubject[subject])
	return out
}

// ForPharmacy lists every entry dispensed by a pharmacy (the supplier
// surface, §4.3).
func (l *Ledger) ForPharmacy(ctx context.Context, pharmacy ids.TelematikID) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Entry
	for _, e := range l.byID {
		if e.Performer == pharmacy {
			out = append(out, e)
		}
	}
	return out
}

// DeleteMedicationDispense removes the entry with id, for the retention
// service's scheduled deletion at the legal retention deadline (§4.8).
// Deleting an unknown id is a no-op.
func (l *Ledger) DeleteMedicationDispense(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byID[id]
	if !ok {
		return nil
	}
	delete(l.byID, id)
	delete(l.byPrescription, e.PrescriptionID)
	l.bySubject[e.Subject] = removeEntry(l.bySubject[e.Subject], e)
	return nil
}

// DeleteForTask removes any entry tied to a task and returns how many it
// removed. No component in erx-core calls it: task.Store's Abort and
// DeleteTask leave dispense entries in place, and the retention service
// removes entries one id at a time through DeleteMedicationDispense.
func (l *Ledger) DeleteForTask(ctx context.Context, taskID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, e := range l.byID {
		if e.SupportingTask != taskID {
			continue
		}
		delete(l.byID, id)
		delete(l.byPrescription, e.PrescriptionID)
		l.bySubject[e.Subject] = removeEntry(l.bySubject[e.Subject], e)
		n++
	}
	return n
}

func removeEntry(list []*Entry, target *Entry) []*Entry {
	out := list[:0]
	for _, e := range list {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}
