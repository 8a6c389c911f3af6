// Package retention implements the timeout/retention service (spec §4.8):
// a time-ordered queue of (deadline, target) entries, idempotent by
// target, drained by a periodic tick that deletes expired task and
// medication-dispense artifacts.
//
// Grounded on the teacher's core/pkg/kernel.InMemoryScheduler
// (container/heap priority queue, deterministic secondary ordering) —
// reworked from a blocking Next()/Peek() consumer model to a Drain(now)
// sweep, since retention has no consumer waiting on individual events, only
// a ticker invoking the delete path in bulk.
package retention

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/erx-dienst/erx-core/internal/clock"
)

// TargetKind distinguishes what an entry's deadline applies to (§4.8).
type TargetKind string

const (
	TargetTask               TargetKind = "task"
	TargetMedicationDispense TargetKind = "medication-dispense"
)

// Deleter is invoked for every entry whose deadline has elapsed.
type Deleter interface {
	DeleteTask(ctx context.Context, id string) error
	DeleteMedicationDispense(ctx context.Context, id string) error
}

type entry struct {
	kind     TargetKind
	target   string
	deadline time.Time
	index    int // heap.Interface bookkeeping
}

// deadlineHeap orders entries by deadline, then by target for determinism
// when two entries share a timestamp.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].target < h[j].target
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *deadlineHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Service is the retention queue.
type Service struct {
	mu      sync.Mutex
	clock   clock.Clock
	deleter Deleter
	queue   deadlineHeap
	byKey   map[string]*entry // kind+target -> entry, for idempotent upsert
}

// New constructs an empty retention Service.
func New(c clock.Clock, deleter Deleter) *Service {
	if c == nil {
		c = clock.System{}
	}
	s := &Service{clock: c, deleter: deleter, byKey: make(map[string]*entry)}
	heap.Init(&s.queue)
	return s
}

func key(kind TargetKind, target string) string { return string(kind) + ":" + target }

// Upsert schedules (or reschedules) a deadline for a target. Idempotent:
// a second Upsert for the same (kind, target) replaces the deadline
// rather than adding a duplicate entry (§4.8).
func (s *Service) Upsert(kind TargetKind, target string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, target)
	if e, ok := s.byKey[k]; ok {
		e.deadline = deadline
		heap.Fix(&s.queue, e.index)
		return
	}
	e := &entry{kind: kind, target: target, deadline: deadline}
	s.byKey[k] = e
	heap.Push(&s.queue, e)
}

// Cancel removes a scheduled deadline, e.g. because abort already
// cascade-deleted the artifact out of band.
func (s *Service) Cancel(kind TargetKind, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(kind, target)
	e, ok := s.byKey[k]
	if !ok {
		return
	}
	heap.Remove(&s.queue, e.index)
	delete(s.byKey, k)
}

// Drain invokes the deleter for every entry whose deadline is <= now,
// removing it from the queue. Intended to be called from a ticker.
func (s *Service) Drain(ctx context.Context, now time.Time) error {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 || s.queue[0].deadline.After(now) {
			s.mu.Unlock()
			return nil
		}
		e := heap.Pop(&s.queue).(*entry)
		delete(s.byKey, key(e.kind, e.target))
		s.mu.Unlock()

		var err error
		switch e.kind {
		case TargetTask:
			err = s.deleter.DeleteTask(ctx, e.target)
		case TargetMedicationDispense:
			err = s.deleter.DeleteMedicationDispense(ctx, e.target)
		}
		if err != nil {
			return err
		}
	}
}

// Run ticks Drain on interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Drain(ctx, s.clock.Now())
		}
	}
}

// Len reports the number of pending deadlines.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// TaskExpiry is the minimal shape Recover needs from the task store to
// re-derive outstanding deadlines at startup (§4.8 recovery).
type TaskExpiry struct {
	ID         string
	ExpiryDate *time.Time
}

// Recover re-emits outstanding deadlines by scanning task expiry dates,
// adding the configured retention grace, per §4.8's restart recovery note.
func (s *Service) Recover(tasks []TaskExpiry, grace time.Duration) {
	for _, t := range tasks {
		if t.ExpiryDate == nil {
			continue
		}
		s.Upsert(TargetTask, t.ID, t.ExpiryDate.Add(grace))
	}
}
