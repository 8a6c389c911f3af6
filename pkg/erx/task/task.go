// Package task implements the Task state machine and prescription
// lifecycle manager (spec §3, §4.1): task identity, access-code/secret
// issuance, party-scoped authorization, versioned history, and the
// create -> activate -> accept -> (reject | close | abort) transitions.
//
// Grounded on the teacher's core/pkg/store.AuditStore (hash-chained
// append-only log, here repurposed for per-task version history) and
// core/pkg/ledger.Ledger (head-replacement commit), per DESIGN.md.
package task

import (
	"time"

	"github.com/erx-dienst/erx-core/pkg/erx/ids"
)

// Status is one of the five states the engine itself writes (§4.1). The
// decoder additionally accepts Requested/Received/Accepted/Rejected/OnHold/
// Failed/EnteredInError for forward compatibility (see taskStatusCodes in
// pkg/records),
// but the state machine below never produces them.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// PerformerType enumerates who is expected to act as the dispensing party.
type PerformerType string

const (
	PerformerPublicPharmacy PerformerType = "public-pharmacy"
	PerformerMailOrder      PerformerType = "mail-order-pharmacy"
)

// InputRefs names the content-addressed documents a task points at (§3
// Ownership: the task store owns only the identifiers, not the bytes).
type InputRefs struct {
	EPrescription string // content-addressed id of the signed e-prescription binary
	PatientReceipt string // content-addressed id of the patient receipt
}

// OutputRefs names the document produced at close.
type OutputRefs struct {
	PharmacyReceipt string // content-addressed id of the ErxReceipt
}

// Snapshot is an immutable view of a task at one version. TaskStore hands
// these out by value; nothing outside the store holds a pointer into live
// state, so readers can never observe a torn mutation.
type Snapshot struct {
	ID             string
	PrescriptionID ids.PrescriptionID
	AccessCode     ids.Credential // empty once cleared by abort
	Secret         ids.Credential // non-empty iff Status == StatusInProgress
	FlowType       ids.FlowType
	PatientID      ids.KVNR // empty until Activate binds it
	AuthoredOn     time.Time
	LastModified   time.Time
	AcceptDate     *time.Time
	ExpiryDate     *time.Time
	Status         Status
	Input          InputRefs
	Output         OutputRefs
	PerformerType  PerformerType
	Performer      ids.TelematikID
	Version        int // 1-indexed, per §3 Invariants

	acceptTimestamp *time.Time // side counter, §3: used to compute dispensing duration
	commCount       map[string]int
}

// AcceptTimestamp returns the recorded accept time, if any.
func (s Snapshot) AcceptTimestamp() *time.Time { return s.acceptTimestamp }

// clone returns a deep-enough copy safe to hand to a new version without
// aliasing mutable fields (time.Time and ids types are already values).
func (s Snapshot) clone() Snapshot {
	cp := s
	if s.AcceptDate != nil {
		t := *s.AcceptDate
		cp.AcceptDate = &t
	}
	if s.ExpiryDate != nil {
		t := *s.ExpiryDate
		cp.ExpiryDate = &t
	}
	if s.acceptTimestamp != nil {
		t := *s.acceptTimestamp
		cp.acceptTimestamp = &t
	}
	if s.commCount != nil {
		m := make(map[string]int, len(s.commCount))
		for k, v := range s.commCount {
			m[k] = v
		}
		cp.commCount = m
	}
	return cp
}
