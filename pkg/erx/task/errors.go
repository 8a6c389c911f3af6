package task

import "errors"

// Error taxonomy for transitions (§4.1). Tested with errors.Is; operations
// wrap these with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound — unknown task id.
	ErrNotFound = errors.New("task: not found")
	// ErrForbidden — credential mismatch or wrong actor class.
	ErrForbidden = errors.New("task: forbidden")
	// ErrConflict — wrong source state the caller could retry from a
	// different state.
	ErrConflict = errors.New("task: conflict")
	// ErrGone — task cancelled, or the requested version was dropped by an
	// abort's history clear.
	ErrGone = errors.New("task: gone")
	// ErrInvalidStatus — structural precondition violated.
	ErrInvalidStatus = errors.New("task: invalid status")
	// ErrEPrescriptionMismatch — close-time dispense.prescription_id does
	// not match the task.
	ErrEPrescriptionMismatch = errors.New("task: e-prescription mismatch")
	// ErrSubjectMismatch — close-time dispense.subject does not match the
	// task's bound patient.
	ErrSubjectMismatch = errors.New("task: subject mismatch")
	// ErrPerformerMismatch — close-time dispense.performer does not match
	// the accepting pharmacy.
	ErrPerformerMismatch = errors.New("task: performer mismatch")
	// ErrEPrescriptionAlreadyRegistered — the embedded bundle id referenced
	// by activate is already bound to a different task.
	ErrEPrescriptionAlreadyRegistered = errors.New("task: e-prescription already registered")
)
