package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
	"github.com/erx-dienst/erx-core/pkg/erx/config"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
)

// Tracker wraps a named operation with a span and RED metrics. Satisfied
// by *observability.Provider; kept as a narrow local interface so this
// package doesn't need to import the observability package's transitive
// OTel SDK surface.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

type noopTracker struct{}

func (noopTracker) TrackOperation(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Agent identifies the caller for audit purposes and — via Class — the
// actor gate each transition checks (§4.1).
type Agent struct {
	ID   string
	Name string
	Class ActorClass
	// KVNR is set when Class == ActorPatient; used by the visibility
	// predicate and abort's party path.
	KVNR ids.KVNR
}

// ActorClass narrows the caller to one of the three network roles (§6).
type ActorClass string

const (
	ActorPatient    ActorClass = "patient"
	ActorPharmacy   ActorClass = "pharmacy"
	ActorPhysician  ActorClass = "physician"
)

// ActivationInput carries everything activate() learns about the embedded
// e-prescription bundle (§4.1). BundleID is the embedded bundle identifier
// used to enforce cross-task uniqueness.
type ActivationInput struct {
	AccessCode       string
	BundleID         string
	PatientID        ids.KVNR
	SignedDocument   []byte
	PatientReceipt   []byte
	SigningTime      time.Time
}

// CloseInput carries the cross-checked dispense fields (§4.1).
type CloseInput struct {
	Secret         string
	Performer      ids.TelematikID
	PerformerType  PerformerType
	PrescriptionID ids.PrescriptionID
	Subject        ids.KVNR
	Payload        []byte
}

// AbortInput selects which of the two abort paths applies (§4.1).
type AbortInput struct {
	// Pharmacy path.
	Secret string
	// Party path.
	AccessCode string
	KVNR       ids.KVNR
}

// MedicationDispenseInput is the minimal shape TaskStore hands to a
// DispenseSink at close, kept free of any import on pkg/erx/dispense so
// the two packages don't cycle.
type MedicationDispenseInput struct {
	PrescriptionID ids.PrescriptionID
	Subject        ids.KVNR
	Performer      ids.TelematikID
	SupportingTask string
	Payload        []byte
}

// DispenseSink is the append-only ledger close() writes to (§4.3).
type DispenseSink interface {
	Append(ctx context.Context, in MedicationDispenseInput) error
}

// CommunicationClearer cascade-deletes a task's communications at close
// and abort (§4.1, §4.2).
type CommunicationClearer interface {
	ClearForTask(ctx context.Context, taskID string) (int, error)
}

// DocumentStore is the content-addressed store owning e-prescription
// binaries and receipts; TaskStore holds only the identifiers it returns
// (§3 Ownership).
type DocumentStore interface {
	Put(ctx context.Context, kind, data string) (id string, err error)
	Delete(ctx context.Context, kind, id string) error
}

// ReceiptIssuer produces the detached-signed ErxReceipt at close (§3, §4.7).
type ReceiptIssuer interface {
	IssueReceipt(ctx context.Context, taskID string, beneficiary ids.KVNR, eventStart, eventEnd time.Time) (id string, data []byte, err error)
}

// record holds one task's current snapshot and its append-only version
// history, guarded by Store.mu alongside every other record: a single
// writer mutex per store, matching the "single-writer per shard" model
// of §5 while keeping the implementation a plain Go map instead of a
// hand-rolled lock-free chain. Readers take Store.mu.RLock, which forbids
// observing a write in progress — the non-torn-view guarantee of §4.1's
// algorithmic notes holds by mutual exclusion rather than atomics.
type record struct {
	current Snapshot
	history []Snapshot // cleared to nil on abort, per §3 Invariants
}

// Store is the task state machine and prescription lifecycle manager.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*record
	byBundle map[string]string // embedded bundle id -> task id, enforces §3 uniqueness

	clock    clock.Clock
	audit    *audit.Store
	cfg      *config.Config
	docs     DocumentStore
	dispense DispenseSink
	comms    CommunicationClearer
	receipts ReceiptIssuer
	obs      Tracker

	idCounter uint64
}

// NewStore constructs an empty TaskStore.
func NewStore(c clock.Clock, a *audit.Store, cfg *config.Config, docs DocumentStore, dispense DispenseSink, comms CommunicationClearer, receipts ReceiptIssuer) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{
		records:  make(map[string]*record),
		byBundle: make(map[string]string),
		clock:    c,
		audit:    a,
		cfg:      cfg,
		docs:     docs,
		dispense: dispense,
		comms:    comms,
		receipts: receipts,
		obs:      noopTracker{},
	}
}

// SetCommunicationClearer wires the Communication relay in after
// construction, breaking the Store/comm.Relay construction cycle (the
// relay itself needs a *Store to check task visibility).
func (s *Store) SetCommunicationClearer(comms CommunicationClearer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comms = comms
}

// SetObservability wires in a Tracker (normally *observability.Provider)
// so every lifecycle transition emits a span and the RED metrics.
func (s *Store) SetObservability(obs Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obs == nil {
		obs = noopTracker{}
	}
	s.obs = obs
}

func (s *Store) nextID() string {
	s.idCounter++
	return fmt.Sprintf("T%011d", s.idCounter)
}

// Visible implements the party-scoped visibility predicate (§4.1): caller
// matches iff patient id equals task.patient, or caller presents the
// access code, or caller presents the secret. Exported so collaborating
// components (the communication relay) can apply the same rule without
// generating an extra Task audit entry.
func Visible(snap Snapshot, agent Agent, accessCode, secret string) bool {
	return visible(snap, agent, accessCode, secret)
}

func visible(snap Snapshot, agent Agent, accessCode, secret string) bool {
	if agent.Class == ActorPatient && agent.KVNR != "" && agent.KVNR == snap.PatientID {
		return true
	}
	if accessCode != "" && !snap.AccessCode.Empty() && snap.AccessCode.Equal(accessCode) {
		return true
	}
	if secret != "" && !snap.Secret.Empty() && snap.Secret.Equal(secret) {
		return true
	}
	return false
}

// Create allocates a new Draft task (§4.1 create).
func (s *Store) Create(ctx context.Context, agent Agent, flow ids.FlowType) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionCreate, audit.SubTypeCreate, audit.Agent{ActorID: agent.ID, Name: agent.Name})
	defer g.Done(ctx, &err)
	_, obsDone := s.obs.TrackOperation(ctx, "task.create", attribute.String("task.flow", string(flow)))
	defer func() { obsDone(err) }()

	accessCode, err := ids.NewCredential()
	if err != nil {
		return Snapshot{}, fmt.Errorf("task: create: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prescriptionID, err := ids.GeneratePrescriptionID(flow, s.retryBound(), func(id ids.PrescriptionID) bool {
		for _, r := range s.records {
			if r.current.PrescriptionID == id {
				return true
			}
		}
		return false
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("task: create: %w", err)
	}

	now := s.clock.Now()
	id := s.nextID()
	snap = Snapshot{
		ID:             id,
		PrescriptionID: prescriptionID,
		AccessCode:     accessCode,
		FlowType:       flow,
		AuthoredOn:     now,
		LastModified:   now,
		Status:         StatusDraft,
		Version:        1,
	}
	s.records[id] = &record{current: snap, history: []Snapshot{snap}}

	g.What("Task/" + id).Description(string(prescriptionID))
	return snap, nil
}

func (s *Store) retryBound() int {
	if s.cfg == nil || s.cfg.PrescriptionIDRetryBound <= 0 {
		return 5
	}
	return s.cfg.PrescriptionIDRetryBound
}

// Activate binds the patient and stores the signed documents (§4.1 activate).
func (s *Store) Activate(ctx context.Context, agent Agent, id string, in ActivationInput) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionUpdate, audit.SubTypeUpdate, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)
	_, obsDone := s.obs.TrackOperation(ctx, "task.activate", attribute.String("task.id", id))
	defer func() { obsDone(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := rec.current
	g.Description(string(cur.PrescriptionID))

	if cur.Status != StatusDraft {
		return Snapshot{}, fmt.Errorf("%w: task %s is %s, want draft", ErrConflict, id, cur.Status)
	}
	if !cur.AccessCode.Equal(in.AccessCode) {
		return Snapshot{}, fmt.Errorf("%w: access code mismatch", ErrForbidden)
	}
	if owner, taken := s.byBundle[in.BundleID]; taken && owner != id {
		return Snapshot{}, fmt.Errorf("%w: bundle %s already bound to %s", ErrEPrescriptionAlreadyRegistered, in.BundleID, owner)
	}

	docID, err := s.putDocument(ctx, "e-prescription", in.SignedDocument)
	if err != nil {
		return Snapshot{}, err
	}
	receiptDocID, err := s.putDocument(ctx, "patient-receipt", in.PatientReceipt)
	if err != nil {
		return Snapshot{}, err
	}

	durations, ok := s.cfg.FlowTypes[cur.FlowType]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: unconfigured flow type %s", ErrInvalidStatus, cur.FlowType)
	}
	accept := in.SigningTime.Add(durations.AcceptDuration)
	expiry := in.SigningTime.Add(durations.ExpiryDuration)

	next := cur.clone()
	next.Status = StatusReady
	next.PatientID = in.PatientID
	next.Input = InputRefs{EPrescription: docID, PatientReceipt: receiptDocID}
	next.AcceptDate = &accept
	next.ExpiryDate = &expiry
	next.LastModified = s.clock.Now()
	next.Version = cur.Version + 1

	s.byBundle[in.BundleID] = id
	rec.current = next
	rec.history = append(rec.history, next)

	return next, nil
}

func (s *Store) putDocument(ctx context.Context, kind string, data []byte) (string, error) {
	if s.docs == nil || len(data) == 0 {
		return "", nil
	}
	id, err := s.docs.Put(ctx, kind, string(data))
	if err != nil {
		return "", fmt.Errorf("task: store %s: %w", kind, err)
	}
	return id, nil
}

// Accept allocates the pharmacy secret and hands back the signed binary
// (§4.1 accept). The caller is responsible for fetching Input.EPrescription
// from the document store; Store only returns the identifier.
func (s *Store) Accept(ctx context.Context, agent Agent, id string, accessCode string) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionUpdate, audit.SubTypeUpdate, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)
	_, obsDone := s.obs.TrackOperation(ctx, "task.accept", attribute.String("task.id", id))
	defer func() { obsDone(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := rec.current
	g.Description(string(cur.PrescriptionID))

	switch cur.Status {
	case StatusCancelled:
		return Snapshot{}, fmt.Errorf("%w: task %s is cancelled", ErrGone, id)
	case StatusCompleted, StatusInProgress, StatusDraft:
		return Snapshot{}, fmt.Errorf("%w: task %s is %s, want ready", ErrConflict, id, cur.Status)
	case StatusReady:
		// fallthrough to the happy path below
	default:
		return Snapshot{}, fmt.Errorf("%w: task %s is %s", ErrInvalidStatus, id, cur.Status)
	}
	if !cur.AccessCode.Equal(accessCode) {
		return Snapshot{}, fmt.Errorf("%w: access code mismatch", ErrForbidden)
	}

	secret, err := ids.NewCredential()
	if err != nil {
		return Snapshot{}, fmt.Errorf("task: accept: %w", err)
	}
	now := s.clock.Now()

	next := cur.clone()
	next.Status = StatusInProgress
	next.Secret = secret
	next.acceptTimestamp = &now
	next.LastModified = now
	next.Version = cur.Version + 1

	rec.current = next
	rec.history = append(rec.history, next)

	return next, nil
}

// Reject returns an accepted task to Ready, clearing the secret (§4.1 reject).
func (s *Store) Reject(ctx context.Context, agent Agent, id string, secret string) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionUpdate, audit.SubTypeUpdate, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)
	_, obsDone := s.obs.TrackOperation(ctx, "task.reject", attribute.String("task.id", id))
	defer func() { obsDone(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := rec.current
	g.Description(string(cur.PrescriptionID))

	if cur.Status != StatusInProgress {
		return Snapshot{}, fmt.Errorf("%w: task %s is %s, want in-progress", ErrConflict, id, cur.Status)
	}
	if !cur.Secret.Equal(secret) {
		return Snapshot{}, fmt.Errorf("%w: secret mismatch", ErrForbidden)
	}

	next := cur.clone()
	next.Status = StatusReady
	next.Secret = ""
	next.acceptTimestamp = nil
	next.LastModified = s.clock.Now()
	next.Version = cur.Version + 1

	rec.current = next
	rec.history = append(rec.history, next)

	return next, nil
}

// Close completes a task: appends the medication dispense, issues the
// receipt, and cascade-deletes the task's communications (§4.1 close).
func (s *Store) Close(ctx context.Context, agent Agent, id string, in CloseInput) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionUpdate, audit.SubTypeUpdate, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)
	_, obsDone := s.obs.TrackOperation(ctx, "task.close", attribute.String("task.id", id))
	defer func() { obsDone(err) }()

	s.mu.Lock()
	cur, rec, cerr := s.checkClosePreconditions(id, in)
	if cerr != nil {
		s.mu.Unlock()
		return Snapshot{}, cerr
	}
	g.Description(string(cur.PrescriptionID))
	s.mu.Unlock()

	// Side effects that may themselves suspend (ledger append, receipt
	// signing) run outside the store lock; the commit below re-validates
	// the precondition so a concurrent abort cannot race this close in.
	if s.dispense != nil {
		if err := s.dispense.Append(ctx, MedicationDispenseInput{
			PrescriptionID: in.PrescriptionID,
			Subject:        in.Subject,
			Performer:      in.Performer,
			SupportingTask: id,
			Payload:        in.Payload,
		}); err != nil {
			return Snapshot{}, fmt.Errorf("task: close: append dispense: %w", err)
		}
	}

	var receiptID string
	if s.receipts != nil {
		now := s.clock.Now()
		rid, _, rerr := s.receipts.IssueReceipt(ctx, id, cur.PatientID, now, now)
		if rerr != nil {
			return Snapshot{}, fmt.Errorf("task: close: issue receipt: %w", rerr)
		}
		receiptID = rid
	}
	if s.comms != nil {
		if _, cerr := s.comms.ClearForTask(ctx, id); cerr != nil {
			return Snapshot{}, fmt.Errorf("task: close: clear communications: %w", cerr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur2, _, cerr := s.checkClosePreconditions(id, in)
	if cerr != nil {
		return Snapshot{}, cerr
	}

	next := cur2.clone()
	next.Status = StatusCompleted
	next.Secret = ""
	next.Output = OutputRefs{PharmacyReceipt: receiptID}
	next.LastModified = s.clock.Now()
	next.Version = cur2.Version + 1

	rec.current = next
	rec.history = append(rec.history, next)

	return next, nil
}

func (s *Store) checkClosePreconditions(id string, in CloseInput) (Snapshot, *record, error) {
	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := rec.current
	if cur.Status != StatusInProgress {
		return Snapshot{}, nil, fmt.Errorf("%w: task %s is %s, want in-progress", ErrConflict, id, cur.Status)
	}
	if !cur.Secret.Equal(in.Secret) {
		return Snapshot{}, nil, fmt.Errorf("%w: secret mismatch", ErrForbidden)
	}
	if cur.PrescriptionID != in.PrescriptionID {
		return Snapshot{}, nil, fmt.Errorf("%w: dispense prescription id", ErrEPrescriptionMismatch)
	}
	if cur.PatientID != "" && cur.PatientID != in.Subject {
		return Snapshot{}, nil, fmt.Errorf("%w: dispense subject", ErrSubjectMismatch)
	}
	if cur.Performer != "" && cur.Performer != in.Performer {
		return Snapshot{}, nil, fmt.Errorf("%w: dispense performer", ErrPerformerMismatch)
	}
	return cur, rec, nil
}

// Abort cancels a task from any state, cascade-deleting its artifacts and
// clearing its history (§4.1 abort, §3 Invariants).
func (s *Store) Abort(ctx context.Context, agent Agent, id string, in AbortInput) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionDelete, audit.SubTypeDelete, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)
	_, obsDone := s.obs.TrackOperation(ctx, "task.abort", attribute.String("task.id", id))
	defer func() { obsDone(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := rec.current
	g.Description(string(cur.PrescriptionID))

	if agent.Class == ActorPharmacy {
		if in.Secret == "" || cur.Status != StatusInProgress {
			return Snapshot{}, fmt.Errorf("%w: pharmacy abort requires an in-progress task and a secret", ErrForbidden)
		}
		if !cur.Secret.Equal(in.Secret) {
			return Snapshot{}, fmt.Errorf("%w: secret mismatch", ErrForbidden)
		}
	} else {
		if !visible(cur, agent, in.AccessCode, "") {
			return Snapshot{}, fmt.Errorf("%w: access code or kvnr mismatch", ErrForbidden)
		}
	}
	if cur.Status == StatusCancelled {
		return Snapshot{}, fmt.Errorf("%w: task %s already cancelled", ErrGone, id)
	}

	if s.comms != nil {
		_, _ = s.comms.ClearForTask(ctx, id)
	}
	if s.docs != nil {
		if cur.Input.EPrescription != "" {
			_ = s.docs.Delete(ctx, "e-prescription", cur.Input.EPrescription)
		}
		if cur.Input.PatientReceipt != "" {
			_ = s.docs.Delete(ctx, "patient-receipt", cur.Input.PatientReceipt)
		}
		if cur.Output.PharmacyReceipt != "" {
			_ = s.docs.Delete(ctx, "receipt", cur.Output.PharmacyReceipt)
		}
	}
	for bundleID, taskID := range s.byBundle {
		if taskID == id {
			delete(s.byBundle, bundleID)
		}
	}

	next := cur.clone()
	next.Status = StatusCancelled
	next.PatientID = ""
	next.AccessCode = ""
	next.Secret = ""
	next.Input = InputRefs{}
	next.acceptTimestamp = nil
	next.LastModified = s.clock.Now()
	next.Version = cur.Version + 1

	rec.current = next
	rec.history = nil // legally-mandated erasure, §3 Invariants

	return next, nil
}

// Peek returns a task's current snapshot without publishing an audit
// entry or enforcing visibility — for collaborators (the communication
// relay) that need to check task existence/state as a side detail of
// their own operation, which audits itself.
func (s *Store) Peek(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, false
	}
	return rec.current, true
}

// Get returns a task's current snapshot (version == 0) or a historic
// version, subject to the visibility predicate (§4.1 get).
func (s *Store) Get(ctx context.Context, agent Agent, id string, version int, accessCode, secret string) (snap Snapshot, err error) {
	g := s.audit.Begin(audit.ActionRead, subTypeForVersion(version), audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cur := rec.current
	g.Description(string(cur.PrescriptionID))
	if cur.PatientID != "" {
		g.Patient(cur.PatientID.String())
	}

	if !visible(cur, agent, accessCode, secret) {
		return Snapshot{}, fmt.Errorf("%w: caller does not match task %s", ErrForbidden, id)
	}

	if version == 0 {
		return cur, nil
	}
	if len(rec.history) == 0 {
		return Snapshot{}, fmt.Errorf("%w: history cleared for %s", ErrGone, id)
	}
	for _, v := range rec.history {
		if v.Version == version {
			return v, nil
		}
	}
	return Snapshot{}, fmt.Errorf("%w: version %d of %s", ErrNotFound, version, id)
}

func subTypeForVersion(version int) audit.SubType {
	if version == 0 {
		return audit.SubTypeRead
	}
	return audit.SubTypeVRead
}

// systemAgent identifies the retention sweep as the caller for audit
// purposes; it has no credential and is never checked against one.
var systemAgent = Agent{ID: "system:retention", Name: "Retention service", Class: ActorClass("system")}

// DeleteTask performs the retention service's scheduled deletion of an
// expired task (§4.8): cascade-deletes its artifacts exactly like abort,
// without requiring a caller credential, and publishes its own audit
// entry. Deleting an already-deleted or unknown task is a no-op.
func (s *Store) DeleteTask(ctx context.Context, id string) (err error) {
	g := s.audit.Begin(audit.ActionDelete, audit.SubTypeDelete, audit.Agent{ActorID: systemAgent.ID, Name: systemAgent.Name}).What("Task/" + id)
	defer g.Done(ctx, &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	cur := rec.current
	g.Description(string(cur.PrescriptionID))

	if s.comms != nil {
		_, _ = s.comms.ClearForTask(ctx, id)
	}
	if s.docs != nil {
		if cur.Input.EPrescription != "" {
			_ = s.docs.Delete(ctx, "e-prescription", cur.Input.EPrescription)
		}
		if cur.Input.PatientReceipt != "" {
			_ = s.docs.Delete(ctx, "patient-receipt", cur.Input.PatientReceipt)
		}
		if cur.Output.PharmacyReceipt != "" {
			_ = s.docs.Delete(ctx, "receipt", cur.Output.PharmacyReceipt)
		}
	}
	for bundleID, taskID := range s.byBundle {
		if taskID == id {
			delete(s.byBundle, bundleID)
		}
	}
	delete(s.records, id)

	return nil
}

// ExpirySummary is one task's id and expiry date, for the retention
// service's startup recovery scan.
type ExpirySummary struct {
	ID         string
	ExpiryDate *time.Time
}

// ExpiringTasks lists every task's id and expiry date (§4.8 recovery).
func (s *Store) ExpiringTasks() []ExpirySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExpirySummary, 0, len(s.records))
	for id, rec := range s.records {
		out = append(out, ExpirySummary{ID: id, ExpiryDate: rec.current.ExpiryDate})
	}
	return out
}
