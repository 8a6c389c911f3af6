package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
	"github.com/erx-dienst/erx-core/pkg/erx/config"
	"github.com/erx-dienst/erx-core/pkg/erx/dispense"
	"github.com/erx-dienst/erx-core/pkg/erx/docstore"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
	"github.com/erx-dienst/erx-core/pkg/erx/receipt"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

func newTestStore(t *testing.T) (*task.Store, *audit.Store) {
	t.Helper()
	c := clock.NewFixed(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	auditStore := audit.NewStore(c)
	docs := docstore.New()
	meds := dispense.NewLedger(c)
	receipts := receipt.New(c, docs, nil)
	cfg := config.Load()
	store := task.NewStore(c, auditStore, cfg, docs, meds, nil, receipts)
	return store, auditStore
}

var (
	physician = task.Agent{ID: "Practitioner/1", Name: "Dr. House", Class: task.ActorPhysician}
	pharmacy  = task.Agent{ID: "Pharmacy/1", Name: "Apotheke am Markt", Class: task.ActorPharmacy}
)

// TestHappyPathCreateActivateAcceptClose exercises the full create ->
// activate -> accept -> close lifecycle (§8 scenario 1), asserting both
// the resulting status transitions and that each operation appends
// exactly one audit entry referencing the task.
func TestHappyPathCreateActivateAcceptClose(t *testing.T) {
	store, auditStore := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, physician, ids.FlowPrescriptionRequired)
	require.NoError(t, err)
	require.Equal(t, task.StatusDraft, created.Status)
	require.Len(t, auditStore.ForReference("Task/"+created.ID), 1) // Create sets g.What(id) before its deferred Done publishes

	patient := ids.KVNR("X110406067")
	activated, err := store.Activate(ctx, physician, created.ID, task.ActivationInput{
		AccessCode:     created.AccessCode.String(),
		BundleID:       "Bundle/1",
		PatientID:      patient,
		SignedDocument: []byte("signed-bundle"),
		SigningTime:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, task.StatusReady, activated.Status)

	accepted, err := store.Accept(ctx, pharmacy, created.ID, created.AccessCode.String())
	require.NoError(t, err)
	require.Equal(t, task.StatusInProgress, accepted.Status)
	require.NotEmpty(t, accepted.Secret)

	closed, err := store.Close(ctx, pharmacy, created.ID, task.CloseInput{
		Secret:         accepted.Secret.String(),
		Performer:      ids.TelematikID("3-SMC-B-Testkarte-883110000095957"),
		PerformerType:  task.PerformerPublicPharmacy,
		PrescriptionID: created.PrescriptionID,
		Subject:        patient,
		Payload:        []byte("dispense-payload"),
	})
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, closed.Status)
	require.NotEmpty(t, closed.Output.PharmacyReceipt)

	entries := auditStore.ForReference("Task/" + created.ID)
	require.Len(t, entries, 4, "create, activate, accept, close each append exactly one audit entry")
	require.NoError(t, auditStore.VerifyChain())
}

// TestAcceptRejectedOnWrongAccessCode covers the rejected-accept scenario
// (§8 scenario 2): a wrong access code must not transition the task.
func TestAcceptRejectedOnWrongAccessCode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, physician, ids.FlowPrescriptionRequired)
	require.NoError(t, err)

	_, err = store.Activate(ctx, physician, created.ID, task.ActivationInput{
		AccessCode:  created.AccessCode.String(),
		BundleID:    "Bundle/2",
		PatientID:   ids.KVNR("X110406067"),
		SigningTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = store.Accept(ctx, pharmacy, created.ID, "wrong-access-code")
	require.ErrorIs(t, err, task.ErrForbidden)

	snap, ok := store.Peek(created.ID)
	require.True(t, ok)
	require.Equal(t, task.StatusReady, snap.Status, "a rejected accept must not transition the task")
}

// TestDuplicateEPrescriptionBundleRejected covers the duplicate-embedded-
// bundle scenario (§3 Invariants: one Task per embedded bundle id).
func TestDuplicateEPrescriptionBundleRejected(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, physician, ids.FlowPrescriptionRequired)
	require.NoError(t, err)
	_, err = store.Activate(ctx, physician, first.ID, task.ActivationInput{
		AccessCode:  first.AccessCode.String(),
		BundleID:    "Bundle/dup",
		PatientID:   ids.KVNR("X110406067"),
		SigningTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := store.Create(ctx, physician, ids.FlowPrescriptionRequired)
	require.NoError(t, err)
	_, err = store.Activate(ctx, physician, second.ID, task.ActivationInput{
		AccessCode:  second.AccessCode.String(),
		BundleID:    "Bundle/dup",
		PatientID:   ids.KVNR("X110406067"),
		SigningTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
}

// TestAbortAfterCloseFails covers the abort-after-close scenario (§8
// scenario 5): a completed task cannot be aborted through the pharmacy
// path, which requires InProgress.
func TestAbortAfterCloseFails(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, physician, ids.FlowPrescriptionRequired)
	require.NoError(t, err)
	patient := ids.KVNR("X110406067")
	_, err = store.Activate(ctx, physician, created.ID, task.ActivationInput{
		AccessCode:  created.AccessCode.String(),
		BundleID:    "Bundle/3",
		PatientID:   patient,
		SigningTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	accepted, err := store.Accept(ctx, pharmacy, created.ID, created.AccessCode.String())
	require.NoError(t, err)
	_, err = store.Close(ctx, pharmacy, created.ID, task.CloseInput{
		Secret:         accepted.Secret.String(),
		Performer:      ids.TelematikID("3-SMC-B-Testkarte-883110000095957"),
		PerformerType:  task.PerformerPublicPharmacy,
		PrescriptionID: created.PrescriptionID,
		Subject:        patient,
		Payload:        []byte("dispense-payload"),
	})
	require.NoError(t, err)

	_, err = store.Abort(ctx, pharmacy, created.ID, task.AbortInput{Secret: accepted.Secret.String()})
	require.Error(t, err)
}
