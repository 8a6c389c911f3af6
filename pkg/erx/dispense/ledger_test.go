package dispense_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/dispense"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

func sampleInput() task.MedicationDispenseInput {
	return task.MedicationDispenseInput{
		PrescriptionID: ids.PrescriptionID("160.100.000.000.001.61"),
		Subject:        ids.KVNR("X110406067"),
		Performer:      ids.TelematikID("3-SMC-B-Testkarte-883110000095957"),
		SupportingTask: "T1",
		Payload:        []byte("bundle bytes"),
	}
}

func TestAppendIsIdempotentByPrescriptionID(t *testing.T) {
	l := dispense.NewLedger(clock.NewFixed(time.Now()))
	in := sampleInput()

	require.NoError(t, l.Append(context.Background(), in))
	require.NoError(t, l.Append(context.Background(), in))

	got, err := l.Get(context.Background(), string(in.PrescriptionID), in.Subject, "")
	require.NoError(t, err)
	require.Equal(t, in.Performer, got.Performer)
	require.Len(t, l.ForSubject(context.Background(), in.Subject), 1)
}

func TestAppendRejectsConflictingTaskForSamePrescription(t *testing.T) {
	l := dispense.NewLedger(clock.NewFixed(time.Now()))
	in := sampleInput()
	require.NoError(t, l.Append(context.Background(), in))

	conflicting := in
	conflicting.SupportingTask = "T2"
	err := l.Append(context.Background(), conflicting)
	require.Error(t, err)
}

func TestGetScopesToSubjectOrPharmacy(t *testing.T) {
	l := dispense.NewLedger(clock.NewFixed(time.Now()))
	in := sampleInput()
	require.NoError(t, l.Append(context.Background(), in))

	_, err := l.Get(context.Background(), string(in.PrescriptionID), in.Subject, "")
	require.NoError(t, err)

	_, err = l.Get(context.Background(), string(in.PrescriptionID), "", in.Performer)
	require.NoError(t, err)

	_, err = l.Get(context.Background(), string(in.PrescriptionID), ids.KVNR("X999999999"), "")
	require.ErrorIs(t, err, dispense.ErrForbidden)

	_, err = l.Get(context.Background(), "unknown-id", in.Subject, "")
	require.ErrorIs(t, err, dispense.ErrNotFound)
}

func TestForPharmacyListsOnlyThatPharmacysEntries(t *testing.T) {
	l := dispense.NewLedger(clock.NewFixed(time.Now()))
	first := sampleInput()
	require.NoError(t, l.Append(context.Background(), first))

	second := sampleInput()
	second.PrescriptionID = ids.PrescriptionID("160.100.000.000.002.60")
	second.Performer = ids.TelematikID("3-SMC-B-Other-000000000000001")
	second.SupportingTask = "T2"
	require.NoError(t, l.Append(context.Background(), second))

	got := l.ForPharmacy(context.Background(), first.Performer)
	require.Len(t, got, 1)
	require.Equal(t, first.PrescriptionID, got[0].PrescriptionID)
}

func TestDeleteMedicationDispenseRemovesFromAllIndexes(t *testing.T) {
	l := dispense.NewLedger(clock.NewFixed(time.Now()))
	in := sampleInput()
	require.NoError(t, l.Append(context.Background(), in))

	require.NoError(t, l.DeleteMedicationDispense(context.Background(), string(in.PrescriptionID)))

	_, err := l.Get(context.Background(), string(in.PrescriptionID), in.Subject, "")
	require.ErrorIs(t, err, dispense.ErrNotFound)
	require.Empty(t, l.ForSubject(context.Background(), in.Subject))

	require.NoError(t, l.DeleteMedicationDispense(context.Background(), "already-gone"))
}

func TestDeleteForTaskRemovesAllMatchingEntries(t *testing.T) {
	l := dispense.NewLedger(clock.NewFixed(time.Now()))
	first := sampleInput()
	require.NoError(t, l.Append(context.Background(), first))

	second := sampleInput()
	second.PrescriptionID = ids.PrescriptionID("160.100.000.000.003.63")
	second.SupportingTask = "T1"
	require.NoError(t, l.Append(context.Background(), second))

	third := sampleInput()
	third.PrescriptionID = ids.PrescriptionID("160.100.000.000.004.62")
	third.SupportingTask = "T2"
	require.NoError(t, l.Append(context.Background(), third))

	n := l.DeleteForTask(context.Background(), "T1")
	require.Equal(t, 2, n)
	require.Len(t, l.ForPharmacy(context.Background(), third.Performer), 1)
}
