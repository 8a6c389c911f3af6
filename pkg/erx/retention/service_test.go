package retention_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/retention"
)

type recordingDeleter struct {
	mu    sync.Mutex
	tasks []string
	meds  []string
}

func (d *recordingDeleter) DeleteTask(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, id)
	return nil
}

func (d *recordingDeleter) DeleteMedicationDispense(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meds = append(d.meds, id)
	return nil
}

func TestDrainDeletesOnlyExpiredEntriesInDeadlineOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	d := &recordingDeleter{}
	s := retention.New(c, d)

	s.Upsert(retention.TargetTask, "T2", base.Add(2*time.Hour))
	s.Upsert(retention.TargetTask, "T1", base.Add(time.Hour))
	s.Upsert(retention.TargetMedicationDispense, "MD1", base.Add(3*time.Hour))
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Drain(context.Background(), base.Add(150*time.Minute)))
	require.Equal(t, []string{"T1", "T2"}, d.tasks)
	require.Empty(t, d.meds)
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Drain(context.Background(), base.Add(4*time.Hour)))
	require.Equal(t, []string{"MD1"}, d.meds)
	require.Equal(t, 0, s.Len())
}

func TestUpsertIsIdempotentByTarget(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	d := &recordingDeleter{}
	s := retention.New(c, d)

	s.Upsert(retention.TargetTask, "T1", base.Add(time.Hour))
	s.Upsert(retention.TargetTask, "T1", base.Add(5*time.Hour))
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Drain(context.Background(), base.Add(2*time.Hour)))
	require.Empty(t, d.tasks, "rescheduled deadline must not fire at the earlier time")

	require.NoError(t, s.Drain(context.Background(), base.Add(6*time.Hour)))
	require.Equal(t, []string{"T1"}, d.tasks)
}

func TestCancelRemovesScheduledDeadline(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	d := &recordingDeleter{}
	s := retention.New(c, d)

	s.Upsert(retention.TargetTask, "T1", base.Add(time.Hour))
	s.Cancel(retention.TargetTask, "T1")
	require.Equal(t, 0, s.Len())

	require.NoError(t, s.Drain(context.Background(), base.Add(2*time.Hour)))
	require.Empty(t, d.tasks)
}

func TestCancelOfUnknownTargetIsNoop(t *testing.T) {
	s := retention.New(clock.NewFixed(time.Now()), &recordingDeleter{})
	s.Cancel(retention.TargetTask, "does-not-exist")
	require.Equal(t, 0, s.Len())
}

func TestRecoverReEmitsDeadlinesWithGrace(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	d := &recordingDeleter{}
	s := retention.New(c, d)

	expiry := base.Add(time.Hour)
	s.Recover([]retention.TaskExpiry{
		{ID: "T1", ExpiryDate: &expiry},
		{ID: "T2", ExpiryDate: nil},
	}, 30*time.Minute)

	require.Equal(t, 1, s.Len())
	require.NoError(t, s.Drain(context.Background(), base.Add(89*time.Minute)))
	require.Empty(t, d.tasks, "grace period not yet elapsed")
	require.NoError(t, s.Drain(context.Background(), base.Add(91*time.Minute)))
	require.Equal(t, []string{"T1"}, d.tasks)
}
