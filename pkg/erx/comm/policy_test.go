package comm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

func TestStatePolicyAllowsWhitelistedStatus(t *testing.T) {
	p, err := newStatePolicy(map[Kind][]task.Status{
		KindDispenseRequest: {task.StatusReady, task.StatusInProgress},
	})
	require.NoError(t, err)

	gated, allowed := p.gated(KindDispenseRequest, task.StatusReady)
	require.True(t, gated)
	require.True(t, allowed)
}

func TestStatePolicyRejectsStatusOutsideWhitelist(t *testing.T) {
	p, err := newStatePolicy(map[Kind][]task.Status{
		KindDispenseRequest: {task.StatusReady, task.StatusInProgress},
	})
	require.NoError(t, err)

	gated, allowed := p.gated(KindDispenseRequest, task.StatusCancelled)
	require.True(t, gated)
	require.False(t, allowed)
}

func TestStatePolicyReportsUngatedKind(t *testing.T) {
	p, err := newStatePolicy(map[Kind][]task.Status{
		KindDispenseRequest: {task.StatusReady},
	})
	require.NoError(t, err)

	gated, allowed := p.gated(KindReply, task.StatusDraft)
	require.False(t, gated)
	require.False(t, allowed)
}

func TestStatePolicyHandlesMultipleKindsIndependently(t *testing.T) {
	p, err := newStatePolicy(map[Kind][]task.Status{
		KindDispenseRequest: {task.StatusReady, task.StatusInProgress},
		KindReply:           {task.StatusDraft, task.StatusReady, task.StatusInProgress},
	})
	require.NoError(t, err)

	_, allowed := p.gated(KindReply, task.StatusDraft)
	require.True(t, allowed)

	_, allowed = p.gated(KindDispenseRequest, task.StatusDraft)
	require.False(t, allowed)
}
