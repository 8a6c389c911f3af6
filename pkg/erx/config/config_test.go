package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/pkg/erx/config"
	"github.com/erx-dienst/erx-core/pkg/erx/ids"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{"ERX_PRESCRIPTION_ID_RETRY_BOUND", "ERX_COMM_QUOTA", "ERX_COMM_CONTENT_LIMIT_BYTES", "ERX_RETENTION_GRACE", "ERX_AUDIT_RETENTION", "ERX_REDIS_ADDR", "ERX_DATABASE_URL"} {
		t.Setenv(key, "")
	}

	c := config.Load()
	require.Equal(t, 5, c.PrescriptionIDRetryBound)
	require.Equal(t, 10, c.CommunicationQuota)
	require.Equal(t, 10_000, c.CommunicationContentLimitBytes)
	require.Equal(t, 24*time.Hour, c.RetentionGrace)
	require.Equal(t, 365*24*time.Hour, c.AuditRetention)
	require.Empty(t, c.RedisAddr)

	durations, ok := c.FlowTypes[ids.FlowPrescriptionRequired]
	require.True(t, ok)
	require.Equal(t, 30*24*time.Hour, durations.AcceptDuration)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("ERX_PRESCRIPTION_ID_RETRY_BOUND", "12")
	t.Setenv("ERX_COMM_QUOTA", "3")
	t.Setenv("ERX_RETENTION_GRACE", "48h")
	t.Setenv("ERX_REDIS_ADDR", "redis:6379")

	c := config.Load()
	require.Equal(t, 12, c.PrescriptionIDRetryBound)
	require.Equal(t, 3, c.CommunicationQuota)
	require.Equal(t, 48*time.Hour, c.RetentionGrace)
	require.Equal(t, "redis:6379", c.RedisAddr)
}

func TestLoadFallsBackOnMalformedOverride(t *testing.T) {
	t.Setenv("ERX_COMM_QUOTA", "not-a-number")
	t.Setenv("ERX_RETENTION_GRACE", "not-a-duration")

	c := config.Load()
	require.Equal(t, 10, c.CommunicationQuota)
	require.Equal(t, 24*time.Hour, c.RetentionGrace)
}
