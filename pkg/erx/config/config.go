// Package config loads erx-core's runtime configuration from the
// environment, in the style of the teacher's core/pkg/config.Load(): a
// single struct populated with sane defaults, overridable per field via
// environment variables. HTTP listen address / TLS / CLI flags are
// explicitly out of scope (spec §1) — this only configures the core.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/erx-dienst/erx-core/pkg/erx/ids"
)

// FlowTypeDurations selects accept/expiry durations per flow type (§3, §4.1).
type FlowTypeDurations struct {
	AcceptDuration time.Duration
	ExpiryDuration time.Duration
}

// Config aggregates every subsystem's tunables.
type Config struct {
	// FlowTypes maps a flow type to its accept/expiry durations.
	FlowTypes map[ids.FlowType]FlowTypeDurations

	// PrescriptionIDRetryBound bounds the collision-retry loop in
	// ids.GeneratePrescriptionID (§4.1 Algorithmic notes).
	PrescriptionIDRetryBound int

	// CommunicationQuota is the per-task-per-sender-per-kind message limit
	// (§4.2, §9 Open Question — default documented here per the decision
	// recorded in SPEC_FULL.md §14).
	CommunicationQuota int

	// CommunicationContentLimitBytes bounds Communication.Content (§4.2).
	CommunicationContentLimitBytes int

	// RetentionGrace is added to a task's expiry-date before the retention
	// service deletes it (§4.8).
	RetentionGrace time.Duration

	// AuditRetention is loaded from ERX_AUDIT_RETENTION but nothing reads
	// it: the retention service schedules only task and medication-
	// dispense deletions, and audit entries are never deleted.
	AuditRetention time.Duration

	// RedisAddr configures the quota limiter's backing Redis instance; if
	// empty, the in-process counter (comm.NewInProcessQuota) is used.
	RedisAddr string

	// DatabaseURL is a DSN of the form docstore.OpenSQLStore accepts (a
	// postgres:// URL or a SQLite file path). cmd/erxd does not read it:
	// its stores all live in memory.
	DatabaseURL string
}

// defaultFlowTypes mirrors the gematik flow-type table: prescription-
// required prescriptions get a 30-day acceptance window and a 92-day
// validity; direct-assignment gets a 3-day window with the same validity;
// narcotic prescriptions get a 7-day window and a 28-day validity.
func defaultFlowTypes() map[ids.FlowType]FlowTypeDurations {
	return map[ids.FlowType]FlowTypeDurations{
		ids.FlowPrescriptionRequired: {AcceptDuration: 30 * 24 * time.Hour, ExpiryDuration: 92 * 24 * time.Hour},
		ids.FlowDirectAssignment:     {AcceptDuration: 3 * 24 * time.Hour, ExpiryDuration: 92 * 24 * time.Hour},
		ids.FlowNarcotic:             {AcceptDuration: 7 * 24 * time.Hour, ExpiryDuration: 28 * 24 * time.Hour},
	}
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	return &Config{
		FlowTypes:                      defaultFlowTypes(),
		PrescriptionIDRetryBound:       envInt("ERX_PRESCRIPTION_ID_RETRY_BOUND", 5),
		CommunicationQuota:             envInt("ERX_COMM_QUOTA", 10),
		CommunicationContentLimitBytes: envInt("ERX_COMM_CONTENT_LIMIT_BYTES", 10_000),
		RetentionGrace:                 envDuration("ERX_RETENTION_GRACE", 24*time.Hour),
		AuditRetention:                 envDuration("ERX_AUDIT_RETENTION", 365*24*time.Hour),
		RedisAddr:                      os.Getenv("ERX_REDIS_ADDR"),
		DatabaseURL:                    os.Getenv("ERX_DATABASE_URL"),
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
