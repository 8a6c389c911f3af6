// Command erxd is the composition root wiring the e-prescription core's
// domain packages together (spec §1 Non-goals: no HTTP routing lives
// here — the transport surface is an external collaborator). Grounded
// on the teacher's cmd/helm/main.go runServer: construct the storage
// layer, the domain stores on top of it, then a background maintenance
// loop, with slog for structured startup logging and signal.Notify for
// graceful shutdown.
package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
	"github.com/erx-dienst/erx-core/pkg/erx/comm"
	"github.com/erx-dienst/erx-core/pkg/erx/config"
	"github.com/erx-dienst/erx-core/pkg/erx/dispense"
	"github.com/erx-dienst/erx-core/pkg/erx/docstore"
	"github.com/erx-dienst/erx-core/pkg/erx/observability"
	"github.com/erx-dienst/erx-core/pkg/erx/receipt"
	"github.com/erx-dienst/erx-core/pkg/erx/retention"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

func main() {
	os.Exit(run())
}

// storeDeleter adapts *task.Store and *dispense.Ledger to the single
// retention.Deleter interface the retention service targets by kind
// (spec §4.8 "the state store's delete path").
type storeDeleter struct {
	tasks *task.Store
	meds  *dispense.Ledger
}

func (d storeDeleter) DeleteTask(ctx context.Context, id string) error {
	return d.tasks.DeleteTask(ctx, id)
}

func (d storeDeleter) DeleteMedicationDispense(ctx context.Context, id string) error {
	return d.meds.DeleteMedicationDispense(ctx, id)
}

func run() int {
	logger := slog.Default()
	logger.Info("erx-core starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	sysClock := clock.System{}

	obs, err := observability.New(ctx, observability.DefaultConfig(), logger)
	if err != nil {
		log.Fatalf("erx-core: init observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	auditStore := audit.NewStore(sysClock).WithCatalog(audit.NewCatalog())
	docs := docstore.New()
	meds := dispense.NewLedger(sysClock)

	signer, err := loadOrGenerateSigner()
	if err != nil {
		log.Fatalf("erx-core: init receipt signer: %v", err)
	}
	receipts := receipt.New(sysClock, docs, signer)

	var quota comm.QuotaLimiter
	if cfg.RedisAddr != "" {
		quota = comm.NewRedisQuota(cfg.RedisAddr)
		logger.Info("communication quota backed by redis", "addr", cfg.RedisAddr)
	} else {
		quota = comm.NewInProcessQuota()
		logger.Info("communication quota running in-process (single instance only)")
	}

	tasks := task.NewStore(sysClock, auditStore, cfg, docs, meds, nil, receipts)
	tasks.SetObservability(obs)
	relay := comm.New(sysClock, auditStore, tasks, quota, cfg)
	tasks.SetCommunicationClearer(relay)

	deleter := storeDeleter{tasks: tasks, meds: meds}
	retentionSvc := retention.New(sysClock, deleter)

	var recoverable []retention.TaskExpiry
	for _, t := range tasks.ExpiringTasks() {
		recoverable = append(recoverable, retention.TaskExpiry{ID: t.ID, ExpiryDate: t.ExpiryDate})
	}
	retentionSvc.Recover(recoverable, cfg.RetentionGrace)
	logger.Info("retention queue recovered", "entries", retentionSvc.Len())

	go runRetentionLoop(ctx, retentionSvc, obs, time.Minute)

	logger.Info("erx-core ready")
	<-ctx.Done()
	logger.Info("erx-core shutting down")
	return 0
}

// runRetentionLoop ticks svc.Drain on interval, wrapping each tick in an
// observability span and the RED metrics so retention sweeps show up
// alongside the request-path operations.
func runRetentionLoop(ctx context.Context, svc *retention.Service, obs *observability.Provider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, done := obs.TrackOperation(ctx, "retention.drain", attribute.Int("pending", svc.Len()))
			err := svc.Drain(tickCtx, time.Now().UTC())
			done(err)
		}
	}
}

// loadOrGenerateSigner builds the service's own detached-signature
// identity. Production deployments would load a persisted key; absent
// that, erx-core generates one at startup the way the teacher's
// loadOrGenerateSigner falls back to an ephemeral Ed25519 keypair.
func loadOrGenerateSigner() (receipt.RSASigner, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return receipt.RSASigner{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return receipt.RSASigner{}, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "erx-core receipt signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(5, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return receipt.RSASigner{}, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return receipt.RSASigner{}, err
	}

	return receipt.RSASigner{Cert: cert, Key: key}, nil
}
