package audit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
)

func TestRecordChainsEntries(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	first, err := s.Record(audit.Event{Action: audit.ActionCreate, SubType: audit.SubTypeCreate, What: "Task/T1", Outcome: audit.OutcomeOK})
	require.NoError(t, err)
	second, err := s.Record(audit.Event{Action: audit.ActionRead, SubType: audit.SubTypeRead, What: "Task/T1", Outcome: audit.OutcomeOK})
	require.NoError(t, err)

	require.Equal(t, "genesis", first.PreviousHash)
	require.Equal(t, first.EntryHash, second.PreviousHash)
	require.Equal(t, second.EntryHash, s.ChainHead())
	require.Equal(t, 2, s.Size())
	require.NoError(t, s.VerifyChain())

	refs := s.ForReference("Task/T1")
	require.Len(t, refs, 2)
}

func TestVerifyChainDetectsTamperedPayload(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Now()))
	entry, err := s.Record(audit.Event{Action: audit.ActionCreate, SubType: audit.SubTypeCreate, What: "Task/T1", Outcome: audit.OutcomeOK})
	require.NoError(t, err)

	entry.Event.Description = "tampered after the fact"

	require.ErrorIs(t, s.VerifyChain(), audit.ErrChainBroken)
}

func TestVerifyChainDetectsBrokenLinkage(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Now()))
	_, err := s.Record(audit.Event{Action: audit.ActionCreate, SubType: audit.SubTypeCreate, What: "Task/T1", Outcome: audit.OutcomeOK})
	require.NoError(t, err)
	entry2, err := s.Record(audit.Event{Action: audit.ActionRead, SubType: audit.SubTypeRead, What: "Task/T1", Outcome: audit.OutcomeOK})
	require.NoError(t, err)

	entry2.PreviousHash = "not-the-real-previous-hash"

	require.ErrorIs(t, s.VerifyChain(), audit.ErrChainBroken)
}

func TestGetMissingEntryReturnsNotFound(t *testing.T) {
	s := audit.NewStore(nil)
	_, err := s.Get("does-not-exist")
	require.ErrorIs(t, err, audit.ErrEntryNotFound)
}

func TestGuardPublishesExactlyOnce(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Now())).WithCatalog(audit.NewCatalog())

	run := func() (err error) {
		g := s.Begin(audit.ActionCreate, audit.SubTypeCreate, audit.Agent{ActorID: "Practitioner/1", Name: "Dr. House"})
		defer g.Done(context.Background(), &err)
		g.What("Task/T1").Description("160.100.000.000.001.61")
		return nil
	}
	require.NoError(t, run())
	require.Equal(t, 1, s.Size())

	entries := s.ForReference("Task/T1")
	require.Len(t, entries, 1)
	require.Equal(t, audit.OutcomeOK, entries[0].Event.Outcome)
	require.Contains(t, entries[0].Event.Text["en"], "Dr. House")
}

func TestGuardRecordsFailureOutcomeOnError(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Now()))
	wantErr := errors.New("task not in a state that allows this transition")

	run := func() (err error) {
		g := s.Begin(audit.ActionUpdate, audit.SubTypeUpdate, audit.Agent{ActorID: "Pharmacy/1"})
		defer g.Done(context.Background(), &err)
		g.What("Task/T1")
		return wantErr
	}
	require.ErrorIs(t, run(), wantErr)

	entries := s.ForReference("Task/T1")
	require.Len(t, entries, 1)
	require.Equal(t, audit.OutcomeMinorFailure, entries[0].Event.Outcome)
}

func TestGuardRepublishesOnPanicAndRepanics(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Now()))

	run := func() (err error) {
		g := s.Begin(audit.ActionExecute, audit.SubTypeUpdate, audit.Agent{ActorID: "Pharmacy/1"})
		defer g.Done(context.Background(), &err)
		g.What("Task/T1")
		panic("unexpected failure mid-transition")
	}

	require.PanicsWithValue(t, "unexpected failure mid-transition", func() { _ = run() })

	entries := s.ForReference("Task/T1")
	require.Len(t, entries, 1)
	require.Equal(t, audit.OutcomeSeriousFailure, entries[0].Event.Outcome)
}

func TestGuardDoneIsIdempotent(t *testing.T) {
	s := audit.NewStore(clock.NewFixed(time.Now()))
	var err error
	g := s.Begin(audit.ActionRead, audit.SubTypeRead, audit.Agent{ActorID: "Practitioner/1"})
	g.What("Task/T1")
	g.Done(context.Background(), &err)
	g.Done(context.Background(), &err)

	require.Equal(t, 1, s.Size())
}

func TestCatalogRendersPreferredLanguage(t *testing.T) {
	c := audit.NewCatalog()
	got := c.Render(audit.SubTypeCreate, "de", audit.TemplateVars{AgentName: "Dr. House", PrescriptionID: "160.100.000.000.001.61"})
	require.Contains(t, got, "Dr. House")
	require.Contains(t, got, "angelegt")
}

func TestCatalogFallsBackToASupportedLanguage(t *testing.T) {
	c := audit.NewCatalog()
	got := c.Render(audit.SubTypeCreate, "fr", audit.TemplateVars{AgentName: "Dr. House", PrescriptionID: "T1"})
	require.True(t, strings.Contains(got, "created") || strings.Contains(got, "angelegt"))
}

func TestCatalogUnknownSubTypeRendersEmpty(t *testing.T) {
	c := audit.NewCatalog()
	got := c.Render(audit.SubType("unknown"), "en", audit.TemplateVars{})
	require.Empty(t, got)
}
