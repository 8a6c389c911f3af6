package audit

import (
	"context"

	"github.com/erx-dienst/erx-core/internal/clock"
)

// Guard is the scoped, RAII-style handle acquired for each operation (§4.4).
// Callers build one at the top of a transition, fill in the slots as they
// learn them, and defer guard.Done(ctx, &err) so the audit entry is
// published exactly once regardless of how the function returns —
// including panics, which is why Done recovers, publishes, and re-panics.
type Guard struct {
	store       *Store
	catalog     *Catalog
	clock       clock.Clock
	action      Action
	subType     SubType
	agent       Agent
	what        string
	patientID   string
	description string
	language    string
	published   bool
	lastRecordErr error
}

// LastRecordErr reports whether the store failed to append this guard's
// entry. Check after Done/DoneInternal for fail-closed audit policies.
func (g *Guard) LastRecordErr() error { return g.lastRecordErr }

// Begin acquires a Guard for one request.
func (s *Store) Begin(action Action, subType SubType, agent Agent) *Guard {
	return &Guard{store: s, catalog: s.catalog, clock: s.clock, action: action, subType: subType, agent: agent, language: "en"}
}

// WithCatalog attaches the template catalog used to render human text.
// Stored on Store so every Guard shares one catalog instance.
func (s *Store) WithCatalog(c *Catalog) *Store {
	s.catalog = c
	return s
}

// What sets the URI-like resource reference (e.g. "Task/<id>").
func (g *Guard) What(what string) *Guard { g.what = what; return g }

// Patient sets the patient identifier slot, when known.
func (g *Guard) Patient(patientID string) *Guard { g.patientID = patientID; return g }

// Description sets the prescription-id slot, when known.
func (g *Guard) Description(description string) *Guard { g.description = description; return g }

// Language sets the preferred language for the rendered human text.
func (g *Guard) Language(lang string) *Guard {
	if lang != "" {
		g.language = lang
	}
	return g
}

// deriveOutcome maps a transition's result to an audit Outcome. A panic or
// a cancelled context always yields OutcomeSeriousFailure, regardless of
// any other failure classification.
func deriveOutcome(ctx context.Context, err error, internalFailure, panicked bool) Outcome {
	if panicked || (ctx != nil && ctx.Err() != nil) {
		return OutcomeSeriousFailure
	}
	if internalFailure {
		return OutcomeMajorFailure
	}
	if err == nil {
		return OutcomeOK
	}
	return OutcomeMinorFailure
}

// Done publishes one Event derived from *err (and ctx, for cancellation).
// If it is recovering from a panic, that one Event instead carries
// OutcomeSeriousFailure and Done re-panics afterwards. Call as
// `defer g.Done(ctx, &err)` with err as the function's named return.
func (g *Guard) Done(ctx context.Context, err *error) {
	if g.published {
		return
	}
	if r := recover(); r != nil {
		g.publishPanic(ctx)
		panic(r)
	}
	var e error
	if err != nil {
		e = *err
	}
	g.publish(ctx, e, false)
}

// DoneInternal is Done's variant for internal failures (§7 class 3):
// entropy exhaustion, signature-library failure, missing content-addressed
// lookup. These record OutcomeMajorFailure, except that a panic or a
// cancelled ctx records OutcomeSeriousFailure (see deriveOutcome).
func (g *Guard) DoneInternal(ctx context.Context, err *error) {
	if g.published {
		return
	}
	if r := recover(); r != nil {
		g.publishPanic(ctx)
		panic(r)
	}
	var e error
	if err != nil {
		e = *err
	}
	_ = e
	g.publish(ctx, e, true)
}

// publishPanic publishes the best-effort entry for a recovered panic,
// which always carries OutcomeSeriousFailure.
func (g *Guard) publishPanic(ctx context.Context) {
	g.published = true
	g.publishOutcome(ctx, deriveOutcome(ctx, nil, true, true))
}

func (g *Guard) publish(ctx context.Context, err error, internalFailure bool) {
	g.published = true
	g.publishOutcome(ctx, deriveOutcome(ctx, err, internalFailure, false))
}

func (g *Guard) publishOutcome(ctx context.Context, outcome Outcome) {
	var text map[string]string
	if g.catalog != nil {
		rendered := g.catalog.Render(g.subType, g.language, TemplateVars{
			AgentName:      g.agent.Name,
			PrescriptionID: g.description,
		})
		if rendered != "" {
			text = map[string]string{g.language: rendered}
		}
	}

	evt := Event{
		Action:      g.action,
		SubType:     g.subType,
		Agent:       g.agent,
		What:        g.what,
		PatientID:   g.patientID,
		Description: g.description,
		RecordedAt:  g.clock.Now(),
		Outcome:     outcome,
		Text:        text,
	}
	// Best-effort: a failure to append the audit entry itself must never
	// mask the original transition result, but it must not be silently
	// swallowed either — callers that need hard fail-closed semantics
	// should check Guard.LastRecordErr after Done returns.
	_, recordErr := g.store.Record(evt)
	g.lastRecordErr = recordErr
}
