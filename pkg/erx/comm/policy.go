package comm

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

// statePolicy evaluates "task.status in {...}" as a declarative CEL
// predicate per Communication kind (§4.2 state gate), the way the
// teacher's core/pkg/kernel CEL-based policy decision points express
// allow-rules as compiled expressions rather than hard-coded Go
// conditionals.
type statePolicy struct {
	programs map[Kind]cel.Program
}

// newStatePolicy compiles one CEL program per gated kind from gate's
// allowed-status lists.
func newStatePolicy(gate map[Kind][]task.Status) (*statePolicy, error) {
	env, err := cel.NewEnv(cel.Variable("status", cel.StringType))
	if err != nil {
		return nil, fmt.Errorf("comm: cel env: %w", err)
	}

	p := &statePolicy{programs: make(map[Kind]cel.Program, len(gate))}
	for kind, allowed := range gate {
		expr := "status in ["
		for i, s := range allowed {
			if i > 0 {
				expr += ", "
			}
			expr += fmt.Sprintf("%q", string(s))
		}
		expr += "]"

		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("comm: compile state gate for %s: %w", kind, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("comm: program state gate for %s: %w", kind, err)
		}
		p.programs[kind] = prg
	}
	return p, nil
}

// gated reports whether kind has a state gate at all, and if so whether
// status satisfies it.
func (p *statePolicy) gated(kind Kind, status task.Status) (gated, allowed bool) {
	prg, ok := p.programs[kind]
	if !ok {
		return false, false
	}
	out, _, err := prg.Eval(map[string]any{"status": string(status)})
	if err != nil {
		return true, false
	}
	allowed, _ = out.Value().(bool)
	return true, allowed
}
