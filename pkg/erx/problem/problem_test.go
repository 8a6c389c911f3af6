package problem_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erx-dienst/erx-core/pkg/erx/problem"
)

func TestNewBuildsSingleIssueOutcome(t *testing.T) {
	o := problem.New(problem.SeverityError, problem.CodeNotFound, "task T1 does not exist")

	require.Equal(t, "OperationOutcome", o.ResourceType)
	require.Len(t, o.Issues, 1)
	require.Equal(t, problem.SeverityError, o.Issues[0].Severity)
	require.Equal(t, problem.CodeNotFound, o.Issues[0].Code)
	require.Empty(t, o.Issues[0].Expression)
}

func TestWithExpressionAttachesToLastIssue(t *testing.T) {
	o := problem.New(problem.SeverityFatal, problem.CodeStructure, "malformed bundle").
		WithExpression("Bundle.entry[0].resource")

	require.Equal(t, "Bundle.entry[0].resource", o.Issues[0].Expression)
}

func TestWithExpressionOnEmptyOutcomeIsNoop(t *testing.T) {
	o := &problem.OperationOutcome{}
	got := o.WithExpression("ignored")
	require.Same(t, o, got)
	require.Empty(t, o.Issues)
}

func TestErrorImplementsErrorInterface(t *testing.T) {
	o := problem.New(problem.SeverityError, problem.CodeConflict, "task not in a state that allows this transition")
	var err error = o
	require.Contains(t, err.Error(), "conflict")
	require.Contains(t, err.Error(), "task not in a state")

	empty := &problem.OperationOutcome{}
	require.Equal(t, "operation outcome: no issues", empty.Error())

	var target *problem.OperationOutcome
	require.True(t, errors.As(err, &target))
}
