package signature

import "fmt"

// Stage is one step of a verification pipeline: it consumes the previous
// stage's output and produces the next (§4.7 "Chain builder").
type Stage interface {
	Name() string
	Run(ctx *PipelineContext, in []byte) ([]byte, error)
}

// PipelineContext carries cross-stage state a Stage may need beyond its
// input bytes: the document being processed and the reference being
// resolved.
type PipelineContext struct {
	Document     []byte
	ReferenceURI string
	Certificate  []byte // DER-encoded X.509 certificate from KeyInfo
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	name string
	fn   func(ctx *PipelineContext, in []byte) ([]byte, error)
}

// NewStage builds a Stage from a name and function, for inline pipeline
// construction (SelectNode, EnvelopedSignature, C14n, Hash, ...).
func NewStage(name string, fn func(ctx *PipelineContext, in []byte) ([]byte, error)) Stage {
	return StageFunc{name: name, fn: fn}
}

func (s StageFunc) Name() string { return s.name }
func (s StageFunc) Run(ctx *PipelineContext, in []byte) ([]byte, error) { return s.fn(ctx, in) }

// Chain is an ordered, composable list of stages. Running it pushes the
// pipeline context's document through each stage in turn, each stage's
// output feeding the next.
type Chain struct {
	stages []Stage
}

// NewChain builds a Chain from stages, in run order.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Append returns a new Chain with stage appended, for builders that add a
// default stage (e.g. inclusive C14N) only when the declared pipeline
// omits one.
func (c *Chain) Append(stage Stage) *Chain {
	return &Chain{stages: append(append([]Stage{}, c.stages...), stage)}
}

// Run executes every stage in order, returning the final stage's output.
func (c *Chain) Run(ctx *PipelineContext, in []byte) ([]byte, error) {
	data := in
	for _, stage := range c.stages {
		out, err := stage.Run(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("signature: stage %s: %w", stage.Name(), err)
		}
		data = out
	}
	return data, nil
}
