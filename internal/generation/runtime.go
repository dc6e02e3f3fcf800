package generation

import "context"

// Token is the output of one decoding step.
type Token struct {
	Text string
	// EOS is set when the runtime reached the end of the sequence. Text may
	// still carry a final chunk.
	EOS bool
}

// SequenceParams describes a decoding context to open on the runtime.
type SequenceParams struct {
	Prompt       string
	Stop         []string
	MaxNewTokens int
}

// Sequence is one decoding context inside a shared runtime.
type Sequence interface {
	// Step produces the next token. It may block until the runtime has
	// output for this sequence or ctx is done.
	Step(ctx context.Context) (Token, error)

	// Close releases the runtime resources held by the sequence. It may be
	// called while a Step is blocked.
	Close() error
}

// Runtime is the shared model runtime the service multiplexes jobs onto.
type Runtime interface {
	Open(ctx context.Context, p SequenceParams) (Sequence, error)
}

// StepResult pairs a token with the error of a batched step.
type StepResult struct {
	Token Token
	Err   error
}

// BatchRuntime advances several sequences in one combined step. Results are
// returned in the order of seqs.
type BatchRuntime interface {
	Runtime
	StepBatch(ctx context.Context, seqs []Sequence) []StepResult
}

// Pinger is implemented by runtimes that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}
