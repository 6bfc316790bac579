package graph

import (
	"context"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

// InvokeRequest is what a sub-agent receives for one node invocation.
type InvokeRequest struct {
	RunID   string
	Node    Node
	Input   string
	History []Message

	// Memory is the configuration in effect for this invocation, including
	// any override declared on the inbound edge.
	Memory memory.Config
}

// InvokeResult is the outcome of one invocation. Confidence is nil when the
// sub-agent reports no confidence signal.
type InvokeResult struct {
	Output     string
	Confidence *float64
}

// Invoker runs a node's sub-agent.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

// StreamingInvoker is an Invoker that can report output incrementally.
// onChunk errors abort the invocation.
type StreamingInvoker interface {
	Invoker
	InvokeStream(ctx context.Context, req InvokeRequest, onChunk func(chunk string) error) (*InvokeResult, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req InvokeRequest) (*InvokeResult, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	return f(ctx, req)
}

// Classifier answers the yes/no prompts of analysis conditions.
type Classifier interface {
	Classify(ctx context.Context, prompt string, tier string) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, prompt string, tier string) (string, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, prompt string, tier string) (string, error) {
	return f(ctx, prompt, tier)
}

// Confidence is a convenience for building InvokeResult values.
func Confidence(v float64) *float64 {
	return &v
}
