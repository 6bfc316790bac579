package adapter

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
)

// LLMInvoker runs nodes against a langchaingo model.
type LLMInvoker struct {
	llm     llms.Model
	options []llms.CallOption
}

var _ graph.Invoker = (*LLMInvoker)(nil)

// NewLLMInvoker creates an invoker over llm. The call options are applied to
// every invocation.
func NewLLMInvoker(llm llms.Model, options ...llms.CallOption) *LLMInvoker {
	return &LLMInvoker{llm: llm, options: options}
}

// Invoke implements graph.Invoker.
func (l *LLMInvoker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	return l.generate(ctx, req, l.callOptions(req))
}

func (l *LLMInvoker) callOptions(req graph.InvokeRequest) []llms.CallOption {
	opts := append([]llms.CallOption(nil), l.options...)
	if model := req.Node.Intelligence.Model; model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	return opts
}

func (l *LLMInvoker) generate(ctx context.Context, req graph.InvokeRequest, opts []llms.CallOption) (*graph.InvokeResult, error) {
	resp, err := l.llm.GenerateContent(ctx, buildMessages(req), opts...)
	if err != nil {
		return nil, fmt.Errorf("node %s: generate content: %w", req.Node.ID, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return &graph.InvokeResult{}, nil
	}
	choice := resp.Choices[0]
	return &graph.InvokeResult{
		Output:     choice.Content,
		Confidence: confidenceFrom(choice.GenerationInfo),
	}, nil
}

// confidenceFrom reads a "confidence" entry some providers put in the
// generation info.
func confidenceFrom(info map[string]any) *float64 {
	switch v := info["confidence"].(type) {
	case float64:
		return graph.Confidence(v)
	case float32:
		return graph.Confidence(float64(v))
	}
	return nil
}

// buildMessages lays out the node prompt, the memory-trimmed history and the
// input as a chat transcript.
func buildMessages(req graph.InvokeRequest) []llms.MessageContent {
	history := ApplyMemory(req.History, req.Memory)
	msgs := make([]llms.MessageContent, 0, len(history)+2)
	if req.Node.Prompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.Node.Prompt))
	}
	for _, m := range history {
		msgs = append(msgs, llms.TextParts(messageType(m.Role), m.Content))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Input))
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case graph.RoleSystem:
		return llms.ChatMessageTypeSystem
	case graph.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// StreamingLLMInvoker is an LLMInvoker that forwards tokens as they arrive.
type StreamingLLMInvoker struct {
	*LLMInvoker
}

var _ graph.StreamingInvoker = (*StreamingLLMInvoker)(nil)

// NewStreamingLLMInvoker creates a streaming invoker over llm.
func NewStreamingLLMInvoker(llm llms.Model, options ...llms.CallOption) *StreamingLLMInvoker {
	return &StreamingLLMInvoker{LLMInvoker: NewLLMInvoker(llm, options...)}
}

// InvokeStream implements graph.StreamingInvoker.
func (s *StreamingLLMInvoker) InvokeStream(ctx context.Context, req graph.InvokeRequest, onChunk func(string) error) (*graph.InvokeResult, error) {
	opts := append(s.callOptions(req), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return onChunk(string(chunk))
	}))
	return s.generate(ctx, req, opts)
}

// LLMClassifier answers analysis conditions with a langchaingo model. Tiers
// maps a condition tier to a model name; unknown tiers use the model's
// default.
type LLMClassifier struct {
	llm   llms.Model
	tiers map[string]string
}

var _ graph.Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier creates a classifier over llm.
func NewLLMClassifier(llm llms.Model, tiers map[string]string) *LLMClassifier {
	return &LLMClassifier{llm: llm, tiers: tiers}
}

// Classify implements graph.Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, prompt string, tier string) (string, error) {
	var opts []llms.CallOption
	if model := c.tiers[tier]; model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	answer, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	return answer, nil
}
