package adapter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
)

// OpenAIOptions configures the go-openai backed invoker and classifier.
type OpenAIOptions struct {
	// Model is used when a node does not name one.
	Model string

	Temperature float32
	MaxTokens   int

	// DisableLogProbs stops requesting token log probabilities; invocations
	// then report no confidence.
	DisableLogProbs bool

	// Tiers maps a classifier tier to a model name.
	Tiers map[string]string
}

// OpenAIInvoker runs nodes through the chat completions API.
type OpenAIInvoker struct {
	client *openai.Client
	opts   OpenAIOptions
}

var _ graph.Invoker = (*OpenAIInvoker)(nil)

// NewOpenAIInvoker creates an invoker over client.
func NewOpenAIInvoker(client *openai.Client, opts OpenAIOptions) *OpenAIInvoker {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	return &OpenAIInvoker{client: client, opts: opts}
}

// Invoke implements graph.Invoker.
func (o *OpenAIInvoker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	model := o.opts.Model
	if m := req.Node.Intelligence.Model; m != "" {
		model = m
	}

	history := ApplyMemory(req.History, req.Memory)
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if req.Node.Prompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Node.Prompt})
	}
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Input})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
		LogProbs:    !o.opts.DisableLogProbs,
	})
	if err != nil {
		return nil, fmt.Errorf("node %s: chat completion: %w", req.Node.ID, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	return &graph.InvokeResult{
		Output:     choice.Message.Content,
		Confidence: logProbConfidence(choice.LogProbs),
	}, nil
}

// logProbConfidence is the geometric mean of the token probabilities.
func logProbConfidence(lp *openai.LogProbs) *float64 {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}
	sum := 0.0
	for _, tok := range lp.Content {
		sum += tok.LogProb
	}
	return graph.Confidence(math.Exp(sum / float64(len(lp.Content))))
}

func openAIRole(role string) string {
	switch role {
	case graph.RoleSystem:
		return openai.ChatMessageRoleSystem
	case graph.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// OpenAIClassifier answers analysis conditions through the chat completions
// API.
type OpenAIClassifier struct {
	client *openai.Client
	opts   OpenAIOptions
}

var _ graph.Classifier = (*OpenAIClassifier)(nil)

// NewOpenAIClassifier creates a classifier over client.
func NewOpenAIClassifier(client *openai.Client, opts OpenAIOptions) *OpenAIClassifier {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	return &OpenAIClassifier{client: client, opts: opts}
}

// Classify implements graph.Classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, prompt string, tier string) (string, error) {
	model := c.opts.Model
	if m := c.opts.Tiers[tier]; m != "" {
		model = m
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		MaxTokens: c.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
