// Package adapter provides sub-agent and classifier implementations that
// connect the graph engine to language model backends.
//
// The engine only depends on the graph.Invoker and graph.Classifier
// interfaces. This package supplies concrete implementations over the two
// client libraries the project already uses, plus decorators that add
// resilience to any invoker.
//
// # Core Concepts
//
// ## LangChain Models
//
// LLMInvoker and LLMClassifier wrap any langchaingo llms.Model. The node's
// prompt becomes the system message, the request history is replayed in
// order and the node input is sent as the final user message. The memory
// configuration in effect for the invocation decides how much history is
// replayed (see ApplyMemory).
//
// StreamingLLMInvoker reports tokens through llms.WithStreamingFunc so the
// engine can forward them as token chunks.
//
// ## OpenAI
//
// OpenAIInvoker talks to the chat completions API through go-openai and
// requests token log probabilities. The confidence reported to the engine is
// the geometric mean of the token probabilities, which is what confidence
// thresholds on nodes are compared against.
//
// ## Decorators
//
// RetryInvoker retries failed invocations with exponential backoff and
// TimeoutInvoker bounds a single invocation. Both wrap any graph.Invoker.
//
// Example:
//
//	llm, _ := openai.New()
//	inv := adapter.NewRetryInvoker(adapter.NewLLMInvoker(llm), nil)
//	engine, err := graph.NewEngine(def,
//		graph.WithInvoker(inv),
//		graph.WithClassifier(adapter.NewLLMClassifier(llm, nil)),
//	)
package adapter
