// EnginEdge Core - Graph Execution for Multi-Agent Workflows in Go
//
// EnginEdge Core runs user-defined graphs of sub-agents. Each node delegates
// work to a language model backed sub-agent; edges decide, from the text a
// node produced, which nodes run next. Runs can be paused, checkpointed,
// restored and steered by a human at well-defined points.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/Engineer-s-Edge/enginedge-core-sub004
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/Engineer-s-Edge/enginedge-core-sub004/adapter"
//		"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
//		"github.com/tmc/langchaingo/llms/openai"
//	)
//
//	func main() {
//		llm, _ := openai.New()
//
//		def := &graph.Definition{
//			Nodes: []graph.Node{
//				{ID: "triage", Command: graph.DefaultCommand, Prompt: "Classify the request."},
//				{ID: "billing", Prompt: "Answer billing questions."},
//			},
//			Edges: []graph.Edge{
//				{From: "triage", To: "billing", Condition: graph.KeywordCondition("billing")},
//			},
//		}
//
//		engine, err := graph.NewEngine(def,
//			graph.WithInvoker(adapter.NewLLMInvoker(llm)),
//			graph.WithClassifier(adapter.NewLLMClassifier(llm, nil)),
//		)
//		if err != nil {
//			panic(err)
//		}
//
//		stream, _ := engine.Start(context.Background(), "Where is my invoice?", nil)
//		for chunk := range stream {
//			fmt.Printf("[%s] %s\n", chunk.NodeName, chunk.Text)
//		}
//	}
//
// # Key Features
//
//   - Entry Selection: Slash-command prefixes pick the starting node
//   - Conditional Routing: Keyword, model-judged and expression conditions
//   - Exclusive Groups: At most one branch of a group fires, by priority
//   - Joins: A node waits for all of its declared predecessors
//   - Pause and Resume: Before, after or between nodes, with checkpoints
//   - Human in the Loop: Approval gates, confidence prompts, chat loops
//   - Memory Overrides: Per-edge memory settings scoped to one invocation
//
// # Packages
//
//   - graph: the definition model, the execution engine and its events
//   - adapter: invokers and classifiers over langchaingo and go-openai
//   - memory: memory configuration and scoped overrides
//   - store: checkpoint persistence (memory, file, sqlite, redis, postgres)
//   - log: the logging interface and its golog backend
//
// # Checkpoint Stores
//
// The engine keeps checkpoints in memory by default. Durable backends share
// the store.CheckpointStore interface:
//
//	s, _ := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{Path: "runs.db"})
//	engine, _ := graph.NewEngine(def,
//		graph.WithInvoker(inv),
//		graph.WithCheckpointConfig(graph.CheckpointConfig{Store: s, AutoSave: true}),
//	)
package enginedge // import "github.com/Engineer-s-Edge/enginedge-core-sub004"
