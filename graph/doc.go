// Package graph provides the execution engine for graphs of sub-agent nodes.
//
// A Definition describes nodes, each delegated to an external reasoning
// sub-agent through an Invoker, and the edges between them. Edges may be
// conditional, grouped into exclusive choices, or marked as joins that wait
// for several predecessors before the target runs.
//
// # Core Concepts
//
// ## Entry selection
// Input starting with a node's command token (for example "/summarize") is
// routed to that node. Anything else goes to the node whose command is
// DefaultCommand.
//
// ## Conditions
// A Condition is one of three kinds: keyword (case-sensitive substring),
// analysis (a yes/no question answered by a Classifier) or expression (an
// expr-lang boolean over output, node and outputs). Edges sharing an
// ExclusiveGroup are tried in ascending Priority and at most one fires.
//
// ## Runs
// Each run is driven by a single coordinator goroutine that owns the
// ExecutionState. Node invocations and edge evaluation run concurrently and
// report back to the coordinator, so parallel branches never share mutable
// state.
//
// ## Human in the loop
// Nodes may require approval before they run, ask the user to confirm a
// low-confidence result, or stay in a chat loop until the user ends it.
// Pending requests are surfaced as interaction chunks and answered through
// ProvideUserApproval, ProvideUserInput and ProvideChatAction.
//
// ## Pause, checkpoint and restore
// Pause requests are honored before a node, after a node or between nodes.
// Every honored pause can produce a checkpoint, and RestoreFromCheckpoint
// rolls the run, or an idle engine followed by Replay, back to it.
//
// # Example Usage
//
//	def := &graph.Definition{
//		Nodes: []graph.Node{
//			{ID: "chat", Command: graph.DefaultCommand, Name: "Chat"},
//			{ID: "billing", Name: "Billing"},
//		},
//		Edges: []graph.Edge{
//			{From: "chat", To: "billing", Condition: graph.KeywordCondition("invoice")},
//		},
//	}
//
//	engine, err := graph.NewEngine(def, graph.WithInvoker(invoker))
//	if err != nil {
//		return err
//	}
//
//	stream, err := engine.Start(ctx, "where is my invoice?", nil)
//	if err != nil {
//		return err
//	}
//	for chunk := range stream {
//		fmt.Println(chunk.NodeName, chunk.Text)
//	}
package graph
