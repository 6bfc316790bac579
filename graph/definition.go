package graph

import (
	"fmt"
	"strings"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

// DefaultCommand marks the node that receives input no other command claims.
const DefaultCommand = "_newmessage"

// ConditionKind identifies how an edge condition is evaluated.
type ConditionKind string

const (
	// ConditionKeyword fires when the source output contains the keyword.
	ConditionKeyword ConditionKind = "keyword"

	// ConditionAnalysis asks the classifier a yes/no question about the output.
	ConditionAnalysis ConditionKind = "analysis"

	// ConditionExpression evaluates a boolean expr-lang expression.
	ConditionExpression ConditionKind = "expression"
)

// Condition gates an edge. Exactly one payload field is meaningful per Kind.
type Condition struct {
	Kind           ConditionKind `json:"kind"`
	Keyword        string        `json:"keyword,omitempty"`
	AnalysisPrompt string        `json:"analysis_prompt,omitempty"`
	Tier           string        `json:"tier,omitempty"`
	Expression     string        `json:"expression,omitempty"`
}

// KeywordCondition builds a case-sensitive substring condition.
func KeywordCondition(keyword string) *Condition {
	return &Condition{Kind: ConditionKeyword, Keyword: keyword}
}

// AnalysisCondition builds a classifier-backed condition.
func AnalysisCondition(prompt, tier string) *Condition {
	return &Condition{Kind: ConditionAnalysis, AnalysisPrompt: prompt, Tier: tier}
}

// ExpressionCondition builds an expr-lang condition. The expression sees
// output (string), node (string) and outputs (map[string]string).
func ExpressionCondition(expression string) *Condition {
	return &Condition{Kind: ConditionExpression, Expression: expression}
}

func (c *Condition) validate() error {
	switch c.Kind {
	case ConditionKeyword:
		if c.Keyword == "" {
			return fmt.Errorf("keyword condition requires a keyword")
		}
	case ConditionAnalysis:
		if c.AnalysisPrompt == "" {
			return fmt.Errorf("analysis condition requires a prompt")
		}
	case ConditionExpression:
		if c.Expression == "" {
			return fmt.Errorf("expression condition requires an expression")
		}
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

// InteractionMode selects the post-invocation behaviour of a node.
type InteractionMode string

// ModeContinuousChat keeps a node in a chat loop until the user ends it.
const ModeContinuousChat InteractionMode = "continuous_chat"

// InteractionPolicy configures the human-in-the-loop gates of a node.
type InteractionPolicy struct {
	RequireApproval     bool            `json:"require_approval,omitempty"`
	ConfidenceThreshold *float64        `json:"confidence_threshold,omitempty"`
	AllowUserPrompting  bool            `json:"allow_user_prompting,omitempty"`
	Mode                InteractionMode `json:"mode,omitempty"`
}

// Intelligence names the model a node's sub-agent should use.
type Intelligence struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// Node is a unit of work delegated to a sub-agent.
type Node struct {
	ID           string             `json:"id"`
	Command      string             `json:"command,omitempty"`
	Name         string             `json:"name,omitempty"`
	Prompt       string             `json:"prompt,omitempty"`
	Intelligence Intelligence       `json:"intelligence"`
	Interaction  *InteractionPolicy `json:"interaction,omitempty"`
}

// DisplayName returns the node name, falling back to its id.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Edge is a transition between two nodes.
type Edge struct {
	From             string         `json:"from"`
	To               string         `json:"to"`
	Condition        *Condition     `json:"condition,omitempty"`
	ContextFrom      []string       `json:"context_from,omitempty"`
	MemoryOverride   *memory.Config `json:"memory_override,omitempty"`
	ExclusiveGroup   string         `json:"exclusive_group,omitempty"`
	Priority         int            `json:"priority,omitempty"`
	IsJoin           bool           `json:"is_join,omitempty"`
	JoinPredecessors []string       `json:"join_predecessors,omitempty"`
}

func (e Edge) clone() Edge {
	out := e
	if e.Condition != nil {
		c := *e.Condition
		out.Condition = &c
	}
	if e.MemoryOverride != nil {
		m := *e.MemoryOverride
		out.MemoryOverride = &m
	}
	out.ContextFrom = append([]string(nil), e.ContextFrom...)
	out.JoinPredecessors = append([]string(nil), e.JoinPredecessors...)
	return out
}

// Definition is the static description of a graph.
type Definition struct {
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
	Version int    `json:"version"`
}

// Validate checks the structural integrity of the definition.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("graph definition is nil")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("graph definition has no nodes")
	}

	ids := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	for i, e := range d.Edges {
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("edge %d: unknown source node %q", i, e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fmt.Errorf("edge %d: unknown target node %q", i, e.To)
		}
		if e.Condition != nil {
			if err := e.Condition.validate(); err != nil {
				return fmt.Errorf("edge %d (%s -> %s): %w", i, e.From, e.To, err)
			}
		}
		for _, id := range e.ContextFrom {
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("edge %d: unknown context node %q", i, id)
			}
		}
		if !e.IsJoin {
			continue
		}
		if len(e.JoinPredecessors) == 0 {
			return fmt.Errorf("edge %d: join edge into %q has no predecessors", i, e.To)
		}
		listed := false
		for _, id := range e.JoinPredecessors {
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("edge %d: unknown join predecessor %q", i, id)
			}
			if id == e.From {
				listed = true
			}
		}
		if !listed {
			return fmt.Errorf("edge %d: join source %q is not a listed predecessor of %q", i, e.From, e.To)
		}
	}
	return nil
}

// Node looks up a node by id.
func (d *Definition) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the edges leaving the given node in declaration order.
func (d *Definition) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// SelectEntry picks the node that should receive input. The first node whose
// command token is a literal prefix of the input wins; otherwise the node
// carrying DefaultCommand is used.
func (d *Definition) SelectEntry(input string) (Node, error) {
	for _, n := range d.Nodes {
		if n.Command == "" || n.Command == DefaultCommand {
			continue
		}
		if strings.HasPrefix(input, n.Command) {
			return n, nil
		}
	}
	for _, n := range d.Nodes {
		if n.Command == DefaultCommand {
			return n, nil
		}
	}
	return Node{}, &NoEntryNodeError{Input: input}
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := &Definition{
		Nodes:   make([]Node, len(d.Nodes)),
		Edges:   make([]Edge, len(d.Edges)),
		Version: d.Version,
	}
	for i, n := range d.Nodes {
		if n.Interaction != nil {
			p := *n.Interaction
			if p.ConfidenceThreshold != nil {
				t := *p.ConfidenceThreshold
				p.ConfidenceThreshold = &t
			}
			n.Interaction = &p
		}
		out.Nodes[i] = n
	}
	for i, e := range d.Edges {
		out.Edges[i] = e.clone()
	}
	return out
}
