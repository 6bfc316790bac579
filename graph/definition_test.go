package graph_test

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

func entryGraph() *graph.Definition {
	return &graph.Definition{
		Nodes: []graph.Node{
			{ID: "chat", Command: graph.DefaultCommand, Name: "Chat"},
			{ID: "sum", Command: "/summarize", Name: "Summarizer"},
			{ID: "tr", Command: "/translate", Name: "Translator"},
		},
	}
}

func TestSelectEntry(t *testing.T) {
	t.Parallel()

	def := entryGraph()

	tests := []struct {
		input string
		want  string
	}{
		{"/summarize this article", "sum"},
		{"/translate hola", "tr"},
		{"hello there", "chat"},
		{"please /summarize", "chat"},
		{"/SUMMARIZE shouting", "chat"},
	}
	for _, tt := range tests {
		node, err := def.SelectEntry(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, node.ID, tt.input)
	}
}

func TestSelectEntry_NoDefault(t *testing.T) {
	t.Parallel()

	def := &graph.Definition{Nodes: []graph.Node{{ID: "sum", Command: "/summarize"}}}

	_, err := def.SelectEntry("hello")
	var noEntry *graph.NoEntryNodeError
	require.ErrorAs(t, err, &noEntry)
	assert.Equal(t, "hello", noEntry.Input)

	node, err := def.SelectEntry("/summarize it")
	require.NoError(t, err)
	assert.Equal(t, "sum", node.ID)
}

func TestNoEntryNodeError_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	msg := (&graph.NoEntryNodeError{Input: strings.Repeat("é", 50)}).Error()
	assert.True(t, utf8.ValidString(msg))
	assert.Contains(t, msg, strconv.Quote(strings.Repeat("é", 40)+"..."))

	short := (&graph.NoEntryNodeError{Input: "héllo"}).Error()
	assert.Contains(t, short, `"héllo"`)
}

func TestDefinitionValidate(t *testing.T) {
	t.Parallel()

	nodes := []graph.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	tests := []struct {
		name    string
		def     *graph.Definition
		wantErr string
	}{
		{
			name: "valid",
			def: &graph.Definition{Nodes: nodes, Edges: []graph.Edge{
				{From: "a", To: "c", IsJoin: true, JoinPredecessors: []string{"a", "b"}},
				{From: "b", To: "c", IsJoin: true, JoinPredecessors: []string{"a", "b"}},
			}},
		},
		{name: "nil", def: nil, wantErr: "nil"},
		{name: "no nodes", def: &graph.Definition{}, wantErr: "no nodes"},
		{
			name:    "duplicate node",
			def:     &graph.Definition{Nodes: []graph.Node{{ID: "a"}, {ID: "a"}}},
			wantErr: "duplicate",
		},
		{
			name:    "unknown target",
			def:     &graph.Definition{Nodes: nodes, Edges: []graph.Edge{{From: "a", To: "z"}}},
			wantErr: "unknown target",
		},
		{
			name: "empty keyword",
			def: &graph.Definition{Nodes: nodes, Edges: []graph.Edge{
				{From: "a", To: "b", Condition: &graph.Condition{Kind: graph.ConditionKeyword}},
			}},
			wantErr: "requires a keyword",
		},
		{
			name: "unknown condition kind",
			def: &graph.Definition{Nodes: nodes, Edges: []graph.Edge{
				{From: "a", To: "b", Condition: &graph.Condition{Kind: "regex"}},
			}},
			wantErr: "unknown condition kind",
		},
		{
			name: "join without predecessors",
			def: &graph.Definition{Nodes: nodes, Edges: []graph.Edge{
				{From: "a", To: "c", IsJoin: true},
			}},
			wantErr: "no predecessors",
		},
		{
			name: "join source not listed",
			def: &graph.Definition{Nodes: nodes, Edges: []graph.Edge{
				{From: "a", To: "c", IsJoin: true, JoinPredecessors: []string{"b"}},
			}},
			wantErr: "not a listed predecessor",
		},
		{
			name: "unknown context node",
			def: &graph.Definition{Nodes: nodes, Edges: []graph.Edge{
				{From: "a", To: "b", ContextFrom: []string{"q"}},
			}},
			wantErr: "unknown context node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinitionClone(t *testing.T) {
	t.Parallel()

	threshold := 0.5
	def := &graph.Definition{
		Version: 3,
		Nodes: []graph.Node{
			{ID: "a", Interaction: &graph.InteractionPolicy{ConfidenceThreshold: &threshold}},
			{ID: "b"},
		},
		Edges: []graph.Edge{{
			From:           "a",
			To:             "b",
			Condition:      graph.KeywordCondition("go"),
			ContextFrom:    []string{"a"},
			MemoryOverride: &memory.Config{Strategy: memory.StrategyNone},
		}},
	}

	cp := def.Clone()
	require.Equal(t, def, cp)

	*cp.Nodes[0].Interaction.ConfidenceThreshold = 0.9
	cp.Edges[0].Condition.Keyword = "stop"
	cp.Edges[0].ContextFrom[0] = "b"
	cp.Edges[0].MemoryOverride.Strategy = memory.StrategyBuffer

	assert.Equal(t, 0.5, *def.Nodes[0].Interaction.ConfidenceThreshold)
	assert.Equal(t, "go", def.Edges[0].Condition.Keyword)
	assert.Equal(t, "a", def.Edges[0].ContextFrom[0])
	assert.Equal(t, memory.StrategyNone, def.Edges[0].MemoryOverride.Strategy)
}

func TestNodeDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Writer", graph.Node{ID: "w", Name: "Writer"}.DisplayName())
	assert.Equal(t, "w", graph.Node{ID: "w"}.DisplayName())
}
