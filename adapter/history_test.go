package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

func TestApplyMemory(t *testing.T) {
	t.Parallel()

	u := func(s string) graph.Message { return graph.Message{Role: graph.RoleUser, Content: s} }
	a := func(s string) graph.Message { return graph.Message{Role: graph.RoleAssistant, Content: s} }
	sys := graph.Message{Role: graph.RoleSystem, Content: "Research: notes"}
	history := []graph.Message{u("q1"), a("a1"), u("q2"), a("a2"), sys}

	tests := []struct {
		name string
		cfg  memory.Config
		want []graph.Message
	}{
		{name: "buffer keeps everything", cfg: memory.Config{Strategy: memory.StrategyBuffer}, want: history},
		{name: "zero config keeps everything", cfg: memory.Config{}, want: history},
		{name: "none keeps system only", cfg: memory.Config{Strategy: memory.StrategyNone}, want: []graph.Message{sys}},
		{
			name: "sliding window",
			cfg:  memory.Config{Strategy: memory.StrategySlidingWindow, WindowSize: 2},
			want: []graph.Message{u("q2"), a("a2"), sys},
		},
		{
			// system costs 4 tokens, each turn 1
			name: "token budget drops oldest turns",
			cfg:  memory.Config{Strategy: memory.StrategyBuffer, MaxTokens: 6},
			want: []graph.Message{u("q2"), a("a2"), sys},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyMemory(history, tt.cfg))
		})
	}
}
