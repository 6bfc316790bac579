package adapter

import (
	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

// ApplyMemory returns the part of history a sub-agent should see under cfg.
// System messages are always kept; user and assistant turns are dropped
// oldest first. Relative order is preserved.
func ApplyMemory(history []graph.Message, cfg memory.Config) []graph.Message {
	var turns []int
	budget := cfg.MaxTokens
	for i, m := range history {
		if m.Role == graph.RoleSystem {
			budget -= estimateTokens(m.Content)
			continue
		}
		turns = append(turns, i)
	}

	switch cfg.Strategy {
	case memory.StrategyNone:
		turns = nil
	case memory.StrategySlidingWindow:
		if cfg.WindowSize > 0 && len(turns) > cfg.WindowSize {
			turns = turns[len(turns)-cfg.WindowSize:]
		}
	}

	if cfg.MaxTokens > 0 {
		keep := len(turns)
		for i := len(turns) - 1; i >= 0; i-- {
			budget -= estimateTokens(history[turns[i]].Content)
			if budget < 0 {
				break
			}
			keep = i
		}
		turns = turns[keep:]
	}

	kept := make(map[int]bool, len(turns))
	for _, i := range turns {
		kept[i] = true
	}
	out := make([]graph.Message, 0, len(history))
	for i, m := range history {
		if m.Role == graph.RoleSystem || kept[i] {
			out = append(out, m)
		}
	}
	return out
}

// estimateTokens uses the common four-characters-per-token heuristic.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
