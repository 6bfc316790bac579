// Package memory holds the memory configuration a run's sub-agents read from,
// and the per-invocation override an edge may substitute.
package memory

import (
	"sync"
)

// Strategy names how conversation history is assembled for a sub-agent.
type Strategy string

const (
	StrategyBuffer        Strategy = "buffer"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategySummary       Strategy = "summary"
	StrategyNone          Strategy = "none"
)

// Config is the active memory configuration of a run.
type Config struct {
	Strategy     Strategy `json:"strategy,omitempty"`
	WindowSize   int      `json:"window_size,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	SummaryModel string   `json:"summary_model,omitempty"`
}

// Merge returns c with every non-zero field of override applied.
func (c Config) Merge(override Config) Config {
	out := c
	if override.Strategy != "" {
		out.Strategy = override.Strategy
	}
	if override.WindowSize != 0 {
		out.WindowSize = override.WindowSize
	}
	if override.MaxTokens != 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.SummaryModel != "" {
		out.SummaryModel = override.SummaryModel
	}
	return out
}

// Provider exposes the run's memory configuration.
type Provider interface {
	MemoryConfig() Config
	SetMemoryConfig(Config)
}

// StaticProvider is a Provider backed by a single guarded value.
type StaticProvider struct {
	mu  sync.RWMutex
	cfg Config
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns a provider starting at cfg.
func NewStaticProvider(cfg Config) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

func (p *StaticProvider) MemoryConfig() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *StaticProvider) SetMemoryConfig(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}
