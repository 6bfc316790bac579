package memory

// Overrider resolves the configuration seen by a single invocation. Overrides
// are merged into a snapshot of the provider's value and never written back,
// so the provider keeps its base configuration while other branches run.
type Overrider struct {
	provider Provider
}

// NewOverrider wraps p.
func NewOverrider(p Provider) *Overrider {
	return &Overrider{provider: p}
}

// Provider returns the wrapped provider.
func (o *Overrider) Provider() Provider {
	return o.provider
}

// Resolve returns the provider's current configuration with override applied.
// A nil override yields the base configuration.
func (o *Overrider) Resolve(override *Config) Config {
	base := o.provider.MemoryConfig()
	if override == nil {
		return base
	}
	return base.Merge(*override)
}
