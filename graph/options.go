package graph

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/log"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

const defaultStreamBuffer = 64

type engineOptions struct {
	invoker              Invoker
	classifier           Classifier
	checkpoints          CheckpointManager
	memory               memory.Provider
	listeners            []Listener
	logger               log.Logger
	tracer               trace.Tracer
	autoCheckpoint       bool
	interactionTimeout   time.Duration
	maxConfidenceRetries int
	streamBuffer         int
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithInvoker sets the sub-agent invoker. Required.
func WithInvoker(inv Invoker) Option {
	return func(o *engineOptions) { o.invoker = inv }
}

// WithClassifier sets the classifier used by analysis conditions.
func WithClassifier(c Classifier) Option {
	return func(o *engineOptions) { o.classifier = c }
}

// WithCheckpointManager replaces the default in-memory checkpoint manager.
func WithCheckpointManager(m CheckpointManager) Option {
	return func(o *engineOptions) { o.checkpoints = m }
}

// WithCheckpointConfig builds a StoreCheckpointManager from cfg and applies
// its AutoSave flag.
func WithCheckpointConfig(cfg CheckpointConfig) Option {
	return func(o *engineOptions) {
		o.checkpoints = NewStoreCheckpointManager(cfg)
		o.autoCheckpoint = cfg.AutoSave
	}
}

// WithMemoryProvider sets the provider edge memory overrides apply to.
func WithMemoryProvider(p memory.Provider) Option {
	return func(o *engineOptions) { o.memory = p }
}

// WithListener registers an event listener.
func WithListener(l Listener) Option {
	return func(o *engineOptions) { o.listeners = append(o.listeners, l) }
}

// WithLogger sets the engine logger. Defaults to log.GetDefaultLogger().
func WithLogger(l log.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithTracer sets the OpenTelemetry tracer for node spans. Defaults to the
// global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = t }
}

// WithAutoCheckpoint toggles checkpoint creation at honored pauses.
func WithAutoCheckpoint(enabled bool) Option {
	return func(o *engineOptions) { o.autoCheckpoint = enabled }
}

// WithInteractionTimeout makes pending interactions expire after d.
// Zero waits indefinitely.
func WithInteractionTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.interactionTimeout = d }
}

// WithMaxConfidenceRetries caps low-confidence re-invocations per dispatch.
// Zero means unlimited.
func WithMaxConfidenceRetries(n int) Option {
	return func(o *engineOptions) { o.maxConfidenceRetries = n }
}

// WithStreamBuffer sets the capacity of the output stream channel.
func WithStreamBuffer(n int) Option {
	return func(o *engineOptions) { o.streamBuffer = n }
}
