package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/log"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

// Engine executes a graph definition. At most one run is active at a time.
type Engine struct {
	def       atomic.Pointer[Definition]
	opts      engineOptions
	evaluator *ConditionEvaluator
	broker    *InteractionBroker
	overrider *memory.Overrider
	events    *listenerSet
	logger    log.Logger

	ctrlMu    sync.Mutex
	pauseReq  PauseMode
	resumeSeq uint64

	reconfMu sync.Mutex

	mu       sync.Mutex
	active   *run
	last     *ExecutionState
	restored bool
}

// NewEngine validates def and creates an engine for it.
func NewEngine(def *Definition, opts ...Option) (*Engine, error) {
	o := engineOptions{
		autoCheckpoint: true,
		streamBuffer:   defaultStreamBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph definition: %w", err)
	}
	if o.invoker == nil {
		return nil, errors.New("an invoker is required")
	}
	if o.logger == nil {
		o.logger = log.GetDefaultLogger()
	}
	if o.checkpoints == nil {
		o.checkpoints = NewStoreCheckpointManager(DefaultCheckpointConfig())
	}
	if o.memory == nil {
		o.memory = memory.NewStaticProvider(memory.Config{})
	}
	if o.tracer == nil {
		o.tracer = defaultTracer()
	}
	if o.streamBuffer < 0 {
		o.streamBuffer = 0
	}

	e := &Engine{
		opts:      o,
		evaluator: NewConditionEvaluator(o.classifier),
		broker:    NewInteractionBroker(),
		overrider: memory.NewOverrider(o.memory),
		events:    &listenerSet{logger: o.logger},
		logger:    o.logger,
	}
	e.def.Store(def.Clone())
	for _, l := range o.listeners {
		e.events.add(l)
	}
	return e, nil
}

// AddListener registers an event listener.
func (e *Engine) AddListener(l Listener) {
	e.events.add(l)
}

// Definition returns a copy of the current graph definition.
func (e *Engine) Definition() *Definition {
	return e.def.Load().Clone()
}

// Start selects the entry node for input and begins a run. The returned
// channel is closed when the run ends.
func (e *Engine) Start(ctx context.Context, input string, history []Message) (<-chan Chunk, error) {
	def := e.def.Load()
	entry, err := def.SelectEntry(input)
	if err != nil {
		return nil, err
	}

	return e.launch(ctx, func() (*ExecutionState, error) {
		return &ExecutionState{
			RunID:        generateRunID(),
			Input:        input,
			Conversation: append([]Message(nil), history...),
			Pending:      []Dispatch{{NodeID: entry.ID, Input: input}},
			NodeOutputs:  map[string]string{},
			GraphVersion: def.Version,
		}, nil
	})
}

// Replay continues from the state installed by RestoreFromCheckpoint while no
// run was active.
func (e *Engine) Replay(ctx context.Context) (<-chan Chunk, error) {
	return e.launch(ctx, func() (*ExecutionState, error) {
		if !e.restored || e.last == nil {
			return nil, ErrNoRestoredState
		}
		return e.last.Clone(), nil
	})
}

func (e *Engine) launch(ctx context.Context, prepare func() (*ExecutionState, error)) (<-chan Chunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return nil, ErrRunInProgress
	}
	st, err := prepare()
	if err != nil {
		return nil, err
	}

	r := newRun(ctx, e, st)
	e.active = r
	e.restored = false
	e.logger.Info("run %s started", r.id)
	go r.loop()
	return r.out, nil
}

// finishRun is called by the coordinator before it closes the stream.
func (e *Engine) finishRun(r *run, final *ExecutionState) {
	e.mu.Lock()
	if e.active == r {
		e.active = nil
		e.last = final
	}
	e.mu.Unlock()

	e.ctrlMu.Lock()
	e.pauseReq = PauseNone
	e.ctrlMu.Unlock()
}

func (e *Engine) current() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) pauseState() (PauseMode, uint64) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	return e.pauseReq, e.resumeSeq
}

// Pause requests a pause at the next boundary matching mode.
func (e *Engine) Pause(mode PauseMode) {
	e.ctrlMu.Lock()
	e.pauseReq = mode
	e.ctrlMu.Unlock()
	e.logger.Debug("pause requested at %s", mode)
	e.wake()
}

// Resume clears the pause request and releases a paused run.
func (e *Engine) Resume() {
	e.ctrlMu.Lock()
	e.pauseReq = PauseNone
	e.resumeSeq++
	e.ctrlMu.Unlock()
	e.wake()
}

func (e *Engine) wake() {
	if r := e.current(); r != nil {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Paused reports whether the active run is paused at a boundary.
func (e *Engine) Paused() bool {
	r := e.current()
	return r != nil && r.paused.Load()
}

// Cancel aborts the active run. In-flight invocations see their context
// cancelled and pending interactions are released.
func (e *Engine) Cancel() {
	if r := e.current(); r != nil {
		e.logger.Info("run %s cancelled", r.id)
		r.cancel()
	}
	e.broker.ReleaseAll()
}

// ProvideUserApproval answers a pending approval gate. It reports whether a
// matching request was pending.
func (e *Engine) ProvideUserApproval(nodeID string, approved bool) bool {
	return e.broker.ProvideApproval(nodeID, approved)
}

// ProvideUserInput answers a pending confidence prompt (accept, retry or
// replacement input) or sends the next message of a chat loop.
func (e *Engine) ProvideUserInput(nodeID, value string) bool {
	return e.broker.ProvideInput(nodeID, value)
}

// ProvideChatAction ends a pending chat loop when action is "end".
func (e *Engine) ProvideChatAction(nodeID, action string) bool {
	return e.broker.ProvideChatAction(nodeID, action)
}

// PendingInteractions lists unresolved interaction requests.
func (e *Engine) PendingInteractions() []InteractionInfo {
	return e.broker.Pending()
}

// RestoreFromCheckpoint replaces the execution state with the one captured
// by checkpointID. Unknown ids leave the state untouched and return false.
// With no active run the state is installed for Replay.
func (e *Engine) RestoreFromCheckpoint(ctx context.Context, checkpointID string) bool {
	st, err := e.opts.checkpoints.Restore(ctx, checkpointID)
	if err != nil {
		var nf *CheckpointNotFoundError
		if errors.As(err, &nf) {
			e.logger.Warn("restore: %v", err)
		} else {
			e.logger.Error("restore checkpoint %s: %v", checkpointID, err)
		}
		return false
	}

	if r := e.current(); r != nil {
		if r.do(func(r *run) { r.restore(st, checkpointID) }) {
			return true
		}
	}

	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		e.logger.Warn("restore: a run started concurrently, checkpoint %s not applied", checkpointID)
		return false
	}
	e.installDefinition(st.Graph)
	st.Paused = false
	e.last = st
	e.restored = true
	e.mu.Unlock()

	e.logger.Info("checkpoint %s restored for replay", checkpointID)
	e.events.notify(ctx, Event{Type: EventCheckpointRestored, RunID: st.RunID, CheckpointID: checkpointID})
	return true
}

func (e *Engine) installDefinition(def *Definition) {
	if def == nil {
		return
	}
	if err := def.Validate(); err != nil {
		e.logger.Warn("checkpoint carries an invalid graph definition, keeping current: %v", err)
		return
	}
	e.def.Store(def.Clone())
}

// Checkpoint captures the current state on demand.
func (e *Engine) Checkpoint(ctx context.Context, label string) (string, error) {
	if r := e.current(); r != nil {
		var (
			id  string
			err error
		)
		if r.do(func(r *run) { id, err = r.checkpoint(ctx, label) }) {
			return id, err
		}
	}

	e.mu.Lock()
	st := e.last.Clone()
	e.mu.Unlock()
	if st == nil {
		return "", errors.New("no execution state to checkpoint")
	}
	id, err := e.opts.checkpoints.Create(ctx, st, label)
	if err != nil {
		return "", err
	}
	e.events.notify(ctx, Event{Type: EventCheckpointCreated, RunID: st.RunID, CheckpointID: id})
	return id, nil
}

// Checkpoints lists the checkpoints of the active or most recent run.
func (e *Engine) Checkpoints(ctx context.Context) ([]*Checkpoint, error) {
	runID := ""
	if r := e.current(); r != nil {
		runID = r.id
	} else {
		e.mu.Lock()
		if e.last != nil {
			runID = e.last.RunID
		}
		e.mu.Unlock()
	}
	if runID == "" {
		return nil, nil
	}
	return e.opts.checkpoints.List(ctx, runID)
}

// Reconfigure edits the graph definition. It is only allowed while the active
// run is paused or no run is active; the version is bumped on success.
func (e *Engine) Reconfigure(edit func(def *Definition) error) error {
	if r := e.current(); r != nil && !r.paused.Load() {
		return ErrReconfigurationWhileRunning
	}

	e.reconfMu.Lock()
	defer e.reconfMu.Unlock()

	cur := e.def.Load()
	next := cur.Clone()
	if err := edit(next); err != nil {
		return err
	}
	next.Version = cur.Version + 1
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid graph definition: %w", err)
	}
	e.def.Store(next)
	e.logger.Info("graph reconfigured to version %d", next.Version)
	return nil
}

// State returns a deep copy of the active run's state, or of the last
// finished or restored state when idle.
func (e *Engine) State() *ExecutionState {
	if r := e.current(); r != nil {
		var st *ExecutionState
		if r.do(func(r *run) { st = r.snapshot() }) {
			return st
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.Clone()
}

// History returns the node execution log of State().
func (e *Engine) History() []HistoryEntry {
	st := e.State()
	if st == nil {
		return nil
	}
	return st.History
}
