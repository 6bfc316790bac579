package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type msgKind int

const (
	msgToken msgKind = iota
	msgOutput
	msgInteraction
	msgInteractionResolved
	msgNodeDone
	msgRouted
)

// taskMsg is what node and routing tasks report to the coordinator.
type taskMsg struct {
	kind  msgKind
	epoch uint64
	task  int64

	nodeID   string
	text     string
	input    string
	round    int
	streamed bool
	err      error

	interaction *InteractionInfo
	resolution  Resolution

	completion Completion
	route      RouteResult
}

type routedCompletion struct {
	Completion
	result RouteResult
}

// run is the coordinator of one execution. Every field below the channels is
// owned by the loop goroutine.
type run struct {
	e      *Engine
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	out  chan Chunk
	msgs chan taskMsg
	cmds chan func(*run)
	wake chan struct{}
	done chan struct{}

	paused   atomic.Bool
	pausedAt uint64

	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc

	input        string
	conversation []Message
	outputs      map[string]string
	history      []HistoryEntry
	pending      []Dispatch
	unrouted     []Completion
	routed       []routedCompletion
	joins        *JoinCoordinator

	nextTask int64
	running  map[int64]Dispatch
	started  map[int64]time.Time
	routing  map[int64]Completion

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func newRun(ctx context.Context, e *Engine, st *ExecutionState) *run {
	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		e:      e,
		id:     st.RunID,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Chunk, e.opts.streamBuffer),
		msgs:   make(chan taskMsg, 64),
		cmds:   make(chan func(*run)),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		joins:  NewJoinCoordinator(),
		locks:  make(map[string]*sync.Mutex),
	}
	r.epochCtx, r.epochCancel = context.WithCancel(ctx)
	for _, n := range e.def.Load().Nodes {
		r.locks[n.ID] = &sync.Mutex{}
	}
	r.install(st)
	return r
}

// install loads st as the live state. Dispatches that were in flight when st
// was captured are queued again ahead of the pending ones.
func (r *run) install(st *ExecutionState) {
	st = st.Clone()
	r.input = st.Input
	r.conversation = st.Conversation
	r.outputs = st.NodeOutputs
	r.history = st.History
	r.pending = append(st.Running, st.Pending...)
	r.unrouted = st.Unrouted
	r.routed = nil
	r.joins.Restore(st.Joins)
	r.running = make(map[int64]Dispatch)
	r.started = make(map[int64]time.Time)
	r.routing = make(map[int64]Completion)
}

func (r *run) loop() {
	defer r.cancel()

	r.notify(Event{Type: EventGraphStart})
	r.pump()
	for !r.idle() {
		select {
		case m := <-r.msgs:
			r.handle(m)
		case fn := <-r.cmds:
			fn(r)
		case <-r.wake:
			r.checkResume()
		case <-r.ctx.Done():
			r.e.broker.ReleaseAll()
			r.finish(r.ctx.Err())
			return
		}
		r.pump()
	}
	r.finish(nil)
}

func (r *run) idle() bool {
	return !r.paused.Load() &&
		len(r.running) == 0 &&
		len(r.routing) == 0 &&
		len(r.routed) == 0 &&
		len(r.unrouted) == 0 &&
		len(r.pending) == 0
}

func (r *run) finish(err error) {
	r.epochCancel()
	final := r.snapshot()
	final.Paused = false
	r.e.finishRun(r, final)
	close(r.done)

	if err != nil {
		r.e.logger.Warn("run %s ended: %v", r.id, err)
	} else {
		r.e.logger.Info("run %s completed", r.id)
	}
	r.notify(Event{Type: EventGraphEnd, Err: err})
	close(r.out)
}

// do runs fn on the coordinator goroutine. It reports false if the run ended
// before fn could run.
func (r *run) do(fn func(*run)) bool {
	executed := make(chan struct{})
	select {
	case r.cmds <- func(r *run) {
		defer close(executed)
		fn(r)
	}:
	case <-r.done:
		return false
	}
	<-executed
	return true
}

func (r *run) emit(c Chunk) {
	select {
	case r.out <- c:
	case <-r.ctx.Done():
	}
}

func (r *run) notify(ev Event) {
	ev.RunID = r.id
	r.e.events.notify(r.ctx, ev)
}

// send is used by tasks; it gives up once the task's context is done.
func (r *run) send(ctx context.Context, m taskMsg) {
	select {
	case r.msgs <- m:
	case <-ctx.Done():
	}
}

func (r *run) newTask() int64 {
	r.nextTask++
	return r.nextTask
}

func (r *run) nodeName(id string) string {
	if n, ok := r.e.def.Load().Node(id); ok {
		return n.DisplayName()
	}
	return id
}

func (r *run) nodeLock(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m := r.locks[id]
	if m == nil {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

func (r *run) handle(m taskMsg) {
	if m.epoch != r.epoch {
		return
	}

	switch m.kind {
	case msgToken:
		r.emit(Chunk{Type: ChunkToken, NodeID: m.nodeID, NodeName: r.nodeName(m.nodeID), Text: m.text})

	case msgOutput:
		name := r.nodeName(m.nodeID)
		r.outputs[m.nodeID] = m.text
		r.history = append(r.history, HistoryEntry{
			NodeID:    m.nodeID,
			NodeName:  name,
			Input:     m.input,
			Output:    m.text,
			Round:     m.round,
			Timestamp: time.Now(),
		})
		if !m.streamed {
			r.emit(Chunk{Type: ChunkOutput, NodeID: m.nodeID, NodeName: name, Text: m.text})
		}

	case msgInteraction:
		r.emit(Chunk{
			Type:        ChunkInteraction,
			NodeID:      m.nodeID,
			NodeName:    r.nodeName(m.nodeID),
			Text:        m.interaction.Proposed,
			Interaction: m.interaction,
		})
		r.notify(Event{Type: EventInteractionRequested, NodeID: m.nodeID, Interaction: m.interaction})

	case msgInteractionResolved:
		ev := Event{Type: EventInteractionResolved, NodeID: m.nodeID, Interaction: m.interaction}
		if m.resolution.Expired {
			ev.Err = ErrInteractionExpired
		}
		r.notify(ev)

	case msgNodeDone:
		delete(r.running, m.task)
		dur := time.Since(r.started[m.task])
		delete(r.started, m.task)
		name := r.nodeName(m.nodeID)

		if m.err != nil {
			if errors.Is(m.err, ErrUserRejected) {
				r.e.logger.Info("node %s rejected by user", m.nodeID)
			} else {
				r.e.logger.Error("node %s failed: %v", m.nodeID, m.err)
			}
			r.emit(Chunk{Type: ChunkError, NodeID: m.nodeID, NodeName: name, Text: nodeErrorMarker(m.err)})
			r.notify(Event{Type: EventNodeError, NodeID: m.nodeID, NodeName: name, Duration: dur, Err: m.err})
			return
		}
		r.notify(Event{Type: EventNodeComplete, NodeID: m.nodeID, NodeName: name, Duration: dur})
		r.unrouted = append(r.unrouted, Completion{NodeID: m.nodeID, Output: m.text})

	case msgRouted:
		delete(r.routing, m.task)
		r.routed = append(r.routed, routedCompletion{Completion: m.completion, result: m.route})
	}
}

// pump advances the staged queues until a pause is honored or nothing is
// left to do. Completions are routed first, then route results applied, then
// queued dispatches started.
func (r *run) pump() {
	for !r.paused.Load() {
		switch {
		case len(r.unrouted) > 0:
			c := r.unrouted[0]
			if r.sample(PauseAfterNode, c.NodeID) {
				return
			}
			r.unrouted = r.unrouted[1:]
			r.launchRoute(c)

		case len(r.routed) > 0:
			rc := r.routed[0]
			r.routed = r.routed[1:]
			r.applyRoute(rc)
			// A completion that fired nothing leaves no boundary to stop at.
			if len(rc.result.Fired) == 0 && len(r.pending) == 0 {
				continue
			}
			if r.sample(PauseBetweenNodes, rc.NodeID) {
				return
			}

		case len(r.pending) > 0:
			d := r.pending[0]
			if r.sample(PauseBeforeNode, d.NodeID) {
				return
			}
			r.pending = r.pending[1:]
			r.dispatch(d)

		default:
			return
		}
	}
}

// sample honors the pause request if it targets this boundary.
func (r *run) sample(mode PauseMode, nodeID string) bool {
	req, seq := r.e.pauseState()
	if req == PauseNone || req != mode {
		return false
	}
	r.paused.Store(true)
	r.pausedAt = seq
	r.e.logger.Info("run %s paused at %s %s", r.id, mode, nodeID)
	r.notify(Event{Type: EventPaused, NodeID: nodeID, Pause: mode})

	if r.e.opts.autoCheckpoint {
		label := fmt.Sprintf("pause %s %s", mode, nodeID)
		if _, err := r.checkpoint(r.ctx, label); err != nil {
			r.e.logger.Error("run %s: checkpoint at pause failed: %v", r.id, err)
		}
	}
	return true
}

func (r *run) checkResume() {
	if !r.paused.Load() {
		return
	}
	if _, seq := r.e.pauseState(); seq > r.pausedAt {
		r.paused.Store(false)
		r.e.logger.Info("run %s resumed", r.id)
		r.notify(Event{Type: EventResumed})
	}
}

func (r *run) checkpoint(ctx context.Context, label string) (string, error) {
	id, err := r.e.opts.checkpoints.Create(ctx, r.snapshot(), label)
	if err != nil {
		return "", err
	}
	r.notify(Event{Type: EventCheckpointCreated, CheckpointID: id})
	return id, nil
}

func (r *run) launchRoute(c Completion) {
	edges := r.e.def.Load().Outgoing(c.NodeID)
	task := r.newTask()
	r.routing[task] = c
	outputs := maps.Clone(r.outputs)
	epoch, ctx := r.epoch, r.epochCtx

	go func() {
		res := r.e.evaluator.Route(ctx, edges, c.Output, outputs)
		for _, err := range res.Errors {
			r.e.logger.Warn("run %s: %v", r.id, err)
		}
		r.send(ctx, taskMsg{kind: msgRouted, epoch: epoch, task: task, completion: c, route: res})
	}()
}

func (r *run) applyRoute(rc routedCompletion) {
	for _, err := range rc.result.Errors {
		ev := Event{Type: EventConditionError, NodeID: rc.NodeID, Err: err}
		var ce *ConditionEvaluationError
		if errors.As(err, &ce) {
			ev.Target = ce.To
		}
		r.notify(ev)
	}
	for _, group := range rc.result.Unmatched {
		r.notify(Event{Type: EventExclusiveGroupNoMatch, NodeID: rc.NodeID, Group: group})
	}

	for _, fired := range rc.result.Fired {
		edge := fired.clone()
		if !edge.IsJoin {
			r.pending = append(r.pending, Dispatch{NodeID: edge.To, Input: rc.Output, Via: &edge})
			continue
		}

		out := r.joins.Arrive(edge, rc.Output)
		switch out.Status {
		case JoinWaiting, JoinReady:
			r.notify(Event{Type: EventJoinNodeWaiting, NodeID: rc.NodeID, Target: edge.To, Waiting: out.Missing})
			if out.Status == JoinWaiting {
				continue
			}
			r.notify(Event{Type: EventJoinNodeReady, NodeID: rc.NodeID, Target: edge.To})
			r.pending = append(r.pending, Dispatch{NodeID: edge.To, Input: r.joinInput(out.Arrivals), Via: &edge})
		case JoinFired:
			r.e.logger.Debug("run %s: join %s already dispatched", r.id, edge.To)
		case JoinIgnored:
			r.e.logger.Warn("run %s: %s is not a predecessor of join %s", r.id, edge.From, edge.To)
		}
	}
}

func (r *run) joinInput(arrivals []JoinArrival) string {
	parts := make([]string, 0, len(arrivals))
	for _, a := range arrivals {
		parts = append(parts, fmt.Sprintf("%s: %s", r.nodeName(a.NodeID), a.Output))
	}
	return strings.Join(parts, "\n\n")
}

func (r *run) dispatch(d Dispatch) {
	node, ok := r.e.def.Load().Node(d.NodeID)
	if !ok {
		r.e.logger.Warn("run %s: node %s no longer exists, dropping dispatch", r.id, d.NodeID)
		return
	}

	task := r.newTask()
	r.running[task] = d
	r.started[task] = time.Now()
	r.notify(Event{Type: EventNodeStart, NodeID: node.ID, NodeName: node.DisplayName()})

	go r.runNode(nodeJob{
		task:     task,
		epoch:    r.epoch,
		ctx:      r.epochCtx,
		node:     node,
		dispatch: d.clone(),
		history:  r.historyFor(d.Via),
	})
}

// historyFor builds the conversation a dispatch sees: the run history plus a
// system message per contextFrom output.
func (r *run) historyFor(via *Edge) []Message {
	history := slices.Clone(r.conversation)
	if via == nil {
		return history
	}
	for _, id := range via.ContextFrom {
		out, ok := r.outputs[id]
		if !ok {
			continue
		}
		history = append(history, Message{
			Role:    RoleSystem,
			Content: fmt.Sprintf("%s: %s", r.nodeName(id), out),
		})
	}
	return history
}

func (r *run) snapshot() *ExecutionState {
	def := r.e.def.Load()
	req, _ := r.e.pauseState()

	running := make([]Dispatch, 0, len(r.running))
	for _, task := range slices.Sorted(maps.Keys(r.running)) {
		running = append(running, r.running[task].clone())
	}
	unrouted := make([]Completion, 0, len(r.routing)+len(r.routed)+len(r.unrouted))
	for _, task := range slices.Sorted(maps.Keys(r.routing)) {
		unrouted = append(unrouted, r.routing[task])
	}
	for _, rc := range r.routed {
		unrouted = append(unrouted, rc.Completion)
	}
	unrouted = append(unrouted, r.unrouted...)

	st := &ExecutionState{
		RunID:        r.id,
		Input:        r.input,
		Conversation: slices.Clone(r.conversation),
		Frontier:     frontier(running, r.pending),
		Pending:      cloneDispatches(r.pending),
		Running:      running,
		Unrouted:     unrouted,
		NodeOutputs:  maps.Clone(r.outputs),
		History:      slices.Clone(r.history),
		PauseRequest: req,
		Paused:       r.paused.Load(),
		Joins:        r.joins.Snapshot(),
		GraphVersion: def.Version,
		Graph:        def.Clone(),
	}
	if st.NodeOutputs == nil {
		st.NodeOutputs = map[string]string{}
	}
	return st
}

// restore swaps in st. Tasks of the previous epoch are cancelled and their
// messages ignored; their pending interactions are released.
func (r *run) restore(st *ExecutionState, checkpointID string) {
	r.epochCancel()
	r.epoch++
	r.epochCtx, r.epochCancel = context.WithCancel(r.ctx)
	r.e.broker.ReleaseAll()

	r.e.installDefinition(st.Graph)
	r.install(st)
	r.e.logger.Info("run %s restored from checkpoint %s", r.id, checkpointID)
	r.notify(Event{Type: EventCheckpointRestored, CheckpointID: checkpointID})
}
