package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Engineer-s-Edge/enginedge-core-sub004/graph"

// startNodeSpan opens the OpenTelemetry span wrapping one node invocation.
func startNodeSpan(ctx context.Context, tracer trace.Tracer, runID string, node Node, round int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.node "+node.ID, trace.WithAttributes(
		attribute.String("graph.run_id", runID),
		attribute.String("graph.node.id", node.ID),
		attribute.String("graph.node.name", node.DisplayName()),
		attribute.String("graph.node.model", node.Intelligence.Model),
		attribute.Int("graph.node.round", round),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// TraceEvent represents different types of events in graph execution
type TraceEvent string

const (
	// TraceEventGraphStart indicates the start of graph execution
	TraceEventGraphStart TraceEvent = "graph_start"

	// TraceEventGraphEnd indicates the end of graph execution
	TraceEventGraphEnd TraceEvent = "graph_end"

	// TraceEventNodeStart indicates the start of node execution
	TraceEventNodeStart TraceEvent = "node_start"

	// TraceEventNodeEnd indicates the end of node execution
	TraceEventNodeEnd TraceEvent = "node_end"

	// TraceEventNodeError indicates an error occurred in node execution
	TraceEventNodeError TraceEvent = "node_error"
)

// TraceSpan represents a span of execution with timing
type TraceSpan struct {
	ID       string
	ParentID string
	Event    TraceEvent
	RunID    string
	NodeID   string
	NodeName string

	StartTime time.Time

	// EndTime is zero for ongoing spans
	EndTime  time.Time
	Duration time.Duration
	Error    error
}

// TraceHook defines the interface for trace event handlers
type TraceHook interface {
	// OnEvent is called when a span starts and again when it ends
	OnEvent(ctx context.Context, span *TraceSpan)
}

// TraceHookFunc is a function adapter for TraceHook
type TraceHookFunc func(ctx context.Context, span *TraceSpan)

// OnEvent implements the TraceHook interface
func (f TraceHookFunc) OnEvent(ctx context.Context, span *TraceSpan) {
	f(ctx, span)
}

// Tracer is a Listener that turns engine events into timed spans.
type Tracer struct {
	mu    sync.Mutex
	hooks []TraceHook
	spans map[string]*TraceSpan

	// root is the open graph span per run; open holds node spans per run and
	// node in start order.
	root map[string]*TraceSpan
	open map[string]map[string][]*TraceSpan
}

var _ Listener = (*Tracer)(nil)

// NewTracer creates a new tracer instance
func NewTracer() *Tracer {
	t := &Tracer{}
	t.Clear()
	return t
}

// AddHook registers a new trace hook
func (t *Tracer) AddHook(hook TraceHook) {
	t.mu.Lock()
	t.hooks = append(t.hooks, hook)
	t.mu.Unlock()
}

// OnGraphEvent implements Listener.
func (t *Tracer) OnGraphEvent(ctx context.Context, ev Event) {
	t.mu.Lock()
	var done *TraceSpan
	switch ev.Type {
	case EventGraphStart:
		span := t.start(ev, TraceEventGraphStart, "")
		t.root[ev.RunID] = span
		done = span
	case EventGraphEnd:
		if span := t.root[ev.RunID]; span != nil {
			delete(t.root, ev.RunID)
			t.end(span, ev, TraceEventGraphEnd)
			done = span
		}
	case EventNodeStart:
		parent := ""
		if root := t.root[ev.RunID]; root != nil {
			parent = root.ID
		}
		span := t.start(ev, TraceEventNodeStart, parent)
		nodes := t.open[ev.RunID]
		if nodes == nil {
			nodes = make(map[string][]*TraceSpan)
			t.open[ev.RunID] = nodes
		}
		nodes[ev.NodeID] = append(nodes[ev.NodeID], span)
		done = span
	case EventNodeComplete, EventNodeError:
		nodes := t.open[ev.RunID]
		if list := nodes[ev.NodeID]; len(list) > 0 {
			span := list[0]
			nodes[ev.NodeID] = list[1:]
			kind := TraceEventNodeEnd
			if ev.Type == EventNodeError {
				kind = TraceEventNodeError
			}
			t.end(span, ev, kind)
			done = span
		}
	}
	hooks := append([]TraceHook(nil), t.hooks...)
	var snapshot TraceSpan
	if done != nil {
		snapshot = *done
	}
	t.mu.Unlock()

	if done == nil {
		return
	}
	for _, hook := range hooks {
		hook.OnEvent(ctx, &snapshot)
	}
}

func (t *Tracer) start(ev Event, kind TraceEvent, parent string) *TraceSpan {
	span := &TraceSpan{
		ID:        uuid.NewString(),
		ParentID:  parent,
		Event:     kind,
		RunID:     ev.RunID,
		NodeID:    ev.NodeID,
		NodeName:  ev.NodeName,
		StartTime: ev.Timestamp,
	}
	t.spans[span.ID] = span
	return span
}

func (t *Tracer) end(span *TraceSpan, ev Event, kind TraceEvent) {
	span.Event = kind
	span.EndTime = ev.Timestamp
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Error = ev.Err
}

// GetSpans returns a copy of all collected spans
func (t *Tracer) GetSpans() map[string]*TraceSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*TraceSpan, len(t.spans))
	for id, s := range t.spans {
		cp := *s
		out[id] = &cp
	}
	return out
}

// Clear removes all collected spans
func (t *Tracer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = make(map[string]*TraceSpan)
	t.root = make(map[string]*TraceSpan)
	t.open = make(map[string]map[string][]*TraceSpan)
}
