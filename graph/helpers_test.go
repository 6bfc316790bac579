package graph_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/graph"
	"github.com/Engineer-s-Edge/enginedge-core-sub004/log"
)

// fakeInvoker records requests and answers with respond, or "<id> out".
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []graph.InvokeRequest
	respond func(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, req graph.InvokeRequest) (*graph.InvokeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(ctx, req)
	}
	return &graph.InvokeResult{Output: req.Node.ID + " out"}, nil
}

func (f *fakeInvoker) callsFor(id string) []graph.InvokeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []graph.InvokeRequest
	for _, c := range f.calls {
		if c.Node.ID == id {
			out = append(out, c)
		}
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []graph.Event
}

func (r *recorder) OnGraphEvent(_ context.Context, ev graph.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) of(tp graph.EventType) []graph.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []graph.Event
	for _, ev := range r.events {
		if ev.Type == tp {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, tp graph.EventType, n int) []graph.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.of(tp)) >= n
	}, 5*time.Second, 5*time.Millisecond, "waiting for %d %s events", n, tp)
	return r.of(tp)
}

func newEngine(t *testing.T, def *graph.Definition, opts ...graph.Option) (*graph.Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]graph.Option{
		graph.WithLogger(log.NoOpLogger{}),
		graph.WithListener(rec),
	}, opts...)
	e, err := graph.NewEngine(def, opts...)
	require.NoError(t, err)
	return e, rec
}

// drain reads the stream to completion, calling onChunk for every element.
func drain(t *testing.T, ch <-chan graph.Chunk, onChunk func(graph.Chunk)) []graph.Chunk {
	t.Helper()
	var out []graph.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
			if onChunk != nil {
				onChunk(c)
			}
		case <-timeout:
			t.Fatal("run did not finish")
			return out
		}
	}
}

func chunksOf(chunks []graph.Chunk, tp graph.ChunkType) []graph.Chunk {
	var out []graph.Chunk
	for _, c := range chunks {
		if c.Type == tp {
			out = append(out, c)
		}
	}
	return out
}

func chain(ids ...string) *graph.Definition {
	def := &graph.Definition{}
	for i, id := range ids {
		n := graph.Node{ID: id, Name: id}
		if i == 0 {
			n.Command = graph.DefaultCommand
		}
		def.Nodes = append(def.Nodes, n)
		if i > 0 {
			def.Edges = append(def.Edges, graph.Edge{From: ids[i-1], To: id})
		}
	}
	return def
}
