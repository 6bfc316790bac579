package graph

import (
	"context"
	"sync"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/log"
)

// EventType names an engine lifecycle event.
type EventType string

const (
	EventGraphStart            EventType = "graph-start"
	EventGraphEnd              EventType = "graph-end"
	EventNodeStart             EventType = "node-start"
	EventNodeComplete          EventType = "node-complete"
	EventNodeError             EventType = "node-error"
	EventExclusiveGroupNoMatch EventType = "graph-exclusive-group-no-match"
	EventJoinNodeWaiting       EventType = "graph-join-node-waiting"
	EventJoinNodeReady         EventType = "graph-join-node-ready"
	EventCheckpointCreated     EventType = "checkpoint-created"
	EventCheckpointRestored    EventType = "checkpoint-restored"
	EventPaused                EventType = "graph-paused"
	EventResumed               EventType = "graph-resumed"
	EventInteractionRequested  EventType = "interaction-requested"
	EventInteractionResolved   EventType = "interaction-resolved"
	EventConditionError        EventType = "condition-error"
)

// Event is delivered to listeners. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	RunID     string
	Timestamp time.Time

	NodeID   string
	NodeName string

	// Target is the destination node of an edge or join.
	Target string

	// Group is the exclusive group of a no-match event.
	Group string

	// Waiting lists the join predecessors still outstanding.
	Waiting []string

	CheckpointID string
	Pause        PauseMode
	Interaction  *InteractionInfo
	Duration     time.Duration
	Err          error
}

// Listener observes engine events. Events of a run are delivered in order
// from the run coordinator; a listener must not block on engine calls that
// are served by the coordinator (State, Checkpoint, RestoreFromCheckpoint).
type Listener interface {
	OnGraphEvent(ctx context.Context, event Event)
}

// ListenerFunc is a function adapter for Listener
type ListenerFunc func(ctx context.Context, event Event)

// OnGraphEvent implements the Listener interface
func (f ListenerFunc) OnGraphEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// listenerSet fans an event out to every listener and waits for all of them.
type listenerSet struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    log.Logger
}

func (s *listenerSet) add(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *listenerSet) notify(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, listener := range listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("listener panic on %s: %v", event.Type, r)
				}
			}()
			l.OnGraphEvent(ctx, event)
		}(listener)
	}
	wg.Wait()
}
