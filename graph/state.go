package graph

import (
	"maps"
	"time"
)

// PauseMode names the boundary at which a pause request is honored.
type PauseMode string

const (
	PauseNone         PauseMode = ""
	PauseBeforeNode   PauseMode = "before_node"
	PauseAfterNode    PauseMode = "after_node"
	PauseBetweenNodes PauseMode = "between_nodes"
)

// Dispatch is a queued invocation of a node.
type Dispatch struct {
	NodeID string `json:"node_id"`
	Input  string `json:"input"`
	Via    *Edge  `json:"via,omitempty"`
}

func (d Dispatch) clone() Dispatch {
	if d.Via != nil {
		e := d.Via.clone()
		d.Via = &e
	}
	return d
}

// Completion is a node output whose outgoing edges have not been applied yet.
type Completion struct {
	NodeID string `json:"node_id"`
	Output string `json:"output"`
}

// HistoryEntry records one node invocation.
type HistoryEntry struct {
	NodeID    string    `json:"node_id"`
	NodeName  string    `json:"node_name"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Round     int       `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// JoinState is the serialisable form of the join coordinator.
type JoinState struct {
	Arrived map[string]map[string]string `json:"arrived,omitempty"`
	Fired   map[string]bool              `json:"fired,omitempty"`
}

func (j JoinState) clone() JoinState {
	out := JoinState{}
	if j.Arrived != nil {
		out.Arrived = make(map[string]map[string]string, len(j.Arrived))
		for k, v := range j.Arrived {
			out.Arrived[k] = maps.Clone(v)
		}
	}
	out.Fired = maps.Clone(j.Fired)
	return out
}

// ExecutionState is the mutable state of a run. The run coordinator owns the
// live value; everything handed out is a deep copy.
type ExecutionState struct {
	RunID        string            `json:"run_id"`
	Input        string            `json:"input"`
	Conversation []Message         `json:"conversation,omitempty"`
	Frontier     []string          `json:"frontier"`
	Pending      []Dispatch        `json:"pending,omitempty"`
	Running      []Dispatch        `json:"running,omitempty"`
	Unrouted     []Completion      `json:"unrouted,omitempty"`
	NodeOutputs  map[string]string `json:"node_outputs"`
	History      []HistoryEntry    `json:"history"`
	PauseRequest PauseMode         `json:"pause_request,omitempty"`
	Paused       bool              `json:"paused,omitempty"`
	Joins        JoinState         `json:"joins"`
	GraphVersion int               `json:"graph_version"`
	Graph        *Definition       `json:"graph,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}
	out := *s
	out.Conversation = append([]Message(nil), s.Conversation...)
	out.Frontier = append([]string(nil), s.Frontier...)
	out.Pending = cloneDispatches(s.Pending)
	out.Running = cloneDispatches(s.Running)
	out.Unrouted = append([]Completion(nil), s.Unrouted...)
	out.NodeOutputs = maps.Clone(s.NodeOutputs)
	if out.NodeOutputs == nil {
		out.NodeOutputs = map[string]string{}
	}
	out.History = append([]HistoryEntry(nil), s.History...)
	out.Joins = s.Joins.clone()
	out.Graph = s.Graph.Clone()
	return &out
}

func cloneDispatches(in []Dispatch) []Dispatch {
	if in == nil {
		return nil
	}
	out := make([]Dispatch, len(in))
	for i, d := range in {
		out[i] = d.clone()
	}
	return out
}

// frontier lists the distinct node ids of running then pending dispatches.
func frontier(running, pending []Dispatch) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range [][]Dispatch{running, pending} {
		for _, d := range list {
			if _, ok := seen[d.NodeID]; ok {
				continue
			}
			seen[d.NodeID] = struct{}{}
			out = append(out, d.NodeID)
		}
	}
	return out
}
