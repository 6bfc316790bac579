package graph

// JoinStatus is the result of recording a join arrival.
type JoinStatus int

const (
	// JoinWaiting means some predecessors have not arrived yet.
	JoinWaiting JoinStatus = iota

	// JoinReady means this arrival completed the set; dispatch the target.
	JoinReady

	// JoinFired means the target was already dispatched in this run.
	JoinFired

	// JoinIgnored means the arriving node is not a listed predecessor.
	JoinIgnored
)

// JoinArrival is a predecessor output collected by the coordinator.
type JoinArrival struct {
	NodeID string
	Output string
}

// JoinOutcome describes the join after an arrival.
type JoinOutcome struct {
	Status JoinStatus

	// Missing lists predecessors still outstanding when Status is JoinWaiting.
	Missing []string

	// Arrivals holds predecessor outputs in JoinPredecessors order when
	// Status is JoinReady.
	Arrivals []JoinArrival
}

// JoinCoordinator tracks arrivals at join targets and releases each target
// exactly once per run. It is owned by the run coordinator and is not safe for
// concurrent use.
type JoinCoordinator struct {
	arrived map[string]map[string]string
	fired   map[string]bool
}

// NewJoinCoordinator returns an empty coordinator.
func NewJoinCoordinator() *JoinCoordinator {
	j := &JoinCoordinator{}
	j.Reset()
	return j
}

// Reset clears every arrival and fired marker.
func (j *JoinCoordinator) Reset() {
	j.arrived = make(map[string]map[string]string)
	j.fired = make(map[string]bool)
}

// Arrive records that edge.From produced output for the join target edge.To.
func (j *JoinCoordinator) Arrive(edge Edge, output string) JoinOutcome {
	target := edge.To
	if j.fired[target] {
		return JoinOutcome{Status: JoinFired}
	}

	listed := false
	for _, id := range edge.JoinPredecessors {
		if id == edge.From {
			listed = true
			break
		}
	}
	if !listed {
		return JoinOutcome{Status: JoinIgnored}
	}

	got := j.arrived[target]
	if got == nil {
		got = make(map[string]string)
		j.arrived[target] = got
	}
	got[edge.From] = output

	var missing []string
	for _, id := range edge.JoinPredecessors {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return JoinOutcome{Status: JoinWaiting, Missing: missing}
	}

	arrivals := make([]JoinArrival, 0, len(edge.JoinPredecessors))
	for _, id := range edge.JoinPredecessors {
		arrivals = append(arrivals, JoinArrival{NodeID: id, Output: got[id]})
	}
	j.fired[target] = true
	delete(j.arrived, target)
	return JoinOutcome{Status: JoinReady, Arrivals: arrivals}
}

// Snapshot returns a copy of the coordinator state.
func (j *JoinCoordinator) Snapshot() JoinState {
	return JoinState{Arrived: j.arrived, Fired: j.fired}.clone()
}

// Restore replaces the coordinator state with a copy of s.
func (j *JoinCoordinator) Restore(s JoinState) {
	c := s.clone()
	j.arrived = c.Arrived
	j.fired = c.Fired
	if j.arrived == nil {
		j.arrived = make(map[string]map[string]string)
	}
	if j.fired == nil {
		j.fired = make(map[string]bool)
	}
}
