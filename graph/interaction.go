package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InteractionKind is the closed set of human-in-the-loop request types.
type InteractionKind string

const (
	InteractionApproval InteractionKind = "approval"
	InteractionInput    InteractionKind = "input"
	InteractionChat     InteractionKind = "chat"
)

// Values understood by ProvideUserInput and ProvideChatAction.
const (
	ActionAccept = "accept"
	ActionRetry  = "retry"
	ActionEnd    = "end"
)

// InteractionInfo is the public view of a pending request.
type InteractionInfo struct {
	ID        string          `json:"id"`
	NodeID    string          `json:"node_id"`
	Kind      InteractionKind `json:"kind"`
	Proposed  string          `json:"proposed"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// Resolution is the answer to an interaction.
type Resolution struct {
	Approved bool
	Value    string

	// Expired is set when the request timed out and the kind's default was
	// applied: approval rejected, input accepted, chat ended.
	Expired bool
}

// InteractionRequest is a pending request registered with the broker.
type InteractionRequest struct {
	InteractionInfo

	resolved chan Resolution
	released chan struct{}
	once     sync.Once
}

func (r *InteractionRequest) release() {
	r.once.Do(func() { close(r.released) })
}

func expiredResolution(kind InteractionKind) Resolution {
	switch kind {
	case InteractionInput:
		return Resolution{Value: ActionAccept, Expired: true}
	case InteractionChat:
		return Resolution{Value: ActionEnd, Expired: true}
	default:
		return Resolution{Approved: false, Expired: true}
	}
}

// InteractionBroker holds at most one pending request per node and hands
// user answers to the waiting node task.
type InteractionBroker struct {
	mu      sync.Mutex
	pending map[string]*InteractionRequest
	now     func() time.Time
}

// NewInteractionBroker creates an empty broker.
func NewInteractionBroker() *InteractionBroker {
	return &InteractionBroker{
		pending: make(map[string]*InteractionRequest),
		now:     time.Now,
	}
}

// Open registers a request for nodeID. A previous request for the same node
// is released. A zero timeout never expires.
func (b *InteractionBroker) Open(nodeID string, kind InteractionKind, proposed string, timeout time.Duration) *InteractionRequest {
	now := b.now()
	req := &InteractionRequest{
		InteractionInfo: InteractionInfo{
			ID:        uuid.NewString(),
			NodeID:    nodeID,
			Kind:      kind,
			Proposed:  proposed,
			CreatedAt: now,
		},
		resolved: make(chan Resolution, 1),
		released: make(chan struct{}),
	}
	if timeout > 0 {
		req.ExpiresAt = now.Add(timeout)
	}

	b.mu.Lock()
	prev := b.pending[nodeID]
	b.pending[nodeID] = req
	b.mu.Unlock()

	if prev != nil {
		prev.release()
	}
	return req
}

// Wait blocks until req is resolved, released, expired or ctx is done.
func (b *InteractionBroker) Wait(ctx context.Context, req *InteractionRequest) (Resolution, error) {
	var expiry <-chan time.Time
	if !req.ExpiresAt.IsZero() {
		timer := time.NewTimer(req.ExpiresAt.Sub(b.now()))
		defer timer.Stop()
		expiry = timer.C
	}

	select {
	case res := <-req.resolved:
		return res, nil
	case <-req.released:
		return Resolution{}, ErrInteractionReleased
	case <-ctx.Done():
		b.drop(req)
		return Resolution{}, ctx.Err()
	case <-expiry:
		if !b.drop(req) {
			// Resolved concurrently with the timer.
			select {
			case res := <-req.resolved:
				return res, nil
			case <-req.released:
				return Resolution{}, ErrInteractionReleased
			}
		}
		return expiredResolution(req.Kind), nil
	}
}

// drop removes req if it is still the pending request of its node.
func (b *InteractionBroker) drop(req *InteractionRequest) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[req.NodeID] != req {
		return false
	}
	delete(b.pending, req.NodeID)
	return true
}

func (b *InteractionBroker) resolve(nodeID string, accepts func(InteractionKind) bool, res func(InteractionKind) Resolution) bool {
	b.mu.Lock()
	req := b.pending[nodeID]
	if req == nil || !accepts(req.Kind) {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, nodeID)
	b.mu.Unlock()

	req.resolved <- res(req.Kind)
	return true
}

// ProvideApproval resolves a pending approval request.
func (b *InteractionBroker) ProvideApproval(nodeID string, approved bool) bool {
	return b.resolve(nodeID,
		func(k InteractionKind) bool { return k == InteractionApproval },
		func(InteractionKind) Resolution { return Resolution{Approved: approved} })
}

// ProvideInput resolves a pending input request with accept, retry or free
// text, or a pending chat request with the next user message.
func (b *InteractionBroker) ProvideInput(nodeID, value string) bool {
	return b.resolve(nodeID,
		func(k InteractionKind) bool { return k == InteractionInput || k == InteractionChat },
		func(InteractionKind) Resolution { return Resolution{Value: value} })
}

// ProvideChatAction resolves a pending chat request. Only ActionEnd is
// recognised.
func (b *InteractionBroker) ProvideChatAction(nodeID, action string) bool {
	if action != ActionEnd {
		return false
	}
	return b.resolve(nodeID,
		func(k InteractionKind) bool { return k == InteractionChat },
		func(InteractionKind) Resolution { return Resolution{Value: ActionEnd} })
}

// Pending lists the open requests ordered by creation time.
func (b *InteractionBroker) Pending() []InteractionInfo {
	b.mu.Lock()
	out := make([]InteractionInfo, 0, len(b.pending))
	for _, req := range b.pending {
		out = append(out, req.InteractionInfo)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ReleaseAll drops every pending request without resolving it. Waiters
// receive ErrInteractionReleased.
func (b *InteractionBroker) ReleaseAll() {
	b.mu.Lock()
	reqs := b.pending
	b.pending = make(map[string]*InteractionRequest)
	b.mu.Unlock()

	for _, req := range reqs {
		req.release()
	}
}
