package graph

import (
	"context"
	"slices"

	"github.com/Engineer-s-Edge/enginedge-core-sub004/memory"
)

type nodeJob struct {
	task     int64
	epoch    uint64
	ctx      context.Context
	node     Node
	dispatch Dispatch
	history  []Message
}

// runNode executes one dispatch. Invocations of the same node are serialised
// for the lifetime of the run.
func (r *run) runNode(job nodeJob) {
	lock := r.nodeLock(job.node.ID)
	lock.Lock()
	defer lock.Unlock()

	output, err := r.executeNode(job.ctx, job)
	r.send(job.ctx, taskMsg{
		kind:   msgNodeDone,
		epoch:  job.epoch,
		task:   job.task,
		nodeID: job.node.ID,
		text:   output,
		err:    err,
	})
}

func (r *run) executeNode(ctx context.Context, job nodeJob) (string, error) {
	policy := job.node.Interaction
	if policy == nil {
		policy = &InteractionPolicy{}
	}

	if policy.RequireApproval {
		res, err := r.ask(ctx, job, InteractionApproval, job.dispatch.Input)
		if err != nil {
			return "", err
		}
		if !res.Approved {
			return "", ErrUserRejected
		}
	}

	input := job.dispatch.Input
	history := job.history
	round := 0
	result, err := r.invoke(ctx, job, input, history, round)
	if err != nil {
		return "", err
	}

	for retries := 0; needsConfirmation(policy, result); retries++ {
		if limit := r.e.opts.maxConfidenceRetries; limit > 0 && retries >= limit {
			r.e.logger.Info("node %s: %d confidence retries used, accepting output", job.node.ID, retries)
			break
		}
		res, err := r.ask(ctx, job, InteractionInput, result.Output)
		if err != nil {
			return "", err
		}
		if res.Value == ActionAccept {
			break
		}
		if res.Value != ActionRetry && res.Value != "" {
			input = res.Value
		}
		round++
		if result, err = r.invoke(ctx, job, input, history, round); err != nil {
			return "", err
		}
	}

	if policy.Mode == ModeContinuousChat {
		history = slices.Clone(history)
		for {
			history = append(history,
				Message{Role: RoleUser, Content: input},
				Message{Role: RoleAssistant, Content: result.Output},
			)
			res, err := r.ask(ctx, job, InteractionChat, result.Output)
			if err != nil {
				return "", err
			}
			if res.Value == ActionEnd {
				break
			}
			input = res.Value
			round++
			if result, err = r.invoke(ctx, job, input, history, round); err != nil {
				return "", err
			}
		}
	}
	return result.Output, nil
}

// needsConfirmation reports whether the user must confirm a result: its
// confidence is below the threshold, or it carries none and prompting is
// allowed.
func needsConfirmation(p *InteractionPolicy, res *InvokeResult) bool {
	if p.ConfidenceThreshold == nil {
		return false
	}
	if res.Confidence == nil {
		return p.AllowUserPrompting
	}
	return *res.Confidence < *p.ConfidenceThreshold
}

func (r *run) ask(ctx context.Context, job nodeJob, kind InteractionKind, proposed string) (Resolution, error) {
	req := r.e.broker.Open(job.node.ID, kind, proposed, r.e.opts.interactionTimeout)
	info := req.InteractionInfo
	r.send(ctx, taskMsg{kind: msgInteraction, epoch: job.epoch, task: job.task, nodeID: job.node.ID, interaction: &info})

	res, err := r.e.broker.Wait(ctx, req)
	if err != nil {
		return Resolution{}, err
	}
	r.send(ctx, taskMsg{kind: msgInteractionResolved, epoch: job.epoch, task: job.task, nodeID: job.node.ID, interaction: &info, resolution: res})
	return res, nil
}

// invoke calls the sub-agent once. A memory override on the inbound edge
// shapes this call's request only.
func (r *run) invoke(ctx context.Context, job nodeJob, input string, history []Message, round int) (res *InvokeResult, err error) {
	ctx, span := startNodeSpan(ctx, r.e.opts.tracer, r.id, job.node, round)
	defer func() { endSpan(span, err) }()

	var override *memory.Config
	if via := job.dispatch.Via; via != nil {
		override = via.MemoryOverride
	}

	req := InvokeRequest{
		RunID:   r.id,
		Node:    job.node,
		Input:   input,
		History: slices.Clone(history),
		Memory:  r.e.overrider.Resolve(override),
	}

	streamed := false
	if si, ok := r.e.opts.invoker.(StreamingInvoker); ok {
		streamed = true
		res, err = si.InvokeStream(ctx, req, func(chunk string) error {
			r.send(ctx, taskMsg{kind: msgToken, epoch: job.epoch, task: job.task, nodeID: job.node.ID, text: chunk})
			return ctx.Err()
		})
	} else {
		res, err = r.e.opts.invoker.Invoke(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &InvokeResult{}
	}

	r.send(ctx, taskMsg{
		kind:     msgOutput,
		epoch:    job.epoch,
		task:     job.task,
		nodeID:   job.node.ID,
		text:     res.Output,
		input:    input,
		round:    round,
		streamed: streamed,
	})
	return res, nil
}
