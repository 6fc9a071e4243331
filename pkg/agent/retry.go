package agent

import (
	"context"
	"strconv"

	"github.com/weftctx/weft/pkg/engine"
	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/guardrail"
	"github.com/weftctx/weft/pkg/logger"
)

// state is the retry protocol's state machine (spec §4.3.3, §9 "a small
// fixed set of states"): streaming while reading the upstream channel,
// retrying once a guardrail fail has been absorbed and a new upstream
// stream is about to open, and terminated once the loop can no longer
// continue (success, stop, retry budget exhausted, or cancellation).
// stateStreaming and stateRetrying both re-enter the read loop; they are
// kept distinct because only the latter follows a saved correction.
type state int

const (
	stateStreaming state = iota
	stateRetrying
	stateTerminated
)

// retrySession carries the loop's mutable state across iterations.
type retrySession struct {
	req             Request
	out             []guardrail.Part
	accumulatedText string
	retries         int
}

// drainStream implements the full retry protocol (spec §4.3.3): it opens
// an upstream stream, runs every part through the guardrail chain,
// handles fail/stop decisions, and returns the caller-visible part
// sequence ending in a finish sentinel.
func (a *Agent) drainStream(ctx context.Context, contextVars map[string]any, maxSteps int) ([]guardrail.Part, error) {
	if err := ctx.Err(); err != nil {
		return []guardrail.Part{guardrail.Finish()}, nil
	}

	resolved, err := a.Engine.Resolve(ctx, a.Renderer)
	if err != nil {
		return nil, err
	}

	sess := &retrySession{
		req: Request{
			Model:        a.Model,
			SystemPrompt: resolved.SystemPrompt,
			Messages:     resolved.Messages,
			Tools:        a.Tools,
			MaxSteps:     maxSteps,
		},
	}
	gctx := guardrail.Context{ToolNames: a.toolNames()}

	st := stateStreaming
	for st != stateTerminated {
		st, err = a.runOneStream(ctx, sess, gctx)
		if err != nil {
			return nil, err
		}
	}
	return sess.out, nil
}

// runOneStream opens one upstream stream and pumps it through the
// guardrail chain until it ends, a stop decision fires, a fail triggers
// a retry, or the caller's context is cancelled.
func (a *Agent) runOneStream(ctx context.Context, sess *retrySession, gctx guardrail.Context) (state, error) {
	upstream, err := a.Client.Stream(ctx, sess.req)
	if err != nil {
		return stateTerminated, err
	}

	for part := range upstream {
		if ctx.Err() != nil {
			sess.out = append(sess.out, guardrail.Finish())
			return stateTerminated, nil
		}

		decision := a.Guardrails.Run(part, gctx)
		switch decision.Kind {
		case guardrail.DecisionPass:
			if part.IsTextDelta() {
				sess.accumulatedText += part.Delta
			}
			sess.out = append(sess.out, part)

		case guardrail.DecisionModify:
			if decision.Part.IsTextDelta() {
				sess.accumulatedText += decision.Part.Delta
			}
			sess.out = append(sess.out, decision.Part)

		case guardrail.DecisionStop:
			sess.out = append(sess.out, decision.Part, guardrail.Finish())
			return stateTerminated, nil

		case guardrail.DecisionFail:
			return a.handleFailure(ctx, sess, decision.Feedback)
		}
	}

	sess.out = append(sess.out, guardrail.Finish())
	return stateTerminated, nil
}

// handleFailure implements spec §4.3.3 step 2: on exceeding the retry
// budget it terminates cleanly; otherwise it writes a visible correction
// triplet into the outbound stream, saves the corrected assistant turn
// in place via a lazy last-assistant fragment, and re-enters streaming.
func (a *Agent) handleFailure(ctx context.Context, sess *retrySession, feedback string) (state, error) {
	sess.retries++
	if sess.retries > a.maxRetries() {
		sess.out = append(sess.out, guardrail.Finish())
		return stateTerminated, nil
	}

	correctionID := "correction-" + strconv.Itoa(sess.retries)
	correctionDelta := " " + feedback
	correctedText := sess.accumulatedText + correctionDelta
	sess.out = append(sess.out,
		guardrail.TextStart(correctionID),
		guardrail.TextDelta(correctionID, correctionDelta),
		guardrail.TextEnd(correctionID),
	)

	if err := a.saveCorrection(ctx, correctedText); err != nil {
		logger.G(ctx).WithError(err).Error("failed to save guardrail correction")
		sess.out = append(sess.out, guardrail.Finish())
		return stateTerminated, nil
	}
	sess.accumulatedText = correctedText

	resolved, err := a.Engine.Resolve(ctx, a.Renderer)
	if err != nil {
		logger.G(ctx).WithError(err).Error("failed to re-resolve context after guardrail correction")
		sess.out = append(sess.out, guardrail.Finish())
		return stateTerminated, nil
	}
	sess.req.Messages = resolved.Messages
	sess.req.SystemPrompt = resolved.SystemPrompt

	return stateRetrying, nil
}

// saveCorrection constructs the lazy last-assistant fragment carrying
// accumulatedText + " " + feedback and saves it in place (spec §4.3.3
// step 2: "updating the in-place assistant turn, not forking").
func (a *Agent) saveCorrection(ctx context.Context, correctedText string) error {
	if a.CodecFactory == nil {
		return errs.Validation("agent %q has no CodecFactory configured for corrections", a.Name)
	}
	f := fragment.NewLazyMessage("assistant", fragment.ResolveLastAssistant, fragment.Scalar{V: correctedText}, a.CodecFactory("assistant", correctedText))
	a.Engine.Set(f)
	branch := false
	_, err := a.Engine.Save(ctx, engine.SaveOptions{Branch: &branch})
	return err
}
