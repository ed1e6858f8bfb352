package engine

import (
	"context"
	"fmt"
	"time"

	"intake_backend/internal/leads/domain"
	"intake_backend/internal/studies"
	"intake_backend/platform/logger"
)

// Handoff type tags recorded with staff follow-up requests.
const (
	HandoffAuthFail  = "AUTH_FAIL"
	HandoffQualified = "QUALIFIED"
)

// maxAdvance caps how many nodes a single turn may run. The longest legal
// chain (identity → lookup → create → profile prompt) is four nodes, so the
// cap only trips on a routing bug.
const maxAdvance = 16

// Engine drives the screening conversation one turn at a time.
type Engine struct {
	store domain.Store
	log   *logger.Logger
	nowFn func() time.Time
}

func New(store domain.Store, log *logger.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log,
		nowFn: time.Now,
	}
}

func (e *Engine) now() time.Time {
	return e.nowFn()
}

// Initialize starts a fresh conversation: it runs the greeting node and
// returns the state waiting for the participant's reply.
func (e *Engine) Initialize(ctx context.Context, cfg *studies.Config) (State, error) {
	st := NewState(cfg.Study.ID)
	u, err := e.runNode(ctx, nodeGreeting, cfg, st)
	if err != nil {
		return State{}, err
	}
	return st.Apply(u), nil
}

// Step processes one user message: it appends the message, runs the node
// the current step resolves to, then keeps advancing through nodes that do
// not need input until the conversation pauses or ends.
//
// Stepping a terminal state is a no-op and returns the state unchanged.
func (e *Engine) Step(ctx context.Context, cfg *studies.Config, st State, userMessage string) (State, error) {
	if st.CurrentStep.IsTerminal() {
		return st, nil
	}

	st = st.WithUserMessage(userMessage)

	node := resolveNode(st.CurrentStep)
	if node == nodeNone {
		e.log.Warn("no node accepts input at step", "step", st.CurrentStep.String())
		return st, nil
	}

	u, err := e.runNode(ctx, node, cfg, st)
	if err != nil {
		return st, err
	}
	st = st.Apply(u)

	for i := 0; i < maxAdvance; i++ {
		next := nextNode(node, cfg, st)
		if next == nodeNone {
			return st, nil
		}

		if isTerminalNode(next) {
			u, err := e.runNode(ctx, next, cfg, st)
			if err != nil {
				return st, err
			}
			return st.Apply(u), nil
		}

		if waitsForInput(next) {
			if next == node {
				// Already ran and prompted this turn.
				return st, nil
			}
			u, err := e.runNode(ctx, next, cfg, st)
			if err != nil {
				return st, err
			}
			st = st.Apply(u)

			// A wait node can finish without needing input, e.g. profile
			// collection with nothing missing. When the stored step now
			// resolves elsewhere, keep advancing.
			if resolved := resolveNode(st.CurrentStep); resolved != nodeNone && resolved != next {
				node = next
				continue
			}
			return st, nil
		}

		u, err := e.runNode(ctx, next, cfg, st)
		if err != nil {
			return st, err
		}
		st = st.Apply(u)
		node = next
	}

	return st, fmt.Errorf("conversation did not settle after %d node transitions (step %s)", maxAdvance, st.CurrentStep)
}

// runNode dispatches to a node implementation.
func (e *Engine) runNode(ctx context.Context, node NodeID, cfg *studies.Config, st State) (Update, error) {
	switch node {
	case nodeGreeting:
		return e.runGreeting(ctx, cfg, st)
	case nodeConsent:
		return e.runConsent(ctx, cfg, st)
	case nodeIdentityCollection:
		return e.runIdentityCollection(ctx, cfg, st)
	case nodeLeadLookup:
		return e.runLeadLookup(ctx, cfg, st)
	case nodeCreateLead:
		return e.runCreateLead(ctx, cfg, st)
	case nodePinAuth:
		return e.runPinAuth(ctx, cfg, st)
	case nodeAuthFailHandoff:
		return e.runAuthFailHandoff(ctx, cfg, st)
	case nodeProfileCollection:
		return e.runProfileCollection(ctx, cfg, st)
	case nodePrescreen:
		return e.runPrescreen(ctx, cfg, st)
	case nodeEligibility:
		return e.runEligibility(ctx, cfg, st)
	case nodeScheduling:
		return e.runScheduling(ctx, cfg, st)
	case nodeQualifiedHandoff:
		return e.runQualifiedHandoff(ctx, cfg, st)
	case nodeDisqualification:
		return e.runDisqualification(ctx, cfg, st)
	}
	return Update{}, fmt.Errorf("unknown node %q", node)
}
