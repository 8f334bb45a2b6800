package verifier

import (
	"context"
	"errors"
	"slices"

	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/internal/predicate"
	"github.com/wizzardx/davinci/pkg/schema"
)

// errStop unwinds the search once a verdict or a limit has been reached.
var errStop = errors.New("stop search")

// pathSearch explores finite paths depth-first in transition-declaration
// order, so the first counterexample found is stable for a given machine.
type pathSearch struct {
	ctx    context.Context
	t      target
	pred   *predicate.Predicate
	bound  int
	budget int

	steps     int
	truncated int
	evaluated int
	path      []machine.Transition
	verdict   *outcome

	// first truncated path a forall predicate failed on
	unsettled []machine.Transition
}

func checkCustomPredicate(ctx context.Context, t target, p *predicate.Predicate, cfg Config) outcome {
	s := &pathSearch{
		ctx:    ctx,
		t:      t,
		pred:   p,
		bound:  cfg.DepthBound,
		budget: cfg.StepBudget,
	}
	if err := s.visit(t.m.Initial); err != nil && s.verdict != nil {
		return *s.verdict
	}

	switch {
	case s.unsettled != nil:
		return inconclusive(schema.ReasonDepthBoundExceeded,
			"%q is false on path %s, cut off at depth bound %d", p.Body, describePath(t.m, s.unsettled), s.bound)
	case p.Quantifier == predicate.Exists && s.truncated > 0:
		return inconclusive(schema.ReasonDepthBoundExceeded,
			"no witness within depth bound %d (%d paths evaluated, %d cut off)", s.bound, s.evaluated, s.truncated)
	case p.Quantifier == predicate.Exists:
		return violated(t.m.Initial, nil, "no complete path satisfies %q", p.Body)
	case s.truncated > 0:
		return proven("%q holds on all %d paths within depth bound %d (%d cut off at the bound)",
			p.Body, s.evaluated, s.bound, s.truncated)
	default:
		return proven("%q holds on all %d complete paths", p.Body, s.evaluated)
	}
}

func (s *pathSearch) stop(o outcome) error {
	s.verdict = &o
	return errStop
}

func (s *pathSearch) visit(state string) error {
	if err := s.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return s.stop(inconclusive(schema.ReasonTimeout, "search timed out after %d expansions", s.steps))
		}
		return s.stop(inconclusive(schema.ReasonCancelled, "search cancelled after %d expansions", s.steps))
	}
	s.steps++
	if s.steps > s.budget {
		return s.stop(inconclusive(schema.ReasonStepBudgetExhausted, "step budget of %d expansions exhausted", s.budget))
	}

	st, _ := s.t.m.State(state)
	out := s.t.m.Outgoing(state)

	if st.Terminal || len(out) == 0 {
		if err := s.evaluate(st.Terminal); err != nil {
			return err
		}
	}
	if len(out) == 0 {
		return nil
	}
	if len(s.path) >= s.bound {
		s.truncated++
		if st.Terminal {
			return nil
		}
		return s.evaluate(false)
	}
	for _, tr := range out {
		s.path = append(s.path, tr)
		err := s.visit(tr.To)
		s.path = s.path[:len(s.path)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

// evaluate checks the predicate on the current path. A non-terminal path
// with outgoing transitions was cut off at the depth bound: a forall failure
// there is only remembered, since a longer path could still satisfy it.
func (s *pathSearch) evaluate(terminal bool) error {
	if s.t.transition != nil && !slices.ContainsFunc(s.path, func(tr machine.Transition) bool {
		return tr.ID == s.t.transition.ID
	}) {
		return nil
	}
	s.evaluated++

	ok, err := s.pred.Holds(pathEnv(s.t.m, s.path, terminal))
	if err != nil {
		return s.stop(inconclusive(schema.ReasonUnparseableSpecification, "%v", err))
	}

	m := s.t.m
	final := m.Initial
	if len(s.path) > 0 {
		final = s.path[len(s.path)-1].To
	}
	switch {
	case s.pred.Quantifier == predicate.Exists && ok:
		return s.stop(proven("witness path: %s", describePath(m, s.path)))
	case s.pred.Quantifier == predicate.ForAll && !ok && !terminal && len(m.Outgoing(final)) > 0:
		if s.unsettled == nil {
			s.unsettled = slices.Clone(s.path)
		}
	case s.pred.Quantifier == predicate.ForAll && !ok:
		return s.stop(violated(final, m.Refs(s.path), "%q is false on path %s", s.pred.Body, describePath(m, s.path)))
	}
	return nil
}

func pathEnv(m *machine.StateMachine, path []machine.Transition, terminal bool) predicate.PathEnv {
	env := predicate.PathEnv{
		States:   []string{m.Initial},
		Triggers: make([]string, 0, len(path)),
		Initial:  m.Initial,
		Terminal: terminal,
	}
	seenRole := make(map[string]bool)
	for _, tr := range path {
		env.States = append(env.States, tr.To)
		env.Triggers = append(env.Triggers, tr.Trigger)
		env.Actions = append(env.Actions, tr.Actions...)
		env.Audit = append(env.Audit, tr.Audit...)
		for _, r := range tr.Roles {
			if !seenRole[r] {
				seenRole[r] = true
				env.Roles = append(env.Roles, r)
			}
		}
	}
	return predicate.NewPathEnv(env)
}
