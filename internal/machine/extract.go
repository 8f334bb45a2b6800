package machine

import (
	"errors"
	"time"

	"github.com/wizzardx/davinci/internal/graph"
	"github.com/wizzardx/davinci/internal/predicate"
	"github.com/wizzardx/davinci/pkg/schema"
)

// ExtractOptions tunes extraction.
type ExtractOptions struct {
	// CheckGuards syntax-checks every guard and step condition as CEL.
	CheckGuards bool
}

// Extract derives the state machine of one component with default options.
func Extract(c *graph.Component) (*StateMachine, error) {
	return ExtractWith(c, ExtractOptions{})
}

// ExtractWith derives the state machine of one component. Explicit
// state.transitions take precedence over behavior steps.
//
// On UNREACHABLE_TERMINAL the fully built machine is returned alongside an
// *UnreachableTerminalError; see PartialMachine.
func ExtractWith(c *graph.Component, opts ExtractOptions) (*StateMachine, error) {
	if c == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "component is nil")
	}

	var (
		m   *StateMachine
		err error
	)
	switch {
	case c.State != nil && (len(c.State.Transitions) > 0 || len(c.State.States) > 0):
		m, err = fromDeclared(c)
	case c.Behavior != nil && len(c.Behavior.Steps) > 0:
		m, err = fromSteps(c)
	default:
		return nil, extractionError(schema.ErrCodeNoBehavior, c.Path,
			"component %q declares neither transitions nor steps", c.Path)
	}
	if err != nil {
		return nil, err
	}

	if opts.CheckGuards {
		if err := checkGuards(m); err != nil {
			return nil, err
		}
	}

	reach := m.Reachability()
	var unreachable []string
	for _, id := range m.Terminals() {
		if !reach.Reachable(id) {
			unreachable = append(unreachable, id)
		}
	}
	if len(unreachable) > 0 {
		e := extractionError(schema.ErrCodeUnreachableTerminal, c.Path,
			"terminal state %q is not reachable from initial state %q", unreachable[0], m.Initial)
		e.Details["state"] = unreachable[0]
		e.Details["states"] = unreachable
		return m, &UnreachableTerminalError{Err: e, Machine: m}
	}
	return m, nil
}

// UnreachableTerminalError carries the fully built machine of a component
// whose terminal states are not all reachable. It unwraps to the
// EXTRACTION_ERROR, which stays free of the machine when encoded.
type UnreachableTerminalError struct {
	Err     *schema.DavinciError
	Machine *StateMachine
}

func (e *UnreachableTerminalError) Error() string { return e.Err.Error() }

func (e *UnreachableTerminalError) Unwrap() error { return e.Err }

// PartialMachine returns the machine carried by an UNREACHABLE_TERMINAL
// error. Such a machine is complete; only its reachability is defective.
func PartialMachine(err error) (*StateMachine, bool) {
	var ute *UnreachableTerminalError
	if !errors.As(err, &ute) || ute.Machine == nil {
		return nil, false
	}
	return ute.Machine, true
}

func extractionError(kind, component, format string, args ...any) *schema.DavinciError {
	return schema.NewErrorf(schema.ErrCodeExtraction, format, args...).
		WithComponent(component).
		WithDetails(map[string]any{"kind": kind})
}

// fromDeclared copies an explicit state machine verbatim.
func fromDeclared(c *graph.Component) (*StateMachine, error) {
	decl := c.State
	m := newMachine(c.Path)

	nodes := decl.States
	if len(nodes) == 0 {
		nodes = impliedStates(decl.Transitions)
	}

	var flagged []string
	for _, n := range nodes {
		if n.Initial {
			flagged = append(flagged, n.ID)
		}
	}
	initial := decl.Initial
	switch {
	case len(flagged) > 1:
		return nil, extractionError(schema.ErrCodeAmbiguousInitial, c.Path,
			"component %q flags %d initial states: %v", c.Path, len(flagged), flagged)
	case initial != "" && len(flagged) == 1 && flagged[0] != initial:
		return nil, extractionError(schema.ErrCodeAmbiguousInitial, c.Path,
			"component %q names initial state %q but flags %q", c.Path, initial, flagged[0])
	case initial == "" && len(flagged) == 1:
		initial = flagged[0]
	case initial == "" && len(nodes) > 0:
		initial = nodes[0].ID
	}

	for _, n := range nodes {
		d, _ := time.ParseDuration(n.Timeout) // validated by graph.Parse
		kind := KindIntermediate
		switch {
		case n.ID == initial:
			kind = KindInitial
		case n.Terminal:
			kind = KindTerminal
		}
		m.addState(State{
			ID:         n.ID,
			Kind:       kind,
			Terminal:   n.Terminal,
			Triggers:   n.Triggers,
			Timeout:    d,
			Escalation: n.Escalation,
		})
	}
	if _, ok := m.stateIdx[initial]; !ok {
		return nil, extractionError(schema.ErrCodeUnknownStateReference, c.Path,
			"initial state %q is not declared", initial)
	}
	m.Initial = initial

	for _, t := range decl.Transitions {
		for _, end := range []string{t.From, t.To} {
			if _, ok := m.stateIdx[end]; !ok {
				return nil, extractionError(schema.ErrCodeUnknownStateReference, c.Path,
					"transition %s references undeclared state %q",
					DefaultTransitionID(t.From, t.Trigger, t.To), end)
			}
		}
		m.addTransition(Transition{
			ID:      t.ID,
			From:    t.From,
			To:      t.To,
			Trigger: t.Trigger,
			Guards:  t.Guards,
			Actions: t.Actions,
			Roles:   t.Roles,
			Audit:   t.Audit,
			Origin:  OriginDeclared,
		})
	}
	return m, nil
}

// impliedStates derives states from transition endpoints in order of first
// appearance. States without outgoing transitions are terminal.
func impliedStates(ts []schema.TransitionDecl) []schema.StateNodeDecl {
	seen := make(map[string]bool)
	hasOut := make(map[string]bool)
	var order []string
	for _, t := range ts {
		hasOut[t.From] = true
		for _, id := range []string{t.From, t.To} {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}
	out := make([]schema.StateNodeDecl, 0, len(order))
	for _, id := range order {
		out = append(out, schema.StateNodeDecl{ID: id, Terminal: !hasOut[id]})
	}
	return out
}

// fromSteps synthesises one state per step plus Success/Failure terminals,
// which are only added when some continuation reaches them.
func fromSteps(c *graph.Component) (*StateMachine, error) {
	steps := c.Behavior.Steps
	m := newMachine(c.Path)

	ids := make(map[string]bool, len(steps))
	for _, s := range steps {
		ids[s.ID] = true
	}

	var edges []Transition
	usesTerminal := map[string]bool{}

	resolve := func(step schema.BehaviorStep, target string) (string, error) {
		if schema.IsTerminalResult(target) {
			usesTerminal[target] = true
			return target, nil
		}
		if !ids[target] {
			return "", extractionError(schema.ErrCodeUnknownStepReference, c.Path,
				"step %q continues to unknown step %q", step.ID, target)
		}
		return target, nil
	}

	for i, s := range steps {
		follow := schema.ResultSuccess
		if i+1 < len(steps) {
			follow = steps[i+1].ID
		}

		if s.Next != "" && s.OnSuccess != "" && s.Next != s.OnSuccess {
			return nil, extractionError(schema.ErrCodeAmbiguousTransition, c.Path,
				"step %q declares two unconditional successors: next=%q on_success=%q", s.ID, s.Next, s.OnSuccess)
		}
		explicit := s.OnSuccess
		if explicit == "" {
			explicit = s.Next
		}

		var guards []string
		if s.Kind == schema.StepKindSecurityCheck {
			guards = []string{GuardSecurityCheck}
		}
		var actions []string
		if s.Kind == schema.StepKindStateUpdate || s.Kind == schema.StepKindTerminalAction {
			actions = []string{s.ID}
		}
		edge := func(trigger, target string, extraGuards ...string) error {
			to, err := resolve(s, target)
			if err != nil {
				return err
			}
			edges = append(edges, Transition{
				From:    s.ID,
				To:      to,
				Trigger: trigger,
				Guards:  append(append([]string(nil), guards...), extraGuards...),
				Actions: actions,
				Roles:   s.Roles,
				Audit:   s.Emits,
				Origin:  OriginStep,
			})
			return nil
		}

		triggers := []string{TriggerSuccess}
		switch s.Kind {
		case schema.StepKindConditional:
			if s.Condition == "" {
				return nil, extractionError(schema.ErrCodeAmbiguousTransition, c.Path,
					"conditional step %q has no condition to separate its branches", s.ID)
			}
			fallthroughTo := explicit
			if fallthroughTo == "" {
				fallthroughTo = follow
			}
			ifTrue, ifFalse := s.IfTrue, s.IfFalse
			if ifTrue == "" {
				ifTrue = fallthroughTo
			}
			if ifFalse == "" {
				ifFalse = fallthroughTo
			}
			if err := edge(TriggerIfTrue, ifTrue, s.Condition); err != nil {
				return nil, err
			}
			if err := edge(TriggerIfFalse, ifFalse, "!("+s.Condition+")"); err != nil {
				return nil, err
			}
			triggers = []string{TriggerIfTrue, TriggerIfFalse}

		case schema.StepKindTerminalAction:
			target := explicit
			if target == "" {
				target = schema.ResultSuccess
			}
			if !schema.IsTerminalResult(target) {
				return nil, extractionError(schema.ErrCodeAmbiguousTransition, c.Path,
					"terminal-action step %q continues to non-terminal %q", s.ID, target)
			}
			if err := edge(TriggerSuccess, target); err != nil {
				return nil, err
			}

		default:
			target := explicit
			if target == "" {
				target = follow
			}
			if err := edge(TriggerSuccess, target); err != nil {
				return nil, err
			}
		}

		if s.OnFailure != "" {
			if err := edge(TriggerFailure, s.OnFailure); err != nil {
				return nil, err
			}
			triggers = append(triggers, TriggerFailure)
		}

		d, _ := time.ParseDuration(s.Timeout)
		kind := KindIntermediate
		if i == 0 {
			kind = KindInitial
		}
		m.addState(State{
			ID:         s.ID,
			Kind:       kind,
			Triggers:   triggers,
			Timeout:    d,
			Escalation: s.Escalation,
		})
	}

	for _, id := range []string{schema.ResultSuccess, schema.ResultFailure} {
		if usesTerminal[id] {
			m.addState(State{ID: id, Kind: KindTerminal, Terminal: true})
		}
	}
	for _, t := range edges {
		m.addTransition(t)
	}
	m.Initial = steps[0].ID
	return m, nil
}

func checkGuards(m *StateMachine) error {
	for _, t := range m.Transitions {
		for _, g := range t.Guards {
			if g == GuardSecurityCheck {
				continue
			}
			if err := predicate.CheckSyntax(g); err != nil {
				e := extractionError(schema.ErrCodeInvalidPredicate, m.Component,
					"transition %s has invalid guard %q", t.ID, g).WithCause(err)
				e.Details["transition"] = t.ID
				return e
			}
		}
	}
	return nil
}

// Extraction is the outcome of extracting every component of a graph.
type Extraction struct {
	Machines map[string]*StateMachine // component path → machine
	Order    []string                 // paths with machines, DFS order
	Errors   []error                  // extraction failures, DFS order
	Failed   map[string]error         // component path → its failure
	Skipped  []string                 // components with no behavior to extract
}

// ExtractAll extracts every component in DFS order. One component's failure
// never blocks its siblings. Machines carried by UNREACHABLE_TERMINAL errors
// are included in Machines as well as in Errors.
func ExtractAll(g *graph.Graph, opts ExtractOptions) *Extraction {
	x := &Extraction{
		Machines: make(map[string]*StateMachine),
		Failed:   make(map[string]error),
	}
	for c := range g.DFS() {
		m, err := ExtractWith(c, opts)
		if err != nil {
			var de *schema.DavinciError
			if errors.As(err, &de) && de.Kind() == schema.ErrCodeNoBehavior {
				x.Skipped = append(x.Skipped, c.Path)
				continue
			}
			x.Errors = append(x.Errors, err)
			x.Failed[c.Path] = err
		}
		if m != nil {
			x.Machines[c.Path] = m
			x.Order = append(x.Order, c.Path)
		}
	}
	return x
}
