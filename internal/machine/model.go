package machine

import (
	"fmt"
	"time"

	"github.com/wizzardx/davinci/pkg/schema"
)

// StateKind classifies a state by its position in the machine.
type StateKind string

const (
	KindInitial      StateKind = "initial"
	KindIntermediate StateKind = "intermediate"
	KindTerminal     StateKind = "terminal"
)

// Origin records where a transition came from.
type Origin string

const (
	OriginDeclared Origin = "declared"
	OriginStep     Origin = "step"
)

// Triggers synthesised for step-derived transitions.
const (
	TriggerSuccess = "success"
	TriggerFailure = "failure"
	TriggerIfTrue  = "if-true"
	TriggerIfFalse = "if-false"
	TriggerTimeout = "timeout"
)

// GuardSecurityCheck tags transitions leaving a security-check step.
const GuardSecurityCheck = "security-check"

// State is one node of an extracted machine.
type State struct {
	ID         string        `json:"id"`
	Kind       StateKind     `json:"kind"`
	Terminal   bool          `json:"terminal,omitempty"`
	Triggers   []string      `json:"triggers,omitempty"` // expected trigger vocabulary
	Timeout    time.Duration `json:"timeout,omitempty"`
	Escalation string        `json:"escalation,omitempty"`
}

// Transition is one edge of an extracted machine. Guards are symbolic and
// never evaluated.
type Transition struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Trigger string   `json:"trigger"`
	Guards  []string `json:"guards,omitempty"`
	Actions []string `json:"actions,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Audit   []string `json:"audit,omitempty"`
	Origin  Origin   `json:"origin"`
}

// StateMachine is the automaton derived from one component. It is not
// modified after extraction.
type StateMachine struct {
	Component   string       `json:"component"`
	Initial     string       `json:"initial"`
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`

	stateIdx map[string]int
	transIdx map[string]int
	out      map[string][]int // state id → outgoing transition indexes, declaration order
}

func newMachine(component string) *StateMachine {
	return &StateMachine{
		Component: component,
		stateIdx:  make(map[string]int),
		transIdx:  make(map[string]int),
		out:       make(map[string][]int),
	}
}

func (m *StateMachine) addState(s State) {
	m.stateIdx[s.ID] = len(m.States)
	m.States = append(m.States, s)
}

func (m *StateMachine) addTransition(t Transition) {
	if t.ID == "" {
		t.ID = DefaultTransitionID(t.From, t.Trigger, t.To)
	}
	idx := len(m.Transitions)
	if _, dup := m.transIdx[t.ID]; !dup {
		m.transIdx[t.ID] = idx
	}
	m.out[t.From] = append(m.out[t.From], idx)
	m.Transitions = append(m.Transitions, t)
}

// DefaultTransitionID names a transition declared without an id.
func DefaultTransitionID(from, trigger, to string) string {
	return fmt.Sprintf("%s:%s->%s", from, trigger, to)
}

// State returns the state with the given id.
func (m *StateMachine) State(id string) (State, bool) {
	i, ok := m.stateIdx[id]
	if !ok {
		return State{}, false
	}
	return m.States[i], true
}

// Transition returns the transition with the given id.
func (m *StateMachine) Transition(id string) (Transition, bool) {
	i, ok := m.transIdx[id]
	if !ok {
		return Transition{}, false
	}
	return m.Transitions[i], true
}

// Outgoing returns the transitions leaving state id in declaration order.
func (m *StateMachine) Outgoing(id string) []Transition {
	idx := m.out[id]
	out := make([]Transition, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.Transitions[i])
	}
	return out
}

// Terminals returns the terminal state ids in declaration order.
func (m *StateMachine) Terminals() []string {
	var out []string
	for _, s := range m.States {
		if s.Terminal {
			out = append(out, s.ID)
		}
	}
	return out
}

// Ref converts t into the reference form used in results.
func (m *StateMachine) Ref(t Transition) schema.TransitionRef {
	return schema.TransitionRef{
		Component: m.Component,
		ID:        t.ID,
		From:      t.From,
		To:        t.To,
		Trigger:   t.Trigger,
	}
}

// Refs converts a transition path into result references.
func (m *StateMachine) Refs(path []Transition) []schema.TransitionRef {
	if len(path) == 0 {
		return nil
	}
	out := make([]schema.TransitionRef, len(path))
	for i, t := range path {
		out[i] = m.Ref(t)
	}
	return out
}

// Reach is the outcome of a breadth-first search from the initial state.
// Edges are expanded in declaration order, so witness paths are shortest and
// deterministic.
type Reach struct {
	m      *StateMachine
	parent map[string]int // state → index of the transition that first reached it, -1 for the initial state
}

// Reachability runs BFS from the initial state.
func (m *StateMachine) Reachability() *Reach {
	r := &Reach{m: m, parent: make(map[string]int, len(m.States))}
	if _, ok := m.stateIdx[m.Initial]; !ok {
		return r
	}
	r.parent[m.Initial] = -1
	queue := []string{m.Initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, i := range m.out[cur] {
			to := m.Transitions[i].To
			if _, seen := r.parent[to]; seen {
				continue
			}
			r.parent[to] = i
			queue = append(queue, to)
		}
	}
	return r
}

// Reachable reports whether state id can be reached from the initial state.
func (r *Reach) Reachable(id string) bool {
	_, ok := r.parent[id]
	return ok
}

// PathTo returns the shortest transition path from the initial state to id,
// or nil when id is the initial state or unreachable.
func (r *Reach) PathTo(id string) []Transition {
	if !r.Reachable(id) {
		return nil
	}
	var rev []Transition
	for cur := id; r.parent[cur] >= 0; {
		t := r.m.Transitions[r.parent[cur]]
		rev = append(rev, t)
		cur = t.From
	}
	path := make([]Transition, len(rev))
	for i, t := range rev {
		path[len(rev)-1-i] = t
	}
	return path
}

// Unreachable returns the states not reachable from the initial state, in
// declaration order.
func (r *Reach) Unreachable() []string {
	var out []string
	for _, s := range r.m.States {
		if !r.Reachable(s.ID) {
			out = append(out, s.ID)
		}
	}
	return out
}
