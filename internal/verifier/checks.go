package verifier

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/pkg/schema"
)

// outcome is the method-level verdict on one machine, before it is stamped
// with property metadata.
type outcome struct {
	status         schema.Status
	location       string
	counterexample []schema.TransitionRef
	reason         string
	message        string
}

func proven(format string, args ...any) outcome {
	return outcome{status: schema.StatusProven, message: fmt.Sprintf(format, args...)}
}

func violated(location string, cex []schema.TransitionRef, format string, args ...any) outcome {
	return outcome{
		status:         schema.StatusViolated,
		location:       location,
		counterexample: cex,
		message:        fmt.Sprintf(format, args...),
	}
}

func inconclusive(reason string, format string, args ...any) outcome {
	return outcome{status: schema.StatusInconclusive, reason: reason, message: fmt.Sprintf(format, args...)}
}

// target is what one check looks at: a machine, optionally narrowed to a
// single transition, plus the owning component's permission table.
type target struct {
	m           *machine.StateMachine
	transition  *machine.Transition
	permissions map[string][]string
}

// statesInScope returns the states a state-oriented check inspects.
func (t target) statesInScope() []machine.State {
	if t.transition == nil {
		return t.m.States
	}
	s, ok := t.m.State(t.transition.From)
	if !ok {
		return nil
	}
	return []machine.State{s}
}

// transitionsInScope returns the transitions a transition-oriented check
// inspects.
func (t target) transitionsInScope() []machine.Transition {
	if t.transition == nil {
		return t.m.Transitions
	}
	return []machine.Transition{*t.transition}
}

// --- state-machine-completeness ---

func checkCompleteness(t target) outcome {
	m := t.m
	reach := m.Reachability()
	for _, s := range t.statesInScope() {
		if s.Terminal {
			continue
		}
		out := m.Outgoing(s.ID)
		if len(out) == 0 {
			return violated(s.ID, m.Refs(reach.PathTo(s.ID)),
				"non-terminal state %q has no outgoing transition", s.ID)
		}

		byTrigger := make(map[string][]machine.Transition, len(out))
		for _, tr := range out {
			byTrigger[tr.Trigger] = append(byTrigger[tr.Trigger], tr)
		}

		handled := 0
		var missing []string
		for _, trig := range s.Triggers {
			if len(byTrigger[trig]) > 0 {
				handled++
			} else {
				missing = append(missing, trig)
			}
		}
		if len(missing) > 0 {
			return violated(s.ID, m.Refs(reach.PathTo(s.ID)),
				"state %q handles %d of %d expected triggers; unhandled: %s",
				s.ID, handled, len(s.Triggers), strings.Join(missing, ", "))
		}

		// Guards do not disambiguate: each trigger leaving a state must map
		// to exactly one transition.
		for _, tr := range out {
			if same := byTrigger[tr.Trigger]; len(same) > 1 {
				return violated(s.ID, m.Refs(same[:2]),
					"state %q has ambiguous trigger %q: %d transitions (%s)",
					s.ID, tr.Trigger, len(same), strings.Join(transitionIDs(same), ", "))
			}
		}
	}
	return proven("every non-terminal state has outgoing transitions and handles each trigger with exactly one transition")
}

func transitionIDs(ts []machine.Transition) []string {
	ids := make([]string, len(ts))
	for i, tr := range ts {
		ids[i] = tr.ID
	}
	return ids
}

// --- reachability ---

func checkReachability(t target) outcome {
	m := t.m
	reach := m.Reachability()

	if t.transition != nil {
		if !reach.Reachable(t.transition.From) {
			return violated(t.transition.From, nil,
				"transition %q can never fire: state %q is unreachable from %q", t.transition.ID, t.transition.From, m.Initial)
		}
		return proven("transition %q is reachable via %s", t.transition.ID, describePath(m, reach.PathTo(t.transition.From)))
	}

	terms := m.Terminals()
	if len(terms) == 0 {
		return proven("machine declares no terminal states")
	}
	var witnesses []string
	for _, id := range terms {
		if !reach.Reachable(id) {
			return violated(id, nil, "terminal state %q is not reachable from initial state %q", id, m.Initial)
		}
		witnesses = append(witnesses, fmt.Sprintf("%s via %s", id, describePath(m, reach.PathTo(id))))
	}
	return proven("all terminal states reachable: %s", strings.Join(witnesses, "; "))
}

func describePath(m *machine.StateMachine, path []machine.Transition) string {
	if len(path) == 0 {
		return m.Initial
	}
	var b strings.Builder
	b.WriteString(path[0].From)
	for _, tr := range path {
		fmt.Fprintf(&b, " -[%s]-> %s", tr.Trigger, tr.To)
	}
	return b.String()
}

// --- role-based-access-analysis ---

// grant records where a role obtained a capability.
type grant struct {
	transition *machine.Transition
	via        string // action or trigger name
}

func checkRoleSegregation(t target, createActions, approveActions []string) outcome {
	creates := make(map[string]grant)
	approves := make(map[string]grant)
	classify := func(role, name string, tr *machine.Transition) {
		name = strings.ToLower(name)
		if _, ok := creates[role]; !ok && slices.Contains(createActions, name) {
			creates[role] = grant{transition: tr, via: name}
		}
		if _, ok := approves[role]; !ok && slices.Contains(approveActions, name) {
			approves[role] = grant{transition: tr, via: name}
		}
	}

	trs := t.transitionsInScope()
	for i := range trs {
		tr := &trs[i]
		for _, role := range tr.Roles {
			classify(role, tr.Trigger, tr)
			for _, a := range tr.Actions {
				classify(role, a, tr)
			}
		}
	}
	if t.transition == nil {
		for _, role := range sortedRoles(t.permissions) {
			for _, a := range t.permissions[role] {
				classify(role, a, nil)
			}
		}
	}

	roles := make([]string, 0, len(creates))
	for r := range creates {
		if _, ok := approves[r]; ok {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return proven("no role holds both a create and an approve capability")
	}
	sort.Strings(roles)

	role := roles[0]
	c, a := creates[role], approves[role]
	var cex []schema.TransitionRef
	for _, g := range []grant{c, a} {
		if g.transition != nil {
			cex = append(cex, t.m.Ref(*g.transition))
		}
	}
	return violated("role:"+role, cex,
		"role %q holds both %q and %q; segregation of duties requires separate roles", role, c.via, a.via)
}

func sortedRoles(perms map[string][]string) []string {
	out := make([]string, 0, len(perms))
	for r := range perms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// --- audit-trail-verification ---

func checkAuditTrail(t target, vocabulary []string) outcome {
	vocab := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		vocab[strings.ToLower(v)] = true
	}

	relevant := 0
	for _, tr := range t.transitionsInScope() {
		token, ok := securityToken(tr, vocab)
		if !ok {
			continue
		}
		relevant++
		if len(tr.Audit) == 0 {
			return violated(tr.ID, []schema.TransitionRef{t.m.Ref(tr)},
				"security-relevant transition %q (matched %q) emits no audit event", tr.ID, token)
		}
	}
	if relevant == 0 {
		return proven("no security-relevant transitions")
	}
	return proven("%d security-relevant transition(s) emit audit events", relevant)
}

// securityToken returns the first token of the trigger or guards that is in
// the vocabulary.
func securityToken(tr machine.Transition, vocab map[string]bool) (string, bool) {
	sources := append([]string{tr.Trigger}, tr.Guards...)
	for _, src := range sources {
		for _, tok := range tokenize(src) {
			if vocab[tok] {
				return tok, true
			}
		}
	}
	return "", false
}

// tokenize splits an expression into lower-case identifier tokens. Hyphenated
// tokens are kept whole and also split into their parts, as are snake_case
// ones.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	})
	var out []string
	for _, f := range fields {
		out = append(out, f)
		if strings.ContainsAny(f, "-_") {
			out = append(out, strings.FieldsFunc(f, func(r rune) bool { return r == '-' || r == '_' })...)
		}
	}
	return out
}

// --- timing-analysis ---

func checkTiming(t target) outcome {
	timed := 0
	for _, s := range t.statesInScope() {
		if s.Timeout <= 0 {
			continue
		}
		timed++
		if s.Escalation != "" {
			continue
		}
		if slices.ContainsFunc(t.m.Outgoing(s.ID), func(tr machine.Transition) bool {
			return tr.Trigger == machine.TriggerTimeout
		}) {
			continue
		}
		return violated(s.ID, nil,
			"state %q declares timeout %s but no escalation action or timeout transition", s.ID, s.Timeout)
	}
	if timed == 0 {
		return proven("no states declare timeouts")
	}
	return proven("%d timed state(s) have escalation paths", timed)
}
