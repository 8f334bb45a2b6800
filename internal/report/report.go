package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wizzardx/davinci/internal/diagram"
	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/pkg/schema"
)

// RenderedReport is the formatted, grouped view of a verification run.
type RenderedReport struct {
	Title   string  `json:"title,omitempty"`
	Summary Summary `json:"summary"`
	Groups  []Group `json:"groups"`
	// Errors lists components whose state machine could not be extracted.
	Errors []ErrorEntry `json:"errors,omitempty"`
}

// Summary counts results by status and severity.
type Summary struct {
	Total      int                     `json:"total"`
	ByStatus   map[schema.Status]int   `json:"by_status"`
	BySeverity map[schema.Severity]int `json:"by_severity"`
	Errors     int                     `json:"errors,omitempty"`
	// Failed is true when any critical property is violated or any
	// component failed extraction.
	Failed bool `json:"failed"`
}

// Group holds the entries of one severity, split by scope.
type Group struct {
	Severity schema.Severity `json:"severity"`
	Scopes   []ScopeGroup    `json:"scopes"`
}

// ScopeGroup holds the entries of one scope id in first-seen order.
type ScopeGroup struct {
	Scope   string  `json:"scope"`
	Entries []Entry `json:"entries"`
}

// Entry is one rendered result.
type Entry struct {
	PropertyID     string        `json:"property_id"`
	Method         schema.Method `json:"method"`
	Status         schema.Status `json:"status"`
	Component      string        `json:"component,omitempty"`
	Location       string        `json:"location,omitempty"`
	Counterexample []string      `json:"counterexample,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Message        string        `json:"message,omitempty"`
	Fix            string        `json:"fix,omitempty"`
	Diagram        string        `json:"diagram,omitempty"` // Mermaid source
}

// ErrorEntry is one extraction failure.
type ErrorEntry struct {
	Component string `json:"component,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message"`
}

// Option customises Format.
type Option func(*options)

type options struct {
	title    string
	machines map[string]*machine.StateMachine
	errs     []error
}

// WithTitle sets the report title.
func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// WithDiagrams embeds a Mermaid diagram of the affected machine in every
// violated entry whose component appears in machines.
func WithDiagrams(machines map[string]*machine.StateMachine) Option {
	return func(o *options) { o.machines = machines }
}

// WithExtractionErrors lists the given extraction failures in the report.
// Any failure fails the report.
func WithExtractionErrors(errs []error) Option {
	return func(o *options) { o.errs = errs }
}

// Format groups results by severity (critical first), then by scope id. It
// performs no I/O and does not modify results.
func Format(results []schema.VerificationResult, opts ...Option) RenderedReport {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := RenderedReport{
		Title: o.title,
		Summary: Summary{
			ByStatus:   make(map[schema.Status]int),
			BySeverity: make(map[schema.Severity]int),
		},
	}

	bySeverity := make(map[schema.Severity]map[string][]Entry)
	for _, res := range results {
		r.Summary.Total++
		r.Summary.ByStatus[res.Status]++
		r.Summary.BySeverity[res.Severity]++
		if res.Severity == schema.SeverityCritical && res.Status == schema.StatusViolated {
			r.Summary.Failed = true
		}

		scopes := bySeverity[res.Severity]
		if scopes == nil {
			scopes = make(map[string][]Entry)
			bySeverity[res.Severity] = scopes
		}
		scopes[res.Scope] = append(scopes[res.Scope], entryFor(res, o.machines))
	}

	severities := make([]schema.Severity, 0, len(bySeverity))
	for sev := range bySeverity {
		severities = append(severities, sev)
	}
	sort.Slice(severities, func(i, j int) bool {
		ri, rj := severities[i].Rank(), severities[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return severities[i] < severities[j]
	})

	for _, sev := range severities {
		g := Group{Severity: sev}
		scopes := bySeverity[sev]
		ids := make([]string, 0, len(scopes))
		for id := range scopes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			g.Scopes = append(g.Scopes, ScopeGroup{Scope: id, Entries: scopes[id]})
		}
		r.Groups = append(r.Groups, g)
	}

	for _, err := range o.errs {
		r.Errors = append(r.Errors, errorEntry(err))
	}
	if r.Summary.Errors = len(r.Errors); r.Summary.Errors > 0 {
		r.Summary.Failed = true
	}
	return r
}

func errorEntry(err error) ErrorEntry {
	var de *schema.DavinciError
	if !errors.As(err, &de) {
		return ErrorEntry{Message: err.Error()}
	}
	return ErrorEntry{Component: de.Component, Kind: de.Kind(), Message: de.Message}
}

func entryFor(res schema.VerificationResult, machines map[string]*machine.StateMachine) Entry {
	e := Entry{
		PropertyID: res.PropertyID,
		Method:     res.Method,
		Status:     res.Status,
		Component:  res.Component,
		Location:   res.Location,
		Reason:     res.Reason,
		Message:    res.Message,
		Fix:        suggestFix(res),
	}
	for _, ref := range res.Counterexample {
		e.Counterexample = append(e.Counterexample, FormatTransition(ref))
	}
	if res.Status == schema.StatusViolated && machines != nil {
		if m, ok := machines[res.Component]; ok {
			e.Diagram = diagram.RenderMermaid(diagram.Build(m, &res))
		}
	}
	return e
}

// FormatTransition renders a transition reference as "from -[trigger]-> to".
func FormatTransition(ref schema.TransitionRef) string {
	return fmt.Sprintf("%s -[%s]-> %s", ref.From, ref.Trigger, ref.To)
}

// suggestFix proposes a remediation for a violated or inconclusive result.
func suggestFix(res schema.VerificationResult) string {
	switch res.Status {
	case schema.StatusViolated:
		switch res.Method {
		case schema.MethodCompleteness:
			return fmt.Sprintf("Add the missing transitions out of state %q, mark it terminal, or split transitions that share a trigger.", res.Location)
		case schema.MethodReachability:
			return fmt.Sprintf("Add a path from the initial state to %q, or remove the state if it is obsolete.", res.Location)
		case schema.MethodRoleBasedAccess:
			return fmt.Sprintf("Split the create and approve capabilities of %s across different roles.", strings.TrimPrefix(res.Location, "role:"))
		case schema.MethodAuditTrail:
			return fmt.Sprintf("Emit an audit event from transition %q.", res.Location)
		case schema.MethodTiming:
			return fmt.Sprintf("Declare an escalation for state %q or add a %q transition out of it.", res.Location, machine.TriggerTimeout)
		case schema.MethodCustomPredicate:
			return "Follow the counterexample path and either change the machine or refine the predicate."
		}
	case schema.StatusInconclusive:
		switch res.Reason {
		case schema.ReasonDepthBoundExceeded:
			return "Raise the depth bound or narrow the property to a transition scope."
		case schema.ReasonStepBudgetExhausted:
			return "Raise the step budget or narrow the property scope."
		case schema.ReasonTimeout:
			return "Raise the predicate timeout or narrow the property scope."
		case schema.ReasonCancelled:
			return "Re-run verification to completion."
		case schema.ReasonUnparseableSpecification:
			return "Fix the predicate syntax; the body must be a boolean expression over path variables."
		case schema.ReasonUnknownScope:
			return "Point the property at an existing component path or transition id."
		case schema.ReasonExtractionFailed:
			return "Fix the component's state-machine extraction error."
		case schema.ReasonNoMachines:
			return "Declare states, transitions or steps for the component."
		case schema.ReasonInternalError:
			return "Report this as a bug; the check itself failed."
		}
	}
	return ""
}
