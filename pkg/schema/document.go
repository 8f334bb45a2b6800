package schema

// Document is the declarative source handed to the component graph parser.
// Authors write it as JSON or YAML; the loader normalises both into this shape.
type Document struct {
	Version    string            `json:"version,omitempty"`
	Types      map[string]string `json:"types,omitempty"` // alias name → type tag
	Components []ComponentDecl   `json:"components"`
	Properties []PropertyDecl    `json:"properties,omitempty"`
}

// ComponentDecl describes one declarative component and, inline or by
// reference, its children.
type ComponentDecl struct {
	ID          string              `json:"id"`
	Description string              `json:"description,omitempty"`
	Inputs      []InputDecl         `json:"inputs,omitempty"`
	Outputs     []OutputDecl        `json:"outputs,omitempty"`
	State       *StateDecl          `json:"state,omitempty"`
	Behavior    *BehaviorDecl       `json:"behavior,omitempty"`
	Permissions map[string][]string `json:"permissions,omitempty"` // role → granted actions
	Children    []ChildDecl         `json:"children,omitempty"`
}

// ChildDecl is either an inline component or a reference to a top-level one.
// A referenced component is moved under the referencing parent.
type ChildDecl struct {
	Ref       string `json:"ref,omitempty"`
	*ComponentDecl
}

// InputDecl is a typed component input with CEL validation predicates.
type InputDecl struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Validations []string `json:"validations,omitempty"`
}

// OutputDecl is a typed component output with the guarantees it advertises.
type OutputDecl struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Guarantees []string `json:"guarantees,omitempty"`
}

// StateDecl holds a component's state schema and, optionally, an explicit
// state machine.
type StateDecl struct {
	Fields      map[string]string `json:"fields,omitempty"` // field name → type tag
	Initial     string            `json:"initial,omitempty"`
	States      []StateNodeDecl   `json:"states,omitempty"`
	Transitions []TransitionDecl  `json:"transitions,omitempty"`
}

// StateNodeDecl declares one state of an explicit state machine.
type StateNodeDecl struct {
	ID         string   `json:"id"`
	Initial    bool     `json:"initial,omitempty"`
	Terminal   bool     `json:"terminal,omitempty"`
	Triggers   []string `json:"triggers,omitempty"` // triggers this state is expected to handle
	Timeout    string   `json:"timeout,omitempty"`  // Go duration, e.g. "48h"
	Escalation string   `json:"escalation,omitempty"`
}

// TransitionDecl declares one edge of an explicit state machine.
type TransitionDecl struct {
	ID      string   `json:"id,omitempty"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Trigger string   `json:"trigger"`
	Guards  []string `json:"guards,omitempty"`
	Actions []string `json:"actions,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Audit   []string `json:"audit,omitempty"`
}

// BehaviorDecl is a component's ordered behavior steps.
type BehaviorDecl struct {
	Steps []BehaviorStep `json:"steps"`
}

// StepKind enumerates the kinds of behavior steps.
type StepKind string

const (
	StepKindValidation     StepKind = "validation"
	StepKindStateCheck     StepKind = "state-check"
	StepKindStateUpdate    StepKind = "state-update"
	StepKindSecurityCheck  StepKind = "security-check"
	StepKindConditional    StepKind = "conditional"
	StepKindTerminalAction StepKind = "terminal-action"
)

// Terminal results a continuation may name instead of a step id.
const (
	ResultSuccess = "Success"
	ResultFailure = "Failure"
)

// BehaviorStep is one step of a component's behavior. Continuations name
// another step id or one of the terminal results.
type BehaviorStep struct {
	ID         string   `json:"id"`
	Kind       StepKind `json:"kind"`
	Condition  string   `json:"condition,omitempty"` // symbolic predicate, never evaluated numerically
	Next       string   `json:"next,omitempty"`
	OnSuccess  string   `json:"on_success,omitempty"`
	OnFailure  string   `json:"on_failure,omitempty"`
	IfTrue     string   `json:"if_true,omitempty"`
	IfFalse    string   `json:"if_false,omitempty"`
	Emits      []string `json:"emits,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
	Escalation string   `json:"escalation,omitempty"`
}

// ValidStepKinds is the set of recognized step kinds.
var ValidStepKinds = map[StepKind]bool{
	StepKindValidation:     true,
	StepKindStateCheck:     true,
	StepKindStateUpdate:    true,
	StepKindSecurityCheck:  true,
	StepKindConditional:    true,
	StepKindTerminalAction: true,
}

// IsTerminalResult reports whether a continuation names a terminal result.
func IsTerminalResult(s string) bool {
	return s == ResultSuccess || s == ResultFailure
}
