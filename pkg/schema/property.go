package schema

// Method is the verification technique a property is checked with.
type Method string

const (
	MethodCompleteness    Method = "state-machine-completeness"
	MethodReachability    Method = "reachability"
	MethodRoleBasedAccess Method = "role-based-access-analysis"
	MethodAuditTrail      Method = "audit-trail-verification"
	MethodTiming          Method = "timing-analysis"
	MethodCustomPredicate Method = "custom-predicate"
)

// ValidMethods is the fixed enumeration of verification methods.
var ValidMethods = map[Method]bool{
	MethodCompleteness:    true,
	MethodReachability:    true,
	MethodRoleBasedAccess: true,
	MethodAuditTrail:      true,
	MethodTiming:          true,
	MethodCustomPredicate: true,
}

// Severity ranks how much a violated property matters.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityLow      Severity = "low"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityLow}

// Rank returns the position of the severity in Severities, or len(Severities)
// for an unknown value.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return len(Severities)
}

// ScopeGlobal is the scope id of properties that apply to the whole graph.
const ScopeGlobal = "global"

// ScopeTransitionSep separates a component path from a transition id in a
// transition scope id, e.g. "orders/approval#submit".
const ScopeTransitionSep = "#"

// Property is a named, scoped assertion. Properties are immutable once registered.
type Property struct {
	ID            string   `json:"id"`
	Scope         string   `json:"scope"`
	Specification string   `json:"specification"`
	Method        Method   `json:"method"`
	Severity      Severity `json:"severity"`
}

// PropertyDecl is the document form of a property.
type PropertyDecl struct {
	ID            string   `json:"id"`
	Scope         string   `json:"scope,omitempty"` // default: global
	Specification string   `json:"specification,omitempty"`
	Method        Method   `json:"method"`
	Severity      Severity `json:"severity,omitempty"` // default: high
}

// ToProperty applies defaults and returns the registered form.
func (d PropertyDecl) ToProperty() Property {
	scope := d.Scope
	if scope == "" {
		scope = ScopeGlobal
	}
	sev := d.Severity
	if sev == "" {
		sev = SeverityHigh
	}
	return Property{
		ID:            d.ID,
		Scope:         scope,
		Specification: d.Specification,
		Method:        d.Method,
		Severity:      sev,
	}
}
