package schema

// Status is the outcome of checking one property.
type Status string

const (
	StatusProven       Status = "proven"
	StatusViolated     Status = "violated"
	StatusInconclusive Status = "inconclusive"
)

// Reasons attached to inconclusive results.
const (
	ReasonUnparseableSpecification = "unparseable-specification"
	ReasonCancelled                = "cancelled"
	ReasonTimeout                  = "timeout"
	ReasonStepBudgetExhausted      = "step-budget-exhausted"
	ReasonDepthBoundExceeded       = "depth-bound-exceeded"
	ReasonUnknownScope             = "unknown-scope"
	ReasonExtractionFailed         = "extraction-failed"
	ReasonUnsupportedScope         = "unsupported-scope"
	ReasonInternalError            = "internal-error"
	ReasonNoMachines               = "no-machines"
)

// TransitionRef identifies one transition of an extracted state machine.
type TransitionRef struct {
	Component string `json:"component"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Trigger   string `json:"trigger"`
}

// VerificationResult is the first-class outcome of checking one property.
// Violations and inconclusive outcomes are values, not errors.
type VerificationResult struct {
	PropertyID     string          `json:"property_id"`
	Scope          string          `json:"scope"`
	Method         Method          `json:"method"`
	Severity       Severity        `json:"severity"`
	Status         Status          `json:"status"`
	Component      string          `json:"component,omitempty"`
	Location       string          `json:"location,omitempty"` // state or transition the outcome cites
	Counterexample []TransitionRef `json:"counterexample,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Message        string          `json:"message,omitempty"`
}
