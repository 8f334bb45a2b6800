package schema

import (
	"errors"
	"fmt"
)

// Issue is a single structural problem with location context.
type Issue struct {
	Component string `json:"component,omitempty"`
	Path      string `json:"path,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Issues aggregates every problem found while building a graph so a single
// parse reports all of them instead of just the first.
type Issues struct {
	List []Issue `json:"issues,omitempty"`
}

// Valid returns true if no issue was recorded.
func (r *Issues) Valid() bool {
	return len(r.List) == 0
}

// Add appends an issue.
func (r *Issues) Add(component, path, code, message string) {
	r.List = append(r.List, Issue{
		Component: component, Path: path, Code: code, Message: message,
	})
}

// Addf appends an issue with a formatted message.
func (r *Issues) Addf(component, path, code, format string, args ...any) {
	r.Add(component, path, code, fmt.Sprintf(format, args...))
}

// Merge combines another Issues into this one.
func (r *Issues) Merge(other *Issues) {
	if other == nil {
		return
	}
	r.List = append(r.List, other.List...)
}

// Has reports whether any issue carries the given code.
func (r *Issues) Has(code string) bool {
	for _, i := range r.List {
		if i.Code == code {
			return true
		}
	}
	return false
}

// ToError converts the collected issues to a DavinciError with the given
// umbrella code, or nil if there are none.
func (r *Issues) ToError(code string) error {
	if r.Valid() {
		return nil
	}

	first := r.List[0]
	msg := fmt.Sprintf("%s: %s", first.Code, first.Message)
	if len(r.List) > 1 {
		msg = fmt.Sprintf("%d structural errors (first: %s: %s)", len(r.List), first.Code, first.Message)
	}

	return NewError(code, msg).
		WithComponent(first.Component).
		WithDetails(map[string]any{
			"issue_count": len(r.List),
			"issues":      r.List,
		})
}

// IssuesFrom extracts the issue list carried by an error produced by ToError.
func IssuesFrom(err error) []Issue {
	var de *DavinciError
	if !errors.As(err, &de) || de.Details == nil {
		return nil
	}
	list, _ := de.Details["issues"].([]Issue)
	return list
}
