package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wizzardx/davinci/pkg/schema"
)

var statusOrder = []schema.Status{schema.StatusProven, schema.StatusViolated, schema.StatusInconclusive}

var statusTags = map[schema.Status]string{
	schema.StatusProven:       "[PASS]",
	schema.StatusViolated:     "[FAIL]",
	schema.StatusInconclusive: "[????]",
}

// RenderText renders the report as plain text for terminals.
func RenderText(r RenderedReport) string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "%s\n%s\n\n", r.Title, strings.Repeat("=", len(r.Title)))
	}

	if len(r.Errors) > 0 {
		b.WriteString("EXTRACTION ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  [ERR] %s", e.Component)
			if e.Kind != "" {
				fmt.Fprintf(&b, " kind=%s", e.Kind)
			}
			fmt.Fprintf(&b, "\n        %s\n", e.Message)
		}
		b.WriteString("\n")
	}

	for _, g := range r.Groups {
		fmt.Fprintf(&b, "%s\n", strings.ToUpper(string(g.Severity)))
		for _, sg := range g.Scopes {
			fmt.Fprintf(&b, "  scope %s\n", sg.Scope)
			for _, e := range sg.Entries {
				fmt.Fprintf(&b, "    %s %s (%s)", statusTags[e.Status], e.PropertyID, e.Method)
				if e.Reason != "" {
					fmt.Fprintf(&b, " reason=%s", e.Reason)
				}
				b.WriteString("\n")
				if e.Component != "" || e.Location != "" {
					fmt.Fprintf(&b, "        at %s\n", location(e))
				}
				if e.Message != "" {
					fmt.Fprintf(&b, "        %s\n", e.Message)
				}
				for _, step := range e.Counterexample {
					fmt.Fprintf(&b, "        | %s\n", step)
				}
				if e.Fix != "" {
					fmt.Fprintf(&b, "        fix: %s\n", e.Fix)
				}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(summaryLine(r.Summary))
	b.WriteString("\n")
	return b.String()
}

// RenderMarkdown renders the report as Markdown, embedding any diagrams as
// mermaid code blocks.
func RenderMarkdown(r RenderedReport) string {
	var b strings.Builder
	title := r.Title
	if title == "" {
		title = "Verification report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%s\n\n", summaryLine(r.Summary))

	if len(r.Errors) > 0 {
		b.WriteString("## Extraction errors\n\n")
		b.WriteString("| component | kind | message |\n")
		b.WriteString("|---|---|---|\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", e.Component, e.Kind, mdCell(e.Message))
		}
		b.WriteString("\n")
	}

	for _, g := range r.Groups {
		fmt.Fprintf(&b, "## %s\n\n", strings.ToUpper(string(g.Severity)))
		for _, sg := range g.Scopes {
			fmt.Fprintf(&b, "### `%s`\n\n", sg.Scope)
			b.WriteString("| property | method | status | location | detail |\n")
			b.WriteString("|---|---|---|---|---|\n")
			for _, e := range sg.Entries {
				detail := e.Message
				if e.Reason != "" {
					detail = e.Reason + ": " + detail
				}
				fmt.Fprintf(&b, "| %s | %s | **%s** | %s | %s |\n",
					e.PropertyID, e.Method, e.Status, mdCell(location(e)), mdCell(detail))
			}
			b.WriteString("\n")

			for _, e := range sg.Entries {
				if len(e.Counterexample) == 0 && e.Fix == "" && e.Diagram == "" {
					continue
				}
				fmt.Fprintf(&b, "#### %s\n\n", e.PropertyID)
				if len(e.Counterexample) > 0 {
					b.WriteString("Counterexample:\n\n")
					for i, step := range e.Counterexample {
						fmt.Fprintf(&b, "%d. `%s`\n", i+1, step)
					}
					b.WriteString("\n")
				}
				if e.Fix != "" {
					fmt.Fprintf(&b, "Suggested fix: %s\n\n", e.Fix)
				}
				if e.Diagram != "" {
					fmt.Fprintf(&b, "```mermaid\n%s```\n\n", e.Diagram)
				}
			}
		}
	}
	return b.String()
}

// RenderJSON renders the report as indented JSON.
func RenderJSON(r RenderedReport) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data) + "\n", nil
}

func summaryLine(s Summary) string {
	parts := make([]string, 0, len(statusOrder))
	for _, st := range statusOrder {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByStatus[st], st))
	}
	verdict := "PASS"
	if s.Failed {
		verdict = "FAIL"
	}
	line := fmt.Sprintf("%s: %d properties (%s)", verdict, s.Total, strings.Join(parts, ", "))
	if s.Errors > 0 {
		line += fmt.Sprintf("; %d extraction error(s)", s.Errors)
	}
	return line
}

func location(e Entry) string {
	switch {
	case e.Component != "" && e.Location != "":
		return e.Component + " @ " + e.Location
	case e.Component != "":
		return e.Component
	}
	return e.Location
}

func mdCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
