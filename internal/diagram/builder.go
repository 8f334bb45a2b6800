package diagram

import (
	"fmt"
	"strings"

	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/pkg/schema"
)

// Build constructs a DiagramModel from an extracted state machine. When
// result is non-nil and belongs to the machine's component, its location and
// counterexample are highlighted.
func Build(m *machine.StateMachine, result *schema.VerificationResult) *DiagramModel {
	citedState := ""
	citedEdges := map[string]bool{}
	if result != nil && (result.Component == "" || result.Component == m.Component) {
		citedState = result.Location
		for _, ref := range result.Counterexample {
			if ref.Component == m.Component {
				citedEdges[ref.ID] = true
			}
		}
	}

	model := &DiagramModel{Title: m.Component}
	for _, s := range m.States {
		model.Nodes = append(model.Nodes, &Node{
			ID:       s.ID,
			Label:    stateLabel(s),
			Kind:     NodeKind(s.Kind),
			Terminal: s.Terminal,
			Cited:    s.ID == citedState,
		})
	}
	for _, t := range m.Transitions {
		model.Edges = append(model.Edges, Edge{
			ID:    t.ID,
			From:  t.From,
			To:    t.To,
			Label: edgeLabel(t),
			Cited: citedEdges[t.ID],
		})
	}
	return model
}

func stateLabel(s machine.State) string {
	if s.Timeout > 0 {
		return fmt.Sprintf("%s\ntimeout %s", s.ID, s.Timeout)
	}
	return s.ID
}

// edgeLabel renders "trigger [guards]".
func edgeLabel(t machine.Transition) string {
	if len(t.Guards) == 0 {
		return t.Trigger
	}
	return fmt.Sprintf("%s [%s]", t.Trigger, strings.Join(t.Guards, ", "))
}

// firstLine returns the first line of a multi-line string.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
