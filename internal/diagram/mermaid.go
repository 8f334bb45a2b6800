package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid state diagram.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("stateDiagram-v2\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		id := mermaidSafeID(node.ID)
		if id != node.ID || strings.Contains(node.Label, "\n") {
			fmt.Fprintf(&b, "    state %q as %s\n", mermaidEscapeLabel(firstLine(node.Label)), id)
		}
		if node.Kind == NodeKindInitial {
			fmt.Fprintf(&b, "    [*] --> %s\n", id)
		}
	}

	for _, edge := range model.Edges {
		fmt.Fprintf(&b, "    %s --> %s", mermaidSafeID(edge.From), mermaidSafeID(edge.To))
		if edge.Label != "" {
			fmt.Fprintf(&b, " : %s", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString("\n")
	}

	for _, node := range model.Nodes {
		if node.Terminal {
			fmt.Fprintf(&b, "    %s --> [*]\n", mermaidSafeID(node.ID))
		}
	}

	var cited []string
	for _, node := range model.Nodes {
		if node.Cited {
			cited = append(cited, mermaidSafeID(node.ID))
		}
	}
	if len(cited) > 0 {
		b.WriteString("\n")
		b.WriteString("    classDef cited fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
		for _, id := range cited {
			fmt.Fprintf(&b, "    class %s cited\n", id)
		}
	}

	return b.String()
}

// mermaidSafeID converts a state id to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_", "/", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel strips characters Mermaid treats as syntax in labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(":", "#58;", ";", "#59;", "\n", " ")
	return r.Replace(s)
}
