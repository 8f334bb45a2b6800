package diagram

// NodeKind classifies a diagram node by its role in the state machine.
type NodeKind string

const (
	NodeKindInitial      NodeKind = "initial"
	NodeKindIntermediate NodeKind = "intermediate"
	NodeKindTerminal     NodeKind = "terminal"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is one state.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Terminal bool // an initial state may also be terminal
	Cited    bool // the location a verification result points at
}

// Edge is one transition.
type Edge struct {
	ID    string
	From  string
	To    string
	Label string
	Cited bool // part of a counterexample
}
