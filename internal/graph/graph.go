package graph

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wizzardx/davinci/internal/predicate"
	"github.com/wizzardx/davinci/pkg/schema"
)

// PathSep separates ancestor ids in a component path.
const PathSep = "/"

// Component is one node of the arena. Children are referenced by path, never
// embedded, so traversal and cycle checks work over ids alone.
type Component struct {
	ID          string
	Path        string
	Parent      string // parent path, "" for roots
	Depth       int
	Description string
	Inputs      []schema.InputDecl
	Outputs     []schema.OutputDecl
	State       *schema.StateDecl
	Behavior    *schema.BehaviorDecl
	Permissions map[string][]string
	Children    []string // child paths in declared order
}

// Graph is the immutable, arena-backed component graph built by Parse.
type Graph struct {
	nodes map[string]*Component // path → component
	byID  map[string][]string   // bare id → paths
	roots []string              // root paths in declared order
	types *Vocabulary
}

// Parse builds a Graph from a document. All structural problems found are
// collected and returned together as a single STRUCTURAL_ERROR whose details
// list every issue; the graph is only returned when there are none.
func Parse(doc *schema.Document) (*Graph, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "document is nil")
	}

	issues := &schema.Issues{}

	vocab := NewVocabulary(doc.Types)
	for _, name := range sortedKeys(doc.Types) {
		if err := vocab.Check(name); err != nil {
			issues.Addf("", "types."+name, schema.ErrCodeUnknownTypeReference, "type alias %s: %v", name, err)
		}
	}

	// First pass: index top-level components and reject duplicates.
	top := make(map[string]*schema.ComponentDecl, len(doc.Components))
	order := make([]string, 0, len(doc.Components))
	for i := range doc.Components {
		c := &doc.Components[i]
		if c.ID == "" {
			issues.Addf("", fmt.Sprintf("components[%d]", i), schema.ErrCodeValidation, "component at index %d has empty id", i)
			continue
		}
		if _, exists := top[c.ID]; exists {
			issues.Addf(c.ID, fmt.Sprintf("components[%d]", i), schema.ErrCodeDuplicateIdentifier,
				"duplicate component id %q at top level", c.ID)
			continue
		}
		top[c.ID] = c
		order = append(order, c.ID)
	}

	// Second pass: reference edges, dangling and shared refs, cycles.
	refs := collectRefs(top, order)
	referenced := make(map[string]int, len(top))
	for _, owner := range order {
		for _, target := range refs[owner] {
			if _, ok := top[target]; !ok {
				issues.Addf(owner, "", schema.ErrCodeUnknownComponentReference,
					"component %q references unknown component %q", owner, target)
				continue
			}
			referenced[target]++
		}
	}
	for _, id := range order {
		if referenced[id] > 1 {
			issues.Addf(id, "", schema.ErrCodeSharedChild,
				"component %q is referenced as a child by %d parents", id, referenced[id])
		}
	}
	for _, id := range detectCycles(order, refs, top) {
		issues.Addf(id, "", schema.ErrCodeCyclicReference,
			"component %q transitively declares itself as a child", id)
	}

	if !issues.Valid() {
		return nil, issues.ToError(schema.ErrCodeStructural)
	}

	g := &Graph{
		nodes: make(map[string]*Component),
		byID:  make(map[string][]string),
		types: vocab,
	}

	// Third pass: lay out the arena from the unreferenced roots.
	for _, id := range order {
		if referenced[id] > 0 {
			continue
		}
		if path := g.add(top[id], "", 0, top, issues); path != "" {
			g.roots = append(g.roots, path)
		}
	}

	if !issues.Valid() {
		return nil, issues.ToError(schema.ErrCodeStructural)
	}
	return g, nil
}

// add inserts decl under parent and recurses into its children. It returns the
// new path.
func (g *Graph) add(decl *schema.ComponentDecl, parent string, depth int, top map[string]*schema.ComponentDecl, issues *schema.Issues) string {
	path := decl.ID
	if parent != "" {
		path = parent + PathSep + decl.ID
	}

	c := &Component{
		ID:          decl.ID,
		Path:        path,
		Parent:      parent,
		Depth:       depth,
		Description: decl.Description,
		Inputs:      decl.Inputs,
		Outputs:     decl.Outputs,
		State:       decl.State,
		Behavior:    decl.Behavior,
		Permissions: decl.Permissions,
	}
	g.nodes[path] = c
	g.byID[decl.ID] = append(g.byID[decl.ID], path)

	validateComponent(c, g.types, issues)

	seen := make(map[string]bool, len(decl.Children))
	for i, child := range decl.Children {
		var childDecl *schema.ComponentDecl
		switch {
		case child.Ref != "":
			childDecl = top[child.Ref]
		case child.ComponentDecl != nil:
			childDecl = child.ComponentDecl
		}
		if childDecl == nil {
			issues.Addf(path, fmt.Sprintf("children[%d]", i), schema.ErrCodeValidation,
				"child %d of %q is neither a reference nor an inline component", i, path)
			continue
		}
		if childDecl.ID == "" {
			issues.Addf(path, fmt.Sprintf("children[%d]", i), schema.ErrCodeValidation,
				"child %d of %q has empty id", i, path)
			continue
		}
		if seen[childDecl.ID] {
			issues.Addf(path, fmt.Sprintf("children[%d]", i), schema.ErrCodeDuplicateIdentifier,
				"duplicate child id %q under %q", childDecl.ID, path)
			continue
		}
		seen[childDecl.ID] = true
		c.Children = append(c.Children, g.add(childDecl, path, depth+1, top, issues))
	}
	return path
}

// validateComponent checks field types, predicates, durations and the
// uniqueness of step, state and transition ids within one component.
func validateComponent(c *Component, vocab *Vocabulary, issues *schema.Issues) {
	for i, in := range c.Inputs {
		loc := fmt.Sprintf("inputs[%d]", i)
		if err := vocab.Check(in.Type); err != nil {
			issues.Addf(c.Path, loc, schema.ErrCodeUnknownTypeReference, "input %q: %v", in.Name, err)
		}
		for j, v := range in.Validations {
			if err := predicate.CheckSyntax(v); err != nil {
				issues.Addf(c.Path, fmt.Sprintf("%s.validations[%d]", loc, j), schema.ErrCodeInvalidPredicate,
					"input %q validation %q: %v", in.Name, v, err)
			}
		}
	}
	for i, out := range c.Outputs {
		if err := vocab.Check(out.Type); err != nil {
			issues.Addf(c.Path, fmt.Sprintf("outputs[%d]", i), schema.ErrCodeUnknownTypeReference, "output %q: %v", out.Name, err)
		}
	}

	if c.State != nil {
		for _, name := range sortedKeys(c.State.Fields) {
			if err := vocab.Check(c.State.Fields[name]); err != nil {
				issues.Addf(c.Path, "state.fields."+name, schema.ErrCodeUnknownTypeReference, "state field %q: %v", name, err)
			}
		}

		states := make(map[string]bool, len(c.State.States))
		for i, s := range c.State.States {
			loc := fmt.Sprintf("state.states[%d]", i)
			if states[s.ID] {
				issues.Addf(c.Path, loc, schema.ErrCodeDuplicateIdentifier, "duplicate state id %q", s.ID)
			}
			states[s.ID] = true
			checkDuration(c.Path, loc+".timeout", s.Timeout, issues)
		}

		transitions := make(map[string]bool, len(c.State.Transitions))
		for i, t := range c.State.Transitions {
			if t.ID == "" {
				continue
			}
			if transitions[t.ID] {
				issues.Addf(c.Path, fmt.Sprintf("state.transitions[%d]", i), schema.ErrCodeDuplicateIdentifier,
					"duplicate transition id %q", t.ID)
			}
			transitions[t.ID] = true
		}
	}

	if c.Behavior != nil {
		steps := make(map[string]bool, len(c.Behavior.Steps))
		for i, s := range c.Behavior.Steps {
			loc := fmt.Sprintf("behavior.steps[%d]", i)
			if s.ID == "" {
				issues.Addf(c.Path, loc, schema.ErrCodeValidation, "step at index %d has empty id", i)
				continue
			}
			if schema.IsTerminalResult(s.ID) {
				issues.Addf(c.Path, loc, schema.ErrCodeValidation, "step id %q is reserved for terminal results", s.ID)
			}
			if steps[s.ID] {
				issues.Addf(c.Path, loc, schema.ErrCodeDuplicateIdentifier, "duplicate step id %q", s.ID)
			}
			steps[s.ID] = true
			if !schema.ValidStepKinds[s.Kind] {
				issues.Addf(c.Path, loc, schema.ErrCodeValidation, "step %s has unknown kind: %s", s.ID, s.Kind)
			}
			checkDuration(c.Path, loc+".timeout", s.Timeout, issues)
		}
	}
}

func checkDuration(component, loc, value string, issues *schema.Issues) {
	if value == "" {
		return
	}
	if _, err := time.ParseDuration(value); err != nil {
		issues.Addf(component, loc, schema.ErrCodeInvalidDuration, "invalid duration %q", value)
	}
}

// Lookup returns the component at an exact path.
func (g *Graph) Lookup(path string) (*Component, bool) {
	c, ok := g.nodes[path]
	return c, ok
}

// Resolve finds a component by exact path, falling back to a bare id when that
// id is unambiguous across the graph.
func (g *Graph) Resolve(idOrPath string) (*Component, bool) {
	if c, ok := g.nodes[idOrPath]; ok {
		return c, true
	}
	if paths := g.byID[idOrPath]; len(paths) == 1 {
		return g.nodes[paths[0]], true
	}
	return nil, false
}

// CanonicalScope rewrites the component part of a property scope to the
// component's full path, keeping any "#transition" suffix. The global scope
// and scopes naming no component are returned unchanged.
func (g *Graph) CanonicalScope(scope string) string {
	if scope == schema.ScopeGlobal {
		return scope
	}
	path, suffix := scope, ""
	if i := strings.LastIndex(scope, schema.ScopeTransitionSep); i >= 0 {
		path, suffix = scope[:i], scope[i:]
	}
	c, ok := g.Resolve(path)
	if !ok {
		return scope
	}
	return c.Path + suffix
}

// Roots returns the root components in declared order.
func (g *Graph) Roots() []*Component {
	out := make([]*Component, 0, len(g.roots))
	for _, p := range g.roots {
		out = append(out, g.nodes[p])
	}
	return out
}

// Children returns the direct children of the component at path.
func (g *Graph) Children(path string) []*Component {
	c, ok := g.nodes[path]
	if !ok {
		return nil
	}
	out := make([]*Component, 0, len(c.Children))
	for _, p := range c.Children {
		out = append(out, g.nodes[p])
	}
	return out
}

// Len returns the number of components in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Types returns the graph's type vocabulary.
func (g *Graph) Types() *Vocabulary {
	return g.types
}

// SplitPath returns the ids along a component path.
func SplitPath(path string) []string {
	return strings.Split(path, PathSep)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
