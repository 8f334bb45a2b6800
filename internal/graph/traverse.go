package graph

import "iter"

// DFS returns a lazy pre-order traversal: each root, then its subtree, in
// declared nesting order. The sequence yields every component exactly once
// and restarts from the roots each time it is ranged over.
func (g *Graph) DFS() iter.Seq[*Component] {
	return func(yield func(*Component) bool) {
		stack := make([]string, 0, len(g.roots))
		for i := len(g.roots) - 1; i >= 0; i-- {
			stack = append(stack, g.roots[i])
		}
		for len(stack) > 0 {
			path := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			c := g.nodes[path]
			if !yield(c) {
				return
			}
			for i := len(c.Children) - 1; i >= 0; i-- {
				stack = append(stack, c.Children[i])
			}
		}
	}
}

// BFS returns a lazy level-order traversal starting from the roots.
func (g *Graph) BFS() iter.Seq[*Component] {
	return func(yield func(*Component) bool) {
		queue := make([]string, len(g.roots))
		copy(queue, g.roots)
		for len(queue) > 0 {
			path := queue[0]
			queue = queue[1:]

			c := g.nodes[path]
			if !yield(c) {
				return
			}
			queue = append(queue, c.Children...)
		}
	}
}

// Paths returns every component path in DFS order.
func (g *Graph) Paths() []string {
	out := make([]string, 0, len(g.nodes))
	for c := range g.DFS() {
		out = append(out, c.Path)
	}
	return out
}
