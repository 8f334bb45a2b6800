package graph

import (
	"sort"

	"github.com/wizzardx/davinci/pkg/schema"
)

// collectRefs maps each top-level component id to the top-level ids its
// subtree references, following inline children but not the references
// themselves.
func collectRefs(top map[string]*schema.ComponentDecl, order []string) map[string][]string {
	refs := make(map[string][]string, len(order))
	for _, id := range order {
		var walk func(c *schema.ComponentDecl)
		walk = func(c *schema.ComponentDecl) {
			for _, child := range c.Children {
				if child.Ref != "" {
					refs[id] = append(refs[id], child.Ref)
					continue
				}
				if child.ComponentDecl != nil {
					walk(child.ComponentDecl)
				}
			}
		}
		walk(top[id])
	}
	return refs
}

// detectCycles runs Kahn's algorithm over the reference edges and returns the
// ids that lie on a cycle, sorted. Components that are merely downstream of a
// cycle are not reported.
func detectCycles(order []string, refs map[string][]string, top map[string]*schema.ComponentDecl) []string {
	inDegree := make(map[string]int, len(order))
	for _, id := range order {
		for _, target := range refs[id] {
			if _, ok := top[target]; ok {
				inDegree[target]++
			}
		}
	}

	queue := make([]string, 0, len(order))
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := make(map[string]bool, len(order))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited[node] = true

		next := make([]string, 0, len(refs[node]))
		for _, target := range refs[node] {
			if _, ok := top[target]; !ok {
				continue
			}
			inDegree[target]--
			if inDegree[target] == 0 {
				next = append(next, target)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(visited) == len(order) {
		return nil
	}

	var cyclic []string
	for _, id := range order {
		if !visited[id] && reachesSelf(id, refs, top) {
			cyclic = append(cyclic, id)
		}
	}
	sort.Strings(cyclic)
	return cyclic
}

// reachesSelf reports whether start can reach itself through reference edges.
func reachesSelf(start string, refs map[string][]string, top map[string]*schema.ComponentDecl) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), refs[start]...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == start {
			return true
		}
		if seen[node] {
			continue
		}
		seen[node] = true
		if _, ok := top[node]; ok {
			stack = append(stack, refs[node]...)
		}
	}
	return false
}
