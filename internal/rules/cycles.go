package rules

import "sort"

// findCycles runs an iterative-shaped DFS with an on-stack set over graph,
// reporting the exact path of every back-edge found whose resulting cycle
// length is within maxDepth edges.
// A cycle of length maxDepth+1 is not reported; one of length maxDepth is.
// maxDepth bounds the reported cycle's own length, never how far a cycle
// may sit from the DFS root, so exploration itself is not depth-pruned.
func findCycles(graph map[string][]string, maxDepth int) [][]string {
	var nodes []string
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	visited := map[string]bool{}
	onStack := map[string]bool{}
	var path []string
	var cycles [][]string

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range graph[node] {
			if onStack[next] {
				idx := indexOf(path, next)
				if idx >= 0 {
					cyclePath := append(append([]string{}, path[idx:]...), next)
					if len(cyclePath)-1 <= maxDepth {
						cycles = append(cycles, cyclePath)
					}
				}
				continue
			}
			if !visited[next] {
				dfs(next)
			}
		}

		path = path[:len(path)-1]
		onStack[node] = false
	}

	for _, n := range nodes {
		if !visited[n] {
			dfs(n)
		}
	}
	return cycles
}

func indexOf(path []string, node string) int {
	for i, p := range path {
		if p == node {
			return i
		}
	}
	return -1
}
