package data

// dependencyGraph maps a computation name to the names of the computed
// columns it reads.
type dependencyGraph map[string][]string

// orderComputations returns the column computations in evaluation order
// (every computation after the computed columns it reads) or a
// COMPUTATION_CYCLE error naming the cycle.
func orderComputations(comps []*computation, byColumn map[AnyColumn]*computation) ([]*computation, error) {
	graph := make(dependencyGraph, len(comps))
	byName := make(map[string]*computation, len(comps))
	nodes := make([]string, 0, len(comps))
	for _, cp := range comps {
		name := cp.name()
		byName[name] = cp
		nodes = append(nodes, name)
		graph[name] = []string{}
		for _, c := range cp.reads {
			graph[name] = append(graph[name], byColumn[c].name())
		}
	}

	sccs := tarjanSCC(graph, nodes)
	order := make([]*computation, 0, len(comps))
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			return nil, &SchemaError{
				Code:    ErrCodeComputationCycle,
				Message: cyclePathMessage(reconstructCyclePath(scc, graph)),
				Model:   byName[scc[0]].model.name,
			}
		}
		order = append(order, byName[scc[0]])
	}
	return order, nil
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in the given order so the result is deterministic. A
// component is emitted only after every component reachable from it, which
// places dependencies before their dependents.
func tarjanSCC(graph dependencyGraph, nodes []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath follows edges inside an SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
