package compiler

import (
	"slices"
	"strings"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"

	"github.com/roach88/rdo/internal/ir"
)

// ComputationCycle is a set of computed columns that depend on each other.
type ComputationCycle struct {
	Path    []string `json:"path"` // ["Order.Total", "Order.Items.Amount", "Order.Total"]
	Message string   `json:"message"`
}

// dependencyGraph maps a computed column to the computed columns its
// expression reads. Nodes are dotted model paths plus the column name.
type dependencyGraph map[string][]string

// AnalyzeCycles reports every cycle among the computed columns of spec.
// Expressions that do not parse are skipped; Validate reports them.
//
// The algorithm:
//  1. Build column → column edges from the names each expression reads
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
func AnalyzeCycles(spec *ir.SchemaSpec) []ComputationCycle {
	graph := buildDependencyGraph(spec)
	var cycles []ComputationCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		path := cyclePath(scc, graph)
		cycles = append(cycles, ComputationCycle{
			Path:    path,
			Message: "computation cycle: " + strings.Join(path, " → "),
		})
	}
	return cycles
}

func buildDependencyGraph(spec *ir.SchemaSpec) dependencyGraph {
	graph := make(dependencyGraph)
	for i := range spec.Models {
		root := &spec.Models[i]
		root.Walk(func(path string, m *ir.ModelSpec) {
			for _, c := range m.Columns {
				if c.Computed == "" {
					continue
				}
				node := path + "." + c.Name
				graph[node] = []string{}
				for _, ref := range exprRefs(c.Computed) {
					target, ok := resolveSpecColumn(root, path, ref)
					if ok && target.col.Computed != "" {
						graph[node] = append(graph[node], target.path+"."+target.col.Name)
					}
				}
			}
		})
	}
	return graph
}

// exprRefs returns the names an expression reads, excluding function names.
func exprRefs(src string) []string {
	node, err := parser.ParseExpr("expr", src)
	if err != nil {
		return nil
	}
	var refs []string
	var walk func(ast.Expr)
	walk = func(n ast.Expr) {
		switch x := n.(type) {
		case *ast.Ident:
			refs = append(refs, x.Name)
		case *ast.SelectorExpr:
			if name, ok := selectorPath(x); ok {
				refs = append(refs, name)
			}
		case *ast.ParenExpr:
			walk(x.X)
		case *ast.UnaryExpr:
			walk(x.X)
		case *ast.BinaryExpr:
			walk(x.X)
			walk(x.Y)
		case *ast.CallExpr:
			for _, a := range x.Args {
				walk(a)
			}
		}
	}
	walk(node)
	return refs
}

func selectorPath(n ast.Expr) (string, bool) {
	switch x := n.(type) {
	case *ast.Ident:
		return x.Name, true
	case *ast.SelectorExpr:
		head, ok := selectorPath(x.X)
		sel, isIdent := x.Sel.(*ast.Ident)
		if !ok || !isIdent {
			return "", false
		}
		return head + "." + sel.Name, true
	}
	return "", false
}

type specColumn struct {
	path string
	col  *ir.ColumnSpec
}

// resolveSpecColumn resolves ref the way expressions resolve names: from
// the owning model down through children, then from each ancestor.
func resolveSpecColumn(root *ir.ModelSpec, ownerPath, ref string) (specColumn, bool) {
	chain := strings.Split(ownerPath, ".")
	for depth := len(chain); depth > 0; depth-- {
		m := root
		for _, name := range chain[1:depth] {
			m, _ = m.Child(name)
		}
		path := strings.Join(chain[:depth], ".")
		segments := strings.Split(ref, ".")
		cur := m
		ok := true
		for _, name := range segments[:len(segments)-1] {
			if cur, ok = cur.Child(name); !ok {
				break
			}
			path += "." + name
		}
		if !ok {
			continue
		}
		if col, found := cur.Column(segments[len(segments)-1]); found {
			return specColumn{path: path, col: col}, true
		}
	}
	return specColumn{}, false
}

// tarjanSCC finds strongly connected components. Nodes are visited in
// sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   int
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
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath returns the shortest cycle through the first SCC member.
func cyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	prev := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, w := range graph[cur] {
			if w == start {
				path := []string{start}
				for n := cur; n != start; n = prev[n] {
					path = append(path, n)
				}
				path = append(path, start)
				slices.Reverse(path)
				return path
			}
			if _, seen := prev[w]; members[w] && !seen {
				prev[w] = cur
				queue = append(queue, w)
			}
		}
	}
	return []string{start, start}
}
