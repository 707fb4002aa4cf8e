package sheet

import "sort"

// DependencyGraph tracks which cells a formula reads. Edges point from
// a formula cell to its inputs; the dependents index is the exact
// inverse and every mutation keeps the two in sync.
type DependencyGraph struct {
	dependencies map[Addr]map[Addr]struct{}
	dependents   map[Addr]map[Addr]struct{}
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		dependencies: make(map[Addr]map[Addr]struct{}),
		dependents:   make(map[Addr]map[Addr]struct{}),
	}
}

// SetDependencies replaces every outgoing edge of cell with deps.
func (g *DependencyGraph) SetDependencies(cell Addr, deps []Addr) {
	g.RemoveDependencies(cell)
	for _, dep := range deps {
		g.AddDependency(cell, dep)
	}
}

// AddDependency records that cell reads dep.
func (g *DependencyGraph) AddDependency(cell, dep Addr) {
	if g.dependencies[cell] == nil {
		g.dependencies[cell] = make(map[Addr]struct{})
	}
	g.dependencies[cell][dep] = struct{}{}
	if g.dependents[dep] == nil {
		g.dependents[dep] = make(map[Addr]struct{})
	}
	g.dependents[dep][cell] = struct{}{}
}

// RemoveDependencies drops every outgoing edge of cell. Incoming edges
// from other formulas are untouched.
func (g *DependencyGraph) RemoveDependencies(cell Addr) {
	for dep := range g.dependencies[cell] {
		delete(g.dependents[dep], cell)
		if len(g.dependents[dep]) == 0 {
			delete(g.dependents, dep)
		}
	}
	delete(g.dependencies, cell)
}

// Dependencies returns the cells cell reads, in address order.
func (g *DependencyGraph) Dependencies(cell Addr) []Addr {
	return sortedAddrs(g.dependencies[cell])
}

// Dependents returns the cells whose formulas read cell, in address
// order.
func (g *DependencyGraph) Dependents(cell Addr) []Addr {
	return sortedAddrs(g.dependents[cell])
}

// HasCycleFrom reports whether any dependency chain reachable from
// start revisits a cell already on the same chain. Cells are only
// flagged while on the current path, so diamonds (two chains joining at
// a shared input) are not mistaken for cycles.
func (g *DependencyGraph) HasCycleFrom(start Addr) bool {
	onPath := make(map[Addr]bool)
	done := make(map[Addr]bool)
	var visit func(Addr) bool
	visit = func(a Addr) bool {
		if onPath[a] {
			return true
		}
		if done[a] {
			return false
		}
		onPath[a] = true
		for dep := range g.dependencies[a] {
			if visit(dep) {
				return true
			}
		}
		onPath[a] = false
		done[a] = true
		return false
	}
	return visit(start)
}

// CalculationOrder returns the cells affected by a change to the given
// cells, ordered so every cell appears after all of its inputs. The
// affected set is the changed cells plus the transitive dependents.
// Ties are broken by address order so the result is deterministic.
func (g *DependencyGraph) CalculationOrder(changed []Addr) []Addr {
	affected := make(map[Addr]struct{})
	queue := make([]Addr, 0, len(changed))
	for _, a := range changed {
		if _, ok := affected[a]; ok {
			continue
		}
		affected[a] = struct{}{}
		queue = append(queue, a)
	}
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[a] {
			if _, ok := affected[dep]; ok {
				continue
			}
			affected[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}

	indegree := make(map[Addr]int, len(affected))
	for a := range affected {
		n := 0
		for dep := range g.dependencies[a] {
			if _, ok := affected[dep]; ok {
				n++
			}
		}
		indegree[a] = n
	}

	ready := make([]Addr, 0, len(affected))
	for a, n := range indegree {
		if n == 0 {
			ready = insertAddr(ready, a)
		}
	}

	order := make([]Addr, 0, len(affected))
	for len(ready) > 0 {
		a := ready[0]
		ready = ready[1:]
		order = append(order, a)
		for dep := range g.dependents[a] {
			if _, ok := affected[dep]; !ok {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertAddr(ready, dep)
			}
		}
	}

	// Cycles are rejected at set time, so every affected cell should
	// have been emitted. Append any leftovers in address order rather
	// than dropping them.
	if len(order) < len(affected) {
		rest := make([]Addr, 0, len(affected)-len(order))
		seen := make(map[Addr]struct{}, len(order))
		for _, a := range order {
			seen[a] = struct{}{}
		}
		for a := range affected {
			if _, ok := seen[a]; !ok {
				rest = append(rest, a)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].Less(rest[j]) })
		order = append(order, rest...)
	}
	return order
}

func sortedAddrs(set map[Addr]struct{}) []Addr {
	if len(set) == 0 {
		return nil
	}
	out := make([]Addr, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func insertAddr(sorted []Addr, a Addr) []Addr {
	i := sort.Search(len(sorted), func(i int) bool { return a.Less(sorted[i]) })
	sorted = append(sorted, Addr{})
	copy(sorted[i+1:], sorted[i:])
	sorted[i] = a
	return sorted
}
