// Package cp: TSP based path operators
//
// TSPOpt and TSPLns reorder parts of a path optimally with an exact
// Hamiltonian cycle solver (dynamic programming over subsets, Held-Karp).
// LinKernighan chains 2-opt (and optionally one 3-opt) moves guided by the
// nearest neighbors of each node.
package cp

import (
	"math"

	"golang.org/x/exp/slices"
)

// PathCost returns the cost of the arc i -> j on path.
type PathCost func(i, j, path int64) int64

// maxHeldKarp bounds the size of the exact solver.
const maxHeldKarp = 13

// heldKarp returns a minimum cost Hamiltonian cycle over the nodes of cost,
// starting and ending at 0. The result holds len(cost)+1 entries.
func heldKarp(cost [][]int64) []int {
	n := len(cost)
	if n == 1 {
		return []int{0, 0}
	}
	full := 1 << (n - 1)
	// dp[set][j]: cheapest path from 0 visiting set (over nodes 1..n-1) and
	// ending at j, with j in set.
	dp := make([][]int64, full)
	parent := make([][]int, full)
	for set := range dp {
		dp[set] = make([]int64, n)
		parent[set] = make([]int, n)
		for j := range dp[set] {
			dp[set][j] = math.MaxInt64
			parent[set][j] = -1
		}
	}
	for j := 1; j < n; j++ {
		dp[1<<(j-1)][j] = cost[0][j]
	}
	for set := 1; set < full; set++ {
		for j := 1; j < n; j++ {
			bit := 1 << (j - 1)
			if set&bit == 0 || dp[set][j] == math.MaxInt64 {
				continue
			}
			for k := 1; k < n; k++ {
				kb := 1 << (k - 1)
				if set&kb != 0 {
					continue
				}
				c := capAdd(dp[set][j], cost[j][k])
				if c < dp[set|kb][k] {
					dp[set|kb][k] = c
					parent[set|kb][k] = j
				}
			}
		}
	}
	last, best := 1, int64(math.MaxInt64)
	for j := 1; j < n; j++ {
		if c := capAdd(dp[full-1][j], cost[j][0]); c < best {
			best, last = c, j
		}
	}
	tour := make([]int, 0, n+1)
	tour = append(tour, 0)
	set, j := full-1, last
	for j > 0 {
		tour = append(tour, j)
		prev := parent[set][j]
		set &^= 1 << (j - 1)
		j = prev
	}
	for a, b := 1, len(tour)-1; a < b; a, b = a+1, b-1 {
		tour[a], tour[b] = tour[b], tour[a]
	}
	return append(tour, 0)
}

// TSPOpt replaces chains of chainLength nodes by their optimal ordering.
func TSPOpt(nexts, paths []*IntVar, cost PathCost, chainLength int) *PathOperator {
	chainLength = min(max(chainLength, 2), maxHeldKarp-1)
	var nodes []int64
	var matrix [][]int64
	return NewPathOperator(nexts, paths, 1, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			nodes = nodes[:0]
			node := p.BaseNode(0)
			for i := 0; i < chainLength+1; i++ {
				nodes = append(nodes, node)
				if p.IsPathEnd(node) {
					break
				}
				node = p.Next(node)
			}
			if len(nodes) <= 3 {
				return false
			}
			path := p.Path(p.BaseNode(0))
			size := len(nodes) - 1
			matrix = resizeMatrix(matrix, size)
			for i := 0; i < size; i++ {
				matrix[i][0] = cost(nodes[i], nodes[size], path)
				for j := 1; j < size; j++ {
					matrix[i][j] = cost(nodes[i], nodes[j], path)
				}
			}
			tour := heldKarp(matrix)
			for i := 0; i < size-1; i++ {
				p.SetNext(nodes[tour[i]], nodes[tour[i+1]], path)
			}
			p.SetNext(nodes[tour[size-1]], nodes[size], path)
			return true
		},
	})
}

func resizeMatrix(m [][]int64, size int) [][]int64 {
	if cap(m) < size {
		m = make([][]int64, size)
	}
	m = m[:size]
	for i := range m {
		if cap(m[i]) < size {
			m[i] = make([]int64, size)
		}
		m[i] = m[i][:size]
	}
	return m
}

// TSPLns cuts the path of the base node at tspSize random places (the base
// node always being one of them) and reconnects the resulting segments in
// the optimal order.
func TSPLns(nexts, paths []*IntVar, cost PathCost, tspSize int) *PathOperator {
	tspSize = min(max(tspSize, 2), maxHeldKarp)
	var matrix [][]int64
	return NewPathOperator(nexts, paths, 1, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			base := p.BaseNode(0)
			if p.IsPathEnd(base) {
				return false
			}
			var nodes []int64
			for node := p.StartNode(0); !p.IsPathEnd(node); node = p.Next(node) {
				nodes = append(nodes, node)
			}
			if len(nodes) <= tspSize {
				return false
			}
			breakSet := map[int64]bool{base: true}
			rng := p.Var(0).Solver().Rand()
			for len(breakSet) < tspSize {
				breakSet[nodes[rng.Intn(len(nodes))]] = true
			}
			// Segment k runs from the successor of break k-1 to break k; segment
			// 0 wraps around the path end and start.
			var breaks []int64
			var segmentCost []int64
			path := p.Path(p.StartNode(0))
			var c int64
			for node := p.StartNode(0); !p.IsPathEnd(node); {
				next := p.Next(node)
				if breakSet[node] {
					breaks = append(breaks, node)
					segmentCost = append(segmentCost, c)
					c = 0
				} else {
					c = capAdd(c, cost(node, next, path))
				}
				node = next
			}
			segmentCost[0] = capAdd(segmentCost[0], c)
			firsts := make([]int64, tspSize)
			for k := range firsts {
				firsts[k] = p.Next(breaks[(k+tspSize-1)%tspSize])
			}
			matrix = resizeMatrix(matrix, tspSize)
			for i := 0; i < tspSize; i++ {
				for j := 0; j < tspSize; j++ {
					matrix[i][j] = capAdd(segmentCost[i], cost(breaks[i], firsts[j], path))
				}
				matrix[i][i] = 0
			}
			tour := heldKarp(matrix)
			unchanged := true
			for i := 0; i+1 < len(tour)-1; i++ {
				if tour[i]+1 != tour[i+1] {
					unchanged = false
					break
				}
			}
			if unchanged {
				return false
			}
			for i := 0; i < tspSize; i++ {
				p.SetNext(breaks[tour[i]], firsts[tour[i+1]], path)
			}
			return true
		},
	})
}

// nearestNeighbors caches, per node, the k cheapest successors.
type nearestNeighbors struct {
	cost      PathCost
	k         int
	neighbors [][]int64
}

func (n *nearestNeighbors) of(p *PathOperator, node int64) []int64 {
	if n.neighbors == nil {
		n.neighbors = make([][]int64, p.NumberOfNexts())
	}
	if n.neighbors[node] != nil {
		return n.neighbors[node]
	}
	type cand struct{ node, cost int64 }
	cands := make([]cand, 0, p.NumberOfNexts())
	for j := 0; j < p.NumberOfNexts(); j++ {
		if int64(j) != node {
			cands = append(cands, cand{int64(j), n.cost(node, int64(j), 0)})
		}
	}
	slices.SortStableFunc(cands, func(a, b cand) bool { return a.cost < b.cost })
	out := make([]int64, 0, n.k)
	for i := 0; i < len(cands) && i < n.k; i++ {
		out = append(out, cands[i].node)
	}
	n.neighbors[node] = out
	return out
}

// LinKernighan improves a path with sequences of 2-opt moves, each chosen
// among the five nearest neighbors of the current node, and stops as soon as
// the sequence has a positive gain. With topt a 3-opt move is tried first.
func LinKernighan(nexts, paths []*IntVar, cost PathCost, topt bool) *PathOperator {
	nn := &nearestNeighbors{cost: cost, k: 5}
	marked := make(map[int64]bool)
	inFromOut := func(p *PathOperator, in, inNext int64, gain int64) (int64, int64, bool) {
		path := p.Path(in)
		current := capAdd(gain, cost(in, inNext, path))
		best, out := int64(math.MinInt64), int64(-1)
		for _, next := range nn.of(p, inNext) {
			if next == inNext || next == p.Next(inNext) || marked[next] {
				continue
			}
			g := capSub(current, cost(inNext, next, path))
			if g > 0 && g > best {
				best, out = g, next
			}
		}
		return out, best, out >= 0
	}
	return NewPathOperator(nexts, paths, 1, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			for k := range marked {
				delete(marked, k)
			}
			node := p.BaseNode(0)
			if p.IsPathEnd(node) {
				return false
			}
			path := p.Path(node)
			base := node
			next := p.Next(node)
			if p.IsPathEnd(next) {
				return false
			}
			var gain int64
			marked[node] = true
			if topt {
				out, g, ok := inFromOut(p, node, next, gain)
				if !ok {
					return false
				}
				gain = g
				marked[next], marked[out] = true, true
				node1 := out
				if p.IsPathEnd(node1) {
					return false
				}
				next1 := p.Next(node1)
				if p.IsPathEnd(next1) {
					return false
				}
				if out, g, ok = inFromOut(p, node1, next1, gain); !ok {
					return false
				}
				gain = g
				marked[next1], marked[out] = true, true
				if !p.CheckChainValidity(out, node1, node) || !p.MoveChain(out, node1, node) {
					return false
				}
				nextOut := p.Next(out)
				if capAdd(capSub(gain, cost(node, nextOut, path)), cost(out, nextOut, path)) > 0 {
					return true
				}
				node, next = out, nextOut
				if p.IsPathEnd(node) || p.IsPathEnd(next) {
					return false
				}
			}
			for {
				out, g, ok := inFromOut(p, node, next, gain)
				if !ok {
					return false
				}
				gain = g
				marked[next], marked[out] = true, true
				last, ok := p.ReverseChain(node, out)
				if !ok {
					return false
				}
				if capAdd(capSub(gain, cost(base, last, path)), cost(last, out, path)) > 0 {
					return true
				}
				node, next = last, out
				if p.IsPathEnd(node) || p.IsPathEnd(next) {
					return false
				}
			}
		},
	})
}
