package cp

// This file holds the classic path neighborhoods. Every constructor takes
// the successor variables and optional path variables (nil when every path
// has the same cost structure).

// TwoOpt reverses a sub-chain of a path:
//
//	1 -> 2 -> 3 -> 4 -> 5   becomes   1 -> 4 -> 3 -> 2 -> 5
func TwoOpt(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 2, PathHooks{
		SamePathAsPrevious: func(int) bool { return true },
		RestartPosition: func(p *PathOperator, i int) int64 {
			if i == 0 {
				return p.StartNode(0)
			}
			return p.BaseNode(i - 1)
		},
		MakeNeighbor: func(p *PathOperator) bool {
			before, after := p.BaseNode(0), p.BaseNode(1)
			if p.IsPathEnd(before) {
				return false
			}
			first := p.Next(before)
			last, ok := p.ReverseChain(before, after)
			return ok && last != first
		},
	})
}

// Relocate moves a chain of chainLength nodes after another node, possibly on
// another path unless singlePath is set:
//
//	1 -> 2 -> 3 -> 4 -> 5   with chain (2) after 4 gives   1 -> 3 -> 4 -> 2 -> 5
func Relocate(nexts, paths []*IntVar, chainLength int, singlePath bool) *PathOperator {
	if chainLength < 1 {
		chainLength = 1
	}
	return NewPathOperator(nexts, paths, 2, PathHooks{
		SamePathAsPrevious: func(int) bool { return singlePath },
		MakeNeighbor: func(p *PathOperator) bool {
			before, destination := p.BaseNode(0), p.BaseNode(1)
			if p.IsPathEnd(destination) {
				return false
			}
			chainEnd := before
			for i := 0; i < chainLength; i++ {
				if p.IsPathEnd(chainEnd) || chainEnd == destination {
					return false
				}
				chainEnd = p.Next(chainEnd)
			}
			return !p.IsPathEnd(chainEnd) && p.MoveChain(before, chainEnd, destination)
		},
	})
}

// OrOpt relocates chains of one to three consecutive nodes within their own
// path.
func OrOpt(nexts, paths []*IntVar) LocalSearchOperator {
	return ConcatenateOperators(
		Relocate(nexts, paths, 1, true),
		Relocate(nexts, paths, 2, true),
		Relocate(nexts, paths, 3, true),
	)
}

// Exchange swaps the nodes following the two base nodes:
//
//	1 -> 2 -> 3 -> 4 -> 5   exchanging 2 and 4 gives   1 -> 4 -> 3 -> 2 -> 5
func Exchange(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 2, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			prev0, prev1 := p.BaseNode(0), p.BaseNode(1)
			if p.IsPathEnd(prev0) || p.IsPathEnd(prev1) {
				return false
			}
			node0, node1 := p.Next(prev0), p.Next(prev1)
			if p.IsPathEnd(node0) || p.IsPathEnd(node1) || node0 == node1 {
				return false
			}
			moved := p.MoveChain(prev0, node0, prev1)
			return p.MoveChain(p.Prev(node1), node1, prev0) || moved
		},
	})
}

// Cross exchanges the starting chains of two paths. A base node left on its
// path start selects an empty chain, so one-sided moves are included.
func Cross(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 2, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			start0, start1 := p.StartNode(0), p.StartNode(1)
			if start0 == start1 {
				return false
			}
			node0, node1 := p.BaseNode(0), p.BaseNode(1)
			if p.IsPathEnd(node0) || p.IsPathEnd(node1) {
				return false
			}
			switch {
			case node0 == start0 && node1 == start1:
				return false
			case node0 == start0:
				return p.MoveChain(start1, node1, start0)
			case node1 == start1:
				return p.MoveChain(start0, node0, start1)
			}
			return p.MoveChain(start0, node0, start1) && p.MoveChain(node0, node1, start0)
		},
	})
}

// MakeActiveOperator inserts an inactive node after a base node.
func MakeActiveOperator(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 1, PathHooks{
		InactiveNodes: true,
		MakeNeighbor: func(p *PathOperator) bool {
			return p.MakeActive(p.InactiveNode(), p.BaseNode(0))
		},
	})
}

// MakeInactiveOperator deactivates the node following a base node.
func MakeInactiveOperator(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 1, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			base := p.BaseNode(0)
			if p.IsPathEnd(base) {
				return false
			}
			return p.MakeChainInactive(base, p.Next(base))
		},
	})
}

// SwapActiveOperator replaces the node following a base node by an inactive
// node.
func SwapActiveOperator(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 1, PathHooks{
		InactiveNodes: true,
		MakeNeighbor: func(p *PathOperator) bool {
			base := p.BaseNode(0)
			if p.IsPathEnd(base) {
				return false
			}
			return p.MakeChainInactive(base, p.Next(base)) && p.MakeActive(p.InactiveNode(), base)
		},
	})
}

// ExtendedSwapActiveOperator deactivates the node following the first base
// node and inserts an inactive node after the second base node.
func ExtendedSwapActiveOperator(nexts, paths []*IntVar) *PathOperator {
	return NewPathOperator(nexts, paths, 2, PathHooks{
		InactiveNodes: true,
		MakeNeighbor: func(p *PathOperator) bool {
			base0, base1 := p.BaseNode(0), p.BaseNode(1)
			if p.IsPathEnd(base0) || p.IsPathEnd(base1) || p.Next(base0) == base1 {
				return false
			}
			return p.MakeChainInactive(base0, p.Next(base0)) && p.MakeActive(p.InactiveNode(), base1)
		},
	})
}

// PathLNS releases chunks of chunkSize consecutive nodes starting at each of
// numChunks base nodes; the finalizer rebuilds them. With unactiveFragments
// every inactive node is released as well.
func PathLNS(nexts, paths []*IntVar, numChunks, chunkSize int, unactiveFragments bool) *PathOperator {
	return NewPathOperator(nexts, paths, numChunks, PathHooks{
		MakeNeighbor: func(p *PathOperator) bool {
			for i := 0; i < numChunks; i++ {
				node := p.BaseNode(i)
				for k := 0; k < chunkSize && !p.IsPathEnd(node); k++ {
					p.DeactivateNode(node)
					node = p.Next(node)
				}
			}
			if unactiveFragments {
				for i := 0; i < p.NumberOfNexts(); i++ {
					if p.IsInactive(int64(i)) {
						p.DeactivateNode(int64(i))
					}
				}
			}
			return true
		},
	})
}

// UnactiveLNS releases a chunk of six nodes together with every inactive
// node, giving the finalizer a chance to insert them.
func UnactiveLNS(nexts, paths []*IntVar) *PathOperator {
	return PathLNS(nexts, paths, 1, 6, true)
}
