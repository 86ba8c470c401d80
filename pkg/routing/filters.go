package routing

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

// unassigned marks a successor released by a delta.
const unassigned int64 = -1

// pathState is the part every path filter shares: the successors of the
// synchronized solution and those proposed by the delta being checked.
type pathState struct {
	m         *Model
	nexts     []int64
	pathStart []int64
	delta     []int64
	touched   *bitset.BitSet
	changed   []int64
	starts    []int64
}

func newPathState(m *Model) pathState {
	size := m.Size()
	return pathState{
		m:         m,
		nexts:     make([]int64, size),
		pathStart: make([]int64, size),
		delta:     make([]int64, size),
		touched:   bitset.New(uint(size)),
	}
}

func (p *pathState) synchronize(a *cp.Assignment) {
	for i, v := range p.m.nexts {
		p.nexts[i] = unassigned
		if e := a.Element(v); e != nil && e.Activated && e.Bound() {
			p.nexts[i] = e.Value()
		}
		p.pathStart[i] = -1
	}
	size := int64(len(p.nexts))
	for _, start := range p.m.starts {
		node := start
		for steps := int64(0); !p.m.IsEnd(node) && steps <= size; steps++ {
			p.pathStart[node] = start
			next := p.nexts[node]
			if next == unassigned || next == node {
				break
			}
			node = next
		}
	}
}

// load records the successors changed by delta and the starts of the paths
// they belong to.
func (p *pathState) load(delta *cp.Assignment) {
	for _, i := range p.changed {
		p.touched.Clear(uint(i))
	}
	p.changed = p.changed[:0]
	p.starts = p.starts[:0]
	for _, e := range delta.Elements() {
		i, ok := p.m.nextIndex[e.Var]
		if !ok {
			continue
		}
		value := unassigned
		if e.Activated && e.Bound() {
			value = e.Value()
		}
		p.delta[i] = value
		if !p.touched.Test(uint(i)) {
			p.touched.Set(uint(i))
			p.changed = append(p.changed, i)
		}
	}
	for _, i := range p.changed {
		start := p.pathStart[i]
		if start < 0 {
			continue
		}
		seen := false
		for _, s := range p.starts {
			if s == start {
				seen = true
				break
			}
		}
		if !seen {
			p.starts = append(p.starts, start)
		}
	}
}

// next returns the successor of i in the solution with the delta applied.
func (p *pathState) next(i int64) int64 {
	if p.touched.Test(uint(i)) {
		return p.delta[i]
	}
	return p.nexts[i]
}

// walk calls visit on every arc of the path leaving start. It returns true
// when a released successor interrupts the path, and false with ok unset
// when the path loops.
func (p *pathState) walk(start int64, visit func(from, to int64) bool) (open, ok bool) {
	size := int64(len(p.nexts))
	node := start
	for steps := int64(0); !p.m.IsEnd(node); steps++ {
		if steps > size {
			return false, false
		}
		next := p.next(node)
		if next == unassigned {
			return true, true
		}
		if next == node {
			return false, true
		}
		if !visit(node, next) {
			return false, false
		}
		node = next
	}
	return false, true
}

// pathCumulFilter rejects deltas whose cumuls, propagated along the changed
// paths from the current variable bounds, exceed a maximum.
type pathCumulFilter struct {
	pathState
	d *Dimension
}

func newPathCumulFilter(d *Dimension) *pathCumulFilter {
	return &pathCumulFilter{pathState: newPathState(d.m), d: d}
}

func (f *pathCumulFilter) Synchronize(a *cp.Assignment) { f.synchronize(a) }

func (f *pathCumulFilter) Accept(delta *cp.Assignment) bool {
	f.load(delta)
	for _, start := range f.starts {
		cumul := f.d.cumuls[start].Min()
		_, ok := f.walk(start, func(from, to int64) bool {
			cumul = max(saturatedAdd(cumul, f.d.transit(from, to)), f.d.cumuls[to].Min())
			return cumul <= f.d.cumuls[to].Max()
		})
		if !ok {
			return false
		}
	}
	return true
}

// nodePrecedenceFilter rejects deltas visiting the second node of a pair
// before, or without, the first one.
type nodePrecedenceFilter struct {
	pathState
	pairs   pairIndex
	visited *bitset.BitSet
}

func newNodePrecedenceFilter(m *Model) *nodePrecedenceFilter {
	size := m.Size() + m.vehicles
	return &nodePrecedenceFilter{
		pathState: newPathState(m),
		pairs:     newPairIndex(m.pairs, size),
		visited:   bitset.New(uint(size)),
	}
}

func (f *nodePrecedenceFilter) Synchronize(a *cp.Assignment) { f.synchronize(a) }

func (f *nodePrecedenceFilter) Accept(delta *cp.Assignment) bool {
	f.load(delta)
	for _, start := range f.starts {
		f.visited.ClearAll()
		f.visited.Set(uint(start))
		_, ok := f.walk(start, func(_, to int64) bool {
			if sibling := f.pairs.siblingOf(to); sibling >= 0 {
				if f.pairs.first(to) == f.visited.Test(uint(sibling)) {
					return false
				}
			}
			f.visited.Set(uint(to))
			return true
		})
		if !ok {
			return false
		}
	}
	return true
}

// objectiveFilter rejects deltas whose cost cannot beat the bound of the
// metaheuristic. Penalties of disjunctions over several nodes are ignored,
// so the computed cost never exceeds the real one.
type objectiveFilter struct {
	pathState
	bound     func() int64
	pathCosts []int64
	penalties int64
	total     int64
}

func newObjectiveFilter(m *Model, bound func() int64) *objectiveFilter {
	return &objectiveFilter{
		pathState: newPathState(m),
		bound:     bound,
		pathCosts: make([]int64, m.vehicles),
	}
}

func (f *objectiveFilter) Synchronize(a *cp.Assignment) {
	f.synchronize(a)
	f.total, f.penalties = 0, 0
	for v, start := range f.m.starts {
		cost, _, _ := f.pathCost(v, start)
		f.pathCosts[v] = cost
		f.total = saturatedAdd(f.total, cost)
	}
	for i, next := range f.nexts {
		if next == int64(i) {
			f.penalties = saturatedAdd(f.penalties, f.m.penaltyCost(int64(i)))
		}
	}
	f.total = saturatedAdd(f.total, f.penalties)
}

func (f *objectiveFilter) pathCost(vehicle int, start int64) (cost int64, open, ok bool) {
	open, ok = f.walk(start, func(from, to int64) bool {
		cost = saturatedAdd(cost, f.m.Cost(from, to, int64(vehicle)))
		return true
	})
	return cost, open, ok
}

func (f *objectiveFilter) Accept(delta *cp.Assignment) bool {
	f.load(delta)
	total := f.total
	for _, i := range f.changed {
		was, is := f.nexts[i] == i, f.delta[i] == i
		if f.delta[i] == unassigned {
			return true
		}
		switch {
		case was && !is:
			total -= f.m.penaltyCost(i)
		case !was && is:
			total = saturatedAdd(total, f.m.penaltyCost(i))
		}
	}
	for _, start := range f.starts {
		v := f.m.indexToVehicle[start]
		cost, open, ok := f.pathCost(v, start)
		if open {
			return true
		}
		if !ok {
			return false
		}
		total = saturatedAdd(total-f.pathCosts[v], cost)
	}
	return total <= f.bound()
}

// saturatedAdd adds without overflowing past the int64 range.
func saturatedAdd(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}
