package routing

import (
	"github.com/gitrdm/gokanroute/pkg/cp"
)

// pairIndex maps each node of a pickup and delivery pair to its sibling.
type pairIndex struct {
	sibling []int64
	isFirst []bool
}

func newPairIndex(pairs []Pair, size int) pairIndex {
	p := pairIndex{sibling: make([]int64, size), isFirst: make([]bool, size)}
	for i := range p.sibling {
		p.sibling[i] = -1
	}
	for _, pair := range pairs {
		p.sibling[pair.First] = pair.Second
		p.sibling[pair.Second] = pair.First
		p.isFirst[pair.First] = true
		p.isFirst[pair.Second] = false
	}
	return p
}

func (p pairIndex) siblingOf(node int64) int64 {
	if node < 0 || int(node) >= len(p.sibling) {
		return -1
	}
	return p.sibling[node]
}

func (p pairIndex) first(node int64) bool {
	return node >= 0 && int(node) < len(p.isFirst) && p.isFirst[node]
}

// pairActiveOperator inserts an inactive pair: the first node after base 0
// and the second after base 1, base 1 lying at or after base 0 on the same
// path. The whole base enumeration is repeated for every inactive pair.
type pairActiveOperator struct {
	*cp.PathOperator
	pairs        []Pair
	inactivePair int
}

// NewPairActiveOperator returns the pair insertion operator.
func NewPairActiveOperator(nexts, paths []*cp.IntVar, pairs []Pair) cp.LocalSearchOperator {
	op := &pairActiveOperator{pairs: pairs}
	op.PathOperator = cp.NewPathOperator(nexts, paths, 2, cp.PathHooks{
		MakeNeighbor: op.makeNeighbor,
		OnStart:      op.onStart,
		SamePathAsPrevious: func(int) bool {
			return true
		},
		RestartPosition: func(p *cp.PathOperator, i int) int64 {
			if i == 0 || p.StartNode(i) != p.StartNode(i-1) {
				return p.StartNode(i)
			}
			return p.BaseNode(i - 1)
		},
	})
	return op
}

func (o *pairActiveOperator) onStart(*cp.PathOperator) {
	o.inactivePair = len(o.pairs)
	for k := range o.pairs {
		if o.pairInactive(k) {
			o.inactivePair = k
			return
		}
	}
}

func (o *pairActiveOperator) pairInactive(k int) bool {
	pair := o.pairs[k]
	return o.IsInactive(pair.First) && o.IsInactive(pair.Second)
}

func (o *pairActiveOperator) MakeNextNeighbor(delta *cp.Assignment) bool {
	for o.inactivePair < len(o.pairs) {
		if o.pairInactive(o.inactivePair) && o.PathOperator.MakeNextNeighbor(delta) {
			return true
		}
		o.ResetPosition()
		o.inactivePair++
	}
	return false
}

func (o *pairActiveOperator) makeNeighbor(p *cp.PathOperator) bool {
	pair := o.pairs[o.inactivePair]
	return p.MakeActive(pair.Second, p.BaseNode(1)) && p.MakeActive(pair.First, p.BaseNode(0))
}

// pairRelocateOperator moves a paired node after base 1 and its sibling
// after base 2, both on the same path.
type pairRelocateOperator struct {
	*cp.PathOperator
	pairs pairIndex
}

// NewPairRelocateOperator returns the pair relocation operator.
func NewPairRelocateOperator(nexts, paths []*cp.IntVar, pairs []Pair) cp.LocalSearchOperator {
	op := &pairRelocateOperator{pairs: newPairIndex(pairs, len(nexts))}
	op.PathOperator = cp.NewPathOperator(nexts, paths, 3, cp.PathHooks{
		MakeNeighbor:       op.makeNeighbor,
		RestartAtPathStart: true,
		SamePathAsPrevious: func(i int) bool {
			return i == 2
		},
		RestartPosition: func(p *cp.PathOperator, i int) int64 {
			// The second of a pair goes after its first when both land on
			// the same path.
			if i == 2 && !op.pairs.first(p.BaseNode(0)) && p.StartNode(1) == p.StartNode(2) {
				return p.BaseNode(1)
			}
			return p.StartNode(i)
		},
	})
	return op
}

func (o *pairRelocateOperator) makeNeighbor(p *cp.PathOperator) bool {
	base := p.BaseNode(0)
	sibling := o.pairs.siblingOf(base)
	if sibling < 0 || p.IsInactive(base) || p.IsInactive(sibling) {
		return false
	}
	prevSibling := p.Prev(sibling)
	if prevSibling < 0 || !p.MoveChain(prevSibling, sibling, p.BaseNode(1)) {
		return false
	}
	prev := p.Prev(base)
	return prev >= 0 && p.MoveChain(prev, base, p.BaseNode(2))
}
