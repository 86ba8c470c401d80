package routing

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

// pairPrecedence fails as soon as a bound chain leaving a vehicle start
// visits the second node of a pair without having visited the first, or
// visits the first after the second.
type pairPrecedence struct {
	m       *Model
	pairs   pairIndex
	visited *bitset.BitSet
}

func newPairPrecedence(m *Model) cp.Constraint {
	size := m.Size() + m.vehicles
	return &pairPrecedence{
		m:       m,
		pairs:   newPairIndex(m.pairs, size),
		visited: bitset.New(uint(size)),
	}
}

func (c *pairPrecedence) Post(s *cp.Solver) {
	d := s.MakeDemon("PairPrecedence", cp.DelayedPriority, c.check)
	for _, next := range c.m.nexts {
		next.WhenBound(d)
	}
}

func (c *pairPrecedence) InitialPropagate() error { return c.check() }

func (c *pairPrecedence) check() error {
	size := int64(c.m.Size())
	for v, start := range c.m.starts {
		c.visited.ClearAll()
		node := start
		for steps := int64(0); !c.m.IsEnd(node) && c.m.nexts[node].Bound() && steps <= size; steps++ {
			if sibling := c.pairs.siblingOf(node); sibling >= 0 {
				if c.pairs.first(node) && c.visited.Test(uint(sibling)) {
					return c.m.s.Fail("vehicle %d visits delivery %d before its pickup", v, sibling)
				}
				if !c.pairs.first(node) && !c.visited.Test(uint(sibling)) {
					return c.m.s.Fail("vehicle %d visits delivery %d without its pickup", v, node)
				}
			}
			c.visited.Set(uint(node))
			next := c.m.nexts[node].Value()
			if next == node {
				break
			}
			node = next
		}
	}
	return nil
}

func (c *pairPrecedence) String() string {
	return fmt.Sprintf("PairPrecedence(%d pairs)", len(c.m.pairs))
}
