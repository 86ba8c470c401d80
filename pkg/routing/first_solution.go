package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

// finalizer binds every successor left free, in variable order, with its
// smallest value.
func (m *Model) finalizer() cp.DecisionBuilder {
	return m.s.Phase(m.nexts, cp.ChooseFirstUnbound, cp.AssignMinValue)
}

// firstSolutionBuilder returns the builder of the configured first solution
// strategy, finalizer included.
func (m *Model) firstSolutionBuilder(ctx context.Context) (cp.DecisionBuilder, error) {
	s := m.s
	finalize := m.finalizer()
	var db cp.DecisionBuilder
	switch m.params.FirstSolution {
	case DefaultStrategy:
		db = finalize
	case GlobalCheapestArc:
		db = s.GlobalBestPhase(m.nexts, m.firstSolutionCost)
	case LocalCheapestArc:
		db = s.EvaluatorPhase(m.nexts, cp.ChooseFirstUnbound, m.firstSolutionCost)
	case PathCheapestArc:
		db = s.EvaluatorPhase(m.nexts, cp.ChoosePath, m.firstSolutionCost)
		if m.vehicles == 1 {
			db = cp.Try(cp.Compose(&onePathBuilder{m: m}, finalize), db)
		}
	case EvaluatorStrategy:
		if m.firstSolutionEvaluator == nil {
			return nil, fmt.Errorf("%w: %s needs SetFirstSolutionEvaluator", ErrInvalidParameters, EvaluatorStrategy)
		}
		db = s.EvaluatorPhase(m.nexts, cp.ChoosePath, m.firstSolutionEvaluator)
	case AllUnperformed:
		db = m.allUnperformed()
	case BestInsertion:
		db = cp.Compose(m.bestInsertion(ctx), finalize)
	default:
		m.log.Warn().Stringer("strategy", m.params.FirstSolution).Msg("unknown first solution strategy, using default")
		db = finalize
	}
	m.log.Debug().Stringer("strategy", m.params.FirstSolution).Msg("first solution")
	if m.params.UseFirstSolutionDive {
		db = cp.LeftDive(db)
	}
	return db, nil
}

// allUnperformed makes every optional index inactive, then lets the
// finalizer close the routes.
func (m *Model) allUnperformed() cp.DecisionBuilder {
	optional := make([]*cp.IntVar, 0, len(m.nodeDisjunction))
	for i, a := range m.active {
		if _, ok := m.nodeDisjunction[int64(i)]; ok && !m.IsStart(int64(i)) {
			optional = append(optional, a)
		}
	}
	return cp.Compose(m.s.Phase(optional, cp.ChooseFirstUnbound, cp.AssignMinValue), m.finalizer())
}

// insertionOperator activates inactive nodes, pair by pair when the model
// has pickup and delivery pairs.
func (m *Model) insertionOperator() cp.LocalSearchOperator {
	if len(m.pairs) > 0 {
		return NewPairActiveOperator(m.nexts, m.pathVars(), m.pairs)
	}
	return cp.MakeActiveOperator(m.nexts, m.pathVars())
}

// bestInsertion starts from AllUnperformed and inserts nodes with a greedy
// descent until no insertion improves the cost. The best solution found is
// restored in the calling search.
func (m *Model) bestInsertion(ctx context.Context) cp.DecisionBuilder {
	return cp.DecisionBuilderFunc(func(s *cp.Solver) (cp.Decision, error) {
		if m.allNextsBound() {
			return nil, nil
		}
		proto := m.fullAssignment()
		best := s.BestValueSolutionCollector(proto)
		mh := s.GreedyDescent(m.cost, m.params.OptimizationStep)
		phase := &cp.LocalSearchPhase{
			Vars:          m.nexts,
			FirstSolution: m.allUnperformed(),
			Operator:      m.insertionOperator(),
			Finalizer:     m.finalizer(),
			Filters:       m.filters(mh),
			Limit:         s.MakeLimit(m.params.TimeLimit, 0, 0, 0),
			NeighborLimit: s.MakeLimit(m.params.LNSTimeLimit, 0, 0, 1),
		}
		found, err := s.RunLocalSearch(ctx, phase, m.cost, mh, best)
		if err != nil && !errors.Is(err, cp.ErrSearchLimitReached) {
			return nil, err
		}
		if !found || best.SolutionCount() == 0 {
			return nil, s.Fail("best insertion found no solution")
		}
		return nil, best.Solution(0).Restore()
	})
}

func (m *Model) allNextsBound() bool {
	for _, next := range m.nexts {
		if !next.Bound() {
			return false
		}
	}
	return true
}

// onePathBuilder builds the single route of a one-vehicle model in one
// decision: starting at the vehicle start it repeatedly moves to the
// cheapest index that is still free, and sends every index it could not
// place to itself. The decision is refuted by failing, which lets the
// enclosing Try fall back to the propagating strategy.
type onePathBuilder struct {
	m *Model
}

func (b *onePathBuilder) Next(*cp.Solver) (cp.Decision, error) {
	if b.m.allNextsBound() {
		return nil, nil
	}
	return &onePathDecision{m: b.m}, nil
}

type onePathDecision struct {
	m *Model
}

func (d *onePathDecision) Apply(s *cp.Solver) error {
	m := d.m
	size := m.Size()
	placed := bitset.New(uint(size + m.vehicles))
	a := s.NewAssignment()
	index := m.starts[0]
	placed.Set(uint(index))
	for {
		next := d.cheapest(index, placed)
		if next < 0 {
			break
		}
		a.SetValue(m.nexts[index], next)
		placed.Set(uint(next))
		if m.IsEnd(next) {
			break
		}
		index = next
	}
	for i, next := range m.nexts {
		if !a.Contains(next) && next.Contains(int64(i)) {
			a.SetValue(next, int64(i))
		}
	}
	return a.Restore()
}

// cheapest returns the cheapest free successor of index, the vehicle end
// coming last, or -1.
func (d *onePathDecision) cheapest(index int64, placed *bitset.BitSet) int64 {
	m := d.m
	next := m.nexts[index]
	if next.Bound() {
		if v := next.Value(); !placed.Test(uint(v)) {
			return v
		}
		return -1
	}
	best, bestCost := int64(-1), int64(0)
	next.Iterate(func(j int64) {
		if j == index || placed.Test(uint(j)) {
			return
		}
		cost := m.firstSolutionCost(index, j)
		if best < 0 || cost < bestCost {
			best, bestCost = j, cost
		}
	})
	return best
}

func (d *onePathDecision) Refute(s *cp.Solver) error {
	return s.Fail("one path dive refuted")
}

func (d *onePathDecision) String() string { return "OnePath" }
