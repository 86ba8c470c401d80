package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

// Solve closes the model if needed and searches for the cheapest solution
// within the configured limits. The returned assignment holds every
// successor, activity, vehicle and cumul variable plus the cost.
func (m *Model) Solve(ctx context.Context) (*cp.Assignment, error) {
	return m.solve(ctx, nil)
}

// SolveFromAssignment improves a: the search starts from a, completed by the
// finalizer, instead of building a first solution.
func (m *Model) SolveFromAssignment(ctx context.Context, a *cp.Assignment) (*cp.Assignment, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil assignment", cp.ErrInvalidArgument)
	}
	return m.solve(ctx, a)
}

// SolveFromRoutes improves the solution described by routes, one node
// sequence per vehicle without its start and end.
func (m *Model) SolveFromRoutes(ctx context.Context, routes [][]int64) (*cp.Assignment, error) {
	m.quietCloseModel()
	a := m.s.NewAssignment()
	if err := m.RoutesToAssignment(routes, true, false, a); err != nil {
		return nil, err
	}
	return m.solve(ctx, a)
}

// RestoreAssignment rebuilds the complete solution described by a, which
// may only hold successors, and checks it against every constraint.
func (m *Model) RestoreAssignment(ctx context.Context, a *cp.Assignment) (*cp.Assignment, error) {
	m.quietCloseModel()
	s := m.s
	mark := s.Checkpoint()
	defer s.Backtrack(mark)
	if err := m.applyPreassignment(); err != nil {
		return nil, err
	}
	collector := s.FirstSolutionCollector(m.fullAssignment())
	db := cp.Compose(s.RestoreAssignment(a), m.finalizer())
	found, err := s.SolveAndCommit(ctx, db, collector)
	if err != nil && !errors.Is(err, cp.ErrSearchLimitReached) {
		return nil, err
	}
	if !found || collector.SolutionCount() == 0 {
		m.status = StatusFail
		return nil, fmt.Errorf("%w: assignment violates the model", ErrNoSolution)
	}
	m.solution = collector.Solution(0)
	m.status = StatusSuccess
	return m.solution, nil
}

// Solution returns the assignment found by the last successful solve, or
// nil.
func (m *Model) Solution() *cp.Assignment { return m.solution }

func (m *Model) solve(ctx context.Context, initial *cp.Assignment) (*cp.Assignment, error) {
	m.quietCloseModel()
	s := m.s
	m.solution = nil
	m.status = StatusNotSolved
	mark := s.Checkpoint()
	defer s.Backtrack(mark)
	start := s.Clock().Now()

	if err := m.applyPreassignment(); err != nil {
		m.status = StatusFail
		return nil, err
	}
	db, err := m.firstSolutionBuilder(ctx)
	if err != nil {
		return nil, err
	}

	collector := s.BestValueSolutionCollector(m.fullAssignment())
	monitors := []cp.SearchMonitor{collector}
	if m.params.Trace {
		monitors = append(monitors, s.MakeSearchLog(searchLogPeriod, m.cost))
	}
	limit := s.MakeLimit(m.params.TimeLimit, 0, 0, m.params.SolutionLimit)

	m.log.Debug().
		Stringer("first_solution", m.params.FirstSolution).
		Stringer("metaheuristic", m.params.Metaheuristic).
		Bool("dfs", m.params.DFS).
		Dur("time_limit", m.params.TimeLimit).
		Msg("solving")

	if m.params.DFS {
		if initial != nil {
			db = cp.Compose(s.RestoreAssignment(initial), m.finalizer())
		}
		all := append([]cp.SearchMonitor{limit, s.Minimize(m.cost, m.params.OptimizationStep)}, monitors...)
		_, err = s.Solve(ctx, db, all...)
	} else {
		mh := m.metaheuristic()
		phase := &cp.LocalSearchPhase{
			Vars:          m.searchVars(),
			FirstSolution: db,
			Initial:       initial,
			Operator:      m.neighborhood(),
			Finalizer:     m.finalizer(),
			Filters:       m.filters(mh),
			Limit:         limit,
			NeighborLimit: s.MakeLimit(m.params.LNSTimeLimit, 0, 0, 1),
		}
		_, err = s.RunLocalSearch(ctx, phase, m.cost, mh, monitors...)
	}
	if err != nil && !errors.Is(err, cp.ErrSearchLimitReached) && !errors.Is(err, ctx.Err()) {
		m.status = StatusFail
		return nil, err
	}

	elapsed := s.Clock().Now().Sub(start)
	switch {
	case collector.SolutionCount() > 0:
		m.status = StatusSuccess
		m.solution = collector.Solution(0)
	case m.params.TimeLimit > 0 && elapsed >= m.params.TimeLimit:
		m.status = StatusFailTimeout
	default:
		m.status = StatusFail
	}
	m.log.Debug().
		Stringer("status", m.status).
		Dur("elapsed", elapsed).
		Int64("branches", s.Stats().Branches).
		Int64("neighbors", s.Stats().Neighbors).
		Msg("solve finished")
	if m.solution == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSolution, m.status)
	}
	return m.solution, nil
}

// applyPreassignment restores the locks at the current search level.
func (m *Model) applyPreassignment() error {
	s := m.s
	err := m.preassignment.Restore()
	if err == nil {
		err = s.Propagate()
	}
	if err == nil {
		return nil
	}
	if cp.IsFailure(err) {
		return fmt.Errorf("%w: preassignment is infeasible: %v", ErrNoSolution, err)
	}
	return err
}

// fullAssignment returns an assignment over every variable describing a
// solution, with the cost as objective.
func (m *Model) fullAssignment() *cp.Assignment {
	a := m.s.NewAssignment()
	a.Add(m.nexts...)
	a.Add(m.active...)
	a.Add(m.vehicleVars...)
	for _, d := range m.dimensions {
		a.Add(d.cumuls...)
	}
	a.AddObjective(m.cost)
	return a
}

// pathVars returns the vehicle variables operators keep up to date, or nil
// when costs do not depend on the vehicle.
func (m *Model) pathVars() []*cp.IntVar {
	if m.homogeneous {
		return nil
	}
	return m.vehicleVars[:m.Size()]
}

// searchVars returns the variables local search moves.
func (m *Model) searchVars() []*cp.IntVar {
	return append(append([]*cp.IntVar(nil), m.nexts...), m.pathVars()...)
}

// metaheuristic builds the configured metaheuristic around the cost
// variable. Guided local search penalizes arcs by HomogeneousCost, so with
// per-vehicle costs its penalties follow the cost class of vehicle 0.
func (m *Model) metaheuristic() cp.Metaheuristic {
	s, step := m.s, m.params.OptimizationStep
	switch m.params.Metaheuristic {
	case GuidedLocalSearch:
		return s.GuidedLocalSearch(m.cost, step, m.nexts, m.HomogeneousCost, m.params.GuidedLocalSearchLambda)
	case SimulatedAnnealing:
		return s.SimulatedAnnealing(m.cost, step, annealingTemperature)
	case TabuSearch:
		return s.TabuSearch(m.cost, step, m.nexts, tabuKeepTenure, tabuForbidTenure, tabuFactor)
	}
	return s.GreedyDescent(m.cost, step)
}

// pathCost adapts Cost to the operators, which name vehicles by path.
func (m *Model) pathCost(i, j, path int64) int64 {
	if m.homogeneous {
		return m.HomogeneousCost(i, j)
	}
	return m.Cost(i, j, path)
}

// neighborhood returns every enabled operator, concatenated. Operators that
// assume cost-driven descent are left out under tabu search and simulated
// annealing.
func (m *Model) neighborhood() cp.LocalSearchOperator {
	p := m.params
	nexts, paths := m.nexts, m.pathVars()
	costDriven := p.Metaheuristic != TabuSearch && p.Metaheuristic != SimulatedAnnealing
	ops := append([]cp.LocalSearchOperator(nil), m.extraOperators...)
	if len(m.pairs) > 0 {
		ops = append(ops, NewPairRelocateOperator(nexts, paths, m.pairs))
	}
	if m.vehicles > 1 {
		if !p.NoRelocate {
			ops = append(ops, cp.Relocate(nexts, paths, 1, false))
		}
		if !p.NoExchange {
			ops = append(ops, cp.Exchange(nexts, paths))
		}
		if !p.NoCross {
			ops = append(ops, cp.Cross(nexts, paths))
		}
	}
	if !p.NoLKH && costDriven {
		ops = append(ops, cp.LinKernighan(nexts, paths, m.pathCost, false))
	}
	if !p.NoTwoOpt {
		ops = append(ops, cp.TwoOpt(nexts, paths))
	}
	if !p.NoOrOpt {
		ops = append(ops, cp.OrOpt(nexts, paths))
	}
	if !p.NoMakeActive && len(m.disjunctions) > 0 {
		ops = append(ops, cp.MakeInactiveOperator(nexts, paths), m.insertionOperator())
		if p.UseExtendedSwapActive {
			ops = append(ops, cp.ExtendedSwapActiveOperator(nexts, paths))
		} else {
			ops = append(ops, cp.SwapActiveOperator(nexts, paths))
		}
	}
	if !p.NoTSP && costDriven {
		ops = append(ops, cp.TSPOpt(nexts, paths, m.pathCost, tspChainLength))
	}
	if !p.NoTSPLNS && costDriven {
		ops = append(ops, cp.TSPLns(nexts, paths, m.pathCost, tspLNSSize))
	}
	if !p.NoLNS {
		ops = append(ops, cp.PathLNS(nexts, paths, 2, 3, false))
		if len(m.disjunctions) > 0 {
			ops = append(ops, cp.UnactiveLNS(nexts, paths))
		}
	}
	return cp.ConcatenateOperators(ops...)
}

// Window sizes of the exact TSP operators.
const (
	tspChainLength = 8
	tspLNSSize     = 8
)

// filters returns the enabled filters. The objective filter reads the bound
// of mh.
func (m *Model) filters(mh cp.Metaheuristic) []cp.LocalSearchFilter {
	var fs []cp.LocalSearchFilter
	if m.params.UseObjectiveFilter {
		fs = append(fs, newObjectiveFilter(m, mh.Bound))
	}
	if m.params.UsePickupDeliveryFilter && len(m.pairs) > 0 {
		fs = append(fs, newNodePrecedenceFilter(m))
	}
	if m.params.UsePathCumulFilter {
		for _, d := range m.dimensions {
			fs = append(fs, newPathCumulFilter(d))
		}
	}
	return fs
}
