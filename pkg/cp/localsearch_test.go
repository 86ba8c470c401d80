package cp

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// lineTour is a single vehicle tour over points on a line: node 0 is the
// depot, node n is the path end standing for the return to the depot.
type lineTour struct {
	s         *Solver
	nexts     []*IntVar
	objective *IntVar
	positions []int64
}

func newLineTour(positions []int64, opts ...SolverOption) *lineTour {
	s := NewSolver("line", opts...)
	n := int64(len(positions))
	lt := &lineTour{s: s, positions: positions}
	var costs []*IntVar
	for i := int64(0); i < n; i++ {
		next := s.NewIntVar(1, n, fmt.Sprintf("next%d", i))
		if i > 0 {
			_ = next.RemoveValue(i)
		}
		lt.nexts = append(lt.nexts, next)
		row := make([]int64, n+1)
		for j := int64(0); j <= n; j++ {
			row[j] = lt.arc(i, j)
		}
		costs = append(costs, s.Element(row, next).Var())
	}
	s.AddConstraint(s.AllDifferent(lt.nexts))
	s.AddConstraint(s.NoCycle(lt.nexts, nil))
	lt.objective = s.SumVar(costs, "cost")
	return lt
}

func (lt *lineTour) arc(i, j int64) int64 {
	n := int64(len(lt.positions))
	d := lt.positions[i] - lt.positions[j%n]
	if d < 0 {
		d = -d
	}
	return d
}

// initial returns the tour visiting nodes in index order.
func (lt *lineTour) initial() *Assignment {
	a := lt.s.NewAssignment()
	for i, v := range lt.nexts {
		a.SetValue(v, int64(i)+1)
	}
	return a
}

func (lt *lineTour) prototype() *Assignment {
	a := lt.s.NewAssignment()
	a.Add(lt.nexts...)
	a.AddObjective(lt.objective)
	return a
}

func (lt *lineTour) phase(op LocalSearchOperator) *LocalSearchPhase {
	return &LocalSearchPhase{
		Vars:      lt.nexts,
		Initial:   lt.initial(),
		Operator:  op,
		Finalizer: lt.s.Phase(lt.nexts, ChoosePath, AssignMinValue),
	}
}

func (lt *lineTour) cost(a *Assignment) int64 {
	var c int64
	for i, v := range lt.nexts {
		c += lt.arc(int64(i), a.Value(v))
	}
	return c
}

func TestRunLocalSearch_TwoOptReachesOptimum(t *testing.T) {
	// Visiting in index order costs 3+2+3+2+2 = 12; the optimum is 8.
	lt := newLineTour([]int64{0, 3, 1, 4, 2})
	last := lt.s.LastSolutionCollector(lt.prototype())

	found, err := lt.s.RunLocalSearch(context.Background(), lt.phase(TwoOpt(lt.nexts, nil)), lt.objective, nil, last)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, last.SolutionCount())

	best := last.Solution(0)
	require.Equal(t, int64(8), best.ObjectiveValue())
	require.Equal(t, int64(8), lt.cost(best))
	next := make([]int64, len(lt.nexts))
	for i, v := range lt.nexts {
		next[i] = best.Value(v)
	}
	require.NoError(t, validPaths(next, []int64{0}))

	stats := lt.s.Stats()
	require.Positive(t, stats.Neighbors)
	require.Positive(t, stats.AcceptedNeighbors)
	require.False(t, lt.nexts[0].Bound(), "solver state restored")
}

func TestRunLocalSearch_FiltersRejectEverything(t *testing.T) {
	lt := newLineTour([]int64{0, 3, 1, 4, 2})
	last := lt.s.LastSolutionCollector(lt.prototype())
	phase := lt.phase(TwoOpt(lt.nexts, nil))
	phase.Filters = []LocalSearchFilter{rejectAll{}}

	found, err := lt.s.RunLocalSearch(context.Background(), phase, lt.objective, nil, last)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(12), last.Solution(0).ObjectiveValue(), "only the initial solution")
	require.Equal(t, lt.s.Stats().Neighbors, lt.s.Stats().FilteredNeighbors)
}

type rejectAll struct{}

func (rejectAll) Accept(*Assignment) bool { return false }
func (rejectAll) Synchronize(*Assignment) {}

func TestRunLocalSearch_LNSRebuildsWithFinalizer(t *testing.T) {
	lt := newLineTour([]int64{0, 3, 1, 4, 2})
	best := lt.s.BestValueSolutionCollector(lt.prototype())
	phase := lt.phase(PathLNS(lt.nexts, nil, 1, 3, false))
	phase.NeighborLimit = lt.s.MakeLimit(0, 0, 0, 1)

	found, err := lt.s.RunLocalSearch(context.Background(), phase, lt.objective, nil, best)
	require.NoError(t, err)
	require.True(t, found)
	require.LessOrEqual(t, best.Solution(0).ObjectiveValue(), int64(12))
}

func TestRunLocalSearch_FirstSolutionBuilder(t *testing.T) {
	lt := newLineTour([]int64{0, 3, 1, 4, 2})
	phase := lt.phase(ConcatenateOperators(TwoOpt(lt.nexts, nil), OrOpt(lt.nexts, nil)))
	phase.Initial = nil
	phase.FirstSolution = lt.s.Phase(lt.nexts, ChoosePath, AssignMinValue)
	best := lt.s.BestValueSolutionCollector(lt.prototype())

	found, err := lt.s.RunLocalSearch(context.Background(), phase, lt.objective, lt.s.GreedyDescent(lt.objective, 1), best)
	require.NoError(t, err)
	require.True(t, found)
	require.LessOrEqual(t, best.Solution(0).ObjectiveValue(), int64(12))
}

func TestRunLocalSearch_ContextCancelled(t *testing.T) {
	lt := newLineTour([]int64{0, 3, 1, 4, 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := lt.s.RunLocalSearch(ctx, lt.phase(TwoOpt(lt.nexts, nil)), lt.objective, nil)
	require.ErrorIs(t, err, context.Canceled)
}

// Escape strategies run until their solution limit; every one must keep the
// optimum among the collected solutions.
func TestRunLocalSearch_EscapeMetaheuristics(t *testing.T) {
	cases := map[string]func(lt *lineTour) Metaheuristic{
		"guided": func(lt *lineTour) Metaheuristic {
			return lt.s.GuidedLocalSearch(lt.objective, 1, lt.nexts, func(i, j int64) int64 { return lt.arc(i, j) }, 1)
		},
		"annealing": func(lt *lineTour) Metaheuristic {
			return lt.s.SimulatedAnnealing(lt.objective, 1, 1000)
		},
		"tabu": func(lt *lineTour) Metaheuristic {
			return lt.s.TabuSearch(lt.objective, 1, lt.nexts, 3, 3, 0.5)
		},
	}
	for name, build := range cases {
		build := build
		t.Run(name, func(t *testing.T) {
			lt := newLineTour([]int64{0, 3, 1, 4, 2}, WithSeed(7))
			best := lt.s.BestValueSolutionCollector(lt.prototype())
			phase := lt.phase(TwoOpt(lt.nexts, nil))
			phase.Limit = lt.s.MakeLimit(0, 0, 0, 12)

			found, err := lt.s.RunLocalSearch(context.Background(), phase, lt.objective, build(lt), best)
			require.ErrorIs(t, err, ErrSearchLimitReached)
			require.True(t, found)
			require.Equal(t, int64(8), best.Solution(0).ObjectiveValue())
		})
	}
}

func TestGreedyDescent_Bound(t *testing.T) {
	s := NewSolver("greedy")
	obj := s.NewIntVar(0, 100, "obj")
	g := s.GreedyDescent(obj, 5)
	require.Equal(t, int64(math.MaxInt64), g.Bound())

	g.EnterSearch(s)
	require.NoError(t, obj.SetValue(40))
	g.AtSolution(s)
	require.Equal(t, int64(35), g.Bound())
	require.False(t, g.LocalOptimum(s))
}

func TestSimulatedAnnealing_Temperature(t *testing.T) {
	s := NewSolver("sa", WithSeed(1))
	obj := s.NewIntVar(0, 100, "obj")
	sa := s.SimulatedAnnealing(obj, 1, 0)
	sa.EnterSearch(s)
	require.Zero(t, sa.Temperature(), "pure descent before the first local optimum")

	require.False(t, sa.LocalOptimum(s), "no solution yet")
	require.InDelta(t, 100.0, sa.Temperature(), 1e-9)
	sa.AcceptNeighbor(s)
	require.InDelta(t, 50.0, sa.Temperature(), 1e-9)
}

func TestGuidedLocalSearch_PenalizesCostliestArc(t *testing.T) {
	s := NewSolver("gls")
	nexts := []*IntVar{s.NewIntVar(1, 1, "n0"), s.NewIntVar(2, 2, "n1"), s.NewIntVar(3, 3, "n2")}
	obj := s.NewIntVar(6, 6, "obj")
	cost := func(i, j int64) int64 { return []int64{1, 4, 1}[i] }
	g := s.GuidedLocalSearch(obj, 1, nexts, cost, 1)
	g.EnterSearch(s)
	g.AtSolution(s)

	require.True(t, g.LocalOptimum(s))
	require.Equal(t, int64(1), g.penalties[arc{1, 2}])
	require.Len(t, g.penalties, 1)
	require.Equal(t, int64(6+4), g.augmented)
}

func TestTabuSearch_ListsAgeOut(t *testing.T) {
	s := NewSolver("tabu")
	x := s.NewIntVar(0, 9, "x")
	obj := s.NewIntVar(0, 100, "obj")
	tabu := s.TabuSearch(obj, 1, []*IntVar{x}, 1, 2, 1)
	tabu.EnterSearch(s)

	mark := s.Checkpoint()
	require.NoError(t, x.SetValue(3))
	require.NoError(t, obj.SetValue(50))
	tabu.AtSolution(s)
	s.Backtrack(mark)
	require.True(t, tabu.LocalOptimum(s))
	require.Equal(t, int64(math.MaxInt64), tabu.Bound(), "improvement not required after a local optimum")

	require.NoError(t, x.SetValue(5))
	require.NoError(t, obj.SetValue(60))
	tabu.AtSolution(s)
	require.Len(t, tabu.keep, 1)
	require.Len(t, tabu.forbid, 1)
	require.Equal(t, int64(3), tabu.forbid[0].value)

	tabu.LocalOptimum(s)
	tabu.LocalOptimum(s)
	require.Empty(t, tabu.keep, "keep tenure is one")
	require.Len(t, tabu.forbid, 1)
	tabu.LocalOptimum(s)
	require.Empty(t, tabu.forbid)
}
