package cp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func permutationModel(n int64) (*Solver, []*IntVar) {
	s := NewSolver("perm")
	vars := make([]*IntVar, n)
	for i := range vars {
		vars[i] = s.NewIntVar(0, n-1, "x"+string(rune('0'+i)))
	}
	s.AddConstraint(s.AllDifferent(vars))
	return s, vars
}

func TestSolve_AllSolutions(t *testing.T) {
	s, vars := permutationModel(3)
	proto := s.NewAssignment()
	proto.Add(vars...)
	all := s.AllSolutionCollector(proto)

	found, err := s.Solve(context.Background(), s.Phase(vars, ChooseFirstUnbound, AssignMinValue), all)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 6, all.SolutionCount())

	first := all.Solution(0)
	require.Equal(t, []int64{0, 1, 2}, []int64{first.Value(vars[0]), first.Value(vars[1]), first.Value(vars[2])})
	last := all.Solution(5)
	require.Equal(t, []int64{2, 1, 0}, []int64{last.Value(vars[0]), last.Value(vars[1]), last.Value(vars[2])})

	for _, v := range vars {
		require.False(t, v.Bound(), "Solve restores the solver state")
	}
}

func TestSolveAndCommit_KeepsState(t *testing.T) {
	s := NewSolver("commit")
	x := s.NewIntVar(0, 3, "x")
	found, err := s.SolveAndCommit(context.Background(), s.Phase([]*IntVar{x}, ChooseFirstUnbound, AssignMaxValue))
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, x.Bound())
	require.Equal(t, int64(3), x.Value())
}

func TestSolveAndCommit_RestoresOnFailure(t *testing.T) {
	s, vars := permutationModel(3)
	require.NoError(t, vars[0].SetValue(1))
	require.NoError(t, vars[1].SetValue(1))
	found, err := s.SolveAndCommit(context.Background(), s.Phase(vars, ChooseFirstUnbound, AssignMinValue))
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, int64(3), int64(vars[2].Size()))
}

func TestMinimize_FindsOptimum(t *testing.T) {
	s := NewSolver("minimize")
	x := s.NewIntVar(0, 5, "x")
	y := s.NewIntVar(0, 5, "y")
	s.AddConstraint(s.AllDifferent([]*IntVar{x, y}))
	z := s.SumVar([]*IntVar{x, y}, "z")

	proto := s.NewAssignment()
	proto.Add(x, y)
	proto.AddObjective(z)
	best := s.BestValueSolutionCollector(proto)
	opt := s.Minimize(z, 1)

	found, err := s.Solve(context.Background(), s.Phase([]*IntVar{x, y}, ChooseFirstUnbound, AssignMaxValue), opt, best)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), opt.Best())
	require.Equal(t, 1, best.SolutionCount())
	require.Equal(t, int64(1), best.Solution(0).ObjectiveValue())
	require.Equal(t, int64(1), best.Solution(0).Value(x)+best.Solution(0).Value(y))
}

func TestSearchLimit_Solutions(t *testing.T) {
	s, vars := permutationModel(4)
	proto := s.NewAssignment()
	proto.Add(vars...)
	all := s.AllSolutionCollector(proto)
	limit := s.MakeLimit(0, 0, 0, 2)

	found, err := s.Solve(context.Background(), s.Phase(vars, ChooseFirstUnbound, AssignMinValue), all, limit)
	require.NoError(t, err, "a solution limit stops through AtSolution")
	require.True(t, found)
	require.Equal(t, 2, all.SolutionCount())
	require.True(t, limit.Crossed())
}

func TestSearchLimit_Branches(t *testing.T) {
	s, vars := permutationModel(5)
	limit := s.MakeLimit(0, 5, 0, 0)
	_, err := s.Solve(context.Background(), s.Phase(vars, ChooseFirstUnbound, AssignMinValue), limit)
	require.ErrorIs(t, err, ErrSearchLimitReached)
	require.GreaterOrEqual(t, s.Stats().Branches, int64(5))
}

type tickMonitor struct {
	BaseMonitor
	clock *FakeClock
	step  time.Duration
}

func (m tickMonitor) BeginNode(*Solver) error {
	m.clock.Advance(m.step)
	return nil
}

func TestSearchLimit_TimeWithFakeClock(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewSolver("time", WithClock(clock))
	vars := []*IntVar{s.NewIntVar(0, 9, "a"), s.NewIntVar(0, 9, "b"), s.NewIntVar(0, 9, "c")}
	limit := s.MakeLimit(3*time.Second, 0, 0, 0)

	found, err := s.Solve(context.Background(), s.Phase(vars, ChooseFirstUnbound, AssignMinValue),
		tickMonitor{clock: clock, step: time.Second}, limit)
	require.ErrorIs(t, err, ErrSearchLimitReached)
	require.False(t, found, "the limit is crossed before the first leaf")
	require.True(t, limit.Crossed())
	require.Equal(t, 3*time.Second, limit.Elapsed())
}

func TestSearchLimit_CumulativeSharedAcrossSearches(t *testing.T) {
	s, vars := permutationModel(3)
	limit := s.MakeCumulativeLimit(0, 0, 0, 3)
	db := s.Phase(vars, ChooseFirstUnbound, AssignMinValue)

	found, err := s.Solve(context.Background(), db, limit)
	require.NoError(t, err)
	require.True(t, found)

	found, err = s.Solve(context.Background(), db, limit)
	require.ErrorIs(t, err, ErrSearchLimitReached)
	require.False(t, found)

	limit.Init()
	found, err = s.Solve(context.Background(), db, limit)
	require.NoError(t, err)
	require.True(t, found)
}

func TestSolve_ContextCancelled(t *testing.T) {
	s, vars := permutationModel(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Solve(ctx, s.Phase(vars, ChooseFirstUnbound, AssignMinValue))
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompose_RunsBuildersInOrder(t *testing.T) {
	s := NewSolver("compose")
	x := s.NewIntVar(0, 3, "x")
	y := s.NewIntVar(0, 3, "y")
	db := Compose(
		s.Phase([]*IntVar{y}, ChooseFirstUnbound, AssignMaxValue),
		s.Phase([]*IntVar{x}, ChooseFirstUnbound, AssignMinValue),
	)
	found, err := s.SolveAndCommit(context.Background(), db)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(3), y.Value())
	require.Equal(t, int64(0), x.Value())
}

func TestEvaluatorPhase_PicksCheapestValue(t *testing.T) {
	s := NewSolver("evaluator")
	x := s.NewIntVar(0, 5, "x")
	db := s.EvaluatorPhase([]*IntVar{x}, ChooseFirstUnbound, func(_, j int64) int64 { return (j - 4) * (j - 4) })
	found, err := s.SolveAndCommit(context.Background(), db)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(4), x.Value())
}

func TestGlobalBestPhase(t *testing.T) {
	s, vars := permutationModel(3)
	cost := [][]int64{
		{5, 1, 9},
		{1, 8, 9},
		{9, 9, 2},
	}
	db := s.GlobalBestPhase(vars, func(i, j int64) int64 { return cost[i][j] })
	found, err := s.SolveAndCommit(context.Background(), db)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []int64{1, 0, 2}, []int64{vars[0].Value(), vars[1].Value(), vars[2].Value()})
}

func TestPhase_ChoosePathFollowsSuccessors(t *testing.T) {
	s := NewSolver("path")
	nexts := []*IntVar{s.NewIntVar(1, 3, "n0"), s.NewIntVar(0, 3, "n1"), s.NewIntVar(0, 3, "n2")}
	s.AddConstraint(s.AllDifferent(nexts))
	s.AddConstraint(s.NoCycle(nexts, nil))
	found, err := s.SolveAndCommit(context.Background(), s.Phase(nexts, ChoosePath, AssignMaxValue))
	require.NoError(t, err)
	require.True(t, found)
	for start := int64(0); start < 3; start++ {
		node, steps := start, 0
		for node < 3 && nexts[node].Value() != node {
			node = nexts[node].Value()
			steps++
			require.LessOrEqual(t, steps, 3, "walk from %d cycles", start)
		}
	}
}

func TestRestoreAssignment(t *testing.T) {
	s, vars := permutationModel(3)
	a := s.NewAssignment()
	a.SetValue(vars[0], 2)
	a.SetValue(vars[1], 0)
	found, err := s.SolveAndCommit(context.Background(), Compose(
		s.RestoreAssignment(a),
		s.Phase(vars, ChooseFirstUnbound, AssignMinValue),
	))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), vars[2].Value())
}

func TestLeftDive_StopsAtFirstFailure(t *testing.T) {
	s, vars := permutationModel(3)
	require.NoError(t, vars[2].SetValue(0))
	found, err := s.Solve(context.Background(), LeftDive(s.Phase(vars, ChooseFirstUnbound, AssignMinValue)))
	require.NoError(t, err)
	require.True(t, found, "min values 1, 2 complete the permutation")
}
