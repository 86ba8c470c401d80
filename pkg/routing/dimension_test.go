package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorDimensionCumuls(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	d, err := m.AddVectorDimension([]int64{0, 1, 2, 3}, 6, "load")
	require.NoError(t, err)
	m.CloseModel()

	a := m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{1, 2, 3}}, false, true, a))
	solution, err := m.RestoreAssignment(context.Background(), a)
	require.NoError(t, err)

	var got []int64
	for _, index := range []int64{0, 1, 2, 3, m.End(0)} {
		got = append(got, solution.Value(d.CumulVar(index)))
	}
	assert.Equal(t, []int64{0, 0, 1, 3, 6}, got)
}

func TestVectorDimensionCapacity(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	_, err := m.AddVectorDimension([]int64{0, 1, 2, 3}, 5, "load")
	require.NoError(t, err)
	m.CloseModel()

	a := m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{1, 2, 3}}, false, true, a))
	_, err = m.RestoreAssignment(context.Background(), a)
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestMatrixDimensionOrderMatters(t *testing.T) {
	// Distances of the square in whole units.
	matrix := [][]int64{
		{0, 7, 5, 5},
		{7, 0, 5, 5},
		{5, 5, 0, 7},
		{5, 5, 7, 0},
	}
	m := newSquareModel(t, DefaultParameters())
	d, err := m.AddMatrixDimension(matrix, 20, "distance")
	require.NoError(t, err)
	m.CloseModel()

	a := m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{2, 1, 3}}, false, true, a))
	solution, err := m.RestoreAssignment(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, int64(20), solution.Value(d.CumulVar(m.End(0))))

	a = m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{1, 2, 3}}, false, true, a))
	_, err = m.RestoreAssignment(context.Background(), a)
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestDimensionRegistration(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	load, err := m.AddConstantDimension(1, 10, "count")
	require.NoError(t, err)

	again, err := m.AddConstantDimension(2, 20, "count")
	require.NoError(t, err)
	assert.Same(t, load, again)
	assert.Same(t, load, m.Dimension("count"))
	assert.Nil(t, m.Dimension("missing"))
	assert.Len(t, m.Dimensions(), 1)
	assert.Equal(t, "count", load.Name())
	assert.Equal(t, int64(10), load.Capacity())
	assert.Len(t, load.Cumuls(), m.Size()+m.Vehicles())

	_, err = m.AddVectorDimension([]int64{1, 2}, 10, "short")
	require.Error(t, err)
	_, err = m.AddMatrixDimension([][]int64{{0, 1, 2, 3}}, 10, "rows")
	require.Error(t, err)
	_, err = m.AddDimension(func(int64, int64) int64 { return 0 }, -1, 10, "negative")
	require.Error(t, err)

	m.CloseModel()
	_, err = m.AddConstantDimension(1, 10, "late")
	require.ErrorIs(t, err, ErrModelClosed)
}

func TestDimensionSlack(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	d, err := m.AddDimension(func(int64, int64) int64 { return 1 }, 2, 100, "time")
	require.NoError(t, err)
	m.CloseModel()

	require.NoError(t, d.SlackVar(1).SetValue(2))
	a := m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{1, 2, 3}}, false, true, a))
	solution, err := m.RestoreAssignment(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), solution.Value(d.CumulVar(1)))
	assert.Equal(t, int64(4), solution.Value(d.CumulVar(2)))
}
