package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

func TestNewRejectsEmptyModels(t *testing.T) {
	_, err := New(0, 1, DefaultParameters())
	require.ErrorIs(t, err, cp.ErrInvalidArgument)
	_, err = New(3, 0, DefaultParameters())
	require.ErrorIs(t, err, cp.ErrInvalidArgument)
	_, err = NewWithDepot(3, 1, 3, DefaultParameters())
	require.ErrorIs(t, err, cp.ErrInvalidArgument)
	_, err = NewWithStartEnds(3, 2, []StartEnd{{Start: 0, End: 0}}, DefaultParameters())
	require.ErrorIs(t, err, cp.ErrInvalidArgument)
}

func TestSharedDepotIndices(t *testing.T) {
	m, err := NewWithDepot(4, 2, 0, DefaultParameters())
	require.NoError(t, err)

	assert.Equal(t, 5, m.Size())
	assert.Equal(t, int64(0), m.Start(0))
	assert.Equal(t, int64(4), m.Start(1))
	assert.Equal(t, int64(5), m.End(0))
	assert.Equal(t, int64(6), m.End(1))
	for _, index := range []int64{0, 4, 5, 6} {
		assert.Equal(t, int64(0), m.IndexToNode(index), "index %d", index)
	}
	assert.True(t, m.IsStart(4))
	assert.False(t, m.IsStart(2))
	assert.True(t, m.IsEnd(6))
	assert.Equal(t, 1, m.VehicleIndex(4))
	assert.Equal(t, -1, m.VehicleIndex(2))
	assert.Equal(t, int64(0), m.NodeToIndex(0))
}

func TestStartEndIndices(t *testing.T) {
	startEnds := []StartEnd{{Start: 0, End: 4}, {Start: 1, End: 4}}
	m, err := NewWithStartEnds(5, 2, startEnds, DefaultParameters())
	require.NoError(t, err)

	assert.Equal(t, 4, m.Size())
	assert.Equal(t, int64(0), m.Start(0))
	assert.Equal(t, int64(1), m.Start(1))
	assert.Equal(t, int64(-1), m.NodeToIndex(4), "node 4 is only an end")
	assert.Equal(t, int64(4), m.IndexToNode(m.End(0)))
	assert.Equal(t, int64(4), m.IndexToNode(m.End(1)))

	require.NoError(t, m.SetCost(func(from, to int64) int64 { return 1 }))
	a, err := m.Solve(context.Background())
	require.NoError(t, err)
	requireValidPaths(t, m, a)
	routes, err := m.AssignmentToRoutes(a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, append(append([]int64{}, routes[0]...), routes[1]...))
}

func TestDefaultDepot(t *testing.T) {
	m, err := New(3, 1, DefaultParameters())
	require.NoError(t, err)
	m.CloseModel()
	assert.True(t, m.Closed())
	assert.Equal(t, int64(0), m.IndexToNode(m.Start(0)))

	require.NoError(t, m.SetDepot(2), "later depots are ignored")
	assert.Equal(t, int64(0), m.IndexToNode(m.Start(0)))
}

func TestClosedModelRejectsChanges(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	m.CloseModel()
	m.CloseModel()

	require.ErrorIs(t, m.SetCost(euclidean(square)), ErrModelClosed)
	require.ErrorIs(t, m.AddDisjunction([]int64{1}), ErrModelClosed)
	require.ErrorIs(t, m.SetRouteFixedCost(10), ErrModelClosed)
	require.ErrorIs(t, m.SetVehicleFixedCost(0, 10), ErrModelClosed)
}

func TestAddDisjunctionErrors(t *testing.T) {
	m, err := NewWithStartEnds(4, 1, []StartEnd{{Start: 0, End: 3}}, DefaultParameters())
	require.NoError(t, err)
	require.ErrorIs(t, m.AddDisjunction([]int64{5}), cp.ErrInvalidArgument)
	require.ErrorIs(t, m.AddDisjunction([]int64{3}), cp.ErrInvalidArgument, "vehicle end")
	require.NoError(t, m.AddDisjunction([]int64{1, 2}))
}

func TestMandatoryDisjunction(t *testing.T) {
	points := [][2]float64{{0, 0}, {1, 0}, {9, 0}}
	m, err := NewWithDepot(len(points), 1, 0, DefaultParameters())
	require.NoError(t, err)
	require.NoError(t, m.SetCost(euclidean(points)))
	require.NoError(t, m.AddDisjunction([]int64{1, 2}))

	a, err := m.Solve(context.Background())
	require.NoError(t, err)
	routes, err := m.AssignmentToRoutes(a)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1}}, routes, "exactly one node of the disjunction is visited")
}

func TestVehicleCosts(t *testing.T) {
	m, err := NewWithDepot(3, 2, 0, DefaultParameters())
	require.NoError(t, err)
	require.NoError(t, m.SetVehicleCost(0, func(from, to int64) int64 { return 10 }))
	require.NoError(t, m.SetVehicleCost(1, func(from, to int64) int64 { return 1 }))
	require.NoError(t, m.SetVehicleCost(1, func(from, to int64) int64 { return 99 }), "second cost is ignored")
	require.NoError(t, m.SetVehicleFixedCost(1, 5))

	assert.False(t, m.HomogeneousCosts())
	assert.Equal(t, 0, m.VehicleCostClass(0))
	assert.Equal(t, 1, m.VehicleCostClass(1))
	assert.Equal(t, int64(5), m.VehicleFixedCost(1))

	a, err := m.Solve(context.Background())
	require.NoError(t, err)
	requireValidPaths(t, m, a)
	routes, err := m.AssignmentToRoutes(a)
	require.NoError(t, err)
	assert.Empty(t, routes[0])
	assert.ElementsMatch(t, []int64{1, 2}, routes[1])
	// Three unit arcs plus the fixed cost.
	assert.Equal(t, int64(3+5), a.ObjectiveValue())
}

func TestCostAccessors(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	m.CloseModel()
	end := m.End(0)

	assert.Equal(t, int64(707), m.HomogeneousCost(0, 1))
	assert.Equal(t, int64(500), m.HomogeneousCost(3, end))
	assert.Zero(t, m.HomogeneousCost(2, 2))
	assert.Zero(t, m.Cost(1, 2, -1))
	assert.Zero(t, m.HomogeneousCost(0, end), "empty route")
	assert.Equal(t, int64(500), m.HomogeneousFilterCost(1, 2))
}

func TestAddLocalSearchOperator(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	m.CloseModel()
	counting := &countingOperator{LocalSearchOperator: cp.TwoOpt(m.Nexts(), nil)}
	m.AddLocalSearchOperator(counting)

	_, err := m.Solve(context.Background())
	require.NoError(t, err)
	assert.Positive(t, counting.starts)
}

type countingOperator struct {
	cp.LocalSearchOperator
	starts int
}

func (o *countingOperator) Start(a *cp.Assignment) {
	o.starts++
	o.LocalSearchOperator.Start(a)
}
