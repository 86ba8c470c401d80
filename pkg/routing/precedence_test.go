package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairPrecedence(t *testing.T) {
	tests := []struct {
		routes [][]int64
		ok     bool
	}{
		{[][]int64{{1, 2, 3}}, true},
		{[][]int64{{1, 3, 2}}, true},
		{[][]int64{{3, 1, 2}}, true},
		{[][]int64{{2, 1, 3}}, false},
		{[][]int64{{3, 2, 1}}, false},
	}
	m := newSquareModel(t, DefaultParameters())
	require.NoError(t, m.AddPickupAndDelivery(1, 2))
	m.CloseModel()
	for _, tt := range tests {
		a := m.Solver().NewAssignment()
		require.NoError(t, m.RoutesToAssignment(tt.routes, false, true, a))
		assert.Equal(t, tt.ok, m.checkAssignment(a), "routes %v", tt.routes)
	}
}

func TestPairPrecedenceAcrossVehicles(t *testing.T) {
	m, err := NewWithDepot(5, 2, 0, DefaultParameters())
	require.NoError(t, err)
	require.NoError(t, m.AddPickupAndDelivery(1, 2))
	m.CloseModel()

	a := m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{1, 3}, {2, 4}}, false, true, a))
	assert.False(t, m.checkAssignment(a), "pickup and delivery on different vehicles")

	a = m.Solver().NewAssignment()
	require.NoError(t, m.RoutesToAssignment([][]int64{{3}, {4, 1, 2}}, false, true, a))
	assert.True(t, m.checkAssignment(a))
}

func TestAddPickupAndDeliveryErrors(t *testing.T) {
	m := newSquareModel(t, DefaultParameters())
	require.Error(t, m.AddPickupAndDelivery(1, 9))
	require.Error(t, m.AddPickupAndDelivery(-1, 2))
	m.CloseModel()
	require.ErrorIs(t, m.AddPickupAndDelivery(1, 2), ErrModelClosed)
	assert.Empty(t, m.Pairs())
}
