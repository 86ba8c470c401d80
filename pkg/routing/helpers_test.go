package routing

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/gokanroute/internal/logger"
	"github.com/gitrdm/gokanroute/pkg/cp"
)

func TestMain(m *testing.M) {
	logger.Disable()
	os.Exit(m.Run())
}

// square places four nodes on the corners of a 5x5 square, depot at the
// origin. Node 1 is opposite the depot.
var square = [][2]float64{{0, 0}, {5, 5}, {0, 5}, {5, 0}}

// euclidean returns the distance between points, scaled by 100 and rounded.
func euclidean(points [][2]float64) NodeEvaluator {
	return func(from, to int64) int64 {
		a, b := points[from], points[to]
		return int64(math.Round(100 * math.Hypot(a[0]-b[0], a[1]-b[1])))
	}
}

// newSquareModel returns a one vehicle tour over square with Euclidean
// costs.
func newSquareModel(t *testing.T, params Parameters) *Model {
	t.Helper()
	m, err := NewWithDepot(len(square), 1, 0, params)
	require.NoError(t, err)
	require.NoError(t, m.SetCost(euclidean(square)))
	return m
}

// tourCost returns the cost of visiting route from node 0 and back.
func tourCost(eval NodeEvaluator, route []int64) int64 {
	var cost int64
	prev := int64(0)
	for _, node := range route {
		cost += eval(prev, node)
		prev = node
	}
	return cost + eval(prev, 0)
}

// bestTour enumerates every tour of nodes 1..n-1 accepted by keep and
// returns the cheapest cost.
func bestTour(n int, eval NodeEvaluator, keep func([]int64) bool) int64 {
	best := int64(math.MaxInt64)
	route := make([]int64, 0, n-1)
	used := make([]bool, n)
	var rec func()
	rec = func() {
		if len(route) == n-1 {
			if keep == nil || keep(route) {
				best = min(best, tourCost(eval, route))
			}
			return
		}
		for node := 1; node < n; node++ {
			if used[node] {
				continue
			}
			used[node] = true
			route = append(route, int64(node))
			rec()
			route = route[:len(route)-1]
			used[node] = false
		}
	}
	rec()
	return best
}

func position(route []int64, node int64) int {
	for i, n := range route {
		if n == node {
			return i
		}
	}
	return -1
}

// requireValidPaths checks that the successors of a decompose into one
// simple path per vehicle and that every other index points to itself.
func requireValidPaths(t *testing.T, m *Model, a *cp.Assignment) {
	t.Helper()
	seen := make(map[int64]bool)
	for v := 0; v < m.Vehicles(); v++ {
		index := m.Start(v)
		for steps := 0; !m.IsEnd(index); steps++ {
			require.LessOrEqual(t, steps, m.Size(), "vehicle %d loops", v)
			require.False(t, seen[index], "index %d visited twice", index)
			seen[index] = true
			index = a.Value(m.NextVar(index))
		}
		require.Equal(t, m.End(v), index, "vehicle %d ends elsewhere", v)
	}
	for i := int64(0); i < int64(m.Size()); i++ {
		if !seen[i] {
			require.Equal(t, i, a.Value(m.NextVar(i)), "index %d neither routed nor inactive", i)
		}
	}
}
