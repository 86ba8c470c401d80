package routing

import (
	"math"
)

// ComputeLowerBound returns a lower bound of the cost of any solution: the
// cost of the cheapest assignment of a successor to every index, ignoring
// subtours. Each end is given its own start as only successor, for free. It
// returns 0 when the model is not closed, when costs depend on the vehicle,
// when nodes are optional, or when no assignment exists.
func (m *Model) ComputeLowerBound() int64 {
	switch {
	case !m.closed:
		m.log.Warn().Msg("lower bound needs a closed model")
		return 0
	case !m.homogeneous:
		m.log.Warn().Msg("lower bound needs homogeneous costs")
		return 0
	case len(m.disjunctions) > 0:
		m.log.Warn().Msg("lower bound does not support disjunctions")
		return 0
	}

	size := m.Size()
	n := size + m.vehicles
	cost := make([][]int64, n)
	allowed := make([][]bool, n)
	var forbidden int64 = 1
	for tail := 0; tail < n; tail++ {
		cost[tail] = make([]int64, n)
		allowed[tail] = make([]bool, n)
		if tail >= size {
			allowed[tail][m.starts[tail-size]] = true
			continue
		}
		var worst int64
		m.nexts[tail].Iterate(func(head int64) {
			if head == int64(tail) {
				return
			}
			c := m.HomogeneousCost(int64(tail), head)
			cost[tail][head] = c
			allowed[tail][head] = true
			worst = max(worst, c)
		})
		forbidden = saturatedAdd(forbidden, worst)
	}
	forbidden = min(forbidden, math.MaxInt64/4)
	for tail := range cost {
		for head := range cost[tail] {
			if !allowed[tail][head] {
				cost[tail][head] = forbidden
			}
		}
	}

	total, rowOf := minCostAssignment(cost)
	for col, row := range rowOf {
		if !allowed[row][col] {
			return 0
		}
	}
	return total
}

// minCostAssignment solves the square linear sum assignment problem with the
// Hungarian method in O(n^3). It returns the total cost and, for every
// column, the row assigned to it.
func minCostAssignment(cost [][]int64) (int64, []int) {
	n := len(cost)
	const inf = math.MaxInt64 / 2
	u := make([]int64, n+1)
	v := make([]int64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)
	minv := make([]int64, n+1)
	used := make([]bool, n+1)
	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0, delta, j1 := p[j0], int64(inf), 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				if cur := cost[i0-1][j-1] - u[i0] - v[j]; cur < minv[j] {
					minv[j], way[j] = cur, j0
				}
				if minv[j] < delta {
					delta, j1 = minv[j], j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}
	rowOf := make([]int, n)
	var total int64
	for j := 1; j <= n; j++ {
		rowOf[j-1] = p[j] - 1
		total += cost[p[j]-1][j-1]
	}
	return total, rowOf
}
