package routing

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/gitrdm/gokanroute/pkg/cp"
)

// AssignmentToRoutes reads one route per vehicle from a: the nodes visited
// between the vehicle start and end, in order.
func (m *Model) AssignmentToRoutes(a *cp.Assignment) ([][]int64, error) {
	if !m.closed {
		return nil, ErrModelNotClosed
	}
	size := m.Size()
	routes := make([][]int64, m.vehicles)
	for v := range routes {
		routes[v] = []int64{}
		index, err := m.assignedNext(a, m.starts[v])
		if err != nil {
			return nil, err
		}
		for visited := 0; !m.IsEnd(index); visited++ {
			if visited >= size {
				return nil, fmt.Errorf("%w: vehicle %d: the assignment contains a cycle", ErrInvalidRoutes, v)
			}
			routes[v] = append(routes[v], m.indexToNode[index])
			if index, err = m.assignedNext(a, index); err != nil {
				return nil, err
			}
		}
	}
	return routes, nil
}

func (m *Model) assignedNext(a *cp.Assignment, index int64) (int64, error) {
	e := a.Element(m.nexts[index])
	if e == nil || !e.Bound() {
		return 0, fmt.Errorf("%w: successor of index %d is not assigned", ErrInvalidRoutes, index)
	}
	return e.Value(), nil
}

// RoutesToAssignment writes the successors described by routes into a.
// Routes list node identifiers without the vehicle start and end; vehicles
// beyond len(routes) are unused. Inactive nodes are skipped when
// ignoreInactive is set and rejected otherwise. With closeRoutes the last
// node of every route is sent to the vehicle end and every index left out is
// made inactive. On error a may hold part of the routes.
func (m *Model) RoutesToAssignment(routes [][]int64, ignoreInactive, closeRoutes bool, a *cp.Assignment) error {
	if !m.closed {
		return ErrModelNotClosed
	}
	if len(routes) > m.vehicles {
		return routeError(-1, -1, "%d routes for %d vehicles", len(routes), m.vehicles)
	}
	size := m.Size()
	visited := bitset.New(uint(size + m.vehicles))
	for v, route := range routes {
		from := m.starts[v]
		if visited.Test(uint(from)) {
			return routeError(v, m.indexToNode[from], "start index %d already used", from)
		}
		visited.Set(uint(from))
		for _, node := range route {
			if node < 0 || node >= int64(m.nodes) {
				return routeError(v, node, "unknown node")
			}
			to := m.nodeToIndex[node]
			if to < 0 || to >= int64(size) {
				return routeError(v, node, "node has no successor variable")
			}
			if m.active[to].Max() == 0 {
				if ignoreInactive {
					continue
				}
				return routeError(v, node, "node is not active")
			}
			if visited.Test(uint(to)) {
				return routeError(v, node, "node used more than once")
			}
			visited.Set(uint(to))
			if !m.vehicleVars[to].Contains(int64(v)) {
				return routeError(v, node, "vehicle not allowed at node")
			}
			a.SetValue(m.nexts[from], to)
			from = to
		}
		if closeRoutes {
			a.SetValue(m.nexts[from], m.ends[v])
		}
	}
	for v := len(routes); v < m.vehicles; v++ {
		start := m.starts[v]
		if visited.Test(uint(start)) {
			return routeError(v, m.indexToNode[start], "start index %d already used", start)
		}
		visited.Set(uint(start))
		if closeRoutes {
			a.SetValue(m.nexts[start], m.ends[v])
		}
	}
	if closeRoutes {
		for i := int64(0); i < int64(size); i++ {
			if !visited.Test(uint(i)) {
				a.SetValue(m.nexts[i], i)
			}
		}
	}
	return nil
}

// ApplyLocks locks a chain of indices at the start of the single vehicle:
// each active lock is made the successor of the previous one. It returns the
// successor variable of the last lock, left free, or nil when no lock is
// active.
func (m *Model) ApplyLocks(locks []int64) (*cp.IntVar, error) {
	if m.vehicles != 1 {
		return nil, fmt.Errorf("%w: locks need exactly one vehicle, the model has %d", cp.ErrInvalidArgument, m.vehicles)
	}
	m.preassignment.Clear()
	k := m.FindNextActive(-1, locks)
	if k >= len(locks) {
		return nil, nil
	}
	next := m.nexts[locks[k]]
	m.preassignment.Add(next)
	for k = m.FindNextActive(k, locks); k < len(locks); k = m.FindNextActive(k, locks) {
		m.preassignment.SetValue(next, locks[k])
		next = m.nexts[locks[k]]
		m.preassignment.Add(next)
	}
	return next, nil
}

// ApplyLocksToAllVehicles locks the given partial routes, one per vehicle.
// With closeRoutes the routes are complete and every other node inactive.
func (m *Model) ApplyLocksToAllVehicles(locks [][]int64, closeRoutes bool) error {
	m.quietCloseModel()
	m.preassignment.Clear()
	return m.RoutesToAssignment(locks, true, closeRoutes, m.preassignment)
}

// FindNextActive returns the position of the first index of indices after
// position k that can still be active, or len(indices).
func (m *Model) FindNextActive(k int, indices []int64) int {
	k++
	for k < len(indices) && m.active[indices[k]].Max() == 0 {
		k++
	}
	return k
}

// IsVehicleUsed reports whether vehicle visits at least one node in a.
func (m *Model) IsVehicleUsed(a *cp.Assignment, vehicle int) bool {
	e := a.Element(m.nexts[m.starts[vehicle]])
	return e != nil && e.Bound() && !m.IsEnd(e.Value())
}
