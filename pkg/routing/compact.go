package routing

import (
	"github.com/gitrdm/gokanroute/pkg/cp"
)

// CompactAssignment returns a copy of a where the used vehicles are the
// first ones: the route of a later vehicle is moved to every unused vehicle
// with the same start and end nodes. It returns nil when costs depend on
// the vehicle, when a gap cannot be filled, or when the compacted
// assignment is rejected by the model and CheckCompactAssignment is set.
func (m *Model) CompactAssignment(a *cp.Assignment) *cp.Assignment {
	if !m.homogeneous {
		m.log.Warn().Msg("costs are not homogeneous, routes cannot be rearranged")
		return nil
	}
	compact := a.Clone()
	for v := 0; v < m.vehicles-1; v++ {
		if m.IsVehicleUsed(compact, v) {
			continue
		}
		swap := m.vehicles - 1
		moreRoutes := false
		for ; swap > v; swap-- {
			// Vehicles already swapped show up as unused.
			if !m.IsVehicleUsed(compact, swap) {
				continue
			}
			moreRoutes = true
			if m.indexToNode[m.starts[v]] != m.indexToNode[m.starts[swap]] ||
				m.indexToNode[m.ends[v]] != m.indexToNode[m.ends[swap]] {
				continue
			}
			if m.RouteCanBeUsedByVehicle(compact, m.starts[swap], v) {
				break
			}
		}
		if swap == v {
			if moreRoutes {
				m.log.Warn().Int("vehicle", v).Msg("no route can be moved to vehicle")
				return nil
			}
			break
		}
		if !m.ReplaceUnusedVehicle(v, swap, compact) {
			return nil
		}
	}
	if m.params.CheckCompactAssignment && !m.checkAssignment(compact) {
		m.log.Warn().Msg("compacted assignment is not a valid solution")
		return nil
	}
	return compact
}

// RouteCanBeUsedByVehicle reports whether every node of the route starting
// at index may be visited by vehicle.
func (m *Model) RouteCanBeUsedByVehicle(a *cp.Assignment, index int64, vehicle int) bool {
	current := index
	if m.IsStart(index) {
		current = a.Value(m.nexts[index])
	}
	for steps := 0; !m.IsEnd(current); steps++ {
		if steps > m.Size() || !m.vehicleVars[current].Contains(int64(vehicle)) {
			return false
		}
		next := a.Value(m.nexts[current])
		if next == current {
			m.log.Error().Int64("index", current).Msg("inactive node inside a route")
			return false
		}
		current = next
	}
	return true
}

// ReplaceUnusedVehicle moves the route of active to the unused vehicle in a,
// updating vehicle variables and the end cumuls of every dimension.
func (m *Model) ReplaceUnusedVehicle(unused, active int, a *cp.Assignment) bool {
	if m.IsVehicleUsed(a, unused) || !m.IsVehicleUsed(a, active) {
		m.log.Error().Int("unused", unused).Int("active", active).Msg("vehicles cannot be swapped")
		return false
	}
	first := a.Value(m.nexts[m.starts[active]])
	a.SetValue(m.nexts[m.starts[unused]], first)
	a.SetValue(m.nexts[m.starts[active]], m.ends[active])

	for current := first; !m.IsEnd(current); {
		a.SetValue(m.vehicleVars[current], int64(unused))
		next := a.Value(m.nexts[current])
		if m.IsEnd(next) {
			a.SetValue(m.nexts[current], m.ends[unused])
		}
		current = next
	}

	for _, d := range m.dimensions {
		unusedTransit, activeTransit := d.transits[m.starts[unused]], d.transits[m.starts[active]]
		if a.Contains(unusedTransit) != a.Contains(activeTransit) {
			m.log.Warn().Str("dimension", d.name).Msg("assignment holds transits for some vehicles only")
			return false
		}
		if a.Contains(unusedTransit) {
			swapValues(a, unusedTransit, activeTransit)
		}
		unusedCumul, activeCumul := d.cumuls[m.ends[unused]], d.cumuls[m.ends[active]]
		if a.Contains(unusedCumul) && a.Contains(activeCumul) {
			swapValues(a, unusedCumul, activeCumul)
		}
	}
	return true
}

func swapValues(a *cp.Assignment, x, y *cp.IntVar) {
	vx, vy := a.Value(x), a.Value(y)
	a.SetValue(x, vy)
	a.SetValue(y, vx)
}

// checkAssignment reports whether a, restored over the model, propagates
// without failure. The solver state is left unchanged.
func (m *Model) checkAssignment(a *cp.Assignment) bool {
	s := m.s
	mark := s.Checkpoint()
	defer s.Backtrack(mark)
	err := a.Restore()
	if err == nil {
		err = s.Propagate()
	}
	if err != nil {
		m.log.Debug().Err(err).Msg("assignment check failed")
		return false
	}
	return true
}
