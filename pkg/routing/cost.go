package routing

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// NodeEvaluator returns the cost or transit of the arc between two nodes.
type NodeEvaluator func(from, to int64) int64

// maxArcCost bounds cost variables built without an element expression.
const maxArcCost = math.MaxInt64

// arcCacheEntry memoizes the last arc cost computed from one source index.
type arcCacheEntry struct {
	to    int64
	class int
	cost  int64
}

// SetCost sets the arc cost of every vehicle without one. The vehicles share
// a cost class, so costs stay homogeneous.
func (m *Model) SetCost(eval NodeEvaluator) error {
	vehicles := make([]int, m.vehicles)
	for v := range vehicles {
		vehicles[v] = v
	}
	return m.setVehiclesCost(vehicles, eval)
}

// SetVehicleCost sets the arc cost of one vehicle. Costs are no longer
// considered homogeneous.
func (m *Model) SetVehicleCost(vehicle int, eval NodeEvaluator) error {
	return m.SetVehiclesCost([]int{vehicle}, eval)
}

// SetVehiclesCost sets one arc cost, shared as a single cost class, for
// several vehicles. Costs are no longer considered homogeneous.
func (m *Model) SetVehiclesCost(vehicles []int, eval NodeEvaluator) error {
	if err := m.setVehiclesCost(vehicles, eval); err != nil {
		return err
	}
	m.homogeneous = false
	return nil
}

func (m *Model) setVehiclesCost(vehicles []int, eval NodeEvaluator) error {
	if m.closed {
		return ErrModelClosed
	}
	class := len(m.costClasses)
	used := false
	for _, v := range vehicles {
		if v < 0 || v >= m.vehicles {
			m.log.Error().Int("vehicle", v).Msg("cost set for an unknown vehicle")
			continue
		}
		if m.vehicleCostClass[v] >= 0 {
			m.log.Error().Int("vehicle", v).Msg("vehicle already has a cost, keeping the first one")
			continue
		}
		m.vehicleCostClass[v] = class
		used = true
	}
	if used {
		m.costClasses = append(m.costClasses, m.cachedEvaluator(eval))
	}
	return nil
}

// SetVehicleFixedCost charges cost for every route of vehicle that visits
// at least one node.
func (m *Model) SetVehicleFixedCost(vehicle int, cost int64) error {
	if m.closed {
		return ErrModelClosed
	}
	m.fixedCosts[vehicle] = cost
	return nil
}

// SetRouteFixedCost sets the same fixed cost for every vehicle.
func (m *Model) SetRouteFixedCost(cost int64) error {
	if m.closed {
		return ErrModelClosed
	}
	for v := range m.fixedCosts {
		m.fixedCosts[v] = cost
	}
	return nil
}

// VehicleFixedCost returns the fixed cost of vehicle.
func (m *Model) VehicleFixedCost(vehicle int) int64 { return m.fixedCosts[vehicle] }

// HomogeneousCosts reports whether every vehicle uses the same arc cost.
func (m *Model) HomogeneousCosts() bool { return m.homogeneous }

// VehicleCostClass returns the cost class of vehicle, or -1 when it has no
// cost.
func (m *Model) VehicleCostClass(vehicle int) int { return m.vehicleCostClass[vehicle] }

func (m *Model) safeVehicleCostClass(vehicle int64) int64 {
	if vehicle < 0 {
		return -1
	}
	return int64(m.vehicleCostClass[vehicle])
}

// arcCost computes the cost of i -> j for a cost class. Leaving a start
// adds the fixed cost of its vehicle; going straight from a start to an end
// is free.
func (m *Model) arcCost(i, j int64, class int) int64 {
	// The cache holds pure values keyed by (to, class), so backtracking need not restore it.
	e := &m.arcCache[i]
	if e.to == j && e.class == class {
		return e.cost
	}
	var cost int64
	switch {
	case !m.IsStart(i):
		cost = m.costClasses[class](m.indexToNode[i], m.indexToNode[j])
	case !m.IsEnd(j):
		cost = m.costClasses[class](m.indexToNode[i], m.indexToNode[j]) + m.fixedCosts[m.indexToVehicle[i]]
	}
	*e = arcCacheEntry{to: j, class: class, cost: cost}
	return cost
}

// Cost returns the cost of i -> j when travelled by vehicle. Self loops and
// unassigned vehicles cost nothing.
func (m *Model) Cost(i, j, vehicle int64) int64 {
	if i == j || vehicle < 0 {
		return 0
	}
	return m.VehicleClassCost(i, j, m.safeVehicleCostClass(vehicle))
}

// VehicleClassCost returns the cost of i -> j for a cost class.
func (m *Model) VehicleClassCost(i, j, class int64) int64 {
	if i == j || class < 0 || int(class) >= len(m.costClasses) {
		return 0
	}
	return m.arcCost(i, j, int(class))
}

// HomogeneousCost returns the cost of i -> j for the first vehicle. It is
// the cost of every vehicle when costs are homogeneous.
func (m *Model) HomogeneousCost(i, j int64) int64 { return m.Cost(i, j, 0) }

// FilterCost is Cost where a self loop is charged the penalty of the node.
func (m *Model) FilterCost(i, j, vehicle int64) int64 {
	if i == j {
		return m.penaltyCost(i)
	}
	return m.Cost(i, j, vehicle)
}

// HomogeneousFilterCost is FilterCost for the first vehicle.
func (m *Model) HomogeneousFilterCost(i, j int64) int64 { return m.FilterCost(i, j, 0) }

// penaltyCost returns the penalty paid when index is inactive. Only
// disjunctions over a single node have a penalty attributable to one node.
func (m *Model) penaltyCost(index int64) int64 {
	k, ok := m.nodeDisjunction[index]
	if !ok {
		return 0
	}
	d := m.disjunctions[k]
	if len(d.indices) == 1 && d.penalty > 0 {
		return d.penalty
	}
	return 0
}

// firstSolutionCost ranks arcs for the cheapest arc strategies. Arcs into
// ends are tried last.
func (m *Model) firstSolutionCost(i, j int64) int64 {
	if m.IsEnd(j) {
		return math.MaxInt64
	}
	return m.Cost(i, j, 0)
}

// cachedEvaluator memoizes eval over node pairs when caching is enabled and
// the model is small enough.
func (m *Model) cachedEvaluator(eval NodeEvaluator) NodeEvaluator {
	if !m.params.CacheCallbacks || m.nodes > m.params.MaxCacheSize {
		return eval
	}
	n := int64(m.nodes)
	cache := make([]int64, n*n)
	known := bitset.New(uint(n * n))
	return func(from, to int64) int64 {
		k := uint(from*n + to)
		if known.Test(k) {
			return cache[k]
		}
		v := eval(from, to)
		cache[k] = v
		known.Set(k)
		return v
	}
}
