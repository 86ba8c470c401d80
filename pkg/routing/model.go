// Package routing models vehicle routing problems on top of the cp solver.
//
// A Model owns one cp.Solver. Every location that can be left by a vehicle
// gets a variable index in [0, Size()); vehicle ends get the indices
// [Size(), Size()+Vehicles()). Three arrays of variables describe a solution:
//
//	nexts[i]    the index visited after i, or i itself when i is inactive
//	vehicles[i] the vehicle visiting i, or -1 when i is inactive
//	active[i]   1 when i is visited
//
// Node identifiers, as seen by callers, are translated to indices with
// NodeToIndex and back with IndexToNode. A node shared as start by several
// vehicles gets one index per vehicle.
//
// The model is built in two phases. Costs, dimensions, disjunctions and
// pickup and delivery pairs are registered first; CloseModel then posts the
// path constraints and builds the cost variable. Solve closes the model when
// needed.
package routing

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gitrdm/gokanroute/internal/logger"
	"github.com/gitrdm/gokanroute/pkg/cp"
)

// StartEnd holds the start and end nodes of one vehicle.
type StartEnd struct {
	Start int64 `yaml:"start"`
	End   int64 `yaml:"end"`
}

// Pair links a pickup index to its delivery index.
type Pair struct {
	First, Second int64
}

type disjunction struct {
	indices []int64
	penalty int64
}

// Model is a vehicle routing model.
type Model struct {
	s      *cp.Solver
	params Parameters
	log    zerolog.Logger

	nodes         int
	vehicles      int
	startEndCount int
	depotSet      bool
	closed        bool

	starts         []int64
	ends           []int64
	indexToNode    []int64
	nodeToIndex    []int64
	indexToVehicle []int

	nexts       []*cp.IntVar
	vehicleVars []*cp.IntVar
	active      []*cp.IntVar
	nextIndex   map[*cp.IntVar]int64
	cost        *cp.IntVar

	homogeneous      bool
	costClasses      []NodeEvaluator
	vehicleCostClass []int
	fixedCosts       []int64
	arcCache         []arcCacheEntry

	dimensions      []*Dimension
	dimensionByName map[string]*Dimension

	disjunctions    []disjunction
	nodeDisjunction map[int64]int
	pairs           []Pair

	extraOperators         []cp.LocalSearchOperator
	firstSolutionEvaluator func(i, j int64) int64

	preassignment *cp.Assignment
	solution      *cp.Assignment
	status        Status
}

// New returns a model with nodes locations and vehicles vehicles. The depot
// is set later with SetDepot, or defaults to node 0 when the model is
// closed.
func New(nodes, vehicles int, params Parameters) (*Model, error) {
	if nodes <= 0 || vehicles <= 0 {
		return nil, fmt.Errorf("%w: %d nodes, %d vehicles", cp.ErrInvalidArgument, nodes, vehicles)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := newModel(nodes, vehicles, 1, params)
	m.initialize()
	return m, nil
}

// NewWithDepot returns a model whose vehicles all start and end at depot.
func NewWithDepot(nodes, vehicles int, depot int64, params Parameters) (*Model, error) {
	m, err := New(nodes, vehicles, params)
	if err != nil {
		return nil, err
	}
	if err := m.SetDepot(depot); err != nil {
		return nil, err
	}
	return m, nil
}

// NewWithStartEnds returns a model where vehicle v starts at
// startEnds[v].Start and ends at startEnds[v].End.
func NewWithStartEnds(nodes, vehicles int, startEnds []StartEnd, params Parameters) (*Model, error) {
	if nodes <= 0 || vehicles <= 0 {
		return nil, fmt.Errorf("%w: %d nodes, %d vehicles", cp.ErrInvalidArgument, nodes, vehicles)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := checkStartEnds(nodes, vehicles, startEnds); err != nil {
		return nil, err
	}
	depots := make(map[int64]bool)
	for _, se := range startEnds {
		depots[se.Start] = true
		depots[se.End] = true
	}
	m := newModel(nodes, vehicles, len(depots), params)
	m.initialize()
	m.setStartEnd(startEnds)
	return m, nil
}

func checkStartEnds(nodes, vehicles int, startEnds []StartEnd) error {
	if len(startEnds) != vehicles {
		return fmt.Errorf("%w: %d start/end pairs for %d vehicles", cp.ErrInvalidArgument, len(startEnds), vehicles)
	}
	for v, se := range startEnds {
		if se.Start < 0 || se.Start >= int64(nodes) || se.End < 0 || se.End >= int64(nodes) {
			return fmt.Errorf("%w: vehicle %d: start %d or end %d out of range", cp.ErrInvalidArgument, v, se.Start, se.End)
		}
	}
	return nil
}

func newModel(nodes, vehicles, startEndCount int, params Parameters) *Model {
	log := logger.Component("routing")
	m := &Model{
		s: cp.NewSolver("Routing",
			cp.WithSeed(params.Seed),
			cp.WithLogger(log.With().Str("solver", "cp").Logger()),
		),
		params:           params,
		log:              log,
		nodes:            nodes,
		vehicles:         vehicles,
		startEndCount:    startEndCount,
		starts:           make([]int64, vehicles),
		ends:             make([]int64, vehicles),
		homogeneous:      params.UseHomogeneousCosts,
		vehicleCostClass: make([]int, vehicles),
		fixedCosts:       make([]int64, vehicles),
		dimensionByName:  make(map[string]*Dimension),
		nodeDisjunction:  make(map[int64]int),
	}
	for v := range m.vehicleCostClass {
		m.vehicleCostClass[v] = -1
	}
	return m
}

func (m *Model) initialize() {
	size := m.Size()
	s := m.s
	m.nexts = make([]*cp.IntVar, size)
	m.active = make([]*cp.IntVar, size)
	m.nextIndex = make(map[*cp.IntVar]int64, size)
	for i := range m.nexts {
		m.nexts[i] = s.NewIntVar(0, int64(size+m.vehicles-1), fmt.Sprintf("Nexts%d", i))
		m.active[i] = s.NewBoolVar(fmt.Sprintf("Active%d", i))
		m.nextIndex[m.nexts[i]] = int64(i)
	}
	s.AddConstraint(s.AllDifferent(m.nexts))
	m.vehicleVars = make([]*cp.IntVar, size+m.vehicles)
	for i := range m.vehicleVars {
		m.vehicleVars[i] = s.NewIntVar(-1, int64(m.vehicles-1), fmt.Sprintf("Vehicle%d", i))
	}
	m.arcCache = make([]arcCacheEntry, size)
	for i := range m.arcCache {
		m.arcCache[i] = arcCacheEntry{to: -1}
	}
	m.preassignment = s.NewAssignment()
}

// SetDepot makes every vehicle start and end at depot. Only the first call
// to SetDepot or the start/end constructor counts; later calls are ignored
// with a warning.
func (m *Model) SetDepot(depot int64) error {
	if m.depotSet {
		m.log.Warn().Int64("depot", depot).Msg("a depot has already been specified, ignoring new ones")
		return nil
	}
	startEnds := make([]StartEnd, m.vehicles)
	for v := range startEnds {
		startEnds[v] = StartEnd{Start: depot, End: depot}
	}
	if err := checkStartEnds(m.nodes, m.vehicles, startEnds); err != nil {
		return err
	}
	m.setStartEnd(startEnds)
	return nil
}

// setStartEnd lays out the variable indices: nodes that are starts or not
// ends first, in node order, then extra start indices for shared starts,
// then one end index per vehicle.
func (m *Model) setStartEnd(startEnds []StartEnd) {
	size := m.Size()
	starts := make(map[int64]bool)
	ends := make(map[int64]bool)
	for _, se := range startEnds {
		starts[se.Start] = true
		ends[se.End] = true
	}
	m.indexToNode = make([]int64, size+m.vehicles)
	m.nodeToIndex = make([]int64, m.nodes)
	m.indexToVehicle = make([]int, size+m.vehicles)
	for i := range m.nodeToIndex {
		m.nodeToIndex[i] = -1
	}
	for i := range m.indexToVehicle {
		m.indexToVehicle[i] = -1
	}
	index := int64(0)
	for node := int64(0); node < int64(m.nodes); node++ {
		if starts[node] || !ends[node] {
			m.indexToNode[index] = node
			m.nodeToIndex[node] = index
			index++
		}
	}
	used := make(map[int64]bool)
	for v, se := range startEnds {
		if !used[se.Start] {
			used[se.Start] = true
			m.starts[v] = m.nodeToIndex[se.Start]
		} else {
			m.starts[v] = index
			m.indexToNode[index] = se.Start
			index++
		}
		m.indexToVehicle[m.starts[v]] = v
	}
	for v, se := range startEnds {
		m.indexToNode[index] = se.End
		m.ends[v] = index
		m.indexToVehicle[index] = v
		index++
	}
	for i := 0; i < size; i++ {
		if err := m.nexts[i].RemoveValues(m.starts); err != nil {
			m.log.Error().Err(err).Int("index", i).Msg("no successor left")
		}
		m.s.AddConstraint(m.s.IsDifferentCstCt(m.nexts[i], int64(i), m.active[i]))
	}
	m.depotSet = true

	m.log.Debug().Int("nodes", m.nodes).Int("vehicles", m.vehicles).Int("size", size).Msg("variable indices laid out")
}

// ensureDepot sets the default depot when none was given.
func (m *Model) ensureDepot() {
	if m.depotSet {
		return
	}
	m.log.Warn().Msg("no depot set, using node 0")
	if err := m.SetDepot(0); err != nil {
		m.log.Error().Err(err).Msg("setting the default depot")
	}
}

// Solver returns the underlying solver.
func (m *Model) Solver() *cp.Solver { return m.s }

// Parameters returns the parameters the model was built with.
func (m *Model) Parameters() Parameters { return m.params }

// Nodes returns the number of nodes.
func (m *Model) Nodes() int { return m.nodes }

// Vehicles returns the number of vehicles.
func (m *Model) Vehicles() int { return m.vehicles }

// Size returns the number of successor variables: every node plus one
// extra start per additional vehicle, minus the start/end nodes.
func (m *Model) Size() int { return m.nodes + m.vehicles - m.startEndCount }

// Start returns the start index of vehicle.
func (m *Model) Start(vehicle int) int64 {
	m.ensureDepot()
	return m.starts[vehicle]
}

// End returns the end index of vehicle.
func (m *Model) End(vehicle int) int64 {
	m.ensureDepot()
	return m.ends[vehicle]
}

// IsStart reports whether index is the start of a vehicle.
func (m *Model) IsStart(index int64) bool {
	return !m.IsEnd(index) && m.indexToVehicle[index] >= 0
}

// IsEnd reports whether index is the end of a vehicle.
func (m *Model) IsEnd(index int64) bool { return index >= int64(m.Size()) }

// VehicleIndex returns the vehicle starting or ending at index, or -1.
func (m *Model) VehicleIndex(index int64) int { return m.indexToVehicle[index] }

// IndexToNode returns the node of a variable index.
func (m *Model) IndexToNode(index int64) int64 {
	m.ensureDepot()
	return m.indexToNode[index]
}

// NodeToIndex returns the variable index of node, or -1 for nodes that are
// only vehicle ends. A node shared as start maps to the first vehicle
// starting there.
func (m *Model) NodeToIndex(node int64) int64 {
	m.ensureDepot()
	return m.nodeToIndex[node]
}

// NextVar returns the successor variable of index.
func (m *Model) NextVar(index int64) *cp.IntVar { return m.nexts[index] }

// VehicleVar returns the vehicle variable of index.
func (m *Model) VehicleVar(index int64) *cp.IntVar { return m.vehicleVars[index] }

// ActiveVar returns the activity variable of index.
func (m *Model) ActiveVar(index int64) *cp.IntVar { return m.active[index] }

// Nexts returns every successor variable.
func (m *Model) Nexts() []*cp.IntVar { return m.nexts }

// VehicleVars returns every vehicle variable, ends included.
func (m *Model) VehicleVars() []*cp.IntVar { return m.vehicleVars }

// CostVar returns the objective. It is nil until the model is closed.
func (m *Model) CostVar() *cp.IntVar { return m.cost }

// PreAssignment returns the assignment restored before every search. Locks
// are written to it.
func (m *Model) PreAssignment() *cp.Assignment { return m.preassignment }

// Status reports the outcome of the last solve.
func (m *Model) Status() Status { return m.status }

// Stats returns the statistics of the underlying solver.
func (m *Model) Stats() cp.SearchStats { return m.s.Stats() }

// Closed reports whether CloseModel has run.
func (m *Model) Closed() bool { return m.closed }

// AddDisjunction makes at most one of nodes active. Without a penalty
// exactly one of them is active.
func (m *Model) AddDisjunction(nodes []int64) error {
	return m.AddDisjunctionWithPenalty(nodes, -1)
}

// AddDisjunctionWithPenalty makes at most one of nodes active; penalty is
// charged when none is. A negative penalty makes one of them mandatory.
func (m *Model) AddDisjunctionWithPenalty(nodes []int64, penalty int64) error {
	if m.closed {
		return ErrModelClosed
	}
	d := disjunction{penalty: penalty}
	for _, node := range nodes {
		if node < 0 || node >= int64(m.nodes) {
			return fmt.Errorf("%w: disjunction node %d", cp.ErrInvalidArgument, node)
		}
		index := m.NodeToIndex(node)
		if index < 0 {
			return fmt.Errorf("%w: node %d is a vehicle end", cp.ErrInvalidArgument, node)
		}
		d.indices = append(d.indices, index)
	}
	for _, index := range d.indices {
		m.nodeDisjunction[index] = len(m.disjunctions)
	}
	m.disjunctions = append(m.disjunctions, d)
	return nil
}

// AddPickupAndDelivery requires pickup to be visited before delivery on the
// same route.
func (m *Model) AddPickupAndDelivery(pickup, delivery int64) error {
	if m.closed {
		return ErrModelClosed
	}
	for _, node := range []int64{pickup, delivery} {
		if node < 0 || node >= int64(m.nodes) || m.NodeToIndex(node) < 0 {
			return fmt.Errorf("%w: pickup and delivery node %d", cp.ErrInvalidArgument, node)
		}
	}
	m.pairs = append(m.pairs, Pair{First: m.NodeToIndex(pickup), Second: m.NodeToIndex(delivery)})
	return nil
}

// Pairs returns the registered pickup and delivery pairs as indices.
func (m *Model) Pairs() []Pair { return m.pairs }

// AddLocalSearchOperator adds an operator tried before the built-in ones.
func (m *Model) AddLocalSearchOperator(op cp.LocalSearchOperator) {
	m.extraOperators = append(m.extraOperators, op)
}

// SetFirstSolutionEvaluator sets the arc evaluator, over indices, used by
// the EvaluatorStrategy first solution.
func (m *Model) SetFirstSolutionEvaluator(eval func(i, j int64) int64) {
	m.firstSolutionEvaluator = eval
}

// CloseModel posts the routing constraints and builds the cost variable.
// Closing twice logs a warning.
func (m *Model) CloseModel() {
	if m.closed {
		m.log.Warn().Msg("model already closed")
		return
	}
	m.closeModel()
}

func (m *Model) quietCloseModel() {
	if !m.closed {
		m.closeModel()
	}
}

func (m *Model) closeModel() {
	m.ensureDepot()
	s := m.s
	size := m.Size()
	m.closed = true

	s.AddConstraint(s.NoCycle(m.nexts, m.active))

	for v := 0; v < m.vehicles; v++ {
		m.pin(m.vehicleVars[m.starts[v]], int64(v))
		m.pin(m.vehicleVars[m.ends[v]], int64(v))
	}
	zero := s.IntConst(0)
	zeros := make([]*cp.IntVar, size)
	for i := range zeros {
		zeros[i] = zero
	}
	s.AddConstraint(s.PathCumul(m.nexts, m.active, m.vehicleVars, zeros))
	for i := 0; i < size; i++ {
		s.AddConstraint(s.IsDifferentCstCt(m.vehicleVars[i], -1, m.active[i]))
	}
	// Nodes outside every disjunction are mandatory.
	for i, a := range m.active {
		if _, optional := m.nodeDisjunction[int64(i)]; !optional {
			m.pin(a, 1)
		}
	}
	for i, start := range m.starts {
		for j, end := range m.ends {
			if i != j {
				if err := m.nexts[start].RemoveValue(end); err != nil {
					m.log.Error().Err(err).Int("vehicle", i).Msg("start has no successor left")
				}
			}
		}
	}
	if len(m.pairs) > 0 {
		s.AddConstraint(newPairPrecedence(m))
	}

	terms := make([]*cp.IntVar, 0, size+len(m.disjunctions))
	for i := int64(0); i < int64(size); i++ {
		terms = append(terms, s.TimesBoolVar(m.arcCostVar(i), m.active[i], fmt.Sprintf("ArcCost%d", i)))
	}
	for k, d := range m.disjunctions {
		noActive := s.NewBoolVar(fmt.Sprintf("NoActive%d", k))
		vars := make([]*cp.IntVar, 0, len(d.indices)+1)
		for _, index := range d.indices {
			vars = append(vars, m.active[index])
		}
		vars = append(vars, noActive)
		s.AddConstraint(s.Sum(vars, s.IntConst(1)))
		if d.penalty < 0 {
			m.pin(noActive, 0)
			continue
		}
		terms = append(terms, s.TimesBoolVar(s.IntConst(d.penalty), noActive, fmt.Sprintf("Penalty%d", k)))
	}
	m.cost = s.SumVar(terms, "Cost")

	m.log.Debug().
		Int("size", size).
		Int("dimensions", len(m.dimensions)).
		Int("disjunctions", len(m.disjunctions)).
		Int("pairs", len(m.pairs)).
		Bool("homogeneous", m.homogeneous).
		Msg("model closed")
}

// arcCostVar returns the cost of the arc leaving index, ignoring activity.
func (m *Model) arcCostVar(i int64) *cp.IntVar {
	s := m.s
	name := fmt.Sprintf("Cost%d", i)
	switch {
	case m.params.UseLightPropagation:
		v := s.NewIntVar(0, maxArcCost, name)
		if m.homogeneous {
			s.AddConstraint(s.LightElement(v, m.nexts[i], func(j int64) int64 { return m.HomogeneousCost(i, j) }))
		} else {
			s.AddConstraint(s.LightElement2(v, m.nexts[i], m.vehicleVars[i], func(j, vehicle int64) int64 {
				return m.Cost(i, j, vehicle)
			}))
		}
		return v
	case m.homogeneous:
		return s.ElementFunc(func(j int64) int64 { return m.HomogeneousCost(i, j) }, m.nexts[i]).Var()
	default:
		class := s.ElementFunc(m.safeVehicleCostClass, m.vehicleVars[i]).Var()
		return s.Element2D(func(j, c int64) int64 { return m.VehicleClassCost(i, j, c) }, m.nexts[i], class).Var()
	}
}

// pin binds v at the root of the search.
func (m *Model) pin(v *cp.IntVar, value int64) {
	if err := v.SetValue(value); err != nil {
		m.log.Error().Err(err).Str("var", v.Name()).Int64("value", value).Msg("model is infeasible")
	}
}
