// Package cp: solver core - trail, reversible cells and the demon queue
//
// The Solver owns every variable and constraint of a model. State changes are
// recorded on a trail of undo entries; checkpoint returns the current trail
// height and backtrack pops entries until the trail is back at that height.
// This is the same snapshot/undo scheme used by iterative depth-first search:
// a frame remembers the trail height before a decision and restores it when
// the decision is refuted.
//
// Propagation is event driven. Constraints register demons on variables
// (range, domain or bound events). A domain change enqueues each registered
// demon at most once; Propagate drains the normal queue first and only runs a
// delayed demon when the normal queue is empty. The first error returned by a
// demon aborts propagation and empties both queues.
package cp

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/gitrdm/gokanroute/internal/logger"
)

// Constraint is a propagator posted on a Solver.
//
// Post registers demons and runs once when the constraint is added.
// InitialPropagate performs the first full filtering pass; it is called by
// Propagate for every constraint whose initial pass has not yet happened on
// the current branch.
type Constraint interface {
	Post(s *Solver)
	InitialPropagate() error
	String() string
}

// DemonPriority orders demons in the propagation queue.
type DemonPriority int

const (
	// NormalPriority demons run as soon as they are dequeued.
	NormalPriority DemonPriority = iota
	// DelayedPriority demons run only once no normal demon is pending.
	DelayedPriority
)

// Demon is a callback attached to variable events.
type Demon struct {
	run      func() error
	priority DemonPriority
	queued   bool
	name     string
}

func (d *Demon) String() string { return d.name }

// trailEntry undoes one state change. Domain changes store the old bounds and
// size of a variable plus an optional removed value; everything else stores a
// restore closure.
type trailEntry struct {
	v       *IntVar
	oldMin  int64
	oldMax  int64
	oldSize uint64
	hole    int64
	hasHole bool
	restore func()
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithClock sets the clock used by search limits.
func WithClock(c Clock) SolverOption {
	return func(s *Solver) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSeed seeds the random source used by randomized operators and
// metaheuristics.
func WithSeed(seed int64) SolverOption {
	return func(s *Solver) { s.rand = rand.New(rand.NewSource(seed)) }
}

// WithLogger replaces the solver logger.
func WithLogger(l zerolog.Logger) SolverOption {
	return func(s *Solver) { s.log = l }
}

// Solver is a single-threaded constraint store with a trail.
type Solver struct {
	name string

	vars        []*IntVar
	constraints []Constraint
	initialized *Rev[int]

	trail []trailEntry

	queue    []*Demon
	head     int
	delayed  []*Demon
	dhead    int
	inDemons bool

	consts       map[int64]*IntVar
	elementCache map[*IntVar][]cachedArrayElement
	indexExprs   map[*IntVar][]cachedIndexExpr

	stats SearchStats
	clock Clock
	rand  *rand.Rand
	log   zerolog.Logger
}

// NewSolver creates an empty Solver.
func NewSolver(name string, opts ...SolverOption) *Solver {
	s := &Solver{
		name:         name,
		consts:       make(map[int64]*IntVar),
		elementCache: make(map[*IntVar][]cachedArrayElement),
		indexExprs:   make(map[*IntVar][]cachedIndexExpr),
		clock:        RealClock(),
		rand:         rand.New(rand.NewSource(1)),
		log:          logger.Component("cp"),
	}
	s.initialized = NewRev(0)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the solver name.
func (s *Solver) Name() string { return s.name }

// Clock returns the clock used by limits.
func (s *Solver) Clock() Clock { return s.clock }

// Rand returns the solver random source.
func (s *Solver) Rand() *rand.Rand { return s.rand }

// Logger returns the solver logger.
func (s *Solver) Logger() *zerolog.Logger { return &s.log }

// Stats returns a copy of the accumulated search statistics.
func (s *Solver) Stats() SearchStats { return s.stats }

// NumVars returns the number of variables created so far.
func (s *Solver) NumVars() int { return len(s.vars) }

// NumConstraints returns the number of posted constraints.
func (s *Solver) NumConstraints() int { return len(s.constraints) }

// NewIntVar creates a variable with domain [min, max].
func (s *Solver) NewIntVar(min, max int64, name string) *IntVar {
	v := newIntVar(s, min, max, name)
	s.vars = append(s.vars, v)
	return v
}

// NewIntVarFromValues creates a variable whose domain is exactly values.
// It panics when values is empty.
func (s *Solver) NewIntVarFromValues(values []int64, name string) *IntVar {
	if len(values) == 0 {
		panic(fmt.Sprintf("cp: NewIntVarFromValues(%q) with no values", name))
	}
	lo, hi := values[0], values[0]
	for _, x := range values[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	v := s.NewIntVar(lo, hi, name)
	if err := v.SetValues(values); err != nil {
		panic(fmt.Sprintf("cp: NewIntVarFromValues(%q): %v", name, err))
	}
	return v
}

// NewBoolVar creates a 0/1 variable.
func (s *Solver) NewBoolVar(name string) *IntVar { return s.NewIntVar(0, 1, name) }

// IntConst returns a bound variable with the given value. Constants are
// shared per value.
func (s *Solver) IntConst(value int64) *IntVar {
	if v, ok := s.consts[value]; ok {
		return v
	}
	v := s.NewIntVar(value, value, fmt.Sprintf("%d", value))
	s.consts[value] = v
	return v
}

// AddConstraint posts c. The initial propagation runs on the next call to
// Propagate.
func (s *Solver) AddConstraint(c Constraint) {
	c.Post(s)
	s.constraints = append(s.constraints, c)
}

// MakeDemon wraps fn as a demon with the given priority.
func (s *Solver) MakeDemon(name string, priority DemonPriority, fn func() error) *Demon {
	return &Demon{run: fn, priority: priority, name: name}
}

func (s *Solver) enqueue(d *Demon) {
	if d.queued {
		return
	}
	d.queued = true
	if d.priority == DelayedPriority {
		s.delayed = append(s.delayed, d)
	} else {
		s.queue = append(s.queue, d)
	}
}

func (s *Solver) enqueueAll(ds []*Demon) {
	for _, d := range ds {
		s.enqueue(d)
	}
}

// Propagate runs pending initial propagations and then every queued demon
// until a fixed point or a failure.
func (s *Solver) Propagate() error {
	if s.inDemons {
		return nil
	}
	s.inDemons = true
	defer func() { s.inDemons = false }()

	for s.initialized.Value() < len(s.constraints) {
		i := s.initialized.Value()
		s.initialized.Set(s, i+1)
		if err := s.constraints[i].InitialPropagate(); err != nil {
			s.clearQueues()
			return err
		}
		if err := s.drain(); err != nil {
			return err
		}
	}
	return s.drain()
}

func (s *Solver) drain() error {
	for {
		var d *Demon
		switch {
		case s.head < len(s.queue):
			d = s.queue[s.head]
			s.head++
		case s.dhead < len(s.delayed):
			d = s.delayed[s.dhead]
			s.dhead++
		default:
			s.queue = s.queue[:0]
			s.head = 0
			s.delayed = s.delayed[:0]
			s.dhead = 0
			return nil
		}
		d.queued = false
		s.stats.Demons++
		if err := d.run(); err != nil {
			s.clearQueues()
			return err
		}
	}
}

func (s *Solver) clearQueues() {
	for _, d := range s.queue[s.head:] {
		d.queued = false
	}
	for _, d := range s.delayed[s.dhead:] {
		d.queued = false
	}
	s.queue = s.queue[:0]
	s.head = 0
	s.delayed = s.delayed[:0]
	s.dhead = 0
}

// checkpoint returns the current trail height.
func (s *Solver) checkpoint() int { return len(s.trail) }

// backtrack undoes every change recorded after mark.
func (s *Solver) backtrack(mark int) {
	for i := len(s.trail) - 1; i >= mark; i-- {
		e := &s.trail[i]
		if e.restore != nil {
			e.restore()
		} else {
			v := e.v
			v.min, v.max, v.size = e.oldMin, e.oldMax, e.oldSize
			if e.hasHole {
				v.bits.Set(uint(e.hole - v.base))
			}
		}
		s.trail[i] = trailEntry{}
	}
	s.trail = s.trail[:mark]
	s.clearQueues()
}

// Checkpoint exposes the trail height so that callers driving their own
// exploration (tests, nested builders) can restore it with Backtrack.
func (s *Solver) Checkpoint() int { return s.checkpoint() }

// Backtrack restores the state recorded at mark.
func (s *Solver) Backtrack(mark int) { s.backtrack(mark) }

func (s *Solver) pushRestore(fn func()) {
	s.trail = append(s.trail, trailEntry{restore: fn})
}

// Fail returns a failure error carrying msg.
func (s *Solver) Fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}

// Rev is a reversible cell: writes are undone when the solver backtracks
// past them.
type Rev[T any] struct {
	value T
}

// NewRev returns a cell holding v.
func NewRev[T any](v T) *Rev[T] { return &Rev[T]{value: v} }

// Value returns the current value.
func (r *Rev[T]) Value() T { return r.value }

// Set writes v and records the previous value on the trail of s.
func (r *Rev[T]) Set(s *Solver, v T) {
	old := r.value
	s.pushRestore(func() { r.value = old })
	r.value = v
}

// RevArray is a fixed-size array of reversible cells sharing one slice.
type RevArray[T any] struct {
	values []T
}

// NewRevArray returns an array of n cells holding init.
func NewRevArray[T any](n int, init T) *RevArray[T] {
	values := make([]T, n)
	for i := range values {
		values[i] = init
	}
	return &RevArray[T]{values: values}
}

// Len returns the number of cells.
func (a *RevArray[T]) Len() int { return len(a.values) }

// Value returns cell i.
func (a *RevArray[T]) Value(i int) T { return a.values[i] }

// Set writes cell i.
func (a *RevArray[T]) Set(s *Solver, i int, v T) {
	old := a.values[i]
	values := a.values
	s.pushRestore(func() { values[i] = old })
	values[i] = v
}
