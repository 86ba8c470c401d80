// Package cp: local search
//
// RunLocalSearch improves a solution by repeatedly moving to a neighbor.
// A neighbor is described by a delta: an Assignment holding only the
// variables that change. Deactivated elements of a delta are released and
// recomputed by the finalizer, which is how large neighborhood moves are
// expressed.
//
// For each delta the driver
//  1. asks the metaheuristic whether the delta may be explored at all,
//  2. runs the filters, which accept or reject it without propagation,
//  3. applies the delta over the current solution, propagates and completes
//     the free variables with the finalizer under the LNS limit,
//  4. lets the metaheuristic accept the completed neighbor as the new
//     current solution.
//
// When the operator has no neighbor left the metaheuristic decides whether
// the search stops (greedy descent) or continues from the current solution
// (escape strategies).
package cp

import (
	"context"
	"errors"

	"github.com/bits-and-blooms/bitset"
)

// LocalSearchOperator enumerates neighbors of the solution it was started
// from.
type LocalSearchOperator interface {
	// Start resets the operator on a new current solution.
	Start(a *Assignment)
	// MakeNextNeighbor writes the next neighbor into delta and returns false
	// when the neighborhood is exhausted.
	MakeNextNeighbor(delta *Assignment) bool
}

// LocalSearchFilter cheaply rejects deltas.
type LocalSearchFilter interface {
	// Accept reports whether delta, applied to the synchronized solution,
	// may be feasible and improving.
	Accept(delta *Assignment) bool
	// Synchronize records a new current solution.
	Synchronize(a *Assignment)
}

// ---------------------------------------------------------------------------
// VarOperator

// VarOperator is the common state of operators over a fixed array of
// variables: the values of the current solution and the candidate values of
// the neighbor being built.
type VarOperator struct {
	vars         []*IntVar
	values       []int64
	oldValues    []int64
	activated    *bitset.BitSet
	wasActivated *bitset.BitSet
	changed      []int
	isChanged    *bitset.BitSet
}

// NewVarOperator returns an operator state over vars.
func NewVarOperator(vars []*IntVar) *VarOperator {
	o := &VarOperator{}
	o.initVars(vars)
	return o
}

func (o *VarOperator) initVars(vars []*IntVar) {
	n := len(vars)
	o.vars = vars
	o.values = make([]int64, n)
	o.oldValues = make([]int64, n)
	o.activated = bitset.New(uint(n))
	o.wasActivated = bitset.New(uint(n))
	o.isChanged = bitset.New(uint(n))
	o.changed = o.changed[:0]
}

// Size returns the number of variables.
func (o *VarOperator) Size() int { return len(o.vars) }

// Var returns variable i.
func (o *VarOperator) Var(i int) *IntVar { return o.vars[i] }

// Start loads the values of a. Variables missing from a keep their current
// domain minimum.
func (o *VarOperator) Start(a *Assignment) {
	for i, v := range o.vars {
		value, active := v.Min(), true
		if e := a.Element(v); e != nil {
			value, active = e.Value(), e.Activated
		}
		o.values[i], o.oldValues[i] = value, value
		o.activated.SetTo(uint(i), active)
		o.wasActivated.SetTo(uint(i), active)
	}
	o.clearChanges()
}

func (o *VarOperator) clearChanges() {
	for _, i := range o.changed {
		o.isChanged.Clear(uint(i))
	}
	o.changed = o.changed[:0]
}

func (o *VarOperator) markChange(i int) {
	if !o.isChanged.Test(uint(i)) {
		o.isChanged.Set(uint(i))
		o.changed = append(o.changed, i)
	}
}

// Value returns the candidate value of variable i.
func (o *VarOperator) Value(i int) int64 { return o.values[i] }

// OldValue returns the value of variable i in the current solution.
func (o *VarOperator) OldValue(i int) int64 { return o.oldValues[i] }

// SetValue sets the candidate value of variable i.
func (o *VarOperator) SetValue(i int, v int64) {
	o.values[i] = v
	o.markChange(i)
}

// Activated reports whether variable i is active in the candidate.
func (o *VarOperator) Activated(i int) bool { return o.activated.Test(uint(i)) }

// Activate marks variable i as assigned in the candidate.
func (o *VarOperator) Activate(i int) {
	o.activated.Set(uint(i))
	o.markChange(i)
}

// Deactivate releases variable i in the candidate.
func (o *VarOperator) Deactivate(i int) {
	o.activated.Clear(uint(i))
	o.markChange(i)
}

// RevertChanges drops the candidate and returns to the current solution.
func (o *VarOperator) RevertChanges() {
	for _, i := range o.changed {
		o.values[i] = o.oldValues[i]
		o.activated.SetTo(uint(i), o.wasActivated.Test(uint(i)))
	}
	o.clearChanges()
}

// ApplyChanges writes the candidate into delta and reports whether it
// differs from the current solution.
func (o *VarOperator) ApplyChanges(delta *Assignment) bool {
	written := false
	for _, i := range o.changed {
		v := o.vars[i]
		active := o.activated.Test(uint(i))
		if active == o.wasActivated.Test(uint(i)) && (!active || o.values[i] == o.oldValues[i]) {
			continue
		}
		if active {
			delta.SetValue(v, o.values[i])
			delta.Activate(v)
		} else {
			delta.Add(v)
			delta.Deactivate(v)
		}
		written = true
	}
	return written
}

// ---------------------------------------------------------------------------
// Combinators

type concatenateOperators struct {
	ops   []LocalSearchOperator
	index int
}

// ConcatenateOperators explores each operator's neighborhood in turn.
// After a move is accepted the next Start resumes from the first operator.
func ConcatenateOperators(ops ...LocalSearchOperator) LocalSearchOperator {
	return &concatenateOperators{ops: ops}
}

func (c *concatenateOperators) Start(a *Assignment) {
	c.index = 0
	for _, op := range c.ops {
		op.Start(a)
	}
}

func (c *concatenateOperators) MakeNextNeighbor(delta *Assignment) bool {
	for c.index < len(c.ops) {
		if c.ops[c.index].MakeNextNeighbor(delta) {
			return true
		}
		delta.Clear()
		c.index++
	}
	return false
}

// ---------------------------------------------------------------------------
// Driver

// LocalSearchPhase configures RunLocalSearch.
type LocalSearchPhase struct {
	// Vars are the decision variables of the solution. Variables absent from
	// a delta keep their value in the current solution.
	Vars []*IntVar
	// FirstSolution builds the initial solution when Initial is nil.
	FirstSolution DecisionBuilder
	// Initial is completed with Finalizer to obtain the first solution.
	Initial  *Assignment
	Operator LocalSearchOperator
	// Finalizer binds variables left free by a delta.
	Finalizer DecisionBuilder
	Filters   []LocalSearchFilter
	// Limit bounds the whole local search (first solution included).
	Limit *SearchLimit
	// NeighborLimit bounds the completion of each neighbor.
	NeighborLimit *SearchLimit
}

func (p *LocalSearchPhase) monitorsFor(nested bool) []SearchMonitor {
	var ms []SearchMonitor
	if p.Limit != nil {
		ms = append(ms, nodeCheck{l: p.Limit})
	}
	if nested && p.NeighborLimit != nil {
		ms = append(ms, p.NeighborLimit)
	}
	return ms
}

// RunLocalSearch builds a first solution and improves it with phase.Operator
// guided by mh (greedy descent when nil). Every accepted solution is
// reported to the collectors while the solver holds it. The solver state is
// restored on return.
//
// The boolean result reports whether at least one solution was found. The
// error is ErrSearchLimitReached when phase.Limit stopped the search.
func (s *Solver) RunLocalSearch(ctx context.Context, phase *LocalSearchPhase, objective *IntVar, mh Metaheuristic, collectors ...SearchMonitor) (bool, error) {
	entry := s.checkpoint()
	defer s.backtrack(entry)
	start := s.clock.Now()
	defer func() { s.stats.WallTime += s.clock.Now().Sub(start) }()

	if mh == nil {
		mh = s.GreedyDescent(objective, 1)
	}
	finalizer := phase.Finalizer
	if finalizer == nil {
		finalizer = DecisionBuilderFunc(func(*Solver) (Decision, error) { return nil, nil })
	}
	if phase.Limit != nil {
		phase.Limit.Init()
	}
	all := append([]SearchMonitor{mh}, collectors...)
	for _, m := range all {
		m.EnterSearch(s)
	}
	defer func() {
		for _, m := range all {
			m.ExitSearch(s)
		}
	}()

	if err := s.Propagate(); err != nil {
		if IsFailure(err) {
			return false, nil
		}
		return false, err
	}

	current := s.NewAssignment()
	current.Add(phase.Vars...)
	if objective != nil {
		current.AddObjective(objective)
	}

	mark := s.checkpoint()
	first := phase.FirstSolution
	switch {
	case phase.Initial != nil:
		first = Compose(s.RestoreAssignment(phase.Initial), finalizer)
	case first == nil:
		first = finalizer
	}
	found, err := s.SolveAndCommit(ctx, first, phase.monitorsFor(false)...)
	if !found {
		return false, err
	}
	s.stats.Solutions++
	s.acceptCurrent(current, all, phase.Limit)
	s.backtrack(mark)

	restart := func() {
		phase.Operator.Start(current)
		for _, f := range phase.Filters {
			f.Synchronize(current)
		}
	}
	restart()
	delta := s.NewAssignment()
	for {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if phase.Limit != nil && phase.Limit.Check() {
			return true, ErrSearchLimitReached
		}
		delta.Clear()
		if !phase.Operator.MakeNextNeighbor(delta) {
			if !mh.LocalOptimum(s) {
				return true, nil
			}
			restart()
			continue
		}
		s.stats.Neighbors++
		if !mh.AcceptDelta(delta, current) {
			continue
		}
		if !acceptFilters(phase.Filters, delta) {
			s.stats.FilteredNeighbors++
			continue
		}
		ok, err := s.completeNeighbor(ctx, phase, finalizer, current, delta, mh)
		if err != nil && !errors.Is(err, ErrSearchLimitReached) {
			s.backtrack(mark)
			return true, err
		}
		if ok && mh.AcceptNeighbor(s) && acceptAll(s, collectors) {
			s.stats.AcceptedNeighbors++
			s.stats.Solutions++
			s.acceptCurrent(current, all, phase.Limit)
			s.backtrack(mark)
			restart()
			continue
		}
		s.backtrack(mark)
	}
}

func acceptFilters(filters []LocalSearchFilter, delta *Assignment) bool {
	for _, f := range filters {
		if !f.Accept(delta) {
			return false
		}
	}
	return true
}

func acceptAll(s *Solver, monitors []SearchMonitor) bool {
	for _, m := range monitors {
		if !m.AcceptSolution(s) {
			return false
		}
	}
	return true
}

// acceptCurrent stores the solver state as the current solution and reports
// it.
func (s *Solver) acceptCurrent(current *Assignment, monitors []SearchMonitor, limit *SearchLimit) {
	current.Store()
	for _, m := range monitors {
		m.AtSolution(s)
	}
	if limit != nil {
		limit.AtSolution(s)
	}
}

// completeNeighbor applies delta over current and runs the finalizer. On
// success the solver is left in the neighbor state.
func (s *Solver) completeNeighbor(ctx context.Context, phase *LocalSearchPhase, finalizer DecisionBuilder, current, delta *Assignment, mh Metaheuristic) (bool, error) {
	for _, e := range current.Elements() {
		d := delta.Element(e.Var)
		var err error
		switch {
		case d == nil:
			if e.Activated {
				err = e.Var.SetRange(e.Min, e.Max)
			}
		case d.Activated:
			err = e.Var.SetRange(d.Min, d.Max)
		}
		if err != nil {
			if IsFailure(err) {
				return false, nil
			}
			return false, err
		}
	}
	if err := s.Propagate(); err != nil {
		if IsFailure(err) {
			return false, nil
		}
		return false, err
	}
	if err := mh.ApplyBound(s); err != nil {
		if IsFailure(err) {
			return false, nil
		}
		return false, err
	}
	return s.SolveAndCommit(ctx, finalizer, phase.monitorsFor(true)...)
}
