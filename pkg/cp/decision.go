// Package cp: decisions and decision builders
//
// A DecisionBuilder returns the next Decision at a search node, or nil when
// the node is a leaf. A Decision has two branches: Apply (left) and Refute
// (right). Builders may also modify domains directly in Next; the search
// propagates after each call.
package cp

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Decision is a binary choice point.
type Decision interface {
	Apply(s *Solver) error
	Refute(s *Solver) error
	String() string
}

// DecisionBuilder produces decisions. A nil Decision with a nil error means
// that the current node is a leaf.
type DecisionBuilder interface {
	Next(s *Solver) (Decision, error)
}

// DecisionBuilderFunc adapts a function to DecisionBuilder.
type DecisionBuilderFunc func(s *Solver) (Decision, error)

// Next calls f.
func (f DecisionBuilderFunc) Next(s *Solver) (Decision, error) { return f(s) }

type assignDecision struct {
	v     *IntVar
	value int64
}

// AssignValue returns the decision v == value, refuted by v != value.
func AssignValue(v *IntVar, value int64) Decision { return &assignDecision{v: v, value: value} }

func (d *assignDecision) Apply(*Solver) error  { return d.v.SetValue(d.value) }
func (d *assignDecision) Refute(*Solver) error { return d.v.RemoveValue(d.value) }
func (d *assignDecision) String() string       { return fmt.Sprintf("%s == %d", d.v.name, d.value) }

// ---------------------------------------------------------------------------
// Combinators

type composeBuilder struct {
	dbs    []DecisionBuilder
	cursor *Rev[int]
}

// Compose runs the builders one after the other: a builder is asked for
// decisions until it reports a leaf, then the next one takes over.
func Compose(dbs ...DecisionBuilder) DecisionBuilder {
	return &composeBuilder{dbs: dbs, cursor: NewRev(0)}
}

func (c *composeBuilder) Next(s *Solver) (Decision, error) {
	for i := c.cursor.Value(); i < len(c.dbs); i++ {
		d, err := c.dbs[i].Next(s)
		if err != nil {
			return nil, err
		}
		if d != nil {
			if i != c.cursor.Value() {
				c.cursor.Set(s, i)
			}
			return d, nil
		}
		if err := s.Propagate(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

type tryBuilder struct {
	first, second DecisionBuilder
	started       *Rev[bool]
	branch        *Rev[int]
}

type tryDecision struct{ t *tryBuilder }

func (d tryDecision) Apply(s *Solver) error  { d.t.branch.Set(s, 0); return nil }
func (d tryDecision) Refute(s *Solver) error { d.t.branch.Set(s, 1); return nil }
func (d tryDecision) String() string         { return "Try" }

// Try explores the builders as alternatives: the search first runs dbs[0]
// and only falls back to the next one when the previous subtree has no
// accepted solution.
func Try(dbs ...DecisionBuilder) DecisionBuilder {
	switch len(dbs) {
	case 0:
		return DecisionBuilderFunc(func(*Solver) (Decision, error) { return nil, nil })
	case 1:
		return dbs[0]
	}
	return &tryBuilder{first: dbs[0], second: Try(dbs[1:]...), started: NewRev(false), branch: NewRev(0)}
}

func (t *tryBuilder) Next(s *Solver) (Decision, error) {
	if !t.started.Value() {
		t.started.Set(s, true)
		return tryDecision{t: t}, nil
	}
	if t.branch.Value() == 0 {
		return t.first.Next(s)
	}
	return t.second.Next(s)
}

type leftDive struct{ db DecisionBuilder }

type leftOnly struct{ Decision }

func (d leftOnly) Refute(s *Solver) error { return s.Fail("left dive: %s not refuted", d.Decision) }

// LeftDive wraps db so that only left branches are explored.
func LeftDive(db DecisionBuilder) DecisionBuilder { return leftDive{db: db} }

func (l leftDive) Next(s *Solver) (Decision, error) {
	d, err := l.db.Next(s)
	if d == nil || err != nil {
		return d, err
	}
	return leftOnly{Decision: d}, nil
}

// ---------------------------------------------------------------------------
// Variable and value selection

// VarStrategy selects the next variable of a phase.
type VarStrategy int

const (
	// ChooseFirstUnbound takes the first unbound variable in order.
	ChooseFirstUnbound VarStrategy = iota
	// ChooseMinSize takes the unbound variable with the smallest domain.
	ChooseMinSize
	// ChoosePath treats the variables as successors and extends the current
	// path: it follows bound successors from the last chosen variable,
	// otherwise starts at a variable that no other variable can reach.
	ChoosePath
)

// ValueStrategy selects the value of the chosen variable.
type ValueStrategy int

const (
	AssignMinValue ValueStrategy = iota
	AssignMaxValue
)

type varSelector func(s *Solver) (int, bool)

func (s *Solver) makeVarSelector(vars []*IntVar, strategy VarStrategy) varSelector {
	switch strategy {
	case ChooseMinSize:
		return func(*Solver) (int, bool) {
			best, found := -1, false
			for i, v := range vars {
				if !v.Bound() && (!found || v.Size() < vars[best].Size()) {
					best, found = i, true
				}
			}
			return best, found
		}
	case ChoosePath:
		return newPathSelector(vars)
	default:
		return func(*Solver) (int, bool) {
			for i, v := range vars {
				if !v.Bound() {
					return i, true
				}
			}
			return -1, false
		}
	}
}

// newPathSelector returns a selector that keeps extending the current path.
// The last position is kept in a reversible cell.
func newPathSelector(vars []*IntVar) varSelector {
	size := int64(len(vars))
	first := NewRev[int64](math.MaxInt64)
	findStart := func() (int64, bool) {
		// Extend an existing path.
		for i := size - 1; i >= 0; i-- {
			if vars[i].Bound() {
				next := vars[i].Value()
				if next >= 0 && next < size && !vars[next].Bound() {
					return next, true
				}
			}
		}
		// Start a path at a node nothing can reach.
		for i := size - 1; i >= 0; i-- {
			if vars[i].Bound() {
				continue
			}
			hasPrev := false
			for _, v := range vars {
				if v.Contains(i) {
					hasPrev = true
					break
				}
			}
			if !hasPrev {
				return i, true
			}
		}
		for i := int64(0); i < size; i++ {
			if !vars[i].Bound() {
				return i, true
			}
		}
		return 0, false
	}
	update := func(index int64) (int64, bool) {
		if index < 0 || index >= size {
			return findStart()
		}
		return index, true
	}
	return func(s *Solver) (int, bool) {
		index, ok := update(first.Value())
		if !ok {
			return -1, false
		}
		for count := int64(0); vars[index].Bound(); count++ {
			if count >= size {
				return -1, false
			}
			next := vars[index].Value()
			if next == index {
				next = -1
			}
			if index, ok = update(next); !ok {
				return -1, false
			}
		}
		if first.Value() != index {
			first.Set(s, index)
		}
		return int(index), true
	}
}

type phase struct {
	vars      []*IntVar
	selectVar varSelector
	selectVal func(i int) int64
	name      string
}

func (p *phase) Next(s *Solver) (Decision, error) {
	i, ok := p.selectVar(s)
	if !ok {
		return nil, nil
	}
	return AssignValue(p.vars[i], p.selectVal(i)), nil
}

// Phase returns a builder assigning vars with the given strategies.
func (s *Solver) Phase(vars []*IntVar, varStrategy VarStrategy, valStrategy ValueStrategy) DecisionBuilder {
	p := &phase{vars: vars, selectVar: s.makeVarSelector(vars, varStrategy), name: "Phase"}
	if valStrategy == AssignMaxValue {
		p.selectVal = func(i int) int64 { return vars[i].Max() }
	} else {
		p.selectVal = func(i int) int64 { return vars[i].Min() }
	}
	return p
}

// EvaluatorPhase returns a builder that picks a variable with varStrategy
// and assigns it the value j minimising eval(i, j), where i is the position
// of the variable. Ties go to the smallest value.
func (s *Solver) EvaluatorPhase(vars []*IntVar, varStrategy VarStrategy, eval func(i, j int64) int64) DecisionBuilder {
	p := &phase{vars: vars, selectVar: s.makeVarSelector(vars, varStrategy), name: "EvaluatorPhase"}
	p.selectVal = func(i int) int64 {
		best, bestCost := vars[i].Min(), int64(math.MaxInt64)
		first := true
		vars[i].Iterate(func(j int64) {
			c := eval(int64(i), j)
			if first || c < bestCost {
				best, bestCost, first = j, c, false
			}
		})
		return best
	}
	return p
}

type globalBestPhase struct {
	vars     []*IntVar
	eval     func(i, j int64) int64
	elements []globalBestElement
	built    bool
	cursor   *Rev[int]
}

type globalBestElement struct {
	v, value, cost int64
}

// GlobalBestPhase returns a builder that ranks every (variable, value) pair
// by eval once and then repeatedly assigns the best pair still feasible.
func (s *Solver) GlobalBestPhase(vars []*IntVar, eval func(i, j int64) int64) DecisionBuilder {
	return &globalBestPhase{vars: vars, eval: eval, cursor: NewRev(0)}
}

func (p *globalBestPhase) build() {
	for i, v := range p.vars {
		v.Iterate(func(j int64) {
			p.elements = append(p.elements, globalBestElement{v: int64(i), value: j, cost: p.eval(int64(i), j)})
		})
	}
	slices.SortStableFunc(p.elements, func(a, b globalBestElement) bool {
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		if a.v != b.v {
			return a.v < b.v
		}
		return a.value < b.value
	})
	p.built = true
}

func (p *globalBestPhase) Next(s *Solver) (Decision, error) {
	if !p.built {
		p.build()
	}
	for k := p.cursor.Value(); k < len(p.elements); k++ {
		e := p.elements[k]
		v := p.vars[e.v]
		if v.Bound() || !v.Contains(e.value) {
			continue
		}
		if k != p.cursor.Value() {
			p.cursor.Set(s, k)
		}
		return AssignValue(v, e.value), nil
	}
	return nil, nil
}

// RestoreAssignment returns a builder that applies a to the solver and then
// reports a leaf.
func (s *Solver) RestoreAssignment(a *Assignment) DecisionBuilder {
	return DecisionBuilderFunc(func(s *Solver) (Decision, error) {
		return nil, a.Restore()
	})
}
