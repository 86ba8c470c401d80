package cp

import (
	"fmt"
	"math"
	"strings"
)

// IntVarElement is the stored range of one variable in an Assignment.
// A deactivated element is skipped by Restore; in a local search delta it
// marks the variable as free.
type IntVarElement struct {
	Var       *IntVar
	Min, Max  int64
	Activated bool
}

// Bound reports whether the stored range is a single value.
func (e *IntVarElement) Bound() bool { return e.Min == e.Max }

// Value returns the stored value (the lower bound of the range).
func (e *IntVarElement) Value() int64 { return e.Min }

// SetValue stores a single value.
func (e *IntVarElement) SetValue(v int64) { e.Min, e.Max = v, v }

// Assignment is an ordered mapping from variables to ranges with an optional
// objective. It is used to store solutions, to describe local search deltas
// and to pre-assign variables.
type Assignment struct {
	s         *Solver
	elements  []IntVarElement
	index     map[*IntVar]int
	objective *IntVarElement
}

// NewAssignment returns an empty assignment on s.
func (s *Solver) NewAssignment() *Assignment {
	return &Assignment{s: s, index: make(map[*IntVar]int)}
}

// Solver returns the owning solver.
func (a *Assignment) Solver() *Solver { return a.s }

// Add adds vars with their current domain bounds. Variables already present
// are left unchanged.
func (a *Assignment) Add(vars ...*IntVar) {
	for _, v := range vars {
		if _, ok := a.index[v]; ok {
			continue
		}
		a.index[v] = len(a.elements)
		a.elements = append(a.elements, IntVarElement{Var: v, Min: v.Min(), Max: v.Max(), Activated: true})
	}
}

// Contains reports whether v is part of the assignment.
func (a *Assignment) Contains(v *IntVar) bool {
	_, ok := a.index[v]
	return ok
}

// Element returns the element of v or nil.
func (a *Assignment) Element(v *IntVar) *IntVarElement {
	i, ok := a.index[v]
	if !ok {
		return nil
	}
	return &a.elements[i]
}

// Elements returns the elements in insertion order. The slice is shared.
func (a *Assignment) Elements() []IntVarElement { return a.elements }

// Size returns the number of variables.
func (a *Assignment) Size() int { return len(a.elements) }

// Empty reports whether the assignment holds no variable.
func (a *Assignment) Empty() bool { return len(a.elements) == 0 }

func (a *Assignment) mustElement(v *IntVar) *IntVarElement {
	e := a.Element(v)
	if e == nil {
		panic(fmt.Sprintf("cp: variable %s is not in the assignment", v.name))
	}
	return e
}

// Value returns the stored value of v. It panics if v is absent.
func (a *Assignment) Value(v *IntVar) int64 { return a.mustElement(v).Min }

// Min returns the stored lower bound of v.
func (a *Assignment) Min(v *IntVar) int64 { return a.mustElement(v).Min }

// Max returns the stored upper bound of v.
func (a *Assignment) Max(v *IntVar) int64 { return a.mustElement(v).Max }

// Bound reports whether v is stored with a single value.
func (a *Assignment) Bound(v *IntVar) bool { return a.mustElement(v).Bound() }

// SetValue stores value for v, adding v when needed.
func (a *Assignment) SetValue(v *IntVar, value int64) {
	a.SetRange(v, value, value)
}

// SetRange stores [lo, hi] for v, adding v when needed.
func (a *Assignment) SetRange(v *IntVar, lo, hi int64) {
	a.Add(v)
	e := a.Element(v)
	e.Min, e.Max = lo, hi
}

// Activate marks v as active.
func (a *Assignment) Activate(v *IntVar) { a.mustElement(v).Activated = true }

// Deactivate marks v as inactive.
func (a *Assignment) Deactivate(v *IntVar) { a.mustElement(v).Activated = false }

// Activated reports whether v is active.
func (a *Assignment) Activated(v *IntVar) bool { return a.mustElement(v).Activated }

// AddObjective sets the objective variable.
func (a *Assignment) AddObjective(v *IntVar) {
	a.objective = &IntVarElement{Var: v, Min: v.Min(), Max: v.Max(), Activated: true}
}

// Objective returns the objective variable or nil.
func (a *Assignment) Objective() *IntVar {
	if a.objective == nil {
		return nil
	}
	return a.objective.Var
}

// HasObjective reports whether an objective is attached.
func (a *Assignment) HasObjective() bool { return a.objective != nil }

// ObjectiveValue returns the stored objective lower bound, or MaxInt64 when
// there is no objective.
func (a *Assignment) ObjectiveValue() int64 {
	if a.objective == nil {
		return math.MaxInt64
	}
	return a.objective.Min
}

// SetObjectiveValue stores the objective value.
func (a *Assignment) SetObjectiveValue(v int64) {
	if a.objective != nil {
		a.objective.Min, a.objective.Max = v, v
	}
}

// Clear removes every variable and the objective.
func (a *Assignment) Clear() {
	a.elements = a.elements[:0]
	for k := range a.index {
		delete(a.index, k)
	}
	a.objective = nil
}

// Store records the current domain bounds of every variable and the
// objective.
func (a *Assignment) Store() {
	for i := range a.elements {
		e := &a.elements[i]
		e.Min, e.Max = e.Var.Min(), e.Var.Max()
	}
	if a.objective != nil {
		a.objective.Min, a.objective.Max = a.objective.Var.Min(), a.objective.Var.Max()
	}
}

// Restore applies the stored range of every active element to the solver.
// The objective is not restored.
func (a *Assignment) Restore() error {
	for i := range a.elements {
		e := &a.elements[i]
		if !e.Activated {
			continue
		}
		if err := e.Var.SetRange(e.Min, e.Max); err != nil {
			return err
		}
	}
	return nil
}

// Copy replaces the content of a with a copy of other.
func (a *Assignment) Copy(other *Assignment) {
	a.Clear()
	a.elements = append(a.elements, other.elements...)
	for v, i := range other.index {
		a.index[v] = i
	}
	if other.objective != nil {
		obj := *other.objective
		a.objective = &obj
	}
}

// Clone returns a copy of a.
func (a *Assignment) Clone() *Assignment {
	c := a.s.NewAssignment()
	c.Copy(a)
	return c
}

func (a *Assignment) String() string {
	var b strings.Builder
	b.WriteString("Assignment(")
	for i, e := range a.elements {
		if i > 0 {
			b.WriteString(", ")
		}
		switch {
		case !e.Activated:
			fmt.Fprintf(&b, "%s (inactive)", e.Var.name)
		case e.Bound():
			fmt.Fprintf(&b, "%s = %d", e.Var.name, e.Min)
		default:
			fmt.Fprintf(&b, "%s in [%d, %d]", e.Var.name, e.Min, e.Max)
		}
	}
	if a.objective != nil {
		fmt.Fprintf(&b, "; objective = %d", a.objective.Min)
	}
	b.WriteString(")")
	return b.String()
}
