package cp

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type cachedArrayElement struct {
	values []int64
	expr   IntExpr
}

type cachedIndexExpr struct {
	vars  []*IntVar
	value int64
	v     *IntVar
}

func isArrayConstant(values []int64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func isArrayBoolean(values []int64) bool {
	for _, v := range values {
		if v != 0 && v != 1 {
			return false
		}
	}
	return true
}

func isIncreasing(values []int64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

func isDecreasing(values []int64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			return false
		}
	}
	return true
}

// Element returns the expression values[index]. The index is restricted to
// [0, len(values)-1]. Degenerate arrays (constant, boolean, monotone) get a
// specialised representation, and the result is shared between calls with
// the same index and values.
//
// Element panics on an empty array.
func (s *Solver) Element(values []int64, index *IntVar) IntExpr {
	if len(values) == 0 {
		panic("cp: Element over an empty array")
	}
	for _, c := range s.elementCache[index] {
		if slices.Equal(c.values, values) {
			return c.expr
		}
	}
	values = slices.Clone(values)
	e := s.makeElement(values, index)
	s.elementCache[index] = append(s.elementCache[index], cachedArrayElement{values: values, expr: e})
	return e
}

func (s *Solver) makeElement(values []int64, index *IntVar) IntExpr {
	n := int64(len(values))
	if isArrayConstant(values) {
		s.AddConstraint(s.Between(index, 0, n-1))
		return s.IntConst(values[0])
	}
	if isArrayBoolean(values) {
		s.AddConstraint(s.Between(index, 0, n-1))
		var ones []int64
		firstZero := int64(-1)
		for i, v := range values {
			if v == 1 {
				ones = append(ones, int64(i))
			} else if firstZero < 0 {
				firstZero = int64(i)
			}
		}
		switch {
		case len(ones) == 1:
			return s.IsEqualCst(index, ones[0])
		case int64(len(ones)) == n-1:
			return s.IsDifferentCst(index, firstZero)
		case ones[len(ones)-1]-ones[0]+1 == int64(len(ones)):
			return s.IsBetween(index, ones[0], ones[len(ones)-1])
		default:
			return s.IsMember(index, ones)
		}
	}
	name := fmt.Sprintf("Element(%s)", index.name)
	value := func(i int64) int64 { return values[i] }
	if isIncreasing(values) {
		return newIncreasingElementExpr(s, index, value, 0, n-1, name)
	}
	if isDecreasing(values) {
		negated := func(i int64) int64 { return capNeg(values[i]) }
		return s.Opposite(newIncreasingElementExpr(s, index, negated, 0, n-1, name))
	}
	return newElementExpr(s, index, value, 0, n-1, name)
}

// ElementFunc returns the expression fn(index) for a pure evaluator. The
// index range is not clamped, so fn must accept every value of the index
// domain. Results are not cached because functions are not comparable.
func (s *Solver) ElementFunc(fn func(int64) int64, index *IntVar) IntExpr {
	return newElementExpr(s, index, fn, index.Min(), index.Max(), fmt.Sprintf("ElementFunc(%s)", index.name))
}

// MonotonicElement returns fn(index) for an evaluator that is
// non-decreasing (increasing == true) or non-increasing over the index
// domain.
func (s *Solver) MonotonicElement(fn func(int64) int64, increasing bool, index *IntVar) IntExpr {
	name := fmt.Sprintf("MonotonicElement(%s)", index.name)
	if increasing {
		return newIncreasingElementExpr(s, index, fn, index.Min(), index.Max(), name)
	}
	negated := func(i int64) int64 { return capNeg(fn(i)) }
	return s.Opposite(newIncreasingElementExpr(s, index, negated, index.Min(), index.Max(), name))
}

// Element2D returns fn(first, second).
func (s *Solver) Element2D(fn func(a, b int64) int64, first, second *IntVar) IntExpr {
	return newElement2DExpr(s, first, second, fn, fmt.Sprintf("Element2D(%s, %s)", first.name, second.name))
}

// ElementVars returns the expression vars[index]. When every variable is
// bound this is the constant array element; otherwise a new variable tied
// by ArrayElement.
func (s *Solver) ElementVars(vars []*IntVar, index *IntVar) IntExpr {
	if len(vars) == 0 {
		panic("cp: ElementVars over an empty array")
	}
	values := make([]int64, len(vars))
	allBound := true
	for i, v := range vars {
		if !v.Bound() {
			allBound = false
			break
		}
		values[i] = v.Value()
	}
	if allBound {
		return s.Element(values, index)
	}
	lo, hi := int64(0), int64(0)
	first := true
	n := int64(len(vars))
	index.Iterate(func(i int64) {
		if i < 0 || i >= n {
			return
		}
		if first || vars[i].Min() < lo {
			lo = vars[i].Min()
		}
		if first || vars[i].Max() > hi {
			hi = vars[i].Max()
		}
		first = false
	})
	if first {
		lo, hi = vars[0].Min(), vars[0].Max()
	}
	target := s.NewIntVar(lo, hi, fmt.Sprintf("ElementVars(%s)", index.name))
	s.AddConstraint(s.ArrayElement(vars, index, target))
	return target
}

// IndexExpression returns a variable equal to the position of value in
// vars. Results are shared per (vars, value).
func (s *Solver) IndexExpression(vars []*IntVar, value int64) *IntVar {
	key := vars[0]
	for _, c := range s.indexExprs[key] {
		if c.value == value && slices.Equal(c.vars, vars) {
			return c.v
		}
	}
	v := s.NewIntVar(0, int64(len(vars))-1, fmt.Sprintf("IndexOf(%d)", value))
	s.AddConstraint(s.ArrayPosition(vars, v, value))
	s.indexExprs[key] = append(s.indexExprs[key], cachedIndexExpr{vars: slices.Clone(vars), value: value, v: v})
	return v
}
