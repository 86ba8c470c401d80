// Package cp: element expressions
//
// An element expression is the value V(index) of an array or a pure
// evaluator at an integer variable. Its bounds are the min and max of V over
// the index domain; tightening them prunes the index.
//
// Three engines are provided:
//   - general: min and max are computed lazily together with a witness index
//     for each (the supports) and kept in a reversible cell. A rescan happens
//     only when a support has left the index domain, so bound queries are
//     O(1) in the common case.
//   - increasing: for non-decreasing V the bounds are read at the index
//     bounds and pruning walks inward from them. A decreasing V is handled by
//     negating it and wrapping the increasing engine in an opposite view.
//   - two-dimensional: V(index1, index2), supports cached over the cross
//     product of both domains.
//
// Array based engines clamp the index range to the array positions. Walks
// over the index skip holes, so the evaluator is never called on a value
// that is not in the domain.
package cp

import (
	"fmt"
	"math"
)

// elementSupport holds the cached bounds of an element expression and one
// index attaining each.
type elementSupport struct {
	min, minSupport int64
	max, maxSupport int64
}

// firstIndex returns the smallest domain value of v in [from, to] that
// satisfies pred.
func firstIndex(v *IntVar, from, to int64, pred func(int64) bool) (int64, bool) {
	for x, ok := v.NextValue(from); ok && x <= to; x, ok = v.NextValue(x + 1) {
		if pred(x) {
			return x, true
		}
		if x == math.MaxInt64 {
			break
		}
	}
	return 0, false
}

// lastIndex returns the largest domain value of v in [from, to] that
// satisfies pred.
func lastIndex(v *IntVar, from, to int64, pred func(int64) bool) (int64, bool) {
	for x, ok := v.PrevValue(to); ok && x >= from; x, ok = v.PrevValue(x - 1) {
		if pred(x) {
			return x, true
		}
		if x == math.MinInt64 {
			break
		}
	}
	return 0, false
}

// eachIndex calls f on every domain value of v in [from, to]. The contiguous
// case avoids the bitset lookups.
func eachIndex(v *IntVar, from, to int64, f func(int64)) {
	if from > to {
		return
	}
	if v.Size() == span(v.Min(), v.Max()) {
		for x := from; ; x++ {
			f(x)
			if x == to {
				return
			}
		}
	}
	for x, ok := v.NextValue(from); ok && x <= to; x, ok = v.NextValue(x + 1) {
		f(x)
		if x == to {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// General engine

type elementExpr struct {
	s           *Solver
	index       *IntVar
	value       func(int64) int64
	lo, hi      int64
	support     *Rev[elementSupport]
	initialized *Rev[bool]
	cast        *IntVar
	name        string
}

func newElementExpr(s *Solver, index *IntVar, value func(int64) int64, lo, hi int64, name string) *elementExpr {
	return &elementExpr{
		s: s, index: index, value: value, lo: lo, hi: hi,
		support:     NewRev(elementSupport{}),
		initialized: NewRev(false),
		name:        name,
	}
}

func (e *elementExpr) clamped() (int64, int64) {
	return max(e.lo, e.index.Min()), min(e.hi, e.index.Max())
}

// updateSupports refreshes the cache when needed. It returns false when no
// admissible index is left.
func (e *elementExpr) updateSupports() bool {
	sup := e.support.Value()
	if e.initialized.Value() && e.index.Contains(sup.minSupport) && e.index.Contains(sup.maxSupport) {
		return true
	}
	emin, emax := e.clamped()
	if emin > emax {
		return false
	}
	first := true
	var ns elementSupport
	eachIndex(e.index, emin, emax, func(x int64) {
		v := e.value(x)
		if first || v < ns.min {
			ns.min, ns.minSupport = v, x
		}
		if first || v > ns.max {
			ns.max, ns.maxSupport = v, x
		}
		first = false
	})
	if first {
		return false
	}
	e.support.Set(e.s, ns)
	if !e.initialized.Value() {
		e.initialized.Set(e.s, true)
	}
	return true
}

func (e *elementExpr) Min() int64 {
	if !e.updateSupports() {
		return math.MaxInt64
	}
	return e.support.Value().min
}

func (e *elementExpr) Max() int64 {
	if !e.updateSupports() {
		return math.MinInt64
	}
	return e.support.Value().max
}

func (e *elementExpr) Bound() bool { return e.Min() == e.Max() }

func (e *elementExpr) WhenRange(d *Demon) { e.index.WhenDomain(d) }

func (e *elementExpr) Var() *IntVar {
	if e.cast == nil {
		e.cast = castVar(e.s, e, e.name)
	}
	return e.cast
}

// restrict shrinks the index to the hull of admissible positions satisfying
// pred.
func (e *elementExpr) restrict(pred func(int64) bool, what string) error {
	emin, emax := e.clamped()
	ok := func(x int64) bool { return pred(e.value(x)) }
	nmin, found := firstIndex(e.index, emin, emax, ok)
	if !found {
		return e.s.Fail("%s: %s has no support", e.name, what)
	}
	nmax, _ := lastIndex(e.index, nmin, emax, ok)
	return e.index.SetRange(nmin, nmax)
}

func (e *elementExpr) SetMin(m int64) error {
	return e.restrict(func(v int64) bool { return v >= m }, "SetMin")
}

func (e *elementExpr) SetMax(m int64) error {
	return e.restrict(func(v int64) bool { return v <= m }, "SetMax")
}

func (e *elementExpr) SetRange(lo, hi int64) error {
	if lo > hi {
		return e.s.Fail("%s: SetRange(%d, %d) is empty", e.name, lo, hi)
	}
	return e.restrict(func(v int64) bool { return v >= lo && v <= hi }, "SetRange")
}

func (e *elementExpr) String() string { return fmt.Sprintf("%s[%s]", e.name, e.index.name) }

// ---------------------------------------------------------------------------
// Increasing engine

type increasingElementExpr struct {
	s      *Solver
	index  *IntVar
	value  func(int64) int64
	lo, hi int64
	cast   *IntVar
	name   string
}

func newIncreasingElementExpr(s *Solver, index *IntVar, value func(int64) int64, lo, hi int64, name string) *increasingElementExpr {
	return &increasingElementExpr{s: s, index: index, value: value, lo: lo, hi: hi, name: name}
}

func (e *increasingElementExpr) firstPos() (int64, bool) {
	x, ok := e.index.NextValue(max(e.lo, e.index.Min()))
	return x, ok && x <= e.hi
}

func (e *increasingElementExpr) lastPos() (int64, bool) {
	x, ok := e.index.PrevValue(min(e.hi, e.index.Max()))
	return x, ok && x >= e.lo
}

func (e *increasingElementExpr) Min() int64 {
	x, ok := e.firstPos()
	if !ok {
		return math.MaxInt64
	}
	return e.value(x)
}

func (e *increasingElementExpr) Max() int64 {
	x, ok := e.lastPos()
	if !ok {
		return math.MinInt64
	}
	return e.value(x)
}

func (e *increasingElementExpr) Bound() bool { return e.Min() == e.Max() }

func (e *increasingElementExpr) WhenRange(d *Demon) { e.index.WhenRange(d) }

func (e *increasingElementExpr) Var() *IntVar {
	if e.cast == nil {
		e.cast = castVar(e.s, e, e.name)
	}
	return e.cast
}

func (e *increasingElementExpr) SetMin(m int64) error {
	emin, emax := max(e.lo, e.index.Min()), min(e.hi, e.index.Max())
	last, ok := e.lastPos()
	if !ok || m > e.value(last) {
		return e.s.Fail("%s: SetMin(%d) above max", e.name, m)
	}
	nmin, _ := firstIndex(e.index, emin, emax, func(x int64) bool { return e.value(x) >= m })
	return e.index.SetRange(nmin, emax)
}

func (e *increasingElementExpr) SetMax(m int64) error {
	emin, emax := max(e.lo, e.index.Min()), min(e.hi, e.index.Max())
	first, ok := e.firstPos()
	if !ok || m < e.value(first) {
		return e.s.Fail("%s: SetMax(%d) below min", e.name, m)
	}
	nmax, _ := lastIndex(e.index, emin, emax, func(x int64) bool { return e.value(x) <= m })
	return e.index.SetRange(emin, nmax)
}

func (e *increasingElementExpr) SetRange(lo, hi int64) error {
	if lo > hi {
		return e.s.Fail("%s: SetRange(%d, %d) is empty", e.name, lo, hi)
	}
	emin, emax := max(e.lo, e.index.Min()), min(e.hi, e.index.Max())
	nmin, ok := firstIndex(e.index, emin, emax, func(x int64) bool { return e.value(x) >= lo })
	if !ok {
		return e.s.Fail("%s: SetRange(%d, %d) above max", e.name, lo, hi)
	}
	nmax, ok := lastIndex(e.index, emin, emax, func(x int64) bool { return e.value(x) <= hi })
	if !ok {
		return e.s.Fail("%s: SetRange(%d, %d) below min", e.name, lo, hi)
	}
	return e.index.SetRange(nmin, nmax)
}

func (e *increasingElementExpr) String() string {
	return fmt.Sprintf("%s[%s] (increasing)", e.name, e.index.name)
}

// ---------------------------------------------------------------------------
// Two-dimensional engine

type elementSupport2 struct {
	min, max            int64
	minFirst, minSecond int64
	maxFirst, maxSecond int64
}

type element2DExpr struct {
	s           *Solver
	first       *IntVar
	second      *IntVar
	value       func(a, b int64) int64
	support     *Rev[elementSupport2]
	initialized *Rev[bool]
	cast        *IntVar
	name        string
}

func newElement2DExpr(s *Solver, first, second *IntVar, value func(a, b int64) int64, name string) *element2DExpr {
	return &element2DExpr{
		s: s, first: first, second: second, value: value,
		support:     NewRev(elementSupport2{}),
		initialized: NewRev(false),
		name:        name,
	}
}

func (e *element2DExpr) updateSupports() {
	sup := e.support.Value()
	if e.initialized.Value() &&
		e.first.Contains(sup.minFirst) && e.second.Contains(sup.minSecond) &&
		e.first.Contains(sup.maxFirst) && e.second.Contains(sup.maxSecond) {
		return
	}
	started := false
	var ns elementSupport2
	e.first.Iterate(func(a int64) {
		e.second.Iterate(func(b int64) {
			v := e.value(a, b)
			if !started || v < ns.min {
				ns.min, ns.minFirst, ns.minSecond = v, a, b
			}
			if !started || v > ns.max {
				ns.max, ns.maxFirst, ns.maxSecond = v, a, b
			}
			started = true
		})
	})
	e.support.Set(e.s, ns)
	if !e.initialized.Value() {
		e.initialized.Set(e.s, true)
	}
}

func (e *element2DExpr) Min() int64 {
	e.updateSupports()
	return e.support.Value().min
}

func (e *element2DExpr) Max() int64 {
	e.updateSupports()
	return e.support.Value().max
}

func (e *element2DExpr) Bound() bool { return e.Min() == e.Max() }

func (e *element2DExpr) WhenRange(d *Demon) {
	e.first.WhenDomain(d)
	e.second.WhenDomain(d)
}

func (e *element2DExpr) Var() *IntVar {
	if e.cast == nil {
		e.cast = castVar(e.s, e, e.name)
	}
	return e.cast
}

func (e *element2DExpr) restrict(pred func(int64) bool, what string) error {
	emin1, emax1 := e.first.Min(), e.first.Max()
	emin2, emax2 := e.second.Min(), e.second.Max()
	rowHasSupport := func(a int64) bool {
		_, ok := firstIndex(e.second, emin2, emax2, func(b int64) bool { return pred(e.value(a, b)) })
		return ok
	}
	nmin1, ok := firstIndex(e.first, emin1, emax1, rowHasSupport)
	if !ok {
		return e.s.Fail("%s: %s has no support", e.name, what)
	}
	nmax1, _ := lastIndex(e.first, nmin1, emax1, rowHasSupport)
	colHasSupport := func(b int64) bool {
		_, ok := firstIndex(e.first, nmin1, nmax1, func(a int64) bool { return pred(e.value(a, b)) })
		return ok
	}
	nmin2, ok := firstIndex(e.second, emin2, emax2, colHasSupport)
	if !ok {
		return e.s.Fail("%s: %s has no support", e.name, what)
	}
	nmax2, _ := lastIndex(e.second, nmin2, emax2, colHasSupport)
	if err := e.first.SetRange(nmin1, nmax1); err != nil {
		return err
	}
	return e.second.SetRange(nmin2, nmax2)
}

func (e *element2DExpr) SetMin(m int64) error {
	return e.restrict(func(v int64) bool { return v >= m }, "SetMin")
}

func (e *element2DExpr) SetMax(m int64) error {
	return e.restrict(func(v int64) bool { return v <= m }, "SetMax")
}

func (e *element2DExpr) SetRange(lo, hi int64) error {
	if lo > hi {
		return e.s.Fail("%s: SetRange(%d, %d) is empty", e.name, lo, hi)
	}
	return e.restrict(func(v int64) bool { return v >= lo && v <= hi }, "SetRange")
}

func (e *element2DExpr) String() string {
	return fmt.Sprintf("%s[%s, %s]", e.name, e.first.name, e.second.name)
}
