// Package cp: integer variables
//
// An IntVar keeps its bounds and size directly and allocates a bitset for
// holes the first time an interior value is removed. The bitset always covers
// the bounds the variable was created with, so restoring wider bounds on
// backtrack never reads outside it. Variables whose initial width exceeds
// maxHoleWidth stay bounds-only: removing an interior value is then a no-op,
// which is a sound relaxation.
package cp

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

const maxHoleWidth = 1 << 20

// IntVar is a finite-domain integer variable.
type IntVar struct {
	s    *Solver
	name string
	id   int

	min, max int64
	size     uint64

	base  int64
	width uint64
	bits  *bitset.BitSet

	rangeDemons  []*Demon
	domainDemons []*Demon
	boundDemons  []*Demon
}

func newIntVar(s *Solver, min, max int64, name string) *IntVar {
	v := &IntVar{s: s, name: name, id: len(s.vars), min: min, max: max, base: min}
	if min <= max {
		v.size = span(min, max)
		v.width = v.size
	}
	return v
}

// span returns hi-lo+1, saturating at MaxUint64.
func span(lo, hi int64) uint64 {
	d := uint64(hi) - uint64(lo)
	if d == math.MaxUint64 {
		return d
	}
	return d + 1
}

// Name returns the variable name.
func (v *IntVar) Name() string { return v.name }

// Solver returns the owning solver.
func (v *IntVar) Solver() *Solver { return v.s }

// Min returns the lower bound.
func (v *IntVar) Min() int64 { return v.min }

// Max returns the upper bound.
func (v *IntVar) Max() int64 { return v.max }

// Size returns the number of values in the domain.
func (v *IntVar) Size() uint64 { return v.size }

// Bound reports whether the domain is a single value.
func (v *IntVar) Bound() bool { return v.min == v.max }

// Value returns the bound value. It must only be called on a bound variable.
func (v *IntVar) Value() int64 { return v.min }

// Var returns v itself; it makes IntVar an IntExpr.
func (v *IntVar) Var() *IntVar { return v }

// Contains reports whether x is in the domain.
func (v *IntVar) Contains(x int64) bool {
	if x < v.min || x > v.max {
		return false
	}
	if v.bits == nil {
		return true
	}
	return v.bits.Test(uint(x - v.base))
}

// NextValue returns the smallest domain value >= x.
func (v *IntVar) NextValue(x int64) (int64, bool) {
	if x > v.max {
		return 0, false
	}
	if x < v.min {
		x = v.min
	}
	if v.bits == nil {
		return x, true
	}
	i, ok := v.bits.NextSet(uint(x - v.base))
	if !ok || int64(i)+v.base > v.max {
		return 0, false
	}
	return int64(i) + v.base, true
}

// PrevValue returns the largest domain value <= x.
func (v *IntVar) PrevValue(x int64) (int64, bool) {
	if x < v.min {
		return 0, false
	}
	if x > v.max {
		x = v.max
	}
	if v.bits == nil {
		return x, true
	}
	i, ok := prevSet(v.bits, uint(x-v.base))
	if !ok || int64(i)+v.base < v.min {
		return 0, false
	}
	return int64(i) + v.base, true
}

// prevSet returns the highest set bit at or below i.
func prevSet(b *bitset.BitSet, i uint) (uint, bool) {
	words := b.Bytes()
	w := int(i >> 6)
	if w >= len(words) {
		w = len(words) - 1
		i = uint(w)<<6 | 63
	}
	if w < 0 {
		return 0, false
	}
	word := words[w] & (^uint64(0) >> (63 - (i & 63)))
	for {
		if word != 0 {
			return uint(w)<<6 | uint(63-bits.LeadingZeros64(word)), true
		}
		w--
		if w < 0 {
			return 0, false
		}
		word = words[w]
	}
}

// Iterate calls f for each domain value in increasing order.
func (v *IntVar) Iterate(f func(x int64)) {
	if v.min > v.max {
		return
	}
	if v.bits == nil {
		for x := v.min; ; x++ {
			f(x)
			if x == v.max {
				return
			}
		}
	}
	for x, ok := v.min, true; ok; x, ok = v.NextValue(x + 1) {
		f(x)
		if x == v.max {
			return
		}
	}
}

// Values returns the domain as a sorted slice.
func (v *IntVar) Values() []int64 {
	out := make([]int64, 0, min(v.size, 1024))
	v.Iterate(func(x int64) { out = append(out, x) })
	return out
}

func (v *IntVar) String() string {
	switch {
	case v.min > v.max:
		return v.name + "(empty)"
	case v.Bound():
		return fmt.Sprintf("%s(%d)", v.name, v.min)
	case v.bits == nil || v.size == span(v.min, v.max):
		return fmt.Sprintf("%s(%d..%d)", v.name, v.min, v.max)
	}
	var b strings.Builder
	b.WriteString(v.name)
	b.WriteString("(")
	first := true
	v.Iterate(func(x int64) {
		if !first {
			b.WriteString(" ")
		}
		first = false
		fmt.Fprintf(&b, "%d", x)
	})
	b.WriteString(")")
	return b.String()
}

// WhenRange attaches d to bound changes.
func (v *IntVar) WhenRange(d *Demon) { v.rangeDemons = append(v.rangeDemons, d) }

// WhenDomain attaches d to any domain change.
func (v *IntVar) WhenDomain(d *Demon) { v.domainDemons = append(v.domainDemons, d) }

// WhenBound attaches d to the variable becoming bound.
func (v *IntVar) WhenBound(d *Demon) { v.boundDemons = append(v.boundDemons, d) }

func (v *IntVar) save() {
	v.s.trail = append(v.s.trail, trailEntry{v: v, oldMin: v.min, oldMax: v.max, oldSize: v.size})
}

func (v *IntVar) fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrDomainEmpty, v.name, fmt.Sprintf(format, args...))
}

func (v *IntVar) notifyRange() {
	v.s.enqueueAll(v.rangeDemons)
	v.s.enqueueAll(v.domainDemons)
	if v.min == v.max {
		v.s.enqueueAll(v.boundDemons)
	}
}

// countSet returns the number of domain bits in [lo, hi].
func (v *IntVar) countSet(lo, hi int64) uint64 {
	var n uint64
	for i, ok := v.bits.NextSet(uint(lo - v.base)); ok && int64(i)+v.base <= hi; i, ok = v.bits.NextSet(i + 1) {
		n++
	}
	return n
}

// SetMin removes every value below m.
func (v *IntVar) SetMin(m int64) error {
	if m <= v.min {
		return nil
	}
	if m > v.max {
		return v.fail("SetMin(%d) above max %d", m, v.max)
	}
	nm := m
	if v.bits != nil {
		x, ok := v.NextValue(m)
		if !ok {
			return v.fail("SetMin(%d) leaves no value", m)
		}
		nm = x
	}
	v.save()
	if v.bits != nil {
		v.size -= v.countSet(v.min, nm-1)
	} else {
		v.size = span(nm, v.max)
	}
	v.min = nm
	v.notifyRange()
	return nil
}

// SetMax removes every value above m.
func (v *IntVar) SetMax(m int64) error {
	if m >= v.max {
		return nil
	}
	if m < v.min {
		return v.fail("SetMax(%d) below min %d", m, v.min)
	}
	nm := m
	if v.bits != nil {
		x, ok := v.PrevValue(m)
		if !ok {
			return v.fail("SetMax(%d) leaves no value", m)
		}
		nm = x
	}
	v.save()
	if v.bits != nil {
		v.size -= v.countSet(nm+1, v.max)
	} else {
		v.size = span(v.min, nm)
	}
	v.max = nm
	v.notifyRange()
	return nil
}

// SetRange restricts the domain to [lo, hi].
func (v *IntVar) SetRange(lo, hi int64) error {
	if lo > hi {
		return v.fail("SetRange(%d, %d) is empty", lo, hi)
	}
	if err := v.SetMin(lo); err != nil {
		return err
	}
	return v.SetMax(hi)
}

// SetValue binds the variable to x.
func (v *IntVar) SetValue(x int64) error {
	if !v.Contains(x) {
		return v.fail("SetValue(%d) not in domain", x)
	}
	if v.Bound() {
		return nil
	}
	v.save()
	v.min, v.max, v.size = x, x, 1
	v.notifyRange()
	return nil
}

// RemoveValue removes x from the domain.
func (v *IntVar) RemoveValue(x int64) error {
	if !v.Contains(x) {
		return nil
	}
	switch {
	case v.Bound():
		return v.fail("RemoveValue(%d) from bound variable", x)
	case x == v.min:
		return v.SetMin(x + 1)
	case x == v.max:
		return v.SetMax(x - 1)
	}
	if v.width > maxHoleWidth {
		return nil
	}
	if v.bits == nil {
		v.bits = bitset.New(uint(v.width))
		v.bits.FlipRange(0, uint(v.width))
	}
	v.s.trail = append(v.s.trail, trailEntry{v: v, oldMin: v.min, oldMax: v.max, oldSize: v.size, hole: x, hasHole: true})
	v.bits.Clear(uint(x - v.base))
	v.size--
	v.s.enqueueAll(v.domainDemons)
	return nil
}

// RemoveValues removes each of values.
func (v *IntVar) RemoveValues(values []int64) error {
	for _, x := range values {
		if err := v.RemoveValue(x); err != nil {
			return err
		}
	}
	return nil
}

// RemoveInterval removes every value in [lo, hi].
func (v *IntVar) RemoveInterval(lo, hi int64) error {
	if lo > hi || hi < v.min || lo > v.max {
		return nil
	}
	if lo <= v.min {
		if hi >= v.max {
			return v.fail("RemoveInterval(%d, %d) covers the domain", lo, hi)
		}
		return v.SetMin(hi + 1)
	}
	if hi >= v.max {
		return v.SetMax(lo - 1)
	}
	for x, ok := v.NextValue(lo); ok && x <= hi; x, ok = v.NextValue(x + 1) {
		if err := v.RemoveValue(x); err != nil {
			return err
		}
	}
	return nil
}

// SetValues restricts the domain to the given values.
func (v *IntVar) SetValues(values []int64) error {
	keep := make(map[int64]struct{}, len(values))
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	for _, x := range values {
		if v.Contains(x) {
			keep[x] = struct{}{}
			lo = min(lo, x)
			hi = max(hi, x)
		}
	}
	if len(keep) == 0 {
		return v.fail("SetValues leaves no value")
	}
	if err := v.SetRange(lo, hi); err != nil {
		return err
	}
	var drop []int64
	v.Iterate(func(x int64) {
		if _, ok := keep[x]; !ok {
			drop = append(drop, x)
		}
	})
	return v.RemoveValues(drop)
}
