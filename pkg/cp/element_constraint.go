// Package cp: element constraints
//
// These constraints enforce element relations directly instead of through an
// expression view:
//   - ElementEquality: values[index] == target, with holes punched in the
//     index for every value outside the target range.
//   - LightElement, LightElement2: target == fn(index...), checked only once
//     every index is bound.
//   - ArrayElement: vars[index] == target over variables.
//   - ArrayElementCst: vars[index] == value.
//   - ArrayPosition: index is the position of value in vars.
package cp

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// ElementEquality

type elementEqualityCt struct {
	values []int64
	index  *IntVar
	target *IntVar
}

// ElementEquality returns the constraint values[index] == target.
func (s *Solver) ElementEquality(values []int64, index, target *IntVar) Constraint {
	return &elementEqualityCt{values: values, index: index, target: target}
}

func (c *elementEqualityCt) Post(s *Solver) {
	d := s.MakeDemon("ElementEquality", DelayedPriority, c.propagate)
	c.index.WhenDomain(d)
	c.target.WhenRange(d)
}

func (c *elementEqualityCt) InitialPropagate() error { return c.propagate() }

func (c *elementEqualityCt) propagate() error {
	if err := c.index.SetRange(0, int64(len(c.values))-1); err != nil {
		return err
	}
	tmin, tmax := c.target.Min(), c.target.Max()
	newMin, newMax := tmax, tmin
	var removed []int64
	c.index.Iterate(func(i int64) {
		v := c.values[i]
		if v < tmin || v > tmax {
			removed = append(removed, i)
			return
		}
		newMin = min(newMin, v)
		newMax = max(newMax, v)
	})
	if err := c.index.RemoveValues(removed); err != nil {
		return err
	}
	return c.target.SetRange(newMin, newMax)
}

func (c *elementEqualityCt) String() string {
	return fmt.Sprintf("ElementEquality(%s, %s)", c.index.name, c.target.name)
}

// ---------------------------------------------------------------------------
// LightElement

type lightElementCt struct {
	target  *IntVar
	indexes []*IntVar
	eval    func(idx []int64) int64
	name    string
}

// LightElement returns target == fn(index), propagated only when index is
// bound.
func (s *Solver) LightElement(target, index *IntVar, fn func(int64) int64) Constraint {
	return &lightElementCt{
		target: target, indexes: []*IntVar{index},
		eval: func(idx []int64) int64 { return fn(idx[0]) },
		name: fmt.Sprintf("LightElement(%s, %s)", target.name, index.name),
	}
}

// LightElement2 returns target == fn(first, second), propagated only when
// both indexes are bound.
func (s *Solver) LightElement2(target, first, second *IntVar, fn func(a, b int64) int64) Constraint {
	return &lightElementCt{
		target: target, indexes: []*IntVar{first, second},
		eval: func(idx []int64) int64 { return fn(idx[0], idx[1]) },
		name: fmt.Sprintf("LightElement2(%s, %s, %s)", target.name, first.name, second.name),
	}
}

func (c *lightElementCt) Post(s *Solver) {
	d := s.MakeDemon(c.name, NormalPriority, c.InitialPropagate)
	for _, v := range c.indexes {
		v.WhenBound(d)
	}
}

func (c *lightElementCt) InitialPropagate() error {
	idx := make([]int64, len(c.indexes))
	for i, v := range c.indexes {
		if !v.Bound() {
			return nil
		}
		idx[i] = v.Value()
	}
	return c.target.SetValue(c.eval(idx))
}

func (c *lightElementCt) String() string { return c.name }

// ---------------------------------------------------------------------------
// ArrayElement

type arrayElementCt struct {
	s       *Solver
	vars    []*IntVar
	index   *IntVar
	target  *IntVar
	support *Rev[elementSupport]
	valid   *Rev[bool]
}

// ArrayElement returns the constraint vars[index] == target.
func (s *Solver) ArrayElement(vars []*IntVar, index, target *IntVar) Constraint {
	return &arrayElementCt{
		s: s, vars: vars, index: index, target: target,
		support: NewRev(elementSupport{}),
		valid:   NewRev(false),
	}
}

func (c *arrayElementCt) Post(s *Solver) {
	d := s.MakeDemon("ArrayElement", DelayedPriority, c.propagate)
	c.index.WhenDomain(d)
	c.target.WhenRange(d)
	for i, v := range c.vars {
		i := i
		v.WhenRange(s.MakeDemon(fmt.Sprintf("ArrayElement[%d]", i), NormalPriority, func() error {
			sup := c.support.Value()
			if c.valid.Value() && (int64(i) == sup.minSupport || int64(i) == sup.maxSupport) {
				c.valid.Set(c.s, false)
			}
			if c.index.Contains(int64(i)) {
				c.s.enqueue(d)
			}
			return nil
		}))
	}
}

func (c *arrayElementCt) InitialPropagate() error { return c.propagate() }

func (c *arrayElementCt) propagate() error {
	if err := c.index.SetRange(0, int64(len(c.vars))-1); err != nil {
		return err
	}
	if c.index.Bound() {
		v := c.vars[c.index.Value()]
		if err := v.SetRange(c.target.Min(), c.target.Max()); err != nil {
			return err
		}
		return c.target.SetRange(v.Min(), v.Max())
	}
	tmin, tmax := c.target.Min(), c.target.Max()
	meets := func(i int64) bool {
		v := c.vars[i]
		return v.Max() >= tmin && v.Min() <= tmax
	}
	nmin, ok := firstIndex(c.index, c.index.Min(), c.index.Max(), meets)
	if !ok {
		return c.s.Fail("ArrayElement: no variable meets target %s", c.target)
	}
	nmax, _ := lastIndex(c.index, nmin, c.index.Max(), meets)
	if err := c.index.SetRange(nmin, nmax); err != nil {
		return err
	}
	sup := c.support.Value()
	if !c.valid.Value() || !c.index.Contains(sup.minSupport) || !c.index.Contains(sup.maxSupport) {
		sup = elementSupport{min: math.MaxInt64, max: math.MinInt64}
		c.index.Iterate(func(i int64) {
			v := c.vars[i]
			if v.Min() < sup.min {
				sup.min, sup.minSupport = v.Min(), i
			}
			if v.Max() > sup.max {
				sup.max, sup.maxSupport = v.Max(), i
			}
		})
		c.support.Set(c.s, sup)
		c.valid.Set(c.s, true)
	}
	return c.target.SetRange(sup.min, sup.max)
}

func (c *arrayElementCt) String() string {
	return fmt.Sprintf("ArrayElement(%s, %s)", c.index.name, c.target.name)
}

// ---------------------------------------------------------------------------
// ArrayElementCst

type arrayElementCstCt struct {
	vars  []*IntVar
	index *IntVar
	value int64
}

// ArrayElementCst returns the constraint vars[index] == value.
func (s *Solver) ArrayElementCst(vars []*IntVar, index *IntVar, value int64) Constraint {
	return &arrayElementCstCt{vars: vars, index: index, value: value}
}

func (c *arrayElementCstCt) Post(s *Solver) {
	for i, v := range c.vars {
		i := int64(i)
		v.WhenDomain(s.MakeDemon(fmt.Sprintf("ArrayElementCst[%d]", i), NormalPriority, func() error {
			if !c.vars[i].Contains(c.value) {
				return c.index.RemoveValue(i)
			}
			return nil
		}))
	}
	c.index.WhenBound(s.MakeDemon("ArrayElementCst", NormalPriority, func() error {
		if err := c.index.SetRange(0, int64(len(c.vars))-1); err != nil {
			return err
		}
		return c.vars[c.index.Value()].SetValue(c.value)
	}))
}

func (c *arrayElementCstCt) InitialPropagate() error {
	if err := c.index.SetRange(0, int64(len(c.vars))-1); err != nil {
		return err
	}
	var removed []int64
	c.index.Iterate(func(i int64) {
		if !c.vars[i].Contains(c.value) {
			removed = append(removed, i)
		}
	})
	if err := c.index.RemoveValues(removed); err != nil {
		return err
	}
	if c.index.Bound() {
		return c.vars[c.index.Value()].SetValue(c.value)
	}
	return nil
}

func (c *arrayElementCstCt) String() string {
	return fmt.Sprintf("ArrayElementCst(%s, %d)", c.index.name, c.value)
}

// ---------------------------------------------------------------------------
// ArrayPosition

type arrayPositionCt struct {
	vars  []*IntVar
	index *IntVar
	value int64
}

// ArrayPosition returns the constraint vars[i] == value iff index == i.
func (s *Solver) ArrayPosition(vars []*IntVar, index *IntVar, value int64) Constraint {
	return &arrayPositionCt{vars: vars, index: index, value: value}
}

func (c *arrayPositionCt) Post(s *Solver) {
	for i, v := range c.vars {
		i := int64(i)
		v.WhenDomain(s.MakeDemon(fmt.Sprintf("ArrayPosition[%d]", i), NormalPriority, func() error {
			return c.propagateVar(i)
		}))
	}
	c.index.WhenDomain(s.MakeDemon("ArrayPosition", NormalPriority, c.propagateIndex))
}

func (c *arrayPositionCt) propagateVar(i int64) error {
	v := c.vars[i]
	if !v.Contains(c.value) {
		return c.index.RemoveValue(i)
	}
	if v.Bound() {
		return c.index.SetValue(i)
	}
	return nil
}

func (c *arrayPositionCt) propagateIndex() error {
	if err := c.index.SetRange(0, int64(len(c.vars))-1); err != nil {
		return err
	}
	for i, v := range c.vars {
		if !c.index.Contains(int64(i)) {
			if err := v.RemoveValue(c.value); err != nil {
				return err
			}
		}
	}
	if c.index.Bound() {
		return c.vars[c.index.Value()].SetValue(c.value)
	}
	return nil
}

func (c *arrayPositionCt) InitialPropagate() error {
	if err := c.index.SetRange(0, int64(len(c.vars))-1); err != nil {
		return err
	}
	for i, v := range c.vars {
		if c.index.Contains(int64(i)) {
			continue
		}
		if err := v.RemoveValue(c.value); err != nil {
			return err
		}
	}
	for i := range c.vars {
		if !c.index.Contains(int64(i)) {
			continue
		}
		if err := c.propagateVar(int64(i)); err != nil {
			return err
		}
	}
	if c.index.Bound() {
		return c.vars[c.index.Value()].SetValue(c.value)
	}
	return nil
}

func (c *arrayPositionCt) String() string {
	return fmt.Sprintf("ArrayPosition(%s, %d)", c.index.name, c.value)
}
