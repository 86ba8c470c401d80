// Package cp: generic constraints
//
// The constraints in this file are the building blocks the routing model
// needs besides element: interval membership, value-based all-different, a
// bounds-consistent sum, the product with a boolean, reified membership
// tests, the no-cycle constraint on successor variables and the path
// accumulation constraint cumul[next[i]] == cumul[i] + transit[i].
package cp

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// ---------------------------------------------------------------------------
// Between

type betweenCt struct {
	x      *IntVar
	lo, hi int64
}

// Between returns the constraint lo <= x <= hi.
func (s *Solver) Between(x *IntVar, lo, hi int64) Constraint {
	return &betweenCt{x: x, lo: lo, hi: hi}
}

func (c *betweenCt) Post(*Solver)            {}
func (c *betweenCt) InitialPropagate() error { return c.x.SetRange(c.lo, c.hi) }
func (c *betweenCt) String() string {
	return fmt.Sprintf("Between(%s, %d, %d)", c.x.name, c.lo, c.hi)
}

// ---------------------------------------------------------------------------
// AllDifferent

type allDifferentCt struct {
	s    *Solver
	vars []*IntVar
}

// AllDifferent returns a value-based all-different constraint: a bound
// variable removes its value from every other variable.
func (s *Solver) AllDifferent(vars []*IntVar) Constraint {
	return &allDifferentCt{s: s, vars: vars}
}

func (c *allDifferentCt) Post(s *Solver) {
	for i, v := range c.vars {
		i := i
		v.WhenBound(s.MakeDemon(fmt.Sprintf("AllDifferent[%d]", i), NormalPriority, func() error {
			return c.propagate(i)
		}))
	}
}

func (c *allDifferentCt) propagate(i int) error {
	value := c.vars[i].Value()
	for j, other := range c.vars {
		if j == i {
			continue
		}
		if err := other.RemoveValue(value); err != nil {
			return err
		}
	}
	return nil
}

func (c *allDifferentCt) InitialPropagate() error {
	for i, v := range c.vars {
		if v.Bound() {
			if err := c.propagate(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *allDifferentCt) String() string { return fmt.Sprintf("AllDifferent(%d vars)", len(c.vars)) }

// ---------------------------------------------------------------------------
// Sum

type sumCt struct {
	vars   []*IntVar
	target *IntVar
}

// Sum returns the constraint target == sum(vars), propagated on bounds with
// saturated arithmetic.
func (s *Solver) Sum(vars []*IntVar, target *IntVar) Constraint {
	return &sumCt{vars: vars, target: target}
}

// SumVar returns a new variable constrained to the sum of vars.
func (s *Solver) SumVar(vars []*IntVar, name string) *IntVar {
	lo, hi := int64(0), int64(0)
	for _, v := range vars {
		lo = capAdd(lo, v.Min())
		hi = capAdd(hi, v.Max())
	}
	target := s.NewIntVar(lo, hi, name)
	s.AddConstraint(s.Sum(vars, target))
	return target
}

func (c *sumCt) Post(s *Solver) {
	d := s.MakeDemon("Sum", DelayedPriority, c.InitialPropagate)
	for _, v := range c.vars {
		v.WhenRange(d)
	}
	c.target.WhenRange(d)
}

func (c *sumCt) InitialPropagate() error {
	lo, hi := int64(0), int64(0)
	for _, v := range c.vars {
		lo = capAdd(lo, v.Min())
		hi = capAdd(hi, v.Max())
	}
	if err := c.target.SetRange(lo, hi); err != nil {
		return err
	}
	if lo == math.MinInt64 || hi == math.MaxInt64 {
		return nil
	}
	tmin, tmax := c.target.Min(), c.target.Max()
	for _, v := range c.vars {
		vmin, vmax := v.Min(), v.Max()
		// Other vars contribute [lo-vmin, hi-vmax].
		if err := v.SetRange(capSub(tmin, hi-vmax), capSub(tmax, lo-vmin)); err != nil {
			return err
		}
	}
	return nil
}

func (c *sumCt) String() string {
	return fmt.Sprintf("Sum(%d vars) == %s", len(c.vars), c.target.name)
}

// ---------------------------------------------------------------------------
// TimesBool

type timesBoolCt struct {
	x, b, target *IntVar
}

// TimesBool returns the constraint target == x * b with b a 0/1 variable.
func (s *Solver) TimesBool(x, b, target *IntVar) Constraint {
	return &timesBoolCt{x: x, b: b, target: target}
}

// TimesBoolVar returns a new variable equal to x * b.
func (s *Solver) TimesBoolVar(x, b *IntVar, name string) *IntVar {
	target := s.NewIntVar(min(0, x.Min()), max(0, x.Max()), name)
	s.AddConstraint(s.TimesBool(x, b, target))
	return target
}

func (c *timesBoolCt) Post(s *Solver) {
	d := s.MakeDemon("TimesBool", NormalPriority, c.InitialPropagate)
	c.x.WhenRange(d)
	c.b.WhenBound(d)
	c.target.WhenRange(d)
}

func (c *timesBoolCt) InitialPropagate() error {
	if err := c.b.SetRange(0, 1); err != nil {
		return err
	}
	if !c.b.Bound() {
		if !c.target.Contains(0) {
			if err := c.b.SetValue(1); err != nil {
				return err
			}
		} else if c.target.Max() < c.x.Min() || c.target.Min() > c.x.Max() {
			if err := c.b.SetValue(0); err != nil {
				return err
			}
		}
	}
	if c.b.Bound() {
		if c.b.Value() == 0 {
			return c.target.SetValue(0)
		}
		if err := c.target.SetRange(c.x.Min(), c.x.Max()); err != nil {
			return err
		}
		return c.x.SetRange(c.target.Min(), c.target.Max())
	}
	return c.target.SetRange(min(0, c.x.Min()), max(0, c.x.Max()))
}

func (c *timesBoolCt) String() string {
	return fmt.Sprintf("%s == %s * %s", c.target.name, c.x.name, c.b.name)
}

// ---------------------------------------------------------------------------
// Reified membership

// reifiedSetCt maintains b == (x in S) for a set S described by callbacks.
type reifiedSetCt struct {
	x, b *IntVar
	name string
	// status reports whether every value of x is in S and whether some is.
	status   func() (all, any bool)
	restrict func() error
	exclude  func() error
}

func (c *reifiedSetCt) Post(s *Solver) {
	d := s.MakeDemon(c.name, NormalPriority, c.InitialPropagate)
	c.x.WhenDomain(d)
	c.b.WhenBound(d)
}

func (c *reifiedSetCt) InitialPropagate() error {
	if err := c.b.SetRange(0, 1); err != nil {
		return err
	}
	if c.b.Bound() {
		if c.b.Value() == 1 {
			return c.restrict()
		}
		return c.exclude()
	}
	all, any := c.status()
	switch {
	case all:
		return c.b.SetValue(1)
	case !any:
		return c.b.SetValue(0)
	}
	return nil
}

func (c *reifiedSetCt) String() string { return c.name }

// IsEqualCstCt returns the constraint b == (x == value).
func (s *Solver) IsEqualCstCt(x *IntVar, value int64, b *IntVar) Constraint {
	return &reifiedSetCt{
		x: x, b: b,
		name: fmt.Sprintf("%s == (%s == %d)", b.name, x.name, value),
		status: func() (bool, bool) {
			return x.Bound() && x.Value() == value, x.Contains(value)
		},
		restrict: func() error { return x.SetValue(value) },
		exclude:  func() error { return x.RemoveValue(value) },
	}
}

// IsDifferentCstCt returns the constraint b == (x != value).
func (s *Solver) IsDifferentCstCt(x *IntVar, value int64, b *IntVar) Constraint {
	return &reifiedSetCt{
		x: x, b: b,
		name: fmt.Sprintf("%s == (%s != %d)", b.name, x.name, value),
		status: func() (bool, bool) {
			return !x.Contains(value), !(x.Bound() && x.Value() == value)
		},
		restrict: func() error { return x.RemoveValue(value) },
		exclude:  func() error { return x.SetValue(value) },
	}
}

// IsBetweenCt returns the constraint b == (lo <= x <= hi).
// Holes in the domain of x count, so b is fixed to 0 as soon as no
// remaining value lies in [lo, hi].
func (s *Solver) IsBetweenCt(x *IntVar, lo, hi int64, b *IntVar) Constraint {
	return &reifiedSetCt{
		x: x, b: b,
		name: fmt.Sprintf("%s == (%s in [%d, %d])", b.name, x.name, lo, hi),
		status: func() (bool, bool) {
			next, ok := x.NextValue(lo)
			return lo <= x.Min() && x.Max() <= hi, ok && next <= hi
		},
		restrict: func() error { return x.SetRange(lo, hi) },
		exclude:  func() error { return x.RemoveInterval(lo, hi) },
	}
}

// IsMemberCt returns the constraint b == (x in values).
func (s *Solver) IsMemberCt(x *IntVar, values []int64, b *IntVar) Constraint {
	set := slices.Clone(values)
	slices.Sort(set)
	set = slices.Compact(set)
	in := func(v int64) bool {
		_, found := slices.BinarySearch(set, v)
		return found
	}
	return &reifiedSetCt{
		x: x, b: b,
		name: fmt.Sprintf("%s == (%s in %v)", b.name, x.name, set),
		status: func() (bool, bool) {
			all, any := true, false
			if x.Size() > maxHoleWidth {
				return false, true
			}
			x.Iterate(func(v int64) {
				if in(v) {
					any = true
				} else {
					all = false
				}
			})
			return all, any
		},
		restrict: func() error { return x.SetValues(set) },
		exclude:  func() error { return x.RemoveValues(set) },
	}
}

// IsEqualCst returns a boolean variable equal to (x == value).
func (s *Solver) IsEqualCst(x *IntVar, value int64) *IntVar {
	b := s.NewBoolVar(fmt.Sprintf("Is(%s == %d)", x.name, value))
	s.AddConstraint(s.IsEqualCstCt(x, value, b))
	return b
}

// IsDifferentCst returns a boolean variable equal to (x != value).
func (s *Solver) IsDifferentCst(x *IntVar, value int64) *IntVar {
	b := s.NewBoolVar(fmt.Sprintf("Is(%s != %d)", x.name, value))
	s.AddConstraint(s.IsDifferentCstCt(x, value, b))
	return b
}

// IsBetween returns a boolean variable equal to (lo <= x <= hi).
func (s *Solver) IsBetween(x *IntVar, lo, hi int64) *IntVar {
	b := s.NewBoolVar(fmt.Sprintf("Is(%s in [%d, %d])", x.name, lo, hi))
	s.AddConstraint(s.IsBetweenCt(x, lo, hi, b))
	return b
}

// IsMember returns a boolean variable equal to (x in values).
func (s *Solver) IsMember(x *IntVar, values []int64) *IntVar {
	b := s.NewBoolVar(fmt.Sprintf("Is(%s in set)", x.name))
	s.AddConstraint(s.IsMemberCt(x, values, b))
	return b
}

// ---------------------------------------------------------------------------
// NoCycle

// noCycleCt forbids cycles among successor variables. Values >= len(nexts)
// are sinks; next[i] == i marks node i as unused and is not a cycle.
//
// Chains of bound arcs are tracked by their extremities: for a chain a..b,
// ends[a] == b and starts[b] == a. Binding i -> j joins the chain ending at i
// with the chain starting at j and removes the value that would close it.
type noCycleCt struct {
	s       *Solver
	nexts   []*IntVar
	active  []*IntVar
	starts  *RevArray[int64]
	ends    *RevArray[int64]
	hasPrev *RevArray[bool]
	done    *RevArray[bool]
}

// NoCycle returns the no-cycle constraint over nexts. active[i] must be 0
// exactly when next[i] == i; it may be nil when the caller posts that link
// separately.
func (s *Solver) NoCycle(nexts, active []*IntVar) Constraint {
	n := len(nexts)
	c := &noCycleCt{
		s: s, nexts: nexts, active: active,
		starts:  NewRevArray[int64](n, 0),
		ends:    NewRevArray[int64](n, 0),
		hasPrev: NewRevArray(n, false),
		done:    NewRevArray(n, false),
	}
	for i := 0; i < n; i++ {
		c.starts.values[i] = int64(i)
		c.ends.values[i] = int64(i)
	}
	return c
}

func (c *noCycleCt) Post(s *Solver) {
	for i, v := range c.nexts {
		i := i
		v.WhenBound(s.MakeDemon(fmt.Sprintf("NoCycle[%d]", i), NormalPriority, func() error {
			return c.bound(i)
		}))
	}
	for i, a := range c.active {
		if a == nil {
			continue
		}
		i := i
		a.WhenBound(s.MakeDemon(fmt.Sprintf("NoCycleActive[%d]", i), NormalPriority, func() error {
			return c.activeBound(i)
		}))
	}
}

func (c *noCycleCt) activeBound(i int) error {
	if c.active[i].Value() == 0 {
		return c.nexts[i].SetValue(int64(i))
	}
	return c.nexts[i].RemoveValue(int64(i))
}

func (c *noCycleCt) InitialPropagate() error {
	for i := range c.active {
		if c.active[i] != nil && c.active[i].Bound() {
			if err := c.activeBound(i); err != nil {
				return err
			}
		}
	}
	for i, v := range c.nexts {
		if v.Bound() {
			if err := c.bound(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *noCycleCt) bound(i int) error {
	if c.done.Value(i) {
		return nil
	}
	c.done.Set(c.s, i, true)
	j := c.nexts[i].Value()
	if j == int64(i) {
		if i < len(c.active) && c.active[i] != nil {
			return c.active[i].SetValue(0)
		}
		return nil
	}
	if i < len(c.active) && c.active[i] != nil {
		if err := c.active[i].SetValue(1); err != nil {
			return err
		}
	}
	if j >= int64(len(c.nexts)) || j < 0 {
		return nil
	}
	if c.hasPrev.Value(int(j)) {
		return c.s.Fail("NoCycle: node %d has two predecessors", j)
	}
	c.hasPrev.Set(c.s, int(j), true)
	a := c.starts.Value(i)
	b := c.ends.Value(int(j))
	if a == j {
		return c.s.Fail("NoCycle: arc %d -> %d closes a cycle", i, j)
	}
	c.ends.Set(c.s, int(a), b)
	c.starts.Set(c.s, int(b), a)
	if a != b {
		return c.nexts[b].RemoveValue(a)
	}
	return nil
}

func (c *noCycleCt) String() string { return fmt.Sprintf("NoCycle(%d nexts)", len(c.nexts)) }

// ---------------------------------------------------------------------------
// PathCumul

// pathCumulCt enforces cumuls[next[i]] == cumuls[i] + transits[i] for every
// active i. Cumuls has one entry per successor value (nodes and sinks),
// transits one per node.
type pathCumulCt struct {
	s        *Solver
	nexts    []*IntVar
	active   []*IntVar
	cumuls   []*IntVar
	transits []*IntVar
	prevs    *RevArray[int64]
}

// PathCumul returns the path accumulation constraint.
func (s *Solver) PathCumul(nexts, active, cumuls, transits []*IntVar) Constraint {
	return &pathCumulCt{
		s: s, nexts: nexts, active: active, cumuls: cumuls, transits: transits,
		prevs: NewRevArray[int64](len(cumuls), -1),
	}
}

func (c *pathCumulCt) Post(s *Solver) {
	n := len(c.nexts)
	for i := 0; i < n; i++ {
		i := i
		d := s.MakeDemon(fmt.Sprintf("PathCumul[%d]", i), NormalPriority, func() error { return c.propagate(i) })
		c.nexts[i].WhenDomain(d)
		c.transits[i].WhenRange(d)
		if c.active != nil && c.active[i] != nil {
			c.active[i].WhenBound(d)
		}
	}
	for j := range c.cumuls {
		j := j
		c.cumuls[j].WhenRange(s.MakeDemon(fmt.Sprintf("PathCumulCumul[%d]", j), NormalPriority, func() error {
			if j < n {
				if err := c.propagate(j); err != nil {
					return err
				}
			}
			if prev := c.prevs.Value(j); prev >= 0 {
				return c.propagate(int(prev))
			}
			return nil
		}))
	}
}

func (c *pathCumulCt) InitialPropagate() error {
	for i := range c.nexts {
		if err := c.propagate(i); err != nil {
			return err
		}
	}
	return nil
}

func (c *pathCumulCt) propagate(i int) error {
	if c.active != nil && c.active[i] != nil && c.active[i].Max() == 0 {
		return nil
	}
	next := c.nexts[i]
	if next.Bound() {
		j := next.Value()
		if j == int64(i) {
			return nil
		}
		if c.prevs.Value(int(j)) != int64(i) {
			c.prevs.Set(c.s, int(j), int64(i))
		}
		return c.link(i, int(j))
	}
	ci, ti := c.cumuls[i], c.transits[i]
	lo, hi := capAdd(ci.Min(), ti.Min()), capAdd(ci.Max(), ti.Max())
	var drop []int64
	next.Iterate(func(j int64) {
		if j == int64(i) || j < 0 || j >= int64(len(c.cumuls)) {
			return
		}
		cj := c.cumuls[j]
		if lo > cj.Max() || hi < cj.Min() {
			drop = append(drop, j)
		}
	})
	return next.RemoveValues(drop)
}

func (c *pathCumulCt) link(i, j int) error {
	ci, cj, ti := c.cumuls[i], c.cumuls[j], c.transits[i]
	if err := cj.SetRange(capAdd(ci.Min(), ti.Min()), capAdd(ci.Max(), ti.Max())); err != nil {
		return err
	}
	if err := ci.SetRange(capSub(cj.Min(), ti.Max()), capSub(cj.Max(), ti.Min())); err != nil {
		return err
	}
	return ti.SetRange(capSub(cj.Min(), ci.Max()), capSub(cj.Max(), ci.Min()))
}

func (c *pathCumulCt) String() string { return fmt.Sprintf("PathCumul(%d nexts)", len(c.nexts)) }
