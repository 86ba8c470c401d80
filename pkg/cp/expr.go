package cp

import (
	"fmt"
	"math"
)

// IntExpr is a read-only integer view whose bounds can be tightened.
// Tightening an expression prunes the variables it is built on.
type IntExpr interface {
	Min() int64
	Max() int64
	SetMin(m int64) error
	SetMax(m int64) error
	SetRange(lo, hi int64) error
	Bound() bool
	// WhenRange attaches d to every event that may change Min or Max.
	WhenRange(d *Demon)
	// Var returns a variable equal to the expression, creating it on first
	// use.
	Var() *IntVar
}

// capAdd adds with saturation at the int64 limits.
func capAdd(a, b int64) int64 {
	c := a + b
	if (c > a) == (b > 0) {
		return c
	}
	if b > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}

// capSub subtracts with saturation at the int64 limits.
func capSub(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	return capAdd(a, -b)
}

// capNeg negates, mapping MinInt64 to MaxInt64.
func capNeg(a int64) int64 {
	if a == math.MinInt64 {
		return math.MaxInt64
	}
	return -a
}

// castVar creates a variable tied to e by a link constraint.
func castVar(s *Solver, e IntExpr, name string) *IntVar {
	v := s.NewIntVar(e.Min(), e.Max(), name)
	s.AddConstraint(&linkExprVar{s: s, expr: e, v: v})
	return v
}

// linkExprVar keeps a variable and an expression with equal bounds.
type linkExprVar struct {
	s    *Solver
	expr IntExpr
	v    *IntVar
}

func (c *linkExprVar) Post(s *Solver) {
	d := s.MakeDemon("link("+c.v.name+")", NormalPriority, c.InitialPropagate)
	c.expr.WhenRange(d)
	c.v.WhenRange(d)
}

func (c *linkExprVar) InitialPropagate() error {
	if err := c.expr.SetRange(c.v.Min(), c.v.Max()); err != nil {
		return err
	}
	return c.v.SetRange(c.expr.Min(), c.expr.Max())
}

func (c *linkExprVar) String() string { return fmt.Sprintf("Link(%s)", c.v.name) }

// oppositeExpr is -inner.
type oppositeExpr struct {
	s     *Solver
	inner IntExpr
	cast  *IntVar
}

// Opposite returns the expression -e.
func (s *Solver) Opposite(e IntExpr) IntExpr { return &oppositeExpr{s: s, inner: e} }

func (e *oppositeExpr) Min() int64                  { return capNeg(e.inner.Max()) }
func (e *oppositeExpr) Max() int64                  { return capNeg(e.inner.Min()) }
func (e *oppositeExpr) SetMin(m int64) error        { return e.inner.SetMax(capNeg(m)) }
func (e *oppositeExpr) SetMax(m int64) error        { return e.inner.SetMin(capNeg(m)) }
func (e *oppositeExpr) SetRange(lo, hi int64) error { return e.inner.SetRange(capNeg(hi), capNeg(lo)) }
func (e *oppositeExpr) Bound() bool                 { return e.inner.Bound() }
func (e *oppositeExpr) WhenRange(d *Demon)          { e.inner.WhenRange(d) }

func (e *oppositeExpr) Var() *IntVar {
	if e.cast == nil {
		e.cast = castVar(e.s, e, "opposite")
	}
	return e.cast
}
