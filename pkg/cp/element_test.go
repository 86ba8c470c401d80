package cp

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func propertyParameters() *gopter.TestParameters {
	params := gopter.DefaultTestParametersWithSeed(1234)
	params.MinSuccessfulTests = 200
	return params
}

// bruteBounds returns min and max of values over the positions of index that
// fall inside the array.
func bruteBounds(values []int64, index *IntVar) (int64, int64, bool) {
	lo, hi := int64(math.MaxInt64), int64(math.MinInt64)
	found := false
	for _, i := range index.Values() {
		if i < 0 || i >= int64(len(values)) {
			continue
		}
		lo = min(lo, values[i])
		hi = max(hi, values[i])
		found = true
	}
	return lo, hi, found
}

func inRangeCount(n int64, index *IntVar) int {
	c := 0
	for _, i := range index.Values() {
		if i >= 0 && i < n {
			c++
		}
	}
	return c
}

// replayDomainOps applies removals, checkpoints and backtracks to index and
// calls check after each step.
func replayDomainOps(s *Solver, index *IntVar, n int64, kinds, args []int, check func() bool) bool {
	var marks []int
	steps := min(len(kinds), len(args))
	for k := 0; k < steps; k++ {
		switch kinds[k] {
		case 0:
			x := index.Min() + int64(args[k])%(index.Max()-index.Min()+1)
			if index.Size() == 1 {
				break
			}
			if x >= 0 && x < n && index.Contains(x) && inRangeCount(n, index) == 1 {
				break
			}
			if err := index.RemoveValue(x); err != nil {
				return false
			}
		case 1:
			marks = append(marks, s.Checkpoint())
		case 2:
			if len(marks) > 0 {
				s.Backtrack(marks[len(marks)-1])
				marks = marks[:len(marks)-1]
			}
		}
		if !check() {
			return false
		}
	}
	return true
}

func TestElement_SupportsMatchBruteForce(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("array element bounds follow the index domain", prop.ForAll(
		func(values []int64, kinds []int, args []int) bool {
			if len(values) == 0 {
				return true
			}
			n := int64(len(values))
			s := NewSolver("element")
			index := s.NewIntVar(-2, n+1, "index")
			e := s.Element(values, index)
			check := func() bool {
				lo, hi, ok := bruteBounds(values, index)
				return ok && e.Min() == lo && e.Max() == hi
			}
			return check() && replayDomainOps(s, index, n, kinds, args, check)
		},
		gen.SliceOfN(9, gen.Int64Range(2, 40)),
		gen.SliceOfN(40, gen.IntRange(0, 2)),
		gen.SliceOfN(40, gen.IntRange(0, 50)),
	))

	properties.Property("evaluator element bounds follow the index domain", prop.ForAll(
		func(values []int64, kinds []int, args []int) bool {
			if len(values) == 0 {
				return true
			}
			n := int64(len(values))
			s := NewSolver("element-func")
			index := s.NewIntVar(0, n-1, "index")
			e := s.ElementFunc(func(i int64) int64 { return values[i] }, index)
			check := func() bool {
				lo, hi, ok := bruteBounds(values, index)
				return ok && e.Min() == lo && e.Max() == hi
			}
			return check() && replayDomainOps(s, index, n, kinds, args, check)
		},
		gen.SliceOfN(9, gen.Int64Range(-50, 50)),
		gen.SliceOfN(40, gen.IntRange(0, 2)),
		gen.SliceOfN(40, gen.IntRange(0, 50)),
	))

	properties.Property("boolean element bounds follow the index domain", prop.ForAll(
		func(values []int64, kinds []int, args []int) bool {
			if len(values) == 0 {
				return true
			}
			n := int64(len(values))
			s := NewSolver("element-bool")
			index := s.NewIntVar(0, n-1, "index")
			e := s.Element(values, index)
			check := func() bool {
				if s.Propagate() != nil {
					return false
				}
				lo, hi, ok := bruteBounds(values, index)
				return ok && e.Min() == lo && e.Max() == hi
			}
			return check() && replayDomainOps(s, index, n, kinds, args, check)
		},
		gen.SliceOfN(8, gen.Int64Range(0, 1)),
		gen.SliceOfN(40, gen.IntRange(0, 2)),
		gen.SliceOfN(40, gen.IntRange(0, 50)),
	))

	properties.TestingRun(t)
}

// TestMonotonicElement_MatchesGeneralEngine checks that the increasing engine
// prunes exactly like the general one on a non-decreasing evaluator.
func TestMonotonicElement_MatchesGeneralEngine(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("same failures and same index domains", prop.ForAll(
		func(base int64, deltas []int64, los []int64, widths []int64) bool {
			values := []int64{base}
			for _, d := range deltas {
				values = append(values, values[len(values)-1]+d)
			}
			n := int64(len(values))
			fn := func(i int64) int64 { return values[i] }

			sa, sb := NewSolver("monotonic"), NewSolver("general")
			ia, ib := sa.NewIntVar(0, n-1, "a"), sb.NewIntVar(0, n-1, "b")
			ea := sa.MonotonicElement(fn, true, ia)
			eb := sb.ElementFunc(fn, ib)

			steps := min(len(los), len(widths))
			for k := 0; k < steps; k++ {
				ma, mb := sa.Checkpoint(), sb.Checkpoint()
				lo, hi := los[k], los[k]+widths[k]
				errA, errB := ea.SetRange(lo, hi), eb.SetRange(lo, hi)
				if (errA != nil) != (errB != nil) {
					return false
				}
				if errA != nil {
					if !IsFailure(errA) || !IsFailure(errB) {
						return false
					}
					sa.Backtrack(ma)
					sb.Backtrack(mb)
					continue
				}
				if !equalInt64s(ia.Values(), ib.Values()) || ea.Min() != eb.Min() || ea.Max() != eb.Max() {
					return false
				}
			}
			return true
		},
		gen.Int64Range(-10, 10),
		gen.SliceOfN(10, gen.Int64Range(0, 5)),
		gen.SliceOfN(8, gen.Int64Range(-15, 60)),
		gen.SliceOfN(8, gen.Int64Range(0, 30)),
	))

	properties.TestingRun(t)
}

func equalInt64s(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestElementEquality_FixedPoint checks that propagation leaves exactly the
// positions whose value fits the target, and a target equal to their hull.
func TestElementEquality_FixedPoint(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("index keeps supported positions only", prop.ForAll(
		func(values []int64, tlo, width int64, removals []int64) bool {
			if len(values) == 0 {
				return true
			}
			n := int64(len(values))
			s := NewSolver("element-equality")
			index := s.NewIntVar(-2, n+1, "index")
			target := s.NewIntVar(tlo, tlo+width, "target")
			for _, r := range removals {
				if index.Size() > 1 {
					if err := index.RemoveValue(r); err != nil {
						return false
					}
				}
			}
			var want []int64
			for _, i := range index.Values() {
				if i >= 0 && i < n && values[i] >= tlo && values[i] <= tlo+width {
					want = append(want, i)
				}
			}
			s.AddConstraint(s.ElementEquality(values, index, target))
			err := s.Propagate()
			if len(want) == 0 {
				return IsFailure(err)
			}
			if err != nil || !equalInt64s(index.Values(), want) {
				return false
			}
			lo, hi, _ := bruteBounds(values, index)
			return target.Min() == lo && target.Max() == hi
		},
		gen.SliceOfN(8, gen.Int64Range(-10, 10)),
		gen.Int64Range(-12, 10),
		gen.Int64Range(0, 12),
		gen.SliceOfN(4, gen.Int64Range(-2, 9)),
	))

	properties.TestingRun(t)
}

func TestElement_ConstantArray(t *testing.T) {
	s := NewSolver("constant")
	index := s.NewIntVar(-5, 10, "index")
	e := s.Element([]int64{7, 7, 7}, index)
	require.True(t, e.Bound())
	require.Equal(t, int64(7), e.Min())
	require.NoError(t, s.Propagate())
	require.Equal(t, []int64{0, 1, 2}, index.Values(), "index clamped to the array")
}

func TestElement_BooleanArrayIsReified(t *testing.T) {
	s := NewSolver("boolean")
	index := s.NewIntVar(0, 3, "index")
	e := s.Element([]int64{0, 0, 1, 0}, index)
	require.NoError(t, s.Propagate())
	require.NoError(t, e.SetMin(1))
	require.NoError(t, s.Propagate())
	require.True(t, index.Bound())
	require.Equal(t, int64(2), index.Value())
}

func TestElement_BooleanRunSeesIndexHoles(t *testing.T) {
	s := NewSolver("boolean-run")
	index := s.NewIntVar(0, 7, "index")
	e := s.Element([]int64{0, 0, 0, 1, 1, 0, 0, 0}, index)
	require.NoError(t, s.Propagate())
	require.Equal(t, []int64{0, 1}, []int64{e.Min(), e.Max()})

	require.NoError(t, index.RemoveValues([]int64{3, 4, 5}))
	require.NoError(t, s.Propagate())
	require.Equal(t, []int64{0, 1, 2, 6, 7}, index.Values())
	require.Equal(t, int64(0), e.Max(), "no remaining index selects a one")
}

func TestElement_CachedPerIndexAndValues(t *testing.T) {
	s := NewSolver("cache")
	x := s.NewIntVar(0, 3, "x")
	y := s.NewIntVar(0, 3, "y")
	values := []int64{4, 9, 2, 6}
	a := s.Element(values, x)
	require.True(t, a == s.Element([]int64{4, 9, 2, 6}, x), "same values share the expression")
	require.False(t, a == s.Element(values, y), "different index")
	require.False(t, a == s.Element([]int64{4, 9, 2, 7}, x), "different values")

	values[0] = 100
	require.Equal(t, int64(2), a.Min(), "cached values are copied")
}

func TestElement_DecreasingArray(t *testing.T) {
	s := NewSolver("decreasing")
	index := s.NewIntVar(0, 3, "index")
	e := s.Element([]int64{9, 7, 4, 1}, index)
	require.Equal(t, int64(1), e.Min())
	require.Equal(t, int64(9), e.Max())

	require.NoError(t, e.SetMax(5))
	require.Equal(t, int64(2), index.Min())
	require.Equal(t, int64(3), index.Max())
	require.Equal(t, int64(4), e.Max())

	require.True(t, IsFailure(e.SetMin(6)))
}

func TestElement_IncreasingSkipsHoles(t *testing.T) {
	s := NewSolver("increasing")
	index := s.NewIntVar(0, 4, "index")
	e := s.Element([]int64{1, 3, 5, 7, 9}, index)
	require.NoError(t, index.RemoveValue(1))
	require.NoError(t, e.SetMin(2))
	require.Equal(t, int64(2), index.Min(), "position 1 is a hole")
	require.Equal(t, int64(5), e.Min())
}

func TestElement2D(t *testing.T) {
	s := NewSolver("2d")
	a := s.NewIntVar(0, 2, "a")
	b := s.NewIntVar(0, 3, "b")
	e := s.Element2D(func(x, y int64) int64 { return 10*x + y }, a, b)
	require.Equal(t, int64(0), e.Min())
	require.Equal(t, int64(23), e.Max())

	require.NoError(t, e.SetMin(15))
	require.True(t, a.Bound())
	require.Equal(t, int64(2), a.Value())
	require.Equal(t, int64(20), e.Min())

	require.NoError(t, e.SetMax(21))
	require.Equal(t, int64(1), b.Max())
}

func TestArrayElement_PrunesIndexAndTarget(t *testing.T) {
	s := NewSolver("array-element")
	vars := []*IntVar{
		s.NewIntVar(0, 3, "x0"),
		s.NewIntVar(5, 6, "x1"),
		s.NewIntVar(10, 12, "x2"),
	}
	index := s.NewIntVar(-1, 5, "index")
	target := s.NewIntVar(4, 8, "target")
	s.AddConstraint(s.ArrayElement(vars, index, target))
	require.NoError(t, s.Propagate())

	require.True(t, index.Bound())
	require.Equal(t, int64(1), index.Value())
	require.Equal(t, int64(5), target.Min())
	require.Equal(t, int64(6), target.Max())

	require.NoError(t, target.SetValue(6))
	require.NoError(t, s.Propagate())
	require.True(t, vars[1].Bound())
}

func TestElementVars_AllBoundUsesArray(t *testing.T) {
	s := NewSolver("element-vars")
	vars := []*IntVar{s.IntConst(3), s.IntConst(8), s.IntConst(5)}
	index := s.NewIntVar(0, 2, "index")
	e := s.ElementVars(vars, index)
	require.True(t, e == s.Element([]int64{3, 8, 5}, index))
	require.Equal(t, int64(3), e.Min())
	require.Equal(t, int64(8), e.Max())
}

func TestArrayElementCst(t *testing.T) {
	s := NewSolver("array-element-cst")
	vars := []*IntVar{s.NewIntVar(0, 2, "x0"), s.NewIntVar(3, 5, "x1"), s.NewIntVar(1, 4, "x2")}
	index := s.NewIntVar(0, 2, "index")
	s.AddConstraint(s.ArrayElementCst(vars, index, 4))
	require.NoError(t, s.Propagate())
	require.Equal(t, []int64{1, 2}, index.Values())

	require.NoError(t, index.SetValue(2))
	require.NoError(t, s.Propagate())
	require.Equal(t, int64(4), vars[2].Value())
}

func TestArrayPosition(t *testing.T) {
	s := NewSolver("array-position")
	vars := []*IntVar{s.NewIntVar(0, 3, "x0"), s.NewIntVar(0, 3, "x1"), s.NewIntVar(0, 3, "x2")}
	index := s.IndexExpression(vars, 2)
	require.True(t, index == s.IndexExpression(vars, 2), "shared per value")
	require.NoError(t, s.Propagate())

	require.NoError(t, vars[0].RemoveValue(2))
	require.NoError(t, s.Propagate())
	require.False(t, index.Contains(0))

	require.NoError(t, index.SetValue(1))
	require.NoError(t, s.Propagate())
	require.Equal(t, int64(2), vars[1].Value())
	require.False(t, vars[2].Contains(2))
}

func TestLightElement_WaitsForBoundIndex(t *testing.T) {
	s := NewSolver("light")
	index := s.NewIntVar(0, 3, "index")
	target := s.NewIntVar(0, 100, "target")
	s.AddConstraint(s.LightElement(target, index, func(i int64) int64 { return i * i }))
	require.NoError(t, s.Propagate())
	require.Equal(t, int64(0), target.Min())
	require.Equal(t, int64(100), target.Max())

	require.NoError(t, index.SetValue(3))
	require.NoError(t, s.Propagate())
	require.Equal(t, int64(9), target.Value())
}

func TestLightElement2_FailsOnMismatch(t *testing.T) {
	s := NewSolver("light2")
	a := s.NewIntVar(0, 3, "a")
	b := s.NewIntVar(0, 3, "b")
	target := s.NewIntVar(0, 4, "target")
	s.AddConstraint(s.LightElement2(target, a, b, func(x, y int64) int64 { return x * y }))
	require.NoError(t, s.Propagate())
	require.NoError(t, a.SetValue(3))
	require.NoError(t, b.SetValue(2))
	require.True(t, IsFailure(s.Propagate()))
}
