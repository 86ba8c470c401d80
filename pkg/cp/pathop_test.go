package cp

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// pathFixture holds successor variables and a current solution over them.
type pathFixture struct {
	s       *Solver
	nexts   []*IntVar
	current *Assignment
	values  []int64
}

// newPathFixture builds a fixture from successor values; values >= len(next)
// are path ends.
func newPathFixture(next []int64) *pathFixture {
	s := NewSolver("paths")
	n := int64(len(next))
	f := &pathFixture{s: s, values: next}
	for i := range next {
		f.nexts = append(f.nexts, s.NewIntVar(0, 2*n, fmt.Sprintf("next%d", i)))
	}
	f.current = s.NewAssignment()
	for i, v := range f.nexts {
		f.current.SetValue(v, next[i])
	}
	return f
}

// neighbors enumerates every neighbor of op as successor arrays. Released
// variables are reported as -1.
func (f *pathFixture) neighbors(op LocalSearchOperator) [][]int64 {
	op.Start(f.current)
	var out [][]int64
	delta := f.s.NewAssignment()
	for op.MakeNextNeighbor(delta) {
		next := append([]int64(nil), f.values...)
		for _, e := range delta.Elements() {
			i := f.index(e.Var)
			if e.Activated {
				next[i] = e.Value()
			} else {
				next[i] = -1
			}
		}
		out = append(out, next)
		delta.Clear()
		if len(out) > 10000 {
			panic("neighbor enumeration does not stop")
		}
	}
	return out
}

func (f *pathFixture) index(v *IntVar) int {
	for i, x := range f.nexts {
		if x == v {
			return i
		}
	}
	panic("unknown variable")
}

// tour returns the nodes visited from start, or nil when the walk repeats a
// node.
func tour(next []int64, start int64) []int64 {
	n := int64(len(next))
	var out []int64
	seen := map[int64]bool{}
	for node := start; node < n; node = next[node] {
		if seen[node] || next[node] == node {
			return nil
		}
		seen[node] = true
		out = append(out, node)
	}
	return out
}

// validPaths checks that the paths from starts cover every active node once
// and that every other node is inactive.
func validPaths(next []int64, starts []int64) error {
	covered := map[int64]bool{}
	ends := map[int64]bool{}
	for _, s := range starts {
		nodes := tour(next, s)
		if nodes == nil {
			return fmt.Errorf("path from %d is broken: %v", s, next)
		}
		for _, node := range nodes {
			if covered[node] {
				return fmt.Errorf("node %d visited twice: %v", node, next)
			}
			covered[node] = true
		}
		end := next[nodes[len(nodes)-1]]
		if ends[end] {
			return fmt.Errorf("end %d reached twice: %v", end, next)
		}
		ends[end] = true
	}
	for i, v := range next {
		if !covered[int64(i)] && v != int64(i) {
			return fmt.Errorf("node %d is neither visited nor inactive: %v", i, next)
		}
	}
	return nil
}

func orders(nbs [][]int64, start int64) []string {
	set := map[string]bool{}
	for _, nb := range nbs {
		set[fmt.Sprint(tour(nb, start))] = true
	}
	var out []string
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestTwoOpt_Neighbors(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 3, 4})
	got := f.neighbors(TwoOpt(f.nexts, nil))
	want := [][]int64{
		{2, 3, 1, 4},
		{3, 4, 1, 2},
		{1, 3, 4, 2},
	}
	require.ElementsMatch(t, want, got)
}

func TestRelocate_SingleNodeMoves(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 3, 4})
	nbs := f.neighbors(Relocate(f.nexts, nil, 1, true))
	for _, nb := range nbs {
		require.NoError(t, validPaths(nb, []int64{0}))
	}
	want := []string{"[0 1 3 2]", "[0 2 1 3]", "[0 2 3 1]", "[0 3 1 2]"}
	if diff := cmp.Diff(want, orders(nbs, 0)); diff != "" {
		t.Fatalf("relocate orders mismatch (-want +got):\n%s", diff)
	}
}

func TestOrOpt_MovesChains(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 3, 4, 5})
	nbs := f.neighbors(OrOpt(f.nexts, nil))
	require.Contains(t, orders(nbs, 0), "[0 3 1 2 4]", "chain (1 2) after 3")
	require.Contains(t, orders(nbs, 0), "[0 4 1 2 3]", "chain (1 2 3) after 4")
}

func TestExchange_SwapsNodes(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 3, 4})
	nbs := f.neighbors(Exchange(f.nexts, nil))
	require.NotEmpty(t, nbs)
	for _, nb := range nbs {
		require.NoError(t, validPaths(nb, []int64{0}))
	}
	require.Contains(t, orders(nbs, 0), "[0 3 2 1]")
}

func TestCross_ExchangesPathHeads(t *testing.T) {
	// 0 -> 2 -> 3 -> end 6, 1 -> 4 -> 5 -> end 7
	f := newPathFixture([]int64{2, 4, 3, 6, 5, 7})
	nbs := f.neighbors(Cross(f.nexts, nil))
	require.NotEmpty(t, nbs)
	for _, nb := range nbs {
		require.NoError(t, validPaths(nb, []int64{0, 1}))
	}
	found := false
	for _, nb := range nbs {
		if cmp.Equal(tour(nb, 0), []int64{0, 4, 3}) && cmp.Equal(tour(nb, 1), []int64{1, 2, 5}) {
			found = true
		}
	}
	require.True(t, found, "first nodes swapped")
}

func TestMakeActive_InsertsInactiveNode(t *testing.T) {
	// Node 3 is inactive.
	f := newPathFixture([]int64{1, 2, 5, 3, 6})
	// paths: 0 -> 1 -> 2 -> end 5; 4 -> end 6
	nbs := f.neighbors(MakeActiveOperator(f.nexts, nil))
	require.Len(t, nbs, 4, "one insertion after each active node")
	for _, nb := range nbs {
		require.NoError(t, validPaths(nb, []int64{0, 4}))
		require.NotEqual(t, int64(3), nb[3])
	}
}

func TestMakeInactive_RemovesOneNode(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 3, 4})
	nbs := f.neighbors(MakeInactiveOperator(f.nexts, nil))
	require.Len(t, nbs, 3)
	for _, nb := range nbs {
		require.NoError(t, validPaths(nb, []int64{0}))
		inactive := 0
		for i, v := range nb {
			if v == int64(i) {
				inactive++
			}
		}
		require.Equal(t, 1, inactive)
	}
}

func TestSwapActive_ReplacesNode(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 4, 3})
	nbs := f.neighbors(SwapActiveOperator(f.nexts, nil))
	require.NotEmpty(t, nbs)
	for _, nb := range nbs {
		require.NoError(t, validPaths(nb, []int64{0}))
		require.NotEqual(t, int64(3), nb[3], "node 3 becomes active")
	}
}

func TestPathLNS_ReleasesChunks(t *testing.T) {
	f := newPathFixture([]int64{1, 2, 3, 4})
	nbs := f.neighbors(PathLNS(f.nexts, nil, 1, 2, false))
	require.NotEmpty(t, nbs)
	require.Equal(t, []int64{-1, -1, 3, 4}, nbs[0])
}

func TestHeldKarp_MatchesBruteForce(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	properties.Property("optimal cycle", prop.ForAll(
		func(weights []int64) bool {
			const n = 5
			cost := make([][]int64, n)
			for i := range cost {
				cost[i] = weights[i*n : (i+1)*n]
			}
			got := heldKarp(cost)
			if len(got) != n+1 || got[0] != 0 || got[n] != 0 {
				return false
			}
			return cycleCost(cost, got) == bruteCycle(cost)
		},
		gen.SliceOfN(25, gen.Int64Range(0, 50)),
	))
	properties.TestingRun(t)
}

func cycleCost(cost [][]int64, tour []int) int64 {
	var c int64
	for i := 0; i+1 < len(tour); i++ {
		c += cost[tour[i]][tour[i+1]]
	}
	return c
}

func bruteCycle(cost [][]int64) int64 {
	n := len(cost)
	best := int64(-1)
	perm := make([]int, 0, n+1)
	used := make([]bool, n)
	var rec func()
	rec = func() {
		if len(perm) == n {
			c := cycleCost(cost, append(perm, 0))
			if best < 0 || c < best {
				best = c
			}
			return
		}
		for j := 1; j < n; j++ {
			if !used[j] {
				used[j] = true
				perm = append(perm, j)
				rec()
				perm = perm[:len(perm)-1]
				used[j] = false
			}
		}
	}
	perm = append(perm, 0)
	rec()
	return best
}

// TestPathOperators_KeepPathsValid runs every operator on random single path
// solutions and checks each neighbor.
func TestPathOperators_KeepPathsValid(t *testing.T) {
	cost := func(i, j, _ int64) int64 { return (i*7 + j*3) % 11 }
	operators := map[string]func(nexts []*IntVar) LocalSearchOperator{
		"two-opt":    func(n []*IntVar) LocalSearchOperator { return TwoOpt(n, nil) },
		"relocate":   func(n []*IntVar) LocalSearchOperator { return Relocate(n, nil, 2, false) },
		"or-opt":     func(n []*IntVar) LocalSearchOperator { return OrOpt(n, nil) },
		"exchange":   func(n []*IntVar) LocalSearchOperator { return Exchange(n, nil) },
		"tsp-opt":    func(n []*IntVar) LocalSearchOperator { return TSPOpt(n, nil, cost, 4) },
		"tsp-lns":    func(n []*IntVar) LocalSearchOperator { return TSPLns(n, nil, cost, 3) },
		"lk":         func(n []*IntVar) LocalSearchOperator { return LinKernighan(n, nil, cost, false) },
		"lk-3opt":    func(n []*IntVar) LocalSearchOperator { return LinKernighan(n, nil, cost, true) },
		"make-inact": func(n []*IntVar) LocalSearchOperator { return MakeInactiveOperator(n, nil) },
	}
	for name, build := range operators {
		build := build
		t.Run(name, func(t *testing.T) {
			properties := gopter.NewProperties(propertyParameters())
			properties.Property("neighbors are valid paths", prop.ForAll(
				func(keys []int64) bool {
					next := permutationPath(keys)
					f := newPathFixture(next)
					for _, nb := range f.neighbors(build(f.nexts)) {
						if err := validPaths(nb, []int64{0}); err != nil {
							t.Log(err)
							return false
						}
					}
					return true
				},
				gen.SliceOfN(7, gen.Int64Range(0, 1000)),
			))
			properties.TestingRun(t)
		})
	}
}

// permutationPath turns random keys into a single path starting at node 0
// over len(keys)+1 nodes, ending at node len(keys)+1.
func permutationPath(keys []int64) []int64 {
	n := len(keys) + 1
	order := make([]int64, 0, n)
	for i := 1; i < n; i++ {
		order = append(order, int64(i))
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]-1] < keys[order[b]-1] })
	next := make([]int64, n)
	prev := int64(0)
	for _, node := range order {
		next[prev] = node
		prev = node
	}
	next[prev] = int64(n)
	return next
}
