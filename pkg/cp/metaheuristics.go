// Package cp: metaheuristics
//
// A Metaheuristic steers RunLocalSearch. It is a SearchMonitor (it sees every
// accepted solution through AtSolution) with four extra hooks:
//
//	AcceptDelta     veto a delta before it is completed
//	ApplyBound      constrain the objective of the neighbor being completed
//	AcceptNeighbor  accept or reject the completed neighbor
//	LocalOptimum    called when the neighborhood is exhausted; returning true
//	                restarts the operators from the current solution
//
// GreedyDescent stops at the first local optimum. GuidedLocalSearch,
// SimulatedAnnealing and TabuSearch keep going until a limit is crossed.
package cp

import (
	"math"
)

// Metaheuristic guides a local search.
type Metaheuristic interface {
	SearchMonitor
	AcceptDelta(delta, current *Assignment) bool
	ApplyBound(s *Solver) error
	AcceptNeighbor(s *Solver) bool
	LocalOptimum(s *Solver) bool
	// Bound returns the largest objective value a neighbor may have to be
	// accepted, or math.MaxInt64 when acceptance does not depend on a bound.
	Bound() int64
}

// objectiveTracker holds the state every metaheuristic shares: the objective
// of the current solution and the best objective seen.
type objectiveTracker struct {
	BaseMonitor
	objective *IntVar
	step      int64
	current   int64
	best      int64
	found     bool
}

func newObjectiveTracker(objective *IntVar, step int64) objectiveTracker {
	if step < 1 {
		step = 1
	}
	return objectiveTracker{objective: objective, step: step, current: math.MaxInt64, best: math.MaxInt64}
}

func (t *objectiveTracker) EnterSearch(*Solver) {
	t.current, t.best, t.found = math.MaxInt64, math.MaxInt64, false
}

func (t *objectiveTracker) record() {
	t.current = t.objective.Min()
	t.best = min(t.best, t.current)
	t.found = true
}

func (t *objectiveTracker) AcceptDelta(_, _ *Assignment) bool { return true }

// ---------------------------------------------------------------------------
// Greedy descent

// GreedyDescent accepts only neighbors improving the current objective by at
// least step and stops at the first local optimum.
type GreedyDescent struct {
	objectiveTracker
}

// GreedyDescent returns a descent metaheuristic on objective.
func (s *Solver) GreedyDescent(objective *IntVar, step int64) *GreedyDescent {
	return &GreedyDescent{objectiveTracker: newObjectiveTracker(objective, step)}
}

func (g *GreedyDescent) AtSolution(*Solver) bool { g.record(); return true }

func (g *GreedyDescent) ApplyBound(*Solver) error {
	if !g.found {
		return nil
	}
	return g.objective.SetMax(capSub(g.current, g.step))
}

func (g *GreedyDescent) AcceptNeighbor(*Solver) bool {
	return !g.found || g.objective.Min() <= capSub(g.current, g.step)
}

func (g *GreedyDescent) LocalOptimum(*Solver) bool { return false }

func (g *GreedyDescent) Bound() int64 {
	if !g.found {
		return math.MaxInt64
	}
	return capSub(g.current, g.step)
}

// ---------------------------------------------------------------------------
// Guided local search

type arc struct{ from, to int64 }

// GuidedLocalSearch escapes local optima by penalizing the arcs of the
// current solution that have the highest utility cost/(1+penalty). Neighbors
// are compared on the augmented objective cost + lambda*sum(penalty*cost).
type GuidedLocalSearch struct {
	objectiveTracker
	vars      []*IntVar
	cost      func(i, j int64) int64
	lambda    float64
	penalties map[arc]int64
	values    []int64
	augmented int64
}

// GuidedLocalSearch returns a guided local search over the successor
// variables vars with arc cost function cost. A non positive lambda falls back
// to 0.1.
func (s *Solver) GuidedLocalSearch(objective *IntVar, step int64, vars []*IntVar, cost func(i, j int64) int64, lambda float64) *GuidedLocalSearch {
	if lambda <= 0 {
		lambda = 0.1
	}
	return &GuidedLocalSearch{
		objectiveTracker: newObjectiveTracker(objective, step),
		vars:             vars,
		cost:             cost,
		lambda:           lambda,
		penalties:        make(map[arc]int64),
		values:           make([]int64, len(vars)),
		augmented:        math.MaxInt64,
	}
}

func (g *GuidedLocalSearch) EnterSearch(s *Solver) {
	g.objectiveTracker.EnterSearch(s)
	g.augmented = math.MaxInt64
	for k := range g.penalties {
		delete(g.penalties, k)
	}
}

// penalty returns lambda*sum(penalty*cost) over the arcs selected by next.
func (g *GuidedLocalSearch) penalty(next func(i int) int64) int64 {
	if len(g.penalties) == 0 {
		return 0
	}
	var sum int64
	for i := range g.vars {
		j := next(i)
		if p := g.penalties[arc{int64(i), j}]; p > 0 {
			sum = capAdd(sum, p*g.cost(int64(i), j))
		}
	}
	return int64(g.lambda * float64(sum))
}

func (g *GuidedLocalSearch) AtSolution(*Solver) bool {
	g.record()
	for i, v := range g.vars {
		g.values[i] = v.Min()
	}
	g.augmented = capAdd(g.current, g.penalty(func(i int) int64 { return g.values[i] }))
	return true
}

func (g *GuidedLocalSearch) ApplyBound(*Solver) error { return nil }

// AcceptNeighbor accepts a strictly better augmented objective, or any new
// best real objective.
func (g *GuidedLocalSearch) AcceptNeighbor(*Solver) bool {
	if !g.found {
		return true
	}
	obj := g.objective.Min()
	if obj <= capSub(g.best, g.step) {
		return true
	}
	aug := capAdd(obj, g.penalty(func(i int) int64 { return g.vars[i].Min() }))
	return aug <= capSub(g.augmented, g.step)
}

// LocalOptimum penalizes the arcs of maximal utility and continues.
func (g *GuidedLocalSearch) LocalOptimum(*Solver) bool {
	if !g.found {
		return false
	}
	bestUtility := -1.0
	var selected []arc
	for i := range g.vars {
		a := arc{int64(i), g.values[i]}
		if a.from == a.to {
			continue
		}
		u := float64(g.cost(a.from, a.to)) / float64(1+g.penalties[a])
		switch {
		case u > bestUtility:
			bestUtility = u
			selected = append(selected[:0], a)
		case u == bestUtility:
			selected = append(selected, a)
		}
	}
	for _, a := range selected {
		g.penalties[a]++
	}
	g.augmented = capAdd(g.current, g.penalty(func(i int) int64 { return g.values[i] }))
	return true
}

func (g *GuidedLocalSearch) Bound() int64 { return math.MaxInt64 }

// ---------------------------------------------------------------------------
// Simulated annealing

// SimulatedAnnealing accepts a neighbor whose objective is at most
// current - step + T*(-ln u) with u uniform in (0, 1] and T = T0/iteration.
// The iteration counter starts at zero, so the search is a pure descent until
// the first local optimum.
type SimulatedAnnealing struct {
	objectiveTracker
	temperature0 float64
	iteration    int64
	s            *Solver
}

// SimulatedAnnealing returns an annealing metaheuristic with initial
// temperature t0 (100 when non positive).
func (s *Solver) SimulatedAnnealing(objective *IntVar, step int64, t0 float64) *SimulatedAnnealing {
	if t0 <= 0 {
		t0 = 100
	}
	return &SimulatedAnnealing{objectiveTracker: newObjectiveTracker(objective, step), temperature0: t0, s: s}
}

// Temperature returns the current temperature.
func (a *SimulatedAnnealing) Temperature() float64 {
	if a.iteration <= 0 {
		return 0
	}
	return a.temperature0 / float64(a.iteration)
}

func (a *SimulatedAnnealing) EnterSearch(s *Solver) {
	a.objectiveTracker.EnterSearch(s)
	a.iteration = 0
}

func (a *SimulatedAnnealing) AtSolution(*Solver) bool { a.record(); return true }

func (a *SimulatedAnnealing) ApplyBound(*Solver) error {
	if !a.found {
		return nil
	}
	u := 1 - a.s.rand.Float64()
	energy := a.Temperature() * -math.Log(u)
	bound := capSub(a.current, a.step)
	if energy > 0 {
		if energy >= float64(math.MaxInt64/2) {
			return nil
		}
		bound = capAdd(bound, int64(energy))
	}
	return a.objective.SetMax(bound)
}

func (a *SimulatedAnnealing) AcceptNeighbor(*Solver) bool {
	if a.iteration > 0 {
		a.iteration++
	}
	return true
}

func (a *SimulatedAnnealing) LocalOptimum(*Solver) bool {
	a.iteration++
	return a.found
}

func (a *SimulatedAnnealing) Bound() int64 { return math.MaxInt64 }

// ---------------------------------------------------------------------------
// Tabu search

type tabuEntry struct {
	v     int
	value int64
	stamp int64
}

// TabuSearch accepts worse neighbors after a local optimum while forbidding
// recently undone assignments. After each accepted move, every changed
// variable records its new value in the keep list and its old value in the
// forbid list. A neighbor is allowed when at least factor of the listed
// conditions hold (keep: var == value, forbid: var != value) or when it
// improves on the best objective (aspiration).
type TabuSearch struct {
	objectiveTracker
	vars         []*IntVar
	keepTenure   int64
	forbidTenure int64
	factor       float64
	keep         []tabuEntry
	forbid       []tabuEntry
	last         []int64
	stamp        int64
}

// TabuSearch returns a tabu search over vars. Non positive tenures default
// to 10 and a factor outside (0, 1] to 0.8.
func (s *Solver) TabuSearch(objective *IntVar, step int64, vars []*IntVar, keepTenure, forbidTenure int64, factor float64) *TabuSearch {
	if keepTenure <= 0 {
		keepTenure = 10
	}
	if forbidTenure <= 0 {
		forbidTenure = 10
	}
	if factor <= 0 || factor > 1 {
		factor = 0.8
	}
	return &TabuSearch{
		objectiveTracker: newObjectiveTracker(objective, step),
		vars:             vars,
		keepTenure:       keepTenure,
		forbidTenure:     forbidTenure,
		factor:           factor,
		last:             make([]int64, len(vars)),
	}
}

func (t *TabuSearch) EnterSearch(s *Solver) {
	t.objectiveTracker.EnterSearch(s)
	t.keep, t.forbid = t.keep[:0], t.forbid[:0]
	t.stamp = 0
}

func (t *TabuSearch) AtSolution(*Solver) bool {
	if t.found && t.stamp > 0 {
		for i, v := range t.vars {
			if value := v.Min(); value != t.last[i] {
				t.keep = append(t.keep, tabuEntry{v: i, value: value, stamp: t.stamp})
				t.forbid = append(t.forbid, tabuEntry{v: i, value: t.last[i], stamp: t.stamp})
			}
		}
	}
	for i, v := range t.vars {
		t.last[i] = v.Min()
	}
	t.record()
	return true
}

func (t *TabuSearch) ApplyBound(*Solver) error {
	if t.current == math.MaxInt64 {
		return nil
	}
	return t.objective.SetMax(capSub(t.current, t.step))
}

func (t *TabuSearch) AcceptNeighbor(*Solver) bool {
	if !t.found || t.objective.Min() <= capSub(t.best, t.step) {
		return true
	}
	total := len(t.keep) + len(t.forbid)
	if total == 0 {
		return true
	}
	held := 0
	for _, e := range t.keep {
		if t.vars[e.v].Min() == e.value {
			held++
		}
	}
	for _, e := range t.forbid {
		if t.vars[e.v].Min() != e.value {
			held++
		}
	}
	return float64(held) >= t.factor*float64(total)
}

// LocalOptimum ages the tabu lists and lifts the improvement requirement for
// the next move.
func (t *TabuSearch) LocalOptimum(*Solver) bool {
	t.stamp++
	t.keep = ageTabu(t.keep, t.stamp-t.keepTenure)
	t.forbid = ageTabu(t.forbid, t.stamp-t.forbidTenure)
	t.current = math.MaxInt64
	return t.found
}

func ageTabu(list []tabuEntry, oldest int64) []tabuEntry {
	kept := list[:0]
	for _, e := range list {
		if e.stamp >= oldest {
			kept = append(kept, e)
		}
	}
	return kept
}

func (t *TabuSearch) Bound() int64 {
	if t.current == math.MaxInt64 {
		return math.MaxInt64
	}
	return capSub(t.current, t.step)
}
