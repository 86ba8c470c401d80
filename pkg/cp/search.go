// Package cp: depth-first search
//
// The search is iterative: an explicit stack of frames replaces recursion.
// Each frame stores the trail height taken before its decision was applied,
// the decision itself and whether it has already been refuted.
//
//	node:    ask the builder for a decision, propagate
//	leaf:    ask monitors to accept the solution; report it; keep searching
//	         unless a monitor or the caller wants to stop
//	failure: pop frames, restoring the trail, until a frame can still be
//	         refuted; the search is over when the stack is empty
//
// Monitors observe the search and can prune it (BeginNode returning a
// failure), stop it (ErrSearchLimitReached) or reject leaves.
package cp

import (
	"context"
	"errors"
	"math"
	"time"
)

// SearchMonitor observes a search.
type SearchMonitor interface {
	EnterSearch(s *Solver)
	ExitSearch(s *Solver)
	// BeginNode is called before a node is expanded. A failure error prunes
	// the node; ErrSearchLimitReached stops the search.
	BeginNode(s *Solver) error
	// AcceptSolution may veto a leaf.
	AcceptSolution(s *Solver) bool
	// AtSolution is called for accepted leaves; returning false stops the
	// search.
	AtSolution(s *Solver) bool
}

// BaseMonitor implements SearchMonitor with no-ops. Embed it to override
// only the callbacks of interest.
type BaseMonitor struct{}

func (BaseMonitor) EnterSearch(*Solver)         {}
func (BaseMonitor) ExitSearch(*Solver)          {}
func (BaseMonitor) BeginNode(*Solver) error     { return nil }
func (BaseMonitor) AcceptSolution(*Solver) bool { return true }
func (BaseMonitor) AtSolution(*Solver) bool     { return true }

type searchFrame struct {
	mark     int
	decision Decision
	refuted  bool
}

// Solve explores the tree of db and reports whether an accepted solution was
// found. The solver state is restored when Solve returns. The returned error
// is ErrSearchLimitReached when a limit stopped the search, the context error
// on cancellation and nil when the tree was exhausted or a monitor stopped
// it.
func (s *Solver) Solve(ctx context.Context, db DecisionBuilder, monitors ...SearchMonitor) (bool, error) {
	mark := s.checkpoint()
	defer s.backtrack(mark)
	return s.search(ctx, db, monitors, false)
}

// SolveAndCommit searches for the first accepted solution and keeps the
// solver in that state. When no solution is found the state is restored.
func (s *Solver) SolveAndCommit(ctx context.Context, db DecisionBuilder, monitors ...SearchMonitor) (bool, error) {
	mark := s.checkpoint()
	found, err := s.search(ctx, db, monitors, true)
	if !found {
		s.backtrack(mark)
	}
	return found, err
}

func (s *Solver) search(ctx context.Context, db DecisionBuilder, monitors []SearchMonitor, commit bool) (bool, error) {
	start := s.clock.Now()
	for _, m := range monitors {
		m.EnterSearch(s)
	}
	defer func() {
		for _, m := range monitors {
			m.ExitSearch(s)
		}
		s.stats.WallTime += s.clock.Now().Sub(start)
	}()

	if err := s.Propagate(); err != nil {
		if IsFailure(err) {
			s.stats.Failures++
			return false, nil
		}
		return false, err
	}

	var stack []searchFrame
	found := false
	for {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		failed := false
		for _, m := range monitors {
			if err := m.BeginNode(s); err != nil {
				if errors.Is(err, ErrSearchLimitReached) {
					return found, err
				}
				if !IsFailure(err) {
					return found, err
				}
				failed = true
				break
			}
		}

		if !failed {
			d, err := db.Next(s)
			if err == nil {
				err = s.Propagate()
			}
			switch {
			case err != nil:
				if !IsFailure(err) {
					return found, err
				}
				failed = true
			case d == nil:
				accepted := true
				for _, m := range monitors {
					if !m.AcceptSolution(s) {
						accepted = false
						break
					}
				}
				if accepted {
					found = true
					s.stats.Solutions++
					more := true
					for _, m := range monitors {
						if !m.AtSolution(s) {
							more = false
						}
					}
					if commit || !more {
						return true, nil
					}
				}
				failed = true
			default:
				s.stats.Branches++
				stack = append(stack, searchFrame{mark: s.checkpoint(), decision: d})
				s.stats.recordDepth(len(stack))
				err := d.Apply(s)
				if err == nil {
					err = s.Propagate()
				}
				if err != nil {
					if !IsFailure(err) {
						return found, err
					}
					failed = true
				}
			}
		}

		if !failed {
			continue
		}
		s.stats.Failures++
		resumed := false
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			s.backtrack(f.mark)
			if f.refuted {
				stack = stack[:len(stack)-1]
				continue
			}
			f.refuted = true
			err := f.decision.Refute(s)
			if err == nil {
				err = s.Propagate()
			}
			if err == nil {
				resumed = true
				break
			}
			if !IsFailure(err) {
				return found, err
			}
			s.stats.Failures++
		}
		if !resumed {
			return found, nil
		}
	}
}

// ---------------------------------------------------------------------------
// Limits

// SearchLimit stops a search after a time budget, a number of branches,
// failures or solutions. Zero fields mean no limit.
type SearchLimit struct {
	BaseMonitor
	s *Solver

	Time      time.Duration
	Branches  int64
	Failures  int64
	Solutions int64

	start        time.Time
	baseBranches int64
	baseFailures int64
	solutions    int64
	crossed      bool
	cumulative   bool
	initialized  bool
}

// MakeLimit returns a limit. It is reset every time a search it monitors
// starts.
func (s *Solver) MakeLimit(timeLimit time.Duration, branches, failures, solutions int64) *SearchLimit {
	return &SearchLimit{s: s, Time: timeLimit, Branches: branches, Failures: failures, Solutions: solutions}
}

// MakeCumulativeLimit returns a limit whose budget is shared by every search
// it monitors; it is only reset by Init.
func (s *Solver) MakeCumulativeLimit(timeLimit time.Duration, branches, failures, solutions int64) *SearchLimit {
	l := s.MakeLimit(timeLimit, branches, failures, solutions)
	l.cumulative = true
	return l
}

// Init resets the counters and the start time.
func (l *SearchLimit) Init() {
	l.start = l.s.clock.Now()
	l.baseBranches = l.s.stats.Branches
	l.baseFailures = l.s.stats.Failures
	l.solutions = 0
	l.crossed = false
	l.initialized = true
}

// EnterSearch resets non-cumulative limits.
func (l *SearchLimit) EnterSearch(*Solver) {
	if !l.cumulative || !l.initialized {
		l.Init()
	}
}

// Elapsed returns the time since the last Init.
func (l *SearchLimit) Elapsed() time.Duration { return l.s.clock.Now().Sub(l.start) }

// Crossed reports whether the limit was reached.
func (l *SearchLimit) Crossed() bool { return l.crossed }

// Check updates and returns the crossed state.
func (l *SearchLimit) Check() bool {
	if l.crossed {
		return true
	}
	switch {
	case l.Time > 0 && l.Elapsed() >= l.Time,
		l.Branches > 0 && l.s.stats.Branches-l.baseBranches >= l.Branches,
		l.Failures > 0 && l.s.stats.Failures-l.baseFailures >= l.Failures,
		l.Solutions > 0 && l.solutions >= l.Solutions:
		l.crossed = true
	}
	return l.crossed
}

// BeginNode stops the search once the limit is crossed.
func (l *SearchLimit) BeginNode(*Solver) error {
	if l.Check() {
		return ErrSearchLimitReached
	}
	return nil
}

// AtSolution counts solutions and stops when the solution limit is met.
func (l *SearchLimit) AtSolution(*Solver) bool {
	l.solutions++
	return !l.Check()
}

// nodeCheck exposes only the node check of a limit, so that nested searches
// are bounded by it without counting their leaves as solutions.
type nodeCheck struct {
	BaseMonitor
	l *SearchLimit
}

func (n nodeCheck) BeginNode(s *Solver) error { return n.l.BeginNode(s) }

// ---------------------------------------------------------------------------
// Objective

// OptimizeVar is a minimization monitor: after each solution it requires the
// next one to improve the objective by at least Step.
type OptimizeVar struct {
	BaseMonitor
	Objective *IntVar
	Step      int64

	best  int64
	found bool
}

// Minimize returns a monitor minimizing obj.
func (s *Solver) Minimize(obj *IntVar, step int64) *OptimizeVar {
	if step < 1 {
		step = 1
	}
	return &OptimizeVar{Objective: obj, Step: step, best: math.MaxInt64}
}

// Best returns the best objective value seen.
func (o *OptimizeVar) Best() int64 { return o.best }

func (o *OptimizeVar) EnterSearch(*Solver) {
	o.best = math.MaxInt64
	o.found = false
}

func (o *OptimizeVar) BeginNode(*Solver) error {
	if !o.found {
		return nil
	}
	return o.Objective.SetMax(capSub(o.best, o.Step))
}

func (o *OptimizeVar) AcceptSolution(*Solver) bool {
	return !o.found || o.Objective.Min() <= capSub(o.best, o.Step)
}

func (o *OptimizeVar) AtSolution(*Solver) bool {
	o.best = o.Objective.Min()
	o.found = true
	return true
}

// ---------------------------------------------------------------------------
// Solution collection

// SolutionCollector stores solutions as copies of a prototype assignment.
type SolutionCollector struct {
	BaseMonitor
	prototype *Assignment
	solutions []*Assignment
	mode      collectMode
}

type collectMode int

const (
	collectAll collectMode = iota
	collectLast
	collectBest
	collectFirst
)

// AllSolutionCollector keeps every solution.
func (s *Solver) AllSolutionCollector(prototype *Assignment) *SolutionCollector {
	return &SolutionCollector{prototype: prototype, mode: collectAll}
}

// LastSolutionCollector keeps the latest solution.
func (s *Solver) LastSolutionCollector(prototype *Assignment) *SolutionCollector {
	return &SolutionCollector{prototype: prototype, mode: collectLast}
}

// FirstSolutionCollector keeps the first solution.
func (s *Solver) FirstSolutionCollector(prototype *Assignment) *SolutionCollector {
	return &SolutionCollector{prototype: prototype, mode: collectFirst}
}

// BestValueSolutionCollector keeps the solution with the smallest objective.
// The prototype must carry an objective.
func (s *Solver) BestValueSolutionCollector(prototype *Assignment) *SolutionCollector {
	return &SolutionCollector{prototype: prototype, mode: collectBest}
}

// AtSolution snapshots the current solver state.
func (c *SolutionCollector) AtSolution(*Solver) bool {
	snap := c.prototype.Clone()
	snap.Store()
	switch c.mode {
	case collectAll:
		c.solutions = append(c.solutions, snap)
	case collectLast:
		c.solutions = append(c.solutions[:0], snap)
	case collectFirst:
		if len(c.solutions) == 0 {
			c.solutions = append(c.solutions, snap)
		}
	case collectBest:
		if len(c.solutions) == 0 || snap.ObjectiveValue() < c.solutions[0].ObjectiveValue() {
			c.solutions = append(c.solutions[:0], snap)
		}
	}
	return true
}

// Add offers an assignment that was not produced by a search the collector
// monitors.
func (c *SolutionCollector) Add(a *Assignment) {
	snap := a.Clone()
	switch c.mode {
	case collectFirst:
		if len(c.solutions) > 0 {
			return
		}
	case collectBest:
		if len(c.solutions) > 0 && snap.ObjectiveValue() >= c.solutions[0].ObjectiveValue() {
			return
		}
	case collectAll:
		c.solutions = append(c.solutions, snap)
		return
	}
	c.solutions = append(c.solutions[:0], snap)
}

// SolutionCount returns the number of stored solutions.
func (c *SolutionCollector) SolutionCount() int { return len(c.solutions) }

// Solution returns stored solution i.
func (c *SolutionCollector) Solution(i int) *Assignment { return c.solutions[i] }

// Reset drops the stored solutions.
func (c *SolutionCollector) Reset() { c.solutions = c.solutions[:0] }

// ---------------------------------------------------------------------------
// Logging

// SearchLog logs progress at debug level every Period branches and at each
// solution.
type SearchLog struct {
	BaseMonitor
	Period    int64
	Objective *IntVar

	nodes int64
}

// MakeSearchLog returns a search log monitor.
func (s *Solver) MakeSearchLog(period int64, objective *IntVar) *SearchLog {
	return &SearchLog{Period: period, Objective: objective}
}

func (l *SearchLog) EnterSearch(s *Solver) {
	l.nodes = 0
	s.log.Debug().Str("solver", s.name).Msg("search started")
}

func (l *SearchLog) BeginNode(s *Solver) error {
	l.nodes++
	if l.Period > 0 && l.nodes%l.Period == 0 {
		s.log.Debug().Int64("nodes", l.nodes).Int64("branches", s.stats.Branches).
			Int64("failures", s.stats.Failures).Msg("search progress")
	}
	return nil
}

func (l *SearchLog) AtSolution(s *Solver) bool {
	ev := s.log.Debug().Int64("solutions", s.stats.Solutions+1)
	if l.Objective != nil {
		ev = ev.Int64("objective", l.Objective.Min())
	}
	ev.Msg("solution")
	return true
}

func (l *SearchLog) ExitSearch(s *Solver) {
	s.log.Debug().Int64("branches", s.stats.Branches).Int64("failures", s.stats.Failures).
		Int64("solutions", s.stats.Solutions).Msg("search finished")
}
