// Package cp is a small finite-domain constraint runtime and the element
// propagation engine built on it.
//
// The runtime keeps mutable integer domains and records every change on a
// scoped undo log (the trail). A search pushes a checkpoint before each
// decision and pops back to it on failure, so any state written through the
// trail, including the reversible cells returned by NewRev, is rolled back
// automatically. Constraints react to domain events through demons that are
// queued at normal or delayed priority and run until a fixed point.
//
// Element expressions (value of an array or evaluator at an index variable)
// cache their min and max supports in reversible cells and rescan the index
// domain only when a support leaves it. Local search is provided by a driver
// that takes an operator, optional filters, a finalizer decision builder and
// a metaheuristic, and by a family of path operators over successor
// variables.
//
// Typical usage:
//
//	s := cp.NewSolver("demo")
//	idx := s.NewIntVar(0, 4, "idx")
//	e := s.Element([]int64{3, 5, 5, 7, 9}, idx)
//	if err := e.SetRange(5, 7); err != nil { ... }
//	if err := s.Propagate(); err != nil { ... }
//	// idx is now in [1, 3]
package cp
