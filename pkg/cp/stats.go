package cp

// stats.go: search statistics

import (
	"fmt"
	"time"
)

// SearchStats holds counters accumulated by a Solver across searches.
type SearchStats struct {
	// Tree search
	Branches  int64 // Decisions applied
	Failures  int64 // Failed nodes (propagation failures and refuted leaves)
	Solutions int64 // Solutions accepted by every monitor
	MaxDepth  int   // Deepest decision stack seen

	// Local search
	Neighbors         int64 // Neighbors produced by operators
	FilteredNeighbors int64 // Neighbors rejected by filters
	AcceptedNeighbors int64 // Neighbors that became the current solution

	// Propagation
	Demons int64 // Demon executions

	WallTime time.Duration // Time spent inside Solve and RunLocalSearch
}

func (s *SearchStats) recordDepth(depth int) {
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}
}

// String returns a formatted summary.
func (s SearchStats) String() string {
	return fmt.Sprintf(
		"Search Statistics:\n"+
			"  Tree: %d branches, %d failures, %d solutions, max depth %d\n"+
			"  Local search: %d neighbors, %d filtered, %d accepted\n"+
			"  Propagation: %d demons, %v wall time",
		s.Branches, s.Failures, s.Solutions, s.MaxDepth,
		s.Neighbors, s.FilteredNeighbors, s.AcceptedNeighbors,
		s.Demons, s.WallTime,
	)
}
