package cp

import "errors"

// Propagation failures. Both abandon the current search branch; IsFailure
// recognises them so that callers can tell them apart from usage errors.
var (
	ErrInconsistent = errors.New("constraint store is inconsistent")
	ErrDomainEmpty  = errors.New("domain became empty")
)

var (
	// ErrInvalidArgument reports a malformed call, such as mismatched
	// array sizes.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSearchLimitReached indicates that a search stopped on a time,
	// branch, failure or solution limit. Solutions collected so far remain
	// valid.
	ErrSearchLimitReached = errors.New("search limit reached")
)

// IsFailure reports whether err is a propagation failure.
func IsFailure(err error) bool {
	return errors.Is(err, ErrInconsistent) || errors.Is(err, ErrDomainEmpty)
}
