package routing

import (
	"errors"
	"fmt"
)

var (
	// ErrModelClosed is returned when the model is modified after
	// CloseModel.
	ErrModelClosed = errors.New("routing model is closed")
	// ErrModelNotClosed is returned by operations that need a closed model.
	ErrModelNotClosed = errors.New("routing model is not closed")
	// ErrInvalidRoutes reports routes that cannot be turned into an
	// assignment.
	ErrInvalidRoutes = errors.New("invalid routes")
	// ErrNoSolution is returned when a solve ends without any solution.
	ErrNoSolution = errors.New("no solution found")
	// ErrInvalidParameters reports parameters rejected by Validate.
	ErrInvalidParameters = errors.New("invalid routing parameters")
)

// RouteError describes why a route set was rejected. Vehicle or Node is -1
// when it does not apply.
type RouteError struct {
	Vehicle int
	Node    int64
	Reason  string
}

func (e *RouteError) Error() string {
	switch {
	case e.Vehicle >= 0 && e.Node >= 0:
		return fmt.Sprintf("vehicle %d, node %d: %s", e.Vehicle, e.Node, e.Reason)
	case e.Vehicle >= 0:
		return fmt.Sprintf("vehicle %d: %s", e.Vehicle, e.Reason)
	case e.Node >= 0:
		return fmt.Sprintf("node %d: %s", e.Node, e.Reason)
	}
	return e.Reason
}

// Unwrap makes errors.Is(err, ErrInvalidRoutes) hold for every RouteError.
func (e *RouteError) Unwrap() error { return ErrInvalidRoutes }

func routeError(vehicle int, node int64, format string, args ...any) error {
	return &RouteError{Vehicle: vehicle, Node: node, Reason: fmt.Sprintf(format, args...)}
}
