package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/smt"
)

// Status is the tri-state outcome of a solver call. Unknown covers both an
// oracle-reported "unknown" and a wall-clock timeout; the optimizer treats
// it exactly like Unsat.
type Status int

const (
	StatusSat Status = iota
	StatusUnsat
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusSat:
		return "sat"
	case StatusUnsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Model is a satisfying assignment, variable name -> integer value.
type Model map[string]int64

// Int returns the value bound to a named symbol. A missing binding is an
// oracle adapter fault, not an unsat condition.
func (m Model) Int(name string) (int64, error) {
	v, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("model has no binding for %q", name)
	}
	return v, nil
}

// MustInt is Int for variables the formula is known to declare; it panics on
// a missing binding, which only happens if the backend returned a malformed
// model.
func (m Model) MustInt(name string) int64 {
	v, err := m.Int(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Result pairs a status with its model. Model is non-nil iff Status is Sat.
type Result struct {
	Status Status
	Model  Model
}

// Oracle is the back-end integer SMT solver boundary. Implementations must
// release all solver-internal state before returning, on every exit path.
type Oracle interface {
	Solve(ctx context.Context, formula smt.Formula, timeout time.Duration) (Result, error)
}
