package compose

import (
	"testing"

	"github.com/rawblock/coinjoin-composer/internal/smt"
)

// evalInt evaluates an integer-sorted term under an assignment. Used by the
// builder tests to check formula semantics without a live solver.
func evalInt(t *testing.T, term smt.Term, env map[string]int64) int64 {
	t.Helper()
	switch term.Kind {
	case smt.KindInt:
		return term.Value
	case smt.KindSym:
		v, ok := env[term.Name]
		if !ok {
			t.Fatalf("assignment is missing %q", term.Name)
		}
		return v
	case smt.KindAdd:
		var sum int64
		for _, arg := range term.Args {
			sum += evalInt(t, arg, env)
		}
		return sum
	case smt.KindSub:
		return evalInt(t, term.Args[0], env) - evalInt(t, term.Args[1], env)
	case smt.KindMul:
		return evalInt(t, term.Args[0], env) * evalInt(t, term.Args[1], env)
	case smt.KindIte:
		if evalBool(t, term.Args[0], env) {
			return evalInt(t, term.Args[1], env)
		}
		return evalInt(t, term.Args[2], env)
	}
	t.Fatalf("not an integer-sorted term: kind %d", term.Kind)
	return 0
}

func evalBool(t *testing.T, term smt.Term, env map[string]int64) bool {
	t.Helper()
	switch term.Kind {
	case smt.KindEq:
		return evalInt(t, term.Args[0], env) == evalInt(t, term.Args[1], env)
	case smt.KindLt:
		return evalInt(t, term.Args[0], env) < evalInt(t, term.Args[1], env)
	case smt.KindLe:
		return evalInt(t, term.Args[0], env) <= evalInt(t, term.Args[1], env)
	case smt.KindGt:
		return evalInt(t, term.Args[0], env) > evalInt(t, term.Args[1], env)
	case smt.KindGe:
		return evalInt(t, term.Args[0], env) >= evalInt(t, term.Args[1], env)
	case smt.KindNot:
		return !evalBool(t, term.Args[0], env)
	case smt.KindIte:
		if evalBool(t, term.Args[0], env) {
			return evalBool(t, term.Args[1], env)
		}
		return evalBool(t, term.Args[2], env)
	case smt.KindAnd:
		for _, arg := range term.Args {
			if !evalBool(t, arg, env) {
				return false
			}
		}
		return true
	case smt.KindOr:
		for _, arg := range term.Args {
			if evalBool(t, arg, env) {
				return true
			}
		}
		return false
	}
	t.Fatalf("not a Boolean-sorted term: kind %d", term.Kind)
	return false
}

// satisfies reports whether the assignment satisfies every clause, returning
// the first violated clause index for diagnostics.
func satisfies(t *testing.T, f smt.Formula, env map[string]int64) (bool, int) {
	t.Helper()
	for i, clause := range f.Clauses {
		if !evalBool(t, clause, env) {
			return false, i
		}
	}
	return true, -1
}
