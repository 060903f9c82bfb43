package solver

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/smt"
)

func TestSplitStatus(t *testing.T) {
	cases := []struct {
		in     string
		status string
	}{
		{"sat\n((x 1))\n", "sat"},
		{"unsat\n(error \"model is not available\")\n", "unsat"},
		{"unknown\n", "unknown"},
		{"timeout\n", "timeout"},
		{"(error \"parse error\")\n", ""},
	}
	for _, tc := range cases {
		status, _ := splitStatus(tc.in)
		if status != tc.status {
			t.Errorf("splitStatus(%q) = %q, want %q", tc.in, status, tc.status)
		}
	}
}

func TestParseModel(t *testing.T) {
	raw := "((total_in 917532415)\n (|input_party[0]| 1)\n (|input_party[1]| (- 1)))\n"
	model, err := parseModel(raw, []string{"total_in", "input_party[0]", "input_party[1]"})
	if err != nil {
		t.Fatalf("parseModel failed: %v", err)
	}

	if v := model.MustInt("total_in"); v != 917532415 {
		t.Errorf("total_in = %d", v)
	}
	if v := model.MustInt("input_party[0]"); v != 1 {
		t.Errorf("input_party[0] = %d", v)
	}
	if v := model.MustInt("input_party[1]"); v != -1 {
		t.Errorf("input_party[1] = %d, want -1", v)
	}
}

func TestParseModelMissingBinding(t *testing.T) {
	raw := "((x 1))\n"
	if _, err := parseModel(raw, []string{"x", "y"}); err == nil {
		t.Fatal("Expected an error for the missing y binding")
	}
}

func TestModelAccessors(t *testing.T) {
	m := Model{"x": 7}
	if _, err := m.Int("nope"); err == nil {
		t.Fatal("Expected an error for an unbound name")
	}
	if v, err := m.Int("x"); err != nil || v != 7 {
		t.Fatalf("Int(x) = %d, %v", v, err)
	}
}

// requireZ3 skips solver integration tests on hosts without a z3 binary.
func requireZ3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("z3"); err != nil {
		t.Skip("z3 not installed; skipping solver integration test")
	}
}

func TestZ3SolveSat(t *testing.T) {
	requireZ3(t)

	b := smt.NewBuilder()
	x := b.Declare("x")
	y := b.Declare("slot[0]")
	b.Assert(smt.Eq(smt.Add(x, y), smt.Int(10)))
	b.Assert(smt.Eq(y, smt.Int(-4)))

	res, err := NewZ3("").Solve(context.Background(), b.Formula(), 10*time.Second)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if res.Status != StatusSat {
		t.Fatalf("Expected sat, got %v", res.Status)
	}
	if v := res.Model.MustInt("x"); v != 14 {
		t.Errorf("x = %d, want 14", v)
	}
	if v := res.Model.MustInt("slot[0]"); v != -4 {
		t.Errorf("slot[0] = %d, want -4", v)
	}
}

func TestZ3SolveUnsat(t *testing.T) {
	requireZ3(t)

	b := smt.NewBuilder()
	x := b.Declare("x")
	b.Assert(smt.Gt(x, smt.Int(5)))
	b.Assert(smt.Lt(x, smt.Int(5)))

	res, err := NewZ3("").Solve(context.Background(), b.Formula(), 10*time.Second)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if res.Status != StatusUnsat {
		t.Fatalf("Expected unsat, got %v", res.Status)
	}
}

func TestZ3MissingBinary(t *testing.T) {
	b := smt.NewBuilder()
	b.Declare("x")
	b.Assert(smt.Gt(smt.Sym("x"), smt.Int(0)))

	_, err := NewZ3("definitely-not-a-solver-binary").Solve(context.Background(), b.Formula(), time.Second)
	if err == nil {
		t.Fatal("Expected a backend-unreachable error")
	}
}
