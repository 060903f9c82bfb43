package compose

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

func legacyScenario() *LegacyScenario {
	return &LegacyScenario{
		Inputs: []models.InputSlot{
			{Party: 1, Amount: 100000},
			{Party: 2, Amount: 50000},
		},
		TxFees:  map[int]int64{1: 0, 2: 10},
		CJFees:  map[int]int64{1: 0, 2: 5},
		Taker:   1,
		Amount:  40000, // pinned main CoinJoin amount
		FeeRate: 1,
	}
}

// legacyAssignment is a hand-checked satisfying assignment for
// legacyScenario with maxOutputs=4: both parties place one output at the
// 40000-sat main amount plus their change, and the taker absorbs the
// 271-sat miner fee.
func legacyAssignment() map[string]int64 {
	return map[string]int64{
		"total_in":                     150000,
		"total_out":                    149729,
		"num_outputs":                  4,
		"max_outputs":                  4,
		"num_outputs_in_anonymity_set": 2,
		"main_cj_amt":                  40000,
		"txsize":                       271, // 11 + 68*2 + 31*4
		"txfee":                        271,

		"party_gives[1]": 100000, "party_gives[2]": 50000,
		"party_gets[1]": 99734, "party_gets[2]": 49995,
		"party_txfee[1]": 0, "party_txfee[2]": 10,
		"party_cjfee[1]": 0, "party_cjfee[2]": 5,

		"input_party[0]": 1, "input_amt[0]": 100000,
		"input_party[1]": 2, "input_amt[1]": 50000,

		"output_party[0]": 1, "output_amt[0]": 40000, "output_not_unique[0]": 1,
		"output_party[1]": 1, "output_amt[1]": 59734, "output_not_unique[1]": 0,
		"output_party[2]": 2, "output_amt[2]": 40000, "output_not_unique[2]": 1,
		"output_party[3]": 2, "output_amt[3]": 9995, "output_not_unique[3]": 0,
	}
}

func TestBuildLegacy_SatisfiedByValidLayout(t *testing.T) {
	f := BuildLegacy(legacyScenario(), 4, nil)
	ok, clause := satisfies(t, f, legacyAssignment())
	if !ok {
		t.Fatalf("valid legacy layout violates clause %d", clause)
	}
}

func TestBuildLegacy_MaxUniqueBound(t *testing.T) {
	// The layout carries two unique change outputs: a cap of 2 holds, a cap
	// of 1 does not.
	loose := int64(2)
	f := BuildLegacy(legacyScenario(), 4, &loose)
	if ok, clause := satisfies(t, f, legacyAssignment()); !ok {
		t.Fatalf("layout with 2 unique outputs violates clause %d under cap 2", clause)
	}

	tight := int64(1)
	f = BuildLegacy(legacyScenario(), 4, &tight)
	if ok, _ := satisfies(t, f, legacyAssignment()); ok {
		t.Fatal("layout with 2 unique outputs should violate cap 1")
	}
}

func TestBuildLegacy_TakerAbsorbsResidualFee(t *testing.T) {
	// Crediting the taker with more than gives + contributions - fees must
	// break the taker accounting clause.
	f := BuildLegacy(legacyScenario(), 4, nil)
	env := legacyAssignment()
	env["party_gets[1]"] = 99800
	if ok, _ := satisfies(t, f, env); ok {
		t.Fatal("inflated taker take should violate the formula")
	}
}

func TestBuildLegacy_MainAnchorRequiresAllParties(t *testing.T) {
	// Moving party 2 off the main amount leaves only one output there,
	// below the |parties| lower bound.
	f := BuildLegacy(legacyScenario(), 4, nil)
	env := legacyAssignment()
	env["output_amt[2]"] = 39000
	env["output_amt[3]"] = 10995
	env["output_not_unique[0]"] = 0
	env["output_not_unique[2]"] = 0
	if ok, _ := satisfies(t, f, env); ok {
		t.Fatal("a one-output main anonymity set should violate the anchor")
	}
}

func TestOptimizeLegacy_Validation(t *testing.T) {
	oracle := &scriptedOracle{}

	ls := legacyScenario()
	ls.Taker = 9
	_, err := OptimizeLegacy(context.Background(), oracle, time.Second, ls)
	if err == nil {
		t.Fatal("Expected a validation error for a taker with no inputs")
	}

	ls = legacyScenario()
	delete(ls.CJFees, 2)
	_, err = OptimizeLegacy(context.Background(), oracle, time.Second, ls)
	if err == nil {
		t.Fatal("Expected a validation error for a missing cjfee entry")
	}
	if len(oracle.calls) != 0 {
		t.Fatal("No solver call may happen for a malformed legacy scenario")
	}
}

func TestOptimizeLegacy_InfeasibleWhenRelaxedProblemFails(t *testing.T) {
	oracle := &scriptedOracle{results: []solver.Result{unsat()}}
	_, err := OptimizeLegacy(context.Background(), oracle, time.Second, legacyScenario())
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("Expected ErrInfeasible, got %v", err)
	}
}
