package compose

import (
	"testing"

	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

func decodeModel() solver.Model {
	return solver.Model{
		"max_outputs":     4,
		"num_outputs":     3,
		"anonymity_score": 2,
		"txfee":           2000,
		"txsize":          209,

		"input_party[0]": 1, "input_amt[0]": 100000,
		"input_party[1]": -1, "input_amt[1]": 0,
		"input_party[2]": 2, "input_amt[2]": 50000,

		"output_party[0]": 1, "output_amt[0]": 40000,
		"output_party[1]": 2, "output_amt[1]": 40000,
		"output_party[2]": -1, "output_amt[2]": 0,
		"output_party[3]": 1, "output_amt[3]": 58000,
	}
}

func decodeScenario() *models.Scenario {
	return &models.Scenario{
		Inputs: []models.InputSlot{
			{Party: 1, Amount: 100000, Txid: "aa", Vout: 0},
			{Party: 1, Amount: 30000},
			{Party: 2, Amount: 50000},
		},
	}
}

func TestDecode_SkipsSentinelSlots(t *testing.T) {
	tx, err := Decode(decodeModel(), decodeScenario())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(tx.Inputs) != 2 {
		t.Fatalf("Expected 2 selected inputs, got %d", len(tx.Inputs))
	}
	if len(tx.Outputs) != 3 {
		t.Fatalf("Expected 3 outputs, got %d", len(tx.Outputs))
	}
	for _, in := range tx.Inputs {
		if in.Party == -1 {
			t.Error("Sentinel input slot leaked into the decoded transaction")
		}
	}
}

func TestDecode_OutputsSortedDescending(t *testing.T) {
	tx, err := Decode(decodeModel(), decodeScenario())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i := 1; i < len(tx.Outputs); i++ {
		if tx.Outputs[i].Amount > tx.Outputs[i-1].Amount {
			t.Fatalf("Outputs not sorted descending: %d sats after %d sats",
				tx.Outputs[i].Amount, tx.Outputs[i-1].Amount)
		}
	}
	if tx.Outputs[0].Amount != 58000 {
		t.Errorf("Largest output should lead, got %d", tx.Outputs[0].Amount)
	}
}

func TestDecode_SameMultisetsAcrossRuns(t *testing.T) {
	// Ordering may differ between runs (randomized), the multisets may not.
	type pair struct {
		party  int
		amount int64
	}
	count := func(tx *models.Transaction) (map[pair]int, map[pair]int) {
		ins := make(map[pair]int)
		outs := make(map[pair]int)
		for _, in := range tx.Inputs {
			ins[pair{in.Party, in.Amount}]++
		}
		for _, out := range tx.Outputs {
			outs[pair{out.Party, out.Amount}]++
		}
		return ins, outs
	}

	first, err := Decode(decodeModel(), decodeScenario())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	firstIns, firstOuts := count(first)

	for run := 0; run < 10; run++ {
		tx, err := Decode(decodeModel(), decodeScenario())
		if err != nil {
			t.Fatalf("Decode failed on run %d: %v", run, err)
		}
		ins, outs := count(tx)
		for k, v := range firstIns {
			if ins[k] != v {
				t.Fatalf("Input multiset diverged on run %d", run)
			}
		}
		for k, v := range firstOuts {
			if outs[k] != v {
				t.Fatalf("Output multiset diverged on run %d", run)
			}
		}
	}
}

func TestDecode_CarriesOutpointsFromScenario(t *testing.T) {
	tx, err := Decode(decodeModel(), decodeScenario())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	found := false
	for _, in := range tx.Inputs {
		if in.Amount == 100000 && in.Txid == "aa" {
			found = true
		}
	}
	if !found {
		t.Error("Declared outpoint was not carried onto the selected input")
	}
}

func TestDecode_MissingVariableFails(t *testing.T) {
	model := decodeModel()
	delete(model, "output_party[3]")
	if _, err := Decode(model, decodeScenario()); err == nil {
		t.Fatal("Decode should fail on a model with missing bindings")
	}
}
