package compose

import (
	"testing"

	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// goodTransaction mirrors the hand-checked layout from the builder tests.
func goodTransaction() *models.Transaction {
	return &models.Transaction{
		Inputs: []models.TxInput{
			{Party: 1, Amount: 100000},
			{Party: 2, Amount: 100000},
		},
		Outputs: []models.TxOutput{
			{Party: 1, Amount: 99000},
			{Party: 2, Amount: 99000},
		},
		NumOutputs:     2,
		AnonymityScore: 2,
		TxFee:          2000,
		TxSize:         209,
	}
}

func TestAudit_PassesValidTransaction(t *testing.T) {
	report := Audit(goodTransaction(), twoPartyScenario())
	if !report.Passed {
		t.Fatalf("Valid transaction failed audit: %+v", report.Violations)
	}
}

func TestAudit_FlagsViolations(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*models.Transaction, *models.Scenario)
		wantRule string
	}{
		{
			"unbalanced", func(tx *models.Transaction, sc *models.Scenario) {
				tx.TxFee = 1500
			}, "balance",
		},
		{
			"fee above cap", func(tx *models.Transaction, sc *models.Scenario) {
				sc.FeeCaps[1] = 500
			}, "fee_cap",
		},
		{
			"party overdrawn", func(tx *models.Transaction, sc *models.Scenario) {
				tx.Outputs[0].Amount = 101000
				tx.Outputs[1].Amount = 101000
				tx.TxFee = -2000
			}, "fee_cap",
		},
		{
			"output below floor", func(tx *models.Transaction, sc *models.Scenario) {
				sc.MinOutputAmt = 990000
			}, "min_output",
		},
		{
			"delta too small", func(tx *models.Transaction, sc *models.Scenario) {
				// 500 sats apart with a 1000-sat separation rule.
				tx.Outputs[1].Amount = 98500
				tx.TxFee = 2500
			}, "amount_delta",
		},
		{
			"unique output", func(tx *models.Transaction, sc *models.Scenario) {
				sc.MinOutputAmtDelta = 0
				tx.Outputs[1].Amount = 95000
				tx.TxFee = 6000
			}, "non_unique",
		},
		{
			"over-fragmented", func(tx *models.Transaction, sc *models.Scenario) {
				sc.MaxPartyFragmentationFactor = 1
				sc.MinOutputAmtDelta = 0
				tx.Outputs = []models.TxOutput{
					{Party: 1, Amount: 49500}, {Party: 2, Amount: 49500},
					{Party: 1, Amount: 49500}, {Party: 2, Amount: 49500},
				}
				tx.TxSize = 11 + 68*2 + 31*4
				tx.TxFee = 2000
			}, "fragmentation",
		},
		{
			"fabricated input", func(tx *models.Transaction, sc *models.Scenario) {
				tx.Inputs[0].Amount = 123456
				tx.TxFee = 25456
			}, "input_fidelity",
		},
		{
			"duplicated input slot", func(tx *models.Transaction, sc *models.Scenario) {
				// The scenario declares (2, 100000) once; selecting it twice
				// must be flagged even though one copy matches.
				tx.Inputs[0] = models.TxInput{Party: 2, Amount: 100000}
			}, "input_fidelity",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := goodTransaction()
			sc := twoPartyScenario()
			tc.mutate(tx, sc)
			// Keep the size model consistent for mutations that do not
			// target it; txsize violations are tested separately.
			tx.TxSize = 11 + 68*int64(len(tx.Inputs)) + 31*int64(len(tx.Outputs))

			report := Audit(tx, sc)
			if report.Passed {
				t.Fatal("Expected audit violations")
			}
			found := false
			for _, v := range report.Violations {
				if v.Rule == tc.wantRule {
					found = true
				}
			}
			if !found {
				t.Fatalf("Expected a %q violation, got %+v", tc.wantRule, report.Violations)
			}
		})
	}
}

func TestAudit_FlagsSizeMismatch(t *testing.T) {
	tx := goodTransaction()
	tx.TxSize = 500
	report := Audit(tx, twoPartyScenario())
	if report.Passed {
		t.Fatal("Expected a txsize violation")
	}
	found := false
	for _, v := range report.Violations {
		if v.Rule == "txsize" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Expected a txsize violation, got %+v", report.Violations)
	}
}
