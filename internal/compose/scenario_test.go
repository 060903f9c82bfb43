package compose

import (
	"strings"
	"testing"

	"github.com/rawblock/coinjoin-composer/pkg/models"
)

func TestValidateScenario(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*models.Scenario)
		wantErr string
	}{
		{"valid", func(sc *models.Scenario) {}, ""},
		{"no inputs", func(sc *models.Scenario) { sc.Inputs = nil }, "no inputs"},
		{"non-positive amount", func(sc *models.Scenario) { sc.Inputs[0].Amount = 0 }, "amount must be positive"},
		{"non-positive party", func(sc *models.Scenario) { sc.Inputs[0].Party = 0 }, "party ID"},
		{"missing fee cap", func(sc *models.Scenario) { delete(sc.FeeCaps, 2) }, "no fee cap"},
		{"negative fee cap", func(sc *models.Scenario) { sc.FeeCaps[1] = -1 }, "fee cap must be non-negative"},
		{"zero min feerate", func(sc *models.Scenario) { sc.MinFeeRate = 0 }, "min feerate"},
		{"inverted feerate band", func(sc *models.Scenario) { sc.MaxFeeRate = sc.MinFeeRate - 1 }, "below min feerate"},
		{"negative output floor", func(sc *models.Scenario) { sc.MinOutputAmt = -1 }, "min output amount"},
		{"negative delta", func(sc *models.Scenario) { sc.MinOutputAmtDelta = -5 }, "delta"},
		{"zero fragmentation factor", func(sc *models.Scenario) { sc.MaxPartyFragmentationFactor = 0 }, "fragmentation factor"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := twoPartyScenario()
			tc.mutate(sc)
			err := ValidateScenario(sc)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid scenario, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestScenarioParties(t *testing.T) {
	sc := &models.Scenario{
		Inputs: []models.InputSlot{
			{Party: 8, Amount: 1}, {Party: 3, Amount: 1},
			{Party: 8, Amount: 1}, {Party: 1, Amount: 1},
		},
	}
	got := sc.Parties()
	want := []int{1, 3, 8}
	if len(got) != len(want) {
		t.Fatalf("Parties() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Parties() = %v, want %v", got, want)
		}
	}
}
