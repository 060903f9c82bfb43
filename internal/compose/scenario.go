package compose

import (
	"fmt"

	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// ValidateScenario rejects malformed scenarios before any formula is built.
// Every path through the optimizer calls this first, so the solver only ever
// sees well-formed problems.
func ValidateScenario(sc *models.Scenario) error {
	if sc == nil {
		return fmt.Errorf("scenario is nil")
	}
	if len(sc.Inputs) == 0 {
		return fmt.Errorf("scenario has no inputs")
	}
	for i, in := range sc.Inputs {
		if in.Party <= 0 {
			return fmt.Errorf("input %d: party ID must be a positive integer, got %d", i, in.Party)
		}
		if in.Amount <= 0 {
			return fmt.Errorf("input %d: amount must be positive, got %d", i, in.Amount)
		}
		cap, ok := sc.FeeCaps[in.Party]
		if !ok {
			return fmt.Errorf("input %d: party %d has no fee cap entry", i, in.Party)
		}
		if cap < 0 {
			return fmt.Errorf("party %d: fee cap must be non-negative, got %d", in.Party, cap)
		}
	}
	if sc.MinFeeRate <= 0 {
		return fmt.Errorf("min feerate must be positive, got %d", sc.MinFeeRate)
	}
	if sc.MaxFeeRate < sc.MinFeeRate {
		return fmt.Errorf("max feerate %d is below min feerate %d", sc.MaxFeeRate, sc.MinFeeRate)
	}
	if sc.MinOutputAmt < 0 {
		return fmt.Errorf("min output amount must be non-negative, got %d", sc.MinOutputAmt)
	}
	if sc.MinOutputAmtDelta < 0 {
		return fmt.Errorf("min output amount delta must be non-negative, got %d", sc.MinOutputAmtDelta)
	}
	if sc.MaxPartyFragmentationFactor < 1 {
		return fmt.Errorf("fragmentation factor must be >= 1, got %d", sc.MaxPartyFragmentationFactor)
	}
	return nil
}
