package compose

import (
	"fmt"

	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// Audit re-checks every structural invariant on a composed transaction
// before it is surfaced to a caller. The solver already enforced these; the
// audit catches adapter or decoding faults rather than solver mistakes.
func Audit(tx *models.Transaction, sc *models.Scenario) models.AuditReport {
	var violations []models.AuditViolation
	add := func(rule, format string, args ...interface{}) {
		violations = append(violations, models.AuditViolation{
			Rule:   rule,
			Detail: fmt.Sprintf(format, args...),
		})
	}

	totalIn := tx.TotalIn()
	totalOut := tx.TotalOut()

	// Balance: inputs fund outputs plus the miner fee exactly.
	if totalIn != totalOut+tx.TxFee {
		add("balance", "total_in %d != total_out %d + txfee %d", totalIn, totalOut, tx.TxFee)
	}

	// Size model and feerate envelope.
	wantSize := int64(11 + 68*len(tx.Inputs) + 31*len(tx.Outputs))
	if tx.TxSize != wantSize {
		add("txsize", "txsize %d != 11 + 68*%d + 31*%d = %d", tx.TxSize, len(tx.Inputs), len(tx.Outputs), wantSize)
	}
	if wantSize > 0 {
		if tx.TxFee < sc.MinFeeRate*wantSize {
			add("feerate", "txfee %d below floor %d sat/vB * %d vB", tx.TxFee, sc.MinFeeRate, wantSize)
		}
		if tx.TxFee > sc.MaxFeeRate*wantSize {
			add("feerate", "txfee %d above ceiling %d sat/vB * %d vB", tx.TxFee, sc.MaxFeeRate, wantSize)
		}
	}

	// Per-party solvency within the declared fee caps.
	gives := make(map[int]int64)
	gets := make(map[int]int64)
	for _, in := range tx.Inputs {
		gives[in.Party] += in.Amount
	}
	for _, out := range tx.Outputs {
		gets[out.Party] += out.Amount
	}
	for party, g := range gives {
		fee := g - gets[party]
		if fee < 0 {
			add("fee_cap", "party %d receives %d more than it contributed", party, -fee)
		}
		if cap, ok := sc.FeeCaps[party]; ok && fee > cap {
			add("fee_cap", "party %d pays %d, cap is %d", party, fee, cap)
		}
	}
	for party := range gets {
		if _, ok := gives[party]; !ok {
			add("fee_cap", "party %d receives outputs without contributing inputs", party)
		}
	}

	// Output floor and pairwise amount separation.
	for i, out := range tx.Outputs {
		if out.Amount < sc.MinOutputAmt {
			add("min_output", "output %d amount %d below floor %d", i, out.Amount, sc.MinOutputAmt)
		}
	}
	for i := 0; i < len(tx.Outputs); i++ {
		for j := i + 1; j < len(tx.Outputs); j++ {
			a, bAmt := tx.Outputs[i].Amount, tx.Outputs[j].Amount
			if a == bAmt {
				continue
			}
			diff := a - bAmt
			if diff < 0 {
				diff = -diff
			}
			if diff < sc.MinOutputAmtDelta {
				add("amount_delta", "outputs %d and %d differ by %d, minimum is %d", i, j, diff, sc.MinOutputAmtDelta)
			}
		}
	}

	// Non-uniqueness: every output needs an equal-amount witness under a
	// different owner.
	for i, out := range tx.Outputs {
		witnessed := false
		for j, other := range tx.Outputs {
			if i != j && other.Amount == out.Amount && other.Party != out.Party {
				witnessed = true
				break
			}
		}
		if !witnessed {
			add("non_unique", "output %d (party %d, %d sats) is uniquely identifiable", i, out.Party, out.Amount)
		}
	}

	// Fragmentation ceiling per party.
	numIn := make(map[int]int64)
	numOut := make(map[int]int64)
	for _, in := range tx.Inputs {
		numIn[in.Party]++
	}
	for _, out := range tx.Outputs {
		numOut[out.Party]++
	}
	for party, n := range numOut {
		if n > sc.MaxPartyFragmentationFactor*numIn[party] {
			add("fragmentation", "party %d has %d outputs from %d inputs (factor %d)",
				party, n, numIn[party], sc.MaxPartyFragmentationFactor)
		}
	}

	// Input fidelity: each selected input matches a distinct declared slot.
	remaining := make([]models.InputSlot, len(sc.Inputs))
	copy(remaining, sc.Inputs)
	for i, in := range tx.Inputs {
		matched := -1
		for k, decl := range remaining {
			if decl.Party == in.Party && decl.Amount == in.Amount {
				matched = k
				break
			}
		}
		if matched < 0 {
			add("input_fidelity", "selected input %d (party %d, %d sats) does not match a declared slot", i, in.Party, in.Amount)
			continue
		}
		remaining = append(remaining[:matched], remaining[matched+1:]...)
	}

	return models.AuditReport{Passed: len(violations) == 0, Violations: violations}
}
