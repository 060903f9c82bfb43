package compose

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/smt"
	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// LegacyScenario is the taker/maker market variant of the problem: every
// declared input is consumed, each party's fee contribution and coinjoin fee
// are fixed, the taker absorbs the residual transaction fee, and at least
// |parties| outputs are pinned to a common "main CoinJoin" amount.
type LegacyScenario struct {
	Inputs  []models.InputSlot `json:"inputs"`
	TxFees  map[int]int64      `json:"txFees"` // fixed fee contribution per party
	CJFees  map[int]int64      `json:"cjFees"` // coinjoin fee earned per party
	Taker   int                `json:"taker"`
	Amount  int64              `json:"amount"`  // main CJ amount; 0 sweeps the taker's take
	FeeRate int64              `json:"feeRate"` // single fixed feerate, sats/vbyte
}

func (ls *LegacyScenario) parties() []int {
	sc := models.Scenario{Inputs: ls.Inputs}
	return sc.Parties()
}

// BuildLegacy compiles the legacy variant. maxUnique, when non-nil, caps the
// number of uniquely-identifiable outputs (num_outputs minus those whose
// amount recurs on another output under a different owner).
func BuildLegacy(ls *LegacyScenario, maxOutputs int, maxUnique *int64) smt.Formula {
	b := smt.NewBuilder()
	parties := ls.parties()
	numInputs := len(ls.Inputs)

	totalIn := b.Declare(varTotalIn)
	totalOut := b.Declare(varTotalOut)
	numOutputs := b.Declare(varNumOutputs)
	maxOutputsSym := b.Declare(varMaxOutputs)
	numInSet := b.Declare(varNumInAnonymitySet)
	txSize := b.Declare(varTxSize)
	txFee := b.Declare(varTxFee)
	mainCJAmt := b.Declare(varMainCJAmt)

	partyGives := make(map[int]smt.Term)
	partyGets := make(map[int]smt.Term)
	partyTxFee := make(map[int]smt.Term)
	partyCJFee := make(map[int]smt.Term)
	for _, p := range parties {
		partyGives[p] = b.Declare(partyGivesVar(p))
		partyGets[p] = b.Declare(partyGetsVar(p))
		partyTxFee[p] = b.Declare(partyTxFeeVar(p))
		partyCJFee[p] = b.Declare(partyCJFeeVar(p))
		b.Assert(smt.Eq(partyTxFee[p], smt.Int(ls.TxFees[p])))
		b.Assert(smt.Eq(partyCJFee[p], smt.Int(ls.CJFees[p])))
	}

	inputParty := make([]smt.Term, numInputs)
	inputAmt := make([]smt.Term, numInputs)
	for i, in := range ls.Inputs {
		inputParty[i] = b.Declare(inputPartyVar(i))
		inputAmt[i] = b.Declare(inputAmtVar(i))
		// Legacy semantics: every declared input is consumed.
		b.Assert(smt.Eq(inputParty[i], smt.Int(int64(in.Party))))
		b.Assert(smt.Eq(inputAmt[i], smt.Int(in.Amount)))
	}

	outputParty := make([]smt.Term, maxOutputs)
	outputAmt := make([]smt.Term, maxOutputs)
	outputUnused := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		outputParty[j] = b.Declare(outputPartyVar(j))
		outputAmt[j] = b.Declare(outputAmtVar(j))
		outputUnused[j] = smt.Eq(outputParty[j], smt.Int(-1))
		b.Assert(smt.Ite(outputUnused[j],
			smt.Eq(outputAmt[j], smt.Int(0)),
			smt.Gt(outputAmt[j], smt.Int(0)),
		))
	}
	usedCount := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		usedCount[j] = smt.BoolToInt(smt.Not(outputUnused[j]))
	}
	b.Assert(smt.Eq(numOutputs, smt.Add(usedCount...)))
	b.Assert(smt.Eq(maxOutputsSym, smt.Int(int64(maxOutputs))))

	// party_gives from the fixed input assignment; party_gets accounting
	// differs for the taker, who pockets everyone's contributions and pays
	// the miner fee plus the makers' coinjoin fees.
	for _, p := range parties {
		var gives int64
		for _, in := range ls.Inputs {
			if in.Party == p {
				gives += in.Amount
			}
		}
		b.Assert(smt.Eq(partyGives[p], smt.Int(gives)))

		if p != ls.Taker {
			b.Assert(smt.Eq(partyGets[p],
				smt.Add(partyCJFee[p], smt.Sub(partyGives[p], partyTxFee[p]))))
		} else {
			contributions := make([]smt.Term, 0, len(parties)-1)
			cjfees := make([]smt.Term, 0, len(parties)-1)
			for _, q := range parties {
				if q == ls.Taker {
					continue
				}
				contributions = append(contributions, partyTxFee[q])
				cjfees = append(cjfees, partyCJFee[q])
			}
			b.Assert(smt.Eq(partyGets[p],
				smt.Add(smt.Add(contributions...),
					smt.Sub(partyGives[p], smt.Add(smt.Add(cjfees...), txFee)))))
		}

		amtVec := make([]smt.Term, maxOutputs)
		for j := 0; j < maxOutputs; j++ {
			amtVec[j] = smt.Ite(smt.Eq(outputParty[j], smt.Int(int64(p))), outputAmt[j], smt.Int(0))
		}
		b.Assert(smt.Eq(partyGets[p], smt.Add(amtVec...)))
	}

	// The core CoinJoin anchor: at least |parties| outputs share the main
	// CJ amount, which is either the configured amount or the taker's take.
	if ls.Amount != 0 {
		b.Assert(smt.Eq(mainCJAmt, smt.Int(ls.Amount)))
	} else {
		b.Assert(smt.Eq(mainCJAmt, partyGets[ls.Taker]))
	}
	atMainAmt := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		atMainAmt[j] = smt.BoolToInt(smt.Eq(outputAmt[j], mainCJAmt))
	}
	b.Assert(smt.Ge(smt.Add(atMainAmt...), smt.Int(int64(len(parties)))))

	// Each party may hold at most one output with a unique amount.
	for _, p := range parties {
		uniqueBits := make([]smt.Term, maxOutputs)
		for j := 0; j < maxOutputs; j++ {
			disequal := make([]smt.Term, 0, maxOutputs-1)
			for k := 0; k < maxOutputs; k++ {
				if k == j {
					continue
				}
				disequal = append(disequal, smt.Not(smt.Eq(outputAmt[k], outputAmt[j])))
			}
			uniqueBits[j] = smt.BoolToInt(smt.And(
				smt.Eq(outputParty[j], smt.Int(int64(p))),
				smt.And(disequal...),
			))
		}
		b.Assert(smt.Le(smt.Add(uniqueBits...), smt.Int(1)))
	}

	// num_outputs_in_anonymity_set counts outputs whose amount recurs under
	// a different owner.
	inSetBits := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		witnesses := make([]smt.Term, 0, maxOutputs-1)
		for k := 0; k < maxOutputs; k++ {
			if k == j {
				continue
			}
			witnesses = append(witnesses, smt.And(
				smt.Eq(outputAmt[k], outputAmt[j]),
				smt.Not(smt.Eq(outputParty[k], outputParty[j])),
			))
		}
		notUnique := b.Declare(outputNotUniqueVar(j))
		b.Assert(smt.Eq(notUnique, smt.BoolToInt(smt.Or(witnesses...))))
		inSetBits[j] = notUnique
	}
	b.Assert(smt.Eq(numInSet, smt.Add(inSetBits...)))
	if maxUnique != nil {
		b.Assert(smt.Le(smt.Sub(numOutputs, numInSet), smt.Int(*maxUnique)))
	}

	// Invariants and the fixed-feerate size model.
	inAmts := make([]smt.Term, numInputs)
	copy(inAmts, inputAmt)
	outAmts := make([]smt.Term, maxOutputs)
	copy(outAmts, outputAmt)
	givesTerms := make([]smt.Term, 0, len(parties))
	getsTerms := make([]smt.Term, 0, len(parties))
	for _, p := range parties {
		givesTerms = append(givesTerms, partyGives[p])
		getsTerms = append(getsTerms, partyGets[p])
	}
	b.Assert(smt.Eq(totalIn, smt.Add(totalOut, txFee)))
	b.Assert(smt.Eq(totalIn, smt.Add(inAmts...)))
	b.Assert(smt.Eq(totalIn, smt.Add(givesTerms...)))
	b.Assert(smt.Eq(totalOut, smt.Add(outAmts...)))
	b.Assert(smt.Eq(totalOut, smt.Add(getsTerms...)))

	b.Assert(smt.Eq(txSize,
		smt.Add(smt.Int(int64(11+68*numInputs)), smt.Mul(smt.Int(31), numOutputs))))
	b.Assert(smt.Eq(txFee, smt.Mul(txSize, smt.Int(ls.FeeRate))))

	return b.Formula()
}

// OptimizeLegacy runs the legacy lexicographic search: first minimize the
// number of uniquely-identifiable outputs, then minimize the total output
// count. The driver shape matches Optimize; only the objective differs.
func OptimizeLegacy(ctx context.Context, oracle solver.Oracle, timeout time.Duration, ls *LegacyScenario) (*models.Transaction, error) {
	if len(ls.Inputs) == 0 {
		return nil, fmt.Errorf("invalid scenario: no inputs")
	}
	for _, in := range ls.Inputs {
		if _, ok := ls.TxFees[in.Party]; !ok {
			return nil, fmt.Errorf("invalid scenario: party %d has no txfee entry", in.Party)
		}
		if _, ok := ls.CJFees[in.Party]; !ok {
			return nil, fmt.Errorf("invalid scenario: party %d has no cjfee entry", in.Party)
		}
	}
	takerSeen := false
	for _, in := range ls.Inputs {
		if in.Party == ls.Taker {
			takerSeen = true
			break
		}
	}
	if !takerSeen {
		return nil, fmt.Errorf("invalid scenario: taker %d contributes no inputs", ls.Taker)
	}
	if ls.FeeRate <= 0 {
		return nil, fmt.Errorf("invalid scenario: feerate must be positive")
	}

	maxOutputs := 3 * len(ls.parties())
	minOutputs := maxOutputs
	var maxUnique *int64
	uniqueMinimized := false
	var bestModel solver.Model

	for {
		var formula smt.Formula
		if !uniqueMinimized {
			if maxUnique == nil {
				formula = BuildLegacy(ls, maxOutputs, nil)
			} else {
				tighter := *maxUnique - 1
				formula = BuildLegacy(ls, maxOutputs, &tighter)
			}
		} else {
			formula = BuildLegacy(ls, minOutputs-1, maxUnique)
		}

		result, err := oracle.Solve(ctx, formula, timeout)
		if err != nil {
			return nil, fmt.Errorf("solver adapter fault: %w", err)
		}

		if result.Status != solver.StatusSat {
			if !uniqueMinimized {
				if bestModel == nil {
					return nil, ErrInfeasible
				}
				uniqueMinimized = true
				log.Printf("[Optimizer] unique outputs minimized at %d, now minimizing transaction size", *maxUnique)
				continue
			}
			break
		}

		numOutputsVal, err := result.Model.Int(varNumOutputs)
		if err != nil {
			return nil, fmt.Errorf("solver adapter fault: %w", err)
		}
		numInSetVal, err := result.Model.Int(varNumInAnonymitySet)
		if err != nil {
			return nil, fmt.Errorf("solver adapter fault: %w", err)
		}
		bestModel = result.Model
		if !uniqueMinimized {
			unique := numOutputsVal - numInSetVal
			maxUnique = &unique
		} else {
			minOutputs = int(numOutputsVal)
		}
		log.Printf("[Optimizer] legacy: %d outputs, %d in an anonymity set", numOutputsVal, numInSetVal)
	}

	sc := &models.Scenario{Inputs: ls.Inputs}
	return Decode(bestModel, sc)
}
