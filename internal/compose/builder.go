package compose

import (
	"github.com/rawblock/coinjoin-composer/internal/smt"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// Build compiles a scenario into a quantifier-free integer constraint system
// whose satisfying assignments are exactly the valid CoinJoin layouts using
// at most maxOutputs output slots. When minAnonymityScore is non-nil the
// formula additionally requires anonymity_score >= *minAnonymityScore.
//
// Slots are fixed-width arrays so every aggregate is a bounded sum over a
// known index range; party = -1 marks a slot unused and keeps the same
// integer variable usable inside if-then-else sums.
func Build(sc *models.Scenario, maxOutputs int, minAnonymityScore *int64) smt.Formula {
	b := smt.NewBuilder()
	parties := sc.Parties()
	numInputs := len(sc.Inputs)

	totalIn := b.Declare(varTotalIn)
	totalOut := b.Declare(varTotalOut)
	numOutputs := b.Declare(varNumOutputs)
	maxOutputsSym := b.Declare(varMaxOutputs)
	anonymityScore := b.Declare(varAnonymityScore)
	txSize := b.Declare(varTxSize)
	txFee := b.Declare(varTxFee)

	partyGives := make(map[int]smt.Term)
	partyGets := make(map[int]smt.Term)
	partyTxFee := make(map[int]smt.Term)
	partyNumInputs := make(map[int]smt.Term)
	partyNumOutputs := make(map[int]smt.Term)
	for _, p := range parties {
		partyGives[p] = b.Declare(partyGivesVar(p))
		partyGets[p] = b.Declare(partyGetsVar(p))
		partyTxFee[p] = b.Declare(partyTxFeeVar(p))
		partyNumInputs[p] = b.Declare(partyNumInputsVar(p))
		partyNumOutputs[p] = b.Declare(partyNumOutputsVar(p))
	}

	inputParty := make([]smt.Term, numInputs)
	inputAmt := make([]smt.Term, numInputs)
	for i := 0; i < numInputs; i++ {
		inputParty[i] = b.Declare(inputPartyVar(i))
		inputAmt[i] = b.Declare(inputAmtVar(i))
	}
	outputParty := make([]smt.Term, maxOutputs)
	outputAmt := make([]smt.Term, maxOutputs)
	outputScore := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		outputParty[j] = b.Declare(outputPartyVar(j))
		outputAmt[j] = b.Declare(outputAmtVar(j))
		outputScore[j] = b.Declare(outputScoreVar(j))
	}

	// Fee contribution bounds per party.
	for _, p := range parties {
		b.Assert(smt.Ge(partyTxFee[p], smt.Int(0)))
		b.Assert(smt.Le(partyTxFee[p], smt.Int(sc.FeeCaps[p])))
	}

	// Input domain: each slot is either consumed exactly as declared or
	// excluded with the (-1, 0) sentinel.
	for i, in := range sc.Inputs {
		used := smt.And(
			smt.Eq(inputParty[i], smt.Int(int64(in.Party))),
			smt.Eq(inputAmt[i], smt.Int(in.Amount)),
		)
		unused := smt.And(
			smt.Eq(inputParty[i], smt.Int(-1)),
			smt.Eq(inputAmt[i], smt.Int(0)),
		)
		b.Assert(smt.Or(used, unused))
	}

	// Output domain. The historic lower bound > min(0, min_output_amt-1)
	// is degenerate for positive floors, so the true floor is enforced as a
	// separate used-slot clause.
	degenerateFloor := int64(0)
	if sc.MinOutputAmt-1 < 0 {
		degenerateFloor = sc.MinOutputAmt - 1
	}
	outputUnused := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		outputUnused[j] = smt.Eq(outputParty[j], smt.Int(-1))
	}
	for j := 0; j < maxOutputs; j++ {
		b.Assert(smt.Ite(outputUnused[j],
			smt.Eq(outputAmt[j], smt.Int(0)),
			smt.Gt(outputAmt[j], smt.Int(degenerateFloor)),
		))
		if sc.MinOutputAmt > 0 {
			b.Assert(smt.Or(outputUnused[j], smt.Ge(outputAmt[j], smt.Int(sc.MinOutputAmt))))
		}

		// Amount separation: every other slot either carries the same
		// amount or sits at least the configured delta away.
		if sc.MinOutputAmtDelta > 0 {
			deltaClauses := make([]smt.Term, 0, maxOutputs-1)
			for k := 0; k < maxOutputs; k++ {
				if k == j {
					continue
				}
				deltaClauses = append(deltaClauses, smt.Or(
					smt.Eq(outputAmt[j], outputAmt[k]),
					smt.Or(
						smt.Ge(outputAmt[k], smt.Add(outputAmt[j], smt.Int(sc.MinOutputAmtDelta))),
						smt.Le(outputAmt[k], smt.Sub(outputAmt[j], smt.Int(sc.MinOutputAmtDelta))),
					),
				))
			}
			b.Assert(smt.Or(outputUnused[j], smt.And(deltaClauses...)))
		}
	}

	// Used-output count and the symbolic maxOutputs binding.
	usedCount := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		usedCount[j] = smt.BoolToInt(smt.Not(outputUnused[j]))
	}
	b.Assert(smt.Eq(numOutputs, smt.Add(usedCount...)))
	b.Assert(smt.Eq(maxOutputsSym, smt.Int(int64(maxOutputs))))

	// Per-party aggregates over the input and output slot arrays.
	for _, p := range parties {
		ownedIn := make([]smt.Term, numInputs)
		amtIn := make([]smt.Term, numInputs)
		for i := 0; i < numInputs; i++ {
			owned := smt.Eq(inputParty[i], smt.Int(int64(p)))
			ownedIn[i] = smt.BoolToInt(owned)
			amtIn[i] = smt.Ite(owned, inputAmt[i], smt.Int(0))
		}
		b.Assert(smt.Eq(partyNumInputs[p], smt.Add(ownedIn...)))
		b.Assert(smt.Eq(partyGives[p], smt.Add(amtIn...)))

		b.Assert(smt.Eq(partyGets[p], smt.Sub(partyGives[p], partyTxFee[p])))

		ownedOut := make([]smt.Term, maxOutputs)
		amtOut := make([]smt.Term, maxOutputs)
		for j := 0; j < maxOutputs; j++ {
			owned := smt.Eq(outputParty[j], smt.Int(int64(p)))
			ownedOut[j] = smt.BoolToInt(owned)
			amtOut[j] = smt.Ite(owned, outputAmt[j], smt.Int(0))
		}
		b.Assert(smt.Eq(partyGets[p], smt.Add(amtOut...)))
		b.Assert(smt.Eq(partyNumOutputs[p], smt.Add(ownedOut...)))

		b.Assert(smt.Le(partyNumOutputs[p],
			smt.Mul(smt.Int(sc.MaxPartyFragmentationFactor), partyNumInputs[p])))
	}

	// Anonymity: no used output may be uniquely identifiable — some other
	// slot must carry the same amount for a different owner.
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
		b.Assert(smt.Or(outputUnused[j], smt.Or(witnesses...)))
	}

	// Anonymity score: per-output count of equal-amount different-owner
	// witnesses, summed over all slots.
	scoreTerms := make([]smt.Term, maxOutputs)
	for j := 0; j < maxOutputs; j++ {
		witnessBits := make([]smt.Term, 0, maxOutputs-1)
		for k := 0; k < maxOutputs; k++ {
			if k == j {
				continue
			}
			witnessBits = append(witnessBits, smt.BoolToInt(smt.And(
				smt.Eq(outputAmt[k], outputAmt[j]),
				smt.Not(smt.Eq(outputParty[k], outputParty[j])),
			)))
		}
		b.Assert(smt.Eq(outputScore[j], smt.Add(witnessBits...)))
		scoreTerms[j] = outputScore[j]
	}
	b.Assert(smt.Eq(anonymityScore, smt.Add(scoreTerms...)))
	if minAnonymityScore != nil {
		b.Assert(smt.Ge(anonymityScore, smt.Int(*minAnonymityScore)))
	}

	// Transaction invariants: everything that goes in comes out, per slot
	// array and per party aggregate.
	inputAmts := make([]smt.Term, numInputs)
	copy(inputAmts, inputAmt)
	outputAmts := make([]smt.Term, maxOutputs)
	copy(outputAmts, outputAmt)
	givesTerms := make([]smt.Term, 0, len(parties))
	getsTerms := make([]smt.Term, 0, len(parties))
	for _, p := range parties {
		givesTerms = append(givesTerms, partyGives[p])
		getsTerms = append(getsTerms, partyGets[p])
	}
	b.Assert(smt.Eq(totalIn, smt.Add(totalOut, txFee)))
	b.Assert(smt.Eq(totalIn, smt.Add(inputAmts...)))
	b.Assert(smt.Eq(totalIn, smt.Add(givesTerms...)))
	b.Assert(smt.Eq(totalOut, smt.Add(outputAmts...)))
	b.Assert(smt.Eq(totalOut, smt.Add(getsTerms...)))

	// Size model and feerate envelope:
	// txsize = 11 + 68*used_inputs + 31*num_outputs, fee within the band.
	numInputsTerms := make([]smt.Term, 0, len(parties))
	for _, p := range parties {
		numInputsTerms = append(numInputsTerms, partyNumInputs[p])
	}
	b.Assert(smt.Eq(txSize,
		smt.Add(
			smt.Add(smt.Int(11), smt.Mul(smt.Int(68), smt.Add(numInputsTerms...))),
			smt.Mul(smt.Int(31), numOutputs),
		)))
	b.Assert(smt.Ge(txFee, smt.Mul(txSize, smt.Int(sc.MinFeeRate))))
	b.Assert(smt.Le(txFee, smt.Mul(txSize, smt.Int(sc.MaxFeeRate))))

	return b.Formula()
}
