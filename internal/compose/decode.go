package compose

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// Decode projects a satisfying assignment back into a transaction layout.
// Both slot arrays are shuffled with a cryptographically uniform permutation
// so slot positions chosen by the solver cannot leak party identity; outputs
// are then re-sorted by descending amount, the canonical CoinJoin
// presentation.
func Decode(model solver.Model, sc *models.Scenario) (*models.Transaction, error) {
	maxOutputs, err := model.Int(varMaxOutputs)
	if err != nil {
		return nil, err
	}

	inputBuf := make([]models.TxInput, 0, len(sc.Inputs))
	for i := range sc.Inputs {
		party, err := model.Int(inputPartyVar(i))
		if err != nil {
			return nil, err
		}
		if party == -1 {
			continue
		}
		amt, err := model.Int(inputAmtVar(i))
		if err != nil {
			return nil, err
		}
		inputBuf = append(inputBuf, models.TxInput{
			Party:  int(party),
			Amount: amt,
			Txid:   sc.Inputs[i].Txid,
			Vout:   sc.Inputs[i].Vout,
		})
	}

	outputBuf := make([]models.TxOutput, 0, maxOutputs)
	for j := 0; j < int(maxOutputs); j++ {
		party, err := model.Int(outputPartyVar(j))
		if err != nil {
			return nil, err
		}
		if party == -1 {
			continue
		}
		amt, err := model.Int(outputAmtVar(j))
		if err != nil {
			return nil, err
		}
		outputBuf = append(outputBuf, models.TxOutput{Party: int(party), Amount: amt})
	}

	inputs, err := shuffleInputs(inputBuf)
	if err != nil {
		return nil, err
	}
	outputs, err := shuffleOutputs(outputBuf)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(outputs, func(a, b int) bool {
		return outputs[a].Amount > outputs[b].Amount
	})

	tx := &models.Transaction{
		Inputs:  inputs,
		Outputs: outputs,
		Model:   model,
	}
	if v, err := model.Int(varNumOutputs); err == nil {
		tx.NumOutputs = v
	}
	if v, err := model.Int(varAnonymityScore); err == nil {
		tx.AnonymityScore = v
	}
	if v, err := model.Int(varTxFee); err == nil {
		tx.TxFee = v
	}
	if v, err := model.Int(varTxSize); err == nil {
		tx.TxSize = v
	}
	return tx, nil
}

// shuffleInputs permutes by repeated uniform pops from the buffer, drawing
// indices from crypto/rand. Uniform pops give a uniform permutation.
func shuffleInputs(buf []models.TxInput) ([]models.TxInput, error) {
	out := make([]models.TxInput, 0, len(buf))
	for len(buf) > 0 {
		idx, err := randBelow(len(buf))
		if err != nil {
			return nil, err
		}
		out = append(out, buf[idx])
		buf = append(buf[:idx], buf[idx+1:]...)
	}
	return out, nil
}

func shuffleOutputs(buf []models.TxOutput) ([]models.TxOutput, error) {
	out := make([]models.TxOutput, 0, len(buf))
	for len(buf) > 0 {
		idx, err := randBelow(len(buf))
		if err != nil {
			return nil, err
		}
		out = append(out, buf[idx])
		buf = append(buf[:idx], buf[idx+1:]...)
	}
	return out, nil
}

// randBelow returns a uniform integer in [0, n) from the system CSPRNG.
func randBelow(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("randBelow: n must be positive, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("reading system randomness: %w", err)
	}
	return int(v.Int64()), nil
}
