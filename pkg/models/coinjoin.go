package models

// InputSlot is one party-contributed input candidate. The composer either
// consumes it exactly as declared or leaves it out of the transaction.
type InputSlot struct {
	Party  int    `json:"party"`
	Amount int64  `json:"amount"` // in Satoshis
	Txid   string `json:"txid,omitempty"`
	Vout   uint32 `json:"vout,omitempty"`
}

// Scenario is the immutable problem statement handed to the optimizer:
// who brings what, how much fee each party tolerates, and the layout limits.
type Scenario struct {
	Inputs  []InputSlot   `json:"inputs"`
	FeeCaps map[int]int64 `json:"feeCaps"` // party ID -> max satoshis that party will pay in fees

	MinFeeRate int64 `json:"minFeeRate"` // sats/vbyte, inclusive lower bound
	MaxFeeRate int64 `json:"maxFeeRate"` // sats/vbyte, inclusive upper bound

	MinOutputAmt      int64 `json:"minOutputAmt"`      // floor for every used output
	MinOutputAmtDelta int64 `json:"minOutputAmtDelta"` // minimum separation between distinct output amounts

	// A party providing k inputs may receive at most k * factor outputs.
	MaxPartyFragmentationFactor int64 `json:"maxPartyFragmentationFactor"`
}

// Parties returns the distinct party IDs appearing in the scenario inputs,
// in ascending order.
func (s *Scenario) Parties() []int {
	seen := make(map[int]bool)
	parties := make([]int, 0, len(s.FeeCaps))
	for _, in := range s.Inputs {
		if !seen[in.Party] {
			seen[in.Party] = true
			parties = append(parties, in.Party)
		}
	}
	// Insertion sort: party counts are small (single digits in practice).
	for i := 1; i < len(parties); i++ {
		for j := i; j > 0 && parties[j] < parties[j-1]; j-- {
			parties[j], parties[j-1] = parties[j-1], parties[j]
		}
	}
	return parties
}

// TxInput is a selected input in the composed transaction.
type TxInput struct {
	Party  int    `json:"party"`
	Amount int64  `json:"amount"` // in Satoshis
	Txid   string `json:"txid,omitempty"`
	Vout   uint32 `json:"vout,omitempty"`
}

// TxOutput is a composed output tagged with its owning party.
type TxOutput struct {
	Party  int   `json:"party"`
	Amount int64 `json:"amount"` // in Satoshis
}

// Transaction is the composed CoinJoin layout recovered from a solver model.
// Inputs are in randomized order; outputs are randomized then sorted by
// descending amount, so slot positions reveal nothing about the assignment.
type Transaction struct {
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`

	NumOutputs     int64 `json:"numOutputs"`
	AnonymityScore int64 `json:"anonymityScore"`
	TxFee          int64 `json:"txFee"`
	TxSize         int64 `json:"txSize"` // estimated vbytes: 11 + 68*inputs + 31*outputs

	// Raw solver assignment, variable name -> value, kept for debugging.
	Model map[string]int64 `json:"model,omitempty"`
}

// TotalIn sums the selected input amounts.
func (t *Transaction) TotalIn() int64 {
	var total int64
	for _, in := range t.Inputs {
		total += in.Amount
	}
	return total
}

// TotalOut sums the composed output amounts.
func (t *Transaction) TotalOut() int64 {
	var total int64
	for _, out := range t.Outputs {
		total += out.Amount
	}
	return total
}

// AuditViolation is one failed post-compose invariant check.
type AuditViolation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// AuditReport is the post-compose verification of a composed transaction.
type AuditReport struct {
	Passed     bool             `json:"passed"`
	Violations []AuditViolation `json:"violations,omitempty"`
}

// ComposeJob is a persisted solve run for the service surface.
type ComposeJob struct {
	JobID          string `json:"jobId"`
	Status         string `json:"status"` // "solved" / "infeasible" / "error"
	NumOutputs     int64  `json:"numOutputs"`
	AnonymityScore int64  `json:"anonymityScore"`
	TxFee          int64  `json:"txFee"`
	CreatedAt      int64  `json:"createdAt"` // unix seconds
}
