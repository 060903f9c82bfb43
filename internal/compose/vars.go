package compose

import "fmt"

// Variable naming shared by the formula builder and the model decoder.
// Slot variables use bracketed names so a raw model dump reads like the
// transaction layout it encodes.

func inputPartyVar(i int) string  { return fmt.Sprintf("input_party[%d]", i) }
func inputAmtVar(i int) string    { return fmt.Sprintf("input_amt[%d]", i) }
func outputPartyVar(j int) string { return fmt.Sprintf("output_party[%d]", j) }
func outputAmtVar(j int) string   { return fmt.Sprintf("output_amt[%d]", j) }
func outputScoreVar(j int) string { return fmt.Sprintf("output_score[%d]", j) }

func partyGivesVar(p int) string      { return fmt.Sprintf("party_gives[%d]", p) }
func partyGetsVar(p int) string       { return fmt.Sprintf("party_gets[%d]", p) }
func partyTxFeeVar(p int) string      { return fmt.Sprintf("party_txfee[%d]", p) }
func partyNumInputsVar(p int) string  { return fmt.Sprintf("party_numinputs[%d]", p) }
func partyNumOutputsVar(p int) string { return fmt.Sprintf("party_numoutputs[%d]", p) }

const (
	varTotalIn        = "total_in"
	varTotalOut       = "total_out"
	varNumOutputs     = "num_outputs"
	varMaxOutputs     = "max_outputs"
	varAnonymityScore = "anonymity_score"
	varTxSize         = "txsize"
	varTxFee          = "txfee"

	// Legacy objective only.
	varNumInAnonymitySet = "num_outputs_in_anonymity_set"
	varMainCJAmt         = "main_cj_amt"
)

func outputNotUniqueVar(j int) string { return fmt.Sprintf("output_not_unique[%d]", j) }
func partyCJFeeVar(p int) string      { return fmt.Sprintf("party_cjfee[%d]", p) }
