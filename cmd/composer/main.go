package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/bitcoin"
	"github.com/rawblock/coinjoin-composer/internal/compose"
	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// communityScenario is the embedded example configuration: eight parties,
// twelve inputs totalling 917,532,415 sats, each party with its own fee cap.
func communityScenario() *models.Scenario {
	return &models.Scenario{
		Inputs: []models.InputSlot{
			{Party: 1, Amount: 100000000},
			{Party: 2, Amount: 130000000},
			{Party: 3, Amount: 70000000}, {Party: 3, Amount: 70000000},
			{Party: 4, Amount: 107354073},
			{Party: 5, Amount: 101063506},
			{Party: 6, Amount: 122929194},
			{Party: 7, Amount: 27490915}, {Party: 7, Amount: 85582261},
			{Party: 8, Amount: 58595885}, {Party: 8, Amount: 22478305}, {Party: 8, Amount: 22438276},
		},
		FeeCaps: map[int]int64{
			1: 757, 2: 500, 3: 1337, 4: 520, 5: 511, 6: 505, 7: 1030, 8: 1508,
		},
		MinFeeRate:                  5,
		MaxFeeRate:                  11,
		MinOutputAmt:                30000,
		MinOutputAmtDelta:           3000,
		MaxPartyFragmentationFactor: 3,
	}
}

// classicLegacyScenario is the 3-party taker/maker configuration for the
// legacy objective: minimize uniquely-identifiable outputs around a pinned
// main CoinJoin amount.
func classicLegacyScenario() *compose.LegacyScenario {
	return &compose.LegacyScenario{
		Inputs: []models.InputSlot{
			{Party: 1, Amount: 100000000},
			{Party: 2, Amount: 130000000},
			{Party: 3, Amount: 70000000}, {Party: 3, Amount: 70000000},
		},
		TxFees:  map[int]int64{1: 0, 2: 17, 3: 0},
		CJFees:  map[int]int64{1: 0, 2: 28, 3: 5},
		Taker:   1,
		Amount:  0,
		FeeRate: 5,
	}
}

func main() {
	log.Println("Starting RawBlock CoinJoin Composer (scenario harness)...")

	timeoutMs := getEnvInt("SOLVER_ITERATION_TIMEOUT_MS", 180000)
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if os.Getenv("COMPOSER_OBJECTIVE") == "legacy" {
		runLegacy(timeout)
		return
	}

	sc := communityScenario()
	applyEnvOverrides(sc)
	oracle := solver.NewZ3(os.Getenv("Z3_BIN"))

	opt := &compose.Optimizer{
		Oracle:  oracle,
		Timeout: timeout,
		OnProgress: func(ev compose.Progress) {
			fmt.Println("------------------")
			if ev.Status == "sat" {
				fmt.Printf("%s: %d outputs with anonymity score %d\n", ev.Phase, ev.NumOutputs, ev.AnonymityScore)
			} else {
				fmt.Printf("%s: no solution found (%s)\n", ev.Phase, ev.Status)
			}
		},
	}

	tx, err := opt.Optimize(context.Background(), sc)
	fmt.Println("------------------")
	if err == compose.ErrInfeasible {
		fmt.Printf("Could not find a CoinJoin solution with less than %d seconds of solver time\n", timeoutMs/1000)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Compose failed: %v", err)
	}

	audit := compose.Audit(tx, sc)
	if !audit.Passed {
		log.Fatalf("Composed transaction failed audit: %+v", audit.Violations)
	}

	contributing := make(map[int]bool)
	for _, out := range tx.Outputs {
		contributing[out.Party] = true
	}

	fmt.Printf("Best CoinJoin solution found has %d inputs from %d parties:\n", len(tx.Inputs), len(contributing))
	for _, in := range tx.Inputs {
		fmt.Printf("  party %d: %s\n", in.Party, bitcoin.FormatAmount(in.Amount))
	}
	fmt.Printf("and has %d outputs with anonymity score %d:\n", tx.NumOutputs, tx.AnonymityScore)
	for _, out := range tx.Outputs {
		fmt.Printf("  party %d: %s\n", out.Party, bitcoin.FormatAmount(out.Amount))
	}
	fmt.Printf("txfee %d sats over %d vbytes (%.2f sat/vB)\n", tx.TxFee, tx.TxSize, float64(tx.TxFee)/float64(tx.TxSize))

	fmt.Println("\nraw model:")
	names := make([]string, 0, len(tx.Model))
	for name := range tx.Model {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s := %d\n", name, tx.Model[name])
	}
}

// runLegacy drives the legacy taker/maker objective over the classic
// 3-party configuration and prints the result in the same shape.
func runLegacy(timeout time.Duration) {
	oracle := solver.NewZ3(os.Getenv("Z3_BIN"))
	tx, err := compose.OptimizeLegacy(context.Background(), oracle, timeout, classicLegacyScenario())
	fmt.Println("------------------")
	if err == compose.ErrInfeasible {
		fmt.Printf("Could not find a CoinJoin solution with less than %d seconds of solver time\n", int64(timeout.Seconds()))
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Compose failed: %v", err)
	}

	fmt.Printf("Best legacy CoinJoin solution has %d inputs and %d outputs:\n", len(tx.Inputs), len(tx.Outputs))
	for _, in := range tx.Inputs {
		fmt.Printf("  party %d: %s\n", in.Party, bitcoin.FormatAmount(in.Amount))
	}
	for _, out := range tx.Outputs {
		fmt.Printf("  party %d: %s\n", out.Party, bitcoin.FormatAmount(out.Amount))
	}
}

// applyEnvOverrides lets the layout knobs be tuned without editing the
// embedded scenario.
func applyEnvOverrides(sc *models.Scenario) {
	sc.MinFeeRate = getEnvInt("MIN_FEERATE", sc.MinFeeRate)
	sc.MaxFeeRate = getEnvInt("MAX_FEERATE", sc.MaxFeeRate)
	sc.MinOutputAmt = getEnvInt("MIN_OUTPUT_AMT", sc.MinOutputAmt)
	sc.MinOutputAmtDelta = getEnvInt("MIN_OUTPUT_AMT_DELTA", sc.MinOutputAmtDelta)
	sc.MaxPartyFragmentationFactor = getEnvInt("MAX_PARTY_FRAGMENTATION_FACTOR", sc.MaxPartyFragmentationFactor)
}

// getEnvInt returns the integer env var value or a default for unset or
// unparseable values.
func getEnvInt(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, val, err)
		return fallback
	}
	return parsed
}
