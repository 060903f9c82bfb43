package compose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/solver"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// ErrInfeasible is returned when even the most relaxed problem admits no
// solution within the solver budget.
var ErrInfeasible = errors.New("no coinjoin layout satisfies the scenario")

// Phase names for progress reporting.
const (
	PhaseMaximizingAnonymity = "maximizing_anonymity"
	PhaseMinimizingOutputs   = "minimizing_outputs"
)

// Progress is one optimizer iteration, emitted after each solver call.
type Progress struct {
	Phase          string `json:"phase"`
	Iteration      int    `json:"iteration"`
	MaxOutputs     int    `json:"maxOutputs"`
	Status         string `json:"status"`
	NumOutputs     int64  `json:"numOutputs,omitempty"`
	AnonymityScore int64  `json:"anonymityScore,omitempty"`
}

// Optimizer drives the lexicographic two-phase search: maximize the
// anonymity score, then minimize the output count while holding the score.
// Each sat iteration strictly tightens one integer bound, so the loop
// terminates in finitely many solver calls.
type Optimizer struct {
	Oracle  solver.Oracle
	Timeout time.Duration // per solver call

	// OnProgress, if set, receives one event per solver iteration.
	OnProgress func(Progress)
}

// Optimize runs the search and decodes the best model found. Unknown from
// the solver is absorbed as a conservative bound: no retries, the driver
// transitions phases exactly as it does on unsat.
func (o *Optimizer) Optimize(ctx context.Context, sc *models.Scenario) (*models.Transaction, error) {
	if err := ValidateScenario(sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	parties := sc.Parties()
	maxOutputs := 3 * len(parties)
	minOutputs := maxOutputs
	var minScore int64
	var bestModel solver.Model
	phase := PhaseMaximizingAnonymity
	iteration := 0

	for {
		if phase == PhaseMinimizingOutputs && minOutputs == 0 {
			// Nothing left to shrink.
			break
		}
		iteration++

		bound := maxOutputs
		var result solver.Result
		var err error
		switch phase {
		case PhaseMaximizingAnonymity:
			// Seed the first attempt with the most relaxed bound, then
			// demand a strict improvement on every later iteration.
			target := int64(0)
			if minScore > 0 {
				target = minScore + 1
			}
			f := Build(sc, bound, &target)
			result, err = o.Oracle.Solve(ctx, f, o.Timeout)
		case PhaseMinimizingOutputs:
			bound = minOutputs - 1
			f := Build(sc, bound, &minScore)
			result, err = o.Oracle.Solve(ctx, f, o.Timeout)
		}
		if err != nil {
			return nil, fmt.Errorf("solver adapter fault: %w", err)
		}

		if result.Status == solver.StatusSat {
			numOutputsVal, err := result.Model.Int(varNumOutputs)
			if err != nil {
				return nil, fmt.Errorf("solver adapter fault: %w", err)
			}
			scoreVal, err := result.Model.Int(varAnonymityScore)
			if err != nil {
				return nil, fmt.Errorf("solver adapter fault: %w", err)
			}
			minOutputs = int(numOutputsVal)
			minScore = scoreVal
			bestModel = result.Model
			o.progress(Progress{
				Phase:          phase,
				Iteration:      iteration,
				MaxOutputs:     bound,
				Status:         result.Status.String(),
				NumOutputs:     numOutputsVal,
				AnonymityScore: scoreVal,
			})
			log.Printf("[Optimizer] %s: %d outputs, anonymity score %d", phase, numOutputsVal, scoreVal)
			if phase == PhaseMaximizingAnonymity && scoreVal == 0 {
				// A zero score is only satisfiable by the degenerate empty
				// layout; the relaxed bound can never rise from here.
				phase = PhaseMinimizingOutputs
			}
			continue
		}

		o.progress(Progress{
			Phase:      phase,
			Iteration:  iteration,
			MaxOutputs: bound,
			Status:     result.Status.String(),
		})

		if phase == PhaseMaximizingAnonymity {
			if bestModel == nil {
				// Even the most relaxed problem could not be solved in time.
				return nil, ErrInfeasible
			}
			phase = PhaseMinimizingOutputs
			log.Printf("[Optimizer] anonymity score maximized at %d, now minimizing transaction size", minScore)
			continue
		}
		break
	}

	log.Printf("[Optimizer] converged: %d outputs, anonymity score %d", minOutputs, minScore)
	return Decode(bestModel, sc)
}

func (o *Optimizer) progress(ev Progress) {
	if o.OnProgress != nil {
		o.OnProgress(ev)
	}
}
