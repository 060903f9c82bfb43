package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/coinjoin-composer/internal/smt"
)

// Z3 runs the z3 binary as a one-shot subprocess per Solve call, feeding it
// an SMT-LIB2 script on stdin. Each call is a fresh problem — no incremental
// solver state survives between calls, and the process is reaped on every
// exit path including timeouts.
type Z3 struct {
	Bin string
}

// NewZ3 returns an adapter around the given z3 binary ("z3" if empty).
func NewZ3(bin string) *Z3 {
	if bin == "" {
		bin = "z3"
	}
	return &Z3{Bin: bin}
}

// killGrace is how long past the solver's own soft timeout we wait before
// killing the process outright.
const killGrace = 10 * time.Second

// Solve submits the formula under a per-call soft timeout. A z3-reported
// "unknown"/"timeout" and a hard process kill both map to StatusUnknown.
func (z *Z3) Solve(ctx context.Context, formula smt.Formula, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout+killGrace)
	defer cancel()

	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	cmd := exec.CommandContext(runCtx, z.Bin, "-in", fmt.Sprintf("-t:%d", ms))
	cmd.Stdin = strings.NewReader(formula.SMTLib())

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		// The soft timeout failed to stop the solver and we killed it.
		log.Printf("[Z3] solver call exceeded %v hard ceiling, process killed", timeout+killGrace)
		return Result{Status: StatusUnknown}, nil
	}

	out := stdout.String()
	status, rest := splitStatus(out)
	switch status {
	case "sat":
		model, err := parseModel(rest, formula.Symbols)
		if err != nil {
			return Result{}, fmt.Errorf("z3 returned sat but the model is unreadable: %w", err)
		}
		return Result{Status: StatusSat, Model: model}, nil
	case "unsat":
		return Result{Status: StatusUnsat}, nil
	case "unknown", "timeout", "canceled":
		return Result{Status: StatusUnknown}, nil
	}

	if runErr != nil {
		var execErr *exec.Error
		if errors.As(runErr, &execErr) {
			return Result{}, fmt.Errorf("z3 backend unreachable: %w", runErr)
		}
	}
	return Result{}, fmt.Errorf("z3 produced no verdict: %q", firstLine(out))
}

// splitStatus scans for the first line that is a bare solver verdict and
// returns it plus everything after it. z3 may interleave (error ...) noise
// when the script queries values after a non-sat answer.
func splitStatus(out string) (string, string) {
	rest := out
	for len(rest) > 0 {
		line := rest
		if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
			line = rest[:idx]
			rest = rest[idx+1:]
		} else {
			rest = ""
		}
		switch strings.TrimSpace(line) {
		case "sat":
			return "sat", rest
		case "unsat":
			return "unsat", rest
		case "unknown":
			return "unknown", rest
		case "timeout":
			return "timeout", rest
		case "canceled":
			return "canceled", rest
		}
	}
	return "", ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// parseModel reads the (get-value ...) response — a parenthesized list of
// (symbol value) pairs, where negative values appear as (- n) — and checks
// that every declared symbol got a binding.
func parseModel(raw string, symbols []string) (Model, error) {
	toks := tokenize(raw)
	node, _, err := parseSexpr(toks, 0)
	if err != nil {
		return nil, err
	}
	pairs, ok := node.([]interface{})
	if !ok {
		return nil, fmt.Errorf("value response is not a list")
	}

	model := make(Model, len(pairs))
	for _, p := range pairs {
		pair, ok := p.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("malformed value pair %v", p)
		}
		name, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("malformed value pair name %v", pair[0])
		}
		val, err := atomValue(pair[1])
		if err != nil {
			return nil, fmt.Errorf("value for %s: %w", name, err)
		}
		model[strings.Trim(name, "|")] = val
	}

	for _, sym := range symbols {
		if _, ok := model[sym]; !ok {
			return nil, fmt.Errorf("missing binding for %s", sym)
		}
	}
	return model, nil
}

// atomValue converts a parsed value node: either a bare numeral string or
// the two-element list ("-" numeral) for negatives.
func atomValue(node interface{}) (int64, error) {
	switch v := node.(type) {
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []interface{}:
		if len(v) == 2 {
			if op, ok := v[0].(string); ok && op == "-" {
				if numStr, ok := v[1].(string); ok {
					n, err := strconv.ParseInt(numStr, 10, 64)
					if err != nil {
						return 0, err
					}
					return -n, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("not an integer literal: %v", node)
}

func tokenize(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '(' || c == ')':
			toks = append(toks, string(c))
			i++
		case c == '|':
			j := strings.IndexByte(s[i+1:], '|')
			if j < 0 {
				// Unterminated quoted symbol; take the rest.
				toks = append(toks, s[i:])
				return toks
			}
			toks = append(toks, s[i:i+j+2])
			i += j + 2
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		default:
			j := i
			for j < len(s) && !strings.ContainsRune("() \t\n\r|", rune(s[j])) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

// parseSexpr parses one s-expression starting at toks[pos]. Lists become
// []interface{}, atoms stay strings.
func parseSexpr(toks []string, pos int) (interface{}, int, error) {
	if pos >= len(toks) {
		return nil, pos, fmt.Errorf("unexpected end of value response")
	}
	if toks[pos] == "(" {
		var items []interface{}
		pos++
		for pos < len(toks) && toks[pos] != ")" {
			item, next, err := parseSexpr(toks, pos)
			if err != nil {
				return nil, next, err
			}
			items = append(items, item)
			pos = next
		}
		if pos >= len(toks) {
			return nil, pos, fmt.Errorf("unbalanced parentheses in value response")
		}
		return items, pos + 1, nil
	}
	if toks[pos] == ")" {
		return nil, pos, fmt.Errorf("unexpected ) in value response")
	}
	return toks[pos], pos + 1, nil
}
