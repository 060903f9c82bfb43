package smt

import (
	"fmt"
	"strconv"
	"strings"
)

// Formula is a flat, immutable conjunction of asserted clauses together with
// the integer symbols they range over. Symbols keeps declaration order so a
// rendered script and a model query enumerate variables deterministically.
type Formula struct {
	Symbols []string
	Clauses []Term
}

// Builder accumulates symbol declarations and asserted clauses, then emits a
// Formula value. It is the only mutable stage in formula construction.
type Builder struct {
	symbols  []string
	declared map[string]bool
	clauses  []Term
}

// NewBuilder returns an empty formula builder.
func NewBuilder() *Builder {
	return &Builder{declared: make(map[string]bool)}
}

// Declare registers an integer symbol and returns a reference term.
// Re-declaring a name is harmless and returns the same reference.
func (b *Builder) Declare(name string) Term {
	if !b.declared[name] {
		b.declared[name] = true
		b.symbols = append(b.symbols, name)
	}
	return Sym(name)
}

// Assert conjoins a Boolean-sorted clause onto the formula.
func (b *Builder) Assert(clause Term) {
	b.clauses = append(b.clauses, clause)
}

// Formula freezes the builder state into an immutable formula value.
func (b *Builder) Formula() Formula {
	symbols := make([]string, len(b.symbols))
	copy(symbols, b.symbols)
	clauses := make([]Term, len(b.clauses))
	copy(clauses, b.clauses)
	return Formula{Symbols: symbols, Clauses: clauses}
}

// SMTLib renders the formula as a complete SMT-LIB2 script: declarations,
// assertions, (check-sat), and a (get-value ...) over every declared symbol
// so a sat response carries the full model.
func (f Formula) SMTLib() string {
	var sb strings.Builder
	sb.WriteString("(set-logic QF_LIA)\n")
	for _, name := range f.Symbols {
		fmt.Fprintf(&sb, "(declare-const %s Int)\n", quoteSymbol(name))
	}
	for _, clause := range f.Clauses {
		sb.WriteString("(assert ")
		writeTerm(&sb, clause)
		sb.WriteString(")\n")
	}
	sb.WriteString("(check-sat)\n")
	if len(f.Symbols) > 0 {
		sb.WriteString("(get-value (")
		for i, name := range f.Symbols {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(quoteSymbol(name))
		}
		sb.WriteString("))\n")
	}
	return sb.String()
}

// quoteSymbol wraps names that are not simple SMT-LIB2 symbols (the slot
// variables use bracketed names like input_party[0]) in |...| quoting.
func quoteSymbol(name string) string {
	if isSimpleSymbol(name) {
		return name
	}
	return "|" + name + "|"
}

func isSimpleSymbol(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		case c == '_' || c == '.' || c == '-' || c == '+' || c == '*' ||
			c == '=' || c == '<' || c == '>' || c == '?' || c == '/':
		default:
			return false
		}
	}
	return true
}

func writeTerm(sb *strings.Builder, t Term) {
	switch t.Kind {
	case KindInt:
		if t.Value < 0 {
			sb.WriteString("(- ")
			sb.WriteString(strconv.FormatInt(-t.Value, 10))
			sb.WriteByte(')')
		} else {
			sb.WriteString(strconv.FormatInt(t.Value, 10))
		}
	case KindSym:
		sb.WriteString(quoteSymbol(t.Name))
	case KindNot:
		writeApp(sb, "not", t.Args)
	case KindIte:
		writeApp(sb, "ite", t.Args)
	case KindAdd:
		writeApp(sb, "+", t.Args)
	case KindSub:
		writeApp(sb, "-", t.Args)
	case KindMul:
		writeApp(sb, "*", t.Args)
	case KindEq:
		writeApp(sb, "=", t.Args)
	case KindLt:
		writeApp(sb, "<", t.Args)
	case KindLe:
		writeApp(sb, "<=", t.Args)
	case KindGt:
		writeApp(sb, ">", t.Args)
	case KindGe:
		writeApp(sb, ">=", t.Args)
	case KindAnd:
		writeApp(sb, "and", t.Args)
	case KindOr:
		writeApp(sb, "or", t.Args)
	}
}

func writeApp(sb *strings.Builder, op string, args []Term) {
	sb.WriteByte('(')
	sb.WriteString(op)
	for _, arg := range args {
		sb.WriteByte(' ')
		writeTerm(sb, arg)
	}
	sb.WriteByte(')')
}
