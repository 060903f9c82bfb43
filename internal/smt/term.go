// Package smt provides a small value-typed term language over unbounded
// integers and its SMT-LIB2 rendering. It covers exactly what the CoinJoin
// constraint compiler needs: linear arithmetic, equality and ordering,
// if-then-else, and the Boolean connectives (QF_LIA).
package smt

// Kind discriminates the term node types.
type Kind int

const (
	KindInt Kind = iota // integer literal
	KindSym             // named integer symbol
	KindAdd
	KindSub
	KindMul
	KindEq
	KindLt
	KindLe
	KindGt
	KindGe
	KindIte
	KindAnd
	KindOr
	KindNot
)

// Term is an immutable node in the formula tree. Arithmetic and comparison
// nodes are integer-sorted or Boolean-sorted by construction; the builder
// only ever combines them in sort-correct positions.
type Term struct {
	Kind  Kind
	Value int64  // KindInt only
	Name  string // KindSym only
	Args  []Term
}

// Int returns an integer literal term.
func Int(v int64) Term { return Term{Kind: KindInt, Value: v} }

// Sym returns a reference to a named integer symbol.
func Sym(name string) Term { return Term{Kind: KindSym, Name: name} }

// Add returns the n-ary sum of terms. An empty sum is the literal 0, a
// single-element sum collapses to its operand.
func Add(terms ...Term) Term {
	switch len(terms) {
	case 0:
		return Int(0)
	case 1:
		return terms[0]
	}
	return Term{Kind: KindAdd, Args: terms}
}

// Sub returns a - b.
func Sub(a, b Term) Term { return Term{Kind: KindSub, Args: []Term{a, b}} }

// Mul returns a * b. The CoinJoin encoding only multiplies by integer
// literals, which keeps every formula inside linear arithmetic.
func Mul(a, b Term) Term { return Term{Kind: KindMul, Args: []Term{a, b}} }

// Eq returns the equality a = b.
func Eq(a, b Term) Term { return Term{Kind: KindEq, Args: []Term{a, b}} }

// Lt returns a < b.
func Lt(a, b Term) Term { return Term{Kind: KindLt, Args: []Term{a, b}} }

// Le returns a <= b.
func Le(a, b Term) Term { return Term{Kind: KindLe, Args: []Term{a, b}} }

// Gt returns a > b.
func Gt(a, b Term) Term { return Term{Kind: KindGt, Args: []Term{a, b}} }

// Ge returns a >= b.
func Ge(a, b Term) Term { return Term{Kind: KindGe, Args: []Term{a, b}} }

// Ite returns if cond then a else b, where cond is Boolean-sorted.
func Ite(cond, a, b Term) Term { return Term{Kind: KindIte, Args: []Term{cond, a, b}} }

// And returns the n-ary conjunction. An empty conjunction is vacuously true,
// rendered as (= 0 0); a single-element conjunction collapses.
func And(terms ...Term) Term {
	switch len(terms) {
	case 0:
		return Eq(Int(0), Int(0))
	case 1:
		return terms[0]
	}
	return Term{Kind: KindAnd, Args: terms}
}

// Or returns the n-ary disjunction. An empty disjunction is unsatisfiable,
// rendered as (= 0 1); a single-element disjunction collapses.
func Or(terms ...Term) Term {
	switch len(terms) {
	case 0:
		return Eq(Int(0), Int(1))
	case 1:
		return terms[0]
	}
	return Term{Kind: KindOr, Args: terms}
}

// Not returns the negation of a Boolean-sorted term.
func Not(a Term) Term { return Term{Kind: KindNot, Args: []Term{a}} }

// BoolToInt maps a Boolean-sorted term to 1/0 so it can participate in
// aggregate sums. This mirrors how slot-usage counts are accumulated.
func BoolToInt(cond Term) Term { return Ite(cond, Int(1), Int(0)) }
