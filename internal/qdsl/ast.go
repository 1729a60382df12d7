package qdsl

// Node is the interface all AST nodes implement.
type Node interface {
	node() // marker method
}

// BinaryOp joins two boolean expressions: left && right, left || right.
type BinaryOp struct {
	Op    string // "&&", "||"
	Left  Node
	Right Node
}

// NotExpr negates its operand: !!expr.
type NotExpr struct {
	Expr Node
}

// Comparison is field op value, e.g. status:active or age:>=#21.
type Comparison struct {
	Field string
	Op    CompareOp
	Value Literal
}

// InExpr is list membership: field:^[a,b] or field:!^[a,b].
type InExpr struct {
	Field  string
	Negate bool
	Items  []Literal
}

// ElemMatch evaluates Cond against each element of an array field: field:{...}.
type ElemMatch struct {
	Field string
	Cond  Node
}

// ExistsExpr is exists(field).
type ExistsExpr struct {
	Field string
}

// TextExpr is text("terms"), a full-text search over the document.
type TextExpr struct {
	Search string
}

// ExpandExpr is expand(path). It marks a relationship to be joined and
// does not filter anything.
type ExpandExpr struct {
	Path string
}

// FieldsExpr is fields:[+a,-b], the requested root projection.
type FieldsExpr struct {
	Items []ProjectionItem
}

// ProjectionItem is one entry of a fields:[...] list.
type ProjectionItem struct {
	Path    string
	Exclude bool // "-path"
	Plus    bool // "+path"
}

func (*BinaryOp) node()   {}
func (*NotExpr) node()    {}
func (*Comparison) node() {}
func (*InExpr) node()     {}
func (*ElemMatch) node()  {}
func (*ExistsExpr) node() {}
func (*TextExpr) node()   {}
func (*ExpandExpr) node() {}
func (*FieldsExpr) node() {}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
)

var opNames = [...]string{":", ":!", ":>", ":>=", ":<", ":<="}

func (o CompareOp) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "?"
}

// Relational reports whether o orders values rather than testing equality.
func (o CompareOp) Relational() bool {
	return o >= OpGt
}

// LiteralKind classifies a value literal.
type LiteralKind int

const (
	LitString   LiteralKind = iota // bare word
	LitQuoted                      // "..." or '...', never coerced
	LitWhole                       // #42
	LitDecimal                     // ##4.2
	LitBool                        // true / false
	LitNull                        // null
	LitObjectID                    // 24 hex characters
	LitDate                        // 2024-01-31
	LitDateTime                    // 2024-01-31T10:00:00Z
	LitWildcard                    // *abc, abc*, *abc*
	LitVariable                    // ${name}
)

var literalNames = [...]string{
	"string", "quoted string", "whole number", "decimal", "boolean", "null",
	"object id", "date", "datetime", "wildcard", "variable",
}

func (k LiteralKind) String() string {
	if int(k) < len(literalNames) {
		return literalNames[k]
	}
	return "unknown"
}

// Numeric reports whether the literal was written with a # or ## prefix.
func (k LiteralKind) Numeric() bool {
	return k == LitWhole || k == LitDecimal
}

// Literal is a value as written in the query.
type Literal struct {
	Kind LiteralKind
	Text string // raw text; variable name for LitVariable
	Pos  int
}

// Walk visits n and its children depth first. Returning false from fn
// skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *BinaryOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *NotExpr:
		Walk(n.Expr, fn)
	case *ElemMatch:
		Walk(n.Cond, fn)
	}
}

// Conjuncts flattens a chain of && into its terms.
func Conjuncts(n Node) []Node {
	if b, ok := n.(*BinaryOp); ok && b.Op == "&&" {
		return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
	}
	return []Node{n}
}

// Disjuncts flattens a chain of || into its terms.
func Disjuncts(n Node) []Node {
	if b, ok := n.(*BinaryOp); ok && b.Op == "||" {
		return append(Disjuncts(b.Left), Disjuncts(b.Right)...)
	}
	return []Node{n}
}

// IsDirective reports whether n is a planning marker rather than a filter.
func IsDirective(n Node) bool {
	switch n.(type) {
	case *ExpandExpr, *FieldsExpr:
		return true
	}
	return false
}
