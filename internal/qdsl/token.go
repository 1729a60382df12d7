package qdsl

import "fmt"

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF      TokenKind = iota
	TokLParen             // (
	TokRParen             // )
	TokLBrace             // {
	TokRBrace             // }
	TokLBracket           // [
	TokRBracket           // ]
	TokComma              // ,
	TokPlus               // +
	TokMinus              // -
	TokAnd                // &&
	TokOr                 // ||
	TokNot                // !!
	TokOp                 // :, :!, :>, :>=, :<, :<=, :^, :!^
	TokField              // dotted field path, may carry [*] hops
	TokString             // "quoted" or 'quoted'

	// Value tokens, produced only by Lexer.NextValue.
	TokWhole    // #42
	TokDecimal  // ##3.14
	TokVariable // ${name}
	TokWord     // bare value word
)

// Token is a single lexical token produced by the lexer.
type Token struct {
	Kind TokenKind
	Lit  string // raw text of the token; unescaped for strings, name only for variables
	Pos  int    // rune offset in input
}

func (t Token) String() string {
	if t.Lit != "" {
		return fmt.Sprintf("%s(%q)", t.Kind, t.Lit)
	}
	return t.Kind.String()
}

var kindNames = map[TokenKind]string{
	TokEOF:      "EOF",
	TokLParen:   "(",
	TokRParen:   ")",
	TokLBrace:   "{",
	TokRBrace:   "}",
	TokLBracket: "[",
	TokRBracket: "]",
	TokComma:    ",",
	TokPlus:     "+",
	TokMinus:    "-",
	TokAnd:      "&&",
	TokOr:       "||",
	TokNot:      "!!",
	TokOp:       "operator",
	TokField:    "field",
	TokString:   "string",
	TokWhole:    "whole number",
	TokDecimal:  "decimal number",
	TokVariable: "variable",
	TokWord:     "value",
}

func (k TokenKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// operators maps the operator text after the field to its comparison.
var operators = map[string]CompareOp{
	":":   OpEq,
	":!":  OpNeq,
	":>":  OpGt,
	":>=": OpGte,
	":<":  OpLt,
	":<=": OpLte,
}
