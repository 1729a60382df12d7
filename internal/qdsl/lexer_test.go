package qdsl

import "testing"

func collectTokens(t *testing.T, input string) []Token {
	t.Helper()
	l := NewLexer(input)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("Next() on %q: %v", input, err)
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks
		}
	}
}

func TestLexerStructure(t *testing.T) {
	toks := collectTokens(t, `!!(a.b && c || d) {x} [y, +z, -w] "s"`)
	want := []TokenKind{
		TokNot, TokLParen, TokField, TokAnd, TokField, TokOr, TokField, TokRParen,
		TokLBrace, TokField, TokRBrace,
		TokLBracket, TokField, TokComma, TokPlus, TokField, TokComma, TokMinus, TokField, TokRBracket,
		TokString, TokEOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: expected %s, got %s", i, k, toks[i].Kind)
		}
	}
}

func TestLexerOperators(t *testing.T) {
	tests := map[string]string{
		"a:":   ":",
		"a:!":  ":!",
		"a:>":  ":>",
		"a:>=": ":>=",
		"a:<":  ":<",
		"a:<=": ":<=",
		"a:^":  ":^",
		"a:!^": ":!^",
		"a:=[": ":^",
	}
	for input, want := range tests {
		toks := collectTokens(t, input)
		if toks[1].Kind != TokOp || toks[1].Lit != want {
			t.Errorf("%q: expected operator %q, got %v", input, want, toks[1])
		}
	}
}

func TestLexerFieldWithArrayHop(t *testing.T) {
	toks := collectTokens(t, "items[*].product")
	if toks[0].Kind != TokField || toks[0].Lit != "items[*].product" {
		t.Fatalf("expected a single field token, got %v", toks[0])
	}
}

func TestLexerValueMode(t *testing.T) {
	tests := []struct {
		input string
		kind  TokenKind
		lit   string
	}{
		{"2024-01-31T10:00:00Z && x", TokWord, "2024-01-31T10:00:00Z"},
		{"#12)", TokWhole, "12"},
		{"##-0.5,", TokDecimal, "-0.5"},
		{"${ owner }", TokVariable, "owner"},
		{`'it''s'`, TokString, "it"},
		{"*abc*}", TokWord, "*abc*"},
	}
	for _, tt := range tests {
		tok, err := NewLexer(tt.input).NextValue()
		if err != nil {
			t.Fatalf("NextValue(%q): %v", tt.input, err)
		}
		if tok.Kind != tt.kind || tok.Lit != tt.lit {
			t.Errorf("NextValue(%q): expected %s %q, got %s %q", tt.input, tt.kind, tt.lit, tok.Kind, tok.Lit)
		}
	}
}

func TestLexerPeekRuneAfterEOF(t *testing.T) {
	l := NewLexer("  ")
	if _, err := l.Peek(); err != nil {
		t.Fatal(err)
	}
	if r := l.PeekRune(); r != 0 {
		t.Fatalf("expected 0 at end of input, got %q", r)
	}
}
