package qdsl

import (
	"strings"
	"unicode"
)

// Lexer tokenizes a query string.
//
// The language is context sensitive: structure (fields, operators, groups)
// is read with Next/Peek, while the right-hand side of a comparison is read
// with NextValue, which accepts words such as dates, hex ids and wildcards.
type Lexer struct {
	input  []rune
	pos    int
	peeked *Token
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Peek returns the next structural token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked != nil {
		return *l.peeked, nil
	}
	tok, err := l.next()
	if err != nil {
		return Token{}, err
	}
	l.peeked = &tok
	return tok, nil
}

// Next consumes and returns the next structural token.
func (l *Lexer) Next() (Token, error) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, nil
	}
	return l.next()
}

// PeekRune reports the next non-space rune without consuming anything.
func (l *Lexer) PeekRune() rune {
	if l.peeked != nil {
		if l.peeked.Kind == TokEOF {
			return 0
		}
		return l.input[l.peeked.Pos]
	}
	i := l.pos
	for i < len(l.input) && unicode.IsSpace(l.input[i]) {
		i++
	}
	if i >= len(l.input) {
		return 0
	}
	return l.input[i]
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]
	pos := l.pos

	switch ch {
	case '(':
		return l.single(TokLParen), nil
	case ')':
		return l.single(TokRParen), nil
	case '{':
		return l.single(TokLBrace), nil
	case '}':
		return l.single(TokRBrace), nil
	case '[':
		return l.single(TokLBracket), nil
	case ']':
		return l.single(TokRBracket), nil
	case ',':
		return l.single(TokComma), nil
	case '+':
		return l.single(TokPlus), nil
	case '-':
		return l.single(TokMinus), nil
	case '&':
		if l.at(1) == '&' {
			l.pos += 2
			return Token{Kind: TokAnd, Lit: "&&", Pos: pos}, nil
		}
		return Token{}, l.errorf(pos, "unexpected '&', did you mean '&&'?")
	case '|':
		if l.at(1) == '|' {
			l.pos += 2
			return Token{Kind: TokOr, Lit: "||", Pos: pos}, nil
		}
		return Token{}, l.errorf(pos, "unexpected '|', did you mean '||'?")
	case '!':
		if l.at(1) == '!' {
			l.pos += 2
			return Token{Kind: TokNot, Lit: "!!", Pos: pos}, nil
		}
		return Token{}, l.errorf(pos, "unexpected '!', did you mean '!!'?")
	case ':':
		return l.readOperator(pos), nil
	case '"', '\'':
		return l.readString(pos)
	default:
		if isFieldStart(ch) {
			return l.readField(pos)
		}
		return Token{}, l.errorf(pos, "unexpected character %q", ch)
	}
}

// NextValue reads the value that follows a comparison operator.
func (l *Lexer) NextValue() (Token, error) {
	if l.peeked != nil {
		return Token{}, l.errorf(l.peeked.Pos, "internal: value read with pending token")
	}
	l.skipWhitespace()
	pos := l.pos
	if l.pos >= len(l.input) {
		return Token{}, l.errorf(pos, "expected value, got end of query")
	}

	switch ch := l.input[l.pos]; {
	case ch == '"' || ch == '\'':
		return l.readString(pos)
	case ch == '#' && l.at(1) == '#':
		l.pos += 2
		return l.readNumber(pos, TokDecimal)
	case ch == '#':
		l.pos++
		return l.readNumber(pos, TokWhole)
	case ch == '$' && l.at(1) == '{':
		return l.readVariable(pos)
	}

	start := l.pos
	for l.pos < len(l.input) && !isValueDelim(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return Token{}, l.errorf(pos, "expected value, got %q", l.input[l.pos])
	}
	return Token{Kind: TokWord, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
}

func (l *Lexer) single(kind TokenKind) Token {
	tok := Token{Kind: kind, Lit: string(l.input[l.pos]), Pos: l.pos}
	l.pos++
	return tok
}

func (l *Lexer) at(offset int) rune {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *Lexer) readOperator(pos int) Token {
	l.pos++ // skip :
	lit := ":"
	switch l.at(0) {
	case '=':
		// legacy ":=[" list syntax
		if l.at(1) == '[' {
			l.pos++
			lit = ":^"
		}
	case '^':
		l.pos++
		lit = ":^"
	case '!':
		l.pos++
		lit = ":!"
		if l.at(0) == '^' {
			l.pos++
			lit = ":!^"
		}
	case '>', '<':
		lit += string(l.at(0))
		l.pos++
		if l.at(0) == '=' {
			l.pos++
			lit += "="
		}
	}
	return Token{Kind: TokOp, Lit: lit, Pos: pos}
}

func (l *Lexer) readString(pos int) (Token, error) {
	quote := l.input[l.pos]
	l.pos++ // skip opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			sb.WriteRune(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++ // skip closing quote
			return Token{Kind: TokString, Lit: sb.String(), Pos: pos}, nil
		}
		sb.WriteRune(ch)
		l.pos++
	}
	return Token{}, l.errorf(pos, "unterminated string literal")
}

func (l *Lexer) readNumber(pos int, kind TokenKind) (Token, error) {
	start := l.pos
	if l.at(0) == '-' {
		l.pos++
	}
	digits := l.skipDigits()
	if kind == TokDecimal && l.at(0) == '.' {
		l.pos++
		if l.skipDigits() == 0 {
			return Token{}, l.errorf(pos, "malformed decimal literal")
		}
	}
	if digits == 0 {
		return Token{}, l.errorf(pos, "expected digits after '#'")
	}
	if l.pos < len(l.input) && !isValueDelim(l.input[l.pos]) {
		return Token{}, l.errorf(pos, "malformed number literal")
	}
	return Token{Kind: kind, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
}

func (l *Lexer) skipDigits() int {
	n := 0
	for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
		l.pos++
		n++
	}
	return n
}

func (l *Lexer) readVariable(pos int) (Token, error) {
	l.pos += 2 // skip ${
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '}' {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return Token{}, l.errorf(pos, "unterminated variable")
	}
	name := strings.TrimSpace(string(l.input[start:l.pos]))
	l.pos++ // skip }
	if name == "" {
		return Token{}, l.errorf(pos, "empty variable name")
	}
	return Token{Kind: TokVariable, Lit: name, Pos: pos}, nil
}

func (l *Lexer) readField(pos int) (Token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isFieldCont(ch) {
			l.pos++
			continue
		}
		if ch == '[' && l.at(1) == '*' && l.at(2) == ']' {
			l.pos += 3
			continue
		}
		break
	}
	lit := string(l.input[start:l.pos])
	if strings.HasSuffix(lit, ".") || strings.Contains(lit, "..") {
		return Token{}, l.errorf(pos, "malformed field path %q", lit)
	}
	return Token{Kind: TokField, Lit: lit, Pos: pos}, nil
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

// position converts a rune offset into a 1-based line and column.
func (l *Lexer) position(pos int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < pos && i < len(l.input); i++ {
		if l.input[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func (l *Lexer) errorf(pos int, format string, args ...any) error {
	line, col := l.position(pos)
	return newParseError(line, col, format, args...)
}

func isFieldStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isFieldCont(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

func isValueDelim(ch rune) bool {
	if unicode.IsSpace(ch) {
		return true
	}
	switch ch {
	case '&', '|', ')', '}', ']', ',':
		return true
	}
	return false
}
