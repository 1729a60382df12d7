package qdsl

import (
	"strings"
)

// Parse parses a query string into an AST. Any syntax error aborts the
// parse; no partial tree is returned.
func Parse(input string) (Node, error) {
	p := &parser{lexer: NewLexer(input), positions: make(map[Node]int)}
	if strings.TrimSpace(input) == "" {
		return nil, p.errorf(0, "empty query")
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	// Ensure we consumed everything.
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind != TokEOF {
		return nil, p.errorf(tok.Pos, "unexpected %s, expected end of query", tok.Kind)
	}
	if err := p.checkPlacement(node); err != nil {
		return nil, err
	}
	return node, nil
}

type parser struct {
	lexer *Lexer
	// positions of directive and text nodes, for placement errors
	positions map[Node]int
}

func (p *parser) peek() (Token, error) {
	return p.lexer.Peek()
}

func (p *parser) advance() {
	p.lexer.Next()
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok, err := p.lexer.Next()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind != kind {
		return Token{}, p.errorf(tok.Pos, "expected %s, got %s", kind, tok.Kind)
	}
	return tok, nil
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return p.lexer.errorf(pos, format, args...)
}

// parseOr: andExpr { "||" andExpr }
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokOr {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: "||", Left: left, Right: right}
	}
}

// parseAnd: unary { "&&" unary }
func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind != TokAnd {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: "&&", Left: left, Right: right}
	}
}

// parseUnary: "!!" unary | primary
func (p *parser) parseUnary() (Node, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokNot {
		p.advance()
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}

	switch tok.Kind {
	case TokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case TokField:
		p.advance()
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if next.Kind == TokLParen {
			return p.parseDirective(tok)
		}
		if next.Kind != TokOp {
			return nil, p.errorf(next.Pos, "expected operator after field %q, got %s", tok.Lit, next.Kind)
		}
		p.advance()
		return p.parsePredicate(tok, next)

	default:
		return nil, p.errorf(tok.Pos, "unexpected %s, expected field or '('", tok.Kind)
	}
}

// parseDirective handles name(...) forms: expand(path), text("..."), exists(field).
func (p *parser) parseDirective(name Token) (Node, error) {
	p.advance() // consume (

	var node Node
	switch name.Lit {
	case "expand":
		arg, err := p.expect(TokField)
		if err != nil {
			return nil, err
		}
		node = &ExpandExpr{Path: arg.Lit}
	case "exists":
		arg, err := p.expect(TokField)
		if err != nil {
			return nil, err
		}
		if strings.Contains(arg.Lit, "[*]") {
			return nil, p.errorf(arg.Pos, "array marker not allowed in exists()")
		}
		node = &ExistsExpr{Field: arg.Lit}
	case "text":
		arg, err := p.expect(TokString)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(arg.Lit) == "" {
			return nil, p.errorf(arg.Pos, "text() search must not be empty")
		}
		node = &TextExpr{Search: arg.Lit}
	default:
		return nil, p.errorf(name.Pos, "unknown function %q", name.Lit)
	}

	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	p.positions[node] = name.Pos
	return node, nil
}

// parsePredicate handles everything after "field op".
func (p *parser) parsePredicate(field, op Token) (Node, error) {
	if strings.Contains(field.Lit, "[*]") {
		return nil, p.errorf(field.Pos, "array marker only allowed in expand(): %q", field.Lit)
	}

	switch op.Lit {
	case ":^", ":!^":
		items, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &InExpr{Field: field.Lit, Negate: op.Lit == ":!^", Items: items}, nil
	case ":":
		switch p.lexer.PeekRune() {
		case '{':
			return p.parseElemMatch(field)
		case '[':
			if field.Lit == "fields" {
				return p.parseProjection(field)
			}
			return nil, p.errorf(op.Pos, "use :^[...] for list membership")
		}
	}

	cmp, ok := operators[op.Lit]
	if !ok {
		return nil, p.errorf(op.Pos, "unknown operator %q", op.Lit)
	}
	lit, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if cmp.Relational() {
		switch lit.Kind {
		case LitBool, LitNull, LitWildcard:
			return nil, p.errorf(lit.Pos, "%s value not allowed with operator %s", lit.Kind, cmp)
		}
	}
	return &Comparison{Field: field.Lit, Op: cmp, Value: lit}, nil
}

func (p *parser) parseElemMatch(field Token) (Node, error) {
	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return &ElemMatch{Field: field.Lit, Cond: cond}, nil
}

// parseList: "[" [ value { "," value } ] "]"
func (p *parser) parseList() ([]Literal, error) {
	if _, err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	var items []Literal
	if p.lexer.PeekRune() == ']' {
		p.advance()
		return items, nil
	}
	for {
		lit, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		switch lit.Kind {
		case LitNull, LitWildcard:
			return nil, p.errorf(lit.Pos, "%s value not allowed in a list", lit.Kind)
		}
		items = append(items, lit)

		tok, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokComma:
			continue
		case TokRBracket:
			return items, nil
		default:
			return nil, p.errorf(tok.Pos, "expected ',' or ']' in list, got %s", tok.Kind)
		}
	}
}

// parseProjection: "[" ["+"|"-"] field { "," ["+"|"-"] field } "]"
func (p *parser) parseProjection(field Token) (Node, error) {
	if _, err := p.expect(TokLBracket); err != nil {
		return nil, err
	}
	fe := &FieldsExpr{}
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		var item ProjectionItem
		switch tok.Kind {
		case TokPlus:
			item.Plus = true
			tok, err = p.expect(TokField)
		case TokMinus:
			item.Exclude = true
			tok, err = p.expect(TokField)
		case TokField:
		default:
			err = p.errorf(tok.Pos, "expected projection field, got %s", tok.Kind)
		}
		if err != nil {
			return nil, err
		}
		item.Path = tok.Lit
		fe.Items = append(fe.Items, item)

		sep, err := p.lexer.Next()
		if err != nil {
			return nil, err
		}
		if sep.Kind == TokRBracket {
			break
		}
		if sep.Kind != TokComma {
			return nil, p.errorf(sep.Pos, "expected ',' or ']' in fields, got %s", sep.Kind)
		}
	}
	p.positions[fe] = field.Pos
	return fe, nil
}

func (p *parser) parseValue() (Literal, error) {
	tok, err := p.lexer.NextValue()
	if err != nil {
		return Literal{}, err
	}
	lit := Literal{Text: tok.Lit, Pos: tok.Pos}
	switch tok.Kind {
	case TokString:
		lit.Kind = LitQuoted
	case TokWhole:
		lit.Kind = LitWhole
	case TokDecimal:
		lit.Kind = LitDecimal
	case TokVariable:
		lit.Kind = LitVariable
	default:
		lit.Kind = classifyWord(tok.Lit)
	}
	return lit, nil
}

// checkPlacement enforces that expand/fields/text only appear as direct
// conjuncts of the root expression and that text appears at most once.
func (p *parser) checkPlacement(root Node) error {
	allowed := make(map[Node]bool)
	for _, n := range Conjuncts(root) {
		allowed[n] = true
	}
	var err error
	texts := 0
	Walk(root, func(n Node) bool {
		if err != nil {
			return false
		}
		switch n.(type) {
		case *ExpandExpr, *FieldsExpr:
			if !allowed[n] {
				err = p.errorf(p.positions[n], "expand() and fields:[...] must be top-level conjuncts")
			}
		case *TextExpr:
			texts++
			switch {
			case texts > 1:
				err = p.errorf(p.positions[n], "only one text() search is allowed per query")
			case !allowed[n]:
				err = p.errorf(p.positions[n], "text() must be a top-level conjunct, not negated, nested or or'ed")
			}
		}
		return true
	})
	return err
}
