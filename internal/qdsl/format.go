package qdsl

import "strings"

// Format renders a tree back to query text. Nested binary expressions are
// parenthesized, so parsing the output yields the same tree.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n, true)
	return sb.String()
}

func format(sb *strings.Builder, n Node, top bool) {
	switch n := n.(type) {
	case *BinaryOp:
		if !top {
			sb.WriteByte('(')
		}
		format(sb, n.Left, false)
		sb.WriteString(" " + n.Op + " ")
		format(sb, n.Right, false)
		if !top {
			sb.WriteByte(')')
		}
	case *NotExpr:
		sb.WriteString("!!")
		format(sb, n.Expr, false)
	case *Comparison:
		sb.WriteString(n.Field + n.Op.String())
		formatLiteral(sb, n.Value)
	case *InExpr:
		sb.WriteString(n.Field)
		if n.Negate {
			sb.WriteString(":!^[")
		} else {
			sb.WriteString(":^[")
		}
		for i, item := range n.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			formatLiteral(sb, item)
		}
		sb.WriteByte(']')
	case *ElemMatch:
		sb.WriteString(n.Field + ":{")
		format(sb, n.Cond, true)
		sb.WriteByte('}')
	case *ExistsExpr:
		sb.WriteString("exists(" + n.Field + ")")
	case *TextExpr:
		sb.WriteString("text(")
		quote(sb, n.Search)
		sb.WriteByte(')')
	case *ExpandExpr:
		sb.WriteString("expand(" + n.Path + ")")
	case *FieldsExpr:
		sb.WriteString("fields:[")
		for i, item := range n.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			switch {
			case item.Exclude:
				sb.WriteByte('-')
			case item.Plus:
				sb.WriteByte('+')
			}
			sb.WriteString(item.Path)
		}
		sb.WriteByte(']')
	}
}

func formatLiteral(sb *strings.Builder, l Literal) {
	switch l.Kind {
	case LitQuoted:
		quote(sb, l.Text)
	case LitWhole:
		sb.WriteString("#" + l.Text)
	case LitDecimal:
		sb.WriteString("##" + l.Text)
	case LitVariable:
		sb.WriteString("${" + l.Text + "}")
	default:
		sb.WriteString(l.Text)
	}
}

func quote(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
}
