package qdsl

// Analysis holds the planning-relevant markers found in a query.
type Analysis struct {
	ExpandPaths []string // in query order, without duplicates
	Projection  *FieldsExpr
	HasText     bool
}

// Analyze collects expand(...) paths and the fields:[...] projection
// without compiling a filter.
func Analyze(root Node) Analysis {
	var a Analysis
	seen := make(map[string]bool)
	Walk(root, func(n Node) bool {
		switch n := n.(type) {
		case *ExpandExpr:
			if !seen[n.Path] {
				seen[n.Path] = true
				a.ExpandPaths = append(a.ExpandPaths, n.Path)
			}
		case *FieldsExpr:
			if a.Projection == nil {
				a.Projection = &FieldsExpr{}
			}
			a.Projection.Items = append(a.Projection.Items, n.Items...)
		case *TextExpr:
			a.HasText = true
		}
		return true
	})
	return a
}

// FieldRef is a field path referenced by a query, with element-match
// prefixes applied.
type FieldRef struct {
	Path    string
	Numeric bool // compared relationally against a # or ## literal
}

// FieldRefs lists the field paths a query filters on. Paths inside an
// element match are prefixed with the array field, so field:{sub:#1}
// yields "field" and "field.sub". Directives are not included.
func FieldRefs(root Node) []FieldRef {
	var refs []FieldRef
	var visit func(n Node, prefix string)
	visit = func(n Node, prefix string) {
		switch n := n.(type) {
		case *BinaryOp:
			visit(n.Left, prefix)
			visit(n.Right, prefix)
		case *NotExpr:
			visit(n.Expr, prefix)
		case *Comparison:
			refs = append(refs, FieldRef{
				Path:    prefix + n.Field,
				Numeric: n.Op.Relational() && n.Value.Kind.Numeric(),
			})
		case *InExpr:
			refs = append(refs, FieldRef{Path: prefix + n.Field})
		case *ExistsExpr:
			refs = append(refs, FieldRef{Path: prefix + n.Field})
		case *ElemMatch:
			refs = append(refs, FieldRef{Path: prefix + n.Field})
			visit(n.Cond, prefix+n.Field+".")
		}
	}
	visit(root, "")
	return refs
}
