package qdsl

// FieldClass is the coarse type of a declared field.
type FieldClass int

const (
	ClassOther FieldClass = iota
	ClassNumeric
	ClassString
)

func (c FieldClass) String() string {
	switch c {
	case ClassNumeric:
		return "numeric"
	case ClassString:
		return "string"
	}
	return "non-numeric"
}

// FieldTypes reports declared field classes. A schema validator satisfies
// it; compilers without one skip type checks.
type FieldTypes interface {
	FieldClass(path string) (FieldClass, bool)
}

// CheckTypes rejects relational comparisons of # or ## literals against
// fields declared non-numeric.
func CheckTypes(root Node, types FieldTypes) error {
	if types == nil {
		return nil
	}
	var err error
	var visit func(n Node, prefix string)
	visit = func(n Node, prefix string) {
		if err != nil {
			return
		}
		switch n := n.(type) {
		case *BinaryOp:
			visit(n.Left, prefix)
			visit(n.Right, prefix)
		case *NotExpr:
			visit(n.Expr, prefix)
		case *ElemMatch:
			visit(n.Cond, prefix+n.Field+".")
		case *Comparison:
			if !n.Op.Relational() || !n.Value.Kind.Numeric() {
				return
			}
			path := prefix + n.Field
			if class, ok := types.FieldClass(path); ok && class != ClassNumeric {
				err = ErrTypeMismatch.New(path, class, n.Value.Text)
			}
		}
	}
	visit(root, "")
	return err
}

// KeepsStrings reports whether IN-list words for path should stay strings.
func KeepsStrings(types FieldTypes, path string) bool {
	if types == nil {
		return false
	}
	class, ok := types.FieldClass(path)
	return ok && class == ClassString
}
