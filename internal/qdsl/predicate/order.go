package predicate

// Value returns the first value at a dotted path of doc.
func Value(doc any, path string) (any, bool) {
	values := lookup(doc, path)
	if len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

// Compare orders two document values for sorting. Missing and null values
// sort first; values without a natural order compare by their text.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	order, _ := compareScalar(normalize(a), normalize(b))
	return order
}
