package qdsl

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	objectIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{24}$`)
	wholePattern    = regexp.MustCompile(`^-?\d+$`)
	decimalPattern  = regexp.MustCompile(`^-?\d+\.\d+$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const dateLayout = "2006-01-02"

// StringLiteral marks a value that must stay a string through Coerce.
// Quoted query literals and quoted variable interpolations produce it.
type StringLiteral string

func classifyWord(w string) LiteralKind {
	switch {
	case strings.EqualFold(w, "true") || strings.EqualFold(w, "false"):
		return LitBool
	case strings.EqualFold(w, "null"):
		return LitNull
	case objectIDPattern.MatchString(w):
		return LitObjectID
	case datePattern.MatchString(w):
		if _, err := time.Parse(dateLayout, w); err == nil {
			return LitDate
		}
	case isDateTime(w):
		return LitDateTime
	case strings.HasPrefix(w, "*") || strings.HasSuffix(w, "*"):
		return LitWildcard
	}
	return LitString
}

func isDateTime(s string) bool {
	_, err := time.Parse(time.RFC3339Nano, s)
	return err == nil
}

// Coerce converts a textual value into the most specific type it looks
// like: ObjectID, bool, int64, float64, time.Time (datetime, then date),
// falling back to the string itself. Non-string values pass through, and
// StringLiteral is unwrapped without coercion.
func Coerce(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case StringLiteral:
		return string(v)
	case string:
		return coerceString(v)
	default:
		return v
	}
}

func coerceString(s string) any {
	if objectIDPattern.MatchString(s) {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return strings.EqualFold(s, "true")
	}
	if wholePattern.MatchString(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	if decimalPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	return s
}

// Value converts a non-variable literal to its typed value. Bare words keep
// string semantics; only the explicit forms (#, ##, booleans, ids, dates)
// produce other types.
func (l Literal) Value() (any, error) {
	switch l.Kind {
	case LitString, LitQuoted:
		return l.Text, nil
	case LitWhole:
		n, err := strconv.ParseInt(l.Text, 10, 64)
		if err != nil {
			return nil, ErrInvalidLiteral.New(l.Kind, l.Text)
		}
		return n, nil
	case LitDecimal:
		f, err := strconv.ParseFloat(l.Text, 64)
		if err != nil {
			return nil, ErrInvalidLiteral.New(l.Kind, l.Text)
		}
		return f, nil
	case LitBool:
		return strings.EqualFold(l.Text, "true"), nil
	case LitNull:
		return nil, nil
	case LitObjectID:
		oid, err := primitive.ObjectIDFromHex(l.Text)
		if err != nil {
			return nil, ErrInvalidLiteral.New(l.Kind, l.Text)
		}
		return oid, nil
	case LitDate:
		t, err := time.Parse(dateLayout, l.Text)
		if err != nil {
			return nil, ErrInvalidLiteral.New(l.Kind, l.Text)
		}
		return t, nil
	case LitDateTime:
		t, err := time.Parse(time.RFC3339Nano, l.Text)
		if err != nil {
			return nil, ErrInvalidLiteral.New(l.Kind, l.Text)
		}
		return t, nil
	case LitWildcard:
		return WildcardPattern(l.Text), nil
	}
	return nil, ErrInvalidLiteral.New(l.Kind, l.Text)
}

// ListValue converts a list item. Bare words in a list are coerced unless
// keepString is set, which callers use for fields declared as strings.
func (l Literal) ListValue(keepString bool) (any, error) {
	if l.Kind == LitString && !keepString {
		return Coerce(l.Text), nil
	}
	return l.Value()
}

// WildcardPattern turns *abc* style words into an anchored regular
// expression. A leading or trailing * leaves that side open; everything
// else is matched literally.
func WildcardPattern(w string) string {
	left := strings.HasPrefix(w, "*")
	right := strings.HasSuffix(w, "*") && len(w) > 1
	body := strings.TrimSuffix(strings.TrimPrefix(w, "*"), "*")
	if w == "*" {
		body = ""
	}

	var sb strings.Builder
	if left {
		sb.WriteString(".*")
	} else {
		sb.WriteString("^")
	}
	sb.WriteString(regexp.QuoteMeta(body))
	if right {
		sb.WriteString(".*")
	} else {
		sb.WriteString("$")
	}
	return sb.String()
}
