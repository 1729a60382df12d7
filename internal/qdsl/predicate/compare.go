package predicate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/e2eq/querycore/internal/qdsl"
)

// compareValues orders a document value against a query value. ok is
// false when the pair has no ordering (a missing or null side).
func compareValues(docVal, want any) (int, bool) {
	// a string on both sides compares as written, so "0606" stays "0606"
	if ws, ok := want.(string); ok {
		if ds, ok := docVal.(string); ok {
			return strings.Compare(ds, ws), true
		}
	}
	return compareScalar(normalize(docVal), want)
}

// normalize maps store and JSON representations onto the types query
// literals use: textual values are coerced like list words.
func normalize(v any) any {
	switch v := v.(type) {
	case string:
		return qdsl.Coerce(v)
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	}
	return v
}

func compareScalar(lhs, rhs any) (int, bool) {
	if lhs == nil || rhs == nil {
		return 0, lhs == nil && rhs == nil
	}
	if ln, ok := number(lhs); ok {
		if rn, ok := number(rhs); ok {
			switch {
			case ln < rn:
				return -1, true
			case ln > rn:
				return 1, true
			}
			return 0, true
		}
	}
	if lb, ok := lhs.(bool); ok {
		if rb, ok := rhs.(bool); ok {
			switch {
			case lb == rb:
				return 0, true
			case rb:
				return -1, true
			}
			return 1, true
		}
	}
	if lt, ok := lhs.(time.Time); ok {
		if rt, ok := rhs.(time.Time); ok {
			return lt.Compare(rt), true
		}
	}
	if lo, ok := lhs.(primitive.ObjectID); ok {
		if ro, ok := rhs.(primitive.ObjectID); ok {
			return bytes.Compare(lo[:], ro[:]), true
		}
	}
	// ids, times and booleans never equal a value of another type
	if typed(lhs) || typed(rhs) {
		return 0, false
	}
	return strings.Compare(text(lhs), text(rhs)), true
}

func typed(v any) bool {
	switch v.(type) {
	case primitive.ObjectID, time.Time, bool:
		return true
	}
	return false
}

func number(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		f, err := cast.ToFloat64E(v)
		return f, err == nil
	}
	return 0, false
}

func text(v any) string {
	switch v := v.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

// asBoolean reads booleans, non-zero numbers and "true"/"false" text.
func asBoolean(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if strings.EqualFold(b, "true") || strings.EqualFold(b, "false") {
			return strings.EqualFold(b, "true"), true
		}
		return false, false
	}
	if n, ok := number(v); ok {
		return n != 0, true
	}
	return false, false
}
