package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/strata-dev/strata/pkg/api"
)

// EvaluateAll evaluates a top-level filter list against a record. An
// empty list matches every record.
func EvaluateAll(exprs []Expression, rec api.Record) (bool, error) {
	return evaluateGroup(exprs, rec)
}

// Evaluate evaluates a single expression node against a record. A bare
// logical token is not a complete expression and is rejected.
func Evaluate(expr Expression, rec api.Record) (bool, error) {
	switch e := expr.(type) {
	case Criterion:
		return evaluateCriterion(e, rec)
	case Group:
		return evaluateGroup(e, rec)
	case Token:
		return false, api.NewError(api.ErrCodeValidation, "logical token %q is not a complete expression", e)
	default:
		return false, api.NewError(api.ErrCodeValidation, "unknown expression node %T", expr)
	}
}

// evaluateGroup walks the list left to right with a running result.
// The first non-token entry seeds the result; each later non-token entry
// is combined using the most recent token, defaulting to AND. A leading
// token therefore never pairs the first two operands specially; it only
// sets the combinator for subsequent pairs.
func evaluateGroup(exprs []Expression, rec api.Record) (bool, error) {
	combinator := TokenAnd
	seeded := false
	result := true
	for _, expr := range exprs {
		if tok, ok := expr.(Token); ok {
			switch tok {
			case TokenAnd, TokenOr:
				combinator = tok
			default:
				return false, api.NewError(api.ErrCodeValidation, "unknown logical token %q", tok)
			}
			continue
		}
		value, err := Evaluate(expr, rec)
		if err != nil {
			return false, err
		}
		if !seeded {
			result = value
			seeded = true
			continue
		}
		if combinator == TokenOr {
			result = result || value
		} else {
			result = result && value
		}
	}
	return result, nil
}

func evaluateCriterion(c Criterion, rec api.Record) (bool, error) {
	fieldValue := rec[c.Field]

	switch c.Operator {
	case OpEqual:
		return looseEqual(fieldValue, c.Value), nil
	case OpNotEqual:
		return !looseEqual(fieldValue, c.Value), nil
	case OpGreater:
		return compareValues(fieldValue, c.Value) > 0, nil
	case OpGreaterEqual:
		return compareValues(fieldValue, c.Value) >= 0, nil
	case OpLess:
		return compareValues(fieldValue, c.Value) < 0, nil
	case OpLessEqual:
		return compareValues(fieldValue, c.Value) <= 0, nil
	case OpIn, OpNotIn:
		list, ok := toList(c.Value)
		if !ok {
			return false, api.NewError(api.ErrCodeValidation, "operator %q requires a list value for field %q", c.Operator, c.Field)
		}
		member := false
		for _, item := range list {
			if looseEqual(fieldValue, item) {
				member = true
				break
			}
		}
		if c.Operator == OpNotIn {
			return !member, nil
		}
		return member, nil
	case OpContains, OpStartsWith, OpEndsWith:
		if fieldValue == nil {
			return false, nil
		}
		haystack := strings.ToLower(stringify(fieldValue))
		needle := strings.ToLower(stringify(c.Value))
		switch c.Operator {
		case OpStartsWith:
			return strings.HasPrefix(haystack, needle), nil
		case OpEndsWith:
			return strings.HasSuffix(haystack, needle), nil
		default:
			return strings.Contains(haystack, needle), nil
		}
	case OpBetween:
		bounds, ok := toList(c.Value)
		if !ok || len(bounds) != 2 {
			return false, api.NewError(api.ErrCodeValidation, "operator %q requires a [low, high] pair for field %q", c.Operator, c.Field)
		}
		return compareValues(fieldValue, bounds[0]) >= 0 && compareValues(fieldValue, bounds[1]) <= 0, nil
	default:
		return false, api.NewError(api.ErrCodeUnsupportedOperator, "unsupported filter operator %q", c.Operator)
	}
}

// looseEqual compares two values for equality across the JSON-compatible
// kinds. A missing field (nil) never equals anything, including nil.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return stringify(a) == stringify(b)
}

// compareValues orders two values. nil sorts below any defined value;
// numbers compare numerically, everything else by string form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
