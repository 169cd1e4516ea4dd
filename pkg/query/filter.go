package query

import (
	"fmt"

	"github.com/strata-dev/strata/pkg/api"
)

// Operator is a comparison operator on a filter criterion.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpContains     Operator = "contains"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpBetween      Operator = "between"
)

// Valid reports whether the operator is one of the supported set.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual,
		OpIn, OpNotIn, OpContains, OpStartsWith, OpEndsWith, OpBetween:
		return true
	}
	return false
}

// Expression is one node of a filter tree. The set of implementations is
// closed: Criterion, Token and Group. Consumers switch exhaustively over
// these three instead of inspecting raw decoded values.
type Expression interface {
	isExpression()
}

// Criterion is a single field comparison. Immutable once constructed.
type Criterion struct {
	Field    string
	Operator Operator
	Value    any
}

func (Criterion) isExpression() {}

// Where constructs a criterion.
func Where(field string, op Operator, value any) Criterion {
	return Criterion{Field: field, Operator: op, Value: value}
}

// Token is an infix logical combinator between sibling expressions.
type Token string

const (
	TokenAnd Token = "and"
	TokenOr  Token = "or"
)

func (Token) isExpression() {}

// Group is a nested sub-expression list, evaluated recursively before
// being combined at the parent level.
type Group []Expression

func (Group) isExpression() {}

// Decode converts a plain decoded JSON/YAML value into a typed
// expression node. Accepted shapes:
//
//   - the string "and" or "or" (a logical token)
//   - a three-element list [field, operator, value] where field and
//     operator are strings and operator is a supported operator
//   - any other list (a sub-group, decoded recursively)
//   - a map {field, operator, value}
func Decode(v any) (Expression, error) {
	switch val := v.(type) {
	case string:
		switch Token(val) {
		case TokenAnd, TokenOr:
			return Token(val), nil
		}
		return nil, api.NewError(api.ErrCodeValidation, "unexpected filter token %q", val)
	case []any:
		if c, ok := criterionFromList(val); ok {
			return c, nil
		}
		group := make(Group, 0, len(val))
		for _, item := range val {
			expr, err := Decode(item)
			if err != nil {
				return nil, err
			}
			group = append(group, expr)
		}
		return group, nil
	case map[string]any:
		return criterionFromMap(val)
	case Expression:
		return val, nil
	default:
		return nil, api.NewError(api.ErrCodeValidation, "cannot decode filter expression from %T", v)
	}
}

// DecodeList decodes a filter list, the shape carried by queries and
// policy statements. Each element becomes one expression at the top
// nesting level.
func DecodeList(items []any) ([]Expression, error) {
	exprs := make([]Expression, 0, len(items))
	for _, item := range items {
		expr, err := Decode(item)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// criterionFromList recognizes the [field, operator, value] triple.
// A three-element list whose first two entries are a string field and a
// supported operator string is a criterion; anything else is a group.
func criterionFromList(items []any) (Criterion, bool) {
	if len(items) != 3 {
		return Criterion{}, false
	}
	field, ok := items[0].(string)
	if !ok {
		return Criterion{}, false
	}
	opStr, ok := items[1].(string)
	if !ok {
		return Criterion{}, false
	}
	op := Operator(opStr)
	if !op.Valid() {
		return Criterion{}, false
	}
	return Criterion{Field: field, Operator: op, Value: items[2]}, true
}

func criterionFromMap(m map[string]any) (Expression, error) {
	field, _ := m["field"].(string)
	opStr, _ := m["operator"].(string)
	if field == "" || opStr == "" {
		return nil, api.NewError(api.ErrCodeValidation, "filter map requires field and operator keys")
	}
	return Criterion{Field: field, Operator: Operator(opStr), Value: m["value"]}, nil
}

// Encode converts a typed expression back into the plain wire shape,
// the inverse of Decode.
func Encode(expr Expression) any {
	switch e := expr.(type) {
	case Criterion:
		return []any{e.Field, string(e.Operator), e.Value}
	case Token:
		return string(e)
	case Group:
		return EncodeList(e)
	default:
		return nil
	}
}

// EncodeList encodes a top-level expression list.
func EncodeList(exprs []Expression) []any {
	out := make([]any, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, Encode(expr))
	}
	return out
}

// Validate walks the expression and rejects unsupported operators and
// malformed nodes without evaluating anything.
func Validate(expr Expression) error {
	switch e := expr.(type) {
	case Criterion:
		if !e.Operator.Valid() {
			return api.NewError(api.ErrCodeUnsupportedOperator, "unsupported filter operator %q", e.Operator)
		}
		return nil
	case Token:
		switch e {
		case TokenAnd, TokenOr:
			return nil
		}
		return api.NewError(api.ErrCodeValidation, "unknown logical token %q", e)
	case Group:
		for _, child := range e {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return api.NewError(api.ErrCodeValidation, "unknown expression node %T", expr)
	}
}

// ValidateAll validates every expression in a filter list.
func ValidateAll(exprs []Expression) error {
	for _, expr := range exprs {
		if err := Validate(expr); err != nil {
			return err
		}
	}
	return nil
}

// WalkValues visits every criterion in the tree and replaces its value
// with the result of fn. The tree is rewritten in place for groups; a
// rewritten copy of the input slice is returned.
func WalkValues(exprs []Expression, fn func(v any) any) []Expression {
	out := make([]Expression, len(exprs))
	for i, expr := range exprs {
		out[i] = walkValue(expr, fn)
	}
	return out
}

func walkValue(expr Expression, fn func(v any) any) Expression {
	switch e := expr.(type) {
	case Criterion:
		return Criterion{Field: e.Field, Operator: e.Operator, Value: fn(e.Value)}
	case Group:
		return Group(WalkValues(e, fn))
	default:
		return expr
	}
}

// String renders the expression for diagnostics.
func String(expr Expression) string {
	return fmt.Sprintf("%v", Encode(expr))
}
