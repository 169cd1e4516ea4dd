package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/query"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return api.NewError(api.ErrCodeValidation, "invalid entity name %q", name)
	}
	return nil
}

// jsonFieldExpr addresses a field as jsonb, which compares numbers
// numerically and keeps cross-type ordering deterministic.
func jsonFieldExpr(field string) (string, error) {
	if field == api.IDField {
		return "id", nil
	}
	if !identPattern.MatchString(field) {
		return "", api.NewError(api.ErrCodeValidation, "invalid field name %q", field)
	}
	return fmt.Sprintf("(data->'%s')", field), nil
}

// textFieldExpr addresses a field as text, for LIKE matching and group
// keys.
func textFieldExpr(field string) (string, error) {
	if field == api.IDField {
		return "id", nil
	}
	if !identPattern.MatchString(field) {
		return "", api.NewError(api.ErrCodeValidation, "invalid field name %q", field)
	}
	return fmt.Sprintf("(data->>'%s')", field), nil
}

// translator renders filter lists into WHERE fragments with $n
// placeholders, preserving the model's strict left-to-right combination
// by parenthesizing the running result at every step.
type translator struct {
	args []any
}

func newTranslator() *translator {
	return &translator{}
}

// bindJSON binds a value in its jsonb form.
func (t *translator) bindJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", api.NewError(api.ErrCodeValidation, "unencodable filter value: %v", err)
	}
	t.args = append(t.args, string(data))
	return fmt.Sprintf("$%d::jsonb", len(t.args)), nil
}

// bindText binds a value in its plain text form.
func (t *translator) bindText(v any) string {
	t.args = append(t.args, fmt.Sprintf("%v", v))
	return fmt.Sprintf("$%d", len(t.args))
}

func (t *translator) filters(exprs []query.Expression) (string, error) {
	var (
		current    string
		combinator = "AND"
	)
	for _, expr := range exprs {
		if tok, ok := expr.(query.Token); ok {
			switch tok {
			case query.TokenOr:
				combinator = "OR"
			case query.TokenAnd:
				combinator = "AND"
			default:
				return "", api.NewError(api.ErrCodeValidation, "unknown logical token %q", tok)
			}
			continue
		}
		frag, err := t.expr(expr)
		if err != nil {
			return "", err
		}
		if current == "" {
			current = frag
		} else {
			current = fmt.Sprintf("(%s %s %s)", current, combinator, frag)
		}
	}
	return current, nil
}

func (t *translator) expr(expr query.Expression) (string, error) {
	switch e := expr.(type) {
	case query.Group:
		frag, err := t.filters(e)
		if err != nil {
			return "", err
		}
		if frag == "" {
			return "TRUE", nil
		}
		return "(" + frag + ")", nil
	case query.Criterion:
		return t.criterion(e)
	default:
		return "", api.NewError(api.ErrCodeValidation, "unknown expression node %T", expr)
	}
}

func (t *translator) criterion(c query.Criterion) (string, error) {
	isID := c.Field == api.IDField
	expr, err := jsonFieldExpr(c.Field)
	if err != nil {
		return "", err
	}
	bind := func(v any) (string, error) {
		if isID {
			return t.bindText(v), nil
		}
		return t.bindJSON(v)
	}

	switch c.Operator {
	case query.OpEqual:
		ph, err := bind(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", expr, ph), nil
	case query.OpNotEqual:
		ph, err := bind(c.Value)
		if err != nil {
			return "", err
		}
		// IS DISTINCT FROM is null-safe: a missing field is unequal to
		// anything.
		return fmt.Sprintf("%s IS DISTINCT FROM %s", expr, ph), nil
	case query.OpGreater, query.OpGreaterEqual:
		ph, err := bind(c.Value)
		if err != nil {
			return "", err
		}
		op := ">"
		if c.Operator == query.OpGreaterEqual {
			op = ">="
		}
		return fmt.Sprintf("%s %s %s", expr, op, ph), nil
	case query.OpLess, query.OpLessEqual:
		ph, err := bind(c.Value)
		if err != nil {
			return "", err
		}
		op := "<"
		if c.Operator == query.OpLessEqual {
			op = "<="
		}
		// A missing field sorts below any defined value.
		return fmt.Sprintf("(%s %s %s OR %s IS NULL)", expr, op, ph, expr), nil
	case query.OpIn, query.OpNotIn:
		list, ok := asList(c.Value)
		if !ok {
			return "", api.NewError(api.ErrCodeValidation, "operator %q requires a list value for field %q", c.Operator, c.Field)
		}
		if len(list) == 0 {
			if c.Operator == query.OpNotIn {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		placeholders := make([]string, 0, len(list))
		for _, item := range list {
			ph, err := bind(item)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, ph)
		}
		joined := strings.Join(placeholders, ", ")
		if c.Operator == query.OpNotIn {
			return fmt.Sprintf("(%s NOT IN (%s) OR %s IS NULL)", expr, joined, expr), nil
		}
		return fmt.Sprintf("%s IN (%s)", expr, joined), nil
	case query.OpContains, query.OpStartsWith, query.OpEndsWith:
		textExpr, err := textFieldExpr(c.Field)
		if err != nil {
			return "", err
		}
		needle := likePattern(c.Value)
		switch c.Operator {
		case query.OpStartsWith:
			needle += "%"
		case query.OpEndsWith:
			needle = "%" + needle
		default:
			needle = "%" + needle + "%"
		}
		ph := t.bindText(needle)
		return fmt.Sprintf(`(%s IS NOT NULL AND LOWER(%s) LIKE %s ESCAPE '\')`, textExpr, textExpr, ph), nil
	case query.OpBetween:
		bounds, ok := asList(c.Value)
		if !ok || len(bounds) != 2 {
			return "", api.NewError(api.ErrCodeValidation, "operator %q requires a [low, high] pair for field %q", c.Operator, c.Field)
		}
		low, err := bind(bounds[0])
		if err != nil {
			return "", err
		}
		high, err := bind(bounds[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s >= %s AND %s <= %s)", expr, low, expr, high), nil
	default:
		return "", api.NewError(api.ErrCodeUnsupportedOperator, "unsupported filter operator %q", c.Operator)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v any) string {
	return likeEscaper.Replace(strings.ToLower(fmt.Sprintf("%v", v)))
}

// orderByClause renders sort options with the identifier as the final
// tiebreak for deterministic cross-backend ordering.
func orderByClause(opts []query.SortOption) string {
	parts := make([]string, 0, len(opts)+1)
	sawID := false
	for _, opt := range opts {
		expr, err := jsonFieldExpr(opt.Field)
		if err != nil {
			continue
		}
		dir := "ASC"
		if opt.Direction == query.Descending {
			dir = "DESC"
		}
		if opt.Field == api.IDField {
			sawID = true
		}
		parts = append(parts, expr+" "+dir)
	}
	if !sawID {
		parts = append(parts, "id ASC")
	}
	return strings.Join(parts, ", ")
}

// aggregateExpr renders one aggregate. Non-count aggregates cast the
// field to numeric; aggregation targets numeric fields on relational
// backends.
func aggregateExpr(agg query.AggregateOption) (string, error) {
	if agg.Function == query.AggCount {
		return "COUNT(*)", nil
	}
	expr, err := textFieldExpr(agg.Field)
	if err != nil {
		return "", err
	}
	cast := fmt.Sprintf("(%s)::numeric", expr)
	switch agg.Function {
	case query.AggSum:
		return fmt.Sprintf("SUM(%s)", cast), nil
	case query.AggAvg:
		return fmt.Sprintf("AVG(%s)", cast), nil
	case query.AggMin:
		return fmt.Sprintf("MIN(%s)", cast), nil
	case query.AggMax:
		return fmt.Sprintf("MAX(%s)", cast), nil
	default:
		return "", api.NewError(api.ErrCodeValidation, "invalid aggregate function %q", agg.Function)
	}
}

func asList(v any) ([]any, bool) {
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

// normalizeValue maps scanned SQL values onto the JSON-compatible kinds
// the rest of the engine uses.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case int64:
		return float64(val)
	default:
		return v
	}
}
