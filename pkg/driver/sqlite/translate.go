package sqlite

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/query"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return api.NewError(api.ErrCodeValidation, "invalid entity name %q", name)
	}
	return nil
}

// fieldExpr maps a logical field to its SQL expression: the identifier
// column directly, every other field through json_extract.
func fieldExpr(field string) (string, error) {
	if field == api.IDField {
		return "id", nil
	}
	if !fieldPattern.MatchString(field) {
		return "", api.NewError(api.ErrCodeValidation, "invalid field name %q", field)
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", field), nil
}

// translateFilters renders a filter list as a WHERE fragment with
// positional arguments. The fragment preserves the model's strict
// left-to-right combination by parenthesizing the running result at
// every step, so [A or B and C] renders as ((A OR B) AND C).
func translateFilters(exprs []query.Expression) (string, []any, error) {
	var (
		current    string
		args       []any
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
				return "", nil, api.NewError(api.ErrCodeValidation, "unknown logical token %q", tok)
			}
			continue
		}
		frag, fragArgs, err := translateExpr(expr)
		if err != nil {
			return "", nil, err
		}
		args = append(args, fragArgs...)
		if current == "" {
			current = frag
		} else {
			current = fmt.Sprintf("(%s %s %s)", current, combinator, frag)
		}
	}
	return current, args, nil
}

func translateExpr(expr query.Expression) (string, []any, error) {
	switch e := expr.(type) {
	case query.Group:
		frag, args, err := translateFilters(e)
		if err != nil {
			return "", nil, err
		}
		if frag == "" {
			return "1=1", nil, nil
		}
		return "(" + frag + ")", args, nil
	case query.Criterion:
		return translateCriterion(e)
	default:
		return "", nil, api.NewError(api.ErrCodeValidation, "unknown expression node %T", expr)
	}
}

func translateCriterion(c query.Criterion) (string, []any, error) {
	expr, err := fieldExpr(c.Field)
	if err != nil {
		return "", nil, err
	}

	switch c.Operator {
	case query.OpEqual:
		return expr + " = ?", []any{c.Value}, nil
	case query.OpNotEqual:
		// IS NOT is null-safe: a missing field is unequal to anything.
		return expr + " IS NOT ?", []any{c.Value}, nil
	case query.OpGreater:
		return expr + " > ?", []any{c.Value}, nil
	case query.OpGreaterEqual:
		return expr + " >= ?", []any{c.Value}, nil
	case query.OpLess:
		// A missing field sorts below any defined value.
		return fmt.Sprintf("(%s < ? OR %s IS NULL)", expr, expr), []any{c.Value}, nil
	case query.OpLessEqual:
		return fmt.Sprintf("(%s <= ? OR %s IS NULL)", expr, expr), []any{c.Value}, nil
	case query.OpIn, query.OpNotIn:
		list, ok := asList(c.Value)
		if !ok {
			return "", nil, api.NewError(api.ErrCodeValidation, "operator %q requires a list value for field %q", c.Operator, c.Field)
		}
		if len(list) == 0 {
			if c.Operator == query.OpNotIn {
				return "1=1", nil, nil
			}
			return "1=0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
		if c.Operator == query.OpNotIn {
			return fmt.Sprintf("(%s NOT IN (%s) OR %s IS NULL)", expr, placeholders, expr), list, nil
		}
		return fmt.Sprintf("%s IN (%s)", expr, placeholders), list, nil
	case query.OpContains:
		return likeFragment(expr), []any{"%" + likePattern(c.Value) + "%"}, nil
	case query.OpStartsWith:
		return likeFragment(expr), []any{likePattern(c.Value) + "%"}, nil
	case query.OpEndsWith:
		return likeFragment(expr), []any{"%" + likePattern(c.Value)}, nil
	case query.OpBetween:
		bounds, ok := asList(c.Value)
		if !ok || len(bounds) != 2 {
			return "", nil, api.NewError(api.ErrCodeValidation, "operator %q requires a [low, high] pair for field %q", c.Operator, c.Field)
		}
		return fmt.Sprintf("(%s >= ? AND %s <= ?)", expr, expr), bounds, nil
	default:
		return "", nil, api.NewError(api.ErrCodeUnsupportedOperator, "unsupported filter operator %q", c.Operator)
	}
}

func likeFragment(expr string) string {
	return fmt.Sprintf(`LOWER(CAST(%s AS TEXT)) LIKE ? ESCAPE '\'`, expr)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v any) string {
	return likeEscaper.Replace(strings.ToLower(fmt.Sprintf("%v", v)))
}

// orderByClause renders sort options, appending the identifier as the
// final tiebreak so result order is deterministic across backends.
func orderByClause(opts []query.SortOption) string {
	parts := make([]string, 0, len(opts)+1)
	sawID := false
	for _, opt := range opts {
		expr, err := fieldExpr(opt.Field)
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

func aggregateExpr(agg query.AggregateOption) (string, error) {
	if agg.Function == query.AggCount {
		return "COUNT(*)", nil
	}
	expr, err := fieldExpr(agg.Field)
	if err != nil {
		return "", err
	}
	switch agg.Function {
	case query.AggSum:
		return fmt.Sprintf("SUM(%s)", expr), nil
	case query.AggAvg:
		return fmt.Sprintf("AVG(%s)", expr), nil
	case query.AggMin:
		return fmt.Sprintf("MIN(%s)", expr), nil
	case query.AggMax:
		return fmt.Sprintf("MAX(%s)", expr), nil
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
