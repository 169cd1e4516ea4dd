package query

import (
	"sort"

	"github.com/strata-dev/strata/pkg/api"
)

// FilterRecords returns the records matching the filter list, preserving
// input order.
func FilterRecords(records []api.Record, filters []Expression) ([]api.Record, error) {
	if len(filters) == 0 {
		return records, nil
	}
	out := make([]api.Record, 0, len(records))
	for _, rec := range records {
		ok, err := EvaluateAll(filters, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SortRecords sorts records in place by the sort options, earlier
// options taking precedence. The sort is stable so that backends with
// deterministic natural order stay comparable.
func SortRecords(records []api.Record, opts []SortOption) {
	if len(opts) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, opt := range opts {
			c := compareValues(records[i][opt.Field], records[j][opt.Field])
			if c == 0 {
				continue
			}
			if opt.Direction == Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Paginate applies skip and limit to an already-ordered record list.
// A limit of zero means no limit.
func Paginate(records []api.Record, skip, limit int) []api.Record {
	if skip > 0 {
		if skip >= len(records) {
			return nil
		}
		records = records[skip:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

// AggregateRecords computes groupBy/aggregate results in process. With
// no groupBy fields the whole input forms a single group. Each output
// record carries the group key fields plus one value per aggregate
// under its ResultKey.
func AggregateRecords(records []api.Record, groupBy []string, aggs []AggregateOption) ([]api.Record, error) {
	for _, a := range aggs {
		if !a.Function.Valid() {
			return nil, api.NewError(api.ErrCodeValidation, "invalid aggregate function %q", a.Function)
		}
	}
	if len(aggs) == 0 {
		aggs = []AggregateOption{{Function: AggCount}}
	}

	type group struct {
		key     string
		keyVals map[string]any
		members []api.Record
	}
	groups := make(map[string]*group)
	order := make([]string, 0)
	for _, rec := range records {
		key := ""
		keyVals := make(map[string]any, len(groupBy))
		for _, f := range groupBy {
			keyVals[f] = rec[f]
			key += stringify(rec[f]) + "\x00"
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, keyVals: keyVals}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, rec)
	}
	if len(groups) == 0 && len(groupBy) == 0 {
		groups[""] = &group{keyVals: map[string]any{}}
		order = append(order, "")
	}

	out := make([]api.Record, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := api.Record{}
		for k, v := range g.keyVals {
			row[k] = v
		}
		for _, a := range aggs {
			row[a.ResultKey()] = computeAggregate(a, g.members)
		}
		out = append(out, row)
	}
	return out, nil
}

func computeAggregate(a AggregateOption, members []api.Record) any {
	if a.Function == AggCount {
		return float64(len(members))
	}
	var (
		sum    float64
		count  int
		minVal any
		maxVal any
	)
	for _, rec := range members {
		v := rec[a.Field]
		if v == nil {
			continue
		}
		if n, ok := toNumber(v); ok {
			sum += n
		}
		if minVal == nil || compareValues(v, minVal) < 0 {
			minVal = v
		}
		if maxVal == nil || compareValues(v, maxVal) > 0 {
			maxVal = v
		}
		count++
	}
	switch a.Function {
	case AggSum:
		return sum
	case AggAvg:
		if count == 0 {
			return nil
		}
		return sum / float64(count)
	case AggMin:
		return minVal
	case AggMax:
		return maxVal
	}
	return nil
}
