package query

import (
	"encoding/json"

	"github.com/strata-dev/strata/pkg/api"
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// SortOption orders results by one field. Earlier entries in a sort list
// take precedence over later ones.
type SortOption struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// AggregateFunc is an aggregation function.
type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// Valid reports whether the aggregation function is supported.
func (f AggregateFunc) Valid() bool {
	switch f {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
		return true
	}
	return false
}

// AggregateOption requests one aggregate value over the result set.
type AggregateOption struct {
	Function AggregateFunc `json:"function"`
	Field    string        `json:"field,omitempty"`
	Alias    string        `json:"alias,omitempty"`
}

// ResultKey is the field name the aggregate value is returned under.
func (a AggregateOption) ResultKey() string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.Field == "" {
		return string(a.Function)
	}
	return string(a.Function) + "_" + a.Field
}

// UnifiedQuery is the declarative query shape every driver accepts.
// Skip and Limit apply only to the top-level result set, never inside
// Expand.
type UnifiedQuery struct {
	Fields    []string
	Filters   []Expression
	Sort      []SortOption
	Skip      int
	Limit     int
	Expand    map[string]*UnifiedQuery
	GroupBy   []string
	Aggregate []AggregateOption
}

// Clone returns a copy whose slices may be mutated without affecting the
// original. Filter nodes and expand sub-queries are shared; both are
// treated as immutable.
func (q *UnifiedQuery) Clone() *UnifiedQuery {
	if q == nil {
		return &UnifiedQuery{}
	}
	out := *q
	out.Fields = append([]string(nil), q.Fields...)
	out.Filters = append([]Expression(nil), q.Filters...)
	out.Sort = append([]SortOption(nil), q.Sort...)
	out.GroupBy = append([]string(nil), q.GroupBy...)
	out.Aggregate = append([]AggregateOption(nil), q.Aggregate...)
	if q.Expand != nil {
		out.Expand = make(map[string]*UnifiedQuery, len(q.Expand))
		for k, v := range q.Expand {
			out.Expand[k] = v
		}
	}
	return &out
}

// HasAggregation reports whether the query requests grouping or
// aggregate values.
func (q *UnifiedQuery) HasAggregation() bool {
	return len(q.GroupBy) > 0 || len(q.Aggregate) > 0
}

// Validate checks the query shape without touching any backend.
func (q *UnifiedQuery) Validate() error {
	if q == nil {
		return nil
	}
	if q.Skip < 0 || q.Limit < 0 {
		return api.NewError(api.ErrCodeValidation, "skip and limit must be non-negative")
	}
	for _, s := range q.Sort {
		if s.Field == "" {
			return api.NewError(api.ErrCodeValidation, "sort option requires a field")
		}
		if s.Direction != "" && s.Direction != Ascending && s.Direction != Descending {
			return api.NewError(api.ErrCodeValidation, "invalid sort direction %q", s.Direction)
		}
	}
	for _, a := range q.Aggregate {
		if !a.Function.Valid() {
			return api.NewError(api.ErrCodeValidation, "invalid aggregate function %q", a.Function)
		}
		if a.Function != AggCount && a.Field == "" {
			return api.NewError(api.ErrCodeValidation, "aggregate %q requires a field", a.Function)
		}
	}
	if err := ValidateAll(q.Filters); err != nil {
		return err
	}
	for relation, sub := range q.Expand {
		if sub == nil {
			continue
		}
		if sub.Skip != 0 || sub.Limit != 0 {
			return api.NewError(api.ErrCodeValidation, "expand %q may not set skip or limit", relation)
		}
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// wireQuery is the JSON shape of a UnifiedQuery; filters travel in their
// plain encoded form.
type wireQuery struct {
	Fields    []string                 `json:"fields,omitempty"`
	Filters   []any                    `json:"filters,omitempty"`
	Sort      []SortOption             `json:"sort,omitempty"`
	Skip      int                      `json:"skip,omitempty"`
	Limit     int                      `json:"limit,omitempty"`
	Expand    map[string]*UnifiedQuery `json:"expand,omitempty"`
	GroupBy   []string                 `json:"groupBy,omitempty"`
	Aggregate []AggregateOption        `json:"aggregate,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (q *UnifiedQuery) MarshalJSON() ([]byte, error) {
	w := wireQuery{
		Fields:    q.Fields,
		Sort:      q.Sort,
		Skip:      q.Skip,
		Limit:     q.Limit,
		Expand:    q.Expand,
		GroupBy:   q.GroupBy,
		Aggregate: q.Aggregate,
	}
	if len(q.Filters) > 0 {
		w.Filters = EncodeList(q.Filters)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *UnifiedQuery) UnmarshalJSON(data []byte) error {
	var w wireQuery
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	filters, err := DecodeList(w.Filters)
	if err != nil {
		return err
	}
	*q = UnifiedQuery{
		Fields:    w.Fields,
		Filters:   filters,
		Sort:      w.Sort,
		Skip:      w.Skip,
		Limit:     w.Limit,
		Expand:    w.Expand,
		GroupBy:   w.GroupBy,
		Aggregate: w.Aggregate,
	}
	return nil
}
