// Package query defines the backend-agnostic query model: the filter
// expression tree, the unified query shape every driver accepts, and the
// reference evaluator that fixes the logical semantics all backends must
// reproduce.
//
// # Filter Expressions
//
// A filter is a flat or nested list of criteria with optional infix
// logical tokens:
//
//	[]Expression{
//		Where("status", OpEqual, "open"),
//		TokenOr,
//		Group{
//			Where("owner", OpEqual, "u-1"),
//			Where("public", OpEqual, true),
//		},
//	}
//
// Adjacent entries with no token between them are AND-combined. A token
// switches the combinator for subsequent pairs at that nesting level.
// Evaluation is strictly left to right; there is no operator precedence.
// [A or B and C] therefore evaluates as ((A or B) and C). Grouping is
// expressed only through structural nesting.
//
// # Wire Shape
//
// Decode and Encode convert between the typed tree and the plain
// JSON/YAML shape used on the wire and in policy documents: a criterion
// is a three-element list [field, operator, value], a token is the bare
// string "and" or "or", and a nested list is a sub-group.
//
// # Evaluation
//
// Evaluate and EvaluateAll implement the canonical in-process semantics.
// Backends that translate filters to a native query language must return
// the same logical result for any dataset; the drivertest package checks
// this equivalence.
package query
