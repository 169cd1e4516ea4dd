// Package permission computes what a caller may see and change. Given a
// caller's role set, a target entity and an action, the engine walks the
// role inheritance graph, collects every applicable policy statement,
// and merges them into a single decision: allowed or not, a row filter
// to inject into the query, and the effective field sets.
//
// # Merge Semantics
//
// Actions and readonly fields union across statements. Row filters are
// grouped, not flattened: each statement's filter list is one
// alternative in a logical OR, so a caller holding several grants sees a
// record when any one grant's conditions hold. Field restrictions merge
// permissively: a single statement without a field restriction lifts the
// restriction entirely, otherwise the allowed set is the union.
//
// # Purity and Caching
//
// Resolution is a pure function of (roles, entity, action) against an
// immutable registry snapshot; it holds no locks and is safe to call
// from any number of concurrent requests. The pre-substitution merge is
// cached in an LRU keyed by registry generation, so a registry swap
// naturally invalidates every cached entry. Caller-specific variable
// substitution runs after merging, per request, never from the cache.
package permission
