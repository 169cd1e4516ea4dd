package api

// IDField is the unified primary-key field name presented to callers.
// Every driver maps its native key representation to this name on read
// and from it on write, regardless of how the backend stores keys.
const IDField = "id"

// Record is a single entity record as seen by callers. Values are the
// plain JSON-compatible kinds: string, float64, bool, nil, []any and
// nested map[string]any.
type Record map[string]any

// Clone returns a shallow copy of the record. Mutating the copy's
// top-level keys does not affect the original.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the unified identifier of the record, if present.
func (r Record) ID() (string, bool) {
	v, ok := r[IDField]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// QueryResult is the envelope returned for every find operation.
// Transport adapters serialize it into their own wire format.
type QueryResult struct {
	Data    []Record `json:"data"`
	Total   int64    `json:"total,omitempty"`
	Skip    int      `json:"skip,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CallerContext is the minimum request context the permission engine
// needs. The request-handling layer populates it; the core never reads
// anything else about the caller.
type CallerContext struct {
	// Roles are the role names assigned to the caller.
	Roles []string `json:"roles"`

	// UserID identifies the caller for variable substitution
	// (e.g. the "$user.id" filter value).
	UserID string `json:"user_id"`

	// IsSystemBypass marks a privileged internal context that skips
	// permission resolution entirely. It is an explicit flag, never
	// inferred from role contents.
	IsSystemBypass bool `json:"is_system_bypass,omitempty"`

	// SessionVariables holds additional values available to filter
	// substitution under the "$session." prefix.
	SessionVariables map[string]any `json:"session_variables,omitempty"`
}

// SystemContext returns a privileged caller context that bypasses
// permission resolution. Use only for internal maintenance paths.
func SystemContext() *CallerContext {
	return &CallerContext{IsSystemBypass: true}
}
