package permission

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/query"
)

const (
	varUserID        = "$user.id"
	varUserRoles     = "$user.roles"
	varSessionPrefix = "$session."
)

// substituteGroups resolves templated filter values against the caller's
// session context. Groups are rewritten into fresh slices; cached filter
// trees are never mutated.
func substituteGroups(groups [][]query.Expression, caller *api.CallerContext, log *logrus.Logger) [][]query.Expression {
	out := make([][]query.Expression, len(groups))
	for i, group := range groups {
		out[i] = query.WalkValues(group, func(v any) any {
			return substituteValue(v, caller, log)
		})
	}
	return out
}

func substituteValue(v any, caller *api.CallerContext, log *logrus.Logger) any {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "$") {
			return val
		}
		return resolveVariable(val, caller, log)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, caller, log)
		}
		return out
	default:
		return v
	}
}

// resolveVariable maps a templated reference to a caller context value.
// An unknown reference resolves to nil, which matches no record under
// the equality semantics; a warning makes the misconfiguration visible.
func resolveVariable(ref string, caller *api.CallerContext, log *logrus.Logger) any {
	switch {
	case ref == varUserID:
		return caller.UserID
	case ref == varUserRoles:
		roles := make([]any, len(caller.Roles))
		for i, r := range caller.Roles {
			roles[i] = r
		}
		return roles
	case strings.HasPrefix(ref, varSessionPrefix):
		key := strings.TrimPrefix(ref, varSessionPrefix)
		if v, ok := caller.SessionVariables[key]; ok {
			return v
		}
	}
	log.WithField("variable", ref).Warn("unresolvable filter variable, substituting null")
	return nil
}
