package main

import (
	"net/http"
	"strings"

	"github.com/strata-dev/strata/pkg/api"
)

const (
	headerRoles         = "X-Strata-Roles"
	headerUserID        = "X-Strata-User-Id"
	headerSystemBypass  = "X-Strata-System-Bypass"
	headerSessionPrefix = "X-Strata-Session-"
)

// callerMiddleware builds the caller context from request headers and
// attaches it to the request context. Requests without identity headers
// carry an empty caller, which every permission resolution denies. The
// bypass header is only honored when trustBypass is set; untrusted
// clients must never be able to mint a system caller.
func callerMiddleware(next http.Handler, trustBypass bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFromRequest(r, trustBypass)
		next.ServeHTTP(w, r.WithContext(api.WithCaller(r.Context(), caller)))
	})
}

func callerFromRequest(r *http.Request, trustBypass bool) *api.CallerContext {
	caller := &api.CallerContext{
		UserID:         r.Header.Get(headerUserID),
		IsSystemBypass: trustBypass && strings.EqualFold(r.Header.Get(headerSystemBypass), "true"),
	}

	if roles := r.Header.Get(headerRoles); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			role = strings.TrimSpace(role)
			if role != "" {
				caller.Roles = append(caller.Roles, role)
			}
		}
	}

	for name, values := range r.Header {
		if !strings.HasPrefix(name, headerSessionPrefix) || len(values) == 0 {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, headerSessionPrefix))
		if caller.SessionVariables == nil {
			caller.SessionVariables = make(map[string]any)
		}
		caller.SessionVariables[key] = values[0]
	}

	return caller
}
