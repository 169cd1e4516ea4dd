// Package api defines the shared contracts of the data-access engine:
// the Record shape every backend returns, the caller context consumed by
// permission resolution, the QueryResult envelope handed back to
// transports, and the caller-facing error taxonomy.
//
// # Overview
//
// Every other package depends on api; api depends on nothing inside the
// module. Backends, the permission engine and the repository orchestrator
// all speak in terms of these types so that no backend-specific shape
// leaks into caller-visible behavior.
//
// # Error Handling
//
// Caller-facing failures are *api.Error values carrying a stable Code.
// Internal layers wrap causes with fmt.Errorf("...: %w", err) as usual;
// the repository orchestrator is the only place that translates a
// low-level failure into a coded error:
//
//	if api.CodeOf(err) == api.ErrCodePermissionDenied {
//		// deny without leaking record existence
//	}
//
// # Related Packages
//
//   - pkg/query: the unified query shape drivers accept
//   - pkg/driver: the backend driver contract
//   - pkg/repository: the orchestrator producing these errors
package api
