// Package middleware adapts tokenauth to net/http.
//
// # Handlers
//
//   - [Authenticate] attaches the caller's identity to the request context and
//     never rejects a request. Bad or missing tokens become the anonymous
//     identity.
//   - [RequireAuthenticated] and [RequireAnyRole] are the fail-closed guards for
//     routes that need a caller.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or touch storage; every decision is delegated to
// Engine.Authenticate.
package middleware
