// Package tokenauth authenticates users by username and password, locks
// accounts after repeated failures, and issues HS256 access and refresh
// tokens with single-use refresh rotation.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types such as [TokenPair] and [Identity]. Persistence is supplied by
// the caller through the account and refresh packages; flow orchestration and
// audit dispatch stay internal.
//
// # Storage contract
//
// Every change to an account's lock state is a conditional update against the
// store of record, so concurrent failed logins are all counted. A refresh token
// is revoked and its replacement recorded in one atomic step, so two requests
// presenting the same refresh token never both succeed.
//
// # Hot path
//
// Authenticate is stateless: it verifies the access token signature and
// expiry and never touches storage. Logout of an access token is therefore not
// possible; access tokens live until they expire.
package tokenauth
