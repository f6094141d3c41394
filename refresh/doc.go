// Package refresh persists issued refresh tokens and answers validity,
// revocation and rotation queries about them.
//
// # Token identity
//
// Records are keyed by [TokenID], the hex SHA-256 of the signed token. The raw
// bearer string never reaches storage or logs, so a leaked table or keyspace
// cannot be replayed.
//
// # Architecture boundaries
//
// This package does not verify signatures or expiry claims inside the token;
// callers verify with the jwt package first. A record whose expiry has passed
// is invalid whether or not SweepExpired has removed it yet.
package refresh
