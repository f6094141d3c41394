// Package lockout implements the brute-force lockout state machine over an
// account's failure counter and lock timestamp.
//
// # Architecture boundaries
//
// [Policy] is pure: it never reads or writes storage. The engine loads a
// snapshot, asks the policy for the next state, and persists it with a
// conditional update so concurrent failures are all counted.
package lockout
