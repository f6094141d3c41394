// Package account defines the identity record consulted at login and the
// storage collaborator that persists it.
//
// Two backends are provided: [RedisStore] (hash per account, Lua
// compare-and-set) and [SQLStore] (PostgreSQL through database/sql with a
// conditional UPDATE). Both satisfy [Store].
//
// # What this package must NOT do
//
//   - Decide lockout transitions. That is the lockout package's job.
//   - Hash or verify passwords.
package account
