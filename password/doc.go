// Package password hashes and verifies account credentials.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A [Chain] verifies against the scheme that recognizes the stored encoding,
// so bcrypt hashes imported from older systems keep working. [Chain.NeedsRehash]
// reports true for legacy encodings and for Argon2id hashes made with weaker
// parameters; the engine re-hashes on the next successful login.
//
// This package never stores, logs or returns plaintext passwords.
package password
