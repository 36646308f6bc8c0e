// Package password provides password hashing and verification for vidtube.
//
// bcrypt (work factor 10) is the default algorithm. Argon2id is available
// through configuration and uses a PHC-like encoded string format.
// Verify picks the algorithm from the stored hash, so both kinds of hash
// verify regardless of the current default.
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Argon2id verification refuses hashes with parameters that exceed reasonable bounds.
// - Hash output must never be logged or returned past the credential store.
package password
