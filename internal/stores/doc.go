// Package stores persists short-lived one-time codes in Redis for the
// reference identity provider: sign-up confirmation and password reset.
//
// # Design
//
// A code is stored as a versioned binary record holding the SHA-256 of the
// code, an attempt counter and an absolute expiry, under a key with a TTL.
// Consume runs one Lua script that reads, validates and deletes or rewrites
// the record, so concurrent submissions of the same code cannot both
// succeed. Records are single use and enforce an attempt limit.
//
// # What this package must NOT do
//
//   - Import authflow or any provider package.
//   - Log or store plaintext codes.
//   - Decide what a failed consume means to the user.
package stores
