// Package rate provides a Redis-backed fixed-window failure limiter.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Once MaxAttempts failures
// are recorded for an identifier, Check reports ErrRateLimited until the
// window expires or Reset is called. Keys are "{prefix}:{identifier}".
//
// # What this package must NOT do
//
//   - Decide which operations are limited (the provider does).
//   - Be imported outside the authflow module.
package rate
