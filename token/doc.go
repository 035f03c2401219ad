// Package token issues and parses the signed session tokens handed out by
// the reference identity provider.
//
// Tokens are JWTs signed with HS256 or Ed25519. Parsing pins the algorithm,
// checks issuer, audience and expiry, and rejects issued-at values too far
// in the future. Key rotation is supported through a kid-indexed verify key
// set.
package token
