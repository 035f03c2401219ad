// Package password hashes and verifies passwords with Argon2id.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters than
// the hasher's, so a provider can re-hash after the next successful sign-in.
//
// # What this package must NOT do
//
//   - Enforce password policy. Length rules belong to the identity provider.
//   - Store passwords or hashes.
//   - Import any other authflow package.
package password
