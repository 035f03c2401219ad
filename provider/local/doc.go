// Package local is a self-contained identity provider backed by Redis. It
// implements authflow.IdentityProvider for a single device and is used by
// the demo client and by end-to-end tests.
//
// # Storage layout
//
//	{prefix}:user:{email}          hash: id, name, email, hash, status, attr.*
//	{prefix}:code:{purpose}:{email} binary one-time code record (internal/stores)
//	{prefix}:signin:{email}         failed sign-in counter (internal/rate)
//	{prefix}:device:{device}        signed session token with TTL
//
// Usernames are email addresses, compared case-insensitively.
//
// # Behaviour worth knowing
//
//   - SignIn while the device already holds a live session fails with
//     IdpAlreadyAuthenticated. Call SignOut first.
//   - With AutoSessionOnConfirm the provider signs the user in as part of
//     ConfirmSignUp, like hosted providers that do so. A following SignIn
//     then reports IdpAlreadyAuthenticated.
//   - Events are delivered asynchronously and in order on one goroutine per
//     subscriber. A subscriber that falls behind by more than EventBuffer
//     events loses the newest ones.
package local
