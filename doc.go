// Package auth is the authentication lifecycle of a mobile client for multi-tenant
// education platforms: password and stored-token login, partial sessions that block
// on a mandatory step, account activation, password changes and logout.
//
// An [Engine] is assembled by [Builder.Build] from a platform registry, a transport, a
// token store and a state container. Engine methods are safe to call from multiple
// goroutines; concurrent logins are not serialized and the last state written wins.
//
// # Architecture boundaries
//
// auth is the public surface. It exposes [Engine], [Builder], [Config], the typed
// errors and the value types returned by its operations. Step sequencing lives in
// internal/flows; HTTP, persistence, token inspection and the state container live in
// the transport, tokenstore, jwt and session packages. The navigation package turns
// results into router actions and is the only package importing auth.
//
// # What this package must NOT do
//
//   - Decide navigation. Operations return a [LoginResult]; routing is the caller's.
//   - Perform I/O outside Engine methods. Build allocates only.
//   - Keep credentials beyond one call. Pending codes live in session state until
//     taken.
package auth
