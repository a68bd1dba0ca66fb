// Package session holds the authenticated-account model and the single-writer state
// container that owns it.
//
// # State container
//
// [Store] keeps exactly one [AuthState]. Writers go through [Store.Dispatch] with one of
// the closed set of transitions ([Full], [Partial], [Redirected], [Failed], [LoggedOut],
// [ContextLoaded]); each transition replaces the state wholesale, so readers never see a
// half-populated [Session]. Subscribers receive a copy after every write.
//
// # Architecture boundaries
//
// This package owns [Session], [UserInfo] and [Scenario]. It does NOT perform network
// I/O, persist anything, or decide which scenario applies to an account; those belong
// to the root package.
//
// # What this package must NOT do
//
//   - Import the root package or transport (no upward imports).
//   - Hold credentials or bearer tokens.
package session
