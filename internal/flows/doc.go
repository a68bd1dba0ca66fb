// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunActivate, RunChangePassword, RunForgot) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. Unit tests drive them with hand-written fakes and the Engine stays a
// thin adapter.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the transport, token store, session cache, state
// container, tracking dispatcher and metrics. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
