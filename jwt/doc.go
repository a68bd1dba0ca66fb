// Package jwt inspects bearer tokens issued by a platform to learn their subject and
// expiry. Platforms may hand out opaque tokens; those are reported with [ErrNotJWT] and
// callers fall back to the expiry sent alongside the token.
package jwt
