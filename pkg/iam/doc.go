// Package iam is the identity core of keystone: organizations, their accounts,
// users, role based permissions and the session tokens that carry them.
//
// # Layout
//
//   - iam/role          immutable role -> permission registry with merge
//   - iam/user          User / UserData aggregate and its repository port
//   - iam/organization  Organization / Account aggregate, admin service and HTTP API
//   - iam/access        pure access predicates (system admin > org admin > grant)
//   - iam/credential    password hashing, API keys, TOTP
//   - iam/auth          token codec, authenticator, middleware, handlers
//   - iam/recovery      password recovery tokens
//   - iam/iamcontainer  wiring
//
// # Tokens
//
// Access and refresh tokens are HS256 JWTs carrying the user's email, the
// active organization and the user's counter at issuance. Every login,
// organization switch, refresh, logout, ban and password change increments
// the counter, so all tokens issued before it are rejected as stale without
// any revocation list.
//
// # Failures
//
// Expected outcomes (bad credentials, TFA needed, stale token, wrong
// organization, duplicate key...) are *errx.Error values from this package's
// registry. Use FailureOf to branch on them.
package iam
