// Package auth is the identity service of the HR application: it verifies
// credentials, issues short lived access tokens and long lived refresh
// credentials, and serves the /auth endpoints the client session relies on.
//
// Tokens:
//   - Access tokens are HS256 JWTs carrying the user id, role and permission
//     names, with use "access". They are presented as bearer tokens.
//   - Refresh credentials are JWTs with use "refresh", delivered in an
//     HttpOnly cookie. Their jti is persisted through a RefreshTokenStore so
//     every refresh rotates the credential. Presenting a rotated credential
//     again revokes every credential of that user.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther to describe
//     login, refresh, reuse and logout events. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without blocking
//     authentication.
package auth
