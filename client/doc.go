// Package client keeps an authenticated session against the HR API alive.
//
// A TokenStore holds the bearer token and the loaded profile. The
// SessionManager is the only writer of that store and moves between the
// Anonymous, Authenticating, Authenticated and Refreshing states. Every API
// call goes through a Pipeline, which attaches the bearer token and, when a
// response comes back 401, runs a single refresh shared by all concurrent
// callers before replaying each request once. Failures surface as
// notifications and, when the refresh itself fails, as a navigation to the
// login route decided by the route Guard.
package client
