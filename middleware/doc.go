// Package middleware guards the protected dashboard area with the monitor's
// session record.
//
// # Guards
//
//   - [Guard] redirects to sign-in when the namespace has no live session and
//     otherwise records activity before the handler runs.
//   - [RequireAccessToken] additionally demands the stored access token as a
//     bearer credential, for API calls made from inside the dashboard.
//
// The principal read by the guard is injected into the request context; see
// [PrincipalFromContext].
//
// # What this package must NOT do
//
//   - Verify credentials. Sign-in lives in package upstream.
//   - Touch the store directly. Every read and renewal goes through the Monitor.
package middleware
