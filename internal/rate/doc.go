// Package rate throttles sign-in attempts with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// namespaced by the configured prefix:
//   - <prefix>:al:<username>  sign-in failures per user
//   - <prefix>:ali:<ip>       sign-in failures per client IP
//
// # What this package must NOT do
//
//   - Count successful sign-ins. Success resets the window.
//   - Be imported outside the sessionwatch module.
package rate
