// Package sessionwatch keeps an admin dashboard session alive while the user
// is active and ends it everywhere once they are not.
//
// A [Monitor] owns the shared session store. Every open client view is a
// [Tab] that composes three pieces over its own store handle:
//
//   - an activity tracker that slides the expiry forward on interaction,
//   - a watchdog that warns ahead of expiry and force-ends lapsed sessions,
//   - a guard that follows sign-outs performed by other tabs.
//
// Monitors are built with [Builder] and are safe for concurrent use.
//
// # Architecture boundaries
//
// sessionwatch is the public surface. Store backends live in package store,
// the record model in package record, and the per-tab state machines in
// packages activity, watchdog and guard. Audit dispatch and metrics plumbing
// live under internal/.
//
// # What this package must NOT do
//
//   - Verify credentials. The REST backend owns them; see package upstream.
//   - Hold a process-wide copy of the current principal. Callers read it
//     from the store through [Monitor.Principal] every time.
//   - Import any sub-package that re-imports sessionwatch.
package sessionwatch
