// Package record defines the Session Record: the authenticated principal and
// its sliding expiry, plus the JSON layout it is persisted in.
//
// # Layout
//
// One JSON object per storage namespace, principal fields flattened next to
// the expiry bookkeeping:
//
//	{"access_token":"…","user":{…},"permission_list":[…],
//	 "sessionWindowMs":600000,"expiresAtMs":1700000600000}
//
// # What this package must NOT do
//
//   - Talk to a store or schedule timers.
//   - Interpret tokens beyond checking that an access token is present.
package record
