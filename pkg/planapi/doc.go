// Package planapi exposes the coach plan lifecycle over HTTP.
//
// Coaches read their effective plan, request plan changes, withdraw a
// pending change and read their entitlements. The payment provider posts
// notifications to the webhook route, which confirms payments and records
// renewals. Coach identity comes from a CoachResolver; by default the
// X-Coach-ID header set by the authenticating gateway.
//
// Every JSON body uses the same envelope:
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "retryable": false}}
package planapi
