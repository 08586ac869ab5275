// Package notifier delivers short operator notices to administrators.
//
// Notices are queued and sent by a small worker pool through the transport
// adapter, paced by a rate limiter and retried with backoff. Identical
// notices to the same chat inside the dedup window are suppressed, so a
// user re-sending /apply does not flood the admins.
//
// A small in-memory history of sent notices is kept for diagnostics.
package notifier
