// Package sink hands terminal artifacts (bookings, leads, tickets) to
// external systems such as a CRM or calendar.
//
// Delivery is at-least-once: after a crash between persistence and handoff
// the same artifact may arrive again, so ingestion dedupes on conversation id
// plus terminal timestamp. The Deduped wrapper does this in-process; external
// sinks behind WebhookSink must do their own idempotent ingestion.
package sink
