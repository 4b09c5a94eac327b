// Package dispatch delivers outbound messages through channel adapters.
//
// It does not guarantee exactly-once to the end channel; it guarantees
// idempotent intent, tagging every message with a per-conversation sequence
// number so adapters and downstream gateways can deduplicate redelivery.
// Transient failures retry with bounded backoff; failures wrapped in
// ErrPermanent are reported immediately.
package dispatch
