// Package engine executes conversation transitions.
//
// # Overview
//
// The engine ties the store, flow registry, router and artifact sink
// together. One inbound message produces exactly one transition:
//
//  1. Drop redelivered messages by gateway message id.
//  2. Load the conversation, or classify the message and create one.
//  3. Run the flow's pure transition function.
//  4. Persist the result with CompareAndSwap.
//  5. Hand any terminal artifact to the sink, then delete the conversation.
//
// # Concurrency
//
// Conversations for different identities proceed in parallel. Writes to the
// same identity serialize through the store's optimistic concurrency check:
// on a version conflict the engine re-reads and recomputes the transition,
// which is safe because the transition function is deterministic given
// (state, slots, input, now). This works across processes with no locks.
//
// # Escalation
//
// Consecutive validation failures are counted on the conversation; crossing
// the configured threshold emits a Ticket artifact and ends the flow with a
// human-handoff message. Any valid input resets the counter.
//
// # Expiry
//
// The Sweeper deletes conversations idle past the configured timeout on a
// background ticker. Expiry is a silent reset: the next message from that
// identity starts a freshly classified flow.
package engine
