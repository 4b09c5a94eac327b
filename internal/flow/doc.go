// Package flow defines table-driven vertical state machines.
//
// # Overview
//
// A Definition is a named vertical (restaurant booking, salon, lead
// qualification, support, info) holding states, trigger patterns and
// synonyms. Step is a pure function: given (state, slots, input, now) it
// returns the same Result every time, which lets the engine retry persistence
// conflicts by simply recomputing.
//
// # Matching order
//
// Input is normalized (trimmed, lowercased, synonym-mapped) and then matched
// against the state's menu choices first; if no choice matches, the state's
// validator runs and a valid value is stored into the state's slot. A failed
// validation re-emits the prompt with guidance and does not advance.
//
// # Terminal states
//
// A terminal state names an artifact type. Reaching it produces the Booking,
// Lead or Ticket artifact from the accumulated slots; the engine then hands
// the artifact off and deletes the conversation. The Info vertical has a
// single always-active state and never terminates.
package flow
