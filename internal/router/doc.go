// Package router classifies inbound messages into verticals.
//
// Classification only happens when no conversation is in progress. Precedence:
//
//  1. An existing non-terminal conversation keeps its vertical — an active
//     flow is never reclassified, so mid-flow slot progress is never lost to
//     an ambiguous message.
//  2. First trigger-pattern match, in flow registration order.
//  3. The identity's stored preference (last used vertical).
//  4. The Info vertical.
//
// The pattern matcher is behind a Classifier interface so a smarter model can
// replace it without touching the precedence rules.
package router
