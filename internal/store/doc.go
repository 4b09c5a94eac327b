// Package store provides durable conversation state keyed by (channel, user)
// with optimistic concurrency. Implementations: SQLite, Redis, in-memory.
package store
