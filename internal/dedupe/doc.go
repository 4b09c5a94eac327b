// Package dedupe provides a time-bounded seen-key cache used to make inbound
// processing, outbound sends and artifact handoff idempotent.
package dedupe
