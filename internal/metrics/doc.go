// Package metrics bundles the Prometheus collectors exported on /metrics.
// Collectors register against an injectable registerer so tests stay
// isolated; Nop returns unregistered collectors for tests that don't care.
package metrics
