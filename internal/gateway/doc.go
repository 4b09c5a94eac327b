// Package gateway exposes the engine over HTTP.
//
// External messaging gateways POST inbound events to /v1/messages and receive
// the outbound messages in the response; delivery back to the end user is the
// caller's job. Channel adapters that hold their own connection (Matrix,
// Discord) bypass this package and talk to the engine directly.
//
// Also served: /healthz and, when metrics are enabled, /metrics.
package gateway
