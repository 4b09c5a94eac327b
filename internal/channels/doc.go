// Package channels connects messaging surfaces to the engine.
//
// Each channel owns its provider connection, turns provider events into
// engine inbounds, and implements dispatch.Adapter so the dispatcher can
// route outbound messages back through it. Shipped channels:
//
//   - console: interactive terminal session for local development
//   - matrix: mautrix sync client, one identity per Matrix sender
//   - discord: discordgo bot, one identity per Discord author
//   - slack: Web API delivery; inbound Slack events arrive via the HTTP
//     gateway
package channels
