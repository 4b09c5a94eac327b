// ABOUTME: Channel contract shared by the console, Matrix, Discord and Slack adapters
// ABOUTME: Channels receive inbound messages, run the engine, deliver replies via dispatch

package channels

import (
	"context"
)

// Channel is a long-running messaging surface.
type Channel interface {
	// Name identifies the channel and matches store.Identity.Channel.
	Name() string
	// Run connects and processes messages until ctx is cancelled.
	Run(ctx context.Context) error
}
