// Package chat is the boundary between game logic and the messaging transports.
package chat

import "context"

// Sender delivers a text message to a channel. thread may be empty.
type Sender interface {
	SendMessage(ctx context.Context, channel, text, thread string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, channel, text, thread string) error

func (f SenderFunc) SendMessage(ctx context.Context, channel, text, thread string) error {
	return f(ctx, channel, text, thread)
}
