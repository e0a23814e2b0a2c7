// Package transport delivers outbound mail. The engine core only depends on
// the Deliverer interface; composition of lesson content happens upstream.
package transport

import "context"

// Message is one outbound email. HTML is optional; when present the message
// is sent as multipart/alternative.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Deliverer sends a message to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// Noop discards messages. Used by dry runs and tests.
type Noop struct{}

func (Noop) Deliver(context.Context, Message) error { return nil }
