// Package sms sends outbound text messages for safety notifications.
package sms

import (
	"context"
	"sync"
)

// Gateway delivers a single message. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Send(ctx context.Context, to, body string) error
}

// Noop records every message instead of delivering it. Used when no
// provider credentials are configured and in tests.
type Noop struct {
	mu   sync.Mutex
	sent []Message
	// Fail lists destination numbers whose sends should error.
	Fail map[string]error
}

type Message struct {
	To   string
	Body string
}

func NewNoop() *Noop {
	return &Noop{Fail: make(map[string]error)}
}

func (n *Noop) Send(_ context.Context, to, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.Fail[to]; ok {
		return err
	}
	n.sent = append(n.sent, Message{To: to, Body: body})
	return nil
}

// Sent returns a copy of all recorded messages.
func (n *Noop) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.sent))
	copy(out, n.sent)
	return out
}
