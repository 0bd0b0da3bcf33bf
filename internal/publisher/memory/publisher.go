// Package memory keeps result notifications in memory, for tests and for
// deployments without a message broker.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded notification.
type Message struct {
	Name    string
	Payload any
}

// Publisher records notifications in publish order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a sequential id.
func (p *Publisher) Publish(_ context.Context, name string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Name: name, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded notifications.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
