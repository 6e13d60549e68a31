// Package memory records run notifications in memory for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	gcppublisher "github.com/JakeFAU/tenderwatch/internal/publisher/pubsub"
)

// Message is one recorded notification, encoded the same way the Pub/Sub
// publisher would send it.
type Message struct {
	Topic      string
	Payload    any
	Data       []byte
	Attributes map[string]string
}

// Publisher keeps every notification in publish order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish encodes payload and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	msg, err := gcppublisher.NewMessage(payload)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, Message{
		Topic:      topic,
		Payload:    payload,
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
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

// Topic returns the notifications sent to topic.
func (p *Publisher) Topic(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Message
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
