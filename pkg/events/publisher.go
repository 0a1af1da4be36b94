package events

import (
	"context"
	"encoding/json"
	"student_services_backend/pkg/logger"
	"sync"

	"go.uber.org/zap"
)

// Publisher sends domain events after a transaction commits.
type Publisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

type NATSPublisher struct {
	client *Client
	prefix string
}

func NewNATSPublisher(client *Client, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{client: client, prefix: subjectPrefix}
}

func (p *NATSPublisher) subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

func (p *NATSPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	subject := p.subject(event)
	if err := p.client.Publish(subject, data); err != nil {
		return err
	}

	logger.Log.Debug("Published event", zap.String("subject", subject))
	return nil
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Recorded
}

type Recorded struct {
	Event   string
	Payload interface{}
}

func (p *RecordingPublisher) Publish(_ context.Context, event string, payload interface{}) error {
	p.mu.Lock()
	p.events = append(p.events, Recorded{Event: event, Payload: payload})
	p.mu.Unlock()
	return nil
}

func (p *RecordingPublisher) Events() []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Recorded(nil), p.events...)
}
