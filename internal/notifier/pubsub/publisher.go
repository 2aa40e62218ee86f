// Package pubsub publishes processed changes to a Google Cloud Pub/Sub topic
// so downstream systems can react without scraping the chat channel.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// Publisher implements watcher.Notifier on top of a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Notify marshals change to JSON and publishes it, waiting for the server ack.
func (p *Publisher) Notify(ctx context.Context, change watcher.Change) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":       change.RunID,
			"url":          change.URL,
			"current_hash": change.CurrentHash,
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
