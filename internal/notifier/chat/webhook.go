// Package chat posts change summaries to a chat webhook (Google Chat
// incoming webhooks and compatible endpoints).
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

// DefaultTitle is used when Config.Title is empty. {date} is replaced with
// the change's detection date.
const DefaultTitle = "*New Google Cloud Release Notes Summary for {date}*"

const dateLayout = "January 2, 2006"

// Config controls webhook delivery.
type Config struct {
	URL     string
	Title   string
	Timeout time.Duration
}

// Message is the JSON body accepted by the webhook.
type Message struct {
	Text string `json:"text"`
}

// Webhook implements watcher.Notifier. With no URL configured it does nothing.
type Webhook struct {
	url    string
	title  string
	client *http.Client
}

// New builds a Webhook notifier.
func New(cfg Config) *Webhook {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Webhook{
		url:    strings.TrimSpace(cfg.URL),
		title:  cfg.Title,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a destination is configured.
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

// Render builds the message for change.
func (w *Webhook) Render(change watcher.Change) Message {
	title := strings.ReplaceAll(w.title, "{date}", change.DetectedAt.Format(dateLayout))
	return Message{Text: title + "\n\n" + change.Summary}
}

// Notify posts the rendered summary to the webhook.
func (w *Webhook) Notify(ctx context.Context, change watcher.Change) error {
	if !w.Enabled() {
		return nil
	}
	payload, err := json.Marshal(w.Render(change))
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body drained below

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
