// Copyright 2025 DeFlow
//
// Package notify dispatches workflow execution notifications across
// channels (email, Discord, Telegram, Slack, Firestore audit sync).
// Grounded on pkg/firestore/client.go's enabled/no-op client shape: every
// channel is safe to construct even when unconfigured, logging instead of
// erroring, so a deployment can add channels incrementally.

package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// Notification is one event worth telling a user about.
type Notification struct {
	UserID    string
	Title     string
	Body      string
	Severity  string // "info", "warning", "critical"
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Channel delivers a Notification somewhere.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Dispatcher fans a Notification out to every registered channel,
// collecting (not failing fast on) per-channel errors the same way the
// teacher's Firestore client logs-and-continues when disabled.
type Dispatcher struct {
	channels []Channel
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(logger *log.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = log.New(os.Stdout, "[Notify] ", log.LstdFlags)
	}
	return &Dispatcher{channels: channels, logger: logger}
}

// Send delivers n to every channel, logging (not returning) individual
// channel failures so one broken webhook doesn't block the others.
func (d *Dispatcher) Send(ctx context.Context, n Notification) {
	for _, ch := range d.channels {
		if err := ch.Send(ctx, n); err != nil {
			d.logger.Printf("channel %s failed to deliver notification %q: %v", ch.Name(), n.Title, err)
		}
	}
}

// webhookChannel posts a Notification as a JSON-ish payload to a fixed
// webhook URL. Discord, Slack, and generic incoming-webhook Telegram bots
// all speak this same shape closely enough that one implementation covers
// all three, parameterized by URL and payload key.
type webhookChannel struct {
	name       string
	url        string
	client     *http.Client
	bodyField  string // "content" (Discord), "text" (Slack/Telegram)
}

func newWebhookChannel(name, url, bodyField string) *webhookChannel {
	return &webhookChannel{
		name:      name,
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		bodyField: bodyField,
	}
}

func (w *webhookChannel) Name() string { return w.name }

func (w *webhookChannel) Send(ctx context.Context, n Notification) error {
	if w.url == "" {
		return nil // unconfigured channel is a no-op, not an error
	}

	payload := fmt.Sprintf(`{%q:%q}`, w.bodyField, fmt.Sprintf("[%s] %s: %s", strings.ToUpper(n.Severity), n.Title, n.Body))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: %s webhook returned status %d", w.name, resp.StatusCode)
	}
	return nil
}

// NewDiscordChannel posts notifications to a Discord incoming webhook URL.
func NewDiscordChannel(webhookURL string) Channel {
	return newWebhookChannel("discord", webhookURL, "content")
}

// NewSlackChannel posts notifications to a Slack incoming webhook URL.
func NewSlackChannel(webhookURL string) Channel {
	return newWebhookChannel("slack", webhookURL, "text")
}

// NewTelegramChannel posts notifications via a Telegram bot's sendMessage
// webhook URL (expected to already include the chat_id as a query param).
func NewTelegramChannel(webhookURL string) Channel {
	return newWebhookChannel("telegram", webhookURL, "text")
}

// emailChannel is a minimal SMTP-less stub: in the absence of a wired mail
// provider it logs what it would have sent. Non-goal: no real outbound
// email delivery in this repository.
type emailChannel struct {
	logger *log.Logger
}

// NewEmailChannel creates an email notification channel. No SMTP/API
// provider is wired up (Non-goal); it logs the message it would send so
// the dispatch path is still exercised end to end.
func NewEmailChannel(logger *log.Logger) Channel {
	if logger == nil {
		logger = log.New(os.Stdout, "[Notify:Email] ", log.LstdFlags)
	}
	return &emailChannel{logger: logger}
}

func (e *emailChannel) Name() string { return "email" }

func (e *emailChannel) Send(ctx context.Context, n Notification) error {
	e.logger.Printf("email to user=%s severity=%s title=%q body=%q", n.UserID, n.Severity, n.Title, n.Body)
	return nil
}
