// Package notify delivers due-count facts to external channels.
//
// The scheduling core only states that a user has N items due. What a channel does
// with that (push, email digest, badge) is up to whoever sits behind it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// EventDueCount is the webhook event name for due-count facts.
const EventDueCount = "review.due_count"

// DueCountFact states how many items an owner had due when statistics were computed.
type DueCountFact struct {
	OwnerID    int32     `json:"owner_id"`
	DueCount   int       `json:"due_count"`
	ComputedAt time.Time `json:"computed_at"`
}

// ChannelSender defines the interface for sending facts.
type ChannelSender interface {
	Send(ctx context.Context, fact DueCountFact) error
	Name() string
}

// Dispatcher fans facts out to every registered channel.
type Dispatcher struct {
	channels map[string]ChannelSender
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewDispatcher creates a dispatcher with no channels.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		channels: make(map[string]ChannelSender),
		logger:   slog.Default(),
	}
}

// Register registers a channel sender under its name, replacing any previous one.
func (d *Dispatcher) Register(sender ChannelSender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[sender.Name()] = sender
	d.logger.Info("registered notification channel", "channel", sender.Name())
}

// Channels returns the registered channel names in order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Notify sends the fact through all registered channels. A failing channel does
// not stop the others; their errors are joined.
func (d *Dispatcher) Notify(ctx context.Context, fact DueCountFact) error {
	d.mu.RLock()
	senders := make([]ChannelSender, 0, len(d.channels))
	for _, sender := range d.channels {
		senders = append(senders, sender)
	}
	d.mu.RUnlock()

	var errs []error
	for _, sender := range senders {
		if err := sender.Send(ctx, fact); err != nil {
			d.logger.Warn("notification channel failed",
				"channel", sender.Name(),
				"owner_id", fact.OwnerID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", sender.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSender writes facts to the structured log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log sender. A nil logger means slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, fact DueCountFact) error {
	s.logger.InfoContext(ctx, "due count computed",
		"owner_id", fact.OwnerID,
		"due_count", fact.DueCount,
		"computed_at", fact.ComputedAt.Unix(),
	)
	return nil
}

func (s *LogSender) Name() string {
	return "log"
}

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Headers map[string]string
}

// WebhookSender posts facts as JSON.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// WebhookPayload represents the webhook request body.
type WebhookPayload struct {
	Event string       `json:"event"`
	Fact  DueCountFact `json:"fact"`
	// SentAt is wall-clock time of delivery, unlike Fact.ComputedAt.
	SentAt time.Time `json:"sent_at"`
}

// NewWebhookSender creates a new webhook sender.
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &WebhookSender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: slog.Default(),
	}
}

// Send posts one fact.
func (s *WebhookSender) Send(ctx context.Context, fact DueCountFact) error {
	body, err := json.Marshal(WebhookPayload{
		Event:  EventDueCount,
		Fact:   fact,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.config.Secret != "" {
		req.Header.Set("X-Webhook-Secret", s.config.Secret)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Error("webhook returned error",
			"url", s.config.URL,
			"status", resp.StatusCode,
			"response", string(respBody),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("webhook notification sent",
		"owner_id", fact.OwnerID,
		"status", resp.StatusCode,
	)
	return nil
}

func (s *WebhookSender) Name() string {
	return "webhook"
}

// MemorySender records facts in memory. It is meant for tests.
type MemorySender struct {
	facts []DueCountFact
	mu    sync.Mutex
}

// NewMemorySender creates an empty memory sender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(ctx context.Context, fact DueCountFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
	return nil
}

func (s *MemorySender) Name() string {
	return "memory"
}

// Facts returns a copy of the recorded facts.
func (s *MemorySender) Facts() []DueCountFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DueCountFact{}, s.facts...)
}
