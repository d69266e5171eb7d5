package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fact = DueCountFact{
	OwnerID:    7,
	DueCount:   12,
	ComputedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, fact DueCountFact) error {
	return errors.New("unreachable")
}

func (failingSender) Name() string {
	return "failing"
}

func TestDispatcherNotify(t *testing.T) {
	dispatcher := NewDispatcher()
	memory := NewMemorySender()
	dispatcher.Register(memory)
	dispatcher.Register(NewLogSender(nil))

	require.NoError(t, dispatcher.Notify(context.Background(), fact))
	assert.Equal(t, []DueCountFact{fact}, memory.Facts())
	assert.Equal(t, []string{"log", "memory"}, dispatcher.Channels())
}

func TestDispatcherNotifyContinuesPastFailures(t *testing.T) {
	dispatcher := NewDispatcher()
	memory := NewMemorySender()
	dispatcher.Register(failingSender{})
	dispatcher.Register(memory)

	err := dispatcher.Notify(context.Background(), fact)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Len(t, memory.Facts(), 1)
}

func TestDispatcherWithoutChannels(t *testing.T) {
	assert.NoError(t, NewDispatcher().Notify(context.Background(), fact))
}

func TestWebhookSender(t *testing.T) {
	var received WebhookPayload
	var secret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		secret = r.Header.Get("X-Webhook-Secret")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookConfig{URL: server.URL, Secret: "s3cret"})
	assert.Equal(t, "webhook", sender.Name())
	require.NoError(t, sender.Send(context.Background(), fact))

	assert.Equal(t, "s3cret", secret)
	assert.Equal(t, EventDueCount, received.Event)
	assert.Equal(t, int32(7), received.Fact.OwnerID)
	assert.Equal(t, 12, received.Fact.DueCount)
	assert.True(t, received.Fact.ComputedAt.Equal(fact.ComputedAt))
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookSender(WebhookConfig{URL: server.URL}).Send(context.Background(), fact)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
