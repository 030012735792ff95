package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

type fakeReceiver struct {
	srv *httptest.Server

	mu       sync.Mutex
	statuses []int
	payloads []Payload
}

func newFakeReceiver(t *testing.T, statuses ...int) *fakeReceiver {
	router := httprouter.New()
	f := &fakeReceiver{statuses: statuses, srv: httptest.NewServer(router)}
	t.Cleanup(f.srv.Close)

	router.POST("/v1/webhooks/:id", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var payload Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		f.payloads = append(f.payloads, payload)
		status := http.StatusAccepted
		if len(f.statuses) > 0 {
			status, f.statuses = f.statuses[0], f.statuses[1:]
		}
		rw.WriteHeader(status)
	})
	return f
}

func (f *fakeReceiver) url() string { return f.srv.URL + "/v1/webhooks/test" }

func (f *fakeReceiver) received() []Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Payload(nil), f.payloads...)
}

var template = Template{Username: "Gmail Notifier", EventName: "Unreplied Emails", Status: "warning"}

func TestTemplateBuild(t *testing.T) {
	emails := []gmail.UnrepliedEmail{{ID: "m1", Subject: "Invoice"}, {ID: "m2", Subject: gmail.NoSubject}, {ID: "m3", Subject: "x"}}
	payload := template.Build(emails)

	require.Equal(t, "You have 3 unreplied emails.", payload.Message)
	require.Len(t, payload.Emails, 3)
	require.Equal(t, "Gmail Notifier", payload.Username)
	require.Equal(t, "Unreplied Emails", payload.EventName)
	require.Equal(t, "warning", payload.Status)

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"message": "You have 3 unreplied emails.",
		"emails": [{"id":"m1","subject":"Invoice"},{"id":"m2","subject":"(No Subject)"},{"id":"m3","subject":"x"}],
		"username": "Gmail Notifier",
		"event_name": "Unreplied Emails",
		"status": "warning"
	}`, string(b))
}

func TestWebhookDelivers(t *testing.T) {
	receiver := newFakeReceiver(t)
	webhook, err := NewWebhook(WebhookConfig{URL: receiver.url(), Timeout: 5 * time.Second, MaxAttempts: 3})
	require.NoError(t, err)

	payload := template.Build([]gmail.UnrepliedEmail{{ID: "m1", Subject: "Invoice"}})
	require.NoError(t, webhook.Notify(context.Background(), payload))
	require.Equal(t, []Payload{payload}, receiver.received())
}

func TestWebhookRetries(t *testing.T) {
	receiver := newFakeReceiver(t, http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK)
	clock := clockwork.NewFakeClock()
	webhook, err := NewWebhook(WebhookConfig{URL: receiver.url(), Timeout: 5 * time.Second, MaxAttempts: 3, Clock: clock})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- webhook.Notify(context.Background(), template.Build([]gmail.UnrepliedEmail{{ID: "m1", Subject: "a"}}))
	}()
	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(retryCap)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook did not finish")
	}
	require.Len(t, receiver.received(), 3)
}

func TestWebhookGivesUp(t *testing.T) {
	receiver := newFakeReceiver(t, http.StatusInternalServerError, http.StatusInternalServerError)
	clock := clockwork.NewFakeClock()
	webhook, err := NewWebhook(WebhookConfig{URL: receiver.url(), Timeout: 5 * time.Second, MaxAttempts: 2, Clock: clock})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- webhook.Notify(context.Background(), template.Build([]gmail.UnrepliedEmail{{ID: "m1", Subject: "a"}}))
	}()
	clock.BlockUntil(1)
	clock.Advance(retryCap)

	select {
	case err := <-done:
		require.True(t, trace.IsConnectionProblem(err), "expected ConnectionProblem, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook did not finish")
	}
	require.Len(t, receiver.received(), 2)
}

func TestNewWebhookRequiresURL(t *testing.T) {
	_, err := NewWebhook(WebhookConfig{})
	require.True(t, trace.IsBadParameter(err))
}

func TestDiscard(t *testing.T) {
	require.NoError(t, Discard{}.Notify(context.Background(), Payload{}))
}
