package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bassamadnan/mailreminder/config"
	"github.com/bassamadnan/mailreminder/descriptor"
	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/bassamadnan/mailreminder/notify"
	"github.com/bassamadnan/mailreminder/store"
	"github.com/bassamadnan/mailreminder/tick"
	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type staticAuth struct{ err error }

func (a staticAuth) Authorize(context.Context) (*gmail.Authorization, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &gmail.Authorization{}, nil
}

type staticMailbox []gmail.UnrepliedEmail

func (m staticMailbox) ListUnreplied(context.Context) ([]gmail.UnrepliedEmail, error) {
	return m, nil
}

// gatedMailbox blocks until released or until its context is done.
type gatedMailbox struct {
	started chan struct{}
	release chan struct{}
	emails  []gmail.UnrepliedEmail
}

func newGatedMailbox(emails []gmail.UnrepliedEmail) *gatedMailbox {
	return &gatedMailbox{started: make(chan struct{}), release: make(chan struct{}), emails: emails}
}

func (m *gatedMailbox) ListUnreplied(ctx context.Context) ([]gmail.UnrepliedEmail, error) {
	close(m.started)
	select {
	case <-m.release:
		return m.emails, nil
	case <-ctx.Done():
		return nil, trace.Wrap(ctx.Err())
	}
}

type receiver struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (rcv *receiver) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var p notify.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	rcv.mu.Lock()
	rcv.payloads = append(rcv.payloads, p)
	rcv.mu.Unlock()
	rw.WriteHeader(http.StatusAccepted)
}

func (rcv *receiver) received() []notify.Payload {
	rcv.mu.Lock()
	defer rcv.mu.Unlock()
	return append([]notify.Payload(nil), rcv.payloads...)
}

type testEnv struct {
	srv      *httptest.Server
	store    *store.MemoryStore
	receiver *receiver
}

func newTestEnv(t *testing.T, auth tick.Authorizer, mailbox tick.Mailbox, conf Config) *testEnv {
	env := &testEnv{store: store.NewMemoryStore(), receiver: &receiver{}}

	hook := httptest.NewServer(env.receiver)
	t.Cleanup(hook.Close)
	webhook, err := notify.NewWebhook(notify.WebhookConfig{URL: hook.URL, Timeout: 5 * time.Second, MaxAttempts: 1})
	require.NoError(t, err)

	ticker, err := tick.NewService(tick.Config{
		Auth:     auth,
		Dial:     func(context.Context, *gmail.Authorization) (tick.Mailbox, error) { return mailbox, nil },
		Store:    env.store,
		Notifier: webhook,
		Template: notify.Template{Username: "Gmail Notifier", EventName: "Unreplied Emails", Status: "warning"},
	})
	require.NoError(t, err)

	if conf.Descriptor == nil {
		conf.Descriptor, err = descriptor.Marshal(config.DescriptorConfig{Variant: "interval", AppURL: "http://localhost:3000"})
		require.NoError(t, err)
	}
	conf.Ticker = ticker
	s, err := New(conf)
	require.NoError(t, err)

	env.srv = httptest.NewServer(s.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string) (int, []byte) {
	req, err := http.NewRequest(method, env.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

var twoEmails = []gmail.UnrepliedEmail{{ID: "m1", Subject: "Invoice"}, {ID: "m2", Subject: gmail.NoSubject}}

func TestUnreplied(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(twoEmails), Config{Unreplied: true})

	code, body := env.do(t, http.MethodGet, UnrepliedPath)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"count":2,"emails":[{"id":"m1","subject":"Invoice"},{"id":"m2","subject":"(No Subject)"}]}`, string(body))

	doc := gjson.ParseBytes(body)
	require.Equal(t, int64(len(doc.Get("emails").Array())), doc.Get("count").Int())
	for _, email := range doc.Get("emails").Array() {
		require.True(t, email.Get("id").Exists())
		require.True(t, email.Get("subject").Exists())
	}

	raw, err := env.store.Read(store.SnapshotKey)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"m1","subject":"Invoice"},{"id":"m2","subject":"(No Subject)"}]`, string(raw))
	require.Empty(t, env.receiver.received())
}

func TestUnrepliedEmpty(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(nil), Config{Unreplied: true})

	code, body := env.do(t, http.MethodGet, UnrepliedPath)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"count":0,"emails":[]}`, string(body))
}

func TestUnrepliedDisabled(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(twoEmails), Config{})

	code, _ := env.do(t, http.MethodGet, UnrepliedPath)
	require.Equal(t, http.StatusNotFound, code)
}

func TestTick(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(twoEmails), Config{})

	code, body := env.do(t, http.MethodPost, TickPath)
	require.Equal(t, http.StatusAccepted, code)
	require.JSONEq(t, `{"status":"accepted","count":2}`, string(body))

	payloads := env.receiver.received()
	require.Len(t, payloads, 1)
	require.Len(t, payloads[0].Emails, 2)
	require.Equal(t, "You have 2 unreplied emails.", payloads[0].Message)
	require.Equal(t, "Unreplied Emails", payloads[0].EventName)
}

func TestTickNoEmailsSkipsWebhook(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(nil), Config{})

	code, body := env.do(t, http.MethodPost, TickPath)
	require.Equal(t, http.StatusAccepted, code)
	require.JSONEq(t, `{"status":"accepted","count":0}`, string(body))
	require.Empty(t, env.receiver.received())

	raw, err := env.store.Read(store.SnapshotKey)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(raw))
}

func TestTickFailure(t *testing.T) {
	env := newTestEnv(t, staticAuth{err: trace.AccessDenied("unable to read client secret file")}, staticMailbox(twoEmails), Config{Unreplied: true})

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, TickPath},
		{http.MethodGet, UnrepliedPath},
	} {
		code, body := env.do(t, req.method, req.path)
		require.Equal(t, http.StatusInternalServerError, code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.NotEmpty(t, resp.Error)
	}
	require.Empty(t, env.receiver.received())
}

func TestDescriptorIsStable(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(nil), Config{})

	code, first := env.do(t, http.MethodGet, DescriptorPath)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "http://localhost:3000/api/tick", gjson.GetBytes(first, "data.tick_url").String())

	// Running a tick does not change the descriptor.
	env.do(t, http.MethodPost, TickPath)
	for i := 0; i < 3; i++ {
		code, again := env.do(t, http.MethodGet, DescriptorPath)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, first, again)
	}

	code, _ = env.do(t, http.MethodGet, RootDescriptorPath)
	require.Equal(t, http.StatusNotFound, code)
}

func TestRootDescriptor(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(nil), Config{RootDescriptor: true})

	_, api := env.do(t, http.MethodGet, DescriptorPath)
	code, root := env.do(t, http.MethodGet, RootDescriptorPath)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, api, root)
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t, staticAuth{}, staticMailbox(twoEmails), Config{})

	code, body := env.do(t, http.MethodGet, SnapshotPath)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "[]", strings.TrimSpace(string(body)))

	env.do(t, http.MethodPost, TickPath)
	_, body = env.do(t, http.MethodGet, SnapshotPath)
	require.JSONEq(t, `[{"id":"m1","subject":"Invoice"},{"id":"m2","subject":"(No Subject)"}]`, string(body))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Descriptor: []byte("{}")})
	require.True(t, trace.IsBadParameter(err))
}

func TestTickOutlivesClient(t *testing.T) {
	mailbox := newGatedMailbox(twoEmails)
	env := newTestEnv(t, staticAuth{}, mailbox, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.srv.URL+TickPath, nil)
	require.NoError(t, err)
	errC := make(chan error, 1)
	go func() {
		resp, err := env.srv.Client().Do(req)
		if err == nil {
			resp.Body.Close()
		}
		errC <- err
	}()

	select {
	case <-mailbox.started:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not start")
	}
	cancel()
	require.Error(t, <-errC)
	// Give the server time to notice the closed connection.
	time.Sleep(50 * time.Millisecond)
	close(mailbox.release)

	require.Eventually(t, func() bool {
		return env.store.Has(store.SnapshotKey) && len(env.receiver.received()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 2, len(env.receiver.received()[0].Emails))
}
