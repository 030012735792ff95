package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// FakeGmail serves the subset of the Gmail REST API the client uses.
type FakeGmail struct {
	srv *httptest.Server

	mu       sync.Mutex
	messages []*gmail.Message
	pageSize int
	queries  []string
	gets     int
	failList bool
	failGet  map[string]bool
}

func NewFakeGmail(t *testing.T, messages ...*gmail.Message) *FakeGmail {
	router := httprouter.New()
	fake := &FakeGmail{
		messages: messages,
		pageSize: 100,
		failGet:  map[string]bool{},
		srv:      httptest.NewServer(router),
	}
	t.Cleanup(fake.srv.Close)

	router.GET("/gmail/v1/users/:user/messages", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.queries = append(fake.queries, r.URL.Query().Get("q"))
		if fake.failList {
			writeError(rw, http.StatusForbidden, "list denied")
			return
		}

		start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
		end := start + fake.pageSize
		if end > len(fake.messages) {
			end = len(fake.messages)
		}
		resp := &gmail.ListMessagesResponse{}
		for _, m := range fake.messages[start:end] {
			resp.Messages = append(resp.Messages, &gmail.Message{Id: m.Id, ThreadId: m.Id})
		}
		if end < len(fake.messages) {
			resp.NextPageToken = strconv.Itoa(end)
		}
		writeJSON(rw, resp)
	})

	router.GET("/gmail/v1/users/:user/messages/:id", func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.gets++
		id := ps.ByName("id")
		if fake.failGet[id] {
			writeError(rw, http.StatusNotFound, "message gone")
			return
		}
		for _, m := range fake.messages {
			if m.Id == id {
				writeJSON(rw, m)
				return
			}
		}
		writeError(rw, http.StatusNotFound, "not found")
	})

	return fake
}

func (f *FakeGmail) Client(t *testing.T) *Client {
	client, err := NewClient(context.Background(), 4,
		option.WithEndpoint(f.srv.URL+"/"),
		option.WithHTTPClient(f.srv.Client()),
	)
	require.NoError(t, err)
	return client
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code int, message string) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": message},
	})
}

func message(id string, headers ...string) *gmail.Message {
	msg := &gmail.Message{Id: id, Payload: &gmail.MessagePart{}}
	for i := 0; i+1 < len(headers); i += 2 {
		msg.Payload.Headers = append(msg.Payload.Headers, &gmail.MessagePartHeader{Name: headers[i], Value: headers[i+1]})
	}
	return msg
}
