package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linova-go/internal/apperr"
	"linova-go/internal/cache"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewClient(server.URL, WithSessionStore(cache.NewMemoryStore()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func testSession(id string, expiresAt int64) Session {
	return Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    expiresAt,
		User:         Identity{ID: id, Email: id + "@example.com", Metadata: UserMetadata{Name: "Ana"}},
	}
}

func TestQueryValues(t *testing.T) {
	q := Query{
		Table:   "lesson_progress",
		Columns: []string{"lesson_id", "score"},
		Filters: []Filter{Eq("user_id", "u-1")},
		Order:   &Order{Column: "order", Ascending: true},
	}
	values := q.Values()
	assert.Equal(t, "lesson_id,score", values.Get("select"))
	assert.Equal(t, "eq.u-1", values.Get("user_id"))
	assert.Equal(t, "order.asc", values.Get("order"))
}

func TestParseFilter(t *testing.T) {
	f, ok := ParseFilter("user_id=eq.abc-123")
	require.True(t, ok)
	assert.Equal(t, Filter{Column: "user_id", Value: "abc-123"}, f)
	assert.Equal(t, "user_id=eq.abc-123", f.String())

	_, ok = ParseFilter("user_id=gt.4")
	assert.False(t, ok)
	_, ok = ParseFilter("nonsense")
	assert.False(t, ok)
}

func TestSignInSelectAndAuthEvents(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
			writeJSON(w, http.StatusOK, testSession("u-1", time.Now().Add(time.Hour).Unix()))
		case r.URL.Path == "/rest/v1/modules":
			assert.Equal(t, "Bearer access-u-1", r.Header.Get("Authorization"))
			assert.Equal(t, "order.asc", r.URL.Query().Get("order"))
			writeJSON(w, http.StatusOK, []map[string]any{{"id": "m1", "title": "Basics", "order": 0}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	var events []AuthEventType
	unsubscribe := client.OnAuthStateChange(func(e AuthEvent) { events = append(events, e.Type) })
	defer unsubscribe()

	session, err := client.SignIn(context.Background(), "u-1@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.User.ID)

	var rows []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	err = client.Select(context.Background(), Query{Table: "modules", Order: &Order{Column: "order", Ascending: true}}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Basics", rows[0].Title)
	assert.Equal(t, []AuthEventType{EventSignedIn}, events)
}

func TestErrorClassification(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Authentication failed"})
		case "/rest/v1/missing":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Unknown table"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		}
	})
	ctx := context.Background()

	_, err := client.SignIn(ctx, "x@example.com", "bad")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Contains(t, err.Error(), "Authentication failed")

	err = client.Select(ctx, Query{Table: "missing"}, &[]map[string]any{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	err = client.Select(ctx, Query{Table: "modules"}, &[]map[string]any{})
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
}

func TestTransportFailureIsNetwork(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", WithTimeout(time.Second))
	err := client.Select(context.Background(), Query{Table: "modules"}, &[]map[string]any{})
	assert.True(t, apperr.Is(err, apperr.KindNetwork))
}

func TestSessionRestoredAndRefreshed(t *testing.T) {
	store := cache.NewMemoryStore()
	expired := testSession("u-2", time.Now().Add(-time.Minute).Unix())
	raw, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), sessionKey, raw))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token" {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "refresh-u-2", body["refresh_token"])
			fresh := testSession("u-2", time.Now().Add(time.Hour).Unix())
			fresh.AccessToken = "access-fresh"
			writeJSON(w, http.StatusOK, fresh)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSessionStore(store))
	session, err := client.Session(context.Background())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "access-fresh", session.AccessToken)
	assert.Equal(t, "u-2", session.Identity().ID)
}

func TestSessionRefreshRejectedSignsOut(t *testing.T) {
	store := cache.NewMemoryStore()
	raw, _ := json.Marshal(testSession("u-3", time.Now().Add(-time.Minute).Unix()))
	require.NoError(t, store.Set(context.Background(), sessionKey, raw))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Authentication failed"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSessionStore(store))
	var signedOut bool
	client.OnAuthStateChange(func(e AuthEvent) { signedOut = e.Type == EventSignedOut })

	session, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.True(t, signedOut)
	assert.False(t, store.Has(sessionKey))
}

func TestSignOutClearsSessionWhenBackendDown(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/token" {
			writeJSON(w, http.StatusOK, testSession("u-4", time.Now().Add(time.Hour).Unix()))
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "expired"})
	})
	ctx := context.Background()
	_, err := client.SignIn(ctx, "u-4@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, client.SignOut(ctx))

	session, err := client.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// realtimeStub acknowledges subscriptions and lets the test push changes.
type realtimeStub struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	topics  map[string]string
	token   string
	ready   chan struct{}
	readyMu sync.Once
}

func (s *realtimeStub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.token = r.URL.Query().Get("token")
	s.mu.Unlock()
	for {
		var msg realtimeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		switch msg.Type {
		case "subscribe":
			if strings.HasPrefix(msg.Filter, "user_id=eq.forbidden") {
				_ = conn.WriteJSON(realtimeMessage{Type: "error", Topic: msg.Topic, Message: "filter not allowed"})
			} else {
				s.topics[msg.Table] = msg.Topic
				_ = conn.WriteJSON(realtimeMessage{Type: "subscribed", Topic: msg.Topic})
				s.readyMu.Do(func() { close(s.ready) })
			}
		case "unsubscribe":
			for table, topic := range s.topics {
				if topic == msg.Topic {
					delete(s.topics, table)
				}
			}
		}
		s.mu.Unlock()
	}
}

func (s *realtimeStub) push(t *testing.T, table string, record map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(record)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(t, s.conn.WriteJSON(realtimeMessage{Type: "change", Topic: s.topics[table], Table: table, Event: ChangeUpdate, Record: raw}))
}

func TestSubscribeDeliversChanges(t *testing.T) {
	stub := &realtimeStub{topics: map[string]string{}, ready: make(chan struct{})}
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/realtime/v1/websocket":
			stub.handle(w, r)
		case "/auth/v1/token":
			writeJSON(w, http.StatusOK, testSession("u-5", time.Now().Add(time.Hour).Unix()))
		}
	})
	ctx := context.Background()
	_, err := client.SignIn(ctx, "u-5@example.com", "pw")
	require.NoError(t, err)

	received := make(chan ChangeEvent, 4)
	sub, err := client.Subscribe(ctx, "lesson_progress", Eq("user_id", "u-5").String(), func(e ChangeEvent) { received <- e })
	require.NoError(t, err)
	<-stub.ready

	stub.mu.Lock()
	assert.Equal(t, "access-u-5", stub.token)
	stub.mu.Unlock()

	stub.push(t, "lesson_progress", map[string]any{"user_id": "u-5", "lesson_id": "l1"})
	select {
	case event := <-received:
		assert.Equal(t, "lesson_progress", event.Table)
		assert.Equal(t, ChangeUpdate, event.Type)
		assert.JSONEq(t, `{"user_id":"u-5","lesson_id":"l1"}`, string(event.Record))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}

	_, err = client.Subscribe(ctx, "module_unlocks", Eq("user_id", "forbidden").String(), func(ChangeEvent) {})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}
