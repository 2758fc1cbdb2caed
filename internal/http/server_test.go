package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"linova-go/internal/config"
	"linova-go/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *services.ChangeHub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := services.NewChangeHub(nil)
	go hub.Run(ctx)
	cfg := config.Config{
		JWTSecret:         "test-secret",
		JWTIssuer:         "linova",
		AccessTTLSeconds:  3600,
		RefreshTTLSeconds: 7200,
	}
	return NewServer(nil, cfg, hub, nil, nil), hub
}

func accessToken(t *testing.T, s *Server, userID string) string {
	t.Helper()
	pair, err := s.Tokens.Issue(userID, userID+"@example.com")
	require.NoError(t, err)
	return pair.AccessToken
}

func serve(s *Server, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router(context.Background()).ServeHTTP(rec, req)
	return rec
}

func TestRequestsRejectedBeforeTouchingTheDatabase(t *testing.T) {
	s, _ := newTestServer(t)
	cases := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		status int
	}{
		{"unknown table", http.MethodGet, "/rest/v1/users", "", "", http.StatusNotFound},
		{"owned table anonymously", http.MethodGet, "/rest/v1/lesson_progress?user_id=eq.u-1", "", "", http.StatusUnauthorized},
		{"bad bearer token", http.MethodGet, "/rest/v1/modules", "", "garbage", http.StatusUnauthorized},
		{"unknown column", http.MethodGet, "/rest/v1/modules?select=secret", "", "", http.StatusBadRequest},
		{"write to catalog", http.MethodPost, "/rest/v1/modules", `{"id":"m-1"}`, "valid", http.StatusForbidden},
		{"malformed row", http.MethodPost, "/rest/v1/profiles", `[1,2]`, "valid", http.StatusBadRequest},
		{"delete without filter", http.MethodDelete, "/rest/v1/lesson_progress", "", "valid", http.StatusBadRequest},
		{"unsupported grant", http.MethodPost, "/auth/v1/token?grant_type=magic", `{}`, "", http.StatusBadRequest},
		{"empty password grant", http.MethodPost, "/auth/v1/token?grant_type=password", `{"email":""}`, "", http.StatusBadRequest},
		{"bad refresh token", http.MethodPost, "/auth/v1/token?grant_type=refresh_token", `{"refresh_token":"x"}`, "", http.StatusUnauthorized},
		{"short password", http.MethodPost, "/auth/v1/signup", `{"email":"a@b.c","password":"123"}`, "", http.StatusBadRequest},
		{"invalid email", http.MethodPost, "/auth/v1/signup", `{"email":"nope","password":"123456"}`, "", http.StatusBadRequest},
		{"wrong verify type", http.MethodPost, "/auth/v1/verify", `{"type":"signup","code":"c"}`, "", http.StatusBadRequest},
		{"recover without email", http.MethodPost, "/auth/v1/recover", `{}`, "", http.StatusBadRequest},
		{"user without token", http.MethodGet, "/auth/v1/user", "", "", http.StatusUnauthorized},
		{"logout without token", http.MethodPost, "/auth/v1/logout", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := tc.token
			if token == "valid" {
				token = accessToken(t, s, "u-1")
			}
			rec := serve(s, tc.method, tc.target, tc.body, token)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"message"`)
		})
	}
}

func TestLogoutAcknowledgesSignedInUser(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodPost, "/auth/v1/logout", "", accessToken(t, s, "u-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	s, _ := newTestServer(t)
	pair, err := s.Tokens.Issue("u-1", "")
	require.NoError(t, err)
	rec := serve(s, http.MethodGet, "/auth/v1/user", "", pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithAuthStoresClaims(t *testing.T) {
	s, _ := newTestServer(t)
	var gotID, gotEmail string
	handler := WithAuth(s.Tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = CurrentUserID(r)
		gotEmail = CurrentEmail(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken(t, s, "u-7"))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u-7", gotID)
	assert.Equal(t, "u-7@example.com", gotEmail)
}

func TestWithOptionalAuthLetsAnonymousThrough(t *testing.T) {
	s, _ := newTestServer(t)
	called := false
	handler := WithOptionalAuth(s.Tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Empty(t, CurrentUserID(r))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestRecoveryLink(t *testing.T) {
	assert.Equal(t, "linova://reset-password?code=abc", RecoveryLink("", "abc"))
	assert.Equal(t, "linova://reset-password?code=abc", RecoveryLink("not a url", "abc"))
	assert.Equal(t, "exp://host/reset?code=abc&from=mail", RecoveryLink("exp://host/reset?from=mail", "abc"))
}

func TestDecodeRows(t *testing.T) {
	rows, err := decodeRows(strings.NewReader(` {"id":"p","score":1.25} `))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p", rows[0]["id"])
	assert.Equal(t, "1.25", rows[0]["score"].(interface{ String() string }).String())

	rows, err = decodeRows(strings.NewReader(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = decodeRows(strings.NewReader(``))
	assert.Error(t, err)
	_, err = decodeRows(strings.NewReader(`null`))
	assert.Error(t, err)
}

func dialRealtime(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/realtime/v1/websocket"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) RealtimeMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg RealtimeMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRealtimeSocketDeliversOwnChanges(t *testing.T) {
	s, hub := newTestServer(t)
	srv := httptest.NewServer(s.Router(context.Background()))
	defer srv.Close()
	conn := dialRealtime(t, srv, accessToken(t, s, "u-1"))

	require.NoError(t, conn.WriteJSON(RealtimeMessage{Type: "subscribe", Topic: "theirs", Table: "lesson_progress", Filter: "user_id=eq.u-2"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "theirs", msg.Topic)

	require.NoError(t, conn.WriteJSON(RealtimeMessage{Type: "subscribe", Topic: "mine", Table: "lesson_progress", Filter: "user_id=eq.u-1"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "subscribed", msg.Type)
	assert.Equal(t, "mine", msg.Topic)

	require.NoError(t, hub.Publish(context.Background(), services.Change{
		Table: "lesson_progress", Type: services.ChangeUpdate,
		Record: services.Row{"user_id": "u-2", "lesson_id": "l-0"},
	}))
	require.NoError(t, hub.Publish(context.Background(), services.Change{
		Table: "lesson_progress", Type: services.ChangeInsert,
		Record: services.Row{"user_id": "u-1", "lesson_id": "l-1"},
	}))
	msg = readMessage(t, conn)
	assert.Equal(t, "change", msg.Type)
	assert.Equal(t, "mine", msg.Topic)
	assert.Equal(t, services.ChangeInsert, msg.Event)
	assert.Equal(t, "l-1", msg.Record["lesson_id"])
}

func TestRealtimeSocketRejectsBadToken(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Router(context.Background()))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/v1/websocket?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
