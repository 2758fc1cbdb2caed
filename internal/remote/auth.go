package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"linova-go/internal/apperr"
)

type credentials struct {
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Data     *UserMetadata `json:"data,omitempty"`
}

// Session returns the current session, restoring it from the session store
// on first use and refreshing it when the access token has expired.
// A nil session with a nil error means nobody is signed in.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	c.restoreSession(ctx)
	c.mu.RLock()
	current := c.session
	c.mu.RUnlock()
	if current == nil {
		return nil, nil
	}
	if !current.Expired(c.now()) {
		copied := *current
		return &copied, nil
	}
	refreshed, err := c.RefreshSession(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindAuth) {
			c.clearSession(ctx)
			c.emit(AuthEvent{Type: EventSignedOut})
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta UserMetadata) (*Session, error) {
	var session Session
	body := credentials{Email: strings.TrimSpace(email), Password: password, Data: &meta}
	err := c.doRequest(ctx, http.MethodPost, "/auth/v1/signup", requestOptions{anon: true}, body, &session)
	if err != nil {
		return nil, asAuthError("sign up", err)
	}
	c.setSession(ctx, &session)
	c.emit(AuthEvent{Type: EventSignedIn, Session: &session})
	return &session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	query := url.Values{"grant_type": {"password"}}
	body := credentials{Email: strings.TrimSpace(email), Password: password}
	err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token", requestOptions{query: query, anon: true}, body, &session)
	if err != nil {
		return nil, asAuthError("sign in", err)
	}
	c.setSession(ctx, &session)
	c.emit(AuthEvent{Type: EventSignedIn, Session: &session})
	return &session, nil
}

func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	current := c.session
	c.mu.RUnlock()
	if current == nil || current.RefreshToken == "" {
		return nil, apperr.Auth("refresh session", errNoSession)
	}
	var session Session
	query := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": current.RefreshToken}
	err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token", requestOptions{query: query, anon: true}, body, &session)
	if err != nil {
		return nil, asAuthError("refresh session", err)
	}
	c.setSession(ctx, &session)
	c.emit(AuthEvent{Type: EventTokenRefreshed, Session: &session})
	return &session, nil
}

// SignOut always drops the local session, even when the backend is unreachable.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.accessToken()
	var err error
	if token != "" {
		err = c.doRequest(ctx, http.MethodPost, "/auth/v1/logout", requestOptions{token: token}, nil, nil)
	}
	c.clearSession(ctx)
	c.emit(AuthEvent{Type: EventSignedOut})
	if err != nil && !apperr.Is(err, apperr.KindAuth) {
		return err
	}
	return nil
}

// ResetPasswordForEmail asks the backend to issue a recovery link that
// opens redirectTo with a one-time code.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	body := map[string]string{"email": strings.TrimSpace(email), "redirect_to": redirectTo}
	err := c.doRequest(ctx, http.MethodPost, "/auth/v1/recover", requestOptions{anon: true}, body, nil)
	return asAuthError("reset password", err)
}

// ExchangeRecoveryCode trades a recovery code from a deep link for a session.
func (c *Client) ExchangeRecoveryCode(ctx context.Context, code string) (*Session, error) {
	var session Session
	body := map[string]string{"type": "recovery", "code": strings.TrimSpace(code)}
	err := c.doRequest(ctx, http.MethodPost, "/auth/v1/verify", requestOptions{anon: true}, body, &session)
	if err != nil {
		return nil, asAuthError("verify recovery code", err)
	}
	c.setSession(ctx, &session)
	c.emit(AuthEvent{Type: EventPasswordRecovery, Session: &session})
	return &session, nil
}

type UserUpdate struct {
	Password *string       `json:"password,omitempty"`
	Data     *UserMetadata `json:"data,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, update UserUpdate) (*Identity, error) {
	var user Identity
	err := c.doRequest(ctx, http.MethodPut, "/auth/v1/user", requestOptions{}, update, &user)
	if err != nil {
		return nil, asAuthError("update user", err)
	}
	c.mu.Lock()
	var updated *Session
	if c.session != nil {
		c.session.User = user
		copied := *c.session
		updated = &copied
	}
	c.mu.Unlock()
	if updated != nil {
		c.persistSession(ctx, updated)
	}
	c.emit(AuthEvent{Type: EventUserUpdated, Session: updated})
	return &user, nil
}

// DeleteAccount removes the signed-in user and everything they own.
func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/auth/v1/user", requestOptions{}, nil, nil); err != nil {
		return asAuthError("delete account", err)
	}
	c.clearSession(ctx)
	c.emit(AuthEvent{Type: EventSignedOut})
	return nil
}

func (c *Client) OnAuthStateChange(fn func(AuthEvent)) func() {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenersMu.Unlock()
	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Client) emit(event AuthEvent) {
	c.listenersMu.Lock()
	fns := make([]func(AuthEvent), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

func (c *Client) restoreSession(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.loaded = true
	if c.store == nil || c.session != nil {
		return
	}
	values, err := c.store.Get(ctx, []string{sessionKey})
	if err != nil {
		c.log.Warn("session restore failed", "error", err)
		return
	}
	raw, ok := values[sessionKey]
	if !ok {
		return
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil || session.User.ID == "" {
		c.log.Warn("discarding unreadable stored session")
		return
	}
	c.session = &session
}

func (c *Client) setSession(ctx context.Context, session *Session) {
	copied := *session
	c.mu.Lock()
	c.session = &copied
	c.loaded = true
	c.mu.Unlock()
	c.persistSession(ctx, &copied)
}

func (c *Client) persistSession(ctx context.Context, session *Session) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, sessionKey, raw); err != nil {
		c.log.Warn("session persist failed", "error", err)
	}
}

func (c *Client) clearSession(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	c.loaded = true
	c.mu.Unlock()
	c.closeRealtime()
	if c.store != nil {
		if err := c.store.Remove(ctx, []string{sessionKey}); err != nil {
			c.log.Warn("session clear failed", "error", err)
		}
	}
}
