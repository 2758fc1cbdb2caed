package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"linova-go/internal/apperr"
	"linova-go/internal/logger"
)

const (
	subscribeTimeout = 10 * time.Second
	eventBuffer      = 16
)

// Wire messages exchanged on the realtime socket.
type realtimeMessage struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Table     string          `json:"table,omitempty"`
	Filter    string          `json:"filter,omitempty"`
	Event     string          `json:"event,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type realtimeConn struct {
	conn    *websocket.Conn
	log     *logger.Logger
	writeMu sync.Mutex

	mu      sync.Mutex
	topics  map[string]*subscription
	pending map[string]chan error
	closed  bool
	done    chan struct{}
	onClose func(*realtimeConn)
}

type subscription struct {
	rc     *realtimeConn
	topic  string
	table  string
	fn     func(ChangeEvent)
	events chan ChangeEvent
	quit   chan struct{}
	once   sync.Once
}

// Subscribe opens (or reuses) the realtime socket and registers a topic for
// table changes matching filter. Each subscription delivers events to fn on
// its own goroutine, so a slow handler does not hold up other subscriptions.
// When events arrive faster than fn handles them, the surplus is coalesced.
func (c *Client) Subscribe(ctx context.Context, table, filter string, fn func(ChangeEvent)) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: handler required", table)
	}
	rc, err := c.realtime(ctx)
	if err != nil {
		return nil, err
	}
	sub := &subscription{
		rc:     rc,
		topic:  "realtime:" + table + ":" + uuid.NewString(),
		table:  table,
		fn:     fn,
		events: make(chan ChangeEvent, eventBuffer),
		quit:   make(chan struct{}),
	}
	if err := rc.subscribe(ctx, sub, filter); err != nil {
		return nil, err
	}
	go sub.run()
	return sub, nil
}

func (c *Client) realtime(ctx context.Context) (*realtimeConn, error) {
	c.rtMu.Lock()
	defer c.rtMu.Unlock()
	if c.rt != nil && !c.rt.isClosed() {
		return c.rt, nil
	}
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, apperr.Network("realtime connect", err)
	}
	rc := &realtimeConn{
		conn:    conn,
		log:     c.log.With("channel", "realtime"),
		topics:  map[string]*subscription{},
		pending: map[string]chan error{},
		done:    make(chan struct{}),
		onClose: c.forgetRealtime,
	}
	go rc.readLoop()
	c.rt = rc
	return rc, nil
}

func (c *Client) realtimeURL() (string, error) {
	parsed, err := url.Parse(c.baseURL + "/realtime/v1/websocket")
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	query := parsed.Query()
	if token := c.accessToken(); token != "" {
		query.Set("token", token)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) forgetRealtime(rc *realtimeConn) {
	c.rtMu.Lock()
	if c.rt == rc {
		c.rt = nil
	}
	c.rtMu.Unlock()
}

func (c *Client) closeRealtime() {
	c.rtMu.Lock()
	rc := c.rt
	c.rt = nil
	c.rtMu.Unlock()
	if rc != nil {
		rc.close()
	}
}

func (rc *realtimeConn) subscribe(ctx context.Context, sub *subscription, filter string) error {
	ack := make(chan error, 1)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return apperr.Network("realtime subscribe", fmt.Errorf("connection closed"))
	}
	rc.topics[sub.topic] = sub
	rc.pending[sub.topic] = ack
	rc.mu.Unlock()

	msg := realtimeMessage{Type: "subscribe", Topic: sub.topic, Table: sub.table, Filter: filter}
	if err := rc.write(msg); err != nil {
		rc.drop(sub.topic)
		return apperr.Network("realtime subscribe", err)
	}

	timer := time.NewTimer(subscribeTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			rc.drop(sub.topic)
			return err
		}
		return nil
	case <-rc.done:
		return apperr.Network("realtime subscribe", fmt.Errorf("connection closed"))
	case <-timer.C:
		rc.drop(sub.topic)
		return apperr.Network("realtime subscribe", fmt.Errorf("no acknowledgement for %s", sub.table))
	case <-ctx.Done():
		rc.drop(sub.topic)
		return ctx.Err()
	}
}

func (rc *realtimeConn) write(msg realtimeMessage) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	return rc.conn.WriteJSON(msg)
}

func (rc *realtimeConn) readLoop() {
	defer rc.close()
	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			if !rc.isClosed() {
				rc.log.Warn("realtime connection lost", "error", err)
			}
			return
		}
		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			rc.log.Warn("bad realtime payload", "error", err)
			continue
		}
		switch msg.Type {
		case "subscribed", "error":
			rc.resolve(msg)
		case "change":
			rc.mu.Lock()
			sub := rc.topics[msg.Topic]
			rc.mu.Unlock()
			if sub != nil {
				sub.deliver(ChangeEvent{Table: msg.Table, Type: msg.Event, Record: msg.Record, OldRecord: msg.OldRecord})
			}
		}
	}
}

func (rc *realtimeConn) resolve(msg realtimeMessage) {
	rc.mu.Lock()
	ack := rc.pending[msg.Topic]
	delete(rc.pending, msg.Topic)
	rc.mu.Unlock()
	if ack == nil {
		return
	}
	if msg.Type == "error" {
		reason := strings.TrimSpace(msg.Message)
		if reason == "" {
			reason = "subscription rejected"
		}
		ack <- apperr.Auth("realtime subscribe", fmt.Errorf("%s", reason))
		return
	}
	ack <- nil
}

func (rc *realtimeConn) drop(topic string) {
	rc.mu.Lock()
	delete(rc.topics, topic)
	delete(rc.pending, topic)
	rc.mu.Unlock()
}

// unsubscribe removes topic and closes the socket once nothing listens on it.
func (rc *realtimeConn) unsubscribe(topic string) {
	rc.mu.Lock()
	delete(rc.topics, topic)
	remaining := len(rc.topics)
	closed := rc.closed
	rc.mu.Unlock()
	if closed {
		return
	}
	_ = rc.write(realtimeMessage{Type: "unsubscribe", Topic: topic})
	if remaining == 0 {
		rc.close()
	}
}

func (rc *realtimeConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

func (rc *realtimeConn) close() {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	close(rc.done)
	rc.mu.Unlock()

	rc.writeMu.Lock()
	_ = rc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	rc.writeMu.Unlock()
	_ = rc.conn.Close()
	if rc.onClose != nil {
		rc.onClose(rc)
	}
}

func (s *subscription) deliver(event ChangeEvent) {
	select {
	case s.events <- event:
	default:
		s.rc.log.Debug("realtime event coalesced", "table", s.table)
	}
}

func (s *subscription) run() {
	for {
		select {
		case event := <-s.events:
			select {
			case <-s.quit:
				return
			default:
			}
			s.fn(event)
		case <-s.quit:
			return
		}
	}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.quit)
		s.rc.unsubscribe(s.topic)
	})
	return nil
}
