package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"linova-go/internal/logger"
)

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"

	clientBuffer = 64
)

// Change is a row mutation published to realtime subscribers.
type Change struct {
	Table     string `json:"table"`
	Type      string `json:"event"`
	Record    Row    `json:"record,omitempty"`
	OldRecord Row    `json:"old_record,omitempty"`
}

// value reads column from the new record, or the old one for deletes.
func (c Change) value(column string) (string, bool) {
	row := c.Record
	if row == nil {
		row = c.OldRecord
	}
	v, ok := row[column]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// ChangeHub fans changes out to connected realtime clients.
type ChangeHub struct {
	mu      sync.RWMutex
	clients map[*ChangeClient]bool
	ch      chan Change
	log     *logger.Logger
}

func NewChangeHub(log *logger.Logger) *ChangeHub {
	if log == nil {
		log = logger.Nop()
	}
	return &ChangeHub{
		clients: map[*ChangeClient]bool{},
		ch:      make(chan Change, 256),
		log:     log.With("service", "ChangeHub"),
	}
}

func (h *ChangeHub) Run(ctx context.Context) {
	for {
		select {
		case change := <-h.ch:
			h.dispatch(change)
		case <-ctx.Done():
			return
		}
	}
}

func (h *ChangeHub) dispatch(change Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.Deliver(change)
	}
}

// Publish queues change for delivery; a full queue drops it.
func (h *ChangeHub) Publish(_ context.Context, change Change) error {
	select {
	case h.ch <- change:
	default:
		h.log.Warn("change dropped, hub queue full", "table", change.Table)
	}
	return nil
}

func (h *ChangeHub) Add(client *ChangeClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *ChangeHub) Remove(client *ChangeClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

type topic struct {
	table  string
	filter *Filter
}

// Envelope is a change addressed to one client topic.
type Envelope struct {
	Topic  string
	Change Change
}

// ChangeClient is one realtime connection and its topics.
type ChangeClient struct {
	UserID string

	mu     sync.Mutex
	topics map[string]topic
	out    chan Envelope
	log    *logger.Logger
}

func NewChangeClient(userID string, log *logger.Logger) *ChangeClient {
	if log == nil {
		log = logger.Nop()
	}
	return &ChangeClient{
		UserID: userID,
		topics: map[string]topic{},
		out:    make(chan Envelope, clientBuffer),
		log:    log,
	}
}

// Subscribe registers a topic. Owned tables only accept a filter on the
// caller's own id.
func (c *ChangeClient) Subscribe(topicID, table, rawFilter string) error {
	if strings.TrimSpace(topicID) == "" {
		return ErrBadRequest("Topic is required")
	}
	spec, err := LookupTable(table)
	if err != nil {
		return err
	}
	var filter *Filter
	if strings.TrimSpace(rawFilter) != "" {
		col, rest, ok := strings.Cut(strings.TrimSpace(rawFilter), "=")
		value, eq := strings.CutPrefix(rest, "eq.")
		if !ok || !eq || !spec.HasColumn(col) {
			return ErrBadRequest("Invalid filter")
		}
		filter = &Filter{Column: col, Value: value}
	}
	if spec.Owned() && (c.UserID == "" || filter == nil || filter.Column != spec.OwnerColumn || filter.Value != c.UserID) {
		return ErrForbidden("Filter not allowed")
	}
	c.mu.Lock()
	c.topics[topicID] = topic{table: spec.Name, filter: filter}
	c.mu.Unlock()
	return nil
}

func (c *ChangeClient) Unsubscribe(topicID string) {
	c.mu.Lock()
	delete(c.topics, topicID)
	c.mu.Unlock()
}

// Deliver queues change for every matching topic without blocking.
func (c *ChangeClient) Deliver(change Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.topics {
		if !t.matches(change) {
			continue
		}
		select {
		case c.out <- Envelope{Topic: id, Change: change}:
		default:
			c.log.Warn("realtime client too slow, change dropped", "topic", id)
		}
	}
}

func (c *ChangeClient) Messages() <-chan Envelope {
	return c.out
}

func (t topic) matches(change Change) bool {
	if change.Table != t.table {
		return false
	}
	if t.filter == nil {
		return true
	}
	value, ok := change.value(t.filter.Column)
	return ok && value == t.filter.Value
}
