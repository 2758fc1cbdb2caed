package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"linova-go/internal/apperr"
	"linova-go/internal/cache"
	"linova-go/internal/logger"
)

const (
	DefaultTimeout = 30 * time.Second

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	headerPrefer        = "Prefer"
	contentTypeJSON     = "application/json"
	clientUserAgent     = "linova-go/1.0"

	sessionKey = "linova:session"
)

// Client implements Gateway against the Linova backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	store      cache.Store
	log        *logger.Logger
	now        func() time.Time

	mu      sync.RWMutex
	session *Session
	loaded  bool

	listenersMu  sync.Mutex
	listeners    map[int]func(AuthEvent)
	nextListener int

	rtMu sync.Mutex
	rt   *realtimeConn
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithSessionStore persists the session so it can be restored on the next run.
func WithSessionStore(store cache.Store) Option {
	return func(c *Client) { c.store = store }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = dialer }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		dialer:     websocket.DefaultDialer,
		log:        logger.Nop(),
		now:        time.Now,
		listeners:  map[int]func(AuthEvent){},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "RemoteClient")
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type requestOptions struct {
	query  url.Values
	token  string
	prefer string
	anon   bool
}

// doRequest performs a JSON request and decodes the response into result.
// Transport failures are network errors; HTTP failures are classified by status.
func (c *Client) doRequest(ctx context.Context, method, path string, opts requestOptions, body any, result any) error {
	reqURL := c.baseURL + path
	if len(opts.query) > 0 {
		reqURL += "?" + opts.query.Encode()
	}
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(headerUserAgent, clientUserAgent)
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	if opts.prefer != "" {
		req.Header.Set(headerPrefer, opts.prefer)
	}
	token := opts.token
	if token == "" && !opts.anon {
		token = c.accessToken()
	}
	if token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}

	op := method + " " + path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Network(op, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Network(op, fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode >= 400 {
		return parseError(op, resp.StatusCode, respBody)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%s: parse response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}
