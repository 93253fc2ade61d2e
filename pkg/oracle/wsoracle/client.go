// Package wsoracle implements [oracle.Oracle] against a remote grammar
// service reached over a websocket.
//
// The wire protocol is JSON text frames. A request is
//
//	{"event": "check_grammar", "data": {"text": "He go to school."}}
//
// and the service answers with either
//
//	{"event": "grammar_result", "data": {"corrected_text": "He goes to school."}}
//	{"event": "error", "data": {"message": "..."}}
//
// Frames carrying any other event are ignored. The protocol has no request
// ids, so a [Client] keeps at most one request outstanding per connection;
// concurrent Correct calls queue behind each other. The connection is dialled
// lazily on first use and redialled with exponential backoff after it drops.
package wsoracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/proofline/pkg/oracle"
)

// Event names of the wire protocol.
const (
	EventCheckGrammar  = "check_grammar"
	EventGrammarResult = "grammar_result"
	EventError         = "error"
)

// Default connection parameters.
const (
	defaultAttempts = 5
	defaultDelay    = 1 * time.Second
	defaultMaxDelay = 10 * time.Second
	defaultTimeout  = 10 * time.Second
	readLimit       = 1 << 20
)

// ErrClosed is returned by Correct after Close.
var ErrClosed = errors.New("wsoracle: client closed")

// ServerError is an "error" event sent by the grammar service.
type ServerError struct {
	Message string
	Data    json.RawMessage
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "wsoracle: server error: " + string(e.Data)
	}
	return "wsoracle: server error: " + e.Message
}

// Envelope is one protocol frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CheckGrammar is the payload of a check_grammar request.
type CheckGrammar struct {
	Text string `json:"text"`
}

// GrammarResult is the payload of a grammar_result response.
type GrammarResult struct {
	CorrectedText string `json:"corrected_text"`
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Option is a functional option for [Client].
type Option func(*Client)

// WithHeader adds an HTTP header sent with the websocket handshake.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithTimeout bounds a single Correct call, dialling included.
// Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithReconnect sets how many dial attempts are made before a call fails
// and the delay before the second one. The delay doubles up to maxDelay.
// Defaults: 5 attempts, 1s, 10s.
func WithReconnect(attempts int, delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay > 0 {
			c.delay = delay
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithName overrides the name reported to logs and metrics.
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client is a websocket grammar oracle. It is safe for concurrent use.
type Client struct {
	url      string
	header   http.Header
	name     string
	timeout  time.Duration
	attempts int
	delay    time.Duration
	maxDelay time.Duration
	log      *slog.Logger

	// mu serialises requests; it is held for a whole round trip.
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var (
	_ oracle.Oracle = (*Client)(nil)
	_ oracle.Named  = (*Client)(nil)
)

// New returns a Client for the service at url ("ws://" or "wss://"). No
// connection is made until the first call.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("wsoracle: url must not be empty")
	}
	c := &Client{
		url:      url,
		header:   http.Header{},
		name:     "websocket",
		timeout:  defaultTimeout,
		attempts: defaultAttempts,
		delay:    defaultDelay,
		maxDelay: defaultMaxDelay,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Name implements [oracle.Named].
func (c *Client) Name() string { return c.name }

// Connect dials the service unless a connection is already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked(ctx)
	return err
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Correct implements [oracle.Oracle]: it sends sentence as a check_grammar
// request and waits for the matching grammar_result.
func (c *Client) Correct(ctx context.Context, sentence string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		reused := c.conn != nil
		conn, err := c.connLocked(ctx)
		if err != nil {
			return "", err
		}

		res, err := roundTrip(ctx, conn, sentence)
		if err == nil {
			return res, nil
		}
		var se *ServerError
		if errors.As(err, &se) || errors.Is(err, oracle.ErrEmptyResult) {
			return "", err
		}

		// The connection is in an unknown state; a late reply must not be
		// read as the answer to the next request.
		c.dropLocked("request failed")
		if !reused || ctx.Err() != nil {
			return "", err
		}
		// A connection that sat idle may have been dropped by the peer;
		// retry once on a fresh one.
		c.log.Debug("grammar service connection lost, redialling", "url", c.url, "err", err)
	}
}

// Close closes the connection. Later calls fail with [ErrClosed].
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "client closed")
	c.conn = nil
	return err
}

func roundTrip(ctx context.Context, conn *websocket.Conn, sentence string) (string, error) {
	payload, err := json.Marshal(CheckGrammar{Text: sentence})
	if err != nil {
		return "", fmt.Errorf("wsoracle: marshal request: %w", err)
	}
	frame, err := json.Marshal(Envelope{Event: EventCheckGrammar, Data: payload})
	if err != nil {
		return "", fmt.Errorf("wsoracle: marshal request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return "", fmt.Errorf("wsoracle: write: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("wsoracle: read: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return "", fmt.Errorf("wsoracle: decode frame: %w", err)
		}

		switch env.Event {
		case EventGrammarResult:
			var r GrammarResult
			if err := json.Unmarshal(env.Data, &r); err != nil {
				return "", fmt.Errorf("wsoracle: decode %s: %w", env.Event, err)
			}
			if r.CorrectedText == "" {
				return "", fmt.Errorf("wsoracle: %w", oracle.ErrEmptyResult)
			}
			return r.CorrectedText, nil

		case EventError:
			var p errorPayload
			_ = json.Unmarshal(env.Data, &p)
			msg := p.Message
			if msg == "" {
				msg = p.Error
			}
			return "", &ServerError{Message: msg, Data: env.Data}
		}
	}
}

// connLocked returns the open connection or dials a new one, retrying with
// exponential backoff. c.mu must be held.
func (c *Client) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	backoff := c.delay
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
		if err == nil {
			conn.SetReadLimit(readLimit)
			c.conn = conn
			if attempt > 1 {
				c.log.Info("grammar service reconnected", "url", c.url, "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err
		c.log.Warn("grammar service dial failed",
			"url", c.url,
			"attempt", attempt,
			"max_attempts", c.attempts,
			"err", err,
		)
		if attempt == c.attempts {
			break
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("wsoracle: dial: %w", ctx.Err())
		case <-t.C:
		}
		backoff = min(backoff*2, c.maxDelay)
	}
	return nil, fmt.Errorf("wsoracle: dial %s after %d attempts: %w", c.url, c.attempts, lastErr)
}

func (c *Client) dropLocked(reason string) {
	if c.conn == nil {
		return
	}
	c.log.Debug("dropping grammar service connection", "url", c.url, "reason", reason)
	_ = c.conn.CloseNow()
	c.conn = nil
}
