// Package client is the Go client for the semdex daemon. It speaks
// newline-delimited JSON-RPC 2.0 over TCP and reassembles chunked
// results transparently.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
)

const (
	jsonrpcVersion  = "2.0"
	maxMessageBytes = 4 << 20

	defaultDialTimeout = 5 * time.Second
	defaultCallTimeout = 30 * time.Second
)

var (
	// ErrClosed is returned for calls after Close or after the
	// connection drops.
	ErrClosed = errors.New("client closed")

	// ErrNotRunning means the daemon refused the connection: nothing
	// is listening on the port.
	ErrNotRunning = errors.New("daemon not running")

	// ErrDialTimeout means the daemon did not answer within the dial
	// timeout. Distinct from ErrNotRunning: the port may be reachable
	// but unresponsive.
	ErrDialTimeout = errors.New("dial timed out")
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	More   *bool           `json:"more"`
}

type chunk struct {
	Data        json.RawMessage `json:"data"`
	Chunk       int             `json:"chunk"`
	TotalChunks int             `json:"total_chunks"`
	StartRank   int             `json:"start_rank"`
}

// Client is a connection to the daemon. It is safe for concurrent use;
// responses are routed back to callers by request id.
type Client struct {
	conn    net.Conn
	timeout time.Duration

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan response
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds each call, including all chunks of a streamed
// result.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to the daemon at addr.
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, defaultDialTimeout)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: %s", ErrDialTimeout, addr)
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s", ErrNotRunning, addr)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		timeout: defaultCallTimeout,
		pending: make(map[uint64]chan response),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection and fails all in-flight calls.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64<<10), maxMessageBytes)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			// stale id, e.g. a chunk arriving after the caller timed out
			continue
		}
		select {
		case ch <- resp:
		default:
			// caller stopped consuming; abandon the request so the read
			// loop never blocks on a dead waiter
			c.deregister(resp.ID)
		}
	}
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (c *Client) register() (uint64, chan response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	// buffered so the read loop never blocks on a slow caller
	ch := make(chan response, 64)
	c.pending[id] = ch
	return id, ch, nil
}

func (c *Client) deregister(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// call sends one request and decodes the complete result into out,
// reassembling chunked responses in order.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id, ch, err := c.register()
	if err != nil {
		return err
	}
	defer c.deregister(id)

	payload, err := json.Marshal(request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chunks := make(map[int]json.RawMessage)
	total := 0
	for {
		var resp response
		var ok bool
		select {
		case resp, ok = <-ch:
			if !ok {
				return ErrClosed
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", method, ctx.Err())
		}

		if resp.Error != nil {
			return resp.Error
		}
		if resp.More == nil {
			// single complete result
			if out == nil || len(resp.Result) == 0 {
				return nil
			}
			return json.Unmarshal(resp.Result, out)
		}

		var ck chunk
		if err := json.Unmarshal(resp.Result, &ck); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		chunks[ck.Chunk] = ck.Data
		total = ck.TotalChunks
		if !*resp.More {
			break
		}
	}

	if out == nil {
		return nil
	}
	combined := make([]json.RawMessage, 0, total)
	for i := 1; i <= total; i++ {
		data, ok := chunks[i]
		if !ok {
			return fmt.Errorf("%s: missing chunk %d of %d", method, i, total)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode chunk %d: %w", i, err)
		}
		combined = append(combined, items...)
	}
	merged, err := json.Marshal(combined)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, out)
}

// Status fetches daemon state. It works before initialization
// completes.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.call(ctx, "get_status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SearchSimilar runs a filtered similarity search. The query may carry
// a text filter after "|".
func (c *Client) SearchSimilar(ctx context.Context, query string, opts *SearchOptions) ([]ScoredPost, error) {
	params := map[string]any{"query": query}
	if opts != nil {
		if opts.Settings != nil {
			params["search_settings"] = opts.Settings
		}
		if opts.Mode != "" {
			params["mode"] = opts.Mode
		}
		if len(opts.Weights) > 0 {
			params["weights"] = opts.Weights
		}
	}
	var results []ScoredPost
	if err := c.call(ctx, "search_similar", params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// VectorSearch ranks posts by similarity. topK of 0 returns the full
// ranking, streamed in chunks.
func (c *Client) VectorSearch(ctx context.Context, query string, topK int, mode string, weights []float64) ([]RankedPost, error) {
	params := map[string]any{"query": query}
	if topK > 0 {
		params["top_k"] = topK
	}
	if mode != "" {
		params["mode"] = mode
	}
	if len(weights) > 0 {
		params["weights"] = weights
	}
	var results []RankedPost
	if err := c.call(ctx, "vector_search", params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SearchByText finds posts containing term, newest first.
func (c *Client) SearchByText(ctx context.Context, term string, limit int, source string) ([]Post, error) {
	params := map[string]any{"search_term": term}
	if limit > 0 {
		params["limit"] = limit
	}
	if source != "" {
		params["source"] = source
	}
	var results []Post
	if err := c.call(ctx, "search_posts_by_text", params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// PostsByTag returns posts annotated with tag, newest first.
func (c *Client) PostsByTag(ctx context.Context, tag string, limit int) ([]Post, error) {
	params := map[string]any{"tag": tag}
	if limit > 0 {
		params["limit"] = limit
	}
	var results []Post
	if err := c.call(ctx, "get_posts_by_tag", params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// UserStats returns the top authors by post count.
func (c *Client) UserStats(ctx context.Context, limit int) ([]UserStat, error) {
	params := map[string]any{}
	if limit > 0 {
		params["limit"] = limit
	}
	var stats []UserStat
	if err := c.call(ctx, "get_user_stats", params, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// DBStats summarizes the loaded corpus.
func (c *Client) DBStats(ctx context.Context) (*DatabaseStats, error) {
	var stats DatabaseStats
	if err := c.call(ctx, "get_database_stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// EmbedText embeds text with the daemon's configured model.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var resp struct {
		Vector []float32 `json:"vector"`
	}
	if err := c.call(ctx, "embed_text", map[string]string{"text": text}, &resp); err != nil {
		return nil, err
	}
	return resp.Vector, nil
}

// StopServer asks the daemon to shut down.
func (c *Client) StopServer(ctx context.Context) error {
	return c.call(ctx, "stop_server", nil, nil)
}
