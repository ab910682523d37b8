package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

// maxMessageBytes bounds one inbound message.
const maxMessageBytes = 4 * 1024 * 1024

// Handler executes one RPC method. Returning a Streamer result makes
// the server deliver it as an ordered sequence of chunks.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Streamer is an oversized result sequence to be delivered in chunks.
type Streamer interface {
	StreamLen() int
	StreamSlice(i, j int) any
}

type stream[T any] struct{ items []T }

func (s stream[T]) StreamLen() int           { return len(s.items) }
func (s stream[T]) StreamSlice(i, j int) any { return s.items[i:j] }

// NewStream wraps a slice for chunked delivery.
func NewStream[T any](items []T) Streamer { return stream[T]{items: items} }

// Server dispatches JSON-RPC requests to an explicit method table.
// Only registered methods are reachable; method names from the wire are
// never resolved dynamically.
type Server struct {
	logger    *zap.Logger
	chunkSize int

	methods map[string]Handler

	mu     sync.Mutex
	lis    net.Listener
	conns  map[net.Conn]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server. chunkSize is the number of result
// elements per streamed chunk.
func NewServer(logger *zap.Logger, chunkSize int) *Server {
	return &Server{
		logger:    logger,
		chunkSize: chunkSize,
		methods:   make(map[string]Handler),
		conns:     make(map[net.Conn]context.CancelFunc),
	}
}

// Register adds a method to the dispatch table. Must be called before
// Serve.
func (s *Server) Register(method string, h Handler) {
	s.methods[method] = h
}

// Serve accepts connections until the listener is closed. Each
// connection gets its own goroutine; requests within one connection are
// processed sequentially so streamed chunks keep their order.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("server is closed")
	}
	s.lis = lis
	s.mu.Unlock()

	for {
		conn, err := lis.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting, drops open connections, and waits for their
// handlers to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	lis := s.lis
	for conn, cancel := range s.conns {
		cancel()
		_ = conn.Close()
	}
	s.mu.Unlock()

	var err error
	if lis != nil {
		err = lis.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	metrics.RPCConnectionsActive.Inc()
	defer metrics.RPCConnectionsActive.Dec()

	// Canceled when the connection drops or the server closes, so chunk
	// production and in-flight handlers stop.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logpkg.ContextWithLogger(ctx,
		s.logger.With(zap.String("remote", conn.RemoteAddr().String())))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conns[conn] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	enc := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.writeError(enc, nil, CodeParseError, "parse error", "protocol")
			continue
		}
		if req.JSONRPC != Version {
			s.writeError(enc, req.ID, CodeInvalidRequest, "invalid request: missing jsonrpc field", "protocol")
			continue
		}

		if err := s.dispatch(ctx, enc, &req); err != nil {
			// write failed: connection is gone
			cancel()
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("connection read ended", zap.Error(err))
	}
}

// dispatch runs one request and writes its response(s). A non-nil
// return means the connection is unusable.
func (s *Server) dispatch(ctx context.Context, enc *json.Encoder, req *Request) error {
	handler, ok := s.methods[req.Method]
	if !ok {
		metrics.RPCRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return s.writeError(enc, req.ID, CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method), "protocol")
	}

	start := time.Now()
	value, err := handler(ctx, req.Params)
	metrics.RPCRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		code, kind, msg := classify(err)
		if code == CodeInternalError {
			s.logger.Error("rpc handler failed", zap.String("method", req.Method), zap.Error(err))
		}
		return s.writeError(enc, req.ID, code, msg, kind)
	}

	metrics.RPCRequestsTotal.WithLabelValues(req.Method, "success").Inc()

	if streamer, ok := value.(Streamer); ok {
		return s.writeStream(ctx, enc, req.ID, streamer)
	}
	return s.writeResult(enc, req.ID, value, nil)
}

// writeStream delivers a result sequence as ordered chunks sharing the
// request id. The total chunk count is known before the first chunk is
// sent. An empty sequence still produces one (empty) chunk.
func (s *Server) writeStream(ctx context.Context, enc *json.Encoder, id json.RawMessage, streamer Streamer) error {
	n := streamer.StreamLen()
	totalChunks := (n + s.chunkSize - 1) / s.chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	for i := 0; i < totalChunks; i++ {
		// a dropped client must stop chunk production
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lo := i * s.chunkSize
		hi := min(lo+s.chunkSize, n)
		more := i < totalChunks-1
		chunk := Chunk{
			Data:        streamer.StreamSlice(lo, hi),
			Chunk:       i + 1,
			TotalChunks: totalChunks,
			StartRank:   lo + 1,
		}
		if err := s.writeResult(enc, id, chunk, &more); err != nil {
			return err
		}
		metrics.RPCChunksSentTotal.Inc()
	}
	return nil
}

func (s *Server) writeResult(enc *json.Encoder, id json.RawMessage, value any, more *bool) error {
	result, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("marshal rpc result", zap.Error(err))
		return s.writeError(enc, id, CodeInternalError, "internal error", "internal")
	}
	return enc.Encode(Response{JSONRPC: Version, ID: id, Result: result, More: more})
}

func (s *Server) writeError(enc *json.Encoder, id json.RawMessage, code int, msg, kind string) error {
	return enc.Encode(Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: msg, Data: &ErrorData{Kind: kind}},
	})
}

// classify maps a handler error to a JSON-RPC code and stable kind.
// Unexpected errors are sanitized before crossing the process boundary.
func classify(err error) (code int, kind, msg string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeInvalidParams, "validation", err.Error()
	case errors.Is(err, domain.ErrUnsupportedMode):
		return CodeInvalidParams, "unsupported_mode", err.Error()
	case errors.Is(err, domain.ErrProtocol):
		return CodeInvalidRequest, "protocol", err.Error()
	case errors.Is(err, domain.ErrNotReady):
		return CodeInternalError, "not_ready", err.Error()
	case errors.Is(err, context.Canceled):
		return CodeInternalError, "canceled", "request canceled"
	default:
		return CodeInternalError, "internal", "internal error"
	}
}
