// Package jsonrpc implements a JSON-RPC 2.0 server over persistent
// newline-delimited-JSON TCP connections, with streaming extensions for
// results that exceed a single message.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is one JSON-RPC request message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC error object. Data carries the stable
// machine-readable error kind.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData is the structured part of an error response.
type ErrorData struct {
	Kind string `json:"kind"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is one JSON-RPC response message. More is the streaming
// extension flag: absent on complete single-message results, true on
// every chunk except the last, false on exactly the last chunk.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	More    *bool           `json:"more,omitempty"`
}

// Chunk is the result payload of one streamed response. Indexes are
// 1-based; StartRank is the overall rank of the chunk's first element.
type Chunk struct {
	Data        any `json:"data"`
	Chunk       int `json:"chunk"`
	TotalChunks int `json:"total_chunks"`
	StartRank   int `json:"start_rank"`
}
