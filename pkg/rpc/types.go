package rpc

import "encoding/json"

// JSON-RPC 2.0 message shapes, line-delimited on standard I/O.

const jsonrpcVersion = "2.0"

// Standard JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// notification is a server-to-client message without an id.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// progressParams reports advisory progress for a long-running request.
type progressParams struct {
	RequestID json.RawMessage `json:"request_id"`
	Progress  float64         `json:"progress"`
	Stage     string          `json:"stage"`
}

// Method results. status is "success" or "error"; on error, Error and
// Kind describe the failure.

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Kind   string `json:"kind"`
}
