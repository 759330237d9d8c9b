package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 types

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"` // can be string, number, or null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// MCP Protocol types

// InitializeParams is sent by the client during handshake.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is returned to the client.
type InitializeResult struct {
	ProtocolVersion string           `json:"protocolVersion"`
	Capabilities    ServerCapability `json:"capabilities"`
	ServerInfo      ServerInfo       `json:"serverInfo"`
}

type ServerCapability struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// --- Tools ---

// ToolsListResult is returned for tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsCallParams is received for tools/call.
type ToolsCallParams struct {
	Name      string           `json:"name"`
	Arguments json.RawMessage  `json:"arguments,omitempty"`
	Options   *ToolCallOptions `json:"options,omitempty"`
}

// ToolCallOptions carries call-level flags that aren't part of the
// tool's own argument shape.
type ToolCallOptions struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// ToolsCallResult is returned for tools/call. Beyond the standard MCP
// isError/content shape, it carries the two fields spec 6's tool-call
// envelope adds: Success (the positive-sense mirror of IsError, kept
// for external consumers that read the envelope rather than the JSON-
// RPC error channel) and IsDryRun.
type ToolsCallResult struct {
	Success bool           `json:"success"`
	Content []ContentBlock `json:"content"`
	IsDryRun bool          `json:"is_dry_run,omitempty"`
	IsError bool           `json:"isError,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ContentBlock is one item of a tool result's content array: either
// free text or a structured JSON value. A pending-approval response is
// a json content item whose Data carries {pending_approval, approval_id,
// tool, fields, expires_at} (spec 6).
type ContentBlock struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TextContent creates a text content block.
func TextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// JSONContent creates a json content block carrying v.
func JSONContent(v any) (ContentBlock, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ContentBlock{}, fmt.Errorf("marshaling content: %w", err)
	}
	return ContentBlock{Type: "json", Data: b}, nil
}

// ErrorResult creates an error tool result.
func ErrorResult(msg string) *ToolsCallResult {
	return &ToolsCallResult{
		Content: []ContentBlock{TextContent(msg)},
		IsError: true,
		Error:   msg,
	}
}

// JSONResult marshals v as indented JSON and wraps it in a ToolsCallResult.
func JSONResult(v any) (*ToolsCallResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &ToolsCallResult{
		Success: true,
		Content: []ContentBlock{TextContent(string(b))},
	}, nil
}
