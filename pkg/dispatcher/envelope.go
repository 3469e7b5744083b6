// Package dispatcher routes NATS query messages to read-only registry views.
package dispatcher

import "encoding/json"

// QueryRequest is the JSON envelope of an incoming query.
type QueryRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// QueryResponse is the JSON envelope of a query reply.
type QueryResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// FindParams selects components by type name ("cellapp" or "CellApp").
type FindParams struct {
	Type string `json:"type"`
}

// GetParams selects one component by id.
type GetParams struct {
	ID uint64 `json:"id"`
}

// ListResult is returned by list and find.
type ListResult struct {
	Components []ComponentView `json:"components"`
	Count      int             `json:"count"`
}

// HealthResult is returned by health.
type HealthResult struct {
	Status     string `json:"status"`
	Components int    `json:"components"`
}
