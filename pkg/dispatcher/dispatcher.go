package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Source is the read side of the component registry.
type Source interface {
	All(ctx context.Context) ([]component.Info, error)
	GetInfo(ctx context.Context, t component.Type) ([]component.Info, error)
	GetByID(ctx context.Context, id component.ID) (component.Info, bool, error)
	Len(ctx context.Context) (int, error)
}

// Dispatcher routes query requests to registry reads. It never mutates the
// registry; registration only happens over the binary protocol.
type Dispatcher struct {
	source Source
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(source Source) *Dispatcher {
	return &Dispatcher{source: source}
}

// Dispatch routes a request to the appropriate method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *QueryRequest) *QueryResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case "list":
		return d.handleList(ctx, req)
	case "find":
		return d.handleFind(ctx, req)
	case "get":
		return d.handleGet(ctx, req)
	case "health":
		return d.handleHealth(ctx, req)
	default:
		return errorResponse(req.ID, "METHOD_NOT_FOUND", fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

func (d *Dispatcher) handleList(ctx context.Context, req *QueryRequest) *QueryResponse {
	all, err := d.source.All(ctx)
	if err != nil {
		return sourceErrorToResponse(req.ID, err)
	}
	views := ViewsOf(all)
	return &QueryResponse{ID: req.ID, Ok: true, Result: &ListResult{Components: views, Count: len(views)}}
}

func (d *Dispatcher) handleFind(ctx context.Context, req *QueryRequest) *QueryResponse {
	var params FindParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse find params", false)
	}
	t, err := component.ParseType(params.Type)
	if err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", err.Error(), false)
	}
	found, err := d.source.GetInfo(ctx, t)
	if err != nil {
		return sourceErrorToResponse(req.ID, err)
	}
	views := ViewsOf(found)
	return &QueryResponse{ID: req.ID, Ok: true, Result: &ListResult{Components: views, Count: len(views)}}
}

func (d *Dispatcher) handleGet(ctx context.Context, req *QueryRequest) *QueryResponse {
	var params GetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse get params", false)
	}
	if !component.ID(params.ID).IsSet() {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "id is required", false)
	}
	info, ok, err := d.source.GetByID(ctx, component.ID(params.ID))
	if err != nil {
		return sourceErrorToResponse(req.ID, err)
	}
	if !ok {
		return errorResponse(req.ID, "NOT_FOUND", fmt.Sprintf("Component %d not registered", params.ID), false)
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: ViewOf(info)}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *QueryRequest) *QueryResponse {
	n, err := d.source.Len(ctx)
	if err != nil {
		return &QueryResponse{ID: req.ID, Ok: true, Result: &HealthResult{Status: "unhealthy"}}
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: &HealthResult{Status: "healthy", Components: n}}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *QueryResponse {
	return &QueryResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func sourceErrorToResponse(id string, err error) *QueryResponse {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorResponse(id, "TIMEOUT", err.Error(), true)
	}
	if errors.Is(err, registry.ErrClosed) {
		return errorResponse(id, "UNAVAILABLE", err.Error(), true)
	}
	return errorResponse(id, "INTERNAL_ERROR", err.Error(), true)
}
