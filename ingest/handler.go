package ingest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Response is the API-gateway style payload returned by the scheduled
// entry point.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// RunFunc produces one ingestion summary. A returned error is a top-level
// fault, such as a store that cannot be reached, and turns into a 500
// response.
type RunFunc func(ctx context.Context) (*Summary, error)

// Handler wraps an ingestion run in a transport response.
type Handler struct {
	run    RunFunc
	logger zerolog.Logger
}

func NewHandler(run RunFunc, logger zerolog.Logger) *Handler {
	return &Handler{run: run, logger: logger}
}

// Handle runs one ingestion pass. The event payload is opaque and ignored;
// it exists so the function can sit behind any scheduler trigger. Faults
// are reported through the response status, never as a returned error.
func (h *Handler) Handle(ctx context.Context, _ json.RawMessage) (Response, error) {
	summary, err := h.run(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("ingestion run failed")

		return errorResponse(err), nil
	}

	body, err := json.Marshal(map[string]any{
		"message": "Ingestion completed successfully",
		"result":  summary,
	})
	if err != nil {
		return errorResponse(err), nil
	}

	return Response{StatusCode: http.StatusOK, Body: string(body)}, nil
}

func errorResponse(err error) Response {
	body, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		body = []byte(`{"error":"ingestion failed"}`)
	}

	return Response{StatusCode: http.StatusInternalServerError, Body: string(body)}
}
