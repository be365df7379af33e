package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/translatekit/chatbridge/internal/translate"
)

// JobRunner is the orchestrator surface the transport needs; tests
// inject a stub.
type JobRunner interface {
	Run(ctx context.Context, req translate.Request) <-chan translate.Event
}

// TranslateHandler serializes orchestrator progress as a server-sent
// event stream. Overlapping jobs are not fenced here: the chat surface
// is a single conversation, so callers must avoid submitting a second
// job while one is running.
type TranslateHandler struct {
	Runner JobRunner
	logger *log.Logger
}

func NewTranslateHandler(runner JobRunner) *TranslateHandler {
	return &TranslateHandler{
		Runner: runner,
		logger: log.New(log.Writer(), "[STREAM] ", log.LstdFlags),
	}
}

func (h *TranslateHandler) Register(g *echo.Group) {
	g.POST("/stream", h.stream)
}

// stream validates the request before any browser resource is touched,
// flushes the SSE headers immediately so clients detect liveness, and
// pumps orchestrator events until the terminal frame. The stream never
// closes without a terminal event (end, or a fatal error frame).
func (h *TranslateHandler) stream(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	ctx := c.Request().Context()
	requestID := uuid.NewString()

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	h.writeEvent(resp, flusher, "start", startFrame{Message: "translation started", RequestID: requestID})

	terminal := false
	defer func() {
		if r := recover(); r != nil {
			h.logger.Printf("stream %s panicked: %v", requestID, r)
			terminal = false
		}
		if !terminal && ctx.Err() == nil {
			h.writeEvent(resp, flusher, "error", errorFrame{Error: "translation aborted unexpectedly", RequestID: requestID})
		}
	}()

	events := h.Runner.Run(ctx, translate.Request{
		Text:         req.Text,
		SurfaceURL:   req.ChatSurfaceURL,
		PromptPrefix: req.PromptPrefix,
		Glossary:     req.Glossary,
	})
	for ev := range events {
		switch ev.Type {
		case translate.EventProgress:
			h.writeEvent(resp, flusher, "", progressFrame{
				Partial:  ev.Partial,
				Chunk:    ev.Chunk,
				Total:    ev.Total,
				Progress: ev.Progress,
			})
		case translate.EventChunkError:
			h.writeEvent(resp, flusher, "error", errorFrame{Error: ev.Err.Error(), RequestID: requestID})
		case translate.EventEnd:
			h.writeEvent(resp, flusher, "end", endFrame{Translation: ev.Final, RequestID: requestID})
			terminal = true
		case translate.EventFatal:
			h.writeEvent(resp, flusher, "error", errorFrame{Error: ev.Err.Error(), RequestID: requestID})
			terminal = true
		}
	}
	return nil
}

func (h *TranslateHandler) writeEvent(resp *echo.Response, flusher http.Flusher, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("encode %s frame: %v", name, err)
		return
	}
	if name != "" {
		fmt.Fprintf(resp, "event: %s\n", name)
	}
	fmt.Fprintf(resp, "data: %s\n\n", data)
	flusher.Flush()
}
