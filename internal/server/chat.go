package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Berektassuly/terra-vision-ai/pkg/agent"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/transcript"
	"github.com/Berektassuly/terra-vision-ai/pkg/engine"
)

// wsReadTimeout bounds the wait for the first WebSocket frame.
const wsReadTimeout = 30 * time.Second

type handlers struct {
	asker        Asker
	logger       *slog.Logger
	maxBodyBytes int64
	keepAlive    time.Duration
	version      string
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// handleHealth handles GET /healthz.
func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}

// handleChat handles POST /api/chat. The response is an SSE stream of run
// events, one "event: <type>" block per event, ending when the run ends.
func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, codeBodyTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "could not read request body")
		return
	}

	t, err := transcript.Decode(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidTranscript, err.Error())
		return
	}

	if !canFlush(w) {
		writeError(w, r, http.StatusInternalServerError, codeStreaming, "response writer does not support streaming")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.asker.Ask(ctx, t)
	if err != nil {
		h.writeAskError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(ctx, "sse flush failed", "error", err)
		return
	}
	// Streams outlive the server's WriteTimeout.
	_ = rc.SetWriteDeadline(time.Time{})

	keepalive := time.NewTicker(h.keepAlive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := io.WriteString(w, ":keepalive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame, err := formatSSE(ev)
			if err != nil {
				h.logger.ErrorContext(ctx, "encode event", "type", ev.Kind, "error", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// handleChatWS handles GET /api/chat/ws. The first client frame is the
// transcript; every server frame after it is one event as JSON. The server
// closes the connection when the run ends.
func (h *handlers) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(h.maxBodyBytes)

	readCtx, cancelRead := context.WithTimeout(r.Context(), wsReadTimeout)
	_, data, err := conn.Read(readCtx)
	cancelRead()
	if err != nil {
		h.logger.DebugContext(r.Context(), "websocket read failed", "error", err)
		return
	}

	t, err := transcript.Decode(data)
	if err != nil {
		_ = wsjson.Write(r.Context(), conn, agent.ErrorEvent(codeInvalidTranscript, err.Error(), false))
		_ = conn.Close(websocket.StatusInvalidFramePayloadData, "invalid transcript")
		return
	}

	// CloseRead cancels ctx when the client goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	events, err := h.asker.Ask(ctx, t)
	if err != nil {
		_ = wsjson.Write(ctx, conn, agent.ErrorEvent(agent.CodeInternal, err.Error(), false))
		_ = conn.Close(websocket.StatusInternalError, "run failed to start")
		return
	}

	for ev := range events {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			h.logger.DebugContext(ctx, "websocket write failed", "error", err)
			return
		}
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (h *handlers) writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, engine.ErrInvalidTranscript) {
		writeError(w, r, http.StatusBadRequest, codeInvalidTranscript, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "start run", "error", err)
	writeError(w, r, http.StatusInternalServerError, codeInternal, "could not start the run")
}

// canFlush reports whether w, or a writer it wraps, implements http.Flusher.
func canFlush(w http.ResponseWriter) bool {
	for {
		switch v := w.(type) {
		case http.Flusher:
			return true
		case interface{ Unwrap() http.ResponseWriter }:
			w = v.Unwrap()
		default:
			return false
		}
	}
}

// formatSSE renders one event as an SSE block.
func formatSSE(ev agent.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(ev.Kind)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, string(ev.Kind)...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}
