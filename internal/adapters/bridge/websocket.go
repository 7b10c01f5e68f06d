package bridge

import (
	"errors"
	"net/http"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
)

// maxFrameBytes bounds a single notice; real frames are a few dozen bytes.
const maxFrameBytes = 16 << 10

// WebSocketHandler accepts a websocket connection and feeds every text frame
// to the handler. Nothing is written back to the sender.
type WebSocketHandler struct {
	decoder        *Decoder
	handler        Handler
	logger         *logging.Logger
	originPatterns []string

	connections atomic.Int64
	frames      atomic.Int64
}

// NewWebSocketHandler creates the handler. originPatterns restricts browser
// origins; nil allows same-origin only.
func NewWebSocketHandler(decoder *Decoder, handler Handler, logger *logging.Logger, originPatterns ...string) *WebSocketHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WebSocketHandler{
		decoder:        decoder,
		handler:        handler,
		logger:         logger.With("component", "bridge.websocket"),
		originPatterns: originPatterns,
	}
}

// ServeHTTP implements http.Handler.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	h.connections.Add(1)
	defer h.connections.Add(-1)

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, ctx.Err()) {
				h.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		h.frames.Add(1)
		msg, err := h.decoder.Decode(data)
		if err != nil {
			h.logger.Warn("discarding invalid websocket frame", "error", err)
			continue
		}
		_ = h.handler.Handle(ctx, msg)
	}
}

// Connections returns the number of open connections.
func (h *WebSocketHandler) Connections() int64 {
	return h.connections.Load()
}

// Frames returns the number of text frames received.
func (h *WebSocketHandler) Frames() int64 {
	return h.frames.Load()
}
