package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const writeTimeout = 10 * time.Second

// WSHandler serves the realtime event stream at GET /ws.
type WSHandler struct {
	Hub    *Hub
	Logger *zap.Logger
}

func (h *WSHandler) Register(r *gin.Engine) {
	r.GET("/ws", h.serve)
}

func (h *WSHandler) serve(c *gin.Context) {
	if h == nil || h.Hub == nil {
		c.Status(503)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Browsers on other origins subscribe directly to the engine.
		InsecureSkipVerify: true,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	id, events := h.Hub.Subscribe(64)
	defer h.Hub.Unsubscribe(id)

	ctx := c.Request.Context()
	// Drain reads so pings and client closes are processed.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
