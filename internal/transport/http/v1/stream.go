package v1

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/replay/internal/hub"
	"github.com/xiaot623/gogo/replay/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamTranscript upgrades to a WebSocket that receives the view's
// transcript on connect and again whenever it is recomputed. Every frame
// carries the view revision as seq; frames arrive in increasing seq order.
// GET /v1/views/:view_id/stream
func (h *Handler) StreamTranscript(c echo.Context) error {
	viewID := c.Param("view_id")
	if _, err := h.service.State(viewID); err != nil {
		return errorResponse(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return err
	}

	// Register before rendering so no update between the two is lost.
	conn := h.hub.NewConnection(ws, viewID)
	h.hub.Register(conn)
	ws.SetReadLimit(h.cfg.MaxMessageSize)

	st, err := h.service.Transcript(c.Request().Context(), viewID)
	if err != nil {
		log.Printf("WARN: failed to load transcript for %s: %v", conn.ID, err)
		h.hub.Unregister(conn)
		conn.Close()
		return nil
	}
	if err := h.hub.Deliver(conn, st.Revision, service.NewTranscriptUpdate(viewID, st)); err != nil {
		log.Printf("WARN: failed to send initial transcript to %s: %v", conn.ID, err)
	}

	go h.writePump(conn)
	go h.readPump(conn)

	return nil
}

// readPump drains the connection so control frames are processed. The
// stream is one-way; client frames are ignored.
func (h *Handler) readPump(conn *hub.Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// writePump writes frames and keepalive pings to the connection.
func (h *Handler) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
