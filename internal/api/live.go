package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Clients only send control frames
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API binds to localhost; local pages of any origin may subscribe.
		return true
	},
}

// Message is one websocket frame: a full snapshot of a projection
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (s *Server) streamEntries(c echo.Context) error {
	q, err := s.queryFromRequest(c)
	if err != nil {
		return s.writeError(c, err)
	}
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	feed, err := s.journal.ObserveEntries(ctx, q)
	if err != nil {
		return s.writeError(c, err)
	}
	return pushSnapshots(ctx, cancel, s, c, "entries", feed)
}

func (s *Server) streamTags(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	feed, err := s.journal.ObserveTags(ctx, c.QueryParam("category"))
	if err != nil {
		return s.writeError(c, err)
	}
	return pushSnapshots(ctx, cancel, s, c, "tags", feed)
}

func (s *Server) streamAnalytics(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	feed, err := s.analytics.Subscribe(ctx)
	if err != nil {
		return s.writeError(c, err)
	}
	return pushSnapshots(ctx, cancel, s, c, "analytics", feed)
}

// pushSnapshots upgrades the connection and writes every snapshot from feed
// until the feed closes or the peer goes away. Cancelling ctx releases the
// subscription behind feed.
func pushSnapshots[T any](ctx context.Context, cancel context.CancelFunc, s *Server, c echo.Context, kind string, feed <-chan T) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "stream", kind, "error", err)
		return nil
	}
	defer conn.Close()

	log := s.log.WithFields(map[string]any{"stream": kind, "remote": c.RealIP()})
	log.Debug("websocket connected")

	// Server-push only; reading detects disconnects and handles pongs.
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			log.Debug("websocket disconnected")
			return nil

		case snap, ok := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return nil
			}
			if err := conn.WriteJSON(Message{Type: kind, Data: snap}); err != nil {
				return nil
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
