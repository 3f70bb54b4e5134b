package transcript

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	logx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeIngest upgrades the request and publishes every text frame as a
// fragment of callID until the peer disconnects.
func ServeIngest(w http.ResponseWriter, r *http.Request, callID string, pub Publisher) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("call_id", callID).Msg("transcript ingest upgrade failed")
		return
	}
	defer conn.Close()

	logger := logx.ForCall(callID)
	logger.Info().Msg("transcript ingest connected")

	conn.SetReadLimit(maxMessageSize)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("transcript ingest closed unexpectedly")
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}
		pub.Publish(r.Context(), Fragment{
			CallID: callID,
			Text:   string(data),
			Source: "stream",
			At:     time.Now().UTC(),
		})
	}
	logger.Info().Msg("transcript ingest disconnected")
}

// ServeSubscribe upgrades the request and streams callID fragments as JSON.
func ServeSubscribe(w http.ResponseWriter, r *http.Request, callID string, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("call_id", callID).Msg("transcript subscribe upgrade failed")
		return
	}

	fragments, cancel := hub.Subscribe(callID)
	ctx, stop := context.WithCancel(r.Context())

	go readPump(conn, stop)
	writePump(ctx, conn, fragments)

	cancel()
	_ = conn.Close()
}

// readPump discards client frames and stops the subscription on disconnect.
func readPump(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, fragments <-chan Fragment) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case f, ok := <-fragments:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
