package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds WebSocket handler settings
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool

	// OnConnect, when set, produces the first message each client receives
	OnConnect func() (*Message, error)
}

// DefaultConfig returns 1 KiB buffers and accepts any origin
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// Handler upgrades requests to WebSocket connections registered with hub
func Handler(hub *Hub, config *Config) http.Handler {
	if config == nil {
		config = DefaultConfig()
	}
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error
			hub.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(uuid.NewString(), conn, hub)

		if config.OnConnect != nil {
			msg, err := config.OnConnect()
			if err == nil {
				var data []byte
				if data, err = json.Marshal(msg); err == nil {
					// The client is not registered yet, so nothing else writes to send
					client.send <- data
				}
			}
			if err != nil {
				hub.logger.Warn("failed to build initial watch message", zap.Error(err))
			}
		}

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	})
}
