package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RoomsFeedHandler upgrades to a websocket and pushes the room snapshot
// once per second, for dashboards that would otherwise poll /rooms. The
// feed is one-way; inbound frames are drained and discarded.
func (s *Server) RoomsFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[RoomsFeedHandler] upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("[RoomsFeedHandler] monitor connected")

	// Reader goroutine: surface close frames so the ticker loop exits.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Info().Str("remote", conn.RemoteAddr().String()).
				Msg("[RoomsFeedHandler] monitor disconnected")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(s.engine.Snapshot()); err != nil {
				log.Debug().Err(err).Msg("[RoomsFeedHandler] write failed, dropping monitor")
				return
			}
		}
	}
}
