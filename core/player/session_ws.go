package player

import (
	"net/http"
	"time"

	"driftfm/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeState upgrades the request to a websocket and streams session
// snapshots to it: one immediately, one after every state change, and a
// periodic one so position updates keep flowing while nothing else
// changes. Every UI surface observes the same shared session through this
// feed.
func (s *Session) ServeState(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("state feed upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	sub := s.Subscribe()
	defer s.Unsubscribe(sub)

	// Reader goroutine: we ignore client messages but need to notice
	// disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(s.Snapshot()); err != nil {
				return
			}
		}
	}
}
