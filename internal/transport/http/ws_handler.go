package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// WSHandler streams live standings of a test to its organizer.
type WSHandler struct {
	ranking  rankingService
	upgrader websocket.Upgrader
}

func NewWSHandler(ranking rankingService) *WSHandler {
	return &WSHandler{
		ranking: ranking,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS subscribes before upgrading so authorization failures are
// reported as regular JSON errors.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	updates, cancel, err := h.ranking.Subscribe(r.Context(), testID, actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("test_id", testID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	// The feed is push-only; reading just detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage[any]{Type: "standings", Payload: lb}); err != nil {
				log.Warn().Err(err).Str("test_id", testID).Msg("ws write error")
				return
			}
		case <-closed:
			return
		}
	}
}
