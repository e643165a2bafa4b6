package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/intelart/internal/chat"
)

// wsError is sent instead of a reply when a message fails.
type wsError struct {
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// handleWS keeps one conversation per connection: frames are chat requests
// in, replies out. A frame without session_id continues the session of
// the previous reply.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var current string
	for {
		var req chat.Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.deps.Observer.Log().Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		if req.SessionID == "" {
			req.SessionID = current
		}

		reply, err := s.deps.Chat.Ask(r.Context(), req)
		if err != nil {
			status, detail := s.classify(err, "Erreur interne : ")
			if werr := conn.WriteJSON(wsError{Detail: detail, Status: status}); werr != nil {
				return
			}
			continue
		}
		if reply.SessionID != "" {
			current = reply.SessionID
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
