package server

import (
	"github.com/edibez/binanceagent/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handleWebSocket runs a chat session over one connection. Every frame is
// handled like a POST /invocations against the same conversation store.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	remote := conn.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("websocket connected")

	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("remote", remote).Msg("websocket read failed")
			}
			return
		}

		if msg.ThreadID == nil || msg.Question == nil {
			if err := conn.WriteJSON(types.WSReply{Type: "error", Error: "thread_id and question are required"}); err != nil {
				return
			}
			continue
		}

		res, err := s.service.Invoke(ctx, *msg.ThreadID, *msg.Question)
		reply := types.WSReply{
			Type:     "response",
			Response: res.Output,
			Success:  res.Success,
			ThreadID: msg.ThreadID,
			Error:    res.Error,
		}
		if err != nil {
			log.Error().Err(err).Int64("thread_id", *msg.ThreadID).Msg("websocket invocation failed")
			reply = types.WSReply{Type: "error", ThreadID: msg.ThreadID, Error: err.Error()}
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("websocket write failed")
			return
		}
	}
}
