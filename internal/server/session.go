package server

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/protocol"
)

// handleSession reads framed control messages until the connection closes
// or a frame fails to decode; a malformed frame on the reliable stream is
// fatal to the session. Teardown always runs membership cleanup.
func (s *Server) handleSession(ctx context.Context, c *internal.Client) {
	defer func() {
		s.engine.Disconnect(c)
		c.Conn.Close()
	}()

	for {
		h, body, err := protocol.ReadFrame(c.Conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Info().Int("client", c.ID).Msg("[handleSession] client disconnected")
			} else {
				log.Warn().Int("client", c.ID).Err(err).Msg("[handleSession] read failed, closing")
			}
			return
		}

		payload, err := protocol.Decode(h, body)
		if err != nil {
			log.Warn().Int("client", c.ID).Err(err).Msg("[handleSession] malformed frame, closing")
			return
		}

		switch h.Type {
		case protocol.MsgClientJoin:
			s.engine.HandleJoin(c, payload.(protocol.Join))

		case protocol.MsgClientReady:
			s.engine.HandleReady(c)

		case protocol.MsgPainterFinish:
			s.engine.HandlePainterFinish(c)

		case protocol.MsgGuessSubmit:
			s.engine.HandleGuess(c, payload.(protocol.Guess))

		case protocol.MsgClientLeave:
			log.Info().Int("client", c.ID).Msg("[handleSession] client leaving")
			return

		case protocol.MsgHistoryReq:
			s.engine.HandleHistoryReq(c)

		case protocol.MsgRoomListReq:
			s.engine.HandleRoomListReq(c)

		case protocol.MsgCreateRoom:
			s.engine.HandleCreateRoom(c, payload.(protocol.CreateRoom))

		case protocol.MsgJoinRoom:
			s.engine.HandleJoinRoom(c, payload.(protocol.JoinRoom))

		case protocol.MsgLeaveRoom:
			s.engine.HandleLeaveRoom(c, payload.(protocol.LeaveRoom))

		default:
			// Well-formed but not a client-to-server kind; drop it.
			log.Debug().Int("client", c.ID).Stringer("type", h.Type).
				Msg("[handleSession] unexpected message kind, ignoring")
		}
	}
}
