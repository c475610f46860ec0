package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/protocol"
	"github.com/scythe504/drawguess-server/internal/store"
)

// HandleHistoryReq streams the client's recent round records, newest
// first, terminated by HISTORY_END. History is keyed by nickname, so two
// clients sharing a nickname share a history.
func (e *Engine) HandleHistoryReq(c *internal.Client) {
	e.Clients.Mu.Lock()
	nickname := c.Nickname
	e.Clients.Mu.Unlock()

	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	recs, err := e.repo.ListHistory(ctx, nickname, store.HistoryLimit)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("nickname", nickname).Msg("[HandleHistoryReq] history query failed")
		// The terminator still goes out so the client is not left hanging.
	}

	log.Info().Int("client", c.ID).Str("nickname", nickname).Int("records", len(recs)).
		Msg("[HandleHistoryReq] sending history")

	for _, rec := range recs {
		e.sendToClient(c.ID, protocol.EncodeHistoryData(0, protocol.HistoryData{
			GameID:    rec.GameID,
			Word:      rec.Word,
			UserGuess: rec.Guess,
			GameTime:  rec.GameTime,
		}))
	}
	e.sendToClient(c.ID, protocol.EncodeHistoryEnd(0))
}
