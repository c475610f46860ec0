package game

import (
	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/protocol"
)

// =============================================================================
// GUESS & PAINTER-FINISH HANDLING
// =============================================================================

// HandleGuess records one guess from a non-painter during GUESSING.
// Correctness is not judged here; the winner is decided over all collected
// guesses at round end. Guesses in any other situation are dropped
// silently so clients racing a phase change see no spurious errors.
func (e *Engine) HandleGuess(c *internal.Client, m protocol.Guess) {
	// --- Critical section: clients then rooms ---
	e.Clients.Mu.Lock()
	roomID := c.RoomID
	e.Clients.Mu.Unlock()

	if roomID == -1 {
		return
	}

	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() || room.Game.State != internal.StateGuessing {
		e.Rooms.Mu.Unlock()
		log.Debug().Int("client", c.ID).Int("room", roomID).Msg("[HandleGuess] bad state, ignoring")
		return
	}
	seat := room.SeatOf(c.ID)
	if seat == nil || seat.IsPainter || seat.HasGuessed {
		e.Rooms.Mu.Unlock()
		log.Debug().Int("client", c.ID).Int("room", roomID).Msg("[HandleGuess] not eligible, ignoring")
		return
	}

	seat.Guess = m.Guess
	seat.HasGuessed = true
	allDone := room.EveryGuesserDone()
	word := room.Game.Word
	e.Rooms.Mu.Unlock()
	// --- End critical section ---

	if m.Guess == word {
		log.Info().Int("room", roomID).Int("client", c.ID).Msg("[HandleGuess] correct guess recorded")
	} else {
		log.Info().Int("room", roomID).Int("client", c.ID).Str("guess", m.Guess).
			Msg("[HandleGuess] guess recorded")
	}

	if allDone {
		e.EndGame(roomID)
	}
}

// HandlePainterFinish honors an early finish from the current painter
// during PAINTING; everyone else's PAINTER_FINISH is ignored.
func (e *Engine) HandlePainterFinish(c *internal.Client) {
	e.Clients.Mu.Lock()
	roomID := c.RoomID
	e.Clients.Mu.Unlock()

	if roomID == -1 {
		return
	}

	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	ok := room != nil && room.InUse() &&
		room.Game.State == internal.StatePainting && room.Game.PainterID == c.ID
	e.Rooms.Mu.Unlock()

	if !ok {
		log.Debug().Int("client", c.ID).Int("room", roomID).
			Msg("[HandlePainterFinish] not the painter or bad state, ignoring")
		return
	}

	log.Info().Int("room", roomID).Int("painter", c.ID).Msg("[HandlePainterFinish] painter finished early")
	e.BeginGuessing(roomID)
}
