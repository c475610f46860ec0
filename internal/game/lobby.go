package game

import (
	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/protocol"
)

// =============================================================================
// LOBBY - NICKNAME & READY HANDLING
// =============================================================================

// HandleJoin records the client's nickname. JOIN touches no room state;
// room membership only changes via CREATE_ROOM / JOIN_ROOM / LEAVE_ROOM.
func (e *Engine) HandleJoin(c *internal.Client, m protocol.Join) {
	e.Clients.Mu.Lock()
	c.Nickname = m.Nickname
	e.Clients.Mu.Unlock()

	log.Info().Int("client", c.ID).Str("nickname", m.Nickname).Msg("[HandleJoin] nickname set")
}

// HandleReady marks the client ready and starts the round once every
// member is ready and at least two are seated. Ready is silently ignored
// outside WAITING/READY, outside a room, or when already ready; clients
// race phase changes and must not be punished for it.
func (e *Engine) HandleReady(c *internal.Client) {
	// --- Critical section: clients then rooms ---
	e.Clients.Mu.Lock()
	roomID := c.RoomID
	e.Clients.Mu.Unlock()

	if roomID == -1 {
		log.Debug().Int("client", c.ID).Msg("[HandleReady] not in a room, ignoring")
		return
	}

	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() {
		e.Rooms.Mu.Unlock()
		return
	}
	if room.Game.State != internal.StateWaiting && room.Game.State != internal.StateReady {
		e.Rooms.Mu.Unlock()
		log.Debug().Int("client", c.ID).Int("room", roomID).
			Stringer("state", room.Game.State).Msg("[HandleReady] bad state, ignoring")
		return
	}
	seat := room.SeatOf(c.ID)
	if seat == nil || seat.Ready {
		e.Rooms.Mu.Unlock()
		return
	}

	seat.Ready = true
	room.Game.ReadyCount++
	if room.Game.State == internal.StateWaiting {
		room.Game.State = internal.StateReady
	}

	readyCount := room.Game.ReadyCount
	total := room.Game.TotalClients
	canStart := readyCount == total && total >= internal.MinPlayersToStart
	e.Rooms.Mu.Unlock()
	// --- End critical section ---

	log.Info().Int("room", roomID).Int("client", c.ID).
		Msgf("[HandleReady] room=%d client %d ready (%d/%d)", roomID, c.ID, readyCount, total)

	if canStart {
		e.startGame(roomID)
	}
}
