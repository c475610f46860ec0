package game

import (
	"net"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/protocol"
	"github.com/scythe504/drawguess-server/internal/store"
)

// =============================================================================
// STROKE DISPATCH (UDP)
// =============================================================================

// HandleDatagram processes one raw PAINT_DATA datagram: latch the sender's
// return address, authorize against the room's painter, record the stroke
// for AI scoring, queue telemetry, and forward the datagram verbatim to
// every other member. Undecodable or unauthorized datagrams are dropped.
func (e *Engine) HandleDatagram(raw []byte, src *net.UDPAddr) {
	h, pd, err := protocol.DecodeDatagram(raw)
	if err != nil {
		log.Debug().Err(err).Msg("[HandleDatagram] dropping malformed datagram")
		return
	}
	if pd.Action > internal.ActionClear {
		log.Debug().Uint8("action", pd.Action).Msg("[HandleDatagram] dropping unknown action")
		return
	}

	cid := int(h.ClientID)

	// --- Critical section: clients ---
	e.Clients.Mu.Lock()
	if cid >= internal.MaxClients || e.Clients.Clients[cid] == nil {
		e.Clients.Mu.Unlock()
		return
	}
	c := e.Clients.Clients[cid]
	// Every datagram re-latches the return address; the registration
	// beacon exists purely to get the first one in before strokes flow.
	c.UDPAddr = src
	roomID := c.RoomID
	e.Clients.Mu.Unlock()
	// --- End critical section ---

	if pd.Action == internal.ActionRegister || roomID == -1 {
		return
	}

	// --- Critical section: rooms ---
	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() {
		e.Rooms.Mu.Unlock()
		return
	}
	game := &room.Game

	// Only the painter's strokes travel, and only during PAINTING; the
	// clear action alone is let through afterwards so the canvas can be
	// wiped while guessers stare at it.
	if cid != game.PainterID ||
		(game.State != internal.StatePainting && pd.Action != internal.ActionClear) {
		e.Rooms.Mu.Unlock()
		return
	}

	if game.State == internal.StatePainting {
		// The AI buffer is bounded; overflow strokes still reach peers.
		if len(room.History) < internal.MaxDrawingPoints {
			room.History = append(room.History, internal.DrawingPoint{
				X: pd.X, Y: pd.Y, Action: pd.Action,
			})
		}
		e.queueTelemetry(store.DrawingRecord{
			GameID: game.GameID,
			X:      pd.X, Y: pd.Y,
			Action: pd.Action,
			R:      pd.R, G: pd.G, B: pd.B,
			Timestamp: e.now().Unix(),
		})
	}

	peers := make([]int, 0, internal.MaxClients)
	for _, id := range room.MemberIDs() {
		if id != cid {
			peers = append(peers, id)
		}
	}
	e.Rooms.Mu.Unlock()
	// --- End critical section ---

	e.forwardDatagram(raw, peers)
}

// forwardDatagram replicates a stroke to every peer with a known return
// address. Best effort: UDP loss and peers without a latched address are
// both fine.
func (e *Engine) forwardDatagram(raw []byte, peers []int) {
	if e.paints == nil {
		return
	}
	for _, id := range peers {
		peer := e.Clients.Get(id)
		if peer == nil {
			continue
		}
		e.Clients.Mu.Lock()
		addr := peer.UDPAddr
		e.Clients.Mu.Unlock()
		if addr == nil {
			continue
		}
		if _, err := e.paints.WriteToUDP(raw, addr); err != nil {
			log.Debug().Int("peer", id).Err(err).Msg("[forwardDatagram] send failed")
		}
	}
}
