package game

import (
	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/protocol"
)

// =============================================================================
// ROOM MANAGEMENT
// =============================================================================

// HandleCreateRoom allocates the lowest free room slot and seats the
// creator. With every slot taken the requester gets a single ERROR frame
// and no room is mutated; the nickname is recorded either way.
func (e *Engine) HandleCreateRoom(c *internal.Client, m protocol.CreateRoom) {
	// --- Critical section: clients then rooms ---
	e.Clients.Mu.Lock()
	c.Nickname = m.Nickname

	e.Rooms.Mu.Lock()
	free := false
	for i := 0; i < internal.MaxRooms; i++ {
		if !e.Rooms.Get(i).InUse() {
			free = true
			break
		}
	}

	roomID := -1
	if free {
		// A client holds at most one seat; creating from inside a room
		// implicitly leaves the old one. Only once a slot is known to be
		// free, so a refused create leaves every room untouched.
		if c.RoomID != -1 {
			e.unseatLocked(c, c.RoomID)
			c.RoomID = -1
		}
		for i := 0; i < internal.MaxRooms; i++ {
			room := e.Rooms.Get(i)
			if room.InUse() {
				continue
			}
			roomID = i
			room.Name = m.RoomName
			room.ResetRound()
			room.Seats[room.FreeSeatIndex()].ClientID = c.ID
			room.Game.TotalClients = 1
			c.RoomID = i
			break
		}
	}
	e.Rooms.Mu.Unlock()
	e.Clients.Mu.Unlock()
	// --- End critical section ---

	if roomID == -1 {
		log.Warn().Int("client", c.ID).Msg("[HandleCreateRoom] no free room slot")
		e.sendToClient(c.ID, protocol.EncodeError(uint8(c.ID)))
		return
	}

	log.Info().Int("client", c.ID).Int("room", roomID).Str("name", m.RoomName).
		Msg("[HandleCreateRoom] room created")

	e.sendToClient(c.ID, protocol.EncodeRoomCreated(0, protocol.RoomCreated{
		RoomID:     uint8(roomID),
		RoomName:   m.RoomName,
		Nickname:   m.Nickname,
		NumPlayers: 1,
	}))
}

// HandleJoinRoom seats the client in an existing room. Unknown, unused,
// and full rooms answer with an ERROR frame.
func (e *Engine) HandleJoinRoom(c *internal.Client, m protocol.JoinRoom) {
	roomID := int(m.RoomID)

	// --- Critical section: clients then rooms ---
	e.Clients.Mu.Lock()
	c.Nickname = m.Nickname

	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	joined := false
	numPlayers := 0
	roomName := ""
	if room != nil && room.InUse() && room.SeatOf(c.ID) == nil &&
		room.ClientCount() < internal.MaxClients {
		// Target checks out; drop any old seat before taking the new one
		// so a refused join leaves every room untouched.
		if c.RoomID != -1 {
			e.unseatLocked(c, c.RoomID)
			c.RoomID = -1
		}
		if idx := room.FreeSeatIndex(); idx != -1 {
			room.Seats[idx] = internal.Seat{ClientID: c.ID}
			room.Game.TotalClients++
			c.RoomID = roomID
			joined = true
			numPlayers = room.ClientCount()
			roomName = room.Name
		}
	}
	e.Rooms.Mu.Unlock()
	e.Clients.Mu.Unlock()
	// --- End critical section ---

	if !joined {
		log.Warn().Int("client", c.ID).Int("room", roomID).Msg("[HandleJoinRoom] join refused")
		e.sendToClient(c.ID, protocol.EncodeError(uint8(c.ID)))
		return
	}

	log.Info().Int("client", c.ID).Int("room", roomID).Int("players", numPlayers).
		Msg("[HandleJoinRoom] client joined room")

	e.sendToClient(c.ID, protocol.EncodeRoomJoined(0, protocol.RoomJoined{
		RoomID:     uint8(roomID),
		RoomName:   roomName,
		Nickname:   m.Nickname,
		NumPlayers: uint8(numPlayers),
	}))
}

// HandleLeaveRoom unseats the client. Idempotent on stale room ids: the
// ROOM_LEFT ack goes out whether or not a seat was actually freed.
func (e *Engine) HandleLeaveRoom(c *internal.Client, m protocol.LeaveRoom) {
	roomID := int(m.RoomID)

	e.Clients.Mu.Lock()
	e.Rooms.Mu.Lock()
	e.unseatLocked(c, roomID)
	// A stale id frees nothing and must not clobber real membership.
	if c.RoomID == roomID {
		c.RoomID = -1
	}
	e.Rooms.Mu.Unlock()
	e.Clients.Mu.Unlock()

	log.Info().Int("client", c.ID).Int("room", roomID).Msg("[HandleLeaveRoom] client left room")
	e.sendToClient(c.ID, protocol.EncodeRoomLeft(0, uint8(roomID)))
}

// unseatLocked frees the client's seat in roomID, adjusting ready and
// total counts and releasing the room when it empties. Both table locks
// must be held.
func (e *Engine) unseatLocked(c *internal.Client, roomID int) {
	room := e.Rooms.Get(roomID)
	if room == nil {
		return
	}
	seat := room.SeatOf(c.ID)
	if seat == nil {
		return
	}
	if seat.Ready {
		room.Game.ReadyCount--
	}
	*seat = internal.Seat{ClientID: -1}
	room.Game.TotalClients--
	if room.ClientCount() == 0 {
		log.Info().Int("room", roomID).Msg("[unseatLocked] room empty, releasing slot")
		room.Release()
	}
}

// Disconnect tears down a client after its stream closes: free the seat,
// free the slot. A painter dropping mid-round leaves the room in its
// phase; the deadline timers finish the round.
func (e *Engine) Disconnect(c *internal.Client) {
	e.Clients.Mu.Lock()
	roomID := c.RoomID

	e.Rooms.Mu.Lock()
	if roomID != -1 {
		e.unseatLocked(c, roomID)
	}
	e.Rooms.Mu.Unlock()

	c.RoomID = -1
	e.Clients.Clients[c.ID] = nil
	e.Clients.Mu.Unlock()

	log.Info().Int("client", c.ID).Int("room", roomID).Msg("[Disconnect] client removed")
}

// HandleRoomListReq answers with the fixed-size room table snapshot.
func (e *Engine) HandleRoomListReq(c *internal.Client) {
	e.Rooms.Mu.Lock()
	infos := make([]protocol.RoomInfo, 0, internal.MaxRooms)
	for i := 0; i < internal.MaxRooms; i++ {
		room := e.Rooms.Get(i)
		if !room.InUse() {
			continue
		}
		infos = append(infos, protocol.RoomInfo{
			RoomID:     uint8(room.ID),
			Name:       room.Name,
			NumPlayers: uint8(room.ClientCount()),
		})
	}
	e.Rooms.Mu.Unlock()

	e.sendToClient(c.ID, protocol.EncodeRoomList(0, infos))
}

// RoomSnapshot is the status-endpoint view of one live room.
type RoomSnapshot struct {
	RoomID     int    `json:"room_id"`
	Name       string `json:"name"`
	NumPlayers int    `json:"num_players"`
	State      string `json:"state"`
}

// Snapshot lists live rooms for the HTTP status surface.
func (e *Engine) Snapshot() []RoomSnapshot {
	e.Rooms.Mu.Lock()
	defer e.Rooms.Mu.Unlock()

	snaps := make([]RoomSnapshot, 0, internal.MaxRooms)
	for i := 0; i < internal.MaxRooms; i++ {
		room := e.Rooms.Get(i)
		if !room.InUse() {
			continue
		}
		snaps = append(snaps, RoomSnapshot{
			RoomID:     room.ID,
			Name:       room.Name,
			NumPlayers: room.ClientCount(),
			State:      room.Game.State.String(),
		})
	}
	return snaps
}
