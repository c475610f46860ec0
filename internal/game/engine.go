// Package game is the room and round engine: it owns the client and room
// tables, applies every control message, fans strokes out to peers, and
// drives phase deadlines.
package game

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/ai"
	"github.com/scythe504/drawguess-server/internal/store"
)

// Scorer is the AI side-call; satisfied by *ai.Client and by test fakes.
type Scorer interface {
	Guess(ctx context.Context, req ai.Request) (ai.Result, error)
}

// DatagramSender forwards stroke datagrams; satisfied by *net.UDPConn.
type DatagramSender interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Engine holds the two registries and everything the handlers need.
// Lock ordering everywhere: Clients.Mu before Rooms.Mu, and neither held
// across socket writes, AI calls, or repository queries.
type Engine struct {
	Clients *internal.ClientTable
	Rooms   *internal.RoomTable

	repo   store.Repository
	scorer Scorer
	paints DatagramSender

	// now is swappable so deadline tests do not sleep.
	now func() time.Time

	telemetry chan store.DrawingRecord

	ctx context.Context
}

func NewEngine(repo store.Repository, scorer Scorer) *Engine {
	return &Engine{
		Clients:   &internal.ClientTable{},
		Rooms:     internal.NewRoomTable(),
		repo:      repo,
		scorer:    scorer,
		now:       time.Now,
		telemetry: make(chan store.DrawingRecord, 1024),
		ctx:       context.Background(),
	}
}

// SetDatagramSender wires the bound UDP socket in; until then strokes are
// recorded but not forwarded.
func (e *Engine) SetDatagramSender(s DatagramSender) {
	e.paints = s
}

// Run starts the engine's background work: the telemetry drain and the
// phase-deadline ticker. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.ctx = ctx
	go e.drainTelemetry(ctx)
	e.RunTimer(ctx)
}

// drainTelemetry writes queued stroke telemetry off the room lock. The
// queue drops on overflow; telemetry is not worth stalling the UDP path.
func (e *Engine) drainTelemetry(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-e.telemetry:
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := e.repo.AppendDrawing(wctx, rec); err != nil {
				log.Warn().Err(err).Msg("[drainTelemetry] drawing telemetry write failed")
			}
			cancel()
		}
	}
}

func (e *Engine) queueTelemetry(rec store.DrawingRecord) {
	select {
	case e.telemetry <- rec:
	default:
		// Full queue: drop rather than block the datagram reader.
	}
}

// memberSnapshot returns the occupied seats of a room in slot order.
// Callers resolve the ids to connections afterwards, never while holding
// Rooms.Mu, so the clients-before-rooms lock order holds.
func (e *Engine) memberSnapshot(roomID int) []int {
	e.Rooms.Mu.Lock()
	defer e.Rooms.Mu.Unlock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() {
		return nil
	}
	return room.MemberIDs()
}

// sendToClient writes one frame to a client by id, best effort. Session
// teardown handles dead connections; a failed broadcast write is logged
// and skipped.
func (e *Engine) sendToClient(id int, frame []byte) {
	c := e.Clients.Get(id)
	if c == nil {
		return
	}
	if err := c.Send(frame); err != nil {
		log.Debug().Int("client", id).Err(err).Msg("[sendToClient] write failed")
	}
}

// broadcastToMembers fans a frame out to every listed client.
func (e *Engine) broadcastToMembers(ids []int, frame []byte) {
	for _, id := range ids {
		e.sendToClient(id, frame)
	}
}
