package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
)

// =============================================================================
// TIMER SERVICE
// =============================================================================

// RunTimer drives the per-room phase deadlines off a single 1 s ticker.
// Deadlines fire within one tick of expiry; nothing finer is promised.
func (e *Engine) RunTimer(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("[RunTimer] timer service stopping")
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick scans every room for an expired deadline and executes the due
// transitions. The scan snapshots due rooms under the lock, then runs the
// transitions unlocked: BeginGuessing and EndGame broadcast, and they
// revalidate state themselves, so a client-driven transition winning the
// race is harmless.
func (e *Engine) Tick() {
	now := e.now()

	var paintDue, guessDue []int

	e.Rooms.Mu.Lock()
	for i := 0; i < internal.MaxRooms; i++ {
		room := e.Rooms.Get(i)
		if !room.InUse() {
			continue
		}
		switch room.Game.State {
		case internal.StatePainting:
			if now.Sub(room.Game.PaintStart) >= internal.PaintDuration {
				paintDue = append(paintDue, i)
			}
		case internal.StateGuessing:
			if now.Sub(room.Game.GuessStart) >= internal.GuessDuration {
				guessDue = append(guessDue, i)
			}
		}
	}
	e.Rooms.Mu.Unlock()

	for _, id := range paintDue {
		log.Info().Int("room", id).Msg("[Tick] painting time over, entering guessing phase")
		e.BeginGuessing(id)
	}
	for _, id := range guessDue {
		log.Info().Int("room", id).Msg("[Tick] guessing time over, ending game")
		e.EndGame(id)
	}
}
