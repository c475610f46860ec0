package game

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/ai"
	"github.com/scythe504/drawguess-server/internal/protocol"
	"github.com/scythe504/drawguess-server/internal/store"
)

// =============================================================================
// GAME FLOW - ROUND TRANSITIONS
// =============================================================================

// PaintTimeSeconds is what GAME_START advertises to clients; it matches
// PaintDuration.
const PaintTimeSeconds = 60

// startGame runs the READY -> PAINTING transition: pick a painter
// uniformly from the seated members, pick a word, reset the stroke buffer
// and parked AI result, and tell every member who paints.
func (e *Engine) startGame(roomID int) {
	// The word comes from the repository before the lock; the adapter may
	// be a network round trip.
	word, err := e.repo.PickWord(e.ctx)
	if err != nil {
		log.Warn().Err(err).Int("room", roomID).Msg("[startGame] word pick failed, using default")
		word = store.DefaultWord
	}

	// --- Critical section: room state ---
	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() {
		e.Rooms.Mu.Unlock()
		return
	}
	game := &room.Game

	// Revalidate the ready gate; members may have left since the caller
	// observed it.
	if game.State != internal.StateReady ||
		game.ReadyCount != game.TotalClients ||
		game.TotalClients < internal.MinPlayersToStart {
		log.Debug().Int("room", roomID).Stringer("state", game.State).
			Msgf("[startGame] room=%d cannot start: ready=%d total=%d",
				roomID, game.ReadyCount, game.TotalClients)
		e.Rooms.Mu.Unlock()
		return
	}

	members := room.MemberIDs()
	painterID := members[rand.Intn(len(members))]
	room.SeatOf(painterID).IsPainter = true

	game.PainterID = painterID
	game.Word = word
	game.State = internal.StatePainting
	game.PaintStart = e.now()
	game.GameID = int32(e.now().Unix()) + rand.Int31n(1<<16)

	room.History = room.History[:0]
	room.AI = internal.AIResult{}

	gameID := game.GameID
	e.Rooms.Mu.Unlock()
	// --- End critical section ---

	log.Info().Int("room", roomID).Int("painter", painterID).Str("word", word).
		Int32("game_id", gameID).Msg("[startGame] game started")

	// Each member gets its own client_id in the header so it can learn
	// whether it is the painter.
	for _, id := range members {
		e.sendToClient(id, protocol.EncodeGameStart(uint8(id), protocol.GameStart{
			PainterID: uint8(painterID),
			Word:      word,
			PaintTime: PaintTimeSeconds,
		}))
	}
}

// BeginGuessing runs the PAINTING -> GUESSING transition, fired by the
// painter's PAINTER_FINISH or by the paint deadline. Broadcasts
// PAINTER_FINISH and schedules the one AI call of the round.
func (e *Engine) BeginGuessing(roomID int) {
	// --- Critical section: room state + AI payload snapshot ---
	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() || room.Game.State != internal.StatePainting {
		e.Rooms.Mu.Unlock()
		return
	}

	room.Game.State = internal.StateGuessing
	room.Game.GuessStart = e.now()

	gameID := room.Game.GameID
	word := room.Game.Word
	members := room.MemberIDs()

	// Serialize the drawing under the lock; the socket I/O happens after.
	points := make([]ai.Point, len(room.History))
	for i, p := range room.History {
		points[i] = ai.Point{X: int(p.X), Y: int(p.Y), Action: int(p.Action)}
	}
	e.Rooms.Mu.Unlock()
	// --- End critical section ---

	log.Info().Int("room", roomID).Int("points", len(points)).
		Msg("[BeginGuessing] entering guessing phase")

	e.broadcastToMembers(members, protocol.EncodePainterFinish(0))

	go e.runAIScoring(roomID, gameID, word, points)
}

// runAIScoring performs the round's single AI call and parks the result
// in the room. A reply for a round that already ended is dropped.
func (e *Engine) runAIScoring(roomID int, gameID int32, word string, points []ai.Point) {
	ctx, cancel := context.WithTimeout(e.ctx, 20*time.Second)
	defer cancel()

	candidates, err := e.repo.ListCandidates(ctx)
	if err != nil {
		log.Warn().Err(err).Int("room", roomID).Msg("[runAIScoring] candidate list failed")
	}

	res, err := e.scorer.Guess(ctx, ai.Request{
		Target:     word,
		Candidates: candidates,
		Drawing:    points,
	})
	if err != nil {
		log.Warn().Err(err).Int("room", roomID).Msg("[runAIScoring] no AI result this round")
		return
	}

	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || room.Game.GameID != gameID || room.Game.State != internal.StateGuessing {
		e.Rooms.Mu.Unlock()
		log.Debug().Int("room", roomID).Int32("game_id", gameID).
			Msg("[runAIScoring] round over, dropping late AI result")
		return
	}
	room.AI = internal.AIResult{
		PredictedWord: res.PredictedWord,
		Score:         uint8(res.Score),
		IsCorrect:     uint8(res.IsCorrect),
		Ready:         true,
	}
	e.Rooms.Mu.Unlock()

	log.Info().Int("room", roomID).Str("predicted", res.PredictedWord).Int("score", res.Score).
		Msg("[runAIScoring] result parked until round end")
}

// EndGame runs GUESSING -> FINISHED -> WAITING: decide the winner, emit
// GAME_END, then the parked AI result if one arrived, persist per-member
// history, and reset the room for the next round.
func (e *Engine) EndGame(roomID int) {
	// --- Critical section: winner decision + snapshots + reset ---
	e.Rooms.Mu.Lock()
	room := e.Rooms.Get(roomID)
	if room == nil || !room.InUse() || room.Game.State != internal.StateGuessing {
		e.Rooms.Mu.Unlock()
		return
	}
	room.Game.State = internal.StateFinished

	word := room.Game.Word
	gameID := room.Game.GameID
	painterID := room.Game.PainterID

	// Winner: lowest seat whose guess matches the word byte-for-byte.
	winnerID := uint8(internal.NoWinner)
	guessCount := uint8(0)
	outcomes := make([]memberOutcome, 0, internal.MaxClients)
	for i := range room.Seats {
		seat := &room.Seats[i]
		if seat.ClientID == -1 {
			continue
		}
		if seat.HasGuessed {
			guessCount++
			if winnerID == internal.NoWinner && seat.Guess == word {
				winnerID = uint8(seat.ClientID)
			}
		}
		outcomes = append(outcomes, memberOutcome{
			clientID: seat.ClientID,
			guessed:  seat.HasGuessed,
			guess:    seat.Guess,
		})
	}

	aiResult := room.AI
	members := room.MemberIDs()

	// FINISHED -> WAITING happens immediately; membership survives, the
	// round state does not. This also consumes the parked AI result.
	room.ResetRound()
	e.Rooms.Mu.Unlock()
	// --- End critical section ---

	if winnerID != internal.NoWinner {
		log.Info().Int("room", roomID).Str("word", word).Uint8("winner", winnerID).
			Msg("[EndGame] game over, we have a winner")
	} else {
		log.Info().Int("room", roomID).Str("word", word).
			Msg("[EndGame] game over, nobody guessed it")
	}

	e.broadcastToMembers(members, protocol.EncodeGameEnd(0, protocol.GameEnd{
		CorrectWord: word,
		WinnerID:    winnerID,
		GuessCount:  guessCount,
	}))

	// The parked AI result is only ever released after GAME_END.
	if aiResult.Ready {
		e.broadcastToMembers(members, protocol.EncodeAIGuessResult(0, protocol.AIGuessResult{
			PredictedWord: aiResult.PredictedWord,
			Score:         aiResult.Score,
			IsCorrect:     aiResult.IsCorrect,
		}))
	}

	e.persistRound(gameID, word, painterID, outcomesToRecords(outcomes, painterID))
}

type memberOutcome struct {
	clientID int
	guessed  bool
	guess    string
}

type roundRecord struct {
	clientID int
	guess    string
}

func outcomesToRecords(outcomes []memberOutcome, painterID int) []roundRecord {
	recs := make([]roundRecord, 0, len(outcomes))
	for _, o := range outcomes {
		guess := "(No Guess)"
		switch {
		case o.clientID == painterID:
			guess = "(Painter)"
		case o.guessed:
			guess = o.guess
		}
		recs = append(recs, roundRecord{clientID: o.clientID, guess: guess})
	}
	return recs
}

// persistRound appends one history row per member. Failures are logged
// and never affect the round outcome.
func (e *Engine) persistRound(gameID int32, word string, painterID int, recs []roundRecord) {
	gameTime := e.now().Format("2006-01-02 15:04:05")

	for _, rec := range recs {
		c := e.Clients.Get(rec.clientID)
		if c == nil {
			continue
		}
		e.Clients.Mu.Lock()
		nickname := c.Nickname
		e.Clients.Mu.Unlock()

		ctx, cancel := context.WithTimeout(e.ctx, 3*time.Second)
		err := e.repo.AppendHistory(ctx, store.HistoryRecord{
			GameID:   gameID,
			Word:     word,
			Nickname: nickname,
			Guess:    rec.guess,
			GameTime: gameTime,
		})
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("nickname", nickname).Msg("[persistRound] history write failed")
		}
	}
}
