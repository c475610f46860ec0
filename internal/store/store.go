// Package store is the word/history repository behind the game engine.
// Two implementations share the contract: Postgres for deployments and an
// in-memory store for tests and database-less runs.
package store

import (
	"context"
	"errors"
)

// DefaultWord is handed out when the dictionary is empty.
const DefaultWord = "apple"

// HistoryLimit caps how many records a history query returns.
const HistoryLimit = 50

var ErrUnavailable = errors.New("store: unavailable")

// HistoryRecord is one per-player round outcome. Guess holds the literal
// guess, "(Painter)" for the round's painter, or "(No Guess)".
type HistoryRecord struct {
	GameID   int32
	Word     string
	Nickname string
	Guess    string
	GameTime string
}

// DrawingRecord is write-only stroke telemetry; nothing in the core reads
// it back.
type DrawingRecord struct {
	GameID    int32
	X, Y      uint16
	Action    uint8
	R, G, B   uint8
	Timestamp int64
}

// Repository is everything the engine needs from persistent state.
type Repository interface {
	// PickWord returns a uniformly random dictionary entry, or DefaultWord
	// when the dictionary is empty.
	PickWord(ctx context.Context) (string, error)

	// ListCandidates returns the whole dictionary, for AI scoring.
	ListCandidates(ctx context.Context) ([]string, error)

	// AppendHistory records one round outcome. Failures never fail the
	// round; callers log and move on.
	AppendHistory(ctx context.Context, rec HistoryRecord) error

	// ListHistory returns at most limit records for nickname, newest first.
	ListHistory(ctx context.Context, nickname string, limit int) ([]HistoryRecord, error)

	// AppendDrawing records stroke telemetry, best effort.
	AppendDrawing(ctx context.Context, rec DrawingRecord) error
}

// SeedWords is the starter dictionary, applied when a store comes up empty.
var SeedWords = []string{
	"apple", "banana", "watermelon", "car", "mouse",
	"computer", "ocean", "mountain", "sun", "moon",
	"house", "tree", "dog", "cat", "bird",
}
