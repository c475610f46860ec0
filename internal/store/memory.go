package store

import (
	"context"
	"math/rand"
	"sync"
)

// Memory is the database-less repository. It keeps the same contract as
// Postgres so the server can run without DATABASE_URL and the server tests
// stay hermetic.
type Memory struct {
	mu      sync.Mutex
	words   []string
	history []HistoryRecord
	drawing []DrawingRecord
}

// NewMemory builds an in-memory store from the seed dictionary plus any
// extra words. Duplicates collapse, preserving first-seen order.
func NewMemory(extraWords []string) *Memory {
	seen := make(map[string]bool)
	var words []string
	for _, w := range append(append([]string{}, SeedWords...), extraWords...) {
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	return &Memory{words: words}
}

func (m *Memory) PickWord(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.words) == 0 {
		return DefaultWord, nil
	}
	return m.words[rand.Intn(len(m.words))], nil
}

func (m *Memory) ListCandidates(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.words...), nil
}

func (m *Memory) AppendHistory(ctx context.Context, rec HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, rec)
	return nil
}

func (m *Memory) ListHistory(ctx context.Context, nickname string, limit int) ([]HistoryRecord, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []HistoryRecord
	for i := len(m.history) - 1; i >= 0 && len(recs) < limit; i-- {
		if m.history[i].Nickname == nickname {
			recs = append(recs, m.history[i])
		}
	}
	return recs, nil
}

func (m *Memory) AppendDrawing(ctx context.Context, rec DrawingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drawing = append(m.drawing, rec)
	return nil
}

// Ping always succeeds; the memory store has nothing to lose.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// DrawingCount exposes how much telemetry landed, for tests.
func (m *Memory) DrawingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drawing)
}
