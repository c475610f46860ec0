package game

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scythe504/drawguess-server/internal"
	"github.com/scythe504/drawguess-server/internal/ai"
	"github.com/scythe504/drawguess-server/internal/protocol"
	"github.com/scythe504/drawguess-server/internal/store"
)

// fakeConn records everything written to it; reads report EOF.
type fakeConn struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (f *fakeConn) Read(b []byte) (int, error) { return 0, net.ErrClosed }

func (f *fakeConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(b)
}

func (f *fakeConn) Close() error                       { return nil }
func (f *fakeConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (f *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

type recordedFrame struct {
	header  protocol.Header
	payload any
}

// frames decodes every frame written so far.
func (f *fakeConn) frames(t *testing.T) []recordedFrame {
	t.Helper()
	f.mu.Lock()
	raw := append([]byte(nil), f.buf.Bytes()...)
	f.mu.Unlock()

	var out []recordedFrame
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		h, body, err := protocol.ReadFrame(r)
		require.NoError(t, err)
		payload, err := protocol.Decode(h, body)
		require.NoError(t, err)
		out = append(out, recordedFrame{header: h, payload: payload})
	}
	return out
}

// lastOfType returns the most recent frame of the given kind, or nil.
func (f *fakeConn) lastOfType(t *testing.T, mt protocol.MsgType) *recordedFrame {
	t.Helper()
	frames := f.frames(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].header.Type == mt {
			return &frames[i]
		}
	}
	return nil
}

func (f *fakeConn) typesSeen(t *testing.T) []protocol.MsgType {
	t.Helper()
	var types []protocol.MsgType
	for _, fr := range f.frames(t) {
		types = append(types, fr.header.Type)
	}
	return types
}

// fakeRepo is a deterministic repository: PickWord always hands out the
// first dictionary entry.
type fakeRepo struct {
	mu      sync.Mutex
	words   []string
	history []store.HistoryRecord
	drawing []store.DrawingRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{words: append([]string(nil), store.SeedWords...)}
}

func (r *fakeRepo) PickWord(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.words) == 0 {
		return store.DefaultWord, nil
	}
	return r.words[0], nil
}

func (r *fakeRepo) ListCandidates(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.words...), nil
}

func (r *fakeRepo) AppendHistory(ctx context.Context, rec store.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, rec)
	return nil
}

func (r *fakeRepo) ListHistory(ctx context.Context, nickname string, limit int) ([]store.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recs []store.HistoryRecord
	for i := len(r.history) - 1; i >= 0 && len(recs) < limit; i-- {
		if r.history[i].Nickname == nickname {
			recs = append(recs, r.history[i])
		}
	}
	return recs, nil
}

func (r *fakeRepo) AppendDrawing(ctx context.Context, rec store.DrawingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawing = append(r.drawing, rec)
	return nil
}

func (r *fakeRepo) historySnapshot() []store.HistoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.HistoryRecord(nil), r.history...)
}

// fakeScorer answers with a canned result or error.
type fakeScorer struct {
	mu     sync.Mutex
	result ai.Result
	err    error
	reqs   []ai.Request
}

func (s *fakeScorer) Guess(ctx context.Context, req ai.Request) (ai.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.result, s.err
}

func (s *fakeScorer) requests() []ai.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Request(nil), s.reqs...)
}

// fakeSender records forwarded datagrams per destination address.
type fakeSender struct {
	mu    sync.Mutex
	sends []sentDatagram
}

type sentDatagram struct {
	addr *net.UDPAddr
	data []byte
}

func (s *fakeSender) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, sentDatagram{addr: addr, data: append([]byte(nil), b...)})
	return len(b), nil
}

func (s *fakeSender) sent() []sentDatagram {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentDatagram(nil), s.sends...)
}

// testClock drives the engine's notion of time without sleeping.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testRig struct {
	engine *Engine
	repo   *fakeRepo
	scorer *fakeScorer
	sender *fakeSender
	clock  *testClock
}

func newTestRig() *testRig {
	repo := newFakeRepo()
	scorer := &fakeScorer{result: ai.Result{PredictedWord: "apple", Score: 80, IsCorrect: 1}}
	sender := &fakeSender{}
	clock := newTestClock()

	e := NewEngine(repo, scorer)
	e.SetDatagramSender(sender)
	e.now = clock.Now

	return &testRig{engine: e, repo: repo, scorer: scorer, sender: sender, clock: clock}
}

// connect adds a client backed by a recording conn.
func (rig *testRig) connect(t *testing.T) (*internal.Client, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	c := rig.engine.Clients.Add(fc)
	require.NotNil(t, c, "client table full")
	return c, fc
}

// setupRound seats n clients in room 0 and readies them all, returning
// clients, conns, and the painter index announced by GAME_START.
func (rig *testRig) setupRound(t *testing.T, n int) ([]*internal.Client, []*fakeConn, int) {
	t.Helper()
	require.GreaterOrEqual(t, n, 2)

	clients := make([]*internal.Client, n)
	conns := make([]*fakeConn, n)

	clients[0], conns[0] = rig.connect(t)
	rig.engine.HandleCreateRoom(clients[0], protocol.CreateRoom{RoomName: "den", Nickname: "alice"})

	nicks := []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi", "ivan", "judy"}
	for i := 1; i < n; i++ {
		clients[i], conns[i] = rig.connect(t)
		rig.engine.HandleJoinRoom(clients[i], protocol.JoinRoom{RoomID: 0, Nickname: nicks[i]})
	}
	for i := 0; i < n; i++ {
		rig.engine.HandleReady(clients[i])
	}

	start := conns[0].lastOfType(t, protocol.MsgGameStart)
	require.NotNil(t, start, "expected GAME_START after everyone readied")
	painterID := int(start.payload.(protocol.GameStart).PainterID)
	return clients, conns, painterID
}

func historyRec(gameID int32, word, nickname string) store.HistoryRecord {
	return store.HistoryRecord{
		GameID:   gameID,
		Word:     word,
		Nickname: nickname,
		Guess:    "(No Guess)",
		GameTime: "2025-06-01 12:00:00",
	}
}

// guesserIndexes returns the client indexes that are not the painter.
func guesserIndexes(clients []*internal.Client, painterID int) []int {
	var out []int
	for i, c := range clients {
		if c.ID != painterID {
			out = append(out, i)
		}
	}
	return out
}
