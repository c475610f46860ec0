// Package ai talks to the local drawing-scoring service: one TCP
// connection per round, a length-prefixed JSON request, a length-prefixed
// JSON reply. Best effort by contract; a failed call just means no AI
// result that round.
package ai

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnavailable = errors.New("ai: service unavailable")
	ErrTimeout     = errors.New("ai: request timed out")
	ErrMalformed   = errors.New("ai: malformed reply")
)

// maxReplyLen bounds the reply body; the service answers with a short
// JSON object, anything bigger is garbage.
const maxReplyLen = 1 << 20

// Point mirrors one stroke sample in the request payload.
type Point struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Action int `json:"action"`
}

// Request is the scoring payload: the secret word, the full candidate
// dictionary, and the recorded stroke history.
type Request struct {
	Target     string   `json:"target"`
	Candidates []string `json:"candidates"`
	Drawing    []Point  `json:"drawing"`
}

// Result is the parsed scoring reply. Score is clamped to [0, 100].
type Result struct {
	PredictedWord string `json:"predicted_word"`
	Score         int    `json:"score"`
	IsCorrect     int    `json:"is_correct"`
}

// Client issues one-shot scoring calls against a fixed endpoint.
type Client struct {
	Addr    string
	Timeout time.Duration
}

func NewClient(host string, port int) *Client {
	return &Client{
		Addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		Timeout: 15 * time.Second,
	}
}

// Guess sends one scoring request and waits for the reply. The caller must
// not hold any registry lock across this call.
func (c *Client) Guess(ctx context.Context, req Request) (Result, error) {
	callID := uuid.NewString()[:8]

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	timeout := c.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		log.Warn().Str("call", callID).Str("addr", c.Addr).Err(err).
			Msg("[ai.Guess] connect failed, is the scoring service running?")
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	log.Debug().Str("call", callID).Int("payload_bytes", len(payload)).
		Int("points", len(req.Drawing)).Msg("[ai.Guess] sending request")

	// u32 network-order length prefix, then the raw JSON body; the reply
	// comes back framed the same way.
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return Result{}, wrapIO(err)
	}
	if _, err := conn.Write(payload); err != nil {
		return Result{}, wrapIO(err)
	}

	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return Result{}, wrapIO(err)
	}
	replyLen := binary.BigEndian.Uint32(lenBuf[:])
	if replyLen == 0 || replyLen > maxReplyLen {
		return Result{}, fmt.Errorf("%w: reply length %d", ErrMalformed, replyLen)
	}

	reply := make([]byte, replyLen)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return Result{}, wrapIO(err)
	}

	var res Result
	if err := json.Unmarshal(reply, &res); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if res.PredictedWord == "" {
		res.PredictedWord = "Unknown"
	}
	if res.Score < 0 {
		res.Score = 0
	} else if res.Score > 100 {
		res.Score = 100
	}

	log.Info().Str("call", callID).Str("predicted", res.PredictedWord).
		Int("score", res.Score).Int("is_correct", res.IsCorrect).
		Msg("[ai.Guess] result received")
	return res, nil
}

func wrapIO(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
