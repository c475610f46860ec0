// Package protocol implements the fixed binary wire format shared by the
// control stream and the stroke datagrams. Every message starts with a
// 4-byte header (type, client_id, data_len); multi-byte integers are
// little-endian, strings are NUL-padded to a fixed width.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type MsgType uint8

const (
	MsgClientJoin    MsgType = 1
	MsgClientReady   MsgType = 2
	MsgGameStart     MsgType = 3
	MsgPaintData     MsgType = 4
	MsgGuessSubmit   MsgType = 5
	MsgGameEnd       MsgType = 6
	MsgClientLeave   MsgType = 7
	MsgError         MsgType = 8
	MsgPainterFinish MsgType = 9
	MsgHistoryReq    MsgType = 10
	MsgHistoryData   MsgType = 11
	MsgHistoryEnd    MsgType = 12
	MsgRoomListReq   MsgType = 13
	MsgRoomList      MsgType = 14
	MsgCreateRoom    MsgType = 15
	MsgJoinRoom      MsgType = 16
	MsgLeaveRoom     MsgType = 17
	MsgRoomCreated   MsgType = 18
	MsgRoomJoined    MsgType = 19
	MsgRoomLeft      MsgType = 20
	MsgAIGuessReq    MsgType = 21
	MsgAIGuessResult MsgType = 22
)

func (t MsgType) String() string {
	names := map[MsgType]string{
		MsgClientJoin: "CLIENT_JOIN", MsgClientReady: "CLIENT_READY",
		MsgGameStart: "GAME_START", MsgPaintData: "PAINT_DATA",
		MsgGuessSubmit: "GUESS_SUBMIT", MsgGameEnd: "GAME_END",
		MsgClientLeave: "CLIENT_LEAVE", MsgError: "ERROR",
		MsgPainterFinish: "PAINTER_FINISH", MsgHistoryReq: "HISTORY_REQ",
		MsgHistoryData: "HISTORY_DATA", MsgHistoryEnd: "HISTORY_END",
		MsgRoomListReq: "ROOM_LIST_REQ", MsgRoomList: "ROOM_LIST",
		MsgCreateRoom: "CREATE_ROOM", MsgJoinRoom: "JOIN_ROOM",
		MsgLeaveRoom: "LEAVE_ROOM", MsgRoomCreated: "ROOM_CREATED",
		MsgRoomJoined: "ROOM_JOINED", MsgRoomLeft: "ROOM_LEFT",
		MsgAIGuessReq: "AI_GUESS_REQ", MsgAIGuessResult: "AI_GUESS_RESULT",
	}
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

const (
	HeaderLen = 4

	// MaxBodyLen caps data_len on read; the largest defined body is
	// ROOM_LIST at 341 bytes.
	MaxBodyLen = 512

	MaxRoomEntries = 10

	nicknameLen = 32
	wordLen     = 32
	guessLen    = 64
	roomNameLen = 32
	timeLen     = 32

	roomInfoLen = 1 + roomNameLen + 1
)

// ErrMalformedFrame reports an undecodable message. Fatal on the control
// stream; datagrams carrying it are dropped.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

type Header struct {
	Type     MsgType
	ClientID uint8
	DataLen  uint16
}

// Typed payloads, one per message kind that carries a body.

type Join struct{ Nickname string }

type GameStart struct {
	PainterID uint8
	Word      string
	PaintTime uint32
}

type PaintData struct {
	X, Y    uint16
	Action  uint8
	R, G, B uint8
}

type Guess struct{ Guess string }

type GameEnd struct {
	CorrectWord string
	WinnerID    uint8
	GuessCount  uint8
}

type HistoryData struct {
	GameID    int32
	Word      string
	UserGuess string
	GameTime  string
}

type RoomInfo struct {
	RoomID     uint8
	Name       string
	NumPlayers uint8
}

type RoomList struct {
	NumRooms uint8
	Rooms    []RoomInfo
}

type CreateRoom struct {
	RoomName string
	Nickname string
}

type JoinRoom struct {
	RoomID   uint8
	Nickname string
}

type LeaveRoom struct{ RoomID uint8 }

type RoomCreated struct {
	RoomID     uint8
	RoomName   string
	Nickname   string
	NumPlayers uint8
}

type RoomJoined struct {
	RoomID     uint8
	RoomName   string
	Nickname   string
	NumPlayers uint8
}

type RoomLeft struct{ RoomID uint8 }

type AIGuessResult struct {
	PredictedWord string
	Score         uint8
	IsCorrect     uint8
}

// bodyLen maps each kind to its exact body size; -1 marks undefined kinds.
func bodyLen(t MsgType) int {
	switch t {
	case MsgClientJoin:
		return nicknameLen
	case MsgClientReady, MsgClientLeave, MsgError, MsgPainterFinish,
		MsgHistoryReq, MsgHistoryEnd, MsgRoomListReq, MsgAIGuessReq:
		return 0
	case MsgGameStart:
		return 1 + wordLen + 4
	case MsgPaintData:
		return 8
	case MsgGuessSubmit:
		return guessLen
	case MsgGameEnd:
		return wordLen + 2
	case MsgHistoryData:
		return 4 + wordLen + guessLen + timeLen
	case MsgRoomList:
		return 1 + MaxRoomEntries*roomInfoLen
	case MsgCreateRoom:
		return roomNameLen + nicknameLen
	case MsgJoinRoom:
		return 1 + nicknameLen
	case MsgLeaveRoom, MsgRoomLeft:
		return 1
	case MsgRoomCreated, MsgRoomJoined:
		return 1 + roomNameLen + nicknameLen + 1
	case MsgAIGuessResult:
		return wordLen + 2
	}
	return -1
}

// ReadFrame reads one framed message from a reliable stream: the 4-byte
// header then exactly data_len body bytes.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var raw [HeaderLen]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, nil, err
	}
	h := Header{
		Type:     MsgType(raw[0]),
		ClientID: raw[1],
		DataLen:  binary.LittleEndian.Uint16(raw[2:4]),
	}
	if h.DataLen > MaxBodyLen {
		return h, nil, fmt.Errorf("%w: data_len %d exceeds limit", ErrMalformedFrame, h.DataLen)
	}
	body := make([]byte, h.DataLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return h, nil, err
	}
	return h, body, nil
}

// Decode turns a header+body into its typed payload. Kinds without a body
// decode to nil. Unknown kinds and wrong body sizes are malformed.
func Decode(h Header, body []byte) (any, error) {
	want := bodyLen(h.Type)
	if want < 0 {
		return nil, fmt.Errorf("%w: unknown type %d", ErrMalformedFrame, uint8(h.Type))
	}
	if len(body) != want {
		return nil, fmt.Errorf("%w: %s body is %d bytes, want %d",
			ErrMalformedFrame, h.Type, len(body), want)
	}

	switch h.Type {
	case MsgClientJoin:
		return Join{Nickname: fixedString(body[:nicknameLen])}, nil

	case MsgGameStart:
		return GameStart{
			PainterID: body[0],
			Word:      fixedString(body[1 : 1+wordLen]),
			PaintTime: binary.LittleEndian.Uint32(body[1+wordLen:]),
		}, nil

	case MsgPaintData:
		return decodePaintBody(body), nil

	case MsgGuessSubmit:
		return Guess{Guess: fixedString(body[:guessLen])}, nil

	case MsgGameEnd:
		return GameEnd{
			CorrectWord: fixedString(body[:wordLen]),
			WinnerID:    body[wordLen],
			GuessCount:  body[wordLen+1],
		}, nil

	case MsgHistoryData:
		off := 0
		gameID := int32(binary.LittleEndian.Uint32(body[off : off+4]))
		off += 4
		word := fixedString(body[off : off+wordLen])
		off += wordLen
		guess := fixedString(body[off : off+guessLen])
		off += guessLen
		return HistoryData{
			GameID:    gameID,
			Word:      word,
			UserGuess: guess,
			GameTime:  fixedString(body[off : off+timeLen]),
		}, nil

	case MsgRoomList:
		num := body[0]
		if num > MaxRoomEntries {
			return nil, fmt.Errorf("%w: num_rooms %d", ErrMalformedFrame, num)
		}
		rooms := make([]RoomInfo, 0, num)
		for i := 0; i < int(num); i++ {
			off := 1 + i*roomInfoLen
			rooms = append(rooms, RoomInfo{
				RoomID:     body[off],
				Name:       fixedString(body[off+1 : off+1+roomNameLen]),
				NumPlayers: body[off+1+roomNameLen],
			})
		}
		return RoomList{NumRooms: num, Rooms: rooms}, nil

	case MsgCreateRoom:
		return CreateRoom{
			RoomName: fixedString(body[:roomNameLen]),
			Nickname: fixedString(body[roomNameLen:]),
		}, nil

	case MsgJoinRoom:
		return JoinRoom{
			RoomID:   body[0],
			Nickname: fixedString(body[1:]),
		}, nil

	case MsgLeaveRoom:
		return LeaveRoom{RoomID: body[0]}, nil

	case MsgRoomCreated:
		return RoomCreated{
			RoomID:     body[0],
			RoomName:   fixedString(body[1 : 1+roomNameLen]),
			Nickname:   fixedString(body[1+roomNameLen : 1+roomNameLen+nicknameLen]),
			NumPlayers: body[1+roomNameLen+nicknameLen],
		}, nil

	case MsgRoomJoined:
		return RoomJoined{
			RoomID:     body[0],
			RoomName:   fixedString(body[1 : 1+roomNameLen]),
			Nickname:   fixedString(body[1+roomNameLen : 1+roomNameLen+nicknameLen]),
			NumPlayers: body[1+roomNameLen+nicknameLen],
		}, nil

	case MsgRoomLeft:
		return RoomLeft{RoomID: body[0]}, nil

	case MsgAIGuessResult:
		return AIGuessResult{
			PredictedWord: fixedString(body[:wordLen]),
			Score:         body[wordLen],
			IsCorrect:     body[wordLen+1],
		}, nil
	}

	// Zero-body kinds.
	return nil, nil
}

// DecodeDatagram parses a raw PAINT_DATA datagram (header included).
func DecodeDatagram(buf []byte) (Header, PaintData, error) {
	if len(buf) != HeaderLen+8 {
		return Header{}, PaintData{}, fmt.Errorf("%w: datagram is %d bytes", ErrMalformedFrame, len(buf))
	}
	h := Header{
		Type:     MsgType(buf[0]),
		ClientID: buf[1],
		DataLen:  binary.LittleEndian.Uint16(buf[2:4]),
	}
	if h.Type != MsgPaintData || h.DataLen != 8 {
		return h, PaintData{}, fmt.Errorf("%w: not a paint datagram", ErrMalformedFrame)
	}
	return h, decodePaintBody(buf[HeaderLen:]), nil
}

func decodePaintBody(body []byte) PaintData {
	return PaintData{
		X:      binary.LittleEndian.Uint16(body[0:2]),
		Y:      binary.LittleEndian.Uint16(body[2:4]),
		Action: body[4],
		R:      body[5],
		G:      body[6],
		B:      body[7],
	}
}

// Encoders, one per kind. Each returns a complete frame ready to write.

func encodeHeader(buf []byte, t MsgType, clientID uint8, dataLen int) {
	buf[0] = byte(t)
	buf[1] = clientID
	binary.LittleEndian.PutUint16(buf[2:4], uint16(dataLen))
}

func newFrame(t MsgType, clientID uint8) []byte {
	n := bodyLen(t)
	buf := make([]byte, HeaderLen+n)
	encodeHeader(buf, t, clientID, n)
	return buf
}

// putFixed copies s into a NUL-padded field, truncating one short of the
// width so the field always terminates.
func putFixed(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func fixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func EncodeJoin(clientID uint8, nickname string) []byte {
	buf := newFrame(MsgClientJoin, clientID)
	putFixed(buf[HeaderLen:], nickname)
	return buf
}

func EncodeReady(clientID uint8) []byte { return newFrame(MsgClientReady, clientID) }

func EncodeGameStart(clientID uint8, m GameStart) []byte {
	buf := newFrame(MsgGameStart, clientID)
	body := buf[HeaderLen:]
	body[0] = m.PainterID
	putFixed(body[1:1+wordLen], m.Word)
	binary.LittleEndian.PutUint32(body[1+wordLen:], m.PaintTime)
	return buf
}

func EncodePaintData(clientID uint8, m PaintData) []byte {
	buf := newFrame(MsgPaintData, clientID)
	body := buf[HeaderLen:]
	binary.LittleEndian.PutUint16(body[0:2], m.X)
	binary.LittleEndian.PutUint16(body[2:4], m.Y)
	body[4] = m.Action
	body[5] = m.R
	body[6] = m.G
	body[7] = m.B
	return buf
}

func EncodeGuess(clientID uint8, guess string) []byte {
	buf := newFrame(MsgGuessSubmit, clientID)
	putFixed(buf[HeaderLen:], guess)
	return buf
}

func EncodeGameEnd(clientID uint8, m GameEnd) []byte {
	buf := newFrame(MsgGameEnd, clientID)
	body := buf[HeaderLen:]
	putFixed(body[:wordLen], m.CorrectWord)
	body[wordLen] = m.WinnerID
	body[wordLen+1] = m.GuessCount
	return buf
}

func EncodeClientLeave(clientID uint8) []byte { return newFrame(MsgClientLeave, clientID) }

func EncodeError(clientID uint8) []byte { return newFrame(MsgError, clientID) }

func EncodePainterFinish(clientID uint8) []byte { return newFrame(MsgPainterFinish, clientID) }

func EncodeHistoryReq(clientID uint8) []byte { return newFrame(MsgHistoryReq, clientID) }

func EncodeHistoryData(clientID uint8, m HistoryData) []byte {
	buf := newFrame(MsgHistoryData, clientID)
	body := buf[HeaderLen:]
	binary.LittleEndian.PutUint32(body[0:4], uint32(m.GameID))
	putFixed(body[4:4+wordLen], m.Word)
	putFixed(body[4+wordLen:4+wordLen+guessLen], m.UserGuess)
	putFixed(body[4+wordLen+guessLen:], m.GameTime)
	return buf
}

func EncodeHistoryEnd(clientID uint8) []byte { return newFrame(MsgHistoryEnd, clientID) }

func EncodeRoomListReq(clientID uint8) []byte { return newFrame(MsgRoomListReq, clientID) }

// EncodeRoomList always emits the full fixed-size table; num_rooms bounds
// the valid lead entries, the rest stay zeroed.
func EncodeRoomList(clientID uint8, rooms []RoomInfo) []byte {
	if len(rooms) > MaxRoomEntries {
		rooms = rooms[:MaxRoomEntries]
	}
	buf := newFrame(MsgRoomList, clientID)
	body := buf[HeaderLen:]
	body[0] = uint8(len(rooms))
	for i, ri := range rooms {
		off := 1 + i*roomInfoLen
		body[off] = ri.RoomID
		putFixed(body[off+1:off+1+roomNameLen], ri.Name)
		body[off+1+roomNameLen] = ri.NumPlayers
	}
	return buf
}

func EncodeCreateRoom(clientID uint8, m CreateRoom) []byte {
	buf := newFrame(MsgCreateRoom, clientID)
	body := buf[HeaderLen:]
	putFixed(body[:roomNameLen], m.RoomName)
	putFixed(body[roomNameLen:], m.Nickname)
	return buf
}

func EncodeJoinRoom(clientID uint8, m JoinRoom) []byte {
	buf := newFrame(MsgJoinRoom, clientID)
	body := buf[HeaderLen:]
	body[0] = m.RoomID
	putFixed(body[1:], m.Nickname)
	return buf
}

func EncodeLeaveRoom(clientID uint8, roomID uint8) []byte {
	buf := newFrame(MsgLeaveRoom, clientID)
	buf[HeaderLen] = roomID
	return buf
}

func EncodeRoomCreated(clientID uint8, m RoomCreated) []byte {
	return encodeRoomAck(MsgRoomCreated, clientID, m.RoomID, m.RoomName, m.Nickname, m.NumPlayers)
}

func EncodeRoomJoined(clientID uint8, m RoomJoined) []byte {
	return encodeRoomAck(MsgRoomJoined, clientID, m.RoomID, m.RoomName, m.Nickname, m.NumPlayers)
}

func encodeRoomAck(t MsgType, clientID, roomID uint8, name, nick string, numPlayers uint8) []byte {
	buf := newFrame(t, clientID)
	body := buf[HeaderLen:]
	body[0] = roomID
	putFixed(body[1:1+roomNameLen], name)
	putFixed(body[1+roomNameLen:1+roomNameLen+nicknameLen], nick)
	body[1+roomNameLen+nicknameLen] = numPlayers
	return buf
}

func EncodeRoomLeft(clientID uint8, roomID uint8) []byte {
	buf := newFrame(MsgRoomLeft, clientID)
	buf[HeaderLen] = roomID
	return buf
}

func EncodeAIGuessResult(clientID uint8, m AIGuessResult) []byte {
	buf := newFrame(MsgAIGuessResult, clientID)
	body := buf[HeaderLen:]
	putFixed(body[:wordLen], m.PredictedWord)
	body[wordLen] = m.Score
	body[wordLen+1] = m.IsCorrect
	return buf
}
