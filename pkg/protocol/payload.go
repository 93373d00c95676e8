package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/awalnet/awalnet/pkg/model"
)

// UsernameField is the fixed on-wire width of a username (NUL-padded).
const UsernameField = model.MaxUsernameLength

var ErrShortPayload = errors.New("protocol: short payload")

// ---- primitive helpers ----

// Int32Payload encodes a single int32 payload (user ids, hole choices,
// game ids, reason codes).
func Int32Payload(v int32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeInt32 decodes a single int32 payload.
func DecodeInt32(payload []byte) (int32, error) {
	if len(payload) < 4 {
		return 0, ErrShortPayload
	}
	return int32(binary.BigEndian.Uint32(payload)), nil
}

// BoolPayload encodes a boolean as an int32 0/1.
func BoolPayload(v bool) []byte {
	if v {
		return Int32Payload(1)
	}
	return Int32Payload(0)
}

// DecodeBool decodes an int32 0/1 payload.
func DecodeBool(payload []byte) (bool, error) {
	v, err := DecodeInt32(payload)
	return v != 0, err
}

func putUsername(buf []byte, name string) {
	copy(buf[:UsernameField], name)
}

func getUsername(buf []byte) string {
	if i := bytes.IndexByte(buf[:UsernameField], 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf[:UsernameField])
}

// ---- CONNECT ----

// ConnectPayload encodes the handshake username in a fixed-width
// NUL-terminated field.
func ConnectPayload(username string) []byte {
	buf := make([]byte, UsernameField)
	putUsername(buf, username)
	return buf
}

// DecodeConnect decodes the handshake username.
func DecodeConnect(payload []byte) (string, error) {
	if len(payload) < UsernameField {
		return "", ErrShortPayload
	}
	return getUsername(payload), nil
}

// ---- profiles ----

// MarshalProfile serializes a profile in fixed field order:
// username(32) | id(4) | bioLen(4) | bio | totalScore(4) | totalGames(4) | totalWins(4).
func MarshalProfile(u model.User) []byte {
	buf := make([]byte, UsernameField+4+4+len(u.Bio)+12)
	putUsername(buf, u.Username)
	off := UsernameField
	binary.BigEndian.PutUint32(buf[off:], uint32(u.ID))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(len(u.Bio))) //nolint:gosec // bio bounded by model.MaxBioLength
	off += 4
	copy(buf[off:], u.Bio)
	off += len(u.Bio)
	binary.BigEndian.PutUint32(buf[off:], uint32(u.TotalScore))
	binary.BigEndian.PutUint32(buf[off+4:], uint32(u.TotalGames))
	binary.BigEndian.PutUint32(buf[off+8:], uint32(u.TotalWins))
	return buf
}

// UnmarshalProfile parses a serialized profile.
func UnmarshalProfile(payload []byte) (model.User, error) {
	if len(payload) < UsernameField+8 {
		return model.User{}, ErrShortPayload
	}
	var u model.User
	u.Username = getUsername(payload)
	off := UsernameField
	u.ID = int32(binary.BigEndian.Uint32(payload[off:]))
	off += 4
	bioLen := int(binary.BigEndian.Uint32(payload[off:]))
	off += 4
	if bioLen < 0 || bioLen > model.MaxBioLength || len(payload) < off+bioLen+12 {
		return model.User{}, fmt.Errorf("protocol: profile bio length %d out of bounds", bioLen)
	}
	u.Bio = string(payload[off : off+bioLen])
	off += bioLen
	u.TotalScore = int32(binary.BigEndian.Uint32(payload[off:]))
	u.TotalGames = int32(binary.BigEndian.Uint32(payload[off+4:]))
	u.TotalWins = int32(binary.BigEndian.Uint32(payload[off+8:]))
	return u, nil
}

// ProfileRelayPayload prefixes a serialized profile with the requester id
// (SENT_USER_PROFILE).
func ProfileRelayPayload(requesterID int32, u model.User) []byte {
	profile := MarshalProfile(u)
	buf := make([]byte, 4+len(profile))
	binary.BigEndian.PutUint32(buf, uint32(requesterID))
	copy(buf[4:], profile)
	return buf
}

// DecodeProfileRelay splits a SENT_USER_PROFILE payload into the requester
// id and the profile.
func DecodeProfileRelay(payload []byte) (int32, model.User, error) {
	if len(payload) < 4 {
		return 0, model.User{}, ErrShortPayload
	}
	requester := int32(binary.BigEndian.Uint32(payload))
	u, err := UnmarshalProfile(payload[4:])
	return requester, u, err
}

// ---- challenges ----

// ChallengeNotice is the forwarded challenge: who is asking.
type ChallengeNotice struct {
	ChallengerID int32
	Username     string
}

func (n ChallengeNotice) Marshal() []byte {
	buf := make([]byte, 4+UsernameField)
	binary.BigEndian.PutUint32(buf, uint32(n.ChallengerID))
	putUsername(buf[4:], n.Username)
	return buf
}

func DecodeChallengeNotice(payload []byte) (ChallengeNotice, error) {
	if len(payload) < 4+UsernameField {
		return ChallengeNotice{}, ErrShortPayload
	}
	return ChallengeNotice{
		ChallengerID: int32(binary.BigEndian.Uint32(payload)),
		Username:     getUsername(payload[4:]),
	}, nil
}

// AnswerPayload carries a challenge answer in either direction: the
// counterpart's user id and the boolean verdict.
type AnswerPayload struct {
	UserID int32
	Accept bool
}

func (a AnswerPayload) Marshal() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf, uint32(a.UserID))
	if a.Accept {
		binary.BigEndian.PutUint32(buf[4:], 1)
	}
	return buf
}

func DecodeAnswer(payload []byte) (AnswerPayload, error) {
	if len(payload) < 8 {
		return AnswerPayload{}, ErrShortPayload
	}
	return AnswerPayload{
		UserID: int32(binary.BigEndian.Uint32(payload)),
		Accept: binary.BigEndian.Uint32(payload[4:]) != 0,
	}, nil
}

// ---- chat ----

// ChatMessage is a lobby or in-game chat line.
type ChatMessage struct {
	SenderID int32
	Username string
	Text     string
}

func (c ChatMessage) Marshal() []byte {
	buf := make([]byte, 4+UsernameField+4+len(c.Text))
	binary.BigEndian.PutUint32(buf, uint32(c.SenderID))
	putUsername(buf[4:], c.Username)
	binary.BigEndian.PutUint32(buf[4+UsernameField:], uint32(len(c.Text))) //nolint:gosec // bounded by MaxPayload on write
	copy(buf[8+UsernameField:], c.Text)
	return buf
}

func DecodeChat(payload []byte) (ChatMessage, error) {
	if len(payload) < 8+UsernameField {
		return ChatMessage{}, ErrShortPayload
	}
	textLen := int(binary.BigEndian.Uint32(payload[4+UsernameField:]))
	if len(payload) < 8+UsernameField+textLen {
		return ChatMessage{}, ErrShortPayload
	}
	return ChatMessage{
		SenderID: int32(binary.BigEndian.Uint32(payload)),
		Username: getUsername(payload[4:]),
		Text:     string(payload[8+UsernameField : 8+UsernameField+textLen]),
	}, nil
}

// ---- errors ----

// ErrorReply tells the client which request failed and why.
type ErrorReply struct {
	Origin  CallType
	Message string
}

func (e ErrorReply) Marshal() []byte {
	buf := make([]byte, 1+len(e.Message))
	buf[0] = byte(e.Origin)
	copy(buf[1:], e.Message)
	return buf
}

func DecodeErrorReply(payload []byte) (ErrorReply, error) {
	if len(payload) < 1 {
		return ErrorReply{}, ErrShortPayload
	}
	return ErrorReply{Origin: CallType(payload[0]), Message: string(payload[1:])}, nil
}

// ---- text listings ----

// TextPayload wraps a newline-joined listing (LIST_USERS,
// LIST_ONGOING_GAMES, LIST_RANKING replies).
func TextPayload(text string) []byte {
	return []byte(text)
}

func DecodeText(payload []byte) string {
	return string(payload)
}
