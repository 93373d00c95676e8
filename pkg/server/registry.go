package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

// SessionState is what a connected client is currently doing.
type SessionState int

const (
	StateLobby SessionState = iota
	StateAwaitingAnswer
	StateInGame
	StateSpectating
)

func (s SessionState) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateInGame:
		return "in-game"
	case StateSpectating:
		return "spectating"
	default:
		return "unknown"
	}
}

var (
	ErrRegistryFull   = errors.New("registry: server is full")
	ErrUsernameTaken  = errors.New("registry: username already connected")
	ErrSessionUnknown = errors.New("registry: no such session")
)

// Session is the server-side state for one connected client. Identity and
// the conn handle are immutable after registration; everything else is
// guarded by the owning Registry's lock. Writes to the conn are serialized
// by a per-session mutex so game goroutines and the lobby never interleave
// frames.
type Session struct {
	ID       int32
	ConnID   string // short trace id for log lines
	Username string
	Conn     net.Conn

	writeMu sync.Mutex

	// Guarded by Registry.mu.
	State   SessionState
	Profile model.User
	Offers  []int32 // inbound challenge offers, arrival order
	SentTo  int32   // outstanding sent challenge target, 0 = none
	inbox   chan protocol.Message
}

// Send writes one framed message to the session's socket. Safe for
// concurrent use; a failed write is reported so callers can treat the
// peer as gone.
func (s *Session) Send(call protocol.CallType, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteMessage(s.Conn, protocol.Message{Call: call, Payload: payload})
}

// SendError replies with an ERROR frame naming the failed call.
func (s *Session) SendError(origin protocol.CallType, msg string) {
	_ = s.Send(protocol.Error, protocol.ErrorReply{Origin: origin, Message: msg}.Marshal())
}

// Registry is the bounded table of connected sessions, keyed by id and
// username. All mutation and iteration happens under one lock: removal is
// triggered asynchronously from game goroutines and must never race with
// lobby listings.
type Registry struct {
	mu       sync.Mutex
	capacity int
	nextID   int32
	byID     map[int32]*Session
	byName   map[string]*Session
}

// NewRegistry creates a registry bounded to capacity live sessions.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		nextID:   1,
		byID:     make(map[int32]*Session),
		byName:   make(map[string]*Session),
	}
}

// Register creates a session for a completed CONNECT handshake. The
// username must be unique among live sessions.
func (r *Registry) Register(conn net.Conn, connID, username string) (*Session, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byID) >= r.capacity {
		return nil, ErrRegistryFull
	}
	if _, taken := r.byName[username]; taken {
		return nil, ErrUsernameTaken
	}

	sess := &Session{
		ID:       r.nextID,
		ConnID:   connID,
		Username: username,
		Conn:     conn,
		State:    StateLobby,
		Profile:  model.NewUser(username, r.nextID),
	}
	r.nextID++
	r.byID[sess.ID] = sess
	r.byName[username] = sess
	return sess, nil
}

// Get returns the live session with the given id, or nil.
func (r *Registry) Get(id int32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// Remove drops a session from the table and closes its socket. It returns
// the challenger ids that still had offers queued on the session so the
// caller can notify them, and the id of any outstanding sent challenge so
// it can be withdrawn.
func (r *Registry) Remove(id int32) (pending []int32, sentTo int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byID[id]
	if !ok {
		return nil, 0
	}
	_ = sess.Conn.Close()
	delete(r.byID, id)
	delete(r.byName, sess.Username)

	pending = sess.Offers
	sentTo = sess.SentTo
	sess.Offers = nil
	sess.SentTo = 0

	// Withdraw this session's offer from its target's queue.
	if sentTo != 0 {
		if target := r.byID[sentTo]; target != nil {
			target.Offers = removeID(target.Offers, id)
			if len(target.Offers) == 0 && target.State == StateAwaitingAnswer {
				target.State = StateLobby
			}
		}
	}
	return pending, sentTo
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Snapshot returns the live sessions in unspecified order.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// StateOf returns a session's activity state, StateLobby when unknown.
func (r *Registry) StateOf(id int32) SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		return s.State
	}
	return StateLobby
}

// clearSentTo withdraws a session's outstanding sent challenge marker.
func (r *Registry) clearSentTo(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		s.SentTo = 0
	}
}

// SetState updates a session's activity state.
func (r *Registry) SetState(id int32, state SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		s.State = state
	}
}

// BindInbox routes a session's game-scoped inbound frames to the given
// channel; a nil channel returns the session to direct lobby handling.
func (r *Registry) BindInbox(id int32, inbox chan protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		s.inbox = inbox
	}
}

// Inbox returns the session's current game inbox, or nil.
func (r *Registry) Inbox(id int32) chan protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		return s.inbox
	}
	return nil
}

// RecordResult folds a finished game into the participants' profiles.
// A zero winnerID records a draw.
func (r *Registry) RecordResult(winnerID int32, scores map[int32]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, score := range scores {
		s := r.byID[id]
		if s == nil {
			continue
		}
		s.Profile.TotalGames++
		s.Profile.TotalScore += int32(score) //nolint:gosec // scores are bounded by TotalSeeds
		if id == winnerID {
			s.Profile.TotalWins++
		}
	}
}

func removeID(ids []int32, id int32) []int32 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
