package client

import (
	"fmt"
	"sync"

	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

// State represents the client's lobby state.
type State int

const (
	StateDisconnected State = iota
	StateLobby
	StateInGame
	StateSpectating
)

// Engine wires the connection to lobby semantics: it owns the local
// profile (the bio never leaves the client except inside profile
// answers), tracks whether a match is running, and auto-answers profile
// requests from other users.
type Engine struct {
	mu sync.RWMutex

	state   State
	profile model.User

	// challengePending is set between sending a challenge and receiving
	// its answer; the server enforces the same single-outstanding rule.
	challengePending bool

	client *Client

	// Callbacks for UI updates.
	OnChallenge       func(challengerID int32, username string)
	OnChallengeAnswer func(userID int32, accepted bool)
	OnGameStart       func(opponent string)
	OnYourTurn        func(opponentMove int32)
	OnGameOver        func(reason model.GameOverReason)
	OnProfile         func(u model.User)
	OnWatchConsent    func(allowed bool)
	OnChat            func(from string, text string)
	OnError           func(origin protocol.CallType, msg string)
	OnDisconnect      func()
}

// NewEngine creates a disconnected engine.
func NewEngine() *Engine {
	return &Engine{state: StateDisconnected}
}

// Connect dials the server, performs the handshake and starts the event
// pump.
func (e *Engine) Connect(addr, username string) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	e.mu.Unlock()

	c, err := Dial(addr)
	if err != nil {
		return err
	}

	profile, err := c.Connect(username)
	if err != nil {
		_ = c.Close()
		return err
	}

	e.mu.Lock()
	e.client = c
	e.profile = profile
	e.state = StateLobby
	e.mu.Unlock()

	c.SetEventHandler(e.handleEvent)
	c.StartReceiving()

	go func() {
		<-c.Done()
		e.mu.Lock()
		e.state = StateDisconnected
		e.mu.Unlock()
		if e.OnDisconnect != nil {
			e.OnDisconnect()
		}
	}()

	return nil
}

// Close drops the connection.
func (e *Engine) Close() error {
	e.mu.RLock()
	c := e.client
	e.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Profile returns the local profile, including lifetime stats as of the
// last server update.
func (e *Engine) Profile() model.User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile
}

// State returns the current lobby state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// SetBio updates the local bio. Bios are client-owned and only travel
// inside profile answers.
func (e *Engine) SetBio(bio string) error {
	if err := model.ValidateBio(bio); err != nil {
		return err
	}
	e.mu.Lock()
	e.profile.Bio = bio
	e.mu.Unlock()
	return nil
}

// ListUsers fetches the online-user listing.
func (e *Engine) ListUsers() (string, error) {
	return e.requestText(protocol.ListUsers)
}

// ListGames fetches the ongoing-game listing.
func (e *Engine) ListGames() (string, error) {
	return e.requestText(protocol.ListOngoingGames)
}

// ListRanking fetches the leaderboard.
func (e *Engine) ListRanking() (string, error) {
	return e.requestText(protocol.ListRanking)
}

func (e *Engine) requestText(call protocol.CallType) (string, error) {
	msg, err := e.client.Request(call, nil)
	if err != nil {
		return "", err
	}
	return protocol.DecodeText(msg.Payload), nil
}

// Challenge proposes a match to another user. Only one challenge may be
// outstanding at a time.
func (e *Engine) Challenge(opponentID int32) error {
	e.mu.Lock()
	if e.challengePending {
		e.mu.Unlock()
		return fmt.Errorf("you already have an outstanding challenge")
	}
	e.challengePending = true
	e.mu.Unlock()

	if err := e.client.Send(protocol.Challenge, protocol.Int32Payload(opponentID)); err != nil {
		e.mu.Lock()
		e.challengePending = false
		e.mu.Unlock()
		return err
	}
	return nil
}

// Answer accepts or refuses a received challenge.
func (e *Engine) Answer(challengerID int32, accept bool) error {
	return e.client.Send(protocol.ChallengeAnswer,
		protocol.AnswerPayload{UserID: challengerID, Accept: accept}.Marshal())
}

// Play submits a hole choice (1-6) for the running match.
func (e *Engine) Play(hole int) error {
	if hole < 1 || hole > model.HolesPerPlayer {
		return fmt.Errorf("hole must be between 1 and %d", model.HolesPerPlayer)
	}
	return e.client.Send(protocol.PlayMade, protocol.Int32Payload(int32(hole)))
}

// SendGameChat sends a chat line to the opponent and spectators.
func (e *Engine) SendGameChat(text string) error {
	return e.sendChat(protocol.SendGameChat, text)
}

// SendLobbyChat sends a chat line to everyone in the lobby.
func (e *Engine) SendLobbyChat(text string) error {
	return e.sendChat(protocol.SendLobbyChat, text)
}

func (e *Engine) sendChat(call protocol.CallType, text string) error {
	e.mu.RLock()
	chat := protocol.ChatMessage{SenderID: e.profile.ID, Username: e.profile.Username, Text: text}
	e.mu.RUnlock()
	return e.client.Send(call, chat.Marshal())
}

// ConsultProfile asks another user for their profile; the answer arrives
// via OnProfile.
func (e *Engine) ConsultProfile(userID int32) error {
	return e.client.Send(protocol.ConsultUserProfile, protocol.Int32Payload(userID))
}

// UserExists asks the server whether a user id is online.
func (e *Engine) UserExists(userID int32) (bool, error) {
	msg, err := e.client.Request(protocol.DoesUserExist, protocol.Int32Payload(userID))
	if err != nil {
		return false, err
	}
	return protocol.DecodeBool(msg.Payload)
}

// Watch attaches to a live match as spectator.
func (e *Engine) Watch(gameID int32) (bool, error) {
	msg, err := e.client.Request(protocol.WatchGame, protocol.Int32Payload(gameID))
	if err != nil {
		return false, err
	}
	ok, err := protocol.DecodeBool(msg.Payload)
	if err != nil {
		return false, err
	}
	if ok {
		e.setState(StateSpectating)
	}
	return ok, nil
}

// StopWatching detaches from the watched match.
func (e *Engine) StopWatching() error {
	if _, err := e.client.Request(protocol.WatchGame, protocol.Int32Payload(0)); err != nil {
		return err
	}
	e.setState(StateLobby)
	return nil
}

// AllowWatcher answers a spectator-consent prompt during a match.
func (e *Engine) AllowWatcher(allow bool) error {
	return e.client.Send(protocol.AllowWatcher, protocol.BoolPayload(allow))
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// handleEvent processes async server events on the read pump goroutine.
func (e *Engine) handleEvent(msg protocol.Message) {
	switch msg.Call {
	case protocol.Challenge:
		notice, err := protocol.DecodeChallengeNotice(msg.Payload)
		if err != nil {
			return
		}
		if e.OnChallenge != nil {
			e.OnChallenge(notice.ChallengerID, notice.Username)
		}

	case protocol.ChallengeAnswer:
		answer, err := protocol.DecodeAnswer(msg.Payload)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.challengePending = false
		e.mu.Unlock()
		if e.OnChallengeAnswer != nil {
			e.OnChallengeAnswer(answer.UserID, answer.Accept)
		}

	case protocol.ChallengeStart:
		opponent, err := protocol.DecodeConnect(msg.Payload)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.challengePending = false
		e.state = StateInGame
		e.mu.Unlock()
		if e.OnGameStart != nil {
			e.OnGameStart(opponent)
		}

	case protocol.YourTurn:
		move, err := protocol.DecodeInt32(msg.Payload)
		if err != nil {
			return
		}
		if e.OnYourTurn != nil {
			e.OnYourTurn(move)
		}

	case protocol.GameOver, protocol.GameOverWatcher:
		code, err := protocol.DecodeInt32(msg.Payload)
		if err != nil {
			return
		}
		reason := model.GameOverReason(code)
		e.mu.Lock()
		e.state = StateLobby
		e.applyResult(reason, msg.Call == protocol.GameOver)
		e.mu.Unlock()
		if e.OnGameOver != nil {
			e.OnGameOver(reason)
		}

	case protocol.ConsultUserProfile:
		// Another user wants our profile; answer with the local copy.
		requesterID, err := protocol.DecodeInt32(msg.Payload)
		if err != nil {
			return
		}
		e.mu.RLock()
		payload := protocol.ProfileRelayPayload(requesterID, e.profile)
		e.mu.RUnlock()
		_ = e.client.Send(protocol.SentUserProfile, payload)

	case protocol.ReceiveUserProfile:
		u, err := protocol.UnmarshalProfile(msg.Payload)
		if err != nil {
			return
		}
		if e.OnProfile != nil {
			e.OnProfile(u)
		}

	case protocol.AllowWatcher:
		allowed, err := protocol.DecodeBool(msg.Payload)
		if err != nil {
			return
		}
		if e.OnWatchConsent != nil {
			e.OnWatchConsent(allowed)
		}

	case protocol.ReceiveLobbyChat, protocol.ReceiveGameChat:
		chat, err := protocol.DecodeChat(msg.Payload)
		if err != nil {
			return
		}
		if e.OnChat != nil {
			e.OnChat(chat.Username, chat.Text)
		}

	case protocol.Error:
		reply, err := protocol.DecodeErrorReply(msg.Payload)
		if err != nil {
			return
		}
		if reply.Origin == protocol.Challenge {
			e.mu.Lock()
			e.challengePending = false
			e.mu.Unlock()
		}
		if e.OnError != nil {
			e.OnError(reply.Origin, reply.Message)
		}
	}
}

// applyResult folds a finished match into the local lifetime stats, the
// same accounting the server keeps. Caller holds e.mu.
func (e *Engine) applyResult(reason model.GameOverReason, participant bool) {
	if !participant {
		return
	}
	e.profile.TotalGames++
	if reason == model.ReasonWin || reason == model.ReasonOpponentDisconnected {
		e.profile.TotalWins++
	}
}
