package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awalnet/awalnet/pkg/protocol"
)

const handshakeTimeout = 10 * time.Second

// handleConn handles a single client connection lifecycle: CONNECT
// handshake, lobby frame loop, cleanup.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	connID := uuid.NewString()[:8]
	remoteAddr := conn.RemoteAddr().String()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)
	slog.Debug("new connection", "conn", connID, "remote", remoteAddr)

	// First message must be CONNECT.
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		slog.Debug("handshake read failed", "conn", connID, "err", err)
		s.metrics.FailedConnects.Add(1)
		return
	}
	_ = conn.SetReadDeadline(time.Time{}) // clear deadline

	if msg.Call != protocol.Connect {
		rejectConn(conn, msg.Call, "first message must be CONNECT")
		s.metrics.FailedConnects.Add(1)
		return
	}

	username, err := protocol.DecodeConnect(msg.Payload)
	if err != nil {
		rejectConn(conn, protocol.Connect, "malformed CONNECT payload")
		s.metrics.FailedConnects.Add(1)
		return
	}

	sess, err := s.registry.Register(conn, connID, username)
	if err != nil {
		rejectConn(conn, protocol.Connect, connectRefusal(err))
		s.metrics.FailedConnects.Add(1)
		slog.Info("connect refused", "conn", connID, "username", username, "err", err)
		return
	}
	s.ranking.Add(sess.ID, sess.Username, 0)

	if err := sess.Send(protocol.ConnectConfirm, protocol.MarshalProfile(sess.Profile)); err != nil {
		s.cleanup(sess)
		return
	}
	slog.Info("user connected", "conn", connID, "username", sess.Username, "id", sess.ID)

	for {
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			slog.Debug("connection closed", "conn", connID, "username", sess.Username, "err", err)
			break
		}

		// Frames belonging to a running match go to its goroutine, not
		// the lobby.
		if isGameFrame(msg.Call) {
			if inbox := s.registry.Inbox(sess.ID); inbox != nil {
				select {
				case inbox <- msg:
				default:
					slog.Debug("game inbox full, frame dropped",
						"conn", connID, "call", msg.Call.String())
				}
				continue
			}
		}

		s.dispatch(sess, msg)
	}

	s.cleanup(sess)
}

// isGameFrame reports whether a call is owned by the session's running
// match while one exists.
func isGameFrame(t protocol.CallType) bool {
	switch t {
	case protocol.PlayMade, protocol.SendGameChat, protocol.AllowWatcher:
		return true
	}
	return false
}

// rejectConn answers a pre-registration failure on the raw socket.
func rejectConn(conn net.Conn, origin protocol.CallType, msg string) {
	_ = protocol.WriteMessage(conn, protocol.Message{
		Call:    protocol.Error,
		Payload: protocol.ErrorReply{Origin: origin, Message: msg}.Marshal(),
	})
}

func connectRefusal(err error) string {
	switch {
	case errors.Is(err, ErrRegistryFull):
		return "Server is full, try again later."
	case errors.Is(err, ErrUsernameTaken):
		return "Username already taken."
	default:
		return "invalid username: must be 1-32 alphanumeric/underscore characters"
	}
}

// dispatch routes one lobby frame to its handler.
func (s *Server) dispatch(sess *Session, msg protocol.Message) {
	slog.Debug("lobby call", "conn", sess.ConnID, "username", sess.Username, "call", msg.Call.String())

	switch msg.Call {
	case protocol.ListUsers:
		_ = sess.Send(protocol.ListUsers, protocol.TextPayload(s.renderUsers(sess.ID)))

	case protocol.ListOngoingGames:
		_ = sess.Send(protocol.ListOngoingGames, protocol.TextPayload(s.games.Render()))

	case protocol.ListRanking:
		_ = sess.Send(protocol.ListRanking, protocol.TextPayload(s.ranking.Render()))

	case protocol.Challenge:
		s.handleChallenge(sess, msg.Payload)

	case protocol.ChallengeAnswer:
		s.handleChallengeAnswer(sess, msg.Payload)

	case protocol.ConsultUserProfile:
		s.handleConsultProfile(sess, msg.Payload)

	case protocol.SentUserProfile:
		s.handleSentProfile(sess, msg.Payload)

	case protocol.DoesUserExist:
		id, err := protocol.DecodeInt32(msg.Payload)
		if err != nil {
			sess.SendError(protocol.DoesUserExist, "malformed user id")
			return
		}
		_ = sess.Send(protocol.DoesUserExist, protocol.BoolPayload(s.registry.Get(id) != nil))

	case protocol.SendLobbyChat:
		s.handleLobbyChat(sess, msg.Payload)

	case protocol.WatchGame:
		s.handleWatchGame(sess, msg.Payload)

	default:
		slog.Debug("unsupported lobby call", "conn", sess.ConnID, "call", msg.Call.String())
		sess.SendError(msg.Call, "unsupported call")
	}
}

// renderUsers lists every other connected user, one per line, annotated
// when in a game.
func (s *Server) renderUsers(requesterID int32) string {
	sessions := s.registry.Snapshot()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	var b strings.Builder
	for _, other := range sessions {
		if other.ID == requesterID {
			continue
		}
		fmt.Fprintf(&b, "%s (id = %d)", other.Username, other.ID)
		if s.registry.StateOf(other.ID) == StateInGame {
			b.WriteString(" [IN GAME]")
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "No other users online.\n"
	}
	return b.String()
}

// handleConsultProfile relays a profile request to its subject; the
// subject answers with SENT_USER_PROFILE and the server routes the result
// back to the requester.
func (s *Server) handleConsultProfile(sess *Session, payload []byte) {
	targetID, err := protocol.DecodeInt32(payload)
	if err != nil {
		sess.SendError(protocol.ConsultUserProfile, "malformed user id")
		return
	}
	if targetID == sess.ID {
		slog.Debug("own-profile request ignored", "username", sess.Username)
		sess.SendError(protocol.ConsultUserProfile, "To view your own profile, press 1.")
		return
	}
	target := s.registry.Get(targetID)
	if target == nil {
		sess.SendError(protocol.ConsultUserProfile, "User not found or not online.")
		return
	}
	if err := target.Send(protocol.ConsultUserProfile, protocol.Int32Payload(sess.ID)); err != nil {
		sess.SendError(protocol.ConsultUserProfile, "User not found or not online.")
	}
}

// handleSentProfile routes a subject's profile answer back to whoever
// asked for it.
func (s *Server) handleSentProfile(sess *Session, payload []byte) {
	requesterID, profile, err := protocol.DecodeProfileRelay(payload)
	if err != nil {
		sess.SendError(protocol.SentUserProfile, "malformed profile payload")
		return
	}
	requester := s.registry.Get(requesterID)
	if requester == nil {
		slog.Debug("profile requester gone", "requester", requesterID)
		return
	}
	_ = requester.Send(protocol.ReceiveUserProfile, protocol.MarshalProfile(profile))
}

// handleLobbyChat broadcasts a chat line to every session still in the
// lobby, sender excluded. In-game and spectating sessions follow their
// match's chat instead.
func (s *Server) handleLobbyChat(sess *Session, payload []byte) {
	chat, err := protocol.DecodeChat(payload)
	if err != nil {
		sess.SendError(protocol.SendLobbyChat, "malformed chat payload")
		return
	}
	relay := protocol.ChatMessage{
		SenderID: sess.ID,
		Username: sess.Username,
		Text:     chat.Text,
	}.Marshal()

	for _, other := range s.registry.Snapshot() {
		if other.ID == sess.ID {
			continue
		}
		switch s.registry.StateOf(other.ID) {
		case StateLobby, StateAwaitingAnswer:
			_ = other.Send(protocol.ReceiveLobbyChat, relay)
		}
	}
	s.metrics.LobbyChatRelayed.Add(1)
}

// handleWatchGame attaches the session as spectator to a live match, or
// detaches it when the requested id is not positive.
func (s *Server) handleWatchGame(sess *Session, payload []byte) {
	gameID, err := protocol.DecodeInt32(payload)
	if err != nil {
		sess.SendError(protocol.WatchGame, "malformed game id")
		return
	}

	if gameID <= 0 {
		s.games.Unwatch(sess)
		s.registry.SetState(sess.ID, StateLobby)
		_ = sess.Send(protocol.Success, nil)
		return
	}

	if err := s.games.Watch(sess, int(gameID)); err != nil {
		slog.Debug("watch refused", "username", sess.Username, "game", gameID, "err", err)
		_ = sess.Send(protocol.WatchGameAnswer, protocol.BoolPayload(false))
		return
	}
	s.registry.SetState(sess.ID, StateSpectating)
	s.metrics.SpectatorsAttached.Add(1)
	_ = sess.Send(protocol.WatchGameAnswer, protocol.BoolPayload(true))
	slog.Info("spectator attached", "username", sess.Username, "game", gameID)
}

// cleanup tears down a registered session after its read loop exits:
// the game inbox is closed so a running match sees the disconnect, queued
// challengers are notified their offer lapsed, and the leaderboard entry
// goes away.
func (s *Server) cleanup(sess *Session) {
	inbox := s.registry.Inbox(sess.ID)
	pending, _ := s.registry.Remove(sess.ID)
	if inbox != nil {
		close(inbox)
	}

	notifyLapsedOffers(s.registry, sess.ID, pending)

	s.games.Unwatch(sess)
	s.ranking.Remove(sess.ID)
	s.metrics.TotalDisconnects.Add(1)
	slog.Info("user disconnected", "conn", sess.ConnID, "username", sess.Username, "id", sess.ID)
}
