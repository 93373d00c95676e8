package server

import (
	"log/slog"
	"math/rand"

	"github.com/awalnet/awalnet/pkg/protocol"
)

// handleChallenge processes a CHALLENGE from sess naming an opponent id.
// On success the offer is queued on the target and the target is notified
// asynchronously; every rejection answers sess with an ERROR naming this
// call.
func (s *Server) handleChallenge(sess *Session, payload []byte) {
	opponentID, err := protocol.DecodeInt32(payload)
	if err != nil {
		sess.SendError(protocol.Challenge, "malformed challenge request")
		return
	}

	if opponentID == sess.ID {
		slog.Debug("self-challenge rejected", "user", sess.Username)
		sess.SendError(protocol.Challenge, "You cannot challenge yourself.")
		return
	}

	s.registry.mu.Lock()
	if sess.SentTo != 0 {
		s.registry.mu.Unlock()
		sess.SendError(protocol.Challenge, "You already have an outstanding challenge.")
		return
	}
	target := s.registry.byID[opponentID]
	if target == nil {
		s.registry.mu.Unlock()
		sess.SendError(protocol.Challenge, "User not found or not online.")
		return
	}
	if target.State == StateInGame {
		s.registry.mu.Unlock()
		sess.SendError(protocol.Challenge, "The player challenged is currently in a game.")
		return
	}

	target.Offers = append(target.Offers, sess.ID)
	if target.State == StateLobby {
		target.State = StateAwaitingAnswer
	}
	sess.SentTo = target.ID
	pending := len(target.Offers)
	s.registry.mu.Unlock()

	s.metrics.ChallengesSent.Add(1)
	slog.Info("challenge queued",
		"from", sess.Username, "to", target.Username, "pending", pending)

	notice := protocol.ChallengeNotice{ChallengerID: sess.ID, Username: sess.Username}
	if err := target.Send(protocol.Challenge, notice.Marshal()); err != nil {
		slog.Debug("challenge notify failed", "to", target.Username, "err", err)
	}
}

// handleChallengeAnswer processes the target's verdict on one queued
// offer. Accepting clears and auto-refuses every other queued offer and
// starts the match.
func (s *Server) handleChallengeAnswer(sess *Session, payload []byte) {
	answer, err := protocol.DecodeAnswer(payload)
	if err != nil {
		sess.SendError(protocol.ChallengeAnswer, "malformed challenge answer")
		return
	}

	s.registry.mu.Lock()
	challenger := s.registry.byID[answer.UserID]
	if challenger == nil {
		s.registry.mu.Unlock()
		sess.SendError(protocol.ChallengeAnswer, "User not found or not online.")
		return
	}
	if challenger.State == StateInGame {
		// The offer lapsed while the target was deciding.
		sess.Offers = removeID(sess.Offers, challenger.ID)
		s.registry.mu.Unlock()
		sess.SendError(protocol.ChallengeAnswer, "The player who challenged you is now in a game.")
		return
	}

	sess.Offers = removeID(sess.Offers, challenger.ID)
	challenger.SentTo = 0

	if !answer.Accept {
		if len(sess.Offers) == 0 && sess.State == StateAwaitingAnswer {
			sess.State = StateLobby
		}
		s.registry.mu.Unlock()

		s.metrics.ChallengesRefused.Add(1)
		slog.Info("challenge refused", "by", sess.Username, "challenger", challenger.Username)
		verdict := protocol.AnswerPayload{UserID: sess.ID, Accept: false}
		_ = challenger.Send(protocol.ChallengeAnswer, verdict.Marshal())
		return
	}

	// Accepted: every other queued challenger gets an auto-refusal.
	others := make([]*Session, 0, len(sess.Offers))
	for _, id := range sess.Offers {
		if other := s.registry.byID[id]; other != nil {
			other.SentTo = 0
			others = append(others, other)
		}
	}
	sess.Offers = nil
	sess.State = StateInGame
	challenger.State = StateInGame
	s.registry.mu.Unlock()

	refusal := protocol.AnswerPayload{UserID: sess.ID, Accept: false}.Marshal()
	for _, other := range others {
		_ = other.Send(protocol.ChallengeAnswer, refusal)
		s.metrics.ChallengesRefused.Add(1)
		slog.Info("challenge auto-refused after acceptance",
			"by", sess.Username, "challenger", other.Username)
	}

	s.metrics.ChallengesAccepted.Add(1)
	verdict := protocol.AnswerPayload{UserID: sess.ID, Accept: true}
	_ = challenger.Send(protocol.ChallengeAnswer, verdict.Marshal())

	s.startGame(challenger, sess)
}

// notifyLapsedOffers refuses, on behalf of a departed session, every
// challenge still queued on it, unblocking each challenger's outstanding
// marker. Called from whichever path removes the session first: the lobby
// reader's cleanup or the game goroutine's disconnect handling.
func notifyLapsedOffers(reg *Registry, deadID int32, pending []int32) {
	if len(pending) == 0 {
		return
	}
	refusal := protocol.AnswerPayload{UserID: deadID, Accept: false}.Marshal()
	for _, id := range pending {
		challenger := reg.Get(id)
		if challenger == nil {
			continue
		}
		reg.clearSentTo(id)
		_ = challenger.Send(protocol.ChallengeAnswer, refusal)
	}
}

// startGame notifies both sides, flips a coin for the first mover, and
// hands the match to its own goroutine. Both CHALLENGE_START frames go
// out before the game goroutine can emit any YOUR_TURN.
func (s *Server) startGame(challenger, target *Session) {
	_ = challenger.Send(protocol.ChallengeStart, protocol.ConnectPayload(target.Username))
	_ = target.Send(protocol.ChallengeStart, protocol.ConnectPayload(challenger.Username))

	first, second := challenger, target
	if rand.Intn(2) == 1 {
		first, second = target, challenger
	}

	g, err := s.games.Create(first, second, s.registry, s.ranking, s.metrics)
	if err != nil {
		slog.Error("failed to start game", "err", err)
		s.registry.SetState(challenger.ID, StateLobby)
		s.registry.SetState(target.ID, StateLobby)
		challenger.SendError(protocol.ChallengeAnswer, "No game slot available, try again later.")
		target.SendError(protocol.ChallengeAnswer, "No game slot available, try again later.")
		return
	}

	slog.Info("match created", "game", g.ID,
		"first", first.Username, "second", second.Username)
}
