package server

import (
	"log/slog"
	"sync"

	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

// sentinel sent with the first YOUR_TURN: no opponent move to report yet.
const firstMove = int32(-1)

// playerLink ties a participant's session to the inbox the lobby reader
// forwards its game-scoped frames into. The game goroutine never reads
// the socket itself.
type playerLink struct {
	sess  *Session
	inbox chan protocol.Message
}

// GameSession is the concurrent unit owning one in-progress match. It
// holds weak references to the participants (id + socket handle via the
// Session), never ownership: the Registry stays free to purge either side.
type GameSession struct {
	ID   int
	game *model.Game

	// players[0] moves first.
	players [2]*playerLink

	// mu guards the spectator list, the score snapshot and the finished
	// flag: lobby-side attaches race with the fan-out loop, the listing
	// render and teardown.
	mu             sync.Mutex
	spectators     []*Session
	pendingWatcher *Session
	scores         [2]int
	finished       bool

	reg     *Registry
	mgr     *GameManager
	ranking *Leaderboard
	metrics *Metrics
}

// Run drives the match to termination: turn alternation, move validation,
// win/draw detection, spectator fan-out. It runs as its own goroutine and
// exits once every termination notification is sent.
func (g *GameSession) Run() {
	slog.Info("game started",
		"game", g.ID,
		"player1", g.players[0].sess.Username,
		"player2", g.players[1].sess.Username,
	)

	lastMove := firstMove
	for g.game.Rounds() < model.MaxRounds {
		cur := g.players[g.game.CurrentPlayer()-1]
		opp := g.players[g.game.CurrentPlayer()%2]

		turn := protocol.Int32Payload(lastMove)
		if err := cur.sess.Send(protocol.YourTurn, turn); err != nil {
			slog.Info("player unreachable, ending game", "game", g.ID, "user", cur.sess.Username)
			g.endDisconnected(cur, opp)
			return
		}
		g.fanOut(protocol.YourTurn, turn)

		hole, ok := g.awaitMove(cur, opp)
		if !ok {
			g.endDisconnected(cur, opp)
			return
		}

		player := g.game.CurrentPlayer()
		points := g.game.Apply(hole)
		lastMove = int32(hole) //nolint:gosec // hole validated to 1-6
		g.metrics.MovesPlayed.Add(1)

		g.mu.Lock()
		g.scores[0] = g.game.Player1.Score
		g.scores[1] = g.game.Player2.Score
		g.mu.Unlock()

		slog.Debug("move applied",
			"game", g.ID, "player", player, "hole", hole, "captured", points,
			"score1", g.game.Player1.Score, "score2", g.game.Player2.Score,
		)

		if winner := g.game.Winner(); winner != 0 {
			g.endWithWinner(winner)
			return
		}
	}
	g.endDraw()
}

// awaitMove blocks until the current player submits a valid move. Chat
// and watcher-authorization frames are relayed without consuming the
// turn. ok is false when the player's connection died.
func (g *GameSession) awaitMove(cur, opp *playerLink) (hole int, ok bool) {
	for {
		msg, open := <-cur.inbox
		if !open {
			return 0, false
		}

		switch msg.Call {
		case protocol.PlayMade:
			h, err := protocol.DecodeInt32(msg.Payload)
			if err != nil {
				return 0, false
			}
			if !g.game.Board.ValidMove(g.game.CurrentPlayer(), int(h)) {
				cur.sess.SendError(protocol.PlayMade, "invalid move: choose a non-empty hole between 1 and 6")
				continue
			}
			return int(h), true

		case protocol.SendGameChat:
			chat, err := protocol.DecodeChat(msg.Payload)
			if err != nil {
				continue
			}
			relay := protocol.ChatMessage{
				SenderID: cur.sess.ID,
				Username: cur.sess.Username,
				Text:     chat.Text,
			}.Marshal()
			_ = opp.sess.Send(protocol.ReceiveGameChat, relay)
			g.fanOut(protocol.ReceiveGameChat, relay)
			g.metrics.GameChatRelayed.Add(1)

		case protocol.AllowWatcher:
			g.relayWatcherConsent(msg.Payload)

		default:
			slog.Debug("unexpected in-game frame ignored",
				"game", g.ID, "user", cur.sess.Username, "call", msg.Call.String())
		}
	}
}

// fanOut sends a frame to every attached spectator, dropping any whose
// socket fails.
func (g *GameSession) fanOut(call protocol.CallType, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.spectators[:0]
	for _, w := range g.spectators {
		if err := w.Send(call, payload); err != nil {
			slog.Debug("dropping unreachable spectator", "game", g.ID, "user", w.Username)
			continue
		}
		kept = append(kept, w)
	}
	g.spectators = kept
}

// relayWatcherConsent forwards a player's ALLOW_WATCHER verdict to the
// most recently attached watcher, if still around.
func (g *GameSession) relayWatcherConsent(payload []byte) {
	g.mu.Lock()
	w := g.pendingWatcher
	g.pendingWatcher = nil
	g.mu.Unlock()
	if w != nil {
		_ = w.Send(protocol.AllowWatcher, payload)
	}
}

// endWithWinner reports a decisive result: WIN to one side, LOSE to the
// other, exactly once.
func (g *GameSession) endWithWinner(winner int) {
	winLink := g.players[winner-1]
	loseLink := g.players[winner%2]

	slog.Info("game won", "game", g.ID, "winner", winLink.sess.Username,
		"score1", g.game.Player1.Score, "score2", g.game.Player2.Score)

	// Results are recorded before the notifications go out so a client
	// reacting to GAME_OVER sees the updated ranking.
	g.reg.RecordResult(winLink.sess.ID, g.scoreMap())
	g.ranking.Bump(winLink.sess.ID)

	_ = winLink.sess.Send(protocol.GameOver, protocol.Int32Payload(int32(model.ReasonWin)))
	_ = loseLink.sess.Send(protocol.GameOver, protocol.Int32Payload(int32(model.ReasonLose)))
	g.fanOut(protocol.GameOverWatcher, protocol.Int32Payload(int32(model.ReasonWin)))
	g.release()
}

// endDraw reports DRAW to both players and all spectators.
func (g *GameSession) endDraw() {
	slog.Info("game drawn after max rounds", "game", g.ID)
	g.reg.RecordResult(0, g.scoreMap())

	draw := protocol.Int32Payload(int32(model.ReasonDraw))
	_ = g.players[0].sess.Send(protocol.GameOver, draw)
	_ = g.players[1].sess.Send(protocol.GameOver, draw)
	g.fanOut(protocol.GameOverWatcher, draw)
	g.release()
}

// endDisconnected purges the dead participant and credits the survivor
// with the win.
func (g *GameSession) endDisconnected(dead, survivor *playerLink) {
	pending, _ := g.reg.Remove(dead.sess.ID)
	notifyLapsedOffers(g.reg, dead.sess.ID, pending)
	g.ranking.Remove(dead.sess.ID)
	g.reg.RecordResult(survivor.sess.ID, map[int32]int{survivor.sess.ID: g.scoreOf(survivor)})
	g.ranking.Bump(survivor.sess.ID)

	_ = survivor.sess.Send(protocol.GameOver, protocol.Int32Payload(int32(model.ReasonOpponentDisconnected)))
	g.fanOut(protocol.GameOverWatcher, protocol.Int32Payload(int32(model.ReasonOpponentDisconnected)))
	g.release()
}

// release returns the participants and spectators to the lobby and
// deallocates the match.
func (g *GameSession) release() {
	for _, p := range g.players {
		g.reg.BindInbox(p.sess.ID, nil)
		g.reg.SetState(p.sess.ID, StateLobby)
	}

	g.mu.Lock()
	g.finished = true
	watchers := g.spectators
	g.spectators = nil
	g.pendingWatcher = nil
	g.mu.Unlock()
	for _, w := range watchers {
		g.reg.SetState(w.ID, StateLobby)
	}

	g.mgr.remove(g.ID)
	g.metrics.GamesCompleted.Add(1)
	slog.Info("game released", "game", g.ID)
}

func (g *GameSession) scoreMap() map[int32]int {
	return map[int32]int{
		g.players[0].sess.ID: g.game.Player1.Score,
		g.players[1].sess.ID: g.game.Player2.Score,
	}
}

func (g *GameSession) scoreOf(p *playerLink) int {
	if p == g.players[0] {
		return g.game.Player1.Score
	}
	return g.game.Player2.Score
}
