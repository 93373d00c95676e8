// Package model defines the core domain types for Awalnet: the player
// profile, the board ring, and the game rules (sowing, capture, win and
// draw detection).
package model

// GameOverReason tells a participant how their game ended.
type GameOverReason int32

const (
	ReasonWin GameOverReason = iota
	ReasonLose
	ReasonDraw
	ReasonOpponentDisconnected
)

func (r GameOverReason) String() string {
	switch r {
	case ReasonWin:
		return "win"
	case ReasonLose:
		return "lose"
	case ReasonDraw:
		return "draw"
	case ReasonOpponentDisconnected:
		return "opponent disconnected"
	default:
		return "unknown"
	}
}

// Player is one side of a running game: user identity plus the running
// captured-seed score. The board and turn state live on the Game.
type Player struct {
	UserID int32
	Score  int
}

// Game is the pure match state: two players, the board, and the move
// counter. Player 1 always moves first; turn parity decides whose move a
// given count is.
type Game struct {
	Board   Board
	Player1 Player
	Player2 Player
	Moves   int // single moves played so far
}

// NewGame starts a game between two users with a fresh board. first moves
// first (as Player1).
func NewGame(first, second int32) *Game {
	return &Game{
		Board:   NewBoard(),
		Player1: Player{UserID: first},
		Player2: Player{UserID: second},
	}
}

// CurrentPlayer returns 1 or 2 depending on whose move it is.
func (g *Game) CurrentPlayer() int {
	if g.Moves%2 == 0 {
		return 1
	}
	return 2
}

// Apply plays the current player's 1-based hole choice: sows, captures,
// credits the score and advances the move counter. It returns the points
// captured by the move.
func (g *Game) Apply(hole int) int {
	player := g.CurrentPlayer()
	last := g.Board.Sow(HoleIndex(player, hole))
	points := g.Board.CaptureFrom(last, player)
	if player == 1 {
		g.Player1.Score += points
	} else {
		g.Player2.Score += points
	}
	g.Moves++
	return points
}

// Winner evaluates the win conditions after a move: a player reaching
// WinningScore wins, and a player starved below MinSeeds on their own side
// loses. It returns the winning player number, or 0 if the game goes on.
// Checked after every single move, so at most one condition can have newly
// triggered.
func (g *Game) Winner() int {
	if g.Player1.Score >= WinningScore || g.Board.SeedsRemaining(2) < MinSeeds {
		return 1
	}
	if g.Player2.Score >= WinningScore || g.Board.SeedsRemaining(1) < MinSeeds {
		return 2
	}
	return 0
}

// Rounds returns the number of completed turn-pairs.
func (g *Game) Rounds() int {
	return g.Moves / 2
}

// IsDraw reports whether the game exhausted MaxRounds turn-pairs without a
// winner.
func (g *Game) IsDraw() bool {
	return g.Winner() == 0 && g.Rounds() >= MaxRounds
}

// SeedCount returns board seeds plus both scores; always TotalSeeds for a
// well-formed game.
func (g *Game) SeedCount() int {
	return g.Board.Total() + g.Player1.Score + g.Player2.Score
}
