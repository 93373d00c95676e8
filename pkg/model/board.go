package model

// Game rule constants.
const (
	// Holes is the total number of holes on the board ring.
	Holes = 12

	// HolesPerPlayer is the number of holes on each player's side.
	HolesPerPlayer = 6

	// InitialSeeds is the seed count of every hole at game start.
	InitialSeeds = 4

	// TotalSeeds is the invariant seed count: board holes plus both
	// players' captured scores always sum to this.
	TotalSeeds = Holes * InitialSeeds

	// WinningScore ends the game immediately for the player reaching it.
	WinningScore = 25

	// MinSeeds is the survival threshold: a player whose side drops below
	// this many seeds loses immediately.
	MinSeeds = 6

	// MaxRounds is the number of completed turn-pairs before a game is
	// declared a draw.
	MaxRounds = 10
)

// Board is the 12-hole ring. Holes 0-5 belong to player 1, holes 6-11 to
// player 2, in increasing ring order with wraparound 11->0.
//
// For player 1 the board is displayed as:
//
//	p2: 11 10  9  8  7  6
//	p1:  0  1  2  3  4  5
type Board [Holes]int

// NewBoard returns a board with the initial 4 seeds in every hole.
func NewBoard() Board {
	var b Board
	for i := range b {
		b[i] = InitialSeeds
	}
	return b
}

// Sow removes all seeds from start and deposits them one per hole in
// increasing ring order, skipping the start hole itself even when circling
// past it. It returns the index of the last hole that received a seed.
// The caller must ensure the start hole is non-empty.
func (b *Board) Sow(start int) int {
	seeds := b[start]
	b[start] = 0
	pos := start
	for seeds > 0 {
		pos++
		if pos == Holes {
			pos = 0
		}
		if pos == start {
			continue
		}
		b[pos]++
		seeds--
	}
	return pos
}

// CaptureFrom harvests opponent holes ending in exactly 2 or 3 seeds,
// walking backward from last toward the start of the opponent's range.
// It returns the captured seed count, zero if last is not in the
// opponent's range. The chain halts at the first hole holding 0, 1 or >=4
// seeds, or when it would leave the opponent's range.
func (b *Board) CaptureFrom(last, player int) int {
	lo, hi := opponentRange(player)
	if last < lo || last > hi {
		return 0
	}
	score := 0
	for pos := last; pos >= lo; pos-- {
		if b[pos] != 2 && b[pos] != 3 {
			break
		}
		score += b[pos]
		b[pos] = 0
	}
	return score
}

// SeedsRemaining sums the six holes belonging to player.
func (b *Board) SeedsRemaining(player int) int {
	lo := 0
	if player == 2 {
		lo = HolesPerPlayer
	}
	total := 0
	for i := lo; i < lo+HolesPerPlayer; i++ {
		total += b[i]
	}
	return total
}

// Total sums every hole on the board.
func (b *Board) Total() int {
	total := 0
	for _, seeds := range b {
		total += seeds
	}
	return total
}

// opponentRange returns the inclusive hole range owned by player's opponent.
func opponentRange(player int) (lo, hi int) {
	if player == 1 {
		return HolesPerPlayer, Holes - 1
	}
	return 0, HolesPerPlayer - 1
}

// HoleIndex maps a player's 1-based hole choice to a board index:
// player 1's hole k is index k-1, player 2's hole k is index k+5.
func HoleIndex(player, hole int) int {
	if player == 1 {
		return hole - 1
	}
	return hole + HolesPerPlayer - 1
}

// ValidMove reports whether hole is a legal 1-6 choice for player with at
// least one seed to sow.
func (b *Board) ValidMove(player, hole int) bool {
	if hole < 1 || hole > HolesPerPlayer {
		return false
	}
	return b[HoleIndex(player, hole)] > 0
}
