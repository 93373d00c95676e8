package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

var ErrTooManyGames = errors.New("server: concurrent game limit reached")

// GameManager is the bounded table of live matches, keyed by the ordinal
// id clients use to watch a game.
type GameManager struct {
	mu     sync.Mutex
	max    int
	nextID int
	games  map[int]*GameSession
}

// NewGameManager creates a manager bounded to max concurrent matches.
func NewGameManager(max int) *GameManager {
	return &GameManager{max: max, nextID: 1, games: make(map[int]*GameSession)}
}

// Create allocates a match between first (who moves first) and second,
// binds both sessions' inboxes and starts the game goroutine. Both
// sessions must already be marked IN_GAME by the caller.
func (m *GameManager) Create(first, second *Session, reg *Registry, ranking *Leaderboard, metrics *Metrics) (*GameSession, error) {
	m.mu.Lock()
	if len(m.games) >= m.max {
		m.mu.Unlock()
		return nil, ErrTooManyGames
	}
	g := &GameSession{
		ID:   m.nextID,
		game: model.NewGame(first.ID, second.ID),
		players: [2]*playerLink{
			{sess: first, inbox: make(chan protocol.Message, 8)},
			{sess: second, inbox: make(chan protocol.Message, 8)},
		},
		reg:     reg,
		mgr:     m,
		ranking: ranking,
		metrics: metrics,
	}
	m.nextID++
	m.games[g.ID] = g
	m.mu.Unlock()

	reg.BindInbox(first.ID, g.players[0].inbox)
	reg.BindInbox(second.ID, g.players[1].inbox)

	metrics.GamesStarted.Add(1)
	go g.Run()
	return g, nil
}

// Get returns the live match with the given ordinal id, or nil.
func (m *GameManager) Get(id int) *GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[id]
}

// Count returns the number of live matches.
func (m *GameManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

func (m *GameManager) remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, id)
}

// Watch attaches a session as spectator to a match. The id must name a
// live game; the session starts receiving the match's turn, chat and
// termination frames until the match ends or it detaches.
func (m *GameManager) Watch(sess *Session, gameID int) error {
	g := m.Get(gameID)
	if g == nil {
		return fmt.Errorf("server: no game with id %d", gameID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	// The match may have torn down between the table lookup and here.
	if g.finished {
		return fmt.Errorf("server: game %d already finished", gameID)
	}
	g.spectators = append(g.spectators, sess)
	g.pendingWatcher = sess
	return nil
}

// Unwatch detaches a spectator from whichever match it is attached to.
func (m *GameManager) Unwatch(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		g.mu.Lock()
		for i, w := range g.spectators {
			if w.ID == sess.ID {
				g.spectators = append(g.spectators[:i], g.spectators[i+1:]...)
				break
			}
		}
		if g.pendingWatcher != nil && g.pendingWatcher.ID == sess.ID {
			g.pendingWatcher = nil
		}
		g.mu.Unlock()
	}
}

// Render lists every live match as one line: id, participants, running
// scores.
func (m *GameManager) Render() string {
	m.mu.Lock()
	games := make([]*GameSession, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	m.mu.Unlock()
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })

	if len(games) == 0 {
		return "No games are being played.\n"
	}

	var b strings.Builder
	for _, g := range games {
		g.mu.Lock()
		s1, s2 := g.scores[0], g.scores[1]
		g.mu.Unlock()
		fmt.Fprintf(&b, "Game %d: %d VS %d | %d - %d\n",
			g.ID, g.players[0].sess.ID, g.players[1].sess.ID, s1, s2)
	}
	return b.String()
}
