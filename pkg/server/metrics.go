package server

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections atomic.Int64 // current live sessions
	FailedConnects    atomic.Int64 // rejected CONNECT handshakes
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Matchmaking counters
	ChallengesSent     atomic.Int64
	ChallengesAccepted atomic.Int64
	ChallengesRefused  atomic.Int64 // explicit refusals plus auto-refusals

	// Game counters
	GamesStarted       atomic.Int64
	GamesCompleted     atomic.Int64
	MovesPlayed        atomic.Int64
	SpectatorsAttached atomic.Int64

	// Chat counters
	LobbyChatRelayed atomic.Int64
	GameChatRelayed  atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	slog.Info("metrics",
		"uptime", time.Since(m.startTime).Truncate(time.Second).String(),
		"connections", m.ActiveConnections.Load(),
		"total_connections", m.TotalConnections.Load(),
		"games_started", m.GamesStarted.Load(),
		"games_completed", m.GamesCompleted.Load(),
		"moves", m.MovesPlayed.Load(),
		"challenges_sent", m.ChallengesSent.Load(),
		"chat_relayed", m.LobbyChatRelayed.Load()+m.GameChatRelayed.Load(),
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
