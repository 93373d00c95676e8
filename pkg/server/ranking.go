package server

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"
)

// rankEntry is one leaderboard slot.
type rankEntry struct {
	userID   int32
	username string
	wins     int
	index    int // heap position, maintained by the heap interface
}

// rankHeap orders entries by descending win count. Ties break on the
// lower user id so extraction order is deterministic.
type rankHeap []*rankEntry

func (h rankHeap) Len() int { return len(h) }

func (h rankHeap) Less(i, j int) bool {
	if h[i].wins != h[j].wins {
		return h[i].wins > h[j].wins
	}
	return h[i].userID < h[j].userID
}

func (h rankHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *rankHeap) Push(x any) {
	e := x.(*rankEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Leaderboard keeps connected users ordered by cumulative win count, so a
// ranking render never sorts the whole table.
type Leaderboard struct {
	mu      sync.Mutex
	entries rankHeap
	byID    map[int32]*rankEntry
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{byID: make(map[int32]*rankEntry)}
}

// Add inserts a user with the given win count (zero for fresh profiles).
func (l *Leaderboard) Add(userID int32, username string, wins int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[userID]; ok {
		return
	}
	e := &rankEntry{userID: userID, username: username, wins: wins}
	l.byID[userID] = e
	heap.Push(&l.entries, e)
}

// Bump credits a win and restores heap order.
func (l *Leaderboard) Bump(userID int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byID[userID]
	if !ok {
		return
	}
	e.wins++
	heap.Fix(&l.entries, e.index)
}

// Remove drops a disconnected user.
func (l *Leaderboard) Remove(userID int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byID[userID]
	if !ok {
		return
	}
	heap.Remove(&l.entries, e.index)
	delete(l.byID, userID)
}

// Wins returns a user's current win count.
func (l *Leaderboard) Wins(userID int32) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.byID[userID]; ok {
		return e.wins
	}
	return 0
}

// Render extracts the full ordering as one line per user, best first. The
// live heap is copied so the extraction does not disturb it.
func (l *Leaderboard) Render() string {
	l.mu.Lock()
	scratch := make(rankHeap, len(l.entries))
	for i, e := range l.entries {
		clone := *e
		scratch[i] = &clone
		scratch[i].index = i
	}
	l.mu.Unlock()

	if len(scratch) == 0 {
		return "No users connected.\n"
	}

	var b strings.Builder
	rank := 1
	for scratch.Len() > 0 {
		e := heap.Pop(&scratch).(*rankEntry)
		fmt.Fprintf(&b, "%d. %s (id = %d) - %d wins\n", rank, e.username, e.userID, e.wins)
		rank++
	}
	return b.String()
}
