package server

import (
	"testing"
)

func TestLeaderboardOrdering(t *testing.T) {
	l := NewLeaderboard()
	l.Add(1, "alice", 0)
	l.Add(2, "bob", 0)
	l.Add(3, "carol", 0)

	l.Bump(2)
	l.Bump(2)
	l.Bump(3)

	want := "1. bob (id = 2) - 2 wins\n" +
		"2. carol (id = 3) - 1 wins\n" +
		"3. alice (id = 1) - 0 wins\n"
	if got := l.Render(); got != want {
		t.Fatalf("render mismatch:\nwant %q\ngot  %q", want, got)
	}
}

func TestLeaderboardTieBreaksOnLowerID(t *testing.T) {
	l := NewLeaderboard()
	l.Add(5, "eve", 3)
	l.Add(2, "bob", 3)

	want := "1. bob (id = 2) - 3 wins\n" +
		"2. eve (id = 5) - 3 wins\n"
	if got := l.Render(); got != want {
		t.Fatalf("render mismatch:\nwant %q\ngot  %q", want, got)
	}
}

func TestLeaderboardEmpty(t *testing.T) {
	l := NewLeaderboard()
	if got := l.Render(); got != "No users connected.\n" {
		t.Fatalf("empty render: %q", got)
	}
}

func TestLeaderboardRemove(t *testing.T) {
	l := NewLeaderboard()
	l.Add(1, "alice", 4)
	l.Add(2, "bob", 1)

	l.Remove(1)

	if got := l.Render(); got != "1. bob (id = 2) - 1 wins\n" {
		t.Fatalf("render after remove: %q", got)
	}
	if l.Wins(1) != 0 {
		t.Fatal("removed user still has wins recorded")
	}
}

func TestLeaderboardDuplicateAddIgnored(t *testing.T) {
	l := NewLeaderboard()
	l.Add(1, "alice", 2)
	l.Add(1, "alice", 9)

	if got := l.Wins(1); got != 2 {
		t.Fatalf("wins: want 2 got %d", got)
	}
}

func TestLeaderboardRenderDoesNotDisturbHeap(t *testing.T) {
	l := NewLeaderboard()
	l.Add(1, "alice", 1)
	l.Add(2, "bob", 2)

	first := l.Render()
	second := l.Render()
	if first != second {
		t.Fatalf("render not stable:\n%q\n%q", first, second)
	}

	l.Bump(1)
	l.Bump(1)
	want := "1. alice (id = 1) - 3 wins\n" +
		"2. bob (id = 2) - 2 wins\n"
	if got := l.Render(); got != want {
		t.Fatalf("render after bump:\nwant %q\ngot  %q", want, got)
	}
}
