package server

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.MetricsInterval = 0
	srv := New(cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func dialAndConnect(t *testing.T, srv *Server, username string) (net.Conn, model.User) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	send(t, conn, protocol.Connect, protocol.ConnectPayload(username))
	msg := recv(t, conn)
	if msg.Call != protocol.ConnectConfirm {
		t.Fatalf("handshake: want CONNECT_CONFIRM got %s", msg.Call)
	}
	profile, err := protocol.UnmarshalProfile(msg.Payload)
	if err != nil {
		t.Fatalf("handshake profile: %v", err)
	}
	return conn, profile
}

func send(t *testing.T, conn net.Conn, call protocol.CallType, payload []byte) {
	t.Helper()
	if err := protocol.WriteMessage(conn, protocol.Message{Call: call, Payload: payload}); err != nil {
		t.Fatalf("write %s: %v", call, err)
	}
}

func recv(t *testing.T, conn net.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return msg
}

func expect(t *testing.T, conn net.Conn, call protocol.CallType) protocol.Message {
	t.Helper()
	msg := recv(t, conn)
	if msg.Call != call {
		t.Fatalf("want %s got %s", call, msg.Call)
	}
	return msg
}

// tryRecv reads one frame with a short deadline; ok is false on timeout.
func tryRecv(conn net.Conn, d time.Duration) (protocol.Message, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(d))
	msg, err := protocol.ReadMessage(conn)
	_ = conn.SetReadDeadline(time.Time{})
	return msg, err == nil
}

func expectError(t *testing.T, conn net.Conn, origin protocol.CallType, message string) {
	t.Helper()
	msg := expect(t, conn, protocol.Error)
	reply, err := protocol.DecodeErrorReply(msg.Payload)
	if err != nil {
		t.Fatalf("decode error reply: %v", err)
	}
	if reply.Origin != origin || reply.Message != message {
		t.Fatalf("error reply: want (%s, %q) got (%s, %q)", origin, message, reply.Origin, reply.Message)
	}
}

// startGame connects two users, runs the accept flow and returns the
// current player's conn first.
func startGame(t *testing.T, srv *Server) (current, other net.Conn, currentID, otherID int32) {
	t.Helper()
	connA, profA := dialAndConnect(t, srv, "alice")
	connB, profB := dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(profB.ID))
	expect(t, connB, protocol.Challenge)
	send(t, connB, protocol.ChallengeAnswer, protocol.AnswerPayload{UserID: profA.ID, Accept: true}.Marshal())

	expect(t, connA, protocol.ChallengeAnswer)
	expect(t, connA, protocol.ChallengeStart)
	expect(t, connB, protocol.ChallengeStart)

	// The starter is chosen by coin flip; exactly one side gets the
	// opening turn prompt.
	if msg, ok := tryRecv(connA, 500*time.Millisecond); ok {
		if msg.Call != protocol.YourTurn {
			t.Fatalf("want YOUR_TURN got %s", msg.Call)
		}
		move, _ := protocol.DecodeInt32(msg.Payload)
		if move != -1 {
			t.Fatalf("opening turn: want -1 got %d", move)
		}
		return connA, connB, profA.ID, profB.ID
	}
	msg := expect(t, connB, protocol.YourTurn)
	move, _ := protocol.DecodeInt32(msg.Payload)
	if move != -1 {
		t.Fatalf("opening turn: want -1 got %d", move)
	}
	return connB, connA, profB.ID, profA.ID
}

func TestConnectAssignsIncrementalIDs(t *testing.T) {
	srv := newTestServer(t)

	_, profA := dialAndConnect(t, srv, "alice")
	_, profB := dialAndConnect(t, srv, "bob")

	if profA.ID != 1 || profB.ID != 2 {
		t.Fatalf("ids: want 1,2 got %d,%d", profA.ID, profB.ID)
	}
	if profA.Username != "alice" || profA.TotalGames != 0 {
		t.Fatalf("fresh profile: %+v", profA)
	}
}

func TestConnectRejectsDuplicateUsername(t *testing.T) {
	srv := newTestServer(t)
	dialAndConnect(t, srv, "alice")

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	send(t, conn, protocol.Connect, protocol.ConnectPayload("alice"))
	expectError(t, conn, protocol.Connect, "Username already taken.")
}

func TestListUsersExcludesRequester(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")
	dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.ListUsers, nil)
	msg := expect(t, connA, protocol.ListUsers)
	if got := protocol.DecodeText(msg.Payload); got != "bob (id = 2)\n" {
		t.Fatalf("listing: %q", got)
	}
}

func TestListUsersEmpty(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")

	send(t, connA, protocol.ListUsers, nil)
	msg := expect(t, connA, protocol.ListUsers)
	if got := protocol.DecodeText(msg.Payload); got != "No other users online.\n" {
		t.Fatalf("listing: %q", got)
	}
}

func TestChallengeSelfRejected(t *testing.T) {
	srv := newTestServer(t)
	connA, profA := dialAndConnect(t, srv, "alice")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(profA.ID))
	expectError(t, connA, protocol.Challenge, "You cannot challenge yourself.")
}

func TestChallengeUnknownUser(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(99))
	expectError(t, connA, protocol.Challenge, "User not found or not online.")
}

func TestChallengeForwardedAndRefused(t *testing.T) {
	srv := newTestServer(t)
	connA, profA := dialAndConnect(t, srv, "alice")
	connB, profB := dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(profB.ID))

	msg := expect(t, connB, protocol.Challenge)
	notice, err := protocol.DecodeChallengeNotice(msg.Payload)
	if err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.ChallengerID != profA.ID || notice.Username != "alice" {
		t.Fatalf("notice: %+v", notice)
	}

	send(t, connB, protocol.ChallengeAnswer, protocol.AnswerPayload{UserID: profA.ID, Accept: false}.Marshal())

	msg = expect(t, connA, protocol.ChallengeAnswer)
	answer, _ := protocol.DecodeAnswer(msg.Payload)
	if answer.UserID != profB.ID || answer.Accept {
		t.Fatalf("answer: %+v", answer)
	}
}

func TestOutstandingChallengeBlocksSecond(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")
	_, profB := dialAndConnect(t, srv, "bob")
	_, profC := dialAndConnect(t, srv, "carol")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(profB.ID))
	send(t, connA, protocol.Challenge, protocol.Int32Payload(profC.ID))
	expectError(t, connA, protocol.Challenge, "You already have an outstanding challenge.")
}

func TestAcceptAutoRefusesQueuedChallengers(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")
	connB, profB := dialAndConnect(t, srv, "bob")
	connC, profC := dialAndConnect(t, srv, "carol")
	connD, _ := dialAndConnect(t, srv, "dave")

	// Three offers queue on bob; accepting carol's must refuse exactly
	// the other two and start exactly one game.
	for _, conn := range []net.Conn{connA, connC, connD} {
		send(t, conn, protocol.Challenge, protocol.Int32Payload(profB.ID))
		expect(t, connB, protocol.Challenge)
	}

	send(t, connB, protocol.ChallengeAnswer, protocol.AnswerPayload{UserID: profC.ID, Accept: true}.Marshal())

	for _, conn := range []net.Conn{connA, connD} {
		msg := expect(t, conn, protocol.ChallengeAnswer)
		answer, _ := protocol.DecodeAnswer(msg.Payload)
		if answer.UserID != profB.ID || answer.Accept {
			t.Fatalf("auto-refusal: %+v", answer)
		}
	}

	msg := expect(t, connC, protocol.ChallengeAnswer)
	answer, _ := protocol.DecodeAnswer(msg.Payload)
	if !answer.Accept {
		t.Fatalf("acceptance: %+v", answer)
	}
	expect(t, connC, protocol.ChallengeStart)
	expect(t, connB, protocol.ChallengeStart)

	if got := srv.games.Count(); got != 1 {
		t.Fatalf("live games: want 1 got %d", got)
	}
}

func TestChallengeStartNamesOpponent(t *testing.T) {
	srv := newTestServer(t)
	connA, profA := dialAndConnect(t, srv, "alice")
	connB, profB := dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(profB.ID))
	expect(t, connB, protocol.Challenge)
	send(t, connB, protocol.ChallengeAnswer, protocol.AnswerPayload{UserID: profA.ID, Accept: true}.Marshal())
	expect(t, connA, protocol.ChallengeAnswer)

	msg := expect(t, connA, protocol.ChallengeStart)
	if name, _ := protocol.DecodeConnect(msg.Payload); name != "bob" {
		t.Fatalf("opponent name for alice: %q", name)
	}
	msg = expect(t, connB, protocol.ChallengeStart)
	if name, _ := protocol.DecodeConnect(msg.Payload); name != "alice" {
		t.Fatalf("opponent name for bob: %q", name)
	}
}

func TestMoveRelayedToOpponent(t *testing.T) {
	srv := newTestServer(t)
	current, other, _, _ := startGame(t, srv)

	send(t, current, protocol.PlayMade, protocol.Int32Payload(3))

	msg := expect(t, other, protocol.YourTurn)
	move, _ := protocol.DecodeInt32(msg.Payload)
	if move != 3 {
		t.Fatalf("relayed move: want 3 got %d", move)
	}
}

func TestInvalidMoveRejectedWithoutConsumingTurn(t *testing.T) {
	srv := newTestServer(t)
	current, other, _, _ := startGame(t, srv)

	send(t, current, protocol.PlayMade, protocol.Int32Payload(9))
	expectError(t, current, protocol.PlayMade, "invalid move: choose a non-empty hole between 1 and 6")

	// The turn is still ours; a legal move now proceeds normally.
	send(t, current, protocol.PlayMade, protocol.Int32Payload(1))
	expect(t, other, protocol.YourTurn)
}

func TestGameChatRelay(t *testing.T) {
	srv := newTestServer(t)
	current, other, currentID, _ := startGame(t, srv)

	chat := protocol.ChatMessage{Text: "your move soon"}
	send(t, current, protocol.SendGameChat, chat.Marshal())

	msg := expect(t, other, protocol.ReceiveGameChat)
	got, _ := protocol.DecodeChat(msg.Payload)
	if got.SenderID != currentID || got.Text != "your move soon" {
		t.Fatalf("relayed chat: %+v", got)
	}
}

func TestForfeitOnDisconnect(t *testing.T) {
	srv := newTestServer(t)
	current, other, _, otherID := startGame(t, srv)

	_ = current.Close()

	msg := expect(t, other, protocol.GameOver)
	code, _ := protocol.DecodeInt32(msg.Payload)
	if model.GameOverReason(code) != model.ReasonOpponentDisconnected {
		t.Fatalf("reason: want opponent-disconnected got %d", code)
	}

	// The survivor is credited the win and the loser leaves the ranking.
	send(t, other, protocol.ListRanking, nil)
	msg = expect(t, other, protocol.ListRanking)
	want := "1. " + usernameOf(srv, otherID) + " (id = 2) - 1 wins\n"
	if otherID == 1 {
		want = "1. " + usernameOf(srv, otherID) + " (id = 1) - 1 wins\n"
	}
	if got := protocol.DecodeText(msg.Payload); got != want {
		t.Fatalf("ranking: want %q got %q", want, got)
	}
}

func usernameOf(srv *Server, id int32) string {
	if sess := srv.registry.Get(id); sess != nil {
		return sess.Username
	}
	return ""
}

func TestOngoingGamesListing(t *testing.T) {
	srv := newTestServer(t)
	startGame(t, srv)
	connC, _ := dialAndConnect(t, srv, "carol")

	send(t, connC, protocol.ListOngoingGames, nil)
	msg := expect(t, connC, protocol.ListOngoingGames)
	got := protocol.DecodeText(msg.Payload)
	if !strings.HasPrefix(got, "Game 1: ") || !strings.HasSuffix(got, "| 0 - 0\n") {
		t.Fatalf("listing: %q", got)
	}
}

func TestOngoingGamesListingEmpty(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")

	send(t, connA, protocol.ListOngoingGames, nil)
	msg := expect(t, connA, protocol.ListOngoingGames)
	if got := protocol.DecodeText(msg.Payload); got != "No games are being played.\n" {
		t.Fatalf("listing: %q", got)
	}
}

func TestSpectatorReceivesTurnFrames(t *testing.T) {
	srv := newTestServer(t)
	current, other, _, _ := startGame(t, srv)
	connC, _ := dialAndConnect(t, srv, "carol")

	send(t, connC, protocol.WatchGame, protocol.Int32Payload(1))
	msg := expect(t, connC, protocol.WatchGameAnswer)
	if ok, _ := protocol.DecodeBool(msg.Payload); !ok {
		t.Fatal("watch refused")
	}

	send(t, current, protocol.PlayMade, protocol.Int32Payload(2))
	expect(t, other, protocol.YourTurn)

	msg = expect(t, connC, protocol.YourTurn)
	move, _ := protocol.DecodeInt32(msg.Payload)
	if move != 2 {
		t.Fatalf("spectated move: want 2 got %d", move)
	}
}

func TestSpectatorDetachAcknowledged(t *testing.T) {
	srv := newTestServer(t)
	startGame(t, srv)
	connC, profC := dialAndConnect(t, srv, "carol")

	send(t, connC, protocol.WatchGame, protocol.Int32Payload(1))
	expect(t, connC, protocol.WatchGameAnswer)

	send(t, connC, protocol.WatchGame, protocol.Int32Payload(0))
	expect(t, connC, protocol.Success)

	if got := srv.registry.StateOf(profC.ID); got != StateLobby {
		t.Fatalf("after detach: want lobby got %s", got)
	}
}

func TestWatchUnknownGameRefused(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")

	send(t, connA, protocol.WatchGame, protocol.Int32Payload(42))
	msg := expect(t, connA, protocol.WatchGameAnswer)
	if ok, _ := protocol.DecodeBool(msg.Payload); ok {
		t.Fatal("watching a missing game must be refused")
	}
}

func TestProfileRelayRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	connA, profA := dialAndConnect(t, srv, "alice")
	connB, profB := dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.ConsultUserProfile, protocol.Int32Payload(profB.ID))

	// bob's client answers with its local profile copy.
	msg := expect(t, connB, protocol.ConsultUserProfile)
	requesterID, _ := protocol.DecodeInt32(msg.Payload)
	if requesterID != profA.ID {
		t.Fatalf("requester id: want %d got %d", profA.ID, requesterID)
	}
	profB.Bio = "resident awale shark"
	send(t, connB, protocol.SentUserProfile, protocol.ProfileRelayPayload(requesterID, profB))

	msg = expect(t, connA, protocol.ReceiveUserProfile)
	got, err := protocol.UnmarshalProfile(msg.Payload)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if got.Username != "bob" || got.Bio != "resident awale shark" {
		t.Fatalf("profile: %+v", got)
	}
}

func TestConsultOwnProfileRejected(t *testing.T) {
	srv := newTestServer(t)
	connA, profA := dialAndConnect(t, srv, "alice")

	send(t, connA, protocol.ConsultUserProfile, protocol.Int32Payload(profA.ID))
	expectError(t, connA, protocol.ConsultUserProfile, "To view your own profile, press 1.")
}

func TestDoesUserExist(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")
	_, profB := dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.DoesUserExist, protocol.Int32Payload(profB.ID))
	msg := expect(t, connA, protocol.DoesUserExist)
	if ok, _ := protocol.DecodeBool(msg.Payload); !ok {
		t.Fatal("existing user reported missing")
	}

	send(t, connA, protocol.DoesUserExist, protocol.Int32Payload(99))
	msg = expect(t, connA, protocol.DoesUserExist)
	if ok, _ := protocol.DecodeBool(msg.Payload); ok {
		t.Fatal("missing user reported online")
	}
}

func TestLobbyChatBroadcast(t *testing.T) {
	srv := newTestServer(t)
	connA, profA := dialAndConnect(t, srv, "alice")
	connB, _ := dialAndConnect(t, srv, "bob")
	connC, _ := dialAndConnect(t, srv, "carol")

	send(t, connA, protocol.SendLobbyChat, protocol.ChatMessage{Text: "anyone up for a game?"}.Marshal())

	for _, conn := range []net.Conn{connB, connC} {
		msg := expect(t, conn, protocol.ReceiveLobbyChat)
		chat, _ := protocol.DecodeChat(msg.Payload)
		if chat.SenderID != profA.ID || chat.Username != "alice" || chat.Text != "anyone up for a game?" {
			t.Fatalf("relayed chat: %+v", chat)
		}
	}

	// The sender never hears their own line back.
	if msg, ok := tryRecv(connA, 200*time.Millisecond); ok {
		t.Fatalf("unexpected frame for sender: %s", msg.Call)
	}
}

func TestDisconnectLapsesQueuedOffer(t *testing.T) {
	srv := newTestServer(t)
	connA, _ := dialAndConnect(t, srv, "alice")
	connB, profB := dialAndConnect(t, srv, "bob")

	send(t, connA, protocol.Challenge, protocol.Int32Payload(profB.ID))
	expect(t, connB, protocol.Challenge)

	_ = connB.Close()

	// alice's outstanding offer is answered with a refusal so she can
	// challenge someone else.
	msg := expect(t, connA, protocol.ChallengeAnswer)
	answer, _ := protocol.DecodeAnswer(msg.Payload)
	if answer.UserID != profB.ID || answer.Accept {
		t.Fatalf("lapsed offer answer: %+v", answer)
	}

	connC, profC := dialAndConnect(t, srv, "carol")
	send(t, connA, protocol.Challenge, protocol.Int32Payload(profC.ID))
	expect(t, connC, protocol.Challenge)
}
