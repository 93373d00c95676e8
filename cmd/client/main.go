package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/awalnet/awalnet/pkg/client"
	"github.com/awalnet/awalnet/pkg/logging"
	"github.com/awalnet/awalnet/pkg/model"
	"github.com/awalnet/awalnet/pkg/protocol"
)

// app is the terminal client: a menu loop over the engine plus a local
// board replica so the match can be rendered without asking the server.
type app struct {
	engine *client.Engine
	in     *bufio.Scanner

	mu       sync.Mutex
	replica  *model.Game
	me       int  // 1 or 2 in the replica, set on the first turn prompt
	awaiting bool // a YOUR_TURN is pending our hole choice
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	username := flag.String("username", "", "username to connect with")
	flag.Parse()

	level := "warn"
	if v := os.Getenv("AWALNET_LOG_LEVEL"); v != "" {
		level = v
	}
	_ = logging.Setup(level, "text", os.Stdout)

	a := &app{
		engine: client.NewEngine(),
		in:     bufio.NewScanner(os.Stdin),
	}

	name := *username
	for name == "" {
		name = a.prompt("Choose a username: ")
	}

	a.wire()
	if err := a.engine.Connect(*addr, name); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	p := a.engine.Profile()
	fmt.Printf("Connected as %s (id = %d)\n", p.Username, p.ID)

	a.run()
}

// wire installs the engine callbacks. They fire on the read pump
// goroutine and only print; all input happens on the menu loop.
func (a *app) wire() {
	e := a.engine

	e.OnChallenge = func(id int32, username string) {
		fmt.Printf("\n>>> %s (id = %d) challenges you! Accept with: answer %d yes|no\n", username, id, id)
	}
	e.OnChallengeAnswer = func(id int32, accepted bool) {
		if accepted {
			fmt.Printf("\n>>> Challenge accepted by user %d.\n", id)
		} else {
			fmt.Printf("\n>>> Challenge refused by user %d.\n", id)
		}
	}
	e.OnGameStart = func(opponent string) {
		a.mu.Lock()
		a.replica = nil
		a.me = 0
		a.mu.Unlock()
		fmt.Printf("\n>>> Game on against %s!\n", opponent)
	}
	e.OnYourTurn = func(move int32) {
		a.mu.Lock()
		if a.replica == nil {
			a.replica = model.NewGame(1, 2)
			if move < 0 {
				a.me = 1 // no move to report: we open the game
			} else {
				a.me = 2
			}
		}
		if a.engine.State() == client.StateInGame {
			if move >= 0 {
				a.replica.Apply(int(move))
				fmt.Printf("\n>>> Opponent played hole %d.\n", move)
			}
			a.awaiting = true
			a.render()
			fmt.Print("Your turn. Play with: play <1-6>\n> ")
		} else if move >= 0 {
			a.replica.Apply(int(move))
			fmt.Printf("\n>>> Hole %d was played.\n", move)
		}
		a.mu.Unlock()
	}
	e.OnGameOver = func(reason model.GameOverReason) {
		a.mu.Lock()
		a.replica = nil
		a.awaiting = false
		a.mu.Unlock()
		switch reason {
		case model.ReasonWin:
			fmt.Println("\n>>> You win!")
		case model.ReasonLose:
			fmt.Println("\n>>> You lose.")
		case model.ReasonDraw:
			fmt.Println("\n>>> Draw: the round limit was reached.")
		case model.ReasonOpponentDisconnected:
			fmt.Println("\n>>> Your opponent disconnected. You win by forfeit.")
		default:
			fmt.Println("\n>>> Game over.")
		}
	}
	e.OnProfile = func(u model.User) {
		fmt.Printf("\n--- %s (id = %d) ---\n", u.Username, u.ID)
		if u.Bio != "" {
			fmt.Println(u.Bio)
		}
		fmt.Printf("games: %d | wins: %d | cumulative score: %d\n", u.TotalGames, u.TotalWins, u.TotalScore)
	}
	e.OnWatchConsent = func(allowed bool) {
		if allowed {
			fmt.Println("\n>>> The player allowed you to watch.")
		} else {
			fmt.Println("\n>>> The player refused spectators.")
		}
	}
	e.OnChat = func(from, text string) {
		fmt.Printf("\n[%s] %s\n", from, text)
	}
	e.OnError = func(origin protocol.CallType, msg string) {
		fmt.Printf("\n>>> %s failed: %s\n", origin.String(), msg)
	}
	e.OnDisconnect = func() {
		fmt.Println("\nConnection lost.")
		os.Exit(1)
	}
}

func (a *app) run() {
	a.help()
	for {
		line := a.prompt("> ")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			a.help()
		case "profile":
			a.showOwnProfile()
		case "users":
			a.printListing(a.engine.ListUsers())
		case "games":
			a.printListing(a.engine.ListGames())
		case "ranking":
			a.printListing(a.engine.ListRanking())
		case "challenge":
			a.challenge(fields)
		case "answer":
			a.answer(fields)
		case "play":
			a.play(fields)
		case "consult":
			a.withID(fields, func(id int32) error { return a.engine.ConsultProfile(id) })
		case "exists":
			a.exists(fields)
		case "watch":
			a.withID(fields, func(id int32) error {
				ok, err := a.engine.Watch(id)
				if err == nil && !ok {
					fmt.Println("No such game.")
				}
				return err
			})
		case "unwatch":
			a.report(a.engine.StopWatching())
		case "allow":
			a.report(a.engine.AllowWatcher(len(fields) > 1 && fields[1] == "yes"))
		case "say":
			a.say(fields, false)
		case "gsay":
			a.say(fields, true)
		case "bio":
			a.report(a.engine.SetBio(strings.TrimSpace(strings.TrimPrefix(line, "bio"))))
		case "quit", "exit":
			_ = a.engine.Close()
			fmt.Println("Disconnected.")
			return
		default:
			fmt.Println("Unknown command, try: help")
		}
	}
}

func (a *app) help() {
	fmt.Println(`Commands:
  profile              show your profile
  users                list online users
  games                list ongoing games
  ranking              show the leaderboard
  challenge <id>       challenge a user
  answer <id> yes|no   answer a challenge
  play <1-6>           play a hole on your turn
  consult <id>         view another user's profile
  exists <id>          check whether a user id is online
  watch <id>           watch an ongoing game
  unwatch              stop watching
  allow yes|no         answer a spectator request
  say <msg>            lobby chat
  gsay <msg>           in-game chat
  bio <text>           set your bio
  quit                 disconnect`)
}

func (a *app) prompt(p string) string {
	fmt.Print(p)
	if !a.in.Scan() {
		os.Exit(0)
	}
	return strings.TrimSpace(a.in.Text())
}

func (a *app) showOwnProfile() {
	u := a.engine.Profile()
	fmt.Printf("--- %s (id = %d) ---\n", u.Username, u.ID)
	if u.Bio != "" {
		fmt.Println(u.Bio)
	}
	fmt.Printf("games: %d | wins: %d | cumulative score: %d\n", u.TotalGames, u.TotalWins, u.TotalScore)
}

func (a *app) printListing(text string, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Print(text)
}

func (a *app) report(err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (a *app) withID(fields []string, fn func(int32) error) {
	if len(fields) < 2 {
		fmt.Println("Missing id.")
		return
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Println("Invalid id.")
		return
	}
	a.report(fn(int32(id)))
}

func (a *app) challenge(fields []string) {
	a.withID(fields, func(id int32) error {
		if err := a.engine.Challenge(id); err != nil {
			return err
		}
		fmt.Println(">>> Waiting for the opponent's answer...")
		return nil
	})
}

func (a *app) answer(fields []string) {
	if len(fields) < 3 {
		fmt.Println("Usage: answer <id> yes|no")
		return
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Println("Invalid id.")
		return
	}
	a.report(a.engine.Answer(int32(id), fields[2] == "yes"))
}

func (a *app) exists(fields []string) {
	a.withID(fields, func(id int32) error {
		ok, err := a.engine.UserExists(id)
		if err != nil {
			return err
		}
		if ok {
			fmt.Println("User is online.")
		} else {
			fmt.Println("User is not online.")
		}
		return nil
	})
}

func (a *app) play(fields []string) {
	if len(fields) < 2 {
		fmt.Println("Usage: play <1-6>")
		return
	}
	hole, err := strconv.Atoi(fields[1])
	if err != nil || hole < 1 || hole > model.HolesPerPlayer {
		fmt.Println("Choose a hole between 1 and 6.")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.awaiting || a.replica == nil {
		fmt.Println("It is not your turn.")
		return
	}
	if !a.replica.Board.ValidMove(a.me, hole) {
		fmt.Println("That hole is empty, pick another one.")
		return
	}
	if err := a.engine.Play(hole); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	a.replica.Apply(hole)
	a.awaiting = false
	a.render()
	fmt.Println("Waiting for the opponent...")
}

func (a *app) say(fields []string, inGame bool) {
	if len(fields) < 2 {
		fmt.Println("Missing message.")
		return
	}
	text := strings.Join(fields[1:], " ")
	if inGame {
		a.report(a.engine.SendGameChat(text))
	} else {
		a.report(a.engine.SendLobbyChat(text))
	}
}

// render prints the board from our side: opponent's row on top, right to
// left, then ours. Caller holds a.mu.
func (a *app) render() {
	if a.replica == nil {
		return
	}
	opp := a.me%2 + 1
	var top, bottom strings.Builder
	for hole := model.HolesPerPlayer; hole >= 1; hole-- {
		fmt.Fprintf(&top, " %2d", a.replica.Board[model.HoleIndex(opp, hole)])
	}
	for hole := 1; hole <= model.HolesPerPlayer; hole++ {
		fmt.Fprintf(&bottom, " %2d", a.replica.Board[model.HoleIndex(a.me, hole)])
	}

	myScore, oppScore := a.replica.Player1.Score, a.replica.Player2.Score
	if a.me == 2 {
		myScore, oppScore = oppScore, myScore
	}
	fmt.Printf("\n  Opponent [%s ]  score %d\n", top.String(), oppScore)
	fmt.Printf("  You      [%s ]  score %d\n", bottom.String(), myScore)
}
