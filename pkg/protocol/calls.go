package protocol

// CallType tags every message on the wire.
type CallType uint8

const (
	Connect            CallType = iota // client->server: username
	ConnectConfirm                     // server->client: serialized profile
	ListUsers                          // client->server, reply carries text listing
	ListOngoingGames                   // client->server, reply carries text listing
	ListRanking                        // client->server, reply carries leaderboard text
	Challenge                          // client->server: opponent id; forwarded with id+username
	ChallengeAnswer                    // both directions: id + boolean answer
	ChallengeStart                     // server->client (both): opponent username
	PlayMade                           // client->server: chosen hole 1-6
	YourTurn                           // server->client/spectator: opponent's last move, -1 = you start
	GameOver                           // server->client: reason code
	GameOverWatcher                    // server->spectator: reason code
	ConsultUserProfile                 // client->server->target: requester id
	SentUserProfile                    // target->server: requester id + serialized profile
	ReceiveUserProfile                 // server->requester: serialized profile
	WatchGame                          // client->server: game id
	WatchGameAnswer                    // server->client: boolean
	AllowWatcher                       // player->server->watcher: boolean
	SendLobbyChat                      // client->server: sender id + username + text
	ReceiveLobbyChat                   // server->client: sender id + username + text
	SendGameChat                       // player->server: sender id + username + text
	ReceiveGameChat                    // server->player/spectator: sender id + username + text
	DoesUserExist                      // client->server: user id; reply: boolean
	Error                              // server->client: originating call + message
	Success                            // server->client: generic ack
)

func (t CallType) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case ConnectConfirm:
		return "CONNECT_CONFIRM"
	case ListUsers:
		return "LIST_USERS"
	case ListOngoingGames:
		return "LIST_ONGOING_GAMES"
	case ListRanking:
		return "LIST_RANKING"
	case Challenge:
		return "CHALLENGE"
	case ChallengeAnswer:
		return "CHALLENGE_REQUEST_ANSWER"
	case ChallengeStart:
		return "CHALLENGE_START"
	case PlayMade:
		return "PLAY_MADE"
	case YourTurn:
		return "YOUR_TURN"
	case GameOver:
		return "GAME_OVER"
	case GameOverWatcher:
		return "GAME_OVER_WATCHER"
	case ConsultUserProfile:
		return "CONSULT_USER_PROFILE"
	case SentUserProfile:
		return "SENT_USER_PROFILE"
	case ReceiveUserProfile:
		return "RECEIVE_USER_PROFILE"
	case WatchGame:
		return "WATCH_GAME"
	case WatchGameAnswer:
		return "WATCH_GAME_ANSWER"
	case AllowWatcher:
		return "ALLOW_WATCHER"
	case SendLobbyChat:
		return "SEND_LOBBY_CHAT"
	case ReceiveLobbyChat:
		return "RECEIVE_LOBBY_CHAT"
	case SendGameChat:
		return "SEND_GAME_CHAT"
	case ReceiveGameChat:
		return "RECEIVE_GAME_CHAT"
	case DoesUserExist:
		return "DOES_USER_EXIST"
	case Error:
		return "ERROR"
	case Success:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// IsClientCall reports whether the call type originates on a client.
func IsClientCall(t CallType) bool {
	switch t {
	case Connect, ListUsers, ListOngoingGames, ListRanking, Challenge,
		ChallengeAnswer, PlayMade, ConsultUserProfile, SentUserProfile,
		WatchGame, AllowWatcher, SendLobbyChat, SendGameChat, DoesUserExist:
		return true
	}
	return false
}

// IsAsyncEvent reports whether a server->client message may arrive at any
// time, outside a request/reply exchange. The client read pump treats
// these as notifications; everything else answers the most recent request.
func IsAsyncEvent(t CallType) bool {
	switch t {
	case Challenge, ChallengeAnswer, ChallengeStart, YourTurn, GameOver,
		GameOverWatcher, ConsultUserProfile, ReceiveUserProfile,
		AllowWatcher, ReceiveLobbyChat, ReceiveGameChat, Error:
		return true
	}
	return false
}
