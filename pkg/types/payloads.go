package types

import "time"

type Connected struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomCapacity struct {
	PlayersCount int `json:"playersCount"`
	MaxPlayers   int `json:"maxPlayers"`
}

type JoinedRoom struct {
	RoomID     string       `json:"roomId"`
	Side       string       `json:"side"`
	PlayerName string       `json:"playerName"`
	Message    string       `json:"message"`
	RoomInfo   RoomCapacity `json:"roomInfo"`
}

// GameStateUpdate carries the full room snapshot. GameState is whatever
// the server's snapshot marshals to.
type GameStateUpdate struct {
	GameState any    `json:"gameState"`
	YourSide  string `json:"yourSide,omitempty"`
}

type ActionSuccess struct {
	Action string `json:"action"`
	Item   string `json:"item"`
	Player string `json:"player"`
	Side   string `json:"side"`
}

type ActionFailed struct {
	Action  string    `json:"action"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

type GameReset struct {
	Message string `json:"message"`
	ResetBy string `json:"resetBy"`
}

type RosterEntry struct {
	Name string `json:"name"`
	Side string `json:"side"`
}

type RoomInfo struct {
	Exists       bool          `json:"exists"`
	RoomID       string        `json:"roomId,omitempty"`
	PlayersCount int           `json:"playersCount,omitempty"`
	MaxPlayers   int           `json:"maxPlayers,omitempty"`
	Phase        string        `json:"phase,omitempty"`
	Players      []RosterEntry `json:"players,omitempty"`
}

type RoomClosed struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}
