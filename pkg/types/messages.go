// Package types is the JSON protocol spoken over the /ws endpoint.
//
// Every frame is {"event": ..., "data": ...}. Client -> Server events:
//
//	joinRoom    {roomId, playerName, side}
//	banItem     {roomId, item}
//	pickItem    {roomId, item}
//	resetGame   {roomId}
//	leaveRoom   {roomId?}   // defaults to the caller's current room
//	getRoomInfo {roomId}
//	ping        {}
//
// Server -> Client events:
//
//	connected       {id, timestamp}
//	joinedRoom      {roomId, side, playerName, message, roomInfo}    // joiner only
//	gameStateUpdate {gameState, yourSide}                            // every member
//	actionSuccess   {action, item, player, side}                     // every member
//	actionFailed    {action, kind, message}                          // originator only
//	gameReset       {message, resetBy}                               // every member
//	roomInfo        {exists, roomId?, playersCount?, maxPlayers?, phase?, players?}
//	roomClosed      {roomId, reason}
//	error           {kind, message}                                  // originator only
//	pong            {}
package types

import "encoding/json"

const (
	EvtJoinRoom    = "joinRoom"
	EvtBanItem     = "banItem"
	EvtPickItem    = "pickItem"
	EvtResetGame   = "resetGame"
	EvtLeaveRoom   = "leaveRoom"
	EvtGetRoomInfo = "getRoomInfo"
	EvtPing        = "ping"

	EvtConnected       = "connected"
	EvtJoinedRoom      = "joinedRoom"
	EvtGameStateUpdate = "gameStateUpdate"
	EvtActionSuccess   = "actionSuccess"
	EvtActionFailed    = "actionFailed"
	EvtGameReset       = "gameReset"
	EvtRoomInfo        = "roomInfo"
	EvtRoomClosed      = "roomClosed"
	EvtError           = "error"
	EvtPong            = "pong"
)

type ErrorKind string

const (
	ErrRoomFull        ErrorKind = "RoomFull"
	ErrSideTaken       ErrorKind = "SideTaken"
	ErrNameTaken       ErrorKind = "NameTaken"
	ErrWrongPhase      ErrorKind = "WrongPhase"
	ErrNotYourTurn     ErrorKind = "NotYourTurn"
	ErrItemUnavailable ErrorKind = "ItemUnavailable"
	ErrRoomNotFound    ErrorKind = "RoomNotFound"
	ErrInvalidRequest  ErrorKind = "InvalidRequest"
	ErrInternal        ErrorKind = "Internal"
)

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinRoomRequest struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	Side       string `json:"side"`
}

type ItemRequest struct {
	RoomID string `json:"roomId"`
	Item   string `json:"item"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}
