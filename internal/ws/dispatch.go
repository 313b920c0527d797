package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
	"github.com/DoyleJ11/ban-pick-server/pkg/types"
)

var errInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

// Dispatch handles one inbound event from conn. Every failure is reported
// to conn alone; nothing here is fatal to the connection.
func (s *Server) Dispatch(ctx context.Context, conn lobby.ConnID, msg types.ClientMessage) {
	switch msg.Event {
	case types.EvtJoinRoom:
		s.handleJoin(ctx, conn, msg.Data)
	case types.EvtBanItem:
		s.handleAction(ctx, conn, engine.CmdBan, msg.Data)
	case types.EvtPickItem:
		s.handleAction(ctx, conn, engine.CmdPick, msg.Data)
	case types.EvtResetGame:
		s.handleReset(ctx, conn, msg.Data)
	case types.EvtLeaveRoom:
		s.handleLeave(ctx, conn, msg.Data)
	case types.EvtGetRoomInfo:
		s.handleRoomInfo(ctx, conn, msg.Data)
	case types.EvtPing:
		s.send(conn, types.EvtPong, struct{}{})
	default:
		s.sendError(conn, invalid("unknown event %q", msg.Event))
	}
}

func (s *Server) handleJoin(ctx context.Context, conn lobby.ConnID, data json.RawMessage) {
	var req types.JoinRoomRequest
	if err := decode(data, &req); err != nil {
		s.sendError(conn, err)
		return
	}
	code, name, side, err := s.validateJoin(req)
	if err != nil {
		s.sendError(conn, err)
		return
	}

	res, err := s.hub.Join(ctx, code, conn, name, side)
	if res.Previous != nil {
		s.announceDeparture(*res.Previous)
	}
	if err != nil {
		s.log.Debug("join rejected", zap.String("room", code), zap.String("player", name), zap.Error(err))
		s.sendError(conn, err)
		return
	}

	out := res.Outcome
	s.send(conn, types.EvtJoinedRoom, types.JoinedRoom{
		RoomID:     code,
		Side:       string(side),
		PlayerName: name,
		Message:    fmt.Sprintf("Joined room %s as %s", code, side),
		RoomInfo: types.RoomCapacity{
			PlayersCount: out.Snapshot.PlayersCount,
			MaxPlayers:   out.Snapshot.MaxPlayers,
		},
	})
	s.broadcastState(out.Members, out.Snapshot)
}

func (s *Server) validateJoin(req types.JoinRoomRequest) (string, string, engine.Side, error) {
	code, err := s.roomID(req.RoomID)
	if err != nil {
		return "", "", "", err
	}
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return "", "", "", invalid("missing playerName")
	}
	if utf8.RuneCountInString(name) > s.opts.NameMaxLength {
		return "", "", "", invalid("player name must be at most %d characters", s.opts.NameMaxLength)
	}
	side, ok := engine.ParseSide(req.Side)
	if !ok {
		return "", "", "", invalid("side must be Blue or Red")
	}
	return code, name, side, nil
}

// roomID normalizes a client supplied code to the registry's form.
func (s *Server) roomID(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", invalid("missing roomId")
	}
	if len(code) != s.opts.RoomIDLength {
		return "", invalid("room ID must be %d characters long", s.opts.RoomIDLength)
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return "", invalid("room ID must be alphanumeric")
		}
	}
	return code, nil
}

func (s *Server) handleAction(ctx context.Context, conn lobby.ConnID, kind engine.CommandType, data json.RawMessage) {
	action := actionName(kind)

	var req types.ItemRequest
	if err := decode(data, &req); err != nil {
		s.sendActionFailed(conn, action, err)
		return
	}
	code, err := s.roomID(req.RoomID)
	if err != nil {
		s.sendActionFailed(conn, action, err)
		return
	}
	item := strings.TrimSpace(req.Item)
	if item == "" {
		s.sendActionFailed(conn, action, invalid("missing item"))
		return
	}

	lb, err := s.hub.Lobby(code)
	if err != nil {
		s.sendActionFailed(conn, action, err)
		return
	}
	var out lobby.Outcome
	if kind == engine.CmdBan {
		out, err = lb.Ban(ctx, conn, item)
	} else {
		out, err = lb.Pick(ctx, conn, item)
	}
	if err != nil {
		s.log.Debug("action rejected",
			zap.String("room", code),
			zap.String("action", action),
			zap.String("item", item),
			zap.Error(err))
		s.sendActionFailed(conn, action, err)
		return
	}

	s.broadcast(out.Members, types.EvtActionSuccess, types.ActionSuccess{
		Action: action,
		Item:   item,
		Player: out.Actor.Name,
		Side:   string(out.Actor.Side),
	})
	s.broadcastState(out.Members, out.Snapshot)
	s.record(action, item, out)
}

func (s *Server) handleReset(ctx context.Context, conn lobby.ConnID, data json.RawMessage) {
	var req types.RoomRequest
	if err := decode(data, &req); err != nil {
		s.sendError(conn, err)
		return
	}
	code, err := s.roomID(req.RoomID)
	if err != nil {
		s.sendError(conn, err)
		return
	}
	lb, err := s.hub.Lobby(code)
	if err != nil {
		s.sendError(conn, err)
		return
	}
	out, err := lb.Reset(ctx, conn)
	if err != nil {
		s.sendError(conn, err)
		return
	}

	s.broadcast(out.Members, types.EvtGameReset, types.GameReset{
		Message: fmt.Sprintf("Game reset by %s", out.Actor.Name),
		ResetBy: out.Actor.Name,
	})
	s.broadcastState(out.Members, out.Snapshot)
}

func (s *Server) handleLeave(ctx context.Context, conn lobby.ConnID, data json.RawMessage) {
	var req types.RoomRequest
	if err := decode(data, &req); err != nil {
		s.sendError(conn, err)
		return
	}
	var code string
	if strings.TrimSpace(req.RoomID) != "" {
		c, err := s.roomID(req.RoomID)
		if err != nil {
			s.sendError(conn, err)
			return
		}
		code = c
	}

	dep, err := s.hub.Leave(ctx, code, conn)
	if err != nil {
		s.sendError(conn, err)
		return
	}
	s.announceDeparture(dep)
}

// announceDeparture updates whoever is still in the room a player left.
func (s *Server) announceDeparture(dep hub.Departure) {
	if !dep.Result.Left || dep.Result.Empty {
		return
	}
	out := dep.Result.Outcome
	s.broadcastState(out.Members, out.Snapshot)
}

func (s *Server) handleRoomInfo(ctx context.Context, conn lobby.ConnID, data json.RawMessage) {
	var req types.RoomRequest
	if err := decode(data, &req); err != nil {
		s.sendError(conn, err)
		return
	}
	code, err := s.roomID(req.RoomID)
	if err != nil {
		s.sendError(conn, err)
		return
	}
	s.send(conn, types.EvtRoomInfo, s.RoomInfo(ctx, code))
}

// RoomInfo reports whether code is live and, if so, who is in it.
func (s *Server) RoomInfo(ctx context.Context, code string) types.RoomInfo {
	lb, ok := s.hub.Get(code)
	if !ok {
		return types.RoomInfo{Exists: false}
	}
	snap, err := lb.Snapshot(ctx)
	if err != nil {
		return types.RoomInfo{Exists: false}
	}
	info := types.RoomInfo{
		Exists:       true,
		RoomID:       snap.RoomID,
		PlayersCount: snap.PlayersCount,
		MaxPlayers:   snap.MaxPlayers,
		Phase:        string(snap.Phase),
		Players:      make([]types.RosterEntry, 0, len(snap.Roster)),
	}
	for _, p := range snap.Roster {
		info.Players = append(info.Players, types.RosterEntry{Name: p.Name, Side: string(p.Side)})
	}
	return info
}

func (s *Server) sendError(conn lobby.ConnID, err error) {
	s.send(conn, types.EvtError, types.Error{Kind: errorKind(err), Message: err.Error()})
}

func (s *Server) sendActionFailed(conn lobby.ConnID, action string, err error) {
	s.send(conn, types.EvtActionFailed, types.ActionFailed{
		Action:  action,
		Kind:    errorKind(err),
		Message: err.Error(),
	})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return invalid("malformed payload: %v", err)
	}
	return nil
}

func actionName(kind engine.CommandType) string {
	if kind == engine.CmdBan {
		return "ban"
	}
	return "pick"
}

func errorKind(err error) types.ErrorKind {
	switch {
	case errors.Is(err, errInvalidRequest), errors.Is(err, lobby.ErrAlreadyJoined):
		return types.ErrInvalidRequest
	case errors.Is(err, lobby.ErrRoomFull):
		return types.ErrRoomFull
	case errors.Is(err, lobby.ErrSideTaken):
		return types.ErrSideTaken
	case errors.Is(err, lobby.ErrNameTaken):
		return types.ErrNameTaken
	case errors.Is(err, engine.ErrWrongPhase):
		return types.ErrWrongPhase
	case errors.Is(err, engine.ErrNotYourTurn):
		return types.ErrNotYourTurn
	case errors.Is(err, engine.ErrItemUnavailable):
		return types.ErrItemUnavailable
	case errors.Is(err, hub.ErrRoomNotFound), errors.Is(err, lobby.ErrRoomClosed), errors.Is(err, lobby.ErrNotInRoom):
		return types.ErrRoomNotFound
	default:
		return types.ErrInternal
	}
}
