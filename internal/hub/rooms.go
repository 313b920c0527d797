package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
)

const idleReason = "Room was idle for too long"

// Departure describes a connection leaving a room, so the caller can update
// whoever is still there.
type Departure struct {
	Code   string
	Result lobby.LeaveResult
}

type JoinResult struct {
	Outcome  lobby.Outcome
	Previous *Departure // set when conn had to leave another room first
}

// Lobby resolves a live room for an action.
func (h *Hub) Lobby(code string) (*lobby.Lobby, error) {
	lb, ok := h.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return lb, nil
}

// Join seats conn in room code, creating the room on first join. A
// connection sits in at most one room: the previous seat is given up only
// once the new one is taken, so a rejected join changes nothing.
func (h *Hub) Join(ctx context.Context, code string, conn lobby.ConnID, name string, side engine.Side) (JoinResult, error) {
	var res JoinResult
	prev, seated := h.RoomOf(conn)

	// A lobby can close between lookup and join when its last player
	// leaves or the reaper takes it; retry once against a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		lb := h.GetOrCreate(code)
		out, err := lb.Join(ctx, conn, name, side)
		if errors.Is(err, lobby.ErrRoomClosed) {
			h.forget(code, lb)
			continue
		}
		if err != nil {
			h.dropIfEmpty(ctx, code, lb)
			return res, err
		}
		if !h.record(conn, code, lb) {
			continue
		}
		res.Outcome = out

		if seated && prev != code {
			dep, err := h.Leave(ctx, prev, conn)
			if err != nil && !errors.Is(err, ErrRoomNotFound) {
				h.log.Warn("leave previous room failed", zap.String("room", prev), zap.Error(err))
			}
			if dep.Result.Left {
				res.Previous = &dep
			}
		}
		return res, nil
	}
	return res, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
}

// record indexes conn under code only while code still maps to lb, so a
// room removed in the meantime never leaves a stale entry behind.
func (h *Hub) record(conn lobby.ConnID, code string, lb *lobby.Lobby) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lobbies[code] != lb {
		return false
	}
	h.members[conn] = code
	return true
}

// dropIfEmpty removes a lobby that was created for a join that then failed.
func (h *Hub) dropIfEmpty(ctx context.Context, code string, lb *lobby.Lobby) {
	st, err := lb.Status(ctx)
	if err != nil || st.PlayersCount > 0 {
		return
	}
	h.forget(code, lb)
	_, _ = lb.Close(ctx)
}

// Leave removes conn from room code, or from its current room when code is
// empty. The room is deleted once nobody is left in it.
func (h *Hub) Leave(ctx context.Context, code string, conn lobby.ConnID) (Departure, error) {
	if code == "" {
		current, ok := h.RoomOf(conn)
		if !ok {
			return Departure{}, nil
		}
		code = current
	}
	lb, err := h.Lobby(code)
	if err != nil {
		return Departure{}, err
	}

	res, err := lb.Leave(ctx, conn)
	if errors.Is(err, lobby.ErrRoomClosed) {
		h.forget(code, lb)
		return Departure{Code: code}, nil
	}
	if err != nil {
		return Departure{}, err
	}

	if res.Left {
		h.mu.Lock()
		if h.members[conn] == code {
			delete(h.members, conn)
		}
		h.mu.Unlock()
	}
	if res.Empty {
		h.forget(code, lb)
	}
	return Departure{Code: code, Result: res}, nil
}

// Disconnect is an implicit leave for a connection that went away.
func (h *Hub) Disconnect(ctx context.Context, conn lobby.ConnID) (Departure, bool) {
	code, ok := h.RoomOf(conn)
	if !ok {
		return Departure{}, false
	}
	dep, err := h.Leave(ctx, code, conn)
	if err != nil {
		h.log.Warn("disconnect cleanup failed", zap.String("room", code), zap.Error(err))
		return Departure{}, false
	}
	return dep, dep.Result.Left
}

// ReapIdle closes every room idle past the timeout, notifies its members,
// then removes it. A room closes inside its own loop, so an action either
// lands before the close or is rejected after it.
func (h *Hub) ReapIdle(ctx context.Context, n Notifier) []string {
	var reaped []string
	for code, lb := range h.all() {
		members, closed, err := lb.CloseIfIdle(ctx)
		if errors.Is(err, lobby.ErrRoomClosed) {
			h.forget(code, lb)
			continue
		}
		if err != nil || !closed {
			continue
		}
		h.log.Info("cleaning up idle room", zap.String("room", code), zap.Int("players", len(members)))
		if n != nil && len(members) > 0 {
			n.RoomClosing(code, members, idleReason)
		}
		h.forget(code, lb)
		reaped = append(reaped, code)
	}
	if len(reaped) > 0 {
		h.log.Info("cleaned up idle rooms", zap.Int("count", len(reaped)))
	}
	return reaped
}

// Run reaps idle rooms every ReapInterval until ctx is done.
func (h *Hub) Run(ctx context.Context, n Notifier) error {
	ticker := time.NewTicker(h.opts.ReapInterval)
	defer ticker.Stop()
	h.log.Info("room cleanup interval started", zap.Duration("interval", h.opts.ReapInterval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.ReapIdle(ctx, n)
		}
	}
}
