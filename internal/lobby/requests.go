package lobby

import (
	"context"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
)

type msg interface{ isLobbyMsg() }

type response struct {
	outcome  Outcome
	leave    LeaveResult
	snapshot Snapshot
	status   Status
	members  []Member
	closed   bool
	err      error
}

type joinMsg struct {
	conn  ConnID
	name  string
	side  engine.Side
	reply chan response
}

type leaveMsg struct {
	conn  ConnID
	reply chan response
}

type actionMsg struct {
	conn  ConnID
	kind  engine.CommandType
	item  string
	reply chan response
}

type resetMsg struct {
	conn  ConnID
	reply chan response
}

type snapshotMsg struct{ reply chan response }

type statusMsg struct{ reply chan response }

type closeMsg struct {
	onlyIfIdle bool
	reply      chan response
}

func (joinMsg) isLobbyMsg()     {}
func (leaveMsg) isLobbyMsg()    {}
func (actionMsg) isLobbyMsg()   {}
func (resetMsg) isLobbyMsg()    {}
func (snapshotMsg) isLobbyMsg() {}
func (statusMsg) isLobbyMsg()   {}
func (closeMsg) isLobbyMsg()    {}

// Join seats conn on side. The second join starts the game.
func (l *Lobby) Join(ctx context.Context, conn ConnID, name string, side engine.Side) (Outcome, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, joinMsg{conn: conn, name: name, side: side, reply: reply}, reply)
	if err != nil {
		return Outcome{}, err
	}
	return r.outcome, r.err
}

// Leave removes conn if it is seated. Leaving twice is a no-op.
func (l *Lobby) Leave(ctx context.Context, conn ConnID) (LeaveResult, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, leaveMsg{conn: conn, reply: reply}, reply)
	if err != nil {
		return LeaveResult{}, err
	}
	return r.leave, nil
}

func (l *Lobby) Ban(ctx context.Context, conn ConnID, item string) (Outcome, error) {
	return l.act(ctx, conn, engine.CmdBan, item)
}

func (l *Lobby) Pick(ctx context.Context, conn ConnID, item string) (Outcome, error) {
	return l.act(ctx, conn, engine.CmdPick, item)
}

// Reset restarts the draft from round 1 of the ban phase, whatever the
// current phase and however many players are seated.
func (l *Lobby) Reset(ctx context.Context, conn ConnID) (Outcome, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, resetMsg{conn: conn, reply: reply}, reply)
	if err != nil {
		return Outcome{}, err
	}
	return r.outcome, r.err
}

func (l *Lobby) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, snapshotMsg{reply: reply}, reply)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot, nil
}

func (l *Lobby) Status(ctx context.Context) (Status, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, statusMsg{reply: reply}, reply)
	if err != nil {
		return Status{}, err
	}
	return r.status, nil
}

// CloseIfIdle stops the lobby only if it has seen no activity for longer
// than the idle timeout. It returns the members that were still seated.
func (l *Lobby) CloseIfIdle(ctx context.Context) ([]Member, bool, error) {
	return l.close(ctx, true)
}

// Close stops the lobby unconditionally.
func (l *Lobby) Close(ctx context.Context) ([]Member, error) {
	members, _, err := l.close(ctx, false)
	return members, err
}

func (l *Lobby) close(ctx context.Context, onlyIfIdle bool) ([]Member, bool, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, closeMsg{onlyIfIdle: onlyIfIdle, reply: reply}, reply)
	if err != nil {
		return nil, false, err
	}
	return r.members, r.closed, nil
}

func (l *Lobby) act(ctx context.Context, conn ConnID, kind engine.CommandType, item string) (Outcome, error) {
	reply := make(chan response, 1)
	r, err := l.call(ctx, actionMsg{conn: conn, kind: kind, item: item, reply: reply}, reply)
	if err != nil {
		return Outcome{}, err
	}
	return r.outcome, r.err
}

// call hands m to the loop and waits for its reply. A request that reaches
// a stopped lobby fails with ErrRoomClosed; one the loop already answered
// is never reported as closed.
func (l *Lobby) call(ctx context.Context, m msg, reply <-chan response) (response, error) {
	select {
	case l.inbox <- m:
	case <-l.done:
		return response{}, ErrRoomClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, nil
	case <-l.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return response{}, ErrRoomClosed
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}
