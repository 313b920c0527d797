package lobby

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
)

var ErrRoomFull = errors.New("room is full")
var ErrSideTaken = errors.New("side already taken")
var ErrNameTaken = errors.New("player name already taken")
var ErrNotInRoom = errors.New("not in this room")
var ErrAlreadyJoined = errors.New("already joined")
var ErrRoomClosed = errors.New("room closed")

// MaxPlayers is fixed: one player per side.
const MaxPlayers = 2

// ConnID is the opaque identity of one client connection.
type ConnID string

type Player struct {
	Conn     ConnID
	Name     string
	Side     engine.Side
	JoinedAt time.Time
}

// Member is a delivery target for an outcome.
type Member struct {
	Conn ConnID
	Side engine.Side
}

type RosterEntry struct {
	Name string      `json:"name"`
	Side engine.Side `json:"side"`
}

type Snapshot struct {
	RoomID       string                 `json:"roomId"`
	Version      int                    `json:"version"`
	Phase        engine.Phase           `json:"phase"`
	CurrentRound int                    `json:"currentRound"`
	BannedItems  []engine.BanRecord     `json:"bannedItems"`
	PickedItems  []engine.PickRecord    `json:"pickedItems"`
	CurrentSide  engine.Side            `json:"currentSide"`
	BanCount     map[engine.Side]int    `json:"banCount"`
	PickProgress engine.PickProgress    `json:"pickProgress"`
	Roster       []RosterEntry          `json:"roster"`
	PlayersCount int                    `json:"playersCount"`
	MaxPlayers   int                    `json:"maxPlayers"`
	Schedule     engine.ScheduleSummary `json:"scheduleSummary"`
}

// Outcome is what an accepted mutation hands back to the caller for
// delivery. The lobby never talks to connections itself.
type Outcome struct {
	Snapshot Snapshot
	Members  []Member
	Actor    Player
	Events   []engine.Event
}

// Completed reports whether this outcome finished the draft.
func (o Outcome) Completed() bool {
	return engine.ContainsEvent(o.Events, engine.EvtGameCompleted)
}

type LeaveResult struct {
	Left    bool
	Player  Player
	Empty   bool // lobby closed because nobody is left
	Outcome Outcome
}

type Status struct {
	RoomID       string       `json:"roomId"`
	PlayersCount int          `json:"playersCount"`
	Phase        engine.Phase `json:"phase"`
	CurrentRound int          `json:"currentRound"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActivity time.Time    `json:"lastActivity"`
	IsIdle       bool         `json:"isIdle"`
}

type Options struct {
	IdleTimeout time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

type Lobby struct {
	code    string
	sched   engine.Schedule
	summary engine.ScheduleSummary
	opts    Options
	log     *zap.Logger

	inbox chan msg
	done  chan struct{}
	ctx   context.Context

	// owned by loop
	state        engine.State
	version      int
	players      []Player
	createdAt    time.Time
	lastActivity time.Time
}

func NewLobby(parent context.Context, code string, sched engine.Schedule, opts Options) *Lobby {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	now := opts.Now()

	l := &Lobby{
		code:         code,
		sched:        sched,
		summary:      sched.Summary(),
		opts:         opts,
		log:          opts.Logger.With(zap.String("room", code)),
		inbox:        make(chan msg, 64), // Small buffer
		done:         make(chan struct{}),
		ctx:          parent,
		state:        engine.NewState(sched),
		createdAt:    now,
		lastActivity: now,
	}

	go l.loop()
	l.log.Info("room created")
	return l
}

// Done is closed once the lobby has stopped accepting requests.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return

		case m := <-l.inbox:
			if stop := l.handle(m); stop {
				return
			}
		}
	}
}

// handle runs one request to completion and reports whether the lobby
// should stop.
func (l *Lobby) handle(m msg) bool {
	switch m := m.(type) {
	case joinMsg:
		out, err := l.join(m)
		m.reply <- response{outcome: out, err: err}

	case leaveMsg:
		res := l.leave(m.conn)
		m.reply <- response{leave: res}
		return res.Empty

	case actionMsg:
		out, err := l.action(m)
		m.reply <- response{outcome: out, err: err}

	case resetMsg:
		out, err := l.reset(m.conn)
		m.reply <- response{outcome: out, err: err}

	case snapshotMsg:
		m.reply <- response{snapshot: l.snapshot()}

	case statusMsg:
		m.reply <- response{status: l.status()}

	case closeMsg:
		idle := l.idle()
		if m.onlyIfIdle && !idle {
			m.reply <- response{}
			return false
		}
		l.log.Info("room closed", zap.Bool("idle", idle), zap.Int("players", len(l.players)))
		m.reply <- response{closed: true, members: l.members()}
		return true
	}
	return false
}

func (l *Lobby) join(m joinMsg) (Outcome, error) {
	if _, ok := l.player(m.conn); ok {
		return Outcome{}, ErrAlreadyJoined
	}
	if len(l.players) >= MaxPlayers {
		return Outcome{}, ErrRoomFull
	}
	if slices.ContainsFunc(l.players, func(p Player) bool { return p.Side == m.side }) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrSideTaken, m.side)
	}
	if slices.ContainsFunc(l.players, func(p Player) bool { return strings.EqualFold(p.Name, m.name) }) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNameTaken, m.name)
	}

	p := Player{Conn: m.conn, Name: m.name, Side: m.side, JoinedAt: l.opts.Now()}
	l.players = append(l.players, p)
	l.touch()
	l.log.Info("player joined", zap.String("player", p.Name), zap.String("side", string(p.Side)))

	var events []engine.Event
	if len(l.players) == MaxPlayers && l.state.Phase == engine.PhaseWaiting {
		evs, next, err := engine.Apply(l.sched, l.state, engine.Command{Type: engine.CmdStart, At: l.opts.Now()})
		if err != nil {
			return Outcome{}, err
		}
		l.state = next
		events = evs
		l.log.Info("game started")
	}
	l.version++
	return l.outcome(p, events), nil
}

func (l *Lobby) leave(conn ConnID) LeaveResult {
	idx := slices.IndexFunc(l.players, func(p Player) bool { return p.Conn == conn })
	if idx < 0 {
		return LeaveResult{}
	}
	p := l.players[idx]
	l.players = slices.Delete(l.players, idx, idx+1)
	l.touch()
	l.log.Info("player left", zap.String("player", p.Name))

	var events []engine.Event
	if l.state.Phase != engine.PhaseWaiting && len(l.players) < MaxPlayers {
		evs, next, _ := engine.Apply(l.sched, l.state, engine.Command{Type: engine.CmdAbort})
		l.state = next
		events = evs
		l.log.Info("game reset to waiting")
	}
	l.version++

	res := LeaveResult{Left: true, Player: p, Empty: len(l.players) == 0}
	res.Outcome = l.outcome(p, events)
	return res
}

func (l *Lobby) action(m actionMsg) (Outcome, error) {
	p, ok := l.player(m.conn)
	if !ok {
		return Outcome{}, ErrNotInRoom
	}
	evs, next, err := engine.Apply(l.sched, l.state, engine.Command{
		Type:   m.kind,
		Side:   p.Side,
		Player: p.Name,
		Item:   m.item,
		At:     l.opts.Now(),
	})
	if err != nil {
		return Outcome{}, err
	}

	l.state = next
	l.version++
	l.touch()
	l.log.Debug("action accepted",
		zap.String("action", string(m.kind)),
		zap.String("item", m.item),
		zap.String("player", p.Name))
	if l.state.Phase == engine.PhaseComplete {
		l.log.Info("game completed")
	}
	return l.outcome(p, evs), nil
}

func (l *Lobby) reset(conn ConnID) (Outcome, error) {
	p, ok := l.player(conn)
	if !ok {
		return Outcome{}, ErrNotInRoom
	}
	evs, next, err := engine.Apply(l.sched, l.state, engine.Command{Type: engine.CmdReset})
	if err != nil {
		return Outcome{}, err
	}
	l.state = next
	l.version++
	l.touch()
	l.log.Info("game reset", zap.String("by", p.Name))
	return l.outcome(p, evs), nil
}

func (l *Lobby) outcome(actor Player, events []engine.Event) Outcome {
	return Outcome{
		Snapshot: l.snapshot(),
		Members:  l.members(),
		Actor:    actor,
		Events:   events,
	}
}

func (l *Lobby) snapshot() Snapshot {
	st := l.state.Clone()
	roster := make([]RosterEntry, 0, len(l.players))
	for _, p := range l.players {
		roster = append(roster, RosterEntry{Name: p.Name, Side: p.Side})
	}
	return Snapshot{
		RoomID:       l.code,
		Version:      l.version,
		Phase:        st.Phase,
		CurrentRound: st.Round,
		BannedItems:  st.Bans,
		PickedItems:  st.Picks,
		CurrentSide:  st.CurrentSide,
		BanCount:     st.BanCount,
		PickProgress: st.PickProgress,
		Roster:       roster,
		PlayersCount: len(l.players),
		MaxPlayers:   MaxPlayers,
		Schedule:     l.summary,
	}
}

func (l *Lobby) status() Status {
	return Status{
		RoomID:       l.code,
		PlayersCount: len(l.players),
		Phase:        l.state.Phase,
		CurrentRound: l.state.Round,
		CreatedAt:    l.createdAt,
		LastActivity: l.lastActivity,
		IsIdle:       l.idle(),
	}
}

func (l *Lobby) members() []Member {
	out := make([]Member, 0, len(l.players))
	for _, p := range l.players {
		out = append(out, Member{Conn: p.Conn, Side: p.Side})
	}
	return out
}

func (l *Lobby) player(conn ConnID) (Player, bool) {
	for _, p := range l.players {
		if p.Conn == conn {
			return p, true
		}
	}
	return Player{}, false
}

func (l *Lobby) touch() {
	l.lastActivity = l.opts.Now()
}

func (l *Lobby) idle() bool {
	if l.opts.IdleTimeout <= 0 {
		return false
	}
	return l.opts.Now().Sub(l.lastActivity) > l.opts.IdleTimeout
}
