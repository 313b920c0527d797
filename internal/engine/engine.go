package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrWrongPhase = errors.New("wrong phase")
var ErrNotYourTurn = errors.New("not your turn")
var ErrItemUnavailable = errors.New("item unavailable")
var ErrInvalidRound = errors.New("invalid round")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Side string

const (
	SideBlue Side = "Blue"
	SideRed  Side = "Red"
)

func (s Side) Other() Side {
	if s == SideBlue {
		return SideRed
	}
	return SideBlue
}

func (s Side) Valid() bool {
	return s == SideBlue || s == SideRed
}

func ParseSide(v string) (Side, bool) {
	switch v {
	case "Blue", "blue":
		return SideBlue, true
	case "Red", "red":
		return SideRed, true
	default:
		return "", false
	}
}

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseBan      Phase = "ban"
	PhasePick     Phase = "pick"
	PhaseComplete Phase = "complete"
)

type BanRecord struct {
	Item   string    `json:"item"`
	Side   Side      `json:"side"`
	Round  int       `json:"round"`
	Player string    `json:"player"`
	At     time.Time `json:"timestamp"`
}

type PickRecord struct {
	Item   string    `json:"item"`
	Side   Side      `json:"side"`
	Round  int       `json:"round"`
	Step   int       `json:"step"` // index into the round's pick sequence
	Player string    `json:"player"`
	At     time.Time `json:"timestamp"`
}

type PickProgress struct {
	StepIndex int `json:"stepIndex"`
	Count     int `json:"count"`
}

// State is one room's game state. Apply never mutates its input; every
// accepted command yields a fresh State.
type State struct {
	Phase        Phase        `json:"phase"`
	Round        int          `json:"currentRound"`
	Bans         []BanRecord  `json:"bannedItems"`
	Picks        []PickRecord `json:"pickedItems"`
	CurrentSide  Side         `json:"currentSide"`
	BanCount     map[Side]int `json:"banCount"`
	PickProgress PickProgress `json:"pickProgress"`
}

type CommandType string

const (
	CmdStart CommandType = "Start"
	CmdBan   CommandType = "Ban"
	CmdPick  CommandType = "Pick"
	CmdReset CommandType = "Reset"
	CmdAbort CommandType = "Abort" // back to waiting when a player drops mid-game
)

/*
	CmdStart -> EvtGameStarted
	CmdBan   -> EvtItemBanned -> EvtTurnAdvanced | EvtPhaseAdvanced | EvtRoundAdvanced | EvtGameCompleted
	CmdPick  -> EvtItemPicked -> EvtTurnAdvanced | EvtPhaseAdvanced | EvtRoundAdvanced | EvtGameCompleted
	CmdReset -> EvtGameReset
	CmdAbort -> EvtGameAborted
*/

type Command struct {
	Type   CommandType
	Side   Side
	Player string
	Item   string
	At     time.Time
}

type EventType string

const (
	EvtGameStarted   EventType = "GameStarted"
	EvtItemBanned    EventType = "ItemBanned"
	EvtItemPicked    EventType = "ItemPicked"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtPhaseAdvanced EventType = "PhaseAdvanced"
	EvtRoundAdvanced EventType = "RoundAdvanced"
	EvtGameCompleted EventType = "GameCompleted"
	EvtGameReset     EventType = "GameReset"
	EvtGameAborted   EventType = "GameAborted"
)

type Event struct {
	Type  EventType
	Side  Side
	Item  string
	Round int
	Phase Phase
}

func Apply(sched Schedule, s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdStart:
		next, err := transition(s.Phase, trigStart)
		if err != nil {
			return nil, s, err
		}
		newState := StartState(sched)
		newState.Phase = next
		return []Event{{Type: EvtGameStarted, Side: newState.CurrentSide, Round: 1, Phase: next}}, newState, nil

	case CmdReset:
		newState := StartState(sched)
		return []Event{{Type: EvtGameReset, Side: newState.CurrentSide, Round: 1, Phase: newState.Phase}}, newState, nil

	case CmdAbort:
		newState := NewState(sched)
		return []Event{{Type: EvtGameAborted, Phase: newState.Phase}}, newState, nil

	case CmdBan:
		return applyBan(sched, s, cmd)

	case CmdPick:
		return applyPick(sched, s, cmd)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyBan(sched Schedule, s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseBan {
		return nil, s, fmt.Errorf("%w: cannot ban during %s phase", ErrWrongPhase, s.Phase)
	}
	if cmd.Side != s.CurrentSide {
		return nil, s, fmt.Errorf("%w: %s is banning", ErrNotYourTurn, s.CurrentSide)
	}
	round, ok := sched.BanRound(s.Round)
	if !ok {
		return nil, s, fmt.Errorf("%w: no ban round %d", ErrInvalidRound, s.Round)
	}
	if err := checkItem(sched, s, cmd.Item); err != nil {
		return nil, s, err
	}

	newState := s.Clone()
	newState.Bans = append(newState.Bans, BanRecord{
		Item:   cmd.Item,
		Side:   cmd.Side,
		Round:  s.Round,
		Player: cmd.Player,
		At:     cmd.At,
	})
	newState.BanCount[cmd.Side]++
	newState.CurrentSide = NextBanSide(newState.BanCount, round.CountPerSide, cmd.Side)

	events := []Event{{Type: EvtItemBanned, Side: cmd.Side, Item: cmd.Item, Round: s.Round, Phase: PhaseBan}}

	if BanQuotaMet(newState.BanCount, round.CountPerSide) {
		return advance(sched, events, newState)
	}
	events = append(events, Event{Type: EvtTurnAdvanced, Side: newState.CurrentSide, Round: s.Round, Phase: PhaseBan})
	return events, newState, nil
}

func applyPick(sched Schedule, s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhasePick {
		return nil, s, fmt.Errorf("%w: cannot pick during %s phase", ErrWrongPhase, s.Phase)
	}
	steps, ok := sched.PickRound(s.Round)
	if !ok || s.PickProgress.StepIndex >= len(steps) {
		return nil, s, fmt.Errorf("%w: no pick step %d in round %d", ErrInvalidRound, s.PickProgress.StepIndex, s.Round)
	}
	step := steps[s.PickProgress.StepIndex]
	if cmd.Side != step.Side {
		return nil, s, fmt.Errorf("%w: %s is picking", ErrNotYourTurn, step.Side)
	}
	if err := checkItem(sched, s, cmd.Item); err != nil {
		return nil, s, err
	}

	newState := s.Clone()
	newState.Picks = append(newState.Picks, PickRecord{
		Item:   cmd.Item,
		Side:   cmd.Side,
		Round:  s.Round,
		Step:   s.PickProgress.StepIndex,
		Player: cmd.Player,
		At:     cmd.At,
	})

	events := []Event{{Type: EvtItemPicked, Side: cmd.Side, Item: cmd.Item, Round: s.Round, Phase: PhasePick}}

	progress, done := NextPickProgress(steps, newState.PickProgress)
	newState.PickProgress = progress
	if done {
		return advance(sched, events, newState)
	}
	newState.CurrentSide = steps[progress.StepIndex].Side
	events = append(events, Event{Type: EvtTurnAdvanced, Side: newState.CurrentSide, Round: s.Round, Phase: PhasePick})
	return events, newState, nil
}

// advance closes the current ban or pick phase and moves to whatever the
// schedule defines next.
func advance(sched Schedule, events []Event, s State) ([]Event, State, error) {
	trig := nextTrigger(sched, s)
	next, err := transition(s.Phase, trig)
	if err != nil {
		return nil, s, err
	}

	switch trig {
	case trigBansDone:
		steps, _ := sched.PickRound(s.Round)
		s.Phase = next
		s.PickProgress = PickProgress{}
		s.CurrentSide = steps[0].Side
		events = append(events, Event{Type: EvtPhaseAdvanced, Side: s.CurrentSide, Round: s.Round, Phase: next})

	case trigRoundDone:
		round, _ := sched.BanRound(s.Round + 1)
		s.Phase = next
		s.Round++
		s.CurrentSide = round.FirstSide
		s.BanCount = map[Side]int{SideBlue: 0, SideRed: 0}
		s.PickProgress = PickProgress{}
		events = append(events, Event{Type: EvtRoundAdvanced, Side: s.CurrentSide, Round: s.Round, Phase: next})

	case trigDraftDone:
		s.Phase = next
		events = append(events, Event{Type: EvtGameCompleted, Round: s.Round, Phase: next})
	}
	return events, s, nil
}

func nextTrigger(sched Schedule, s State) trigger {
	if s.Phase == PhaseBan {
		if _, ok := sched.PickRound(s.Round); ok {
			return trigBansDone
		}
	}
	if _, ok := sched.BanRound(s.Round + 1); ok {
		return trigRoundDone
	}
	return trigDraftDone
}

func checkItem(sched Schedule, s State, item string) error {
	if !sched.HasItem(item) {
		return fmt.Errorf("%w: %q is not in the item pool", ErrItemUnavailable, item)
	}
	if hasBan(s, item) || hasPick(s, item) {
		return fmt.Errorf("%w: %q already banned or picked", ErrItemUnavailable, item)
	}
	return nil
}

func hasBan(s State, item string) bool {
	return slices.ContainsFunc(s.Bans, func(b BanRecord) bool { return b.Item == item })
}

func hasPick(s State, item string) bool {
	return slices.ContainsFunc(s.Picks, func(p PickRecord) bool { return p.Item == item })
}

// Clone returns a deep copy so callers can hand out a State without sharing
// its slices or counters.
func (s State) Clone() State {
	c := s
	c.Bans = slices.Clone(s.Bans)
	c.Picks = slices.Clone(s.Picks)
	if c.Bans == nil {
		c.Bans = []BanRecord{}
	}
	if c.Picks == nil {
		c.Picks = []PickRecord{}
	}
	c.BanCount = map[Side]int{SideBlue: s.BanCount[SideBlue], SideRed: s.BanCount[SideRed]}
	return c
}

// Available reports whether item has not been banned or picked yet.
func (s State) Available(item string) bool {
	return !hasBan(s, item) && !hasPick(s, item)
}
