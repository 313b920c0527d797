package engine

// NewState is the waiting state a room sits in until both sides are filled.
func NewState(sched Schedule) State {
	s := StartState(sched)
	s.Phase = PhaseWaiting
	return s
}

// StartState is round 1 of the ban phase with nothing committed.
func StartState(sched Schedule) State {
	first := SideBlue
	if r, ok := sched.BanRound(1); ok {
		first = r.FirstSide
	}
	return State{
		Phase:        PhaseBan,
		Round:        1,
		Bans:         []BanRecord{},
		Picks:        []PickRecord{},
		CurrentSide:  first,
		BanCount:     map[Side]int{SideBlue: 0, SideRed: 0},
		PickProgress: PickProgress{},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// InProgress is true during ban and pick.
func (p Phase) InProgress() bool {
	return p == PhaseBan || p == PhasePick
}
