package engine

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

type BanRound struct {
	FirstSide    Side `json:"firstSide"`
	CountPerSide int  `json:"countPerSide"`
}

type PickStep struct {
	Side  Side `json:"side"`
	Count int  `json:"count"`
}

// Schedule is the draft layout. It is loaded once at startup and only read
// afterwards.
type Schedule struct {
	BanRounds  map[int]BanRound   `json:"banRounds"`
	PickRounds map[int][]PickStep `json:"pickRounds"`
	Items      []string           `json:"items,omitempty"`
}

// ScheduleSummary is what observers get in every snapshot.
type ScheduleSummary struct {
	BanRounds  map[int]BanRound   `json:"banRounds"`
	PickRounds map[int][]PickStep `json:"pickRounds"`
}

func DefaultSchedule() Schedule {
	return Schedule{
		BanRounds: map[int]BanRound{
			1: {FirstSide: SideBlue, CountPerSide: 3},
			2: {FirstSide: SideRed, CountPerSide: 2},
		},
		PickRounds: map[int][]PickStep{
			1: {
				{Side: SideBlue, Count: 1},
				{Side: SideRed, Count: 2},
				{Side: SideBlue, Count: 2},
				{Side: SideRed, Count: 1},
			},
			2: {
				{Side: SideRed, Count: 1},
				{Side: SideBlue, Count: 2},
				{Side: SideRed, Count: 1},
			},
		},
	}
}

func (s Schedule) BanRound(round int) (BanRound, bool) {
	r, ok := s.BanRounds[round]
	return r, ok
}

// PickRound reports false for rounds without picks, including an empty
// sequence.
func (s Schedule) PickRound(round int) ([]PickStep, bool) {
	steps, ok := s.PickRounds[round]
	return steps, ok && len(steps) > 0
}

// HasItem reports whether item may be banned or picked. An empty catalog
// accepts any non-empty item.
func (s Schedule) HasItem(item string) bool {
	if item == "" {
		return false
	}
	if len(s.Items) == 0 {
		return true
	}
	return slices.Contains(s.Items, item)
}

func (s Schedule) Summary() ScheduleSummary {
	sum := ScheduleSummary{
		BanRounds:  make(map[int]BanRound, len(s.BanRounds)),
		PickRounds: make(map[int][]PickStep, len(s.PickRounds)),
	}
	for k, v := range s.BanRounds {
		sum.BanRounds[k] = v
	}
	for k, v := range s.PickRounds {
		sum.PickRounds[k] = slices.Clone(v)
	}
	return sum
}

// Validate checks that ban rounds run 1..N without gaps and that every
// quota is positive.
func (s Schedule) Validate() error {
	if len(s.BanRounds) == 0 {
		return fmt.Errorf("%w: no ban rounds", ErrInvalidSchedule)
	}
	for i := 1; i <= len(s.BanRounds); i++ {
		r, ok := s.BanRounds[i]
		if !ok {
			return fmt.Errorf("%w: ban round %d missing", ErrInvalidSchedule, i)
		}
		if !r.FirstSide.Valid() {
			return fmt.Errorf("%w: ban round %d: unknown side %q", ErrInvalidSchedule, i, r.FirstSide)
		}
		if r.CountPerSide <= 0 {
			return fmt.Errorf("%w: ban round %d: countPerSide must be positive", ErrInvalidSchedule, i)
		}
	}
	for round, steps := range s.PickRounds {
		if _, ok := s.BanRounds[round]; !ok {
			return fmt.Errorf("%w: pick round %d has no ban round", ErrInvalidSchedule, round)
		}
		for i, st := range steps {
			if !st.Side.Valid() {
				return fmt.Errorf("%w: pick round %d step %d: unknown side %q", ErrInvalidSchedule, round, i, st.Side)
			}
			if st.Count <= 0 {
				return fmt.Errorf("%w: pick round %d step %d: count must be positive", ErrInvalidSchedule, round, i)
			}
		}
	}
	seen := make(map[string]bool, len(s.Items))
	for _, it := range s.Items {
		if it == "" || seen[it] {
			return fmt.Errorf("%w: empty or duplicate item %q", ErrInvalidSchedule, it)
		}
		seen[it] = true
	}
	return nil
}
