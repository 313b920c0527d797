package engine

import "fmt"

type trigger string

const (
	trigStart     trigger = "start"
	trigBansDone  trigger = "bans-done"  // ban quota met, round has picks
	trigRoundDone trigger = "round-done" // round finished, another ban round follows
	trigDraftDone trigger = "draft-done" // round finished, nothing follows
)

type transitionKey struct {
	From Phase
	On   trigger
}

// transitions is the full phase table. Reset and abort bypass it: they
// rebuild the state from scratch regardless of the current phase.
var transitions = map[transitionKey]Phase{
	{PhaseWaiting, trigStart}:  PhaseBan,
	{PhaseBan, trigBansDone}:   PhasePick,
	{PhaseBan, trigRoundDone}:  PhaseBan,
	{PhaseBan, trigDraftDone}:  PhaseComplete,
	{PhasePick, trigRoundDone}: PhaseBan,
	{PhasePick, trigDraftDone}: PhaseComplete,
}

func transition(from Phase, on trigger) (Phase, error) {
	to, ok := transitions[transitionKey{From: from, On: on}]
	if !ok {
		return from, fmt.Errorf("%w: no transition from %s on %s", ErrWrongPhase, from, on)
	}
	return to, nil
}

// NextBanSide picks who bans next once current has banned: the other side
// if it is still under quota, otherwise current keeps going.
func NextBanSide(counts map[Side]int, quota int, current Side) Side {
	other := current.Other()
	if counts[other] < quota {
		return other
	}
	return current
}

func BanQuotaMet(counts map[Side]int, quota int) bool {
	return counts[SideBlue] >= quota && counts[SideRed] >= quota
}

// NextPickProgress records one more pick against the current step. done is
// true once the last step of the sequence has been filled.
func NextPickProgress(steps []PickStep, p PickProgress) (next PickProgress, done bool) {
	next = PickProgress{StepIndex: p.StepIndex, Count: p.Count + 1}
	if next.Count < steps[next.StepIndex].Count {
		return next, false
	}
	next = PickProgress{StepIndex: p.StepIndex + 1}
	return next, next.StepIndex >= len(steps)
}
