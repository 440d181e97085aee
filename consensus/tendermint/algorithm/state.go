package algorithm

// State is a replica's (height, round, step, locked, valid) tuple. Height
// is immutable for the lifetime of an instance; a new height is always a
// fresh State (see New) — locked/valid never cross a height boundary.
type State struct {
	Height uint64
	Round  int64
	Step   RoundStep
	Locked *RoundValue
	Valid  *RoundValue
}

// New returns the initial State for a height: round 0, step NewRound, no
// lock, no valid value.
func New(height uint64) State {
	return State{
		Height: height,
		Round:  0,
		Step:   NewRound,
	}
}

// withRound returns a copy of s with Round set to round. Purely functional:
// the receiver is never mutated.
func (s State) withRound(round int64) State {
	s.Round = round
	return s
}

// withStep returns a copy of s with Step set to step.
func (s State) withStep(step RoundStep) State {
	s.Step = step
	return s
}

// withLocked returns a copy of s with Locked set to {s.Round, value}. This
// is the only operator that sets Locked, and it is always paired with
// withValid at the same call site (see handlePolkaValuePrevote).
func (s State) withLocked(value Value) State {
	s.Locked = &RoundValue{Round: s.Round, Value: value}
	return s
}

// withValid returns a copy of s with Valid set to {s.Round, value}.
func (s State) withValid(value Value) State {
	s.Valid = &RoundValue{Round: s.Round, Value: value}
	return s
}
