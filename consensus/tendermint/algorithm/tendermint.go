package algorithm

// Next is the core transition function: total over (State, Event), exhaustive
// over every (step, event) combination named in the spec. Any combination not
// matched by a rule below returns the state unchanged with no message — an
// event arriving in a step-inapplicable state is a normal, silent no-op
// under asynchrony (see package core for what the driver does with that).
//
// Rules are tried in the order below and the first match wins; later rules
// with weaker guards (e.g. the untagged PrecommitAny/PrecommitValue/
// TimeoutPrecommit rules) are only reached once every step-specific rule
// above them has failed to match.
func Next(s State, e Event) (State, *Message) {
	// I3 / Q1: once committed, the height is decided and nothing further
	// can move this State; a later PrecommitValue for the same or a
	// different value is a no-op rather than a re-decision.
	if s.Step == Commit {
		return s, nil
	}

	round := s.Round

	switch {
	case s.Step == NewRound && e.Type == EventNewRoundProposer:
		return handleNewRoundProposer(s, e.Round, e.Value)

	case s.Step == NewRound && e.Type == EventNewRound:
		return handleNewRound(s, e.Round)

	case s.Step == Propose && e.Type == EventProposal && e.Round == round:
		return handleProposal(s, e.Value)

	case s.Step == Propose && e.Type == EventProposalInvalid && e.Round == round:
		return handleProposalInvalid(s)

	case s.Step == Propose && e.Type == EventProposalPolka && e.Round == round:
		return handleProposalPolka(s, e.PolkaRound, e.Value)

	case s.Step == Propose && e.Type == EventTimeoutPropose && e.Round == round:
		return handleTimeoutPropose(s)

	case s.Step == Prevote && e.Type == EventPolkaAny && e.Round == round:
		return handlePolkaAny(s)

	case s.Step == Prevote && e.Type == EventPolkaNil && e.Round == round:
		return handlePolkaNil(s)

	case s.Step == Prevote && e.Type == EventPolkaValue && e.Round == round:
		return handlePolkaValuePrevote(s, e.Value)

	case s.Step == Prevote && e.Type == EventTimeoutPrevote && e.Round == round:
		return handleTimeoutPrevote(s)

	case s.Step == Precommit && e.Type == EventPolkaValue && e.Round == round:
		return handlePolkaValuePrecommit(s, e.Value)

	case e.Type == EventPrecommitAny && e.Round == round:
		return handlePrecommitAny(s)

	case e.Type == EventPrecommitValue:
		return handlePrecommitValue(s, e.Round, e.Value)

	case e.Type == EventRoundSkipProposer && e.Round > round:
		return handleNewRoundProposer(s, e.Round, e.Value)

	case e.Type == EventRoundSkip && e.Round > round:
		return handleNewRound(s, e.Round)

	case e.Type == EventTimeoutPrecommitProposer && e.Round == round:
		return handleNewRoundProposer(s, round+1, e.Value)

	case e.Type == EventTimeoutPrecommit && e.Round+1 > round:
		// Q2: guarded to prevent a stale timeout from regressing the round;
		// the spec's reference text leaves this unguarded but round
		// monotonicity (I2) requires it.
		return handleNewRound(s, round+1)
	}

	return s, nil
}

// H-Propose-self (11/14): we are the proposer for round r. Re-propose the
// valid value if we have one (preserving safety across rounds), else
// propose the fresh value carried by the event.
func handleNewRoundProposer(s State, r int64, v Value) (State, *Message) {
	s = s.withRound(r).withStep(Propose)
	value, polRound := v, int64(-1)
	if s.Valid != nil {
		value, polRound = s.Valid.Value, s.Valid.Round
	}
	return s, proposalMessage(r, value, polRound)
}

// H-Propose-other (11/20): we are not the proposer for round r. Arm a
// propose timer.
func handleNewRound(s State, r int64) (State, *Message) {
	s = s.withRound(r).withStep(Propose)
	return s, timeoutMessage(s.Round, s.Step)
}

// H-Prevote-new (22): a complete proposal with no referenced polka round.
// Never prevote for a value that contradicts a prior lock.
func handleProposal(s State, proposed Value) (State, *Message) {
	s = s.withStep(Prevote)
	if s.Locked != nil && s.Locked.Value != proposed {
		return s, prevoteMessage(s.Round, nil)
	}
	return s, prevoteMessage(s.Round, &proposed)
}

// H-Prevote-nil (22/25): an invalid proposal.
func handleProposalInvalid(s State) (State, *Message) {
	s = s.withStep(Prevote)
	return s, prevoteMessage(s.Round, nil)
}

// H-Prevote-polka (28): a proposal referencing a past polka at round
// vr < round. We may safely prevote the proposed value if we hold no lock,
// if the past polka is at least as recent as our lock, or if we are
// already locked on exactly this value.
func handleProposalPolka(s State, vr int64, proposed Value) (State, *Message) {
	s = s.withStep(Prevote)
	if s.Locked == nil || s.Locked.Round <= vr || s.Locked.Value == proposed {
		return s, prevoteMessage(s.Round, &proposed)
	}
	return s, prevoteMessage(s.Round, nil)
}

// H-Prevote-nil (57): the propose timer fired before a proposal arrived.
func handleTimeoutPropose(s State) (State, *Message) {
	s = s.withStep(Prevote)
	return s, prevoteMessage(s.Round, nil)
}

// H-Arm-Prevote-timer (34): a polka for any value arms the prevote timer.
// Harmless to re-arm; the driver is responsible for only scheduling once.
func handlePolkaAny(s State) (State, *Message) {
	return s, timeoutMessage(s.Round, Prevote)
}

// H-Precommit-nil (44): a polka for nil.
func handlePolkaNil(s State) (State, *Message) {
	s = s.withStep(Precommit)
	return s, precommitMessage(s.Round, nil)
}

// H-Lock-Precommit (36/37): a polka for value v while prevoting. This is
// the only path that sets Locked (and it always advances Valid alongside
// it to the same round/value, preserving I1).
func handlePolkaValuePrevote(s State, v Value) (State, *Message) {
	s = s.withLocked(v).withValid(v).withStep(Precommit)
	return s, precommitMessage(s.Round, &v)
}

// H-Set-Valid-only (36/42): a polka for value v observed while already
// precommitting. Only Valid advances; no message is emitted.
func handlePolkaValuePrecommit(s State, v Value) (State, *Message) {
	s = s.withValid(v)
	return s, nil
}

// H-Precommit-nil (61): the prevote timer fired.
func handleTimeoutPrevote(s State) (State, *Message) {
	s = s.withStep(Precommit)
	return s, precommitMessage(s.Round, nil)
}

// H-Arm-Precommit-timer (47): a polka of precommits for any value arms the
// precommit timer.
func handlePrecommitAny(s State) (State, *Message) {
	return s, timeoutMessage(s.Round, Precommit)
}

// H-Decide (49): two-thirds-plus precommits for a specific value. Terminal
// for this height; no round guard, matching the reference (a decision can
// be recognised regardless of which round the replica currently occupies).
func handlePrecommitValue(s State, r int64, v Value) (State, *Message) {
	s = s.withStep(Commit)
	return s, decisionMessage(r, v)
}
