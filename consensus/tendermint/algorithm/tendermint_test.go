package algorithm

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(b byte) Value {
	var val Value
	val[0] = b
	return val
}

var (
	v1 = v(1)
	v2 = v(2)
)

// Scenario 1: proposer happy path, fresh value.
func TestScenarioProposerFreshValue(t *testing.T) {
	s := New(0)
	s, msg := Next(s, NewRoundProposerEvent(0, v1))

	require.NotNil(t, msg)
	assert.Equal(t, MessageProposal, msg.Type)
	assert.Equal(t, int64(0), msg.Round)
	assert.Equal(t, v1, *msg.Value)
	assert.Equal(t, int64(-1), msg.PolRound)

	assert.Equal(t, int64(0), s.Round)
	assert.Equal(t, Propose, s.Step)
	assert.Nil(t, s.Locked)
	assert.Nil(t, s.Valid)
}

// Scenario 2: non-proposer proposal -> prevote -> lock -> decide.
func TestScenarioNonProposerToDecision(t *testing.T) {
	s := New(0)

	s, msg := Next(s, NewRoundEvent(0))
	require.NotNil(t, msg)
	assert.Equal(t, MessageTimeout, msg.Type)
	assert.Equal(t, Propose, msg.TimeoutStep)

	s, msg = Next(s, ProposalEvent(0, v1))
	require.NotNil(t, msg)
	assert.Equal(t, MessagePrevote, msg.Type)
	require.NotNil(t, msg.Value)
	assert.Equal(t, v1, *msg.Value)

	s, msg = Next(s, PolkaValueEvent(0, v1))
	require.NotNil(t, msg)
	assert.Equal(t, MessagePrecommit, msg.Type)
	require.NotNil(t, msg.Value)
	assert.Equal(t, v1, *msg.Value)
	require.NotNil(t, s.Locked)
	assert.Equal(t, RoundValue{Round: 0, Value: v1}, *s.Locked)
	require.NotNil(t, s.Valid)
	assert.Equal(t, RoundValue{Round: 0, Value: v1}, *s.Valid)

	s, msg = Next(s, PrecommitValueEvent(0, v1))
	require.NotNil(t, msg)
	assert.Equal(t, MessageDecision, msg.Type)
	assert.Equal(t, int64(0), msg.Round)
	assert.Equal(t, v1, msg.DecisionValue)
	assert.Equal(t, Commit, s.Step)
	assert.Equal(t, RoundValue{Round: 0, Value: v1}, *s.Locked)
	assert.Equal(t, RoundValue{Round: 0, Value: v1}, *s.Valid)
}

// Scenario 3: a lock prevents prevoting for a conflicting proposal at a
// later round reached via a precommit timeout.
func TestScenarioLockPreventsConflictingPrevote(t *testing.T) {
	s := New(0)
	s, _ = Next(s, NewRoundEvent(0))
	s, _ = Next(s, ProposalEvent(0, v1))
	s, _ = Next(s, PolkaValueEvent(0, v1))
	require.Equal(t, Precommit, s.Step)

	s, msg := Next(s, TimeoutPrecommitEvent(0))
	require.NotNil(t, msg)
	assert.Equal(t, MessageTimeout, msg.Type)
	assert.Equal(t, int64(1), msg.Round)
	assert.Equal(t, Propose, msg.TimeoutStep)
	assert.Equal(t, int64(1), s.Round)

	s, msg = Next(s, ProposalEvent(1, v2))
	require.NotNil(t, msg)
	assert.Equal(t, MessagePrevote, msg.Type)
	assert.Equal(t, int64(1), msg.Round)
	assert.Nil(t, msg.Value)
	assert.Equal(t, Prevote, s.Step)
}

// Scenario 4: unlock via a ProposalPolka referencing a polka at least as
// recent as the lock.
func TestScenarioUnlockViaProposalPolka(t *testing.T) {
	s := New(0)
	s, _ = Next(s, NewRoundEvent(0))
	s, _ = Next(s, ProposalEvent(0, v1))
	s, _ = Next(s, PolkaValueEvent(0, v1))
	s, _ = Next(s, TimeoutPrecommitEvent(0))
	require.Equal(t, int64(1), s.Round)
	require.Equal(t, RoundValue{Round: 0, Value: v1}, *s.Locked)

	s, msg := Next(s, ProposalPolkaEvent(1, 0, v2))
	require.NotNil(t, msg)
	assert.Equal(t, MessagePrevote, msg.Type)
	require.NotNil(t, msg.Value)
	assert.Equal(t, v2, *msg.Value)
	assert.Equal(t, Prevote, s.Step)
}

// Scenario 5: round skip jumps forward and arms a propose timeout.
func TestScenarioRoundSkip(t *testing.T) {
	s := New(0)
	s, _ = Next(s, NewRoundEvent(0))
	s, _ = Next(s, ProposalEvent(0, v1))
	require.Equal(t, Prevote, s.Step)

	s, msg := Next(s, RoundSkipEvent(5))
	require.NotNil(t, msg)
	assert.Equal(t, MessageTimeout, msg.Type)
	assert.Equal(t, int64(5), msg.Round)
	assert.Equal(t, int64(5), s.Round)
	assert.Equal(t, Propose, s.Step)
}

// Scenario 5b: round skip as proposer jumps forward and proposes the fresh
// value carried by the event, rather than arming a propose timeout.
func TestScenarioRoundSkipProposer(t *testing.T) {
	s := New(0)
	s, _ = Next(s, NewRoundEvent(0))
	s, _ = Next(s, ProposalEvent(0, v1))
	require.Equal(t, Prevote, s.Step)

	s, msg := Next(s, RoundSkipProposerEvent(5, v2))
	require.NotNil(t, msg)
	assert.Equal(t, MessageProposal, msg.Type)
	assert.Equal(t, int64(5), msg.Round)
	require.NotNil(t, msg.Value)
	assert.Equal(t, v2, *msg.Value)
	assert.Equal(t, int64(-1), msg.PolRound)
	assert.Equal(t, int64(5), s.Round)
	assert.Equal(t, Propose, s.Step)
}

// Scenario 6: a stale event (round behind the State's current round) is
// dropped silently.
func TestScenarioStaleEventDropped(t *testing.T) {
	s := State{Height: 0, Round: 3, Step: Prevote}
	s2, msg := Next(s, PolkaAnyEvent(2))
	assert.Nil(t, msg)
	assert.Equal(t, s, s2)
}

// Commit is terminal: no event after Commit changes state or emits a
// message (I3 / P5).
func TestCommitIsTerminal(t *testing.T) {
	s := State{Height: 7, Round: 2, Step: Commit}
	s2, msg := Next(s, PrecommitValueEvent(2, v1))
	assert.Nil(t, msg)
	assert.Equal(t, s, s2)

	s3, msg := Next(s, NewRoundProposerEvent(3, v2))
	assert.Nil(t, msg)
	assert.Equal(t, s, s3)
}

// A stale TimeoutPrecommit must not regress a round that has already moved
// past it (Q2).
func TestStaleTimeoutPrecommitDoesNotRegressRound(t *testing.T) {
	s := State{Height: 0, Round: 5, Step: Precommit}
	s2, msg := Next(s, TimeoutPrecommitEvent(1))
	assert.Nil(t, msg)
	assert.Equal(t, s, s2)
}

// A PolkaValue observed while already in Precommit only refreshes Valid and
// emits nothing, and never touches Locked.
func TestPolkaValueWhilePrecommittingOnlySetsValid(t *testing.T) {
	s := New(0)
	s, _ = Next(s, NewRoundEvent(0))
	s, _ = Next(s, ProposalEvent(0, v1))
	s, _ = Next(s, PolkaValueEvent(0, v1))
	require.Equal(t, Precommit, s.Step)
	lockedBefore := *s.Locked

	s, msg := Next(s, PolkaValueEvent(0, v2))
	assert.Nil(t, msg)
	require.NotNil(t, s.Valid)
	assert.Equal(t, RoundValue{Round: 0, Value: v2}, *s.Valid)
	assert.Equal(t, lockedBefore, *s.Locked)
}

func assertInvariants(t *testing.T, before, after State, msg *Message) {
	t.Helper()
	// P1: height stability.
	assert.Equal(t, before.Height, after.Height, "P1 violated")
	// P2: round monotonicity.
	assert.GreaterOrEqual(t, after.Round, before.Round, "P2 violated")
	// P4: locked implies valid, at a round no earlier than the lock.
	if after.Locked != nil {
		require.NotNil(t, after.Valid, "P4 violated: locked without valid")
		assert.GreaterOrEqual(t, after.Valid.Round, after.Locked.Round, "P4 violated: valid behind locked")
	}
	// P5: Commit is terminal.
	if before.Step == Commit {
		assert.Equal(t, before, after, "P5 violated")
		assert.Nil(t, msg, "P5 violated: message emitted from Commit")
	}
	// P7: any vote/timeout message carries the State's post-transition round.
	if msg != nil {
		switch msg.Type {
		case MessagePrevote, MessagePrecommit, MessageTimeout:
			assert.Equal(t, after.Round, msg.Round, "P7 violated")
		}
	}
}

// TestInvariantsHoldAcrossHandlers walks one event sequence covering the
// lock, precommit-timeout, unlock-via-polka and decision paths of the
// scenarios above, and re-checks P1/P2/P4/P5/P7 after every single step.
func TestInvariantsHoldAcrossHandlers(t *testing.T) {
	events := []Event{
		NewRoundEvent(0),
		ProposalEvent(0, v1),
		PolkaValueEvent(0, v1),
		TimeoutPrecommitEvent(0),
		ProposalPolkaEvent(1, 0, v2),
		PolkaValueEvent(1, v2),
		PrecommitValueEvent(1, v2),
		PrecommitValueEvent(1, v2), // redundant decision observation, post-Commit
	}
	s := New(0)
	for _, e := range events {
		before := s
		after, msg := Next(before, e)
		assertInvariants(t, before, after, msg)
		s = after
	}
}

// TestNextNeverPanics throws random (State, Event) pairs at Next and checks
// that P1/P2/P4/P5/P7 hold for every single call — Next must be total. The
// event is arbitrary; the State is drawn from the shapes Next can reach:
// step NewRound only at round 0, and locked.round <= valid.round <= round,
// with Valid always set when Locked is (I1).
func TestNextNeverPanics(t *testing.T) {
	f := func(height uint64, round int8, step uint8, hasLocked, hasValid bool,
		lockedRound, validRound int8, lockedByte, validByte byte,
		evType uint8, evRound int8, polRound int8, evByte byte) bool {

		s := State{Height: height, Round: int64(round) & 0x7f, Step: RoundStep(step % 5)}
		if s.Step == NewRound {
			s.Round = 0
		}
		minValidRound := int64(0)
		if hasLocked {
			lr := (int64(lockedRound) & 0x7f) % (s.Round + 1)
			s.Locked = &RoundValue{Round: lr, Value: v(lockedByte)}
			minValidRound = lr
		}
		if hasValid || hasLocked {
			vr := minValidRound + (int64(validRound)&0x7f)%(s.Round-minValidRound+1)
			s.Valid = &RoundValue{Round: vr, Value: v(validByte)}
		}
		e := Event{
			Type:       EventType(evType % 16),
			Round:      int64(evRound) & 0x7f,
			PolkaRound: int64(polRound) & 0x7f,
			Value:      v(evByte),
		}

		after, msg := Next(s, e)
		assertNoPanic := true
		if after.Height != s.Height {
			assertNoPanic = false
		}
		if after.Round < s.Round {
			assertNoPanic = false
		}
		if after.Locked != nil && (after.Valid == nil || after.Valid.Round < after.Locked.Round) {
			assertNoPanic = false
		}
		if s.Step == Commit && (after != s || msg != nil) {
			assertNoPanic = false
		}
		if msg != nil && (msg.Type == MessagePrevote || msg.Type == MessagePrecommit || msg.Type == MessageTimeout) &&
			msg.Round != after.Round {
			assertNoPanic = false
		}
		return assertNoPanic
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}
