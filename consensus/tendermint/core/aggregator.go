package core

import (
	"github.com/clearmatics/tendermint-core/consensus/tendermint/algorithm"
)

// Quorum returns the smallest voting power that constitutes a two-thirds
// majority of totalPower: the threshold the algorithm package calls a
// "polka" (for prevotes) or a decision (for precommits).
func Quorum(totalPower uint64) uint64 {
	return totalPower*2/3 + 1
}

// FaultThreshold returns the smallest voting power that cannot come
// entirely from Byzantine participants, so it includes at least one honest
// participant. ObserveRound trusts a RoundSkip observation from peers
// claiming to be at a higher round once their power exceeds it.
func FaultThreshold(totalPower uint64) uint64 {
	return (totalPower-1)/3 + 1
}

// vote is one sender's recorded prevote or precommit for a round.
type vote struct {
	value *algorithm.Value // nil means a vote for nil
	power uint64
}

// emitKey dedups a raised event by kind and, where relevant, the full
// 32-byte value it names — keying on algorithm.Value directly rather than
// its truncated String() avoids collisions between distinct values that
// happen to share their first four bytes.
type emitKey struct {
	kind  string
	value algorithm.Value
}

type roundTally struct {
	prevotes      map[string]vote
	precommits    map[string]vote
	roundObserved map[string]uint64 // sender -> power, for RoundSkip detection
	emitted       map[emitKey]bool  // dedup key -> already raised to the driver
}

func newRoundTally() *roundTally {
	return &roundTally{
		prevotes:      make(map[string]vote),
		precommits:    make(map[string]vote),
		roundObserved: make(map[string]uint64),
		emitted:       make(map[emitKey]bool),
	}
}

// Aggregator is the vote-counting collaborator spec.md declares external to
// the core ("the core consumes already-aggregated events"). It stores one
// vote per (round, phase, sender) and raises the aggregate Events the
// algorithm package consumes once voting power crosses Quorum/
// FaultThreshold. Grounded on afd.MsgStore's per-height/round/type/sender
// map-of-maps shape (afd/msg_store.go), reshaped from accountability
// bookkeeping (equivocation proofs) to quorum counting.
type Aggregator struct {
	totalPower uint64
	rounds     map[int64]*roundTally
}

// NewAggregator constructs an Aggregator for a committee with the given
// total voting power.
func NewAggregator(totalPower uint64) *Aggregator {
	return &Aggregator{
		totalPower: totalPower,
		rounds:     make(map[int64]*roundTally),
	}
}

func (a *Aggregator) tally(round int64) *roundTally {
	t, ok := a.rounds[round]
	if !ok {
		t = newRoundTally()
		a.rounds[round] = t
	}
	return t
}

func sumPower(votes map[string]vote, match func(vote) bool) uint64 {
	var power uint64
	for _, v := range votes {
		if match(v) {
			power += v.power
		}
	}
	return power
}

// AddPrevote records a prevote from sender for round, weighted by power,
// for value (nil meaning a nil vote). It returns the Events newly justified
// by this vote: PolkaAny/PolkaNil, each raised at most once per round, and
// PolkaValue, raised at most once per round and value.
func (a *Aggregator) AddPrevote(round int64, sender string, power uint64, value *algorithm.Value) []algorithm.Event {
	t := a.tally(round)
	t.prevotes[sender] = vote{value: value, power: power}

	quorum := Quorum(a.totalPower)
	var events []algorithm.Event

	anyKey := emitKey{kind: "polka-any"}
	if !t.emitted[anyKey] {
		if sumPower(t.prevotes, func(vote) bool { return true }) >= quorum {
			t.emitted[anyKey] = true
			events = append(events, algorithm.PolkaAnyEvent(round))
		}
	}
	nilKey := emitKey{kind: "polka-nil"}
	if !t.emitted[nilKey] {
		if sumPower(t.prevotes, func(v vote) bool { return v.value == nil }) >= quorum {
			t.emitted[nilKey] = true
			events = append(events, algorithm.PolkaNilEvent(round))
		}
	}
	if value != nil {
		key := emitKey{kind: "polka-value", value: *value}
		if !t.emitted[key] {
			if sumPower(t.prevotes, func(v vote) bool { return v.value != nil && *v.value == *value }) >= quorum {
				t.emitted[key] = true
				events = append(events, algorithm.PolkaValueEvent(round, *value))
			}
		}
	}
	return events
}

// AddPrecommit records a precommit from sender for round, weighted by
// power, for value (nil meaning a nil vote). It returns the Events newly
// justified by this vote: PrecommitAny, raised at most once per round, and
// PrecommitValue, raised at most once per round and value.
func (a *Aggregator) AddPrecommit(round int64, sender string, power uint64, value *algorithm.Value) []algorithm.Event {
	t := a.tally(round)
	t.precommits[sender] = vote{value: value, power: power}

	quorum := Quorum(a.totalPower)
	var events []algorithm.Event

	anyKey := emitKey{kind: "precommit-any"}
	if !t.emitted[anyKey] {
		if sumPower(t.precommits, func(vote) bool { return true }) >= quorum {
			t.emitted[anyKey] = true
			events = append(events, algorithm.PrecommitAnyEvent(round))
		}
	}
	if value != nil {
		key := emitKey{kind: "precommit-value", value: *value}
		if !t.emitted[key] {
			if sumPower(t.precommits, func(v vote) bool { return v.value != nil && *v.value == *value }) >= quorum {
				t.emitted[key] = true
				events = append(events, algorithm.PrecommitValueEvent(round, *value))
			}
		}
	}
	return events
}

// ObserveRound records that sender claims to be participating at round,
// weighted by power. Claims for round <= localRound are ignored. Once the
// cumulative power of distinct senders claiming exactly round exceeds
// FaultThreshold, it returns a RoundSkip event for round, at most once per
// round. Claims for different rounds are tallied separately and never added
// together.
func (a *Aggregator) ObserveRound(round int64, sender string, power uint64, localRound int64) *algorithm.Event {
	if round <= localRound {
		return nil
	}
	t := a.tally(round)
	t.roundObserved[sender] = power

	key := emitKey{kind: "round-skip"}
	if t.emitted[key] {
		return nil
	}
	var total uint64
	for _, p := range t.roundObserved {
		total += p
	}
	if total > FaultThreshold(a.totalPower) {
		t.emitted[key] = true
		e := algorithm.RoundSkipEvent(round)
		return &e
	}
	return nil
}

// DeleteHeight drops all accumulated tallies, releasing the Aggregator's
// memory for a height that has committed. Grounded on
// afd.MsgStore.DeleteMsgsAtHeight (afd/msg_store.go).
func (a *Aggregator) DeleteHeight() {
	a.rounds = make(map[int64]*roundTally)
}
