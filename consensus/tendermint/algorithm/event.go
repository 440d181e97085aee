package algorithm

import "fmt"

// EventType tags the variant carried by an Event. The driver synthesizes
// these from network/timer/proposer-role signals; the algorithm package
// never constructs one on its own initiative.
type EventType uint8

const (
	EventNewRound EventType = iota
	EventNewRoundProposer
	EventProposal
	EventProposalInvalid
	EventProposalPolka
	EventPolkaAny
	EventPolkaNil
	EventPolkaValue
	EventPrecommitAny
	EventPrecommitValue
	EventRoundSkip
	EventRoundSkipProposer
	EventTimeoutPropose
	EventTimeoutPrevote
	EventTimeoutPrecommit
	EventTimeoutPrecommitProposer
)

func (t EventType) String() string {
	switch t {
	case EventNewRound:
		return "NewRound"
	case EventNewRoundProposer:
		return "NewRoundProposer"
	case EventProposal:
		return "Proposal"
	case EventProposalInvalid:
		return "ProposalInvalid"
	case EventProposalPolka:
		return "ProposalPolka"
	case EventPolkaAny:
		return "PolkaAny"
	case EventPolkaNil:
		return "PolkaNil"
	case EventPolkaValue:
		return "PolkaValue"
	case EventPrecommitAny:
		return "PrecommitAny"
	case EventPrecommitValue:
		return "PrecommitValue"
	case EventRoundSkip:
		return "RoundSkip"
	case EventRoundSkipProposer:
		return "RoundSkipProposer"
	case EventTimeoutPropose:
		return "TimeoutPropose"
	case EventTimeoutPrevote:
		return "TimeoutPrevote"
	case EventTimeoutPrecommit:
		return "TimeoutPrecommit"
	case EventTimeoutPrecommitProposer:
		return "TimeoutPrecommitProposer"
	default:
		panic(fmt.Sprintf("algorithm: unrecognised event type %d", uint8(t)))
	}
}

// Event is the input to Next. Only the fields relevant to Type are
// meaningful; PolkaRound is only ever set by ProposalPolka.
type Event struct {
	Type       EventType
	Round      int64
	PolkaRound int64
	Value      Value
}

func (e Event) String() string {
	return fmt.Sprintf("%s(round=%d)", e.Type, e.Round)
}

// NewRoundEvent signals that the replica should enter round r as a
// non-proposer.
func NewRoundEvent(round int64) Event {
	return Event{Type: EventNewRound, Round: round}
}

// NewRoundProposerEvent signals that the replica should enter round r as
// proposer, with v as the freshly assembled candidate value.
func NewRoundProposerEvent(round int64, v Value) Event {
	return Event{Type: EventNewRoundProposer, Round: round, Value: v}
}

// ProposalEvent is a complete, validated proposal for round r with no
// referenced polka round.
func ProposalEvent(round int64, v Value) Event {
	return Event{Type: EventProposal, Round: round, Value: v}
}

// ProposalInvalidEvent is a complete proposal for round r that failed
// validation.
func ProposalInvalidEvent(round int64) Event {
	return Event{Type: EventProposalInvalid, Round: round}
}

// ProposalPolkaEvent is a proposal for round r referencing an earlier polka
// at round vr (0 <= vr < r).
func ProposalPolkaEvent(round, vr int64, v Value) Event {
	return Event{Type: EventProposalPolka, Round: round, PolkaRound: vr, Value: v}
}

// PolkaAnyEvent reports that two-thirds-plus prevotes exist for round r,
// for any value.
func PolkaAnyEvent(round int64) Event {
	return Event{Type: EventPolkaAny, Round: round}
}

// PolkaNilEvent reports two-thirds-plus prevotes for nil at round r.
func PolkaNilEvent(round int64) Event {
	return Event{Type: EventPolkaNil, Round: round}
}

// PolkaValueEvent reports two-thirds-plus prevotes for v at round r.
func PolkaValueEvent(round int64, v Value) Event {
	return Event{Type: EventPolkaValue, Round: round, Value: v}
}

// PrecommitAnyEvent reports two-thirds-plus precommits for round r, for any
// value.
func PrecommitAnyEvent(round int64) Event {
	return Event{Type: EventPrecommitAny, Round: round}
}

// PrecommitValueEvent reports two-thirds-plus precommits for v at round r —
// a decision.
func PrecommitValueEvent(round int64, v Value) Event {
	return Event{Type: EventPrecommitValue, Round: round, Value: v}
}

// RoundSkipEvent reports that peers are at round r, r greater than the
// replica's current round, as non-proposer.
func RoundSkipEvent(round int64) Event {
	return Event{Type: EventRoundSkip, Round: round}
}

// RoundSkipProposerEvent is RoundSkipEvent but the replica is proposer for
// round r, with v as its candidate value.
func RoundSkipProposerEvent(round int64, v Value) Event {
	return Event{Type: EventRoundSkipProposer, Round: round, Value: v}
}

// TimeoutProposeEvent is the expiry of the propose timer armed for round r.
func TimeoutProposeEvent(round int64) Event {
	return Event{Type: EventTimeoutPropose, Round: round}
}

// TimeoutPrevoteEvent is the expiry of the prevote timer armed for round r.
func TimeoutPrevoteEvent(round int64) Event {
	return Event{Type: EventTimeoutPrevote, Round: round}
}

// TimeoutPrecommitEvent is the expiry of the precommit timer armed for
// round r.
func TimeoutPrecommitEvent(round int64) Event {
	return Event{Type: EventTimeoutPrecommit, Round: round}
}

// TimeoutPrecommitProposerEvent is TimeoutPrecommitEvent but the replica is
// proposer for round r+1, with v as its candidate value for that round.
func TimeoutPrecommitProposerEvent(round int64, v Value) Event {
	return Event{Type: EventTimeoutPrecommitProposer, Round: round, Value: v}
}
