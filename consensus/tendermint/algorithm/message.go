package algorithm

import "fmt"

// MessageType tags the variant carried by a Message.
type MessageType uint8

const (
	// MessageNewRound is reserved: no handler in this package emits it.
	MessageNewRound MessageType = iota
	MessageProposal
	MessagePrevote
	MessagePrecommit
	MessageTimeout
	MessageDecision
)

func (t MessageType) String() string {
	switch t {
	case MessageNewRound:
		return "NewRound"
	case MessageProposal:
		return "Proposal"
	case MessagePrevote:
		return "Prevote"
	case MessagePrecommit:
		return "Precommit"
	case MessageTimeout:
		return "Timeout"
	case MessageDecision:
		return "Decision"
	default:
		panic(fmt.Sprintf("algorithm: unrecognised message type %d", uint8(t)))
	}
}

// Message is an output of Next requesting that the driver perform an
// external action. Only the fields relevant to Type are meaningful:
//
//   - Proposal:  Round, Value, PolRound (-1 means no prior polka round)
//   - Prevote/Precommit: Round, Value (nil means a nil vote)
//   - Timeout: Round, TimeoutStep
//   - Decision: Round, Value (the non-pointer DecisionValue)
type Message struct {
	Type         MessageType
	Round        int64
	Value        *Value
	PolRound     int64
	TimeoutStep  RoundStep
	DecisionValue Value
}

func (m *Message) String() string {
	switch m.Type {
	case MessageProposal:
		return fmt.Sprintf("Proposal{round=%d value=%s pol_round=%d}", m.Round, m.Value, m.PolRound)
	case MessagePrevote, MessagePrecommit:
		v := "nil"
		if m.Value != nil {
			v = m.Value.String()
		}
		return fmt.Sprintf("%s{round=%d value=%s}", m.Type, m.Round, v)
	case MessageTimeout:
		return fmt.Sprintf("Timeout{round=%d step=%s}", m.Round, m.TimeoutStep)
	case MessageDecision:
		return fmt.Sprintf("Decision{round=%d value=%s}", m.Round, m.DecisionValue)
	default:
		return fmt.Sprintf("%s{round=%d}", m.Type, m.Round)
	}
}

func proposalMessage(round int64, value Value, polRound int64) *Message {
	return &Message{Type: MessageProposal, Round: round, Value: &value, PolRound: polRound}
}

func prevoteMessage(round int64, value *Value) *Message {
	return &Message{Type: MessagePrevote, Round: round, Value: value}
}

func precommitMessage(round int64, value *Value) *Message {
	return &Message{Type: MessagePrecommit, Round: round, Value: value}
}

func timeoutMessage(round int64, step RoundStep) *Message {
	return &Message{Type: MessageTimeout, Round: round, TimeoutStep: step}
}

func decisionMessage(round int64, value Value) *Message {
	return &Message{Type: MessageDecision, Round: round, DecisionValue: value}
}
