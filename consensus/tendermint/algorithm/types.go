// Package algorithm implements the pure Tendermint-style consensus step
// function: a single replica's (State, Event) -> (State, *Message)
// transition. It performs no I/O, holds no locks and schedules no timers —
// those are the responsibility of the driver in consensus/tendermint/core.
package algorithm

import (
	"encoding/hex"
	"fmt"
)

// Value is an opaque, equality-comparable handle on a proposed value
// (conceptually the hash of a block). The algorithm never inspects its
// contents, only compares it with ==.
type Value [32]byte

func (v Value) String() string {
	return hex.EncodeToString(v[:4])
}

// NilValue is the zero Value. The package itself does not use it: a nil
// vote is carried as a nil *Value in Message.Value.
var NilValue Value

// RoundValue pairs a Value with the round in which it was observed. It is
// the payload of both State.Locked and State.Valid.
type RoundValue struct {
	Round int64
	Value Value
}

// RoundStep is a replica's position within one round's phases. Commit is
// terminal: once reached, no further Event changes the State.
type RoundStep uint8

const (
	NewRound RoundStep = iota
	Propose
	Prevote
	Precommit
	Commit
)

func (s RoundStep) String() string {
	switch s {
	case NewRound:
		return "NewRound"
	case Propose:
		return "Propose"
	case Prevote:
		return "Prevote"
	case Precommit:
		return "Precommit"
	case Commit:
		return "Commit"
	default:
		panic(fmt.Sprintf("algorithm: unrecognised step value %d", uint8(s)))
	}
}
