package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearmatics/tendermint-core/consensus/tendermint/algorithm"
)

func v(b byte) algorithm.Value {
	var val algorithm.Value
	val[0] = b
	return val
}

func TestQuorumFaultThreshold(t *testing.T) {
	assert.Equal(t, uint64(3), Quorum(4))  // 4*2/3+1 = 3
	assert.Equal(t, uint64(7), Quorum(10)) // 10*2/3+1 = 7
	assert.Equal(t, uint64(2), FaultThreshold(4))
	assert.Equal(t, uint64(3), FaultThreshold(7))
}

func TestAggregatorPolkaAnyOnceQuorum(t *testing.T) {
	a := NewAggregator(4)

	assert.Empty(t, a.AddPrevote(0, "v1", 1, nil))
	assert.Empty(t, a.AddPrevote(0, "v2", 1, nil))

	events := a.AddPrevote(0, "v3", 1, nil)
	require.Len(t, events, 2) // polka-any and polka-nil both cross quorum simultaneously here
	kinds := map[algorithm.EventType]bool{}
	for _, e := range events {
		kinds[e.Type] = true
	}
	assert.True(t, kinds[algorithm.EventPolkaAny])
	assert.True(t, kinds[algorithm.EventPolkaNil])

	// Further votes must not re-raise the same events.
	assert.Empty(t, a.AddPrevote(0, "v4", 1, nil))
}

func TestAggregatorPolkaValue(t *testing.T) {
	a := NewAggregator(4)
	val := v(1)

	assert.Empty(t, a.AddPrevote(0, "v1", 1, &val))
	assert.Empty(t, a.AddPrevote(0, "v2", 1, &val))

	events := a.AddPrevote(0, "v3", 1, &val)
	var gotAny, gotValue bool
	for _, e := range events {
		switch e.Type {
		case algorithm.EventPolkaAny:
			gotAny = true
		case algorithm.EventPolkaValue:
			gotValue = true
			assert.Equal(t, val, e.Value)
		}
	}
	assert.True(t, gotAny)
	assert.True(t, gotValue)
}

func TestAggregatorPrecommitValueDecision(t *testing.T) {
	a := NewAggregator(4)
	val := v(7)

	assert.Empty(t, a.AddPrecommit(2, "v1", 1, &val))
	assert.Empty(t, a.AddPrecommit(2, "v2", 1, &val))

	events := a.AddPrecommit(2, "v3", 1, &val)
	var gotValue bool
	for _, e := range events {
		if e.Type == algorithm.EventPrecommitValue {
			gotValue = true
			assert.Equal(t, val, e.Value)
			assert.Equal(t, int64(2), e.Round)
		}
	}
	assert.True(t, gotValue)
}

func TestAggregatorObserveRoundSkip(t *testing.T) {
	a := NewAggregator(4)

	assert.Nil(t, a.ObserveRound(3, "v1", 1, 0))
	assert.Nil(t, a.ObserveRound(3, "v2", 1, 0))

	e := a.ObserveRound(3, "v3", 1, 0)
	require.NotNil(t, e)
	assert.Equal(t, algorithm.EventRoundSkip, e.Type)
	assert.Equal(t, int64(3), e.Round)

	// Already emitted for round 3; further observations are silent.
	assert.Nil(t, a.ObserveRound(3, "v4", 1, 0))
}

func TestAggregatorObserveRoundIgnoresStaleOrEqual(t *testing.T) {
	a := NewAggregator(4)
	assert.Nil(t, a.ObserveRound(0, "v1", 4, 0))
	assert.Nil(t, a.ObserveRound(-1, "v1", 4, 0))
}

func TestAggregatorDeleteHeightResetsTallies(t *testing.T) {
	a := NewAggregator(4)
	val := v(1)
	a.AddPrevote(0, "v1", 1, &val)
	require.NotEmpty(t, a.rounds)

	a.DeleteHeight()
	assert.Empty(t, a.rounds)
}
