// Package core is the driver that turns the pure algorithm package into a
// runnable replica: it owns one algorithm.State, serializes every call into
// algorithm.Next, and dispatches the Message it returns to the collaborator
// interfaces below. None of the Non-goals spec.md draws around the core
// leak in here either — Broadcaster, TimeoutScheduler and DecisionSink are
// pluggable seams, not a network stack.
//
// Grounded on zhaoguojie2010-gobft's Core (serialized msgQueue +
// receiveRoutine + TimeoutTicker, bftcore.go) and on the teacher's own
// split between the stateless algorithm package and its stateful Bridge
// driver (consensus/tendermint/support_test.go).
package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearmatics/tendermint-core/consensus/tendermint/algorithm"
)

// Broadcaster sends a Proposal/Prevote/Precommit message to the rest of the
// committee, including the local replica. Signing, RLP/wire encoding and
// actual network transport are all the caller's responsibility — this
// interface sees only the already-decided algorithm.Message.
type Broadcaster interface {
	Broadcast(height uint64, msg *algorithm.Message)
}

// DecisionSink is notified once a height reaches algorithm.Commit.
type DecisionSink interface {
	Decided(height uint64, round int64, value algorithm.Value)
}

// Oracle answers the questions the Driver cannot answer on its own:
// whether this replica is the proposer for a round, and what fresh value to
// propose if it is. Vote counting and value validity are handled upstream
// by the Aggregator and whatever constructs events, not by the Oracle.
type Oracle interface {
	Proposer(height uint64, round int64) bool
	Value() (algorithm.Value, error)
}

// roundDelay returns the timeout duration for step at round, growing
// linearly with round so that repeated round-skips back off rather than
// hammer the network. Grounded on gobft's DefaultConfig timeout scaling.
func roundDelay(base time.Duration, increment time.Duration, round int64) time.Duration {
	if round < 0 {
		round = 0
	}
	return base + increment*time.Duration(round)
}

// Driver owns one algorithm.State for one height and is the only thing
// that calls algorithm.Next for it. Events are enqueued on a buffered
// channel and processed one at a time by a single background goroutine,
// which is what "serializes calls to next" (spec.md §5) means in practice.
// Deliver and StartRound return once the event is enqueued; they do not
// wait for it to be processed.
type Driver struct {
	nodeID string
	oracle Oracle

	broadcaster Broadcaster
	scheduler   TimeoutScheduler
	decisions   DecisionSink

	cfg     Timeouts
	metrics *Metrics

	mu    sync.Mutex
	state algorithm.State

	log *logrus.Entry

	eventCh chan algorithm.Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// Timeouts configures the base delay and per-round backoff increment for
// each of the three timer types. See config.Config for the TOML-loaded
// form of this.
type Timeouts struct {
	Propose          time.Duration
	ProposeIncrement time.Duration

	Prevote          time.Duration
	PrevoteIncrement time.Duration

	Precommit          time.Duration
	PrecommitIncrement time.Duration
}

// DefaultTimeouts mirrors gobft's DefaultConfig timer values in shape (a
// base delay plus linear backoff per round).
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Propose:            3 * time.Second,
		ProposeIncrement:   500 * time.Millisecond,
		Prevote:            1 * time.Second,
		PrevoteIncrement:   500 * time.Millisecond,
		Precommit:          1 * time.Second,
		PrecommitIncrement: 500 * time.Millisecond,
	}
}

// NewDriver constructs a Driver for the given height and immediately starts
// its processing goroutine. Callers must call Stop when the height is
// fully decided and a new Driver is needed for height+1 (locked/valid never
// cross height boundaries — see algorithm.State's Data Model).
func NewDriver(nodeID string, height uint64, oracle Oracle, broadcaster Broadcaster,
	scheduler TimeoutScheduler, decisions DecisionSink, cfg Timeouts, metrics *Metrics, log *logrus.Entry) *Driver {

	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	d := &Driver{
		nodeID:      nodeID,
		oracle:      oracle,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		decisions:   decisions,
		cfg:         cfg,
		metrics:     metrics,
		state:       algorithm.New(height),
		log:         log.WithField("node", nodeID),
		eventCh:     make(chan algorithm.Event, 64),
		done:        make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Stop terminates the Driver's background goroutine and cancels any timers
// still armed for its height.
func (d *Driver) Stop() {
	close(d.done)
	d.wg.Wait()
	d.scheduler.Cancel(d.State().Height)
}

// State returns a snapshot of the Driver's current algorithm.State.
func (d *Driver) State() algorithm.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Deliver enqueues an Event for processing. Safe to call from any
// goroutine; never blocks the caller on algorithm.Next itself.
func (d *Driver) Deliver(e algorithm.Event) {
	select {
	case d.eventCh <- e:
	case <-d.done:
	}
}

// StartRound kicks the Driver into the given round (round 0 at the start of
// its height) as either proposer
// or non-proposer, per spec.md's State lifecycle (State::new followed by
// the first NewRound/NewRoundProposer event).
func (d *Driver) StartRound(round int64) error {
	if d.oracle.Proposer(d.State().Height, round) {
		value, err := d.oracle.Value()
		if err != nil {
			return fmt.Errorf("assembling proposal value: %w", err)
		}
		d.Deliver(algorithm.NewRoundProposerEvent(round, value))
		return nil
	}
	d.Deliver(algorithm.NewRoundEvent(round))
	return nil
}

func (d *Driver) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case e := <-d.eventCh:
			d.step(e)
		case ti := <-d.scheduler.Events():
			d.stepTimeout(ti)
		}
	}
}

func (d *Driver) step(e algorithm.Event) {
	d.mu.Lock()
	before := d.state
	after, msg := algorithm.Next(before, e)
	d.state = after
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"event": e.String(),
		"round": after.Round,
		"step":  after.Step.String(),
	}).Debug("processed event")

	if d.metrics != nil {
		d.metrics.Observe(after, msg)
	}
	d.dispatch(after, msg)
}

// stepTimeout converts a fired timeoutInfo into the matching Event,
// dropping it if it no longer applies to the Driver's current round (the
// algorithm package's own round guards would drop it anyway, but checking
// here avoids waking the state machine for an event we know is stale).
func (d *Driver) stepTimeout(ti timeoutInfo) {
	current := d.State()
	if ti.Height != current.Height || ti.Round != current.Round {
		return
	}
	var e algorithm.Event
	switch ti.Step {
	case algorithm.Propose:
		e = algorithm.TimeoutProposeEvent(ti.Round)
	case algorithm.Prevote:
		e = algorithm.TimeoutPrevoteEvent(ti.Round)
	case algorithm.Precommit:
		if d.oracle.Proposer(current.Height, ti.Round+1) {
			value, err := d.oracle.Value()
			if err != nil {
				d.log.WithError(err).Warn("assembling proposal value for next round")
				e = algorithm.TimeoutPrecommitEvent(ti.Round)
				break
			}
			e = algorithm.TimeoutPrecommitProposerEvent(ti.Round, value)
		} else {
			e = algorithm.TimeoutPrecommitEvent(ti.Round)
		}
	default:
		return
	}
	d.step(e)
}

func (d *Driver) dispatch(s algorithm.State, msg *algorithm.Message) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case algorithm.MessageProposal, algorithm.MessagePrevote, algorithm.MessagePrecommit:
		d.broadcaster.Broadcast(s.Height, msg)
	case algorithm.MessageTimeout:
		delay := d.delayFor(msg)
		d.scheduler.Schedule(s.Height, msg.Round, msg.TimeoutStep, delay)
	case algorithm.MessageDecision:
		d.decisions.Decided(s.Height, msg.Round, msg.DecisionValue)
	}
}

func (d *Driver) delayFor(msg *algorithm.Message) time.Duration {
	switch msg.TimeoutStep {
	case algorithm.Propose:
		return roundDelay(d.cfg.Propose, d.cfg.ProposeIncrement, msg.Round)
	case algorithm.Prevote:
		return roundDelay(d.cfg.Prevote, d.cfg.PrevoteIncrement, msg.Round)
	case algorithm.Precommit:
		return roundDelay(d.cfg.Precommit, d.cfg.PrecommitIncrement, msg.Round)
	default:
		return d.cfg.Propose
	}
}
