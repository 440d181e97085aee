package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearmatics/tendermint-core/consensus/tendermint/algorithm"
)

// timeoutInfo is a single scheduled timeout, tagged by the height/round/step
// it belongs to so a stale firing can be recognised and dropped by the
// Driver. Grounded on gobft's timeoutInfo (bftcore.go).
type timeoutInfo struct {
	Height uint64
	Round  int64
	Step   algorithm.RoundStep
}

// TimeoutScheduler arms and cancels the real-time timers that back
// algorithm.Message{Type: MessageTimeout}. The algorithm package never
// sleeps; this is the one place real time enters the system.
type TimeoutScheduler interface {
	// Schedule arms a timer for height/round/step that, once elapsed,
	// sends the matching event on the channel returned by Events.
	// Delay grows with round number so that round-skip churn decays.
	Schedule(height uint64, round int64, step algorithm.RoundStep, delay time.Duration)
	// Events returns the channel timeoutInfo fires are delivered on.
	Events() <-chan timeoutInfo
	// Cancel stops every pending timer for the given height, if any is
	// armed. Called by Driver.Stop.
	Cancel(height uint64)
}

// Ticker is the default TimeoutScheduler: one goroutine per armed timer,
// all results funnelled onto a single buffered channel. Grounded on gobft's
// TimeoutTicker (referenced but not defined in the retrieved teacher
// sources; reconstructed here from its usage in bftcore.go:
// c.timeoutTicker.ScheduleTimeout(timeoutInfo{...}), c.timeoutTicker.Chan()).
type Ticker struct {
	mu      sync.Mutex
	timers  map[uint64][]*time.Timer
	eventCh chan timeoutInfo
	log     *logrus.Entry
}

// NewTicker constructs a Ticker. log may be nil, in which case a default
// logrus logger (Info level, writing to stderr) is used.
func NewTicker(log *logrus.Entry) *Ticker {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Ticker{
		timers:  make(map[uint64][]*time.Timer),
		eventCh: make(chan timeoutInfo, 16),
		log:     log,
	}
}

func (t *Ticker) Schedule(height uint64, round int64, step algorithm.RoundStep, delay time.Duration) {
	timer := time.AfterFunc(delay, func() {
		t.log.WithFields(logrus.Fields{
			"height": height,
			"round":  round,
			"step":   step,
		}).Debug("timeout fired")
		select {
		case t.eventCh <- timeoutInfo{Height: height, Round: round, Step: step}:
		default:
			t.log.Warn("timeout event dropped: channel full")
		}
	})
	t.mu.Lock()
	t.timers[height] = append(t.timers[height], timer)
	t.mu.Unlock()
}

func (t *Ticker) Events() <-chan timeoutInfo {
	return t.eventCh
}

func (t *Ticker) Cancel(height uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, timer := range t.timers[height] {
		timer.Stop()
	}
	delete(t.timers, height)
}
