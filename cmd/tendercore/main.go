// Command tendercore runs an in-process multi-replica simulation of the
// consensus core. Grounded on echenim-Bedrock's bedrockd
// (cmd/bedrockd/main.go, start.go): a cobra root command with a "version"
// subcommand and a "simulate" subcommand, which loads an optional TOML
// committee config and exercises the core package without any real
// transport. There is no subcommand that runs a single standalone replica.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clearmatics/tendermint-core/config"
	"github.com/clearmatics/tendermint-core/consensus/tendermint/algorithm"
	"github.com/clearmatics/tendermint-core/consensus/tendermint/core"
)

// Set via -ldflags at build time.
var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tendercore",
		Short: "Tendermint-style BFT consensus core",
		Long:  "A pure (State, Event) -> (State, Message) consensus core and the driver that runs it.",
	}

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tendercore v%s (%s)\n", version, commit)
		},
	}
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-process committee to a single decided height",
		RunE:  runSimulate,
	}
	cmd.Flags().String("config", "", "path to a committee config file (TOML); a generated committee is used if empty")
	cmd.Flags().Int("validators", 4, "number of validators to generate when --config is not given")
	cmd.Flags().Uint64("height", 1, "height to simulate")
	cmd.Flags().Duration("deadline", 10*time.Second, "simulation deadline")
	cmd.Flags().String("log-level", "info", "logrus level: debug, info, warn, error")
	return cmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	height, _ := cmd.Flags().GetUint64("height")
	deadline, _ := cmd.Flags().GetDuration("deadline")
	logLevel, _ := cmd.Flags().GetString("log-level")

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)

	timeouts, err := cfg.CoreTimeouts()
	if err != nil {
		return err
	}

	decisions := make(chan decision, len(cfg.Validators))
	h := newHub(cfg.TotalPower())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, v := range cfg.Validators {
		oracle := &roundRobinOracle{self: v.ID, validators: validatorIDs(cfg.Validators)}
		bc := &namedBroadcaster{senderID: v.ID, power: v.VotingPower, hub: h}
		sink := &recordingSink{nodeID: v.ID, ch: decisions}
		log := logger.WithField("node", v.ID)

		d := core.NewDriver(v.ID, height, oracle, bc, core.NewTicker(log), sink, timeouts,
			core.NewMetrics(prometheus.NewRegistry(), cfg.MetricsNamespace), log)

		h.register(v.ID, v.VotingPower, d, oracle)
	}

	for _, v := range cfg.Validators {
		d := h.replicas[v.ID].driver
		if err := d.StartRound(0); err != nil {
			return fmt.Errorf("start round for %s: %w", v.ID, err)
		}
	}
	defer h.stopAll()

	return awaitDecisions(ctx, decisions, len(cfg.Validators), deadline)
}

func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.Load(path)
	}
	n, _ := cmd.Flags().GetInt("validators")
	if n < 1 {
		return nil, fmt.Errorf("validators: must be at least 1")
	}
	cfg := config.DefaultConfig()
	cfg.NodeID = "validator-0"
	for i := 0; i < n; i++ {
		cfg.Validators = append(cfg.Validators, config.Validator{
			ID:          fmt.Sprintf("validator-%d", i),
			VotingPower: 1,
		})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func awaitDecisions(ctx context.Context, decisions <-chan decision, want int, deadline time.Duration) error {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	seen := make(map[string]decision, want)
	for len(seen) < want {
		select {
		case d := <-decisions:
			seen[d.nodeID] = d
			fmt.Printf("%s decided round=%d value=%s\n", d.nodeID, d.round, d.value)
		case <-timer.C:
			return fmt.Errorf("simulation deadline exceeded: %d/%d replicas decided", len(seen), want)
		case <-ctx.Done():
			return fmt.Errorf("interrupted: %d/%d replicas decided", len(seen), want)
		}
	}
	return nil
}

// decision is one replica's committed value, reported back to the CLI.
type decision struct {
	nodeID string
	round  int64
	value  algorithm.Value
}

// recordingSink implements core.DecisionSink by forwarding to a channel.
type recordingSink struct {
	nodeID string
	ch     chan<- decision
}

func (s *recordingSink) Decided(height uint64, round int64, value algorithm.Value) {
	s.ch <- decision{nodeID: s.nodeID, round: round, value: value}
}

// roundRobinOracle assigns the proposer role by (height+round) mod
// committee size, and assembles a fresh Value from a local counter
// (big-endian, first 8 bytes) followed by the bytes of its own identity;
// nothing is hashed. Real value validity and proposal content are a
// driver concern outside SPEC_FULL's core; this is a stand-in good enough
// to drive the simulate command to a decision.
type roundRobinOracle struct {
	self       string
	validators []string
	mu         sync.Mutex
	counter    uint64
}

func (o *roundRobinOracle) Proposer(height uint64, round int64) bool {
	n := int64(len(o.validators))
	if n == 0 {
		return false
	}
	idx := ((int64(height) + round) % n + n) % n
	return o.validators[idx] == o.self
}

func (o *roundRobinOracle) Value() (algorithm.Value, error) {
	o.mu.Lock()
	o.counter++
	c := o.counter
	o.mu.Unlock()

	var v algorithm.Value
	binary.BigEndian.PutUint64(v[:8], c)
	copy(v[8:], o.self)
	return v, nil
}

func validatorIDs(validators []config.Validator) []string {
	ids := make([]string, len(validators))
	for i, v := range validators {
		ids[i] = v.ID
	}
	return ids
}

// replica bundles one validator's Driver with the Aggregator that tallies
// votes broadcast to it, plus the Oracle it consults to decide whether a
// RoundSkip it observes from peers should be delivered as proposer or not.
type replica struct {
	power      uint64
	driver     *core.Driver
	aggregator *core.Aggregator
	oracle     core.Oracle
}

// hub is the in-memory stand-in for a P2P network: it fans a Broadcast
// call out to every registered replica. Proposals are delivered straight
// to the replica's Driver; votes go to its Aggregator, and the hub delivers
// whatever Events the Aggregator's tally newly justifies. Grounded on
// consensus/tendermint/support_test.go's notifyingBroadcaster, generalized
// from a single mock broadcaster to an N-way hub.
type hub struct {
	mu         sync.Mutex
	replicas   map[string]*replica
	totalPower uint64
}

func newHub(totalPower uint64) *hub {
	return &hub{replicas: make(map[string]*replica), totalPower: totalPower}
}

func (h *hub) register(id string, power uint64, d *core.Driver, oracle core.Oracle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replicas[id] = &replica{power: power, driver: d, aggregator: core.NewAggregator(h.totalPower), oracle: oracle}
}

func (h *hub) stopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.replicas {
		r.driver.Stop()
	}
}

func (h *hub) dispatch(sender string, power uint64, msg *algorithm.Message) {
	h.mu.Lock()
	replicas := make([]*replica, 0, len(h.replicas))
	for _, r := range h.replicas {
		replicas = append(replicas, r)
	}
	h.mu.Unlock()

	for _, r := range replicas {
		switch msg.Type {
		case algorithm.MessageProposal:
			if msg.PolRound < 0 {
				r.driver.Deliver(algorithm.ProposalEvent(msg.Round, *msg.Value))
			} else {
				r.driver.Deliver(algorithm.ProposalPolkaEvent(msg.Round, msg.PolRound, *msg.Value))
			}
		case algorithm.MessagePrevote:
			for _, e := range r.aggregator.AddPrevote(msg.Round, sender, power, msg.Value) {
				r.driver.Deliver(e)
			}
			r.observeRound(msg.Round, sender, power)
		case algorithm.MessagePrecommit:
			for _, e := range r.aggregator.AddPrecommit(msg.Round, sender, power, msg.Value) {
				r.driver.Deliver(e)
			}
			r.observeRound(msg.Round, sender, power)
		}
	}
}

// observeRound feeds a vote's round into the Aggregator's RoundSkip
// detection and, if peers claiming round are now trusted over
// FaultThreshold, delivers the resulting event: RoundSkipProposerEvent
// with a freshly assembled value if this replica is proposer for round,
// or the plain RoundSkipEvent otherwise. Mirrors the proposer/non-proposer
// split core.Driver.stepTimeout already applies to TimeoutPrecommit.
func (r *replica) observeRound(round int64, sender string, power uint64) {
	e := r.aggregator.ObserveRound(round, sender, power, r.driver.State().Round)
	if e == nil {
		return
	}
	if r.oracle.Proposer(r.driver.State().Height, round) {
		value, err := r.oracle.Value()
		if err == nil {
			r.driver.Deliver(algorithm.RoundSkipProposerEvent(round, value))
			return
		}
	}
	r.driver.Deliver(*e)
}

// namedBroadcaster is one replica's core.Broadcaster, binding its sender
// identity and voting power to every Broadcast call so the hub can tally
// votes without the core.Broadcaster interface itself needing to carry
// sender information.
type namedBroadcaster struct {
	senderID string
	power    uint64
	hub      *hub
}

func (b *namedBroadcaster) Broadcast(height uint64, msg *algorithm.Message) {
	b.hub.dispatch(b.senderID, b.power, msg)
}
