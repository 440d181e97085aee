// Package config loads the TOML configuration for a tendercore replica:
// the committee it belongs to and the timeout schedule its Driver should
// run with. Grounded on echenim-Bedrock's cmd/bedrockd config loading
// (ControlPlane/cmd/bedrockd/start.go), adapted to github.com/naoina/toml,
// the TOML library the Autonity/go-ethereum lineage in the example pack
// depends on (other_examples/manifests/Dedenwrg-autonity/go.mod,
// ethereum-go-ethereum/go.mod).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/clearmatics/tendermint-core/consensus/tendermint/core"
)

// Validator is one committee member as declared in the genesis/config
// file: an opaque sender identity plus its voting power. Signature
// verification and transport addressing are outside SPEC_FULL's scope and
// are not modelled here.
type Validator struct {
	ID          string `toml:"id"`
	VotingPower uint64 `toml:"voting_power"`
}

// Timeouts is the TOML-shaped form of core.Timeouts: durations expressed
// as strings (e.g. "3s") rather than time.Duration's integer nanoseconds,
// matching the pattern the example pack's TOML-driven configs use for any
// duration field.
type Timeouts struct {
	Propose            string `toml:"propose"`
	ProposeIncrement   string `toml:"propose_increment"`
	Prevote            string `toml:"prevote"`
	PrevoteIncrement   string `toml:"prevote_increment"`
	Precommit          string `toml:"precommit"`
	PrecommitIncrement string `toml:"precommit_increment"`
}

// Config is the on-disk shape of a replica's configuration file.
type Config struct {
	NodeID           string      `toml:"node_id"`
	Validators       []Validator `toml:"validators"`
	Timeouts         Timeouts    `toml:"timeouts"`
	MetricsNamespace string      `toml:"metrics_namespace"`
}

// DefaultConfig mirrors core.DefaultTimeouts in TOML-string form; callers
// load a file on top of this so unset fields keep sane defaults, the same
// pattern echenim-Bedrock's loadConfig uses (config.DefaultConfig()
// followed by toml.Unmarshal into it).
func DefaultConfig() *Config {
	return &Config{
		MetricsNamespace: "tendercore",
		Timeouts: Timeouts{
			Propose:            "3s",
			ProposeIncrement:   "500ms",
			Prevote:            "1s",
			PrevoteIncrement:   "500ms",
			Precommit:          "1s",
			PrecommitIncrement: "500ms",
		},
	}
}

// Load reads and parses the TOML file at path, starting from
// DefaultConfig so a partial file only overrides what it names. A missing
// file is not an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a configuration that cannot produce a working Driver.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: node_id must not be empty")
	}
	if len(c.Validators) == 0 {
		return fmt.Errorf("config: at least one validator is required")
	}
	seen := make(map[string]bool, len(c.Validators))
	for _, v := range c.Validators {
		if v.VotingPower == 0 {
			return fmt.Errorf("config: validator %q has zero voting power", v.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("config: duplicate validator id %q", v.ID)
		}
		seen[v.ID] = true
	}
	if _, err := c.Timeouts.toCore(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// TotalPower sums the voting power of the whole committee, the figure
// core.Quorum/core.FaultThreshold are computed against.
func (c *Config) TotalPower() uint64 {
	var total uint64
	for _, v := range c.Validators {
		total += v.VotingPower
	}
	return total
}

// CoreTimeouts parses Timeouts into core.Timeouts. Called once at startup;
// Validate already checked the durations parse, so the error here should
// never trigger in practice.
func (c *Config) CoreTimeouts() (core.Timeouts, error) {
	return c.Timeouts.toCore()
}

func (t Timeouts) toCore() (core.Timeouts, error) {
	parse := func(field, s string) (time.Duration, error) {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("timeouts.%s: %w", field, err)
		}
		return d, nil
	}

	propose, err := parse("propose", t.Propose)
	if err != nil {
		return core.Timeouts{}, err
	}
	proposeIncrement, err := parse("propose_increment", t.ProposeIncrement)
	if err != nil {
		return core.Timeouts{}, err
	}
	prevote, err := parse("prevote", t.Prevote)
	if err != nil {
		return core.Timeouts{}, err
	}
	prevoteIncrement, err := parse("prevote_increment", t.PrevoteIncrement)
	if err != nil {
		return core.Timeouts{}, err
	}
	precommit, err := parse("precommit", t.Precommit)
	if err != nil {
		return core.Timeouts{}, err
	}
	precommitIncrement, err := parse("precommit_increment", t.PrecommitIncrement)
	if err != nil {
		return core.Timeouts{}, err
	}

	return core.Timeouts{
		Propose:            propose,
		ProposeIncrement:   proposeIncrement,
		Prevote:            prevote,
		PrevoteIncrement:   prevoteIncrement,
		Precommit:          precommit,
		PrecommitIncrement: precommitIncrement,
	}, nil
}
