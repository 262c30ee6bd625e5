package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"stakegov/core"
	"stakegov/native/common"
	"stakegov/native/governance"
	"stakegov/native/rewards"
	"stakegov/native/staking"
)

// Duration wraps time.Duration so YAML and TOML files can use strings such as
// "90s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for stakingd.
type Config struct {
	Listen        string           `yaml:"listen" toml:"listen"`
	Env           string           `yaml:"env" toml:"env"`
	Database      DatabaseConfig   `yaml:"database" toml:"database"`
	Cache         CacheConfig      `yaml:"cache" toml:"cache"`
	Ledger        LedgerConfig     `yaml:"ledger" toml:"ledger"`
	Staking       StakingConfig    `yaml:"staking" toml:"staking"`
	Rewards       RewardsConfig    `yaml:"rewards" toml:"rewards"`
	Governance    GovernanceConfig `yaml:"governance" toml:"governance"`
	Journal       JournalConfig    `yaml:"journal" toml:"journal"`
	Logging       LoggingConfig    `yaml:"logging" toml:"logging"`
	Telemetry     TelemetryConfig  `yaml:"telemetry" toml:"telemetry"`
	PausedModules []string         `yaml:"paused_modules" toml:"paused_modules"`
	RateLimit     RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// CacheConfig selects the cache backend and per-family lifetimes.
type CacheConfig struct {
	Driver        string   `yaml:"driver" toml:"driver"`
	Address       string   `yaml:"address" toml:"address"`
	Password      string   `yaml:"password" toml:"password"`
	DB            int      `yaml:"db" toml:"db"`
	Prefix        string   `yaml:"prefix" toml:"prefix"`
	Size          int      `yaml:"size" toml:"size"`
	AccountTTL    Duration `yaml:"account_ttl" toml:"account_ttl"`
	ValidatorsTTL Duration `yaml:"validators_ttl" toml:"validators_ttl"`
	DelegateTTL   Duration `yaml:"delegate_ttl" toml:"delegate_ttl"`
	ProposalTTL   Duration `yaml:"proposal_ttl" toml:"proposal_ttl"`
}

// LedgerConfig configures the JSON-RPC ledger client.
type LedgerConfig struct {
	Endpoint string            `yaml:"endpoint" toml:"endpoint"`
	Timeout  Duration          `yaml:"timeout" toml:"timeout"`
	Headers  map[string]string `yaml:"headers" toml:"headers"`
}

// StakingConfig tunes the staking lifecycle.
type StakingConfig struct {
	UnbondingDays   int `yaml:"unbonding_days" toml:"unbonding_days"`
	AutoSelectCount int `yaml:"auto_select_count" toml:"auto_select_count"`
	HistoryDays     int `yaml:"history_days" toml:"history_days"`
}

// RewardsConfig bounds the effective APY.
type RewardsConfig struct {
	DefaultAPY float64 `yaml:"default_apy" toml:"default_apy"`
	MinAPY     float64 `yaml:"min_apy" toml:"min_apy"`
	MaxAPY     float64 `yaml:"max_apy" toml:"max_apy"`
}

// GovernanceConfig sets proposal defaults. Quorum and threshold are decimal
// strings.
type GovernanceConfig struct {
	BlockTime          Duration `yaml:"block_time" toml:"block_time"`
	VotingPeriodBlocks uint64   `yaml:"voting_period_blocks" toml:"voting_period_blocks"`
	DefaultQuorum      string   `yaml:"default_quorum" toml:"default_quorum"`
	DefaultThreshold   string   `yaml:"default_threshold" toml:"default_threshold"`
	// FinalizeInterval is how often ended proposals are swept and closed.
	// Zero disables the sweep.
	FinalizeInterval   Duration `yaml:"finalize_interval" toml:"finalize_interval"`
}

// JournalConfig locates the reconciliation journal.
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig controls log level and optional rotated file output.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool    `yaml:"insecure" toml:"insecure"`
	Headers     string  `yaml:"headers" toml:"headers"`
	Traces      bool    `yaml:"traces" toml:"traces"`
	Metrics     bool    `yaml:"metrics" toml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

// RateLimitConfig bounds requests per client address. Zero disables the limit.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// Supported backends.
const (
	DatabaseMemory   = "memory"
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	CacheRedis       = "redis"
	CacheMemory      = "memory"
	CacheNone        = "none"
)

// Default returns a configuration suitable for local development.
func Default() Config {
	r := rewards.DefaultConfig()
	g := governance.DefaultPolicy()
	s := staking.DefaultConfig()
	ttls := core.DefaultTTLs()
	return Config{
		Listen:   ":7090",
		Database: DatabaseConfig{Driver: DatabaseSQLite, DSN: "file:stakegov.db?cache=shared"},
		Cache: CacheConfig{
			Driver:        CacheMemory,
			Prefix:        "stakegov:",
			Size:          4096,
			AccountTTL:    Duration{ttls.Account},
			ValidatorsTTL: Duration{ttls.Validators},
			DelegateTTL:   Duration{ttls.Delegate},
			ProposalTTL:   Duration{ttls.Proposal},
		},
		Ledger: LedgerConfig{Endpoint: "http://localhost:8545", Timeout: Duration{15 * time.Second}},
		Staking: StakingConfig{
			UnbondingDays:   int(s.UnbondingPeriod / (24 * time.Hour)),
			AutoSelectCount: s.AutoSelectCount,
			HistoryDays:     int(s.HistoryWindow / (24 * time.Hour)),
		},
		Rewards: RewardsConfig{DefaultAPY: r.DefaultAPY, MinAPY: r.MinAPY, MaxAPY: r.MaxAPY},
		Governance: GovernanceConfig{
			BlockTime:          Duration{g.BlockTime},
			VotingPeriodBlocks: g.VotingPeriodBlocks,
			DefaultQuorum:      g.DefaultQuorum.String(),
			DefaultThreshold:   g.DefaultThreshold.String(),
			FinalizeInterval:   Duration{time.Minute},
		},
		Journal: JournalConfig{Path: "data/reconcile"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path. The format follows the extension:
// .toml files use TOML, everything else YAML. Environment overrides are
// applied after decoding.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	default:
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("STAKEGOV_DATABASE_URL")); v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = DatabasePostgres
		}
	}
	if v := strings.TrimSpace(getenv("STAKEGOV_REDIS_ADDR")); v != "" {
		c.Cache.Driver = CacheRedis
		c.Cache.Address = v
	}
	if v := getenv("STAKEGOV_REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := strings.TrimSpace(getenv("STAKEGOV_LEDGER_ENDPOINT")); v != "" {
		c.Ledger.Endpoint = v
	}
	if v := strings.TrimSpace(getenv("STAKEGOV_ENV")); v != "" {
		c.Env = v
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_HEADERS")); v != "" {
		c.Telemetry.Headers = v
	}
}

func (c *Config) normalize() {
	c.Listen = strings.TrimSpace(c.Listen)
	c.Env = strings.TrimSpace(c.Env)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "postgresql" {
		c.Database.Driver = DatabasePostgres
	}
	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	if c.Cache.Driver == "" {
		c.Cache.Driver = CacheMemory
	}
	defaults := Default()
	if c.Cache.Size <= 0 {
		c.Cache.Size = defaults.Cache.Size
	}
	for _, pair := range []struct{ value, fallback *Duration }{
		{&c.Cache.AccountTTL, &defaults.Cache.AccountTTL},
		{&c.Cache.ValidatorsTTL, &defaults.Cache.ValidatorsTTL},
		{&c.Cache.DelegateTTL, &defaults.Cache.DelegateTTL},
		{&c.Cache.ProposalTTL, &defaults.Cache.ProposalTTL},
		{&c.Ledger.Timeout, &defaults.Ledger.Timeout},
		{&c.Governance.BlockTime, &defaults.Governance.BlockTime},
	} {
		if pair.value.Duration <= 0 {
			*pair.value = *pair.fallback
		}
	}
	if c.Staking.UnbondingDays <= 0 {
		c.Staking.UnbondingDays = defaults.Staking.UnbondingDays
	}
	if c.Staking.AutoSelectCount <= 0 {
		c.Staking.AutoSelectCount = defaults.Staking.AutoSelectCount
	}
	if c.Staking.HistoryDays <= 0 {
		c.Staking.HistoryDays = defaults.Staking.HistoryDays
	}
	if c.Governance.VotingPeriodBlocks == 0 {
		c.Governance.VotingPeriodBlocks = defaults.Governance.VotingPeriodBlocks
	}
	modules := make([]string, 0, len(c.PausedModules))
	for _, module := range c.PausedModules {
		if trimmed := strings.ToLower(strings.TrimSpace(module)); trimmed != "" {
			modules = append(modules, trimmed)
		}
	}
	c.PausedModules = modules
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must be configured")
	}
	switch c.Database.Driver {
	case DatabaseMemory:
	case DatabaseSQLite, DatabasePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database dsn must be configured for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Cache.Driver {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if strings.TrimSpace(c.Cache.Address) == "" {
			return fmt.Errorf("cache address must be configured for redis")
		}
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	if strings.TrimSpace(c.Ledger.Endpoint) == "" {
		return fmt.Errorf("ledger endpoint must be configured")
	}
	if err := c.RewardParams().Validate(); err != nil {
		return err
	}
	if err := c.StakingParams().Validate(); err != nil {
		return err
	}
	policy, err := c.GovernancePolicy()
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	for _, module := range c.PausedModules {
		switch module {
		case common.ModuleStaking, common.ModuleGovernance, common.ModuleDelegation:
		default:
			return fmt.Errorf("unknown paused module %q", module)
		}
	}
	if c.Governance.FinalizeInterval.Duration < 0 {
		return fmt.Errorf("governance finalize_interval must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be within [0, 1]")
	}
	return nil
}

// StakingParams converts the staking section.
func (c Config) StakingParams() staking.Config {
	return staking.Config{
		UnbondingPeriod: time.Duration(c.Staking.UnbondingDays) * 24 * time.Hour,
		AutoSelectCount: c.Staking.AutoSelectCount,
		HistoryWindow:   time.Duration(c.Staking.HistoryDays) * 24 * time.Hour,
	}
}

// RewardParams converts the rewards section.
func (c Config) RewardParams() rewards.Config {
	return rewards.Config{DefaultAPY: c.Rewards.DefaultAPY, MinAPY: c.Rewards.MinAPY, MaxAPY: c.Rewards.MaxAPY}
}

// GovernancePolicy converts the governance section.
func (c Config) GovernancePolicy() (governance.Policy, error) {
	quorum, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(c.Governance.DefaultQuorum))
	if err != nil {
		return governance.Policy{}, fmt.Errorf("governance default_quorum: %w", err)
	}
	threshold, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(c.Governance.DefaultThreshold))
	if err != nil {
		return governance.Policy{}, fmt.Errorf("governance default_threshold: %w", err)
	}
	return governance.Policy{
		BlockTime:          c.Governance.BlockTime.Duration,
		VotingPeriodBlocks: c.Governance.VotingPeriodBlocks,
		DefaultQuorum:      quorum,
		DefaultThreshold:   threshold,
	}, nil
}

// TTLs converts the cache lifetimes.
func (c Config) TTLs() core.TTLs {
	return core.TTLs{
		Account:    c.Cache.AccountTTL.Duration,
		Validators: c.Cache.ValidatorsTTL.Duration,
		Delegate:   c.Cache.DelegateTTL.Duration,
		Proposal:   c.Cache.ProposalTTL.Duration,
	}
}
