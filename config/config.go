// Package config loads the trading configuration from a JSON or YAML file,
// with .env and environment overrides for secrets and endpoints.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/wallet"
)

// Defaults applied by Load.
const (
	DefaultChain          = "base"
	DefaultSlippage       = 0.005
	DefaultMaxPriceImpact = 5.0
	DefaultRouteCacheTTL  = 10 * time.Minute
	DefaultCallTimeout    = 20 * time.Second
	DefaultConfirmTimeout = 3 * time.Minute
	DefaultDeadline       = 20 * time.Minute
	DefaultV4FeeTier      = 3000
	DefaultLogLevel       = "info"
)

// Environment overrides.
const (
	EnvMnemonic   = "DEXSWAP_MNEMONIC"
	EnvPrivateKey = "DEXSWAP_PRIVATE_KEY"
	EnvRedisAddr  = "DEXSWAP_REDIS_ADDR"
	// EnvRPCPrefix is followed by the upper-cased chain name.
	EnvRPCPrefix = "DEXSWAP_RPC_"
)

// Duration reads "10m"-style strings, or whole seconds as a number.
type Duration struct {
	time.Duration
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.set(s)
	}
	var secs int64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\" or seconds: %s", b)
	}
	d.Duration = time.Duration(secs) * time.Second
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if node.Tag == "!!int" {
		if err := node.Decode(&secs); err != nil {
			return err
		}
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	return d.set(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type Config struct {
	// Chain traded on when the CLI does not name one
	Chain string `json:"chain" yaml:"chain"`

	// RPC endpoints for supported chains
	RPCEndpoints map[string]string `json:"rpc_endpoints" yaml:"rpc_endpoints"`

	// BIP39 mnemonic for wallet derivation; PrivateKey is used when empty
	Mnemonic     string `json:"mnemonic" yaml:"mnemonic"`
	PrivateKey   string `json:"private_key" yaml:"private_key"`
	AccountIndex uint32 `json:"account_index" yaml:"account_index"`

	// Tolerated shortfall as a fraction, and the price impact ceiling in percent
	SlippageTolerance float64 `json:"slippage_tolerance" yaml:"slippage_tolerance"`
	MaxPriceImpact    float64 `json:"max_price_impact" yaml:"max_price_impact"`

	RouteCacheTTL  Duration `json:"route_cache_ttl" yaml:"route_cache_ttl"`
	CallTimeout    Duration `json:"call_timeout" yaml:"call_timeout"`
	ConfirmTimeout Duration `json:"confirm_timeout" yaml:"confirm_timeout"`
	Deadline       Duration `json:"deadline" yaml:"deadline"`

	// Enabled venues; empty means every venue the chain supports
	Venues []string `json:"venues" yaml:"venues"`

	// Universal Router command table: "v2" (current) or "v1" (legacy)
	RouterVersion string `json:"router_version" yaml:"router_version"`
	V4FeeTier     uint32 `json:"v4_fee_tier" yaml:"v4_fee_tier"`

	// Optional shared route cache tier
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`

	// Optional path to the SQLite trade journal
	DatabasePath string `json:"database_path" yaml:"database_path"`

	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Load reads path, applies .env and environment overrides, fills defaults
// and validates. envFiles default to ".env"; missing files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMnemonic); v != "" {
		c.Mnemonic = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.RedisAddr = v
	}
	for _, name := range chains.Names() {
		if v := os.Getenv(EnvRPCPrefix + strings.ToUpper(name)); v != "" {
			if c.RPCEndpoints == nil {
				c.RPCEndpoints = make(map[string]string)
			}
			c.RPCEndpoints[name] = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Chain == "" {
		c.Chain = DefaultChain
	}
	if c.SlippageTolerance == 0 {
		c.SlippageTolerance = DefaultSlippage
	}
	if c.MaxPriceImpact == 0 {
		c.MaxPriceImpact = DefaultMaxPriceImpact
	}
	if c.RouteCacheTTL.Duration == 0 {
		c.RouteCacheTTL.Duration = DefaultRouteCacheTTL
	}
	if c.CallTimeout.Duration == 0 {
		c.CallTimeout.Duration = DefaultCallTimeout
	}
	if c.ConfirmTimeout.Duration == 0 {
		c.ConfirmTimeout.Duration = DefaultConfirmTimeout
	}
	if c.Deadline.Duration == 0 {
		c.Deadline.Duration = DefaultDeadline
	}
	if c.V4FeeTier == 0 {
		c.V4FeeTier = DefaultV4FeeTier
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c *Config) validate() error {
	if c.Mnemonic == "" && c.PrivateKey == "" {
		return fmt.Errorf("mnemonic or private_key is required")
	}
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("rpc_endpoints is required")
	}
	for name := range c.RPCEndpoints {
		if _, err := chains.Lookup(name); err != nil {
			return fmt.Errorf("rpc_endpoints: %w", err)
		}
	}
	if _, err := chains.Lookup(c.Chain); err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	if c.SlippageTolerance <= 0 || c.SlippageTolerance >= 1 {
		return fmt.Errorf("slippage_tolerance must be between 0 and 1, got %v", c.SlippageTolerance)
	}
	if c.MaxPriceImpact <= 0 || c.MaxPriceImpact > 100 {
		return fmt.Errorf("max_price_impact must be between 0 and 100 percent, got %v", c.MaxPriceImpact)
	}
	for field, d := range map[string]Duration{
		"route_cache_ttl": c.RouteCacheTTL,
		"call_timeout":    c.CallTimeout,
		"confirm_timeout": c.ConfirmTimeout,
		"deadline":        c.Deadline,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", field)
		}
	}
	known := map[string]bool{
		chains.VenueUniswapV2: true,
		chains.VenueUniswapV3: true,
		chains.VenueUniswapV4: true,
		chains.VenueAerodrome: true,
	}
	for _, v := range c.Venues {
		if !known[v] {
			return fmt.Errorf("venues: unknown venue %q", v)
		}
	}
	if _, err := codec.ParseRouterVersion(c.RouterVersion); err != nil {
		return fmt.Errorf("router_version: %w", err)
	}
	if _, err := codec.TickSpacingForFee(c.V4FeeTier); err != nil {
		return fmt.Errorf("v4_fee_tier: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Endpoint is the RPC URL for chain.
func (c *Config) Endpoint(chain string) (string, error) {
	url, ok := c.RPCEndpoints[chain]
	if !ok || url == "" {
		return "", fmt.Errorf("no rpc endpoint configured for %s", chain)
	}
	return url, nil
}

// Account loads the signing key. The mnemonic wins over private_key.
func (c *Config) Account() (wallet.Account, error) {
	if c.Mnemonic != "" {
		return wallet.FromMnemonic(c.Mnemonic, c.AccountIndex)
	}
	return wallet.FromHex(c.PrivateKey)
}

func (c *Config) Slippage() decimal.Decimal {
	return decimal.NewFromFloat(c.SlippageTolerance)
}

func (c *Config) MaxImpact() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxPriceImpact)
}

// EnabledVenues filters the chain's venues by the configured list.
func (c *Config) EnabledVenues(chain chains.Config) []string {
	all := chain.Venues()
	if len(c.Venues) == 0 {
		return all
	}
	var out []string
	for _, v := range all {
		for _, want := range c.Venues {
			if v == want {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
