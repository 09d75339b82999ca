// Package chains holds the static per-chain address tables the swap core
// reads: token addresses and the contracts of every supported venue.
package chains

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/swaperr"
)

// Venue names.
const (
	VenueUniswapV2 = "uniswap-v2"
	VenueUniswapV3 = "uniswap-v3"
	VenueUniswapV4 = "uniswap-v4"
	VenueAerodrome = "aerodrome"
)

// Permit2Address is the canonical Permit2 deployment (same on all chains).
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// Multicall3Address is the canonical Multicall3 deployment.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

// Tokens lists the well-known tokens of a chain.
type Tokens struct {
	WrappedNative string
	USDC          string
	USDT          string
	DAI           string
}

// Contracts lists venue contract addresses. Blank means "not deployed".
type Contracts struct {
	V2Factory string
	V2Router  string

	V3Factory    string
	V3QuoterV2   string
	V3SwapRouter string

	V4PoolManager   string
	V4Quoter        string
	UniversalRouter string
	Permit2         string

	AerodromeRouter  string
	AerodromeFactory string

	Multicall3 string
}

// Config is everything the core needs to know about one chain.
type Config struct {
	Name         string
	ChainID      int64
	NativeSymbol string
	Tokens       Tokens
	Contracts    Contracts
}

var registry = map[string]Config{
	"ethereum": {
		Name:         "ethereum",
		ChainID:      1,
		NativeSymbol: "ETH",
		Tokens: Tokens{
			WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			USDC:          "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			USDT:          "0xdAC17F958D2ee523a2206206994597C13D831ec7",
			DAI:           "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		},
		Contracts: Contracts{
			V2Factory:       "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
			V2Router:        "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
			V3Factory:       "0x1F98431c8aD98523631AE4a59f267346ea31F984",
			V3QuoterV2:      "0x61fFE014bA17989E743c5F6cB21bF9697530B21e",
			V3SwapRouter:    "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45",
			V4PoolManager:   "0x000000000004444c5dc75cB358380D2e3dE08A90",
			V4Quoter:        "0x52F0E24D1c21C8A0cB1e5a5dD6198556BD9E1203",
			UniversalRouter: "0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af",
			Permit2:         Permit2Address,
			Multicall3:      Multicall3Address,
		},
	},
	"base": {
		Name:         "base",
		ChainID:      8453,
		NativeSymbol: "ETH",
		Tokens: Tokens{
			WrappedNative: "0x4200000000000000000000000000000000000006",
			USDC:          "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			DAI:           "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
		},
		Contracts: Contracts{
			V2Factory:        "0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6",
			V2Router:         "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
			V3Factory:        "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
			V3QuoterV2:       "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
			V3SwapRouter:     "0x2626664c2603336E57B271c5C0b26F421741e481",
			V4PoolManager:    "0x498581fF718922c3f8e6A244956aF099B2652b2b",
			V4Quoter:         "0x0d5e0F971ED27FBfF6c2837bf31316121532048D",
			UniversalRouter:  "0x6fF5693b99212Da76ad316178A184AB56D299b43",
			Permit2:          Permit2Address,
			AerodromeRouter:  "0xcF77a3Ba9A5CA399B7c97c74d54e5b1Beb874E43",
			AerodromeFactory: "0x420DD381b31aEf6683db6B902084cB0FFECe40Da",
			Multicall3:       Multicall3Address,
		},
	},
}

// Lookup returns the config for a chain name such as "base".
func Lookup(name string) (Config, error) {
	cfg, ok := registry[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("chain %q not supported", name)
	}
	return cfg, nil
}

// ByID returns the config for a numeric chain id.
func ByID(id int64) (Config, error) {
	for _, cfg := range registry {
		if cfg.ChainID == id {
			return cfg, nil
		}
	}
	return Config{}, fmt.Errorf("chain id %d not supported", id)
}

// Names returns the supported chain names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ID returns the chain id as a big.Int for signers.
func (c Config) ID() *big.Int {
	return big.NewInt(c.ChainID)
}

// required lists the contract fields each venue cannot work without.
func (c Config) required(venue string) (map[string]string, error) {
	ct := c.Contracts
	switch venue {
	case VenueUniswapV2:
		return map[string]string{"v2_router": ct.V2Router, "wrapped_native": c.Tokens.WrappedNative}, nil
	case VenueUniswapV3:
		return map[string]string{"v3_quoter": ct.V3QuoterV2, "v3_swap_router": ct.V3SwapRouter, "wrapped_native": c.Tokens.WrappedNative}, nil
	case VenueUniswapV4:
		return map[string]string{"v4_quoter": ct.V4Quoter, "universal_router": ct.UniversalRouter, "permit2": ct.Permit2, "v4_pool_manager": ct.V4PoolManager}, nil
	case VenueAerodrome:
		return map[string]string{"aerodrome_router": ct.AerodromeRouter, "aerodrome_factory": ct.AerodromeFactory, "wrapped_native": c.Tokens.WrappedNative}, nil
	default:
		return nil, swaperr.New(swaperr.KindConfig, "chains", "unknown venue %q", venue)
	}
}

// Require fails if any address the venue needs on this chain is blank.
func (c Config) Require(venue string) error {
	fields, err := c.required(venue)
	if err != nil {
		return err
	}
	var missing []string
	for name, addr := range fields {
		if addr == "" || !common.IsHexAddress(addr) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return swaperr.New(swaperr.KindConfig, "chains", "%s on %s: missing %s", venue, c.Name, strings.Join(missing, ", "))
	}
	return nil
}

// Venues returns the venues fully configured on this chain.
func (c Config) Venues() []string {
	var out []string
	for _, v := range []string{VenueUniswapV2, VenueUniswapV3, VenueUniswapV4, VenueAerodrome} {
		if c.Require(v) == nil {
			out = append(out, v)
		}
	}
	return out
}

// WrappedNative returns the wrapped native token address.
func (c Config) WrappedNative() common.Address {
	return common.HexToAddress(c.Tokens.WrappedNative)
}

// Stablecoin returns the reference stablecoin used for fiat conversion.
func (c Config) Stablecoin() common.Address {
	return common.HexToAddress(c.Tokens.USDC)
}

// BridgeTokens returns the intermediate assets tried for two-hop routes, in
// preference order.
func (c Config) BridgeTokens() []common.Address {
	var out []common.Address
	for _, a := range []string{c.Tokens.WrappedNative, c.Tokens.USDC, c.Tokens.USDT, c.Tokens.DAI} {
		if a != "" {
			out = append(out, common.HexToAddress(a))
		}
	}
	return out
}

// Addr parses one of the Contracts fields.
func Addr(hex string) common.Address {
	return common.HexToAddress(hex)
}
