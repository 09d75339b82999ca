// Package tokens is a small read-mostly ERC-20 client: metadata, balances,
// allowances and approve calldata.
package tokens

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/swaperr"
	"github.com/RaghavSood/dexswap/swaps"
)

const erc20JSON = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"dst","type":"address"},{"indexed":false,"name":"wad","type":"uint256"}],"name":"Deposit","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"src","type":"address"},{"indexed":false,"name":"wad","type":"uint256"}],"name":"Withdrawal","type":"event"}
]`

// ERC20ABI covers ERC-20 plus the WETH9 deposit/withdrawal events.
var ERC20ABI abi.ABI

func init() {
	var err error
	ERC20ABI, err = abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		panic(err)
	}
}

// Event topics matched when reconciling receipts.
var (
	TransferTopic   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	DepositTopic    = crypto.Keccak256Hash([]byte("Deposit(address,uint256)"))
	WithdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))
)

// MaxUint256 is the unlimited approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NativeDecimals is the precision of every supported chain's native asset.
const NativeDecimals = 18

// Metadata describes a token.
type Metadata struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Client reads token state. Metadata is cached for the client's lifetime.
type Client struct {
	rpc          *evm.Client
	multicall    common.Address
	nativeSymbol string

	mu   sync.RWMutex
	meta map[common.Address]Metadata
}

// NewClient returns a client that batches metadata reads through multicall.
func NewClient(rpc *evm.Client, multicall common.Address, nativeSymbol string) *Client {
	return &Client{
		rpc:          rpc,
		multicall:    multicall,
		nativeSymbol: nativeSymbol,
		meta:         make(map[common.Address]Metadata),
	}
}

// Metadata returns symbol and decimals. The native sentinel resolves without
// a chain call. A token that does not answer decimals() is an error.
func (c *Client) Metadata(ctx context.Context, token common.Address) (Metadata, error) {
	if swaps.IsNative(token) {
		return Metadata{Address: swaps.NativeToken, Symbol: c.nativeSymbol, Decimals: NativeDecimals}, nil
	}

	c.mu.RLock()
	m, ok := c.meta[token]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	decData, err := ERC20ABI.Pack("decimals")
	if err != nil {
		return Metadata{}, err
	}
	symData, err := ERC20ABI.Pack("symbol")
	if err != nil {
		return Metadata{}, err
	}

	res, err := c.rpc.Aggregate3(ctx, c.multicall, []evm.Call3{
		{Target: token, AllowFailure: true, CallData: decData},
		{Target: token, AllowFailure: true, CallData: symData},
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("fetching metadata for %s: %w", token.Hex(), err)
	}

	if !res[0].Success || len(res[0].ReturnData) < 32 {
		return Metadata{}, swaperr.New(swaperr.KindValidation, "tokens", "token has no decimals()").WithAddress(token)
	}
	dec := new(big.Int).SetBytes(res[0].ReturnData[:32])
	if !dec.IsUint64() || dec.Uint64() > 77 {
		return Metadata{}, swaperr.New(swaperr.KindValidation, "tokens", "token reports %s decimals", dec).WithAddress(token)
	}

	m = Metadata{Address: token, Decimals: uint8(dec.Uint64())}
	if res[1].Success {
		m.Symbol = decodeSymbol(res[1].ReturnData)
	}

	c.mu.Lock()
	c.meta[token] = m
	c.mu.Unlock()
	return m, nil
}

// decodeSymbol handles both string and bytes32 symbol() returns.
func decodeSymbol(data []byte) string {
	if vals, err := ERC20ABI.Unpack("symbol", data); err == nil {
		if s, ok := vals[0].(string); ok {
			return s
		}
	}
	if len(data) == 32 {
		return string(bytes.TrimRight(data, "\x00"))
	}
	return ""
}

// BalanceOf returns owner's raw balance of token, or the native balance for
// the native sentinel.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if swaps.IsNative(token) {
		return c.rpc.BalanceAt(ctx, owner, nil)
	}
	data, err := ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	if len(out) < 32 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// Allowance returns how much spender may pull from owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("checking allowance: %w", err)
	}
	if len(out) < 32 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// ApproveData is approve(spender, amount) calldata.
func ApproveData(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
