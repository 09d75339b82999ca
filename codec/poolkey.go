package codec

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Fee tiers in hundredths of a basis point.
const (
	Fee001 uint32 = 100
	Fee005 uint32 = 500
	Fee030 uint32 = 3000
	Fee100 uint32 = 10000
)

// FeeTiers are the tiers the concentrated-liquidity venues are searched over.
var FeeTiers = []uint32{Fee001, Fee005, Fee030, Fee100}

var tickSpacings = map[uint32]int32{
	Fee001: 1,
	Fee005: 10,
	Fee030: 60,
	Fee100: 200,
}

// TickSpacingForFee returns the tick spacing registered for a fee tier.
func TickSpacingForFee(fee uint32) (int32, error) {
	ts, ok := tickSpacings[fee]
	if !ok {
		return 0, fmt.Errorf("no tick spacing registered for fee %d", fee)
	}
	return ts, nil
}

// PoolKey identifies a singleton-pool-manager pool. Currency0 < Currency1.
type PoolKey struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
	Hooks       common.Address `json:"hooks"`
}

// NewPoolKey builds the canonical key for a pair regardless of argument
// order. The zero address is the native currency.
func NewPoolKey(a, b common.Address, fee uint32, hooks common.Address) (PoolKey, error) {
	if a == b {
		return PoolKey{}, fmt.Errorf("pool currencies must differ, both are %s", a.Hex())
	}
	ts, err := TickSpacingForFee(fee)
	if err != nil {
		return PoolKey{}, err
	}
	c0, c1 := SortCurrencies(a, b)
	return PoolKey{Currency0: c0, Currency1: c1, Fee: fee, TickSpacing: ts, Hooks: hooks}, nil
}

// SortCurrencies orders two addresses numerically.
func SortCurrencies(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// ZeroForOne reports whether selling tokenIn moves currency0 into the pool.
func (k PoolKey) ZeroForOne(tokenIn common.Address) bool {
	return tokenIn == k.Currency0
}

// Validate checks the canonical-form invariants.
func (k PoolKey) Validate() error {
	if bytes.Compare(k.Currency0.Bytes(), k.Currency1.Bytes()) >= 0 {
		return fmt.Errorf("pool key not canonical: %s >= %s", k.Currency0.Hex(), k.Currency1.Hex())
	}
	ts, err := TickSpacingForFee(k.Fee)
	if err != nil {
		return err
	}
	if ts != k.TickSpacing {
		return fmt.Errorf("tick spacing %d does not match fee %d (want %d)", k.TickSpacing, k.Fee, ts)
	}
	return nil
}

// PoolKeyTuple is the ABI shape of PoolKey, for packing with a contract ABI.
type PoolKeyTuple struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	Hooks       common.Address
}

// Tuple converts k to its ABI shape.
func (k PoolKey) Tuple() PoolKeyTuple {
	return PoolKeyTuple{
		Currency0:   k.Currency0,
		Currency1:   k.Currency1,
		Fee:         u(uint64(k.Fee)),
		TickSpacing: big.NewInt(int64(k.TickSpacing)),
		Hooks:       k.Hooks,
	}
}

// Encode returns abi.encode(currency0, currency1, fee, tickSpacing, hooks).
func (k PoolKey) Encode() ([]byte, error) {
	return args(tAddress, tAddress, tUint24, tInt24, tAddress).Pack(
		k.Currency0, k.Currency1, u(uint64(k.Fee)), big.NewInt(int64(k.TickSpacing)), k.Hooks,
	)
}

// ID is keccak256 of the ABI-encoded key, the pool manager's PoolId.
func (k PoolKey) ID() (common.Hash, error) {
	enc, err := k.Encode()
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding pool key: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}
