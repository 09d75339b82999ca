// Package codec packs the binary payloads the on-chain swap contracts expect:
// multi-hop paths, pool identities, Universal Router command batches and V4
// pool-action plans.
package codec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func mustType(t string, components ...abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

func args(types ...abi.Type) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		out[i] = abi.Argument{Type: t}
	}
	return out
}

var (
	tAddress      = mustType("address")
	tAddressArray = mustType("address[]")
	tBool         = mustType("bool")
	tBytes        = mustType("bytes")
	tBytesArray   = mustType("bytes[]")
	tUint24       = mustType("uint24")
	tInt24        = mustType("int24")
	tUint160      = mustType("uint160")
	tUint256      = mustType("uint256")
)

var poolKeyComponents = []abi.ArgumentMarshaling{
	{Name: "currency0", Type: "address"},
	{Name: "currency1", Type: "address"},
	{Name: "fee", Type: "uint24"},
	{Name: "tickSpacing", Type: "int24"},
	{Name: "hooks", Type: "address"},
}

func u(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
