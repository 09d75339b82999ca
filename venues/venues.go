// Package venues holds one thin client per on-chain exchange contract:
// quoters priced with eth_call and routers that only build calldata.
package venues

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/swaperr"
)

func mustABI(js string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(err)
	}
	return a
}

// contract binds an ABI to a deployed address.
type contract struct {
	name    string
	rpc     *evm.Client
	address common.Address
	abi     abi.ABI
}

// call packs method, runs it as a read and unpacks the outputs. Reverts are
// quote failures.
func (c contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	op := c.name + "." + method
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindValidation, op, err)
	}
	out, err := c.rpc.Call(ctx, op, swaperr.KindQuote, ethereum.CallMsg{To: &c.address, Data: data})
	if err != nil {
		return nil, err
	}
	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindQuote, op, fmt.Errorf("unpacking: %w", err))
	}
	return vals, nil
}

// firstBig returns vals[0] as a big.Int.
func firstBig(vals []interface{}) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty return")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected return type %T", vals[0])
	}
	return v, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
