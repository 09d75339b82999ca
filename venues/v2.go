package venues

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/evm"
)

// V2RouterABI is the constant-product router subset the swap core uses.
var V2RouterABI = mustABI(`[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`)

// V2Router is a Uniswap V2 style router.
type V2Router struct {
	c contract
}

// NewV2Router binds the router at address.
func NewV2Router(rpc *evm.Client, address common.Address) *V2Router {
	return &V2Router{c: contract{name: "v2router", rpc: rpc, address: address, abi: V2RouterABI}}
}

// Address is the router contract.
func (r *V2Router) Address() common.Address { return r.c.address }

// GetAmountsOut returns the output at each step of path for amountIn.
func (r *V2Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	vals, err := r.c.call(ctx, "getAmountsOut", orZero(amountIn), path)
	if err != nil {
		return nil, err
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unexpected return type %T", vals[0])
	}
	return amounts, nil
}

// SwapExactETHForTokens is calldata for a native-in swap; msg.value is the
// input amount.
func (r *V2Router) SwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.c.abi.Pack("swapExactETHForTokens", orZero(amountOutMin), path, to, orZero(deadline))
}

// SwapExactTokensForETH is calldata for a native-out swap.
func (r *V2Router) SwapExactTokensForETH(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.c.abi.Pack("swapExactTokensForETH", orZero(amountIn), orZero(amountOutMin), path, to, orZero(deadline))
}

// SwapExactTokensForTokens is calldata for a token-to-token swap.
func (r *V2Router) SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return r.c.abi.Pack("swapExactTokensForTokens", orZero(amountIn), orZero(amountOutMin), path, to, orZero(deadline))
}
