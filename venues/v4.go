package venues

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/evm"
)

// V4QuoterABI covers the two exact-input quotes.
var V4QuoterABI = mustABI(`[
	{"inputs":[{"components":[{"components":[{"name":"currency0","type":"address"},{"name":"currency1","type":"address"},{"name":"fee","type":"uint24"},{"name":"tickSpacing","type":"int24"},{"name":"hooks","type":"address"}],"name":"poolKey","type":"tuple"},{"name":"zeroForOne","type":"bool"},{"name":"exactAmount","type":"uint128"},{"name":"hookData","type":"bytes"}],"name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"name":"amountOut","type":"uint256"},{"name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"components":[{"name":"exactCurrency","type":"address"},{"components":[{"name":"intermediateCurrency","type":"address"},{"name":"fee","type":"uint24"},{"name":"tickSpacing","type":"int24"},{"name":"hooks","type":"address"},{"name":"hookData","type":"bytes"}],"name":"path","type":"tuple[]"},{"name":"exactAmount","type":"uint128"}],"name":"params","type":"tuple"}],"name":"quoteExactInput","outputs":[{"name":"amountOut","type":"uint256"},{"name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`)

// V4QuoteSingleParams is the quoteExactInputSingle argument.
type V4QuoteSingleParams struct {
	PoolKey     codec.PoolKeyTuple
	ZeroForOne  bool
	ExactAmount *big.Int
	HookData    []byte
}

// V4QuoteParams is the multi-hop quoteExactInput argument.
type V4QuoteParams struct {
	ExactCurrency common.Address
	Path          []codec.PathKeyTuple
	ExactAmount   *big.Int
}

// V4Quoter prices singleton pool manager pools.
type V4Quoter struct {
	c contract
}

// NewV4Quoter binds the quoter at address.
func NewV4Quoter(rpc *evm.Client, address common.Address) *V4Quoter {
	return &V4Quoter{c: contract{name: "v4quoter", rpc: rpc, address: address, abi: V4QuoterABI}}
}

// QuoteExactInputSingle quotes one pool.
func (q *V4Quoter) QuoteExactInputSingle(ctx context.Context, key codec.PoolKey, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	vals, err := q.c.call(ctx, "quoteExactInputSingle", V4QuoteSingleParams{
		PoolKey:     key.Tuple(),
		ZeroForOne:  zeroForOne,
		ExactAmount: orZero(amountIn),
		HookData:    []byte{},
	})
	if err != nil {
		return nil, err
	}
	return firstBig(vals)
}

// QuoteExactInput quotes a path of pool keys starting at currencyIn.
func (q *V4Quoter) QuoteExactInput(ctx context.Context, currencyIn common.Address, path []codec.PathKey, amountIn *big.Int) (*big.Int, error) {
	tuples := make([]codec.PathKeyTuple, len(path))
	for i, p := range path {
		tuples[i] = p.Tuple()
	}
	vals, err := q.c.call(ctx, "quoteExactInput", V4QuoteParams{
		ExactCurrency: currencyIn,
		Path:          tuples,
		ExactAmount:   orZero(amountIn),
	})
	if err != nil {
		return nil, err
	}
	return firstBig(vals)
}

// UniversalRouter builds execute calldata for one command-table version.
type UniversalRouter struct {
	address common.Address
	version codec.RouterVersion
}

// NewUniversalRouter returns a builder for the router at address.
func NewUniversalRouter(address common.Address, version codec.RouterVersion) *UniversalRouter {
	return &UniversalRouter{address: address, version: version}
}

// Address is the router contract.
func (r *UniversalRouter) Address() common.Address { return r.address }

// NewBatch starts a command batch for this router's version.
func (r *UniversalRouter) NewBatch() *codec.Batch { return codec.NewBatch(r.version) }

// Execute is execute(commands, inputs, deadline) calldata for batch.
func (r *UniversalRouter) Execute(batch *codec.Batch, deadline *big.Int) ([]byte, error) {
	return batch.Pack(deadline)
}
