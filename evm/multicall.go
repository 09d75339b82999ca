package evm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/swaperr"
)

const multicall3JSON = `[
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"addr","type":"address"}],"name":"getEthBalance","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Multicall3ABI is the subset of Multicall3 used for batched reads.
var Multicall3ABI abi.ABI

func init() {
	var err error
	Multicall3ABI, err = abi.JSON(strings.NewReader(multicall3JSON))
	if err != nil {
		panic(err)
	}
}

// Call3 is one sub-call of aggregate3.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is one sub-call outcome of aggregate3.
type Result struct {
	Success    bool
	ReturnData []byte
}

// Aggregate3 runs calls in a single eth_call through the Multicall3 contract
// at multicall. Results are 1:1 with calls.
func (c *Client) Aggregate3(ctx context.Context, multicall common.Address, calls []Call3) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	data, err := Multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("packing aggregate3: %w", err)
	}

	output, err := c.Call(ctx, "aggregate3", swaperr.KindQuote, ethereum.CallMsg{To: &multicall, Data: data})
	if err != nil {
		return nil, fmt.Errorf("calling aggregate3: %w", err)
	}

	decoded, err := Multicall3ABI.Unpack("aggregate3", output)
	if err != nil {
		return nil, fmt.Errorf("unpacking aggregate3: %w", err)
	}
	raw, ok := decoded[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		return nil, fmt.Errorf("unexpected aggregate3 return type %T", decoded[0])
	}
	if len(raw) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(raw), len(calls))
	}

	out := make([]Result, len(raw))
	for i, r := range raw {
		out[i] = Result{Success: r.Success, ReturnData: r.ReturnData}
	}
	return out, nil
}
