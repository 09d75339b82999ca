package swaps

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RaghavSood/dexswap/routing"
)

// Quote is one strategy's answer for an intent.
type Quote struct {
	Strategy     string        `json:"strategy"`
	OutputAmount string        `json:"output_amount"`
	AmountIn     *big.Int      `json:"amount_in"`
	Route        routing.Route `json:"route"`
}

// IsViable reports whether the quote found any liquidity.
func (q Quote) IsViable() bool {
	return q.Route.AmountOut != nil && q.Route.AmountOut.Sign() > 0
}

// Amount is a raw integer amount with its human-readable rendering.
type Amount struct {
	Raw       *big.Int `json:"raw"`
	Formatted string   `json:"formatted"`
}

// TradeResult describes a confirmed trade, reconstructed from the receipt.
type TradeResult struct {
	Strategy       string      `json:"strategy"`
	TxHash         common.Hash `json:"tx_hash"`
	Block          uint64      `json:"block"`
	GasCost        *big.Int    `json:"gas_cost"`
	ApprovalGas    *big.Int    `json:"approval_gas_cost"`
	EthSpent       Amount      `json:"eth_spent"`
	EthReceived    Amount      `json:"eth_received"`
	TokensSpent    Amount      `json:"tokens_spent"`
	TokensReceived Amount      `json:"tokens_received"`
}
