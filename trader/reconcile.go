package trader

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/evm"
	"github.com/RaghavSood/dexswap/pricing"
	"github.com/RaghavSood/dexswap/swaps"
	"github.com/RaghavSood/dexswap/tokens"
)

// Reconcile reads what the trade actually spent and received from the
// receipt's logs. Amounts with no matching event are zero, except native
// output with no WETH unwrap, which comes from the balance change across
// the receipt block.
func (t *Trader) Reconcile(ctx context.Context, intent swaps.Intent, strategy string, tx *types.Transaction, receipt *types.Receipt) (swaps.TradeResult, error) {
	shape, err := intent.Shape()
	if err != nil {
		return swaps.TradeResult{}, err
	}
	owner := t.submitter.From()

	ethSpent := new(big.Int)
	ethReceived := new(big.Int)
	tokensSpent := new(big.Int)
	tokensReceived := new(big.Int)

	switch shape {
	case swaps.ShapeNativeForToken:
		ethSpent.Set(tx.Value())
		tokensReceived = sumTransfers(receipt.Logs, intent.OutputToken, common.Address{}, owner)
	case swaps.ShapeTokenForNative:
		tokensSpent = sumTransfers(receipt.Logs, intent.InputToken, owner, common.Address{})
		ethReceived = sumWithdrawals(receipt.Logs, t.chain.WrappedNative())
		if ethReceived.Sign() == 0 {
			ethReceived = t.nativeDelta(ctx, owner, tx, receipt)
		}
	case swaps.ShapeTokenForToken:
		tokensSpent = sumTransfers(receipt.Logs, intent.InputToken, owner, common.Address{})
		tokensReceived = sumTransfers(receipt.Logs, intent.OutputToken, common.Address{}, owner)
	}

	spentToken, receivedToken := intent.InputToken, intent.OutputToken
	if shape == swaps.ShapeNativeForToken {
		spentToken = common.Address{}
	}
	if shape == swaps.ShapeTokenForNative {
		receivedToken = common.Address{}
	}
	spentFmt, err := t.format(ctx, spentToken, tokensSpent)
	if err != nil {
		return swaps.TradeResult{}, err
	}
	receivedFmt, err := t.format(ctx, receivedToken, tokensReceived)
	if err != nil {
		return swaps.TradeResult{}, err
	}

	return swaps.TradeResult{
		Strategy:       strategy,
		TxHash:         receipt.TxHash,
		Block:          receipt.BlockNumber.Uint64(),
		GasCost:        evm.GasCost(receipt),
		ApprovalGas:    new(big.Int),
		EthSpent:       swaps.Amount{Raw: ethSpent, Formatted: pricing.FormatUnits(ethSpent, tokens.NativeDecimals)},
		EthReceived:    swaps.Amount{Raw: ethReceived, Formatted: pricing.FormatUnits(ethReceived, tokens.NativeDecimals)},
		TokensSpent:    spentFmt,
		TokensReceived: receivedFmt,
	}, nil
}

// nativeDelta is the owner's native balance change over the receipt block
// with the swap's own gas and value added back. Swaps that pay out native
// currency directly, such as singleton-pool takes, emit no unwrap event.
// Another transfer to the owner in the same block is counted too. A failed
// read logs and reports zero, since the trade itself already confirmed.
func (t *Trader) nativeDelta(ctx context.Context, owner common.Address, tx *types.Transaction, receipt *types.Receipt) *big.Int {
	zero := new(big.Int)
	if receipt.BlockNumber == nil || receipt.BlockNumber.Sign() <= 0 {
		return zero
	}
	log := t.log.WithFields(logrus.Fields{"stage": "reconcile", "block": receipt.BlockNumber.String()})
	after, err := t.network.BalanceAt(ctx, owner, receipt.BlockNumber)
	if err != nil {
		log.WithError(err).Warn("reading native balance after swap")
		return zero
	}
	before, err := t.network.BalanceAt(ctx, owner, new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1)))
	if err != nil {
		log.WithError(err).Warn("reading native balance before swap")
		return zero
	}
	delta := new(big.Int).Sub(after, before)
	delta.Add(delta, evm.GasCost(receipt))
	delta.Add(delta, tx.Value())
	if delta.Sign() < 0 {
		return zero
	}
	return delta
}

// format renders raw in token's decimals. The zero address means the side
// is native and carries no token amount.
func (t *Trader) format(ctx context.Context, token common.Address, raw *big.Int) (swaps.Amount, error) {
	if token == (common.Address{}) {
		return swaps.Amount{Raw: raw, Formatted: pricing.FormatUnits(raw, tokens.NativeDecimals)}, nil
	}
	meta, err := t.tokens.Metadata(ctx, token)
	if err != nil {
		return swaps.Amount{}, err
	}
	return swaps.Amount{Raw: raw, Formatted: pricing.FormatUnits(raw, meta.Decimals)}, nil
}

// sumTransfers totals Transfer events emitted by token. A zero from or to
// matches any address.
func sumTransfers(logs []*types.Log, token, from, to common.Address) *big.Int {
	total := new(big.Int)
	for _, l := range logs {
		if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != tokens.TransferTopic {
			continue
		}
		if from != (common.Address{}) && common.BytesToAddress(l.Topics[1].Bytes()) != from {
			continue
		}
		if to != (common.Address{}) && common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}

// sumWithdrawals totals WETH unwraps in the receipt. The unwrap is done by
// the router on the account's behalf, so the source is not matched.
func sumWithdrawals(logs []*types.Log, weth common.Address) *big.Int {
	total := new(big.Int)
	for _, l := range logs {
		if l.Address != weth || len(l.Topics) != 2 || l.Topics[0] != tokens.WithdrawalTopic {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}
