// Package evmtest is an in-memory evm.Backend for tests. Contract calls are
// dispatched to handlers registered per (address, selector), and Multicall3
// aggregate3 batches are fanned out to the same handlers.
package evmtest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/RaghavSood/dexswap/chains"
	"github.com/RaghavSood/dexswap/evm"
)

// Handler answers a call with the full calldata, selector included.
type Handler func(data []byte) ([]byte, error)

type route struct {
	to  common.Address
	sel [4]byte
}

// Backend fakes the chain. The zero value is not usable; call New.
type Backend struct {
	mu       sync.Mutex
	chainID  *big.Int
	baseFee  *big.Int
	handlers map[route]Handler
	calls    map[common.Address]int
	nonce    uint64
	block    uint64
	balances map[common.Address]*big.Int
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	tokens   map[common.Address]*Token

	// OnSend builds the receipt for a submitted transaction. Status, logs
	// and gas come from it; hash, block and price are filled in. nil means
	// a successful receipt with no logs.
	OnSend func(tx *types.Transaction) *types.Receipt
	// EstimateErr, when set, fails every gas estimate.
	EstimateErr error
}

var _ evm.Backend = (*Backend)(nil)

// New returns a backend for chainID with Multicall3 answering at its
// canonical address.
func New(chainID int64) *Backend {
	b := &Backend{
		chainID:  big.NewInt(chainID),
		baseFee:  big.NewInt(1e9),
		handlers: make(map[route]Handler),
		calls:    make(map[common.Address]int),
		block:    100,
		balances: make(map[common.Address]*big.Int),
		receipts: make(map[common.Hash]*types.Receipt),
	}
	b.HandleABI(common.HexToAddress(chains.Multicall3Address), evm.Multicall3ABI, "aggregate3", b.aggregate3)
	return b
}

// SetLegacy removes the base fee so senders build legacy transactions.
func (b *Backend) SetLegacy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseFee = nil
}

// Handle registers h for calls to (to, selector).
func (b *Backend) Handle(to common.Address, selector []byte, h Handler) {
	var sel [4]byte
	copy(sel[:], selector)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[route{to, sel}] = h
}

// HandleABI registers fn for method of parsed at to. fn receives the
// unpacked arguments and returns the outputs to pack.
func (b *Backend) HandleABI(to common.Address, parsed abi.ABI, method string, fn func(args []interface{}) ([]interface{}, error)) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("evmtest: no method %q in ABI", method))
	}
	b.Handle(to, m.ID, func(data []byte) ([]byte, error) {
		args, err := m.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, fmt.Errorf("evmtest: unpacking %s: %w", method, err)
		}
		out, err := fn(args)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(out...)
	})
}

// Calls is the number of calls routed to addr, multicall sub-calls included.
func (b *Backend) Calls(addr common.Address) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[addr]
}

// TotalCalls is the number of top-level and sub-calls dispatched.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// SetBalance sets the native balance of addr.
func (b *Backend) SetBalance(addr common.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Set(v)
}

// Sent returns the transactions submitted so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func (b *Backend) dispatch(to common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, Revert(nil)
	}
	var sel [4]byte
	copy(sel[:], data[:4])

	b.mu.Lock()
	h, ok := b.handlers[route{to, sel}]
	b.calls[to]++
	b.mu.Unlock()

	if !ok {
		return nil, Revert(nil)
	}
	return h(data)
}

func (b *Backend) aggregate3(args []interface{}) ([]interface{}, error) {
	calls := args[0].([]struct {
		Target       common.Address `json:"target"`
		AllowFailure bool           `json:"allowFailure"`
		CallData     []byte         `json:"callData"`
	})
	results := make([]evm.Result, len(calls))
	for i, c := range calls {
		out, err := b.dispatch(c.Target, c.CallData)
		if err != nil {
			if !c.AllowFailure {
				return nil, err
			}
			results[i] = evm.Result{Success: false, ReturnData: []byte{}}
			continue
		}
		results[i] = evm.Result{Success: true, ReturnData: out}
	}
	return []interface{}{results}, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, fmt.Errorf("evmtest: contract creation not supported")
	}
	return b.dispatch(*msg.To, msg.Data)
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for r := range b.handlers {
		if r.to == account {
			return []byte{0x60, 0x80}, nil
		}
	}
	return nil, nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2e9), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return 150000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	var r *types.Receipt
	if b.OnSend != nil {
		r = b.OnSend(tx)
	}
	if r == nil {
		r = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if tx.Nonce() != b.nonce {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), b.nonce)
	}
	b.nonce++
	b.block++
	b.sent = append(b.sent, tx)

	r.TxHash = tx.Hash()
	r.BlockNumber = new(big.Int).SetUint64(b.block)
	if r.GasUsed == 0 {
		r.GasUsed = 100000
	}
	if r.EffectiveGasPrice == nil {
		r.EffectiveGasPrice = big.NewInt(2e9)
	}
	for _, l := range r.Logs {
		l.TxHash = r.TxHash
		l.BlockNumber = b.block
	}
	b.receipts[tx.Hash()] = r
	if r.Status == types.ReceiptStatusSuccessful {
		b.applyApprove(tx)
	}
	return nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := &types.Header{Number: new(big.Int).SetUint64(b.block), Time: 1700000000}
	if b.baseFee != nil {
		h.BaseFee = new(big.Int).Set(b.baseFee)
	}
	return h, nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// RevertError is a node error carrying revert data, like ethclient returns.
type RevertError struct {
	Data []byte
}

// Revert returns the error a node gives for a call reverting with data.
func Revert(data []byte) error { return &RevertError{Data: data} }

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }
