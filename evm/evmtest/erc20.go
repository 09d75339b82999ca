package evmtest

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var erc20ABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(`[
		{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
	]`))
	if err != nil {
		panic(err)
	}
	return a
}()

// Token is a fake ERC-20. Approvals sent through the backend update it.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

// AddToken registers an ERC-20 at addr.
func (b *Backend) AddToken(addr common.Address, symbol string, decimals uint8) *Token {
	t := &Token{
		Address:    addr,
		Symbol:     symbol,
		Decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
	}
	b.HandleABI(addr, erc20ABI, "decimals", func([]interface{}) ([]interface{}, error) {
		return []interface{}{t.Decimals}, nil
	})
	b.HandleABI(addr, erc20ABI, "symbol", func([]interface{}) ([]interface{}, error) {
		return []interface{}{t.Symbol}, nil
	})
	b.HandleABI(addr, erc20ABI, "balanceOf", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{t.BalanceOf(args[0].(common.Address))}, nil
	})
	b.HandleABI(addr, erc20ABI, "allowance", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{t.Allowance(args[0].(common.Address), args[1].(common.Address))}, nil
	})
	b.HandleABI(addr, erc20ABI, "approve", func([]interface{}) ([]interface{}, error) {
		return []interface{}{true}, nil
	})

	b.mu.Lock()
	if b.tokens == nil {
		b.tokens = make(map[common.Address]*Token)
	}
	b.tokens[addr] = t
	b.mu.Unlock()
	return t
}

// SetBalance sets owner's balance.
func (t *Token) SetBalance(owner common.Address, v *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Set(v)
}

// BalanceOf returns owner's balance.
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.balances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// SetAllowance sets what spender may pull from owner.
func (t *Token) SetAllowance(owner, spender common.Address, v *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(v)
}

// Allowance returns what spender may pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.allowances[[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// applyApprove mirrors a mined approve() into the token state.
func (b *Backend) applyApprove(tx *types.Transaction) {
	if tx.To() == nil || len(tx.Data()) < 4 {
		return
	}
	t, ok := b.tokens[*tx.To()]
	if !ok {
		return
	}
	m := erc20ABI.Methods["approve"]
	if string(tx.Data()[:4]) != string(m.ID) {
		return
	}
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return
	}
	t.SetAllowance(from, args[0].(common.Address), args[1].(*big.Int))
}
