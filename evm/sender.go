package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/RaghavSood/dexswap/swaperr"
)

// TxRequest is an unsigned transaction: destination, calldata and value.
type TxRequest struct {
	To    common.Address `json:"to"`
	Data  []byte         `json:"data"`
	Value *big.Int       `json:"value"`
	// Gas overrides the estimate when non-zero.
	Gas uint64 `json:"gas,omitempty"`
}

func (r TxRequest) msg(from common.Address) ethereum.CallMsg {
	to := r.To
	return ethereum.CallMsg{From: from, To: &to, Value: r.Value, Data: r.Data, Gas: r.Gas}
}

// DefaultConfirmTimeout bounds Wait when the caller gives no deadline.
const DefaultConfirmTimeout = 3 * time.Minute

// Sender signs and submits transactions for one key. Sends are serialised so
// two transactions from the key never race for a nonce.
type Sender struct {
	client         *Client
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
	log            logrus.FieldLogger

	mu sync.Mutex
}

// NewSender builds a sender for key on chainID.
func NewSender(client *Client, key *ecdsa.PrivateKey, chainID *big.Int, log logrus.FieldLogger) *Sender {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sender{
		client:         client,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        new(big.Int).Set(chainID),
		confirmTimeout: DefaultConfirmTimeout,
		log:            log,
	}
}

// SetConfirmTimeout changes how long Wait blocks for a receipt.
func (s *Sender) SetConfirmTimeout(d time.Duration) {
	if d > 0 {
		s.confirmTimeout = d
	}
}

// From is the signing address.
func (s *Sender) From() common.Address { return s.from }

// Key is the signing key, for off-chain signatures.
func (s *Sender) Key() *ecdsa.PrivateKey { return s.key }

// ChainID is the chain the sender signs for.
func (s *Sender) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// Client is the backend the sender submits through.
func (s *Sender) Client() *Client { return s.client }

// Simulate runs req as a read-only call from the sender. A revert becomes a
// Simulation error carrying the decoded reason.
func (s *Sender) Simulate(ctx context.Context, req TxRequest) ([]byte, error) {
	return s.client.Call(ctx, "simulate", swaperr.KindSimulation, req.msg(s.from))
}

// Send estimates, signs and submits req. It does not wait for inclusion.
func (s *Sender) Send(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	gas := req.Gas
	if gas == 0 {
		est, err := s.client.EstimateGas(ctx, req.msg(s.from))
		if err != nil {
			return nil, fmt.Errorf("estimating gas: %w", err)
		}
		// 20% headroom over the estimate
		gas = est * 12 / 10
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	tx, err := s.buildTx(ctx, nonce, gas, value, req)
	if err != nil {
		return nil, err
	}

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("sending tx: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"tx":    signedTx.Hash().Hex(),
		"to":    req.To.Hex(),
		"nonce": nonce,
		"gas":   gas,
	}).Info("transaction sent")
	return signedTx, nil
}

func (s *Sender) buildTx(ctx context.Context, nonce, gas uint64, value *big.Int, req TxRequest) (*types.Transaction, error) {
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("getting head: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting gas price: %w", err)
		}
		return types.NewTransaction(nonce, req.To, value, gas, gasPrice, req.Data), nil
	}

	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	to := req.To
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	}), nil
}

// Wait blocks until tx is mined. A missing receipt or a failed status is a
// Confirmation error.
func (s *Sender) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, s.client, tx)
	if err != nil {
		return nil, &swaperr.Error{Kind: swaperr.KindConfirmation, Op: "wait", Msg: "no receipt for " + tx.Hash().Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, swaperr.New(swaperr.KindConfirmation, "wait", "transaction %s reverted in block %d", tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}
	s.log.WithFields(logrus.Fields{
		"tx":    tx.Hash().Hex(),
		"block": receipt.BlockNumber.Uint64(),
		"gas":   receipt.GasUsed,
	}).Info("transaction confirmed")
	return receipt, nil
}

// SendAndWait submits req and waits for it to be mined.
func (s *Sender) SendAndWait(ctx context.Context, req TxRequest) (*types.Receipt, error) {
	tx, err := s.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Wait(ctx, tx)
}

// GasCost is gasUsed * effectiveGasPrice for a receipt.
func GasCost(r *types.Receipt) *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
