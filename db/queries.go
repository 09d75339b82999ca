package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// WithTx runs queries inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Trade is one confirmed swap. Amounts are raw integers as decimal strings.
type Trade struct {
	ID              string
	Chain           string
	Strategy        string
	TxHash          string
	BlockNumber     int64
	InputToken      string
	OutputToken     string
	AmountIn        string
	AmountOut       string
	GasCost         string
	ApprovalGasCost string
	CreatedAt       time.Time
}

type InsertTradeParams struct {
	Chain           string
	Strategy        string
	TxHash          string
	BlockNumber     int64
	InputToken      string
	OutputToken     string
	AmountIn        string
	AmountOut       string
	GasCost         string
	ApprovalGasCost string
}

const insertTrade = `INSERT INTO trades (
    id, chain, strategy, tx_hash, block_number, input_token, output_token,
    amount_in, amount_out, gas_cost, approval_gas_cost, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertTrade stores arg under a fresh uuid.
func (q *Queries) InsertTrade(ctx context.Context, arg InsertTradeParams) (Trade, error) {
	t := Trade{
		ID:              uuid.NewString(),
		Chain:           arg.Chain,
		Strategy:        arg.Strategy,
		TxHash:          arg.TxHash,
		BlockNumber:     arg.BlockNumber,
		InputToken:      arg.InputToken,
		OutputToken:     arg.OutputToken,
		AmountIn:        arg.AmountIn,
		AmountOut:       arg.AmountOut,
		GasCost:         arg.GasCost,
		ApprovalGasCost: arg.ApprovalGasCost,
		CreatedAt:       time.Now().UTC(),
	}
	if t.ApprovalGasCost == "" {
		t.ApprovalGasCost = "0"
	}
	_, err := q.db.ExecContext(ctx, insertTrade,
		t.ID, t.Chain, t.Strategy, t.TxHash, t.BlockNumber, t.InputToken, t.OutputToken,
		t.AmountIn, t.AmountOut, t.GasCost, t.ApprovalGasCost, t.CreatedAt,
	)
	if err != nil {
		return Trade{}, fmt.Errorf("inserting trade: %w", err)
	}
	return t, nil
}

const listTrades = `SELECT id, chain, strategy, tx_hash, block_number, input_token, output_token,
    amount_in, amount_out, gas_cost, approval_gas_cost, created_at
FROM trades ORDER BY created_at DESC, rowid DESC LIMIT ?`

// ListTrades returns the newest trades first.
func (q *Queries) ListTrades(ctx context.Context, limit int64) ([]Trade, error) {
	rows, err := q.db.QueryContext(ctx, listTrades, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Trade
	for rows.Next() {
		var i Trade
		if err := rows.Scan(
			&i.ID,
			&i.Chain,
			&i.Strategy,
			&i.TxHash,
			&i.BlockNumber,
			&i.InputToken,
			&i.OutputToken,
			&i.AmountIn,
			&i.AmountOut,
			&i.GasCost,
			&i.ApprovalGasCost,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type InsertRPCRequestParams struct {
	Endpoint       string
	Method         string
	RequestBody    sql.NullString
	ResponseStatus sql.NullInt64
	ResponseBody   sql.NullString
	Error          sql.NullString
	DurationMs     sql.NullInt64
}

const insertRPCRequest = `INSERT INTO rpc_requests (
    endpoint, method, request_body, response_status, response_body, error, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertRPCRequest(ctx context.Context, arg InsertRPCRequestParams) error {
	_, err := q.db.ExecContext(ctx, insertRPCRequest,
		arg.Endpoint,
		arg.Method,
		arg.RequestBody,
		arg.ResponseStatus,
		arg.ResponseBody,
		arg.Error,
		arg.DurationMs,
	)
	return err
}

type RPCRequest struct {
	ID             int64
	Endpoint       string
	Method         string
	RequestBody    sql.NullString
	ResponseStatus sql.NullInt64
	ResponseBody   sql.NullString
	Error          sql.NullString
	DurationMs     sql.NullInt64
	CreatedAt      time.Time
}

const listRPCRequests = `SELECT id, endpoint, method, request_body, response_status, response_body, error, duration_ms, created_at
FROM rpc_requests ORDER BY id DESC LIMIT ?`

func (q *Queries) ListRPCRequests(ctx context.Context, limit int64) ([]RPCRequest, error) {
	rows, err := q.db.QueryContext(ctx, listRPCRequests, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RPCRequest
	for rows.Next() {
		var i RPCRequest
		if err := rows.Scan(
			&i.ID,
			&i.Endpoint,
			&i.Method,
			&i.RequestBody,
			&i.ResponseStatus,
			&i.ResponseBody,
			&i.Error,
			&i.DurationMs,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
