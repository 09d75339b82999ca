// Package swaperr is the closed set of failure kinds a trade can end in, and
// the boundary helpers that turn raw RPC failures into one of them.
package swaperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind classifies an error. Retry policy depends on the kind only.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindQuote        Kind = "quote"
	KindApproval     Kind = "approval"
	KindRisk         Kind = "risk"
	KindSimulation   Kind = "simulation"
	KindNetwork      Kind = "network"
	KindConfirmation Kind = "confirmation"
	KindConfig       Kind = "config"
	KindTransport    Kind = "transport"
)

// Error lets a bare Kind be used as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Retryable reports whether an operation that failed with kind may be tried
// again unchanged.
func Retryable(k Kind) bool {
	return k == KindTransport
}

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind     Kind
	Op       string
	Msg      string
	Address  common.Address
	Expected string
	Actual   string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	var details []string
	if e.Address != (common.Address{}) {
		details = append(details, "address "+e.Address.Hex())
	}
	if e.Expected != "" {
		details = append(details, "expected "+e.Expected)
	}
	if e.Actual != "" {
		details = append(details, "actual "+e.Actual)
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare Kind, so errors.Is(err, KindRisk) works.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New builds an error of kind with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithAddress records the address involved.
func (e *Error) WithAddress(addr common.Address) *Error {
	e.Address = addr
	return e
}

// WithValues records the expected and actual values.
func (e *Error) WithValues(expected, actual interface{}) *Error {
	e.Expected = fmt.Sprint(expected)
	e.Actual = fmt.Sprint(actual)
	return e
}

// WithReason records a decoded revert reason.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FromCall classifies an error returned by a chain call. Node-reported
// failures (reverts and rejections) become revertKind with the revert data
// decoded. Everything else, including per-call deadlines, is Transport.
func FromCall(op string, revertKind Kind, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		e := &Error{Kind: revertKind, Op: op, Err: err}
		if data, ok := revertData(dataErr.ErrorData()); ok {
			if reason, ok := DecodeRevert(data); ok {
				e.Reason = reason
			}
		}
		return e
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &Error{Kind: revertKind, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func revertData(v interface{}) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		return b, err == nil && len(b) > 0
	case []byte:
		return d, len(d) > 0
	default:
		return nil, false
	}
}
