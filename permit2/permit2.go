// Package permit2 builds, signs and verifies Permit2 PermitSingle
// authorizations, and reads the registry's live allowance state.
package permit2

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/RaghavSood/dexswap/codec"
	"github.com/RaghavSood/dexswap/evm"
)

// DomainName is the EIP-712 domain name of the registry. The domain has no
// version field.
const DomainName = "Permit2"

// Validity windows for new permits.
const (
	DefaultExpiration  = 30 * 24 * time.Hour
	DefaultSigDeadline = 30 * time.Minute
)

// MaxUint160 is the largest amount a permit can grant.
var MaxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"PermitDetails": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint160"},
		{Name: "expiration", Type: "uint48"},
		{Name: "nonce", Type: "uint48"},
	},
	"PermitSingle": {
		{Name: "details", Type: "PermitDetails"},
		{Name: "spender", Type: "address"},
		{Name: "sigDeadline", Type: "uint256"},
	},
}

// NewPermit builds a PermitSingle valid from now with the default windows.
func NewPermit(token, spender common.Address, amount *big.Int, nonce uint64, now time.Time) codec.PermitSingle {
	return codec.PermitSingle{
		Details: codec.PermitDetails{
			Token:      token,
			Amount:     new(big.Int).Set(amount),
			Expiration: big.NewInt(now.Add(DefaultExpiration).Unix()),
			Nonce:      new(big.Int).SetUint64(nonce),
		},
		Spender:     spender,
		SigDeadline: big.NewInt(now.Add(DefaultSigDeadline).Unix()),
	}
}

// TypedData is the EIP-712 payload for permit on the registry at
// verifyingContract.
func TypedData(chainID *big.Int, verifyingContract common.Address, permit codec.PermitSingle) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: "PermitSingle",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"details": map[string]interface{}{
				"token":      permit.Details.Token.Hex(),
				"amount":     permit.Details.Amount.String(),
				"expiration": permit.Details.Expiration.String(),
				"nonce":      permit.Details.Nonce.String(),
			},
			"spender":     permit.Spender.Hex(),
			"sigDeadline": permit.SigDeadline.String(),
		},
	}
}

// Digest is keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message)).
func Digest(typedData apitypes.TypedData) (common.Hash, error) {
	domainSep, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing domain: %w", err)
	}

	msgHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing message: %w", err)
	}

	rawData := fmt.Sprintf("\x19\x01%s%s", string(domainSep), string(msgHash))
	return crypto.Keccak256Hash([]byte(rawData)), nil
}

// Sign returns the 65-byte signature over permit.
func Sign(permit codec.PermitSingle, chainID *big.Int, registry common.Address, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := Digest(TypedData(chainID, registry, permit))
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("signing permit: %w", err)
	}

	// Ethereum signature convention: v = 27 or 28
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// Recover returns the address that produced sig over permit.
func Recover(permit codec.PermitSingle, chainID *big.Int, registry common.Address, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	digest, err := Digest(TypedData(chainID, registry, permit))
	if err != nil {
		return common.Address{}, err
	}

	s := append([]byte(nil), sig...)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over permit was made by owner.
func Verify(permit codec.PermitSingle, chainID *big.Int, registry common.Address, sig []byte, owner common.Address) (bool, error) {
	signer, err := Recover(permit, chainID, registry, sig)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(signer.Hex(), owner.Hex()), nil
}

// EncodePermitInput is the PERMIT2_PERMIT command input for a signed permit.
func EncodePermitInput(permit codec.PermitSingle, sig []byte) ([]byte, error) {
	return codec.Permit2Permit(permit, sig)
}

var registryABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(`[{"inputs":[{"name":"owner","type":"address"},{"name":"token","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"amount","type":"uint160"},{"name":"expiration","type":"uint48"},{"name":"nonce","type":"uint48"}],"stateMutability":"view","type":"function"}]`))
	if err != nil {
		panic(err)
	}
	return a
}()

// RegistryABI exposes the allowance view, for fakes.
func RegistryABI() abi.ABI { return registryABI }

// Allowance is the registry's record for (owner, token, spender).
type Allowance struct {
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

// Covers reports whether the allowance still grants amount at now.
func (a Allowance) Covers(amount *big.Int, now time.Time) bool {
	if a.Amount == nil || a.Amount.Cmp(amount) < 0 {
		return false
	}
	return a.Expiration > uint64(now.Unix())
}

// Registry reads allowance state from the Permit2 contract.
type Registry struct {
	rpc     *evm.Client
	address common.Address
}

// NewRegistry returns a reader for the registry at address.
func NewRegistry(rpc *evm.Client, address common.Address) *Registry {
	return &Registry{rpc: rpc, address: address}
}

// Address is the registry contract.
func (r *Registry) Address() common.Address { return r.address }

// Allowance reads the current amount, expiration and nonce. Call it right
// before signing; the nonce must never be cached.
func (r *Registry) Allowance(ctx context.Context, owner, token, spender common.Address) (Allowance, error) {
	data, err := registryABI.Pack("allowance", owner, token, spender)
	if err != nil {
		return Allowance{}, err
	}
	out, err := r.rpc.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return Allowance{}, fmt.Errorf("reading permit2 allowance: %w", err)
	}
	vals, err := registryABI.Unpack("allowance", out)
	if err != nil {
		return Allowance{}, fmt.Errorf("unpacking permit2 allowance: %w", err)
	}
	return Allowance{
		Amount:     vals[0].(*big.Int),
		Expiration: vals[1].(*big.Int).Uint64(),
		Nonce:      vals[2].(*big.Int).Uint64(),
	}, nil
}
