// Package wallet loads the trading key from a BIP-39 mnemonic or a raw hex
// private key.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// Account is a signing key and its address.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

func newAccount(key *ecdsa.PrivateKey) Account {
	return Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// basePath is m/44'/60'/0'/0; the account index is appended.
var basePath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 60,
	bip32.FirstHardenedChild + 0,
	0,
}

// DeriveKey derives an ECDSA private key from a mnemonic at the given account index.
// Path: m/44'/60'/0'/0/{index}
func DeriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}
	for depth, child := range append(append([]uint32(nil), basePath...), index) {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("deriving level %d: %w", depth+1, err)
		}
	}

	privateKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, fmt.Errorf("converting to ECDSA: %w", err)
	}
	return privateKey, nil
}

// DeriveAddress derives an Ethereum address from a mnemonic at the given account index.
func DeriveAddress(mnemonic string, index uint32) (common.Address, error) {
	key, err := DeriveKey(mnemonic, index)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// FromMnemonic loads the account at index.
func FromMnemonic(mnemonic string, index uint32) (Account, error) {
	key, err := DeriveKey(mnemonic, index)
	if err != nil {
		return Account{}, err
	}
	return newAccount(key), nil
}

// FromHex loads a raw private key, with or without the 0x prefix.
func FromHex(hexKey string) (Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Account{}, fmt.Errorf("parsing private key: %w", err)
	}
	return newAccount(key), nil
}
