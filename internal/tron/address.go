// Package tron talks to a Tron full node over its HTTP API and models the
// transactions it returns.
package tron

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

// AddressPrefix is the version byte of mainnet Tron addresses.
const AddressPrefix byte = 0x41

const addressBodyLen = 20

// Address is a 21-byte Tron address (prefix followed by the account hash).
type Address [addressBodyLen + 1]byte

// AddressFromPublicKey derives the base58check address of pub.
func AddressFromPublicKey(pub *ecdsa.PublicKey) string {
	eth := crypto.PubkeyToAddress(*pub)
	var addr Address
	addr[0] = AddressPrefix
	copy(addr[1:], eth.Bytes())
	return addr.String()
}

func (a Address) String() string {
	return base58.CheckEncode(a[1:], a[0])
}

// Hex returns the 41-prefixed hex form the node HTTP API expects.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// DecodeAddress parses a base58check Tron address.
func DecodeAddress(s string) (Address, error) {
	var addr Address
	s = strings.TrimSpace(s)
	if s == "" {
		return addr, clierr.New(clierr.CodeInvalidRecipient, "address is empty")
	}
	body, version, err := base58.CheckDecode(s)
	if err != nil {
		return addr, clierr.Wrap(clierr.CodeInvalidRecipient, "decode tron address", err)
	}
	if version != AddressPrefix {
		return addr, clierr.New(clierr.CodeInvalidRecipient, "tron address has wrong prefix")
	}
	if len(body) != addressBodyLen {
		return addr, clierr.New(clierr.CodeInvalidRecipient, "tron address has wrong length")
	}
	addr[0] = version
	copy(addr[1:], body)
	return addr, nil
}

// EncodeAddress builds an address from its 21-byte hex form (41…).
func EncodeAddress(hexAddr string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexAddr), "0x"))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInvalidRecipient, "decode hex address", err)
	}
	if len(raw) != addressBodyLen+1 || raw[0] != AddressPrefix {
		return "", clierr.New(clierr.CodeInvalidRecipient, "hex address must be 21 bytes with 0x41 prefix")
	}
	var addr Address
	copy(addr[:], raw)
	return addr.String(), nil
}

func IsAddressValid(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// HexAddress converts a base58 address to the node's hex form.
func HexAddress(s string) (string, error) {
	addr, err := DecodeAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}
