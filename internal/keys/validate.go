package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

const privateKeyLen = 32

var curveOrder = crypto.S256().Params().N

// ValidatePrivateKey reports whether b is a 32-byte secp256k1 scalar in [1, n).
func ValidatePrivateKey(b []byte) bool {
	if len(b) != privateKeyLen {
		return false
	}
	k := new(big.Int).SetBytes(b)
	return k.Sign() > 0 && k.Cmp(curveOrder) < 0
}

// ValidatePrivateKeyHex accepts exactly 64 hex characters, optionally 0x-prefixed.
func ValidatePrivateKeyHex(s string) bool {
	clean := trimHex(s)
	if len(clean) != 2*privateKeyLen {
		return false
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return false
	}
	return ValidatePrivateKey(b)
}

// NormalizePrivateKey converts hex strings, raw bytes or *ecdsa.PrivateKey to
// the canonical 32-byte encoding.
func NormalizePrivateKey(material any) ([]byte, error) {
	var raw []byte
	switch v := material.(type) {
	case string:
		clean := trimHex(v)
		if len(clean) != 2*privateKeyLen {
			return nil, clierr.New(clierr.CodeInvalidPrivateKey, "private key must be 64 hex characters")
		}
		b, err := hex.DecodeString(clean)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInvalidPrivateKey, "decode private key", err)
		}
		raw = b
	case []byte:
		raw = append([]byte(nil), v...)
	case *ecdsa.PrivateKey:
		if v == nil || v.D == nil {
			return nil, clierr.New(clierr.CodeInvalidPrivateKey, "private key is nil")
		}
		raw = crypto.FromECDSA(v)
	default:
		return nil, clierr.New(clierr.CodeInvalidPrivateKey, fmt.Sprintf("unsupported private key type %T", material))
	}
	if !ValidatePrivateKey(raw) {
		zero(raw)
		return nil, clierr.New(clierr.CodeInvalidPrivateKey, "private key is not a valid secp256k1 scalar")
	}
	return raw, nil
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return s
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
