package keys

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func TestValidatePrivateKeyHex(t *testing.T) {
	order := "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "valid", in: testPrivateKey, want: true},
		{name: "0x prefix", in: "0x" + testPrivateKey, want: true},
		{name: "whitespace", in: "  " + testPrivateKey + "\n", want: true},
		{name: "short", in: testPrivateKey[:62], want: false},
		{name: "long", in: testPrivateKey + "00", want: false},
		{name: "non hex", in: strings.Repeat("zz", 32), want: false},
		{name: "zero", in: strings.Repeat("0", 64), want: false},
		{name: "curve order", in: order, want: false},
		{name: "above order", in: strings.Repeat("f", 64), want: false},
		{name: "order minus one", in: order[:63] + "0", want: true},
		{name: "empty", in: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidatePrivateKeyHex(tc.in); got != tc.want {
				t.Fatalf("ValidatePrivateKeyHex(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidatePrivateKeyLengthProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("byte slices that are not 32 bytes are rejected", prop.ForAll(
		func(b []byte) bool {
			if len(b) == 32 {
				return true
			}
			return !ValidatePrivateKey(b)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("32-byte keys with a low leading byte are accepted unless zero", prop.ForAll(
		func(b []byte) bool {
			if len(b) != 32 {
				return true
			}
			b[0] &= 0x7f
			allZero := bytes.Equal(b, make([]byte, 32))
			return ValidatePrivateKey(b) == !allZero
		},
		gen.SliceOfN(32, gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestNormalizePrivateKey(t *testing.T) {
	fromHex, err := NormalizePrivateKey("0x" + strings.ToUpper(testPrivateKey))
	if err != nil {
		t.Fatalf("normalize hex: %v", err)
	}
	fromBytes, err := NormalizePrivateKey(append([]byte(nil), fromHex...))
	if err != nil {
		t.Fatalf("normalize bytes: %v", err)
	}
	if !bytes.Equal(fromHex, fromBytes) || len(fromHex) != 32 {
		t.Fatalf("normalization mismatch")
	}
	if _, err := NormalizePrivateKey(42); !clierr.Is(err, clierr.CodeInvalidPrivateKey) {
		t.Fatalf("expected invalid key for unsupported type, got %v", err)
	}
	if _, err := NormalizePrivateKey(make([]byte, 32)); !clierr.Is(err, clierr.CodeInvalidPrivateKey) {
		t.Fatalf("expected invalid key for zero scalar, got %v", err)
	}
}
