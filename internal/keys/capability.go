// Package keys resolves the signing capability registered for a public key
// and performs software signing.
package keys

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ggonzalez94/wallet-cli/internal/network"
)

type Kind int

const (
	KindSoftware Kind = iota + 1
	KindHardware
)

func (k Kind) String() string {
	switch k {
	case KindSoftware:
		return "software"
	case KindHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// SignPayload is what a hardware signer receives. It mirrors the signing
// request payload and never carries key material.
type SignPayload struct {
	Messages    any             `json:"messages"`
	Transaction json.RawMessage `json:"transaction"`
	ABI         json.RawMessage `json:"abi,omitempty"`
}

// HardwareSigner signs on an external device that holds the key.
type HardwareSigner interface {
	Sign(ctx context.Context, publicKey string, payload SignPayload, net network.Identity) (Signature, error)
}

// Capability is either a software key or a hardware signer, never both.
type Capability struct {
	kind      Kind
	publicKey string
	secret    []byte
	hardware  HardwareSigner
}

func softwareCapability(publicKey string, secret []byte) Capability {
	return Capability{kind: KindSoftware, publicKey: publicKey, secret: secret}
}

func hardwareCapability(publicKey string, signer HardwareSigner) Capability {
	return Capability{kind: KindHardware, publicKey: publicKey, hardware: signer}
}

func (c Capability) Kind() Kind { return c.kind }

func (c Capability) PublicKey() string { return c.publicKey }

func (c Capability) IsHardware() bool { return c.kind == KindHardware }

// Hardware returns the device signer of a hardware capability.
func (c Capability) Hardware() (HardwareSigner, bool) {
	if c.kind != KindHardware || c.hardware == nil {
		return nil, false
	}
	return c.hardware, true
}

func (c Capability) String() string {
	return c.kind.String() + " capability for " + c.publicKey
}

func (c Capability) GoString() string { return c.String() }

var errSoftwareMarshal = errors.New("software capabilities cannot be serialized")

func (c Capability) MarshalJSON() ([]byte, error) {
	if c.kind == KindSoftware {
		return nil, errSoftwareMarshal
	}
	return json.Marshal(map[string]string{"kind": c.kind.String(), "public_key": c.publicKey})
}

// Signature is a raw signature, rendered as 0x-prefixed hex.
type Signature []byte

func (s Signature) String() string {
	return hexutil.Encode(s)
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(s))
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalJSON(data); err != nil {
		return err
	}
	*s = Signature(b)
	return nil
}
