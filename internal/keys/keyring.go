package keys

import (
	"crypto/ecdsa"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

// AddressFunc maps a public key to the chain's account identifier.
type AddressFunc func(pub *ecdsa.PublicKey) string

// Keyring maps public keys to signing capabilities. It is safe for concurrent use.
type Keyring struct {
	address AddressFunc

	mu       sync.RWMutex
	software map[string][]byte
	hardware map[string]HardwareSigner
}

func NewKeyring(address AddressFunc) *Keyring {
	return &Keyring{
		address:  address,
		software: map[string][]byte{},
		hardware: map[string]HardwareSigner{},
	}
}

// PublicKeyFor derives the public key string for private key material
// without registering it.
func (k *Keyring) PublicKeyFor(material any) (string, error) {
	raw, err := NormalizePrivateKey(material)
	if err != nil {
		return "", err
	}
	defer zero(raw)
	return k.publicKey(raw)
}

// AddPrivateKey registers a software key and returns its public key.
func (k *Keyring) AddPrivateKey(material any) (string, error) {
	raw, err := NormalizePrivateKey(material)
	if err != nil {
		return "", err
	}
	pub, err := k.publicKey(raw)
	if err != nil {
		zero(raw)
		return "", err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if old, ok := k.software[pub]; ok {
		zero(old)
	}
	k.software[pub] = raw
	return pub, nil
}

// RegisterHardware binds publicKey to a device signer. A hardware binding
// takes precedence over a software key for the same public key.
func (k *Keyring) RegisterHardware(publicKey string, signer HardwareSigner) error {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" || signer == nil {
		return clierr.New(clierr.CodeUsage, "hardware registration requires a public key and signer")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hardware[publicKey] = signer
	return nil
}

// Resolve returns the capability registered for publicKey.
func (k *Keyring) Resolve(publicKey string) (Capability, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if signer, ok := k.hardware[publicKey]; ok {
		return hardwareCapability(publicKey, signer), nil
	}
	if raw, ok := k.software[publicKey]; ok {
		return softwareCapability(publicKey, raw), nil
	}
	return Capability{}, clierr.New(clierr.CodeKeyNotFound, "no key registered for "+publicKey)
}

func (k *Keyring) IsHardware(publicKey string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.hardware[publicKey]
	return ok
}

func (k *Keyring) PublicKeys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	seen := make(map[string]struct{}, len(k.software)+len(k.hardware))
	for pub := range k.software {
		seen[pub] = struct{}{}
	}
	for pub := range k.hardware {
		seen[pub] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for pub := range seen {
		out = append(out, pub)
	}
	sort.Strings(out)
	return out
}

// Forget removes every capability for publicKey and wipes software key bytes.
func (k *Keyring) Forget(publicKey string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if raw, ok := k.software[publicKey]; ok {
		zero(raw)
		delete(k.software, publicKey)
	}
	delete(k.hardware, publicKey)
}

// SignSoftware signs digest with a software capability.
func (k *Keyring) SignSoftware(c Capability, digest []byte) (Signature, error) {
	return SignSoftware(c, digest)
}

func (k *Keyring) publicKey(raw []byte) (string, error) {
	priv, err := toECDSA(raw)
	if err != nil {
		return "", err
	}
	defer priv.D.SetUint64(0)
	if k.address == nil {
		return "", clierr.New(clierr.CodeInternal, "keyring has no address function")
	}
	return k.address(&priv.PublicKey), nil
}

func toECDSA(raw []byte) (*ecdsa.PrivateKey, error) {
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInvalidPrivateKey, "parse private key", err)
	}
	return priv, nil
}

// SignSoftware signs a 32-byte digest with secp256k1 (RFC 6979) and returns
// r || s || v with v = recovery id + 27.
func SignSoftware(c Capability, digest []byte) (Signature, error) {
	if c.kind != KindSoftware || len(c.secret) == 0 {
		return nil, clierr.New(clierr.CodeSigningFailed, "capability cannot sign in software")
	}
	if len(digest) != 32 {
		return nil, clierr.New(clierr.CodeSigningFailed, "digest must be 32 bytes")
	}
	secret := append([]byte(nil), c.secret...)
	defer zero(secret)
	priv, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigningFailed, "load private key", err)
	}
	defer priv.D.SetUint64(0)

	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigningFailed, "sign digest", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return Signature(sig), nil
}
