package tron

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/signing"
)

// Contract types used by the wallet.
const (
	TransferContract = "TransferContract"
)

type Transaction struct {
	TxID       string   `json:"txID"`
	RawData    RawData  `json:"raw_data"`
	RawDataHex string   `json:"raw_data_hex"`
	Visible    bool     `json:"visible"`
	Signature  []string `json:"signature,omitempty"`
}

type RawData struct {
	Contract      []Contract `json:"contract"`
	RefBlockBytes string     `json:"ref_block_bytes"`
	RefBlockHash  string     `json:"ref_block_hash"`
	Expiration    int64      `json:"expiration"`
	Timestamp     int64      `json:"timestamp"`
}

type Contract struct {
	Type      string    `json:"type"`
	Parameter Parameter `json:"parameter"`
}

type Parameter struct {
	Value   map[string]any `json:"value"`
	TypeURL string         `json:"type_url"`
}

// Hash returns the node-reported transaction ID.
func (t *Transaction) Hash() string { return t.TxID }

// SigningDigest returns sha256(raw_data_hex). The digest must equal the
// transaction ID reported by the node.
func (t *Transaction) SigningDigest() ([]byte, error) {
	raw, err := hex.DecodeString(t.RawDataHex)
	if err != nil || len(raw) == 0 {
		return nil, clierr.New(clierr.CodeSigningFailed, "transaction has no raw data")
	}
	sum := sha256.Sum256(raw)
	if t.TxID != "" {
		want, err := hex.DecodeString(strings.TrimPrefix(t.TxID, "0x"))
		if err != nil || !bytes.Equal(want, sum[:]) {
			return nil, clierr.New(clierr.CodeSigningFailed, "transaction id does not match raw data")
		}
	}
	return sum[:], nil
}

// Messages maps each contract to a presentation message. The transaction is
// not modified.
func (t *Transaction) Messages() []signing.Message {
	msgs := make([]signing.Message, 0, len(t.RawData.Contract))
	for _, c := range t.RawData.Contract {
		msgs = append(msgs, signing.Message{
			Type: c.Type,
			Code: c.Type,
			Data: copyValue(c.Parameter.Value),
		})
	}
	return msgs
}

func (t *Transaction) Raw() (json.RawMessage, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode transaction", err)
	}
	return buf, nil
}

// WithSignature returns a copy of t with sig appended.
func (t *Transaction) WithSignature(sig []byte) *Transaction {
	out := *t
	out.Signature = append(append([]string(nil), t.Signature...), hex.EncodeToString(sig))
	out.RawData.Contract = append([]Contract(nil), t.RawData.Contract...)
	return &out
}

func copyValue(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyValue(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = deepCopy(val[i])
		}
		return out
	default:
		return val
	}
}
