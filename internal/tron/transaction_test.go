package tron

import (
	"encoding/json"
	"reflect"
	"testing"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/tron/trontest"
)

func decodeTx(t *testing.T, v map[string]any) *Transaction {
	t.Helper()
	buf, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var tx Transaction
	if err := json.Unmarshal(buf, &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &tx
}

func TestSigningDigestMatchesTxID(t *testing.T) {
	tx := decodeTx(t, trontest.BuildTransfer("41aa", "41bb", 1_000_000, 1, false))
	digest, err := tx.SigningDigest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(digest) != 32 {
		t.Fatalf("expected 32-byte digest, got %d", len(digest))
	}
}

func TestSigningDigestRejectsMismatchedTxID(t *testing.T) {
	tx := decodeTx(t, trontest.BuildTransfer("41aa", "41bb", 1_000_000, 1, true))
	if _, err := tx.SigningDigest(); !clierr.Is(err, clierr.CodeSigningFailed) {
		t.Fatalf("expected signing failure, got %v", err)
	}
	empty := &Transaction{}
	if _, err := empty.SigningDigest(); !clierr.Is(err, clierr.CodeSigningFailed) {
		t.Fatalf("expected signing failure for empty tx, got %v", err)
	}
}

func TestMessagesDoNotAliasTransaction(t *testing.T) {
	tx := decodeTx(t, trontest.BuildTransfer("41aa", "41bb", 5, 1, false))
	before, _ := tx.Raw()

	msgs := tx.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Type != TransferContract || msg.Code != TransferContract {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Data["to_address"] != "41bb" {
		t.Fatalf("unexpected message data %+v", msg.Data)
	}
	msg.Data["to_address"] = "tampered"

	after, _ := tx.Raw()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("Messages mutated the transaction")
	}
}

func TestWithSignatureCopies(t *testing.T) {
	tx := decodeTx(t, trontest.BuildTransfer("41aa", "41bb", 5, 1, false))
	signed := tx.WithSignature([]byte{0xde, 0xad})
	if len(tx.Signature) != 0 {
		t.Fatalf("original transaction was modified")
	}
	if len(signed.Signature) != 1 || signed.Signature[0] != "dead" {
		t.Fatalf("unexpected signatures %v", signed.Signature)
	}
	if signed.TxID != tx.TxID {
		t.Fatalf("txID changed")
	}
}
