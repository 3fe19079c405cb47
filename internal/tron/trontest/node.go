// Package trontest provides an in-memory Tron full node for tests.
package trontest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// Node serves the subset of the full-node HTTP API the wallet uses.
type Node struct {
	Server *httptest.Server

	mu       sync.Mutex
	balances map[string]int64
	nonce    atomic.Int64

	CreateCalls  atomic.Int64
	AccountCalls atomic.Int64

	// CorruptTxID makes the node report a txID that does not match raw_data_hex.
	CorruptTxID atomic.Bool
	// FailWith makes every call answer with a node error message.
	FailWith atomic.Value
}

func NewNode() *Node {
	n := &Node{balances: map[string]int64{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/wallet/createtransaction", n.createTransaction)
	mux.HandleFunc("/wallet/getaccount", n.getAccount)
	n.Server = httptest.NewServer(mux)
	return n
}

func (n *Node) URL() string { return n.Server.URL }

func (n *Node) Close() { n.Server.Close() }

// SetBalance sets the balance in sun of a hex (41…) address.
func (n *Node) SetBalance(hexAddr string, sun int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[hexAddr] = sun
}

func (n *Node) failure() string {
	if v, ok := n.FailWith.Load().(string); ok {
		return v
	}
	return ""
}

func (n *Node) createTransaction(w http.ResponseWriter, r *http.Request) {
	n.CreateCalls.Add(1)
	var req struct {
		ToAddress    string `json:"to_address"`
		OwnerAddress string `json:"owner_address"`
		Amount       int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg := n.failure(); msg != "" {
		writeJSON(w, map[string]any{"Error": msg})
		return
	}
	writeJSON(w, BuildTransfer(req.OwnerAddress, req.ToAddress, req.Amount, n.nonce.Add(1), n.CorruptTxID.Load()))
}

func (n *Node) getAccount(w http.ResponseWriter, r *http.Request) {
	n.AccountCalls.Add(1)
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg := n.failure(); msg != "" {
		writeJSON(w, map[string]any{"Error": msg})
		return
	}
	n.mu.Lock()
	balance, ok := n.balances[req.Address]
	n.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, map[string]any{"address": req.Address, "balance": balance})
}

// BuildTransfer returns a deterministic TransferContract transaction in the
// node's JSON shape.
func BuildTransfer(ownerHex, toHex string, amount, nonce int64, corrupt bool) map[string]any {
	raw := make([]byte, 0, 64)
	raw = append(raw, []byte(ownerHex)...)
	raw = append(raw, []byte(toHex)...)
	raw = binary.BigEndian.AppendUint64(raw, uint64(amount))
	raw = binary.BigEndian.AppendUint64(raw, uint64(nonce))
	sum := sha256.Sum256(raw)
	if corrupt {
		sum[0] ^= 0xff
	}
	return map[string]any{
		"txID":         hex.EncodeToString(sum[:]),
		"visible":      false,
		"raw_data_hex": hex.EncodeToString(raw),
		"raw_data": map[string]any{
			"contract": []any{
				map[string]any{
					"type": "TransferContract",
					"parameter": map[string]any{
						"type_url": "type.googleapis.com/protocol.TransferContract",
						"value": map[string]any{
							"owner_address": ownerHex,
							"to_address":    toHex,
							"amount":        amount,
						},
					},
				},
			},
			"ref_block_bytes": "0001",
			"ref_block_hash":  "00000000000000aa",
			"expiration":      1700000060000 + nonce,
			"timestamp":       1700000000000 + nonce,
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
