package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string       `json:"request_id"`
	Timestamp time.Time    `json:"timestamp"`
	Command   string       `json:"command"`
	Networks  []NodeStatus `json:"networks,omitempty"`
	Cache     CacheStatus  `json:"cache"`
}

// NodeStatus reports how a network node answered during a command.
type NodeStatus struct {
	Network   string `json:"network"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type NetworkInfo struct {
	Name       string `json:"name"`
	Blockchain string `json:"blockchain"`
	ChainID    string `json:"chain_id"`
	Unique     string `json:"unique"`
	URL        string `json:"url"`
	Endorsed   bool   `json:"endorsed"`
	Status     string `json:"status,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
}

type AddressCheck struct {
	Address string `json:"address"`
	Valid   bool   `json:"valid"`
	Hex     string `json:"hex,omitempty"`
}

type KeyCheck struct {
	Valid     bool   `json:"valid"`
	PublicKey string `json:"public_key,omitempty"`
	Source    string `json:"source,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

type ExplorerView struct {
	Name           string `json:"name"`
	AccountURL     string `json:"account_url"`
	TransactionURL string `json:"transaction_url"`
	BlockURL       string `json:"block_url"`
	Link           string `json:"link,omitempty"`
}

type BalanceView struct {
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	Symbol    string    `json:"symbol"`
	BaseUnits int64     `json:"base_units"`
	Amount    string    `json:"amount"`
	Decimals  int       `json:"decimals"`
	FetchedAt time.Time `json:"fetched_at"`
}

type TransferView struct {
	TxID        string `json:"tx_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	BaseUnits   int64  `json:"base_units"`
	Amount      string `json:"amount"`
	Network     string `json:"network"`
	Signature   string `json:"signature"`
	Prompted    bool   `json:"prompted"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Transaction any    `json:"transaction,omitempty"`
}
