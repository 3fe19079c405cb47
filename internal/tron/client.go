package tron

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/httpx"
)

const apiKeyHeader = "TRON-PRO-API-KEY"

// Client is a minimal Tron full-node HTTP client.
type Client struct {
	http     *httpx.Client
	endpoint string
	apiKey   string
}

type ClientOption func(*Client)

func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

func WithHTTPClient(h *httpx.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		http:     httpx.New(15*time.Second, 1),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string { return c.endpoint }

type createTransactionRequest struct {
	ToAddress    string `json:"to_address"`
	OwnerAddress string `json:"owner_address"`
	Amount       int64  `json:"amount"`
}

type nodeError struct {
	Error string `json:"Error,omitempty"`
}

type createTransactionResponse struct {
	Transaction
	nodeError
}

// CreateTransaction asks the node to build an unsigned TRX transfer of
// amountSun from owner to to. Both addresses are base58.
func (c *Client) CreateTransaction(ctx context.Context, to string, amountSun int64, owner string) (*Transaction, error) {
	if amountSun <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "amount must be positive")
	}
	toHex, err := HexAddress(to)
	if err != nil {
		return nil, err
	}
	ownerHex, err := HexAddress(owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid owner address", err)
	}

	var resp createTransactionResponse
	req := createTransactionRequest{ToAddress: toHex, OwnerAddress: ownerHex, Amount: amountSun}
	if _, err := httpx.PostJSON(ctx, c.http, c.endpoint+"/wallet/createtransaction", req, c.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, clierr.New(clierr.CodeUnavailable, "node rejected transaction: "+decodeNodeMessage(resp.Error))
	}
	if resp.TxID == "" || resp.RawDataHex == "" {
		return nil, clierr.New(clierr.CodeUnavailable, "node returned an empty transaction")
	}
	tx := resp.Transaction
	return &tx, nil
}

type Account struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// GetAccount returns the account state. Unknown accounts yield a zero balance.
func (c *Client) GetAccount(ctx context.Context, address string) (*Account, error) {
	hexAddr, err := HexAddress(address)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Account
		nodeError
	}
	if _, err := httpx.PostJSON(ctx, c.http, c.endpoint+"/wallet/getaccount", map[string]string{"address": hexAddr}, c.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, clierr.New(clierr.CodeUnavailable, "node rejected account query: "+decodeNodeMessage(resp.Error))
	}
	return &Account{Address: address, Balance: resp.Balance}, nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{apiKeyHeader: c.apiKey}
}

func (c *Client) String() string {
	return fmt.Sprintf("tron client %s", c.endpoint)
}

// decodeNodeMessage renders hex-encoded node messages as text when possible.
func decodeNodeMessage(msg string) string {
	raw, err := hex.DecodeString(msg)
	if err != nil {
		return msg
	}
	return string(raw)
}
