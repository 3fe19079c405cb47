// Package plugin defines what every supported blockchain provides to the wallet.
package plugin

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/network"
	"github.com/ggonzalez94/wallet-cli/internal/signing"
)

// Blockchain is the tag identifying a supported chain.
type Blockchain string

const TRX Blockchain = "trx"

func (b Blockchain) String() string { return string(b) }

// Explorer builds block explorer links.
type Explorer struct {
	Name           string `json:"name"`
	AccountURL     string `json:"account_url"`
	TransactionURL string `json:"transaction_url"`
	BlockURL       string `json:"block_url"`
}

func (e Explorer) Account(address string) string { return e.AccountURL + address }

func (e Explorer) Transaction(id string) string { return e.TransactionURL + id }

func (e Explorer) Block(id string) string { return e.BlockURL + id }

type Token struct {
	Account    string     `json:"account"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	Decimals   int        `json:"decimals"`
	Blockchain Blockchain `json:"blockchain"`
}

// Key identifies a token within a blockchain.
func (t Token) Key() string {
	return strings.ToLower(t.Symbol + ":" + t.Account)
}

// ReturnableAccount is the account view handed to external applications.
type ReturnableAccount struct {
	Address    string     `json:"address"`
	Blockchain Blockchain `json:"blockchain"`
}

type Balance struct {
	Account   string `json:"account"`
	Token     Token  `json:"token"`
	BaseUnits int64  `json:"base_units"`
	Amount    string `json:"amount"`
}

type TransferRequest struct {
	Account network.Account
	To      string
	// Amount is in base units.
	Amount  int64
	Network network.Identity
	// PromptForSignature asks the user before signing.
	PromptForSignature bool
	Origin             string
}

type TransferResult struct {
	TxID        string          `json:"tx_id"`
	Signature   keys.Signature  `json:"signature"`
	Transaction json.RawMessage `json:"transaction"`
}

// Plugin is the per-blockchain contract.
type Plugin interface {
	Blockchain() Blockchain
	Explorers() []Explorer
	AccountFormatter(account network.Account) string
	ReturnableAccount(account network.Account) ReturnableAccount
	ForkSupport() bool
	UsesResources() bool
	AccountsAreImported() bool

	EndorsedNetwork(ctx context.Context) network.Identity
	IsEndorsedNetwork(ctx context.Context, net network.Identity) bool
	ChainID(ctx context.Context, net network.Identity) (string, error)

	IsValidRecipient(address string) bool
	PrivateToPublic(material any) (string, error)
	ValidPrivateKey(privateKey string) bool
	ValidPublicKey(publicKey string) bool
	BufferToHexPrivate(b []byte) string
	HexPrivateToBuffer(privateKey string) ([]byte, error)
	ConformPrivateKey(privateKey string) string

	BalanceFor(ctx context.Context, account network.Account) (Balance, error)
	DefaultDecimals() int
	DefaultToken() Token
	ActionParticipants(req *signing.Request) []network.Account
	FetchTokens(tokens []Token) []Token
	TokenInfo(ctx context.Context, token Token) (*Token, error)

	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
}

// Registry is the fixed set of plugins the wallet was built with.
type Registry struct {
	plugins map[Blockchain]Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[Blockchain]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Blockchain()] = p
	}
	return r
}

func (r *Registry) Get(tag string) (Plugin, error) {
	p, ok := r.plugins[Blockchain(strings.ToLower(strings.TrimSpace(tag)))]
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, "unsupported blockchain: "+tag)
	}
	return p, nil
}

func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.plugins))
	for tag := range r.plugins {
		out = append(out, string(tag))
	}
	sort.Strings(out)
	return out
}
