// Package trx implements the Tron blockchain plugin.
package trx

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ggonzalez94/wallet-cli/internal/amount"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/httpx"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/network"
	"github.com/ggonzalez94/wallet-cli/internal/plugin"
	"github.com/ggonzalez94/wallet-cli/internal/signing"
	"github.com/ggonzalez94/wallet-cli/internal/tron"
)

const (
	decimals = 6
	chainID  = "1"
)

var explorers = []plugin.Explorer{
	{
		Name:           "Tronscan",
		AccountURL:     "https://tronscan.org/#/address/",
		TransactionURL: "https://tronscan.org/#/transaction/",
		BlockURL:       "https://tronscan.org/#/block/",
	},
}

// EndorsedNetwork is the network the wallet ships with.
var EndorsedNetwork = network.Identity{
	Name:       "Tron Mainnet",
	Protocol:   "https",
	Host:       "api.trongrid.io",
	Port:       443,
	Blockchain: string(plugin.TRX),
	ChainID:    chainID,
}

// Signer requests signatures for Tron transactions.
type Signer interface {
	RequestSignature(ctx context.Context, tx signing.UnsignedTransaction, account network.Account, net network.Identity, opts signing.RequestOptions) (keys.Signature, error)
}

// Plugin is the Tron variant of plugin.Plugin.
type Plugin struct {
	clients *network.ClientCache[*tron.Client]
	signer  Signer
}

var _ plugin.Plugin = (*Plugin)(nil)

func New(clients *network.ClientCache[*tron.Client], signer Signer) *Plugin {
	return &Plugin{clients: clients, signer: signer}
}

// ClientBuilder returns the cache build function for Tron node clients.
func ClientBuilder(http *httpx.Client, apiKey string) network.BuildFunc[*tron.Client] {
	return func(_ context.Context, id network.Identity) (*tron.Client, error) {
		if err := id.Validate(); err != nil {
			return nil, err
		}
		if !strings.EqualFold(id.Blockchain, string(plugin.TRX)) {
			return nil, clierr.New(clierr.CodeUsage, "network "+id.String()+" is not a tron network")
		}
		opts := []tron.ClientOption{tron.WithAPIKey(apiKey)}
		if http != nil {
			opts = append(opts, tron.WithHTTPClient(http))
		}
		return tron.NewClient(id.FullHost(), opts...), nil
	}
}

func (p *Plugin) Blockchain() plugin.Blockchain { return plugin.TRX }

func (p *Plugin) Explorers() []plugin.Explorer {
	return append([]plugin.Explorer(nil), explorers...)
}

func (p *Plugin) AccountFormatter(account network.Account) string { return account.PublicKey }

func (p *Plugin) ReturnableAccount(account network.Account) plugin.ReturnableAccount {
	return plugin.ReturnableAccount{Address: account.PublicKey, Blockchain: plugin.TRX}
}

func (p *Plugin) ForkSupport() bool { return false }

func (p *Plugin) UsesResources() bool { return false }

func (p *Plugin) AccountsAreImported() bool { return false }

func (p *Plugin) EndorsedNetwork(context.Context) network.Identity { return EndorsedNetwork }

// IsEndorsedNetwork compares host and port only.
func (p *Plugin) IsEndorsedNetwork(ctx context.Context, net network.Identity) bool {
	return net.HostPort() == p.EndorsedNetwork(ctx).HostPort()
}

func (p *Plugin) ChainID(context.Context, network.Identity) (string, error) { return chainID, nil }

func (p *Plugin) IsValidRecipient(address string) bool { return tron.IsAddressValid(address) }

func (p *Plugin) PrivateToPublic(material any) (string, error) {
	if s, ok := material.(string); ok {
		material = p.ConformPrivateKey(s)
	}
	raw, err := keys.NormalizePrivateKey(material)
	if err != nil {
		return "", err
	}
	priv, err := crypto.ToECDSA(raw)
	for i := range raw {
		raw[i] = 0
	}
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInvalidPrivateKey, "parse private key", err)
	}
	defer priv.D.SetUint64(0)
	return tron.AddressFromPublicKey(&priv.PublicKey), nil
}

// ValidPrivateKey accepts exactly 64 hex characters forming a valid scalar.
func (p *Plugin) ValidPrivateKey(privateKey string) bool {
	return len(privateKey) == 64 && keys.ValidatePrivateKeyHex(privateKey)
}

// ValidPublicKey reports whether publicKey is a Tron address, the form Tron
// accounts use as their public identifier.
func (p *Plugin) ValidPublicKey(publicKey string) bool { return tron.IsAddressValid(publicKey) }

func (p *Plugin) BufferToHexPrivate(b []byte) string { return hex.EncodeToString(b) }

func (p *Plugin) HexPrivateToBuffer(privateKey string) ([]byte, error) {
	b, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInvalidPrivateKey, "decode private key", err)
	}
	return b, nil
}

func (p *Plugin) ConformPrivateKey(privateKey string) string { return strings.TrimSpace(privateKey) }

func (p *Plugin) BalanceFor(ctx context.Context, account network.Account) (plugin.Balance, error) {
	client, err := p.clients.Resolve(ctx, account.Network)
	if err != nil {
		return plugin.Balance{}, err
	}
	acct, err := client.GetAccount(ctx, account.PublicKey)
	if err != nil {
		return plugin.Balance{}, err
	}
	return plugin.Balance{
		Account:   account.PublicKey,
		Token:     p.DefaultToken(),
		BaseUnits: acct.Balance,
		Amount:    amount.FormatBase(acct.Balance, decimals),
	}, nil
}

func (p *Plugin) DefaultDecimals() int { return decimals }

func (p *Plugin) DefaultToken() plugin.Token {
	return plugin.Token{Account: "trx", Symbol: "TRX", Name: "TRX", Decimals: decimals, Blockchain: plugin.TRX}
}

func (p *Plugin) ActionParticipants(req *signing.Request) []network.Account {
	if req == nil {
		return nil
	}
	return append([]network.Account(nil), req.Participants...)
}

// FetchTokens adds the default token to tokens unless already present.
func (p *Plugin) FetchTokens(tokens []plugin.Token) []plugin.Token {
	def := p.DefaultToken()
	for _, t := range tokens {
		if t.Key() == def.Key() {
			return tokens
		}
	}
	return append(tokens, def)
}

func (p *Plugin) TokenInfo(context.Context, plugin.Token) (*plugin.Token, error) { return nil, nil }

// Transfer builds, signs and returns a TRX transfer. The recipient is checked
// before any node is contacted.
func (p *Plugin) Transfer(ctx context.Context, req plugin.TransferRequest) (plugin.TransferResult, error) {
	if !p.IsValidRecipient(req.To) {
		return plugin.TransferResult{}, clierr.New(clierr.CodeInvalidRecipient, "invalid tron recipient address: "+req.To)
	}
	if req.Amount <= 0 {
		return plugin.TransferResult{}, clierr.New(clierr.CodeUsage, "transfer amount must be positive")
	}

	client, err := p.clients.Resolve(ctx, req.Account.Network)
	if err != nil {
		return plugin.TransferResult{}, err
	}
	tx, err := client.CreateTransaction(ctx, req.To, req.Amount, req.Account.PublicKey)
	if err != nil {
		return plugin.TransferResult{}, err
	}

	net := req.Network
	if net == (network.Identity{}) {
		net = req.Account.Network
	}
	sig, err := p.signer.RequestSignature(ctx, tx, req.Account, net, signing.RequestOptions{
		Prompt: req.PromptForSignature,
		Origin: req.Origin,
	})
	if err != nil {
		return plugin.TransferResult{}, err
	}

	signed := tx.WithSignature(sig)
	raw, err := signed.Raw()
	if err != nil {
		return plugin.TransferResult{}, err
	}
	return plugin.TransferResult{TxID: signed.TxID, Signature: sig, Transaction: raw}, nil
}
