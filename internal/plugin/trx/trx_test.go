package trx

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggonzalez94/wallet-cli/internal/consent"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/httpx"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/network"
	"github.com/ggonzalez94/wallet-cli/internal/plugin"
	"github.com/ggonzalez94/wallet-cli/internal/signing"
	"github.com/ggonzalez94/wallet-cli/internal/tron"
	"github.com/ggonzalez94/wallet-cli/internal/tron/trontest"
)

const (
	testPrivateKey = "1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testAddress    = "TCWfJguCLonUkvmsptQKHUyUJ713pU7XQ1"
	recipient      = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	// Transfer of 1 TRX from testAddress to recipient as built by trontest.
	knownTxID      = "50b01df44facc9d3645ff388b7d716bad69aac1d5447a342ba3606393d5f5c4f"
	knownSignature = "0xdf34f9207142622d33ef5f7c8cdffca3e12adabb1f3af93dea7ad4916c0031ea152b2e6981ceda43492a1a5abd0cd6e07793c588d5c001d454f2ed36fd006bb61c"
)

type countingChannel struct {
	calls  atomic.Int64
	accept bool
}

func (c *countingChannel) Request(context.Context, consent.Prompt) (*consent.Result, error) {
	c.calls.Add(1)
	return &consent.Result{Accepted: c.accept}, nil
}

type fixture struct {
	node    *trontest.Node
	net     network.Identity
	channel *countingChannel
	builds  *atomic.Int64
	plugin  *Plugin
	account network.Account
}

func newFixture(t *testing.T, accept bool) *fixture {
	t.Helper()
	node := trontest.NewNode()
	t.Cleanup(node.Close)

	host, portStr, _ := strings.Cut(strings.TrimPrefix(node.URL(), "http://"), ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse node port: %v", err)
	}
	net := network.Identity{Name: "local", Protocol: "http", Host: host, Port: port, Blockchain: "trx", ChainID: "1"}

	builds := &atomic.Int64{}
	build := ClientBuilder(httpx.New(5*time.Second, 0), "")
	clients := network.NewClientCache(func(ctx context.Context, id network.Identity) (*tron.Client, error) {
		builds.Add(1)
		return build(ctx, id)
	})

	ring := keys.NewKeyring(tron.AddressFromPublicKey)
	pub, err := ring.AddPrivateKey(testPrivateKey)
	if err != nil {
		t.Fatalf("add key: %v", err)
	}
	channel := &countingChannel{accept: accept}
	broker := signing.NewBroker(ring, channel, signing.WithBlockchain("trx"))

	return &fixture{
		node:    node,
		net:     net,
		channel: channel,
		builds:  builds,
		plugin:  New(clients, broker),
		account: network.Account{PublicKey: pub, Network: net},
	}
}

func TestTransferWithConsentMatchesKnownSignature(t *testing.T) {
	f := newFixture(t, true)
	if f.account.PublicKey != testAddress {
		t.Fatalf("unexpected account address %s", f.account.PublicKey)
	}

	res, err := f.plugin.Transfer(context.Background(), plugin.TransferRequest{
		Account:            f.account,
		To:                 recipient,
		Amount:             1_000_000,
		Network:            f.net,
		PromptForSignature: true,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if res.TxID != knownTxID {
		t.Fatalf("unexpected txID %s", res.TxID)
	}
	if res.Signature.String() != knownSignature {
		t.Fatalf("unexpected signature %s", res.Signature)
	}
	if f.channel.calls.Load() != 1 {
		t.Fatalf("expected one consent call, got %d", f.channel.calls.Load())
	}

	var signed tron.Transaction
	if err := json.Unmarshal(res.Transaction, &signed); err != nil {
		t.Fatalf("decode signed transaction: %v", err)
	}
	if len(signed.Signature) != 1 || "0x"+signed.Signature[0] != knownSignature {
		t.Fatalf("signature not attached: %v", signed.Signature)
	}
}

func TestTransferWithoutPromptSkipsConsent(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.plugin.Transfer(context.Background(), plugin.TransferRequest{
		Account: f.account,
		To:      recipient,
		Amount:  1_000_000,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if f.channel.calls.Load() != 0 {
		t.Fatalf("expected zero consent calls, got %d", f.channel.calls.Load())
	}
	if res.Signature.String() != knownSignature {
		t.Fatalf("unexpected signature %s", res.Signature)
	}
}

func TestTransferRejectedByUser(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.plugin.Transfer(context.Background(), plugin.TransferRequest{
		Account:            f.account,
		To:                 recipient,
		Amount:             1,
		PromptForSignature: true,
	})
	if !clierr.Is(err, clierr.CodeUserRejected) {
		t.Fatalf("expected user rejected, got %v", err)
	}
}

func TestTransferInvalidRecipientFailsBeforeClient(t *testing.T) {
	f := newFixture(t, true)
	for _, to := range []string{"", "0x1Be31A94361a391bBaFB2a4CCd704F57dc04d4bb", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u"} {
		_, err := f.plugin.Transfer(context.Background(), plugin.TransferRequest{
			Account:            f.account,
			To:                 to,
			Amount:             1,
			PromptForSignature: true,
		})
		if !clierr.Is(err, clierr.CodeInvalidRecipient) {
			t.Fatalf("to=%q: expected invalid recipient, got %v", to, err)
		}
	}
	if f.builds.Load() != 0 {
		t.Fatalf("client cache must not be touched, got %d builds", f.builds.Load())
	}
	if f.node.CreateCalls.Load() != 0 || f.channel.calls.Load() != 0 {
		t.Fatalf("node or consent channel must not be called")
	}
}

func TestTransferReusesClientPerNetwork(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 3; i++ {
		if _, err := f.plugin.Transfer(context.Background(), plugin.TransferRequest{Account: f.account, To: recipient, Amount: 5}); err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
	}
	if f.builds.Load() != 1 {
		t.Fatalf("expected one client construction, got %d", f.builds.Load())
	}
}

func TestTransferUnknownKey(t *testing.T) {
	f := newFixture(t, true)
	account := network.Account{PublicKey: recipient, Network: f.net}
	_, err := f.plugin.Transfer(context.Background(), plugin.TransferRequest{Account: account, To: testAddress, Amount: 5})
	if !clierr.Is(err, clierr.CodeKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
}

func TestBalanceFor(t *testing.T) {
	f := newFixture(t, true)
	hexAddr, _ := tron.HexAddress(testAddress)
	f.node.SetBalance(hexAddr, 12_345_678)

	bal, err := f.plugin.BalanceFor(context.Background(), f.account)
	if err != nil {
		t.Fatalf("BalanceFor: %v", err)
	}
	if bal.BaseUnits != 12_345_678 || bal.Amount != "12.345678" || bal.Token.Symbol != "TRX" {
		t.Fatalf("unexpected balance %+v", bal)
	}
}

func TestKeyHelpers(t *testing.T) {
	p := New(nil, nil)

	pub, err := p.PrivateToPublic(" " + testPrivateKey + "\n")
	if err != nil || pub != testAddress {
		t.Fatalf("PrivateToPublic = %s, %v", pub, err)
	}
	buf, err := p.HexPrivateToBuffer(testPrivateKey)
	if err != nil {
		t.Fatalf("HexPrivateToBuffer: %v", err)
	}
	if p.BufferToHexPrivate(buf) != testPrivateKey {
		t.Fatalf("hex round trip failed")
	}
	if pub, err := p.PrivateToPublic(buf); err != nil || pub != testAddress {
		t.Fatalf("PrivateToPublic(bytes) = %s, %v", pub, err)
	}
	if _, err := p.PrivateToPublic("abc"); !clierr.Is(err, clierr.CodeInvalidPrivateKey) {
		t.Fatalf("expected invalid private key, got %v", err)
	}

	if !p.ValidPrivateKey(testPrivateKey) {
		t.Fatalf("expected valid key")
	}
	for _, bad := range []string{"0x" + testPrivateKey, testPrivateKey[:63], strings.Repeat("0", 64)} {
		if p.ValidPrivateKey(bad) {
			t.Fatalf("ValidPrivateKey(%q) should be false", bad)
		}
	}
	if !p.ValidPublicKey(testAddress) || p.ValidPublicKey("T123") {
		t.Fatalf("unexpected public key validation")
	}
}

func TestStaticDescriptors(t *testing.T) {
	p := New(nil, nil)
	ctx := context.Background()

	if p.Blockchain() != plugin.TRX || p.ForkSupport() || p.UsesResources() || p.AccountsAreImported() {
		t.Fatalf("unexpected descriptors")
	}
	if id, _ := p.ChainID(ctx, EndorsedNetwork); id != "1" {
		t.Fatalf("unexpected chain id %s", id)
	}
	moved := EndorsedNetwork
	moved.Name = "renamed"
	moved.ChainID = "2"
	if !p.IsEndorsedNetwork(ctx, moved) {
		t.Fatalf("endorsement compares host and port only")
	}
	moved.Port = 8090
	if p.IsEndorsedNetwork(ctx, moved) {
		t.Fatalf("different port must not be endorsed")
	}
	ex := p.Explorers()[0]
	if ex.Transaction("abc") != "https://tronscan.org/#/transaction/abc" || ex.Account(testAddress) != "https://tronscan.org/#/address/"+testAddress {
		t.Fatalf("unexpected explorer links")
	}
	acct := network.Account{PublicKey: testAddress}
	if p.AccountFormatter(acct) != testAddress || p.ReturnableAccount(acct).Blockchain != plugin.TRX {
		t.Fatalf("unexpected account views")
	}

	tokens := p.FetchTokens(nil)
	tokens = p.FetchTokens(tokens)
	if len(tokens) != 1 || tokens[0].Symbol != "TRX" || tokens[0].Decimals != 6 {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if info, err := p.TokenInfo(ctx, tokens[0]); info != nil || err != nil {
		t.Fatalf("TokenInfo should be empty")
	}

	req := &signing.Request{Participants: []network.Account{acct}}
	if got := p.ActionParticipants(req); len(got) != 1 || got[0].PublicKey != testAddress {
		t.Fatalf("unexpected participants %+v", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := plugin.NewRegistry(New(nil, nil))
	if _, err := reg.Get("TRX"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := reg.Get("eos"); !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if tags := reg.Tags(); len(tags) != 1 || tags[0] != "trx" {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestClientBuilderRejectsInvalidNetworks(t *testing.T) {
	build := ClientBuilder(nil, "")
	if _, err := build(context.Background(), network.Identity{Protocol: "ftp", Host: "x", Port: 1, Blockchain: "trx"}); err == nil {
		t.Fatalf("expected validation error")
	}
	other := EndorsedNetwork
	other.Blockchain = "eos"
	if _, err := build(context.Background(), other); err == nil {
		t.Fatalf("expected blockchain mismatch error")
	}
	if c, err := build(context.Background(), EndorsedNetwork); err != nil || c.Endpoint() != "https://api.trongrid.io" {
		t.Fatalf("unexpected client %v %v", c, err)
	}
}
