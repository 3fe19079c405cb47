package app

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ggonzalez94/wallet-cli/internal/config"
	"github.com/ggonzalez94/wallet-cli/internal/consent"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/httpx"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/metrics"
	"github.com/ggonzalez94/wallet-cli/internal/network"
	"github.com/ggonzalez94/wallet-cli/internal/plugin"
	"github.com/ggonzalez94/wallet-cli/internal/plugin/trx"
	"github.com/ggonzalez94/wallet-cli/internal/signing"
	"github.com/ggonzalez94/wallet-cli/internal/tron"
)

// walletServices is the per-invocation object graph behind the commands.
type walletServices struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	http     *httpx.Client
	clients  *network.ClientCache[*tron.Client]
	keyring  *keys.Keyring
	broker   *signing.Broker
	plugins  *plugin.Registry
	closers  []func()
}

// newServices builds the services without a consent channel. Signing
// commands attach one with useConsent.
func (s *runtimeState) newServices() (*walletServices, error) {
	if s.services != nil {
		return s.services, nil
	}
	settings := s.settings
	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)
	httpClient := httpx.New(settings.Timeout, settings.Retries)

	clients := network.NewClientCache(
		trx.ClientBuilder(httpClient, settings.TronAPIKey),
		network.WithCacheLogger(s.logger.NewSystem("clients")),
		network.WithCacheMetrics(m),
	)
	ring := keys.NewKeyring(tron.AddressFromPublicKey)
	if len(settings.HardwarePublicKeys) > 0 {
		if strings.TrimSpace(settings.HardwareSignerURL) == "" {
			return nil, clierr.New(clierr.CodeUsage, "hardware public keys configured without a hardware signer url")
		}
		device := keys.NewRemoteSigner(settings.HardwareSignerURL, httpx.New(keys.DeviceTimeout, 0))
		for _, pk := range settings.HardwarePublicKeys {
			if !tron.IsAddressValid(pk) {
				return nil, clierr.New(clierr.CodeUsage, "invalid hardware public key: "+pk)
			}
			if err := ring.RegisterHardware(pk, device); err != nil {
				return nil, err
			}
		}
	}

	svc := &walletServices{
		registry: registry,
		metrics:  m,
		http:     httpClient,
		clients:  clients,
		keyring:  ring,
	}
	svc.useConsent(nil, s.brokerOptions(m))
	svc.closers = append(svc.closers, func() { _ = clients.Close() })
	s.services = svc
	return svc, nil
}

func (s *runtimeState) brokerOptions(m *metrics.Metrics) []signing.Option {
	opts := []signing.Option{
		signing.WithBlockchain(string(plugin.TRX)),
		signing.WithMetrics(m),
		signing.WithLogger(s.logger.NewSystem("signing")),
		signing.WithTimeout(s.settings.ConsentTimeout),
	}
	if s.settings.Origin != "" {
		opts = append(opts, signing.WithOrigin(s.settings.Origin))
	}
	if s.journal != nil {
		opts = append(opts, signing.WithJournal(s.journal))
	}
	return opts
}

// useConsent routes signature requests through channel.
func (w *walletServices) useConsent(channel consent.Channel, opts []signing.Option) {
	w.broker = signing.NewBroker(w.keyring, channel, opts...)
	w.plugins = plugin.NewRegistry(trx.New(w.clients, w.broker))
}

// pluginFor returns the plugin serving net's blockchain.
func (w *walletServices) pluginFor(net network.Identity) (plugin.Plugin, error) {
	return w.plugins.Get(net.Blockchain)
}

func (w *walletServices) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
}

// loadSoftwareKey adds the configured software key to the keyring. A missing
// key is tolerated when optional is set.
func (w *walletServices) loadSoftwareKey(source, override string, optional bool) (string, error) {
	cfg, err := keys.SourceConfigFromEnv(source, override)
	if err != nil {
		return "", err
	}
	pub, err := keys.LoadInto(w.keyring, cfg)
	if err != nil {
		if optional && clierr.Is(err, clierr.CodeKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return pub, nil
}

// consentChannel opens the channel chosen by mode. The returned stop func
// releases it.
func (s *runtimeState) consentChannel(mode, addr string, gatherer prometheus.Gatherer) (consent.Channel, func(), error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case config.ConsentPrompt:
		return consent.NewTerminal(s.runner.stdin, s.runner.stderr, false), func() {}, nil
	case config.ConsentYes:
		return consent.NewTerminal(s.runner.stdin, s.runner.stderr, true), func() {}, nil
	case config.ConsentWS:
		hub := consent.NewHub(s.logger.NewSystem("consent"))
		var opts []consent.ServerOption
		if gatherer != nil {
			opts = append(opts, consent.WithGatherer(gatherer))
		}
		srv := consent.NewServer(hub, s.logger.NewSystem("consent-server"), opts...)
		bound, err := srv.Start(addr)
		if err != nil {
			hub.Close()
			return nil, nil, clierr.Wrap(clierr.CodeUnavailable, "start consent server", err)
		}
		_, _ = fmt.Fprintf(s.runner.stderr, "waiting for approval on ws://%s/consent\n", bound)
		stop := func() {
			hub.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
		return hub, stop, nil
	default:
		return nil, nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported consent mode %q (expected %s|%s|%s)", mode, config.ConsentPrompt, config.ConsentWS, config.ConsentYes))
	}
}

// knownNetworks lists the endorsed network followed by configured ones.
func (s *runtimeState) knownNetworks() []network.Identity {
	out := []network.Identity{trx.EndorsedNetwork}
	for _, n := range s.settings.Networks {
		if n.Equal(trx.EndorsedNetwork) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// resolveNetwork picks the network for a command: --rpc-url wins, then
// --network by name or unique form, then the endorsed network.
func (s *runtimeState) resolveNetwork(name, rpcURL string) (network.Identity, error) {
	if strings.TrimSpace(rpcURL) != "" {
		return identityFromURL(rpcURL)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return trx.EndorsedNetwork, nil
	}
	for _, n := range s.knownNetworks() {
		if strings.EqualFold(n.Name, name) || strings.EqualFold(n.Unique(), name) {
			return n, nil
		}
	}
	return network.Identity{}, clierr.New(clierr.CodeUsage, "unknown network: "+name)
}

func identityFromURL(raw string) (network.Identity, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return network.Identity{}, clierr.New(clierr.CodeUsage, "invalid --rpc-url: "+raw)
	}
	port := 443
	if u.Scheme == "http" {
		port = 80
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return network.Identity{}, clierr.Wrap(clierr.CodeUsage, "invalid --rpc-url port", err)
		}
	}
	id := network.Identity{
		Name:       net.JoinHostPort(u.Hostname(), strconv.Itoa(port)),
		Protocol:   u.Scheme,
		Host:       u.Hostname(),
		Port:       port,
		Blockchain: string(plugin.TRX),
		ChainID:    trx.EndorsedNetwork.ChainID,
	}
	if err := id.Validate(); err != nil {
		return network.Identity{}, err
	}
	return id, nil
}
