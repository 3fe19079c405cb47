package app

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-cli/internal/amount"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/model"
	"github.com/ggonzalez94/wallet-cli/internal/network"
	"github.com/ggonzalez94/wallet-cli/internal/plugin"
	"github.com/ggonzalez94/wallet-cli/internal/schema"
)

type transferFlags struct {
	from           string
	to             string
	amount         string
	amountDecimal  string
	network        string
	rpcURL         string
	noPrompt       bool
	consent        string
	consentAddr    string
	consentTimeout string
	keySource      string
	privateKey     string
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var f transferFlags
	cmd := &cobra.Command{
		Use:         "transfer",
		Short:       "Build, approve and sign a TRX transfer",
		Example:     "wallet transfer --to TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t --amount-decimal 1.5",
		Annotations: map[string]string{schema.AnnotationSigns: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runTransfer(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "Sending address (defaults to the configured key)")
	cmd.Flags().StringVar(&f.to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&f.amount, "amount", "", "Amount in sun (base units)")
	cmd.Flags().StringVar(&f.amountDecimal, "amount-decimal", "", "Amount in TRX")
	cmd.Flags().StringVar(&f.network, "network", "", "Network name or unique form (default: endorsed network)")
	cmd.Flags().StringVar(&f.rpcURL, "rpc-url", "", "Full node URL overriding --network")
	cmd.Flags().BoolVar(&f.noPrompt, "no-prompt", false, "Sign without asking for approval (software keys only)")
	cmd.Flags().StringVar(&f.consent, "consent", "", "Approval channel (prompt|ws|yes)")
	cmd.Flags().StringVar(&f.consentAddr, "consent-addr", "", "Listen address of the approval websocket server")
	cmd.Flags().StringVar(&f.consentTimeout, "consent-timeout", "", "Give up waiting for approval after this long")
	cmd.Flags().StringVar(&f.keySource, "key-source", keys.SourceAuto, "Key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&f.privateKey, "private-key", "", "Private key hex (overrides configured sources; unsafe)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (s *runtimeState) runTransfer(cmd *cobra.Command, f transferFlags) error {
	if f.consent != "" {
		s.settings.ConsentMode = strings.ToLower(f.consent)
	}
	if f.consentAddr != "" {
		s.settings.ConsentAddr = f.consentAddr
	}
	if f.consentTimeout != "" {
		d, err := time.ParseDuration(strings.TrimSpace(f.consentTimeout))
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --consent-timeout", err)
		}
		if d < 0 {
			return clierr.New(clierr.CodeUsage, "--consent-timeout must not be negative")
		}
		s.settings.ConsentTimeout = d
	}

	net, err := s.resolveNetwork(f.network, f.rpcURL)
	if err != nil {
		return err
	}
	svc, err := s.newServices()
	if err != nil {
		return err
	}
	p, err := svc.pluginFor(net)
	if err != nil {
		return err
	}
	if !p.IsValidRecipient(f.to) {
		return clierr.New(clierr.CodeInvalidRecipient, "invalid tron recipient address: "+f.to)
	}
	amt, err := amount.Normalize(f.amount, f.amountDecimal, p.DefaultDecimals())
	if err != nil {
		return err
	}

	loaded, err := svc.loadSoftwareKey(f.keySource, f.privateKey, f.from != "")
	if err != nil {
		return err
	}
	from := f.from
	if from == "" {
		from = loaded
	}
	if !p.ValidPublicKey(from) {
		return clierr.New(clierr.CodeUsage, "invalid --from address: "+from)
	}

	prompt := !f.noPrompt
	if prompt {
		channel, stop, err := s.consentChannel(s.settings.ConsentMode, s.settings.ConsentAddr, svc.registry)
		if err != nil {
			return err
		}
		defer stop()
		svc.useConsent(channel, s.brokerOptions(svc.metrics))
		p, err = svc.pluginFor(net)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	account := network.Account{PublicKey: from, Network: net}
	res, err := p.Transfer(ctx, plugin.TransferRequest{
		Account:            account,
		To:                 f.to,
		Amount:             amt.Base,
		Network:            net,
		PromptForSignature: prompt,
		Origin:             s.settings.Origin,
	})
	if err != nil {
		return err
	}

	view := model.TransferView{
		TxID:        res.TxID,
		From:        p.AccountFormatter(account),
		To:          f.to,
		BaseUnits:   amt.Base,
		Amount:      amt.Decimal,
		Network:     net.Unique(),
		Signature:   res.Signature.String(),
		Prompted:    prompt,
		Transaction: res.Transaction,
	}
	if p.IsEndorsedNetwork(ctx, net) {
		if explorers := p.Explorers(); len(explorers) > 0 {
			view.ExplorerURL = explorers[0].Transaction(res.TxID)
		}
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass(), nil)
}
