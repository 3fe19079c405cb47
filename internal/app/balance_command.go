package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-cli/internal/cache"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/model"
	"github.com/ggonzalez94/wallet-cli/internal/network"
)

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var address, networkArg, rpcURL, source string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the TRX balance of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			net, err := s.resolveNetwork(networkArg, rpcURL)
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
			if address == "" {
				if address, err = svc.loadSoftwareKey(source, "", false); err != nil {
					return err
				}
			}
			if !p.ValidPublicKey(address) {
				return clierr.New(clierr.CodeUsage, "invalid address: "+address)
			}

			account := network.Account{PublicKey: address, Network: net}
			key := cache.Key("balance", net.Unique(), address)
			return s.runCachedCommand(trimRootPath(cmd.CommandPath()), key, s.settings.BalanceTTL, func(ctx context.Context) (any, []model.NodeStatus, error) {
				start := time.Now()
				bal, err := p.BalanceFor(ctx, account)
				status := []model.NodeStatus{{Network: net.Unique(), Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, err
				}
				return model.BalanceView{
					Address:   p.AccountFormatter(account),
					Network:   net.Unique(),
					Symbol:    bal.Token.Symbol,
					BaseUnits: bal.BaseUnits,
					Amount:    bal.Amount,
					Decimals:  bal.Token.Decimals,
					FetchedAt: s.runner.now().UTC(),
				}, status, nil
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Account address (defaults to the configured key)")
	cmd.Flags().StringVar(&networkArg, "network", "", "Network name or unique form (default: endorsed network)")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "Full node URL overriding --network")
	cmd.Flags().StringVar(&source, "key-source", keys.SourceAuto, "Key source when --address is omitted (auto|env|file|keystore)")
	return cmd
}
