package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-cli/internal/model"
	"github.com/ggonzalez94/wallet-cli/internal/network"
	"github.com/ggonzalez94/wallet-cli/internal/plugin"
	"github.com/ggonzalez94/wallet-cli/internal/plugin/trx"
	"github.com/ggonzalez94/wallet-cli/internal/tron"
)

// probeAddress is queried by `networks check`; any valid address works.
const probeAddress = "T9yD14Nj9j7xAB4dbGeiX9h8unkKHxuWwb"

func (s *runtimeState) newNetworksCommand() *cobra.Command {
	root := &cobra.Command{Use: "networks", Aliases: []string{"network"}, Short: "Known Tron networks"}

	endorsed := &cobra.Command{
		Use:   "endorsed",
		Short: "Show the endorsed network",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			p, err := svc.pluginFor(trx.EndorsedNetwork)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), networkInfo(ctx, p, p.EndorsedNetwork(ctx)), nil, cacheMetaBypass(), nil)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the endorsed and configured networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			items := []model.NetworkInfo{}
			for _, n := range s.knownNetworks() {
				p, err := svc.pluginFor(n)
				if err != nil {
					return err
				}
				items = append(items, networkInfo(cmd.Context(), p, n))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil)
		},
	}

	var networkArg, rpcURL string
	check := &cobra.Command{
		Use:   "check",
		Short: "Query a network node and report its reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := s.knownNetworks()
			if networkArg != "" || rpcURL != "" {
				n, err := s.resolveNetwork(networkArg, rpcURL)
				if err != nil {
					return err
				}
				targets = []network.Identity{n}
			}
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			items := make([]model.NetworkInfo, 0, len(targets))
			statuses := make([]model.NodeStatus, 0, len(targets))
			var warnings []string
			for _, n := range targets {
				p, err := svc.pluginFor(n)
				if err != nil {
					return err
				}
				info := networkInfo(ctx, p, n)
				start := time.Now()
				err = probe(ctx, svc.clients, n)
				info.Status = statusFromErr(err)
				info.LatencyMS = time.Since(start).Milliseconds()
				if err != nil {
					warnings = append(warnings, n.String()+": "+err.Error())
				}
				items = append(items, info)
				statuses = append(statuses, model.NodeStatus{Network: n.Unique(), Status: info.Status, LatencyMS: info.LatencyMS})
			}
			s.captureCommandDiagnostics(warnings, statuses)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, warnings, cacheMetaBypass(), statuses)
		},
	}
	check.Flags().StringVar(&networkArg, "network", "", "Network name or unique form")
	check.Flags().StringVar(&rpcURL, "rpc-url", "", "Full node URL to check instead of a known network")

	root.AddCommand(endorsed, list, check)
	return root
}

func probe(ctx context.Context, clients *network.ClientCache[*tron.Client], n network.Identity) error {
	client, err := clients.Resolve(ctx, n)
	if err != nil {
		return err
	}
	_, err = client.GetAccount(ctx, probeAddress)
	return err
}

func networkInfo(ctx context.Context, p plugin.Plugin, n network.Identity) model.NetworkInfo {
	chainID := n.ChainID
	if chainID == "" {
		if id, err := p.ChainID(ctx, n); err == nil {
			chainID = id
		}
	}
	return model.NetworkInfo{
		Name:       n.Name,
		Blockchain: n.Blockchain,
		ChainID:    chainID,
		Unique:     n.Unique(),
		URL:        n.FullHost(),
		Endorsed:   p.IsEndorsedNetwork(ctx, n),
	}
}

func (s *runtimeState) newExplorersCommand() *cobra.Command {
	var address, txID string
	cmd := &cobra.Command{
		Use:   "explorers",
		Short: "List block explorers, optionally linking an address or transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			p, err := svc.pluginFor(trx.EndorsedNetwork)
			if err != nil {
				return err
			}
			items := []model.ExplorerView{}
			for _, e := range p.Explorers() {
				view := model.ExplorerView{
					Name:           e.Name,
					AccountURL:     e.AccountURL,
					TransactionURL: e.TransactionURL,
					BlockURL:       e.BlockURL,
				}
				switch {
				case txID != "":
					view.Link = e.Transaction(txID)
				case address != "":
					view.Link = e.Account(address)
				}
				items = append(items, view)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Account to link")
	cmd.Flags().StringVar(&txID, "tx", "", "Transaction ID to link")
	return cmd
}

func (s *runtimeState) newTokensCommand() *cobra.Command {
	root := &cobra.Command{Use: "tokens", Short: "Token metadata"}
	root.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Show the native token",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			p, err := svc.pluginFor(trx.EndorsedNetwork)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p.FetchTokens(nil), nil, cacheMetaBypass(), nil)
		},
	})
	return root
}
