package app

import (
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/keys"
	"github.com/ggonzalez94/wallet-cli/internal/model"
	"github.com/ggonzalez94/wallet-cli/internal/plugin/trx"
	"github.com/ggonzalez94/wallet-cli/internal/tron"
)

func (s *runtimeState) newAddressCommand() *cobra.Command {
	root := &cobra.Command{Use: "address", Short: "Tron address helpers"}
	root.AddCommand(&cobra.Command{
		Use:   "validate <address>",
		Short: "Check a base58check Tron address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check := model.AddressCheck{Address: args[0]}
			if addr, err := tron.DecodeAddress(args[0]); err == nil {
				check.Valid = true
				check.Hex = addr.Hex()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), check, nil, cacheMetaBypass(), nil)
		},
	})
	return root
}

func (s *runtimeState) newKeyCommand() *cobra.Command {
	root := &cobra.Command{Use: "key", Aliases: []string{"keys"}, Short: "Signing key helpers"}

	var source, privateKey string
	addSourceFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&source, "key-source", keys.SourceAuto, "Key source (auto|env|file|keystore)")
		cmd.Flags().StringVar(&privateKey, "private-key", "", "Private key hex (overrides configured sources; unsafe)")
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check that the configured private key is usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			p, err := svc.pluginFor(trx.EndorsedNetwork)
			if err != nil {
				return err
			}
			check := model.KeyCheck{Source: sourceLabel(source, privateKey)}
			if privateKey != "" {
				check.Valid = p.ValidPrivateKey(p.ConformPrivateKey(privateKey))
				if check.Valid {
					check.PublicKey, _ = p.PrivateToPublic(p.ConformPrivateKey(privateKey))
					check.Kind = keys.KindSoftware.String()
				}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), check, nil, cacheMetaBypass(), nil)
			}
			pub, err := svc.loadSoftwareKey(source, "", false)
			if err != nil {
				if clierr.Is(err, clierr.CodeInvalidPrivateKey) {
					return s.emitSuccess(trimRootPath(cmd.CommandPath()), check, []string{err.Error()}, cacheMetaBypass(), nil)
				}
				return err
			}
			check.Valid, check.PublicKey, check.Kind = true, pub, keys.KindSoftware.String()
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), check, nil, cacheMetaBypass(), nil)
		},
	}
	addSourceFlags(validate)

	public := &cobra.Command{
		Use:   "public",
		Short: "Print the address of the configured private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			pub, err := svc.loadSoftwareKey(source, privateKey, false)
			if err != nil {
				return err
			}
			check := model.KeyCheck{Valid: true, PublicKey: pub, Source: sourceLabel(source, privateKey), Kind: keys.KindSoftware.String()}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), check, nil, cacheMetaBypass(), nil)
		},
	}
	addSourceFlags(public)

	list := &cobra.Command{
		Use:   "list",
		Short: "List every key that can sign, software and hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.newServices()
			if err != nil {
				return err
			}
			if _, err := svc.loadSoftwareKey(keys.SourceAuto, "", true); err != nil {
				return err
			}
			items := []model.KeyCheck{}
			for _, pk := range svc.keyring.PublicKeys() {
				capability, err := svc.keyring.Resolve(pk)
				if err != nil {
					return err
				}
				items = append(items, model.KeyCheck{Valid: true, PublicKey: pk, Kind: capability.Kind().String()})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil)
		},
	}

	root.AddCommand(validate, public, list)
	return root
}

func sourceLabel(source, override string) string {
	if override != "" {
		return "flag"
	}
	if source == "" {
		return keys.SourceAuto
	}
	return source
}
