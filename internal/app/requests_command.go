package app

import (
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/journal"
	"github.com/ggonzalez94/wallet-cli/internal/signing"
)

func (s *runtimeState) newRequestsCommand() *cobra.Command {
	root := &cobra.Command{Use: "requests", Aliases: []string{"req"}, Short: "Signing request journal"}

	var state string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded signing requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if state != "" && !knownState(signing.State(state)) {
				return clierr.New(clierr.CodeUsage, "unknown request state: "+state)
			}
			if limit <= 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be positive")
			}
			j, err := s.requireJournal()
			if err != nil {
				return err
			}
			items, err := j.List(state, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list signing requests", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil)
		},
	}
	list.Flags().StringVar(&state, "state", "", "Filter by state (pending_approval|approved|rejected|expired|signed|signing_failed)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one signing request by its correlation ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := s.requireJournal()
			if err != nil {
				return err
			}
			rec, err := j.Get(args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec, nil, cacheMetaBypass(), nil)
		},
	}

	root.AddCommand(list, get)
	return root
}

func (s *runtimeState) requireJournal() (*journal.Journal, error) {
	if s.journal == nil {
		return nil, clierr.New(clierr.CodeUsage, "signing journal is disabled")
	}
	return s.journal, nil
}

func knownState(st signing.State) bool {
	switch st {
	case signing.StateCreated, signing.StatePendingApproval, signing.StateApproved, signing.StateRejected,
		signing.StateExpired, signing.StateSigned, signing.StateSigningFailed:
		return true
	default:
		return false
	}
}
