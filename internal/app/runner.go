package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-cli/internal/cache"
	"github.com/ggonzalez94/wallet-cli/internal/config"
	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/journal"
	"github.com/ggonzalez94/wallet-cli/internal/logging"
	"github.com/ggonzalez94/wallet-cli/internal/model"
	"github.com/ggonzalez94/wallet-cli/internal/out"
	"github.com/ggonzalez94/wallet-cli/internal/policy"
	"github.com/ggonzalez94/wallet-cli/internal/schema"
	"github.com/ggonzalez94/wallet-cli/internal/version"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return NewRunnerWithIO(os.Stdin, stdout, stderr)
}

// NewRunnerWithIO lets the consent prompt read answers from stdin.
func NewRunnerWithIO(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner       *Runner
	flags        config.GlobalFlags
	settings     config.Settings
	logger       logging.Logger
	cache        *cache.Store
	journal      *journal.Journal
	services     *walletServices
	root         *cobra.Command
	lastCommand  string
	lastWarnings []string
	lastNetworks []model.NodeStatus
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, logger: logging.NewNop()}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	if err != nil {
		state.renderError("", err, state.lastWarnings, state.lastNetworks)
	}
	state.close()
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.services != nil {
		s.services.close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Tron wallet with an approval step before every signature",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			if err := logging.Setup(settings.LogLevel); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}
			s.logger = logging.New("wallet")

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, version.CLIName, path); err != nil {
				return err
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				store, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = store
			}
			if shouldOpenJournal(path) && s.journal == nil {
				if !settings.JournalEnabled && path != "transfer" {
					return clierr.New(clierr.CodeUsage, "signing journal is disabled")
				}
				if settings.JournalEnabled {
					j, err := journal.Open(settings.JournalPath, settings.JournalLockPath)
					if err != nil {
						return clierr.Wrap(clierr.CodeInternal, "open signing journal", err)
					}
					s.journal = j
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted for nested)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Node request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per node request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().BoolVar(&s.flags.NoJournal, "no-journal", false, "Do not record signing requests")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level written to stderr (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newNetworksCommand())
	cmd.AddCommand(s.newExplorersCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newAddressCommand())
	cmd.AddCommand(s.newKeyCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newRequestsCommand())
	cmd.AddCommand(s.newVersionCommand())

	return cmd
}

func (s *runtimeState) newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if long {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), version.Current(), nil, cacheMetaBypass(), nil)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
			return err
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, networks []model.NodeStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Networks:  networks,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.outputOptions())
}

func (s *runtimeState) outputOptions() out.Options {
	mode := s.settings.OutputMode
	if mode == "" {
		mode = out.ModeJSON
	}
	return out.Options{Mode: mode, Select: s.settings.SelectFields, ResultsOnly: s.settings.ResultsOnly}
}

// renderError writes the error envelope to stderr. Field selection and
// results-only never apply to errors.
func (s *runtimeState) renderError(commandPath string, err error, warnings []string, networks []model.NodeStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Error()
	}
	opts := s.outputOptions()
	opts.Select = nil
	opts.ResultsOnly = false
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    clierr.TypeName(clierr.CodeOf(err)),
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Networks:  networks,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, opts)
}

type fetchFn func(ctx context.Context) (data any, networks []model.NodeStatus, err error)

// runCachedCommand serves key from the cache while fresh, refreshes it from
// the node otherwise and falls back to a stale entry within the max-stale
// budget when the node is unreachable.
func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	warnings := []string{}
	var (
		staleData        any
		staleAvailable   bool
		staleCacheStatus model.CacheStatus
		staleAge         time.Duration
	)

	if s.settings.CacheEnabled && s.cache != nil {
		var data any
		cached, err := s.cache.GetJSON(key, s.settings.MaxStale, &data)
		if err == nil && cached.Hit {
			entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
			if !cached.Stale {
				return s.emitSuccess(commandPath, data, warnings, entryStatus, nil)
			}
			staleData, staleAvailable, staleCacheStatus, staleAge = data, true, entryStatus, cached.Age
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, networks, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, networks)
	if err != nil {
		if !staleAvailable || !staleFallbackAllowed(err) {
			return err
		}
		if s.settings.NoStale {
			return clierr.Wrap(clierr.CodeStale, "fresh node query failed and stale fallback is disabled (--no-stale)", err)
		}
		if staleExceedsBudget(staleAge, ttl, s.settings.MaxStale) {
			return clierr.Wrap(clierr.CodeStale, "fresh node query failed and cached data exceeded stale budget", err)
		}
		warnings = append(warnings, "node query failed; serving stale data within max-stale budget")
		s.captureCommandDiagnostics(warnings, networks)
		return s.emitSuccess(commandPath, staleData, warnings, staleCacheStatus, networks)
	}

	if s.settings.CacheEnabled && s.cache != nil {
		if err := s.cache.SetJSON(key, data, ttl); err == nil {
			cacheStatus = model.CacheStatus{Status: "write"}
		} else {
			s.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, networks)
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	switch clierr.CodeOf(err) {
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "unavailable"
	case clierr.CodeClientConstruction:
		return "misconfigured"
	default:
		return "error"
	}
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss"}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl || maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	switch clierr.CodeOf(err) {
	case clierr.CodeUnavailable, clierr.CodeRateLimited:
		return true
	default:
		return false
	}
}

func shouldOpenCache(commandPath string) bool {
	return normalizeCommandPath(commandPath) == "balance"
}

func shouldOpenJournal(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "transfer", "requests list", "requests get":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastNetworks = nil
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, networks []model.NodeStatus) {
	s.lastWarnings = nil
	if len(warnings) > 0 {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	s.lastNetworks = nil
	if len(networks) > 0 {
		s.lastNetworks = append([]model.NodeStatus(nil), networks...)
	}
}
