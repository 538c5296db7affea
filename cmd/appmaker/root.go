package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/config"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/logging"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/poller"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/client"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/retry"
)

// app is the state shared by all commands of one invocation.
type app struct {
	cfgFile string
	project string

	cfg     *config.Config
	logger  *zap.Logger
	client  *client.Client
	bus     *events.Broadcaster
	session *session.Coordinator
}

// needsSetup reports whether cmd talks to the service. Help, version
// and shell completion run without configuration.
func needsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// newRootCmd builds the command tree around a. The caller closes a once
// the command returns.
func newRootCmd(a *app) *cobra.Command {

	root := &cobra.Command{
		Use:   "appmaker",
		Short: "App Maker workspace client",
		Long: `appmaker drives the App Maker generation service: it lists and generates
projects, runs them, follows their logs and asks the model to fix detected
problems. "serve" exposes the same session to local front ends over HTTP.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsSetup(cmd) {
				return nil
			}
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("appmaker {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./appmaker.yaml)")
	flags.StringVarP(&a.project, "project", "p", "", "project id (default: the last listed project)")
	config.BindFlags(flags)

	_ = root.RegisterFlagCompletionFunc("log-scope", fixedCompletion("global", "project"))
	_ = root.RegisterFlagCompletionFunc("log-level", fixedCompletion("debug", "info", "warn", "error"))
	_ = root.RegisterFlagCompletionFunc("log-format", fixedCompletion("auto", "console", "json"))

	root.AddCommand(
		newProjectsCmd(a),
		newModelsCmd(a),
		newGenerateCmd(a),
		newUpdateCmd(a),
		newRenameCmd(a),
		newDeleteCmd(a),
		newHistoryCmd(a),
		newRunCmd(a),
		newStopCmd(a),
		newFixCmd(a),
		newLogsCmd(a),
		newProblemCmd(a),
		newTreeCmd(a),
		newCatCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newTUICmd(a),
		newMountCmd(a),
		newVersionCmd(),
	)
	return root
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// setup loads the configuration and builds the client and session.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogOutput,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.logger = logging.L()
	if cfg.FileUsed != "" {
		a.logger.Debug("using config file", zap.String("path", cfg.FileUsed))
	}

	policy := poller.ContinueOnError
	if cfg.StopPollingOnError {
		policy = poller.StopOnError
	}
	scope, err := session.ParseLogScope(cfg.LogScope)
	if err != nil {
		return err
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	a.client = client.New(client.Config{
		BaseURL:     cfg.ServerBase(),
		Timeout:     cfg.RequestTimeout,
		RetryConfig: rc,
		Logger:      a.logger,
		Observe:     metrics.RecordRemoteRequest,
	})

	a.bus = events.NewBroadcaster()
	a.session = session.New(session.Config{
		Remote:          a.client,
		Broadcaster:     a.bus,
		Logger:          a.logger,
		PollInterval:    cfg.PollInterval,
		SettleDelay:     cfg.SettleDelay,
		LogScope:        scope,
		FailurePolicy:   policy,
		AutoPollOnRun:   cfg.AutoPollOnRun,
		AutoSelectLast:  cfg.AutoSelectLast,
		DefaultProvider: cfg.DefaultProvider,
		DefaultModel:    cfg.DefaultModel,
	})
	return nil
}

// close releases the session. It is safe on an app that never ran setup.
func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.logger != nil {
		_ = logging.Sync()
	}
}

// open makes the project named by --project active, or the last listed
// project when none is named.
func (a *app) open(ctx context.Context) error {
	if id := strings.TrimSpace(a.project); id != "" {
		return a.session.Select(ctx, id)
	}
	if err := a.session.Init(ctx); err != nil {
		return err
	}
	if a.session.ActiveProjectID() == "" {
		return fmt.Errorf("%w: the service has no projects yet, use \"appmaker generate\"", session.ErrNoActiveProject)
	}
	return nil
}

// wait blocks until ctx ends or d elapses.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "appmaker %s (%s)\n", Version, GitCommit)
		},
	}
}
