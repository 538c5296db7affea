package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/api"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/config"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/logging"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/mount"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/tui"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/client"
)

// openBestEffort selects a project when one exists. Long-running surfaces
// start fine against an empty service.
func (a *app) openBestEffort(ctx context.Context) error {
	err := a.open(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if a.project != "" {
		return err
	}
	a.logger.Warn("no project opened", zap.Error(err))
	return nil
}

func newServeCmd(a *app) *cobra.Command {
	var (
		addr        string
		watchConfig bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session to local front ends over HTTP",
		Long: `Serve the session over a local HTTP bridge: JSON endpoints under /api,
a Server-Sent Events stream at /api/events, /health and /metrics.

With --watch-config the config file is watched and log level changes are
applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.openBestEffort(ctx); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			srv := api.NewServer(api.Config{
				Session:    a.session,
				ListenAddr: addr,
				Logger:     a.logger,
				Version:    Version,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Serve(gctx)
			})
			if watchConfig {
				if a.cfg.FileUsed == "" {
					a.logger.Warn("no config file to watch")
				} else {
					g.Go(func() error {
						return config.Watch(gctx, a.cfg.FileUsed, cmd.Root().PersistentFlags(), a.reload)
					})
				}
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reload the log level when the config file changes")
	return cmd
}

// reload applies the settings that can change at runtime.
func (a *app) reload(cfg *config.Config, err error) {
	if err != nil {
		a.logger.Warn("config reload failed", zap.Error(err))
		return
	}
	if cfg.LogLevel == logging.Level() {
		return
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Warn("invalid log level", zap.String("level", cfg.LogLevel), zap.Error(err))
		return
	}
	a.logger.Info("log level changed", zap.String("level", cfg.LogLevel))
}

func newWatchCmd(a *app) *cobra.Command {
	var bridge string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the event stream of a running bridge",
		Long: `Follow the Server-Sent Events stream of an "appmaker serve" process and
print one line per session change. The stream reconnects when it drops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bridge == "" {
				bridge = "http://" + a.cfg.ListenAddr
			}
			w := client.NewWatcher(bridge, a.logger)
			stream, errs := w.Subscribe(cmd.Context())
			for {
				select {
				case ev, ok := <-stream:
					if !ok {
						return nil
					}
					printStreamEvent(cmd.OutOrStdout(), ev)
				case err, ok := <-errs:
					if !ok {
						return nil
					}
					a.logger.Debug("event stream", zap.Error(err))
				}
			}
		},
	}
	cmd.Flags().StringVar(&bridge, "bridge", "", "bridge URL (default from listen_addr)")
	return cmd
}

func printStreamEvent(w io.Writer, ev client.StreamEvent) {
	var e events.Event
	if err := json.Unmarshal(ev.Data, &e); err != nil || e.Type == "" {
		_, _ = fmt.Fprintf(w, "%s %s\n", ev.Type, strings.TrimSpace(string(ev.Data)))
		return
	}
	at := time.UnixMilli(e.Timestamp).Format(time.TimeOnly)
	line := fmt.Sprintf("%s v%-5d %-9s", at, e.Version, e.Type)
	if e.ProjectID != "" {
		line += " project=" + e.ProjectID
	}
	if e.Status != "" {
		line += " status=" + e.Status
	}
	_, _ = fmt.Fprintln(w, line)
}

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.openBestEffort(ctx); err != nil {
				return err
			}
			if err := a.session.SetPolling(true); err != nil {
				return err
			}
			return tui.Run(ctx, a.session)
		},
	}
}

func newMountCmd(a *app) *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "mount DIR",
		Short: "Mount the project read-only at DIR",
		Long: `Mount the files of the project read-only at DIR until interrupted. The
project is reloaded from the service every --refresh interval so the mount
follows regenerations made elsewhere.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := a.open(ctx); err != nil {
				return err
			}

			ws := mount.New(mount.Config{Source: a.session, Logger: a.logger})
			server, err := ws.Mount(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s at %s, press Ctrl+C to unmount\n", a.session.ActiveProjectID(), args[0])

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				ws.Track(gctx)
				return nil
			})
			g.Go(func() error {
				a.refreshLoop(gctx, refresh)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				if err := server.Unmount(); err != nil {
					a.logger.Debug("unmount", zap.Error(err))
				}
				return nil
			})
			// Wait returns on interrupt or when DIR is unmounted externally.
			server.Wait()
			cancel()
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 5*time.Second, "reload interval, 0 to disable")
	return cmd
}

// refreshLoop reselects the active project every interval.
func (a *app) refreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id := a.session.ActiveProjectID()
			if id == "" {
				continue
			}
			if err := a.session.Select(ctx, id); err != nil && ctx.Err() == nil {
				a.logger.Warn("refresh failed", logging.Project(id), zap.Error(err))
			}
		}
	}
}
