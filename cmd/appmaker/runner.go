package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

func newRunCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the project on the runner",
		Long: `Start the project on the runner. With --check the command waits for the
settle delay and reports the problem status the service detected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if err := a.session.Run(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", a.session.ActiveProjectID())
			if !check {
				return nil
			}
			wait(ctx, a.cfg.SettleDelay+a.cfg.PollInterval)
			if err := ctx.Err(); err != nil {
				return err
			}
			return printProblem(cmd.OutOrStdout(), a.session.Problem())
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "wait and report detected problems")
	return cmd
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the project on the runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.Stop(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", a.session.ActiveProjectID())
			return nil
		},
	}
}

func newFixCmd(a *app) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Ask the model to repair the detected problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			err := a.session.Fix(cmd.Context(), mf.provider, mf.model)
			if errors.Is(err, session.ErrNoProblem) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No problem detected, nothing to fix.")
				return nil
			}
			if err != nil {
				return err
			}
			st := a.session.Snapshot()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Fixed %s (%d files)\n", st.ActiveProjectID, len(st.Files))
			return nil
		},
	}
	mf.bind(cmd)
	return cmd
}

func newProblemCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "problem",
		Short: "Show the problem detected for the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			p := a.session.Problem()
			return render(cmd.OutOrStdout(), format, p, func() error {
				return printProblem(cmd.OutOrStdout(), p)
			})
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

func printProblem(w io.Writer, p *models.Problem) error {
	if p == nil {
		_, err := fmt.Fprintln(w, "No problem detected.")
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", p.Type, p.Message)
	if err == nil && p.Details != "" {
		_, err = fmt.Fprintf(w, "\n%s\n", strings.TrimRight(p.Details, "\n"))
	}
	return err
}

func newLogsCmd(a *app) *cobra.Command {
	var (
		follow bool
		level  string
		tail   int
		format string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the backend logs",
		Long: `Show the parsed backend logs. With --follow the logs are polled at the
configured interval and new entries are printed until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.project != "" || a.cfg.LogScope == string(session.ScopeProject) {
				if err := a.open(ctx); err != nil {
					return err
				}
			}
			filter := models.LogLevel(strings.ToUpper(level))

			if follow {
				return followLogs(ctx, a, cmd.OutOrStdout(), filter)
			}
			if err := a.session.RefreshLogs(ctx); err != nil {
				return err
			}
			entries := filterLogs(a.session.Logs(), filter)
			if tail > 0 && len(entries) > tail {
				entries = entries[len(entries)-tail:]
			}
			return render(cmd.OutOrStdout(), format, entries, func() error {
				t := newTable(cmd.OutOrStdout(), "TIME", "LEVEL", "MESSAGE")
				for _, e := range entries {
					t.AppendRow([]any{e.Timestamp, e.Level, e.Message})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling and print new entries")
	cmd.Flags().StringVar(&level, "level", "", "only show entries of this level")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "only show the last N entries")
	addOutputFlag(cmd, &format)
	return cmd
}

func filterLogs(entries []models.LogEntry, level models.LogLevel) []models.LogEntry {
	if level == "" {
		return entries
	}
	var out []models.LogEntry
	for _, e := range entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// followLogs prints entries as polling delivers them. Each poll replaces
// the whole log, so only the part past the previous length is printed; a
// shorter log means the backend rotated it and it is printed in full.
func followLogs(ctx context.Context, a *app, w io.Writer, level models.LogLevel) error {
	ch := a.session.Subscribe()
	defer a.session.Unsubscribe(ch)

	if err := a.session.SetPolling(true); err != nil {
		return err
	}

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Type != events.EventLogs {
				continue
			}
			entries := a.session.Logs()
			if len(entries) < printed {
				printed = 0
			}
			for _, e := range filterLogs(entries[printed:], level) {
				if _, err := fmt.Fprintf(w, "%s %-8s %s\n", e.Timestamp, e.Level, e.Message); err != nil {
					return err
				}
			}
			printed = len(entries)
		}
	}
}
