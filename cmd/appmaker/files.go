package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/tree"
)

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the file tree of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			st := a.session.Snapshot()
			return tree.Render(cmd.OutOrStdout(), a.session.Tree(), st.SelectedPath)
		},
	}
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat [PATH]",
		Short: "Print a file of the project (default: the selected file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if len(args) == 1 {
				if err := a.session.SelectFile(args[0]); err != nil {
					return err
				}
			}
			content, ok := a.session.Snapshot().SelectedContent()
			if !ok {
				return fmt.Errorf("project has no files")
			}
			_, err := io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			st := a.session.Snapshot()
			return render(cmd.OutOrStdout(), format, st, func() error {
				return printStatus(cmd.OutOrStdout(), st)
			})
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

func printStatus(w io.Writer, st session.State) error {
	name := "-"
	if p, ok := st.ActiveProject(); ok {
		name = p.Name
	}
	problem := "none"
	if st.Problem != nil {
		problem = st.Problem.Type + ": " + st.Problem.Message
	}
	pending := "-"
	if len(st.Pending) > 0 {
		names := make([]string, len(st.Pending))
		for i, p := range st.Pending {
			names[i] = string(p)
		}
		pending = strings.Join(names, ", ")
	}

	t := newTable(w, "FIELD", "VALUE")
	t.AppendRows([]table.Row{
		{"project", st.ActiveProjectID},
		{"name", name},
		{"status", st.Status},
		{"files", len(st.Files)},
		{"selected", st.SelectedPath},
		{"problem", problem},
		{"polling", st.PollingEnabled},
		{"pending", pending},
	})
	if st.LastError != "" {
		t.AppendRow(table.Row{"last error", st.LastError})
	}
	t.Render()
	return nil
}
