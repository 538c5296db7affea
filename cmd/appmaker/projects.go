package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
)

func newProjectsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"ls"},
		Short:   "List the projects known to the service",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.session.RefreshProjects(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, list, func() error {
				if len(list) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No projects yet.")
					return nil
				}
				t := newTable(cmd.OutOrStdout(), "ID", "NAME")
				for _, p := range list {
					t.AppendRow([]any{p.ID, p.Name})
				}
				t.Render()
				return nil
			})
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

func newModelsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the LLM providers and models offered by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := a.session.LLMOptions(cmd.Context())
			if err != nil {
				return err
			}
			provider, model := a.session.DefaultModel(opts)
			resp := protocol.ModelsResponse{Options: opts, DefaultProvider: provider, DefaultModel: model}
			return render(cmd.OutOrStdout(), format, resp, func() error {
				t := newTable(cmd.OutOrStdout(), "PROVIDER", "MODEL", "DEFAULT")
				providers := make([]string, 0, len(opts))
				for p := range opts {
					providers = append(providers, p)
				}
				slices.Sort(providers)
				for _, p := range providers {
					for _, m := range opts[p] {
						def := ""
						if p == provider && m == model {
							def = "*"
						}
						t.AppendRow([]any{p, m, def})
					}
				}
				t.Render()
				return nil
			})
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

// promptFrom joins args into a prompt. A single "-" reads it from in.
func promptFrom(args []string, in io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

// modelFlags are the --provider and --model overrides of the generating
// commands.
type modelFlags struct {
	provider string
	model    string
}

func (f *modelFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider (default from config)")
	cmd.Flags().StringVar(&f.model, "model", "", "LLM model (default from config)")
}

func newGenerateCmd(a *app) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "generate PROMPT...",
		Short: "Generate a new project from a description",
		Example: `  appmaker generate "a flask todo list with sqlite"
  echo "a snake game in pygame" | appmaker generate -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFrom(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			id, err := a.session.Generate(cmd.Context(), prompt, mf.provider, mf.model)
			if err != nil {
				return err
			}
			files := a.session.Snapshot().Files
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%d files)\n", id, len(files))
			return nil
		},
	}
	mf.bind(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var mf modelFlags
	cmd := &cobra.Command{
		Use:   "update PROMPT...",
		Short: "Regenerate the project from a change request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := promptFrom(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.Update(cmd.Context(), prompt, mf.provider, mf.model); err != nil {
				return err
			}
			st := a.session.Snapshot()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated project %s (%d files)\n", st.ActiveProjectID, len(st.Files))
			return nil
		},
	}
	mf.bind(cmd)
	return cmd
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME...",
		Short: "Rename a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			if err := a.session.Rename(cmd.Context(), args[0], name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", args[0], name)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			if err := a.session.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the prompts and responses of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			h := a.session.Snapshot().History
			if h == nil {
				h = &models.ProjectHistory{}
			}
			return render(cmd.OutOrStdout(), format, h, func() error {
				return printHistory(cmd.OutOrStdout(), h)
			})
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

func printHistory(w io.Writer, h *models.ProjectHistory) error {
	if len(h.Prompts) == 0 {
		_, err := fmt.Fprintln(w, "No history.")
		return err
	}
	t := newTable(w, "TIME", "FROM", "CONTENT")
	for _, e := range h.Prompts {
		t.AppendRow([]any{e.Timestamp, e.Type, summarize(e.Content)})
	}
	t.Render()
	return nil
}

func summarize(c models.HistoryContent) string {
	switch c.Kind {
	case models.ContentText:
		text := strings.Join(strings.Fields(c.Text), " ")
		if len(text) > 72 {
			text = text[:69] + "..."
		}
		return text
	case models.ContentFileSet:
		return fmt.Sprintf("%d files: %s", len(c.Files), strings.Join(c.Files.Keys(), ", "))
	default:
		return "-"
	}
}
