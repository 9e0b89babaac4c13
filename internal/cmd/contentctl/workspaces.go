package contentctl

import (
	"fmt"
	"io"
	"strings"

	contentapp "github.com/louisbranch/contentstream/internal/services/content/app"
	"github.com/louisbranch/contentstream/internal/services/content/domain/workspace"
	"github.com/spf13/cobra"
)

type workspaceView struct {
	Name                string `json:"name"`
	BaseWorkspace       string `json:"base_workspace,omitempty"`
	ContentStreamID     string `json:"content_stream_id"`
	BaseContentStreamID string `json:"base_content_stream_id,omitempty"`
	BaseVersion         int64  `json:"base_version,omitempty"`
	Status              string `json:"status"`
	Version             int64  `json:"version"`
}

func newWorkspaceView(ws workspace.Workspace) workspaceView {
	return workspaceView{
		Name:                ws.Name.String(),
		BaseWorkspace:       ws.BaseWorkspace.String(),
		ContentStreamID:     ws.ContentStreamID.String(),
		BaseContentStreamID: ws.BaseContentStreamID.String(),
		BaseVersion:         ws.BaseVersion,
		Status:              string(ws.Status),
		Version:             ws.Version,
	}
}

func (c *cli) workspacesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspaces",
		Aliases: []string{"ws"},
		Short:   "Inspect and operate workspaces",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workspaces with their current content stream and status",
		Args:  cobra.NoArgs,
		RunE:  c.runWorkspacesList,
	})

	var base string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workspace on top of a base workspace",
		Long: `Create forks the base workspace's current content stream. Without --base
the workspace is a root workspace with an empty content stream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWorkspacesCreate(cmd, args[0], base)
		},
	}
	create.Flags().StringVar(&base, "base", "", "base workspace name")
	cmd.AddCommand(create)

	var force bool
	rebase := &cobra.Command{
		Use:   "rebase <name>",
		Short: "Replay a workspace's own commands onto its base's current state",
		Long: `Rebase forks the base's current content stream and replays the workspace's
own commands in their original order. Commands that no longer apply are
listed and dropped; the rebase itself still succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWorkspacesRebase(cmd, args[0], force)
		},
	}
	rebase.Flags().BoolVar(&force, "force", false, "rebase even when the workspace is up to date")
	cmd.AddCommand(rebase)

	cmd.AddCommand(&cobra.Command{
		Use:   "discard <name>",
		Short: "Drop a workspace's own changes",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runWorkspacesDiscard,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "publish <name>",
		Short: "Publish a workspace's own changes into its base",
		Long: `Publish appends the workspace's own events to the base's content stream.
An outdated workspace must be rebased first.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runWorkspacesPublish,
	})
	return cmd
}

func (c *cli) runWorkspacesList(cmd *cobra.Command, _ []string) error {
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		list, err := content.Workspaces.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list workspaces: %w", err)
		}
		views := make([]workspaceView, len(list))
		for i, ws := range list {
			views[i] = newWorkspaceView(ws)
		}
		return c.render(cmd, views, func(w io.Writer) {
			fmt.Fprintln(w, "NAME\tBASE\tCONTENT STREAM\tSTATUS\tVERSION")
			for _, v := range views {
				base := v.BaseWorkspace
				if base == "" {
					base = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", v.Name, base, v.ContentStreamID, v.Status, v.Version)
			}
		})
	})
}

func (c *cli) runWorkspacesCreate(cmd *cobra.Command, rawName, rawBase string) error {
	name, err := workspace.ParseName(rawName)
	if err != nil {
		return err
	}
	var base workspace.Name
	if rawBase = strings.TrimSpace(rawBase); rawBase != "" {
		if base, err = workspace.ParseName(rawBase); err != nil {
			return err
		}
	}
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		var ws workspace.Workspace
		if base == "" {
			ws, err = content.Workspaces.CreateRoot(cmd.Context(), name)
		} else {
			ws, err = content.Workspaces.Create(cmd.Context(), name, base)
		}
		if err != nil {
			return fmt.Errorf("create workspace %s: %w", name, err)
		}
		return c.renderWorkspace(cmd, ws)
	})
}

type failedCommandView struct {
	SequenceNumber int64  `json:"sequence_number"`
	CommandID      string `json:"command_id"`
	Type           string `json:"type"`
	Cause          string `json:"cause"`
}

func (c *cli) runWorkspacesRebase(cmd *cobra.Command, rawName string, force bool) error {
	name, err := workspace.ParseName(rawName)
	if err != nil {
		return err
	}
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		result, err := content.Workspaces.Rebase(cmd.Context(), name, workspace.RebaseOptions{Force: force})
		if err != nil {
			return fmt.Errorf("rebase %s: %w", name, err)
		}
		view := struct {
			Workspace workspaceView       `json:"workspace"`
			Skipped   bool                `json:"skipped,omitempty"`
			Failed    []failedCommandView `json:"failed,omitempty"`
		}{Workspace: newWorkspaceView(result.Workspace), Skipped: result.Skipped}
		for _, failed := range result.Failed {
			view.Failed = append(view.Failed, failedCommandView{
				SequenceNumber: failed.SequenceNumber,
				CommandID:      failed.Command.ID,
				Type:           string(failed.Command.Type),
				Cause:          failed.Cause.Error(),
			})
		}
		return c.render(cmd, view, func(w io.Writer) {
			ws := view.Workspace
			if view.Skipped {
				fmt.Fprintf(w, "%s\t%s\tup to date, skipped\n", ws.Name, ws.ContentStreamID)
				return
			}
			fmt.Fprintf(w, "%s\t%s\t%d failed\n", ws.Name, ws.ContentStreamID, len(view.Failed))
			for _, f := range view.Failed {
				fmt.Fprintf(w, "  seq %d\t%s\t%s\n", f.SequenceNumber, f.Type, f.Cause)
			}
		})
	})
}

func (c *cli) runWorkspacesDiscard(cmd *cobra.Command, args []string) error {
	name, err := workspace.ParseName(args[0])
	if err != nil {
		return err
	}
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		ws, err := content.Workspaces.Discard(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("discard %s: %w", name, err)
		}
		return c.renderWorkspace(cmd, ws)
	})
}

func (c *cli) runWorkspacesPublish(cmd *cobra.Command, args []string) error {
	name, err := workspace.ParseName(args[0])
	if err != nil {
		return err
	}
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		result, err := content.Workspaces.Publish(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		view := struct {
			Workspace workspaceView `json:"workspace"`
			Published int           `json:"published"`
		}{Workspace: newWorkspaceView(result.Workspace), Published: len(result.PublishedEvents)}
		return c.render(cmd, view, func(w io.Writer) {
			fmt.Fprintf(w, "%s\t%s\t%d events published\n", view.Workspace.Name, view.Workspace.ContentStreamID, view.Published)
		})
	})
}

func (c *cli) renderWorkspace(cmd *cobra.Command, ws workspace.Workspace) error {
	view := newWorkspaceView(ws)
	return c.render(cmd, view, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", view.Name, view.ContentStreamID, view.Status)
	})
}
