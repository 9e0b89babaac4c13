package contentctl

import (
	"encoding/json"
	"fmt"
	"io"

	contentapp "github.com/louisbranch/contentstream/internal/services/content/app"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/subtreetag"
	"github.com/louisbranch/contentstream/internal/services/content/domain/workspace"
	"github.com/spf13/cobra"
)

type grantView struct {
	AggregateID string            `json:"aggregate_id"`
	Tag         string            `json:"tag"`
	Point       map[string]string `json:"point"`
}

func (c *cli) tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and change subtree tags",
	}
	var aggregate string
	list := &cobra.Command{
		Use:   "list <workspace>",
		Short: "List active tag grants in a workspace's content stream",
		Long: `List reads the subtree tag index for the workspace's current content
stream. The index is only as fresh as its subscription position; see
"contentctl subscriptions list".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTagsList(cmd, args[0], aggregate)
		},
	}
	list.Flags().StringVar(&aggregate, "aggregate", "", "only grants on this aggregate")
	cmd.AddCommand(list)
	cmd.AddCommand(c.tagChangeCmd("add", subtreetag.CommandTag, "Grant a tag to an aggregate at dimension space points"))
	cmd.AddCommand(c.tagChangeCmd("remove", subtreetag.CommandUntag, "Revoke an aggregate's own grant of a tag"))
	return cmd
}

func (c *cli) tagChangeCmd(use string, typ command.Type, short string) *cobra.Command {
	var points []string
	cmd := &cobra.Command{
		Use:   use + " <workspace> <aggregate> <tag>",
		Short: short,
		Long: `Points are given in canonical form, one per --point flag, for example
--point "language=de" or --point "language=de|market=ch". The tag index picks
the change up on the next catch-up pass.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTagChange(cmd, typ, args, points)
		},
	}
	cmd.Flags().StringArrayVar(&points, "point", nil, "affected dimension space point (repeatable)")
	return cmd
}

func (c *cli) runTagChange(cmd *cobra.Command, typ command.Type, args, rawPoints []string) error {
	name, err := workspace.ParseName(args[0])
	if err != nil {
		return err
	}
	tag, err := subtreetag.ParseTag(args[2])
	if err != nil {
		return err
	}
	if len(rawPoints) == 0 {
		return fmt.Errorf("at least one --point is required")
	}
	points := make([]dimensionspace.Point, len(rawPoints))
	for i, raw := range rawPoints {
		if points[i], err = dimensionspace.ParseCanonical(raw); err != nil {
			return fmt.Errorf("--point %q: %w", raw, err)
		}
	}
	payload, err := json.Marshal(subtreetag.Payload{
		AggregateID:    args[1],
		AffectedPoints: dimensionspace.NewPointSet(points...),
		Tag:            tag.String(),
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		ws, err := content.Workspaces.Get(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("get workspace %s: %w", name, err)
		}
		result, err := content.Handler.Handle(cmd.Context(), command.Command{
			StreamID:    ws.ContentStreamID.String(),
			Type:        typ,
			PayloadJSON: payload,
		})
		if err != nil {
			return fmt.Errorf("%s %s on %s: %w", typ, tag, args[1], err)
		}
		views := make([]eventView, len(result.Events))
		for i, evt := range result.Events {
			views[i] = newEventView(evt)
		}
		return c.render(cmd, views, func(w io.Writer) { writeEventTable(w, views) })
	})
}

func (c *cli) runTagsList(cmd *cobra.Command, rawName, aggregate string) error {
	name, err := workspace.ParseName(rawName)
	if err != nil {
		return err
	}
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		ws, err := content.Workspaces.Get(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("get workspace %s: %w", name, err)
		}
		grants, err := content.Tags.ActiveGrants(cmd.Context(), ws.ContentStreamID, aggregate)
		if err != nil {
			return err
		}
		views := make([]grantView, len(grants))
		for i, g := range grants {
			views[i] = grantView{AggregateID: g.AggregateID, Tag: g.Tag.String(), Point: g.Point.Coordinates()}
		}
		return c.render(cmd, views, func(w io.Writer) {
			fmt.Fprintln(w, "AGGREGATE\tTAG\tPOINT")
			for i, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.AggregateID, v.Tag, grants[i].Point.String())
			}
		})
	})
}
