package contentctl

import (
	"fmt"
	"io"
	"time"

	contentapp "github.com/louisbranch/contentstream/internal/services/content/app"
	"github.com/louisbranch/contentstream/internal/services/content/subscription"
	"github.com/spf13/cobra"
)

type subscriptionView struct {
	ID           string    `json:"id"`
	Position     int64     `json:"position"`
	Status       string    `json:"status"`
	RetryAttempt int       `json:"retry_attempt"`
	LastError    string    `json:"last_error,omitempty"`
	LastSavedAt  time.Time `json:"last_saved_at"`
}

func newSubscriptionView(sub subscription.Subscription) subscriptionView {
	return subscriptionView{
		ID:           sub.ID,
		Position:     sub.Position,
		Status:       string(sub.Status),
		RetryAttempt: sub.RetryAttempt,
		LastError:    sub.LastError,
		LastSavedAt:  sub.LastSavedAt.UTC(),
	}
}

func (c *cli) subscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Inspect and operate projection subscriptions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscriptions with their position and status",
		Args:  cobra.NoArgs,
		RunE:  c.runSubscriptionsList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reactivate <id>",
		Short: "Return a failed subscription to active",
		Long: `Reactivate clears the retry state of a subscription so the daemon's next
catch-up pass resumes it from its current position.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runSubscriptionsReactivate,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <id>",
		Short: "Clear a projection and replay it from the start of the log",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runSubscriptionsReset,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "catch-up [id]",
		Short: "Run one catch-up pass for one or every subscription",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runSubscriptionsCatchUp,
	})
	return cmd
}

func (c *cli) runSubscriptionsList(cmd *cobra.Command, _ []string) error {
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		subs, err := content.Subscriptions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list subscriptions: %w", err)
		}
		views := make([]subscriptionView, len(subs))
		for i, sub := range subs {
			views[i] = newSubscriptionView(sub)
		}
		return c.render(cmd, views, func(w io.Writer) {
			fmt.Fprintln(w, "ID\tPOSITION\tSTATUS\tATTEMPT\tLAST ERROR")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", v.ID, v.Position, v.Status, v.RetryAttempt, v.LastError)
			}
		})
	})
}

func (c *cli) runSubscriptionsReactivate(cmd *cobra.Command, args []string) error {
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		sub, err := content.Subscriptions.Reactivate(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("reactivate %s: %w", args[0], err)
		}
		return c.renderSubscription(cmd, sub)
	})
}

func (c *cli) runSubscriptionsReset(cmd *cobra.Command, args []string) error {
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		sub, err := content.Subscriptions.Reset(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("reset %s: %w", args[0], err)
		}
		return c.renderSubscription(cmd, sub)
	})
}

func (c *cli) runSubscriptionsCatchUp(cmd *cobra.Command, args []string) error {
	return c.withContent(cmd.Context(), func(content *contentapp.Content) error {
		var (
			results []subscription.Result
			err     error
		)
		if len(args) == 1 {
			var result subscription.Result
			result, err = content.Subscriptions.CatchUp(cmd.Context(), args[0])
			results = []subscription.Result{result}
		} else {
			results, err = content.Subscriptions.CatchUpAll(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("catch up: %w", err)
		}
		type resultView struct {
			ID       string `json:"id"`
			Applied  int    `json:"applied"`
			Position int64  `json:"position"`
			Status   string `json:"status"`
			Deferred bool   `json:"deferred,omitempty"`
		}
		views := make([]resultView, len(results))
		for i, r := range results {
			views[i] = resultView{ID: r.ID, Applied: r.Applied, Position: r.Position, Status: string(r.Status), Deferred: r.Deferred}
		}
		return c.render(cmd, views, func(w io.Writer) {
			fmt.Fprintln(w, "ID\tAPPLIED\tPOSITION\tSTATUS")
			for _, v := range views {
				status := v.Status
				if v.Deferred {
					status += " (deferred)"
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", v.ID, v.Applied, v.Position, status)
			}
		})
	})
}

func (c *cli) renderSubscription(cmd *cobra.Command, sub subscription.Subscription) error {
	view := newSubscriptionView(sub)
	return c.render(cmd, view, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\tposition %d\n", view.ID, view.Status, view.Position)
	})
}
