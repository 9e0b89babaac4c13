package contentctl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
	"github.com/spf13/cobra"
)

type eventView struct {
	Seq         int64           `json:"seq"`
	Stream      string          `json:"stream"`
	Version     int64           `json:"version"`
	Type        string          `json:"type"`
	Timestamp   time.Time       `json:"ts"`
	CommandType string          `json:"command_type,omitempty"`
	Payload     jsonRawOrString `json:"payload"`
}

// jsonRawOrString embeds valid JSON payloads verbatim.
type jsonRawOrString []byte

func (p jsonRawOrString) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func newEventView(evt event.Event) eventView {
	return eventView{
		Seq:         evt.Seq,
		Stream:      evt.Stream,
		Version:     evt.Version,
		Type:        string(evt.Type),
		Timestamp:   evt.Timestamp.UTC(),
		CommandType: evt.Metadata.CommandType,
		Payload:     jsonRawOrString(evt.PayloadJSON),
	}
}

func writeEventTable(w io.Writer, views []eventView) {
	fmt.Fprintln(w, "SEQ\tSTREAM\tVERSION\tTYPE\tTIME")
	for _, v := range views {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", v.Seq, v.Stream, v.Version, v.Type, v.Timestamp.Format(time.RFC3339))
	}
}

func (c *cli) streamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "Inspect event streams",
	}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List streams and their versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStreamsList(cmd, category)
		},
	}
	list.Flags().StringVar(&category, "category", "", "only streams in this category, e.g. workspace")
	cmd.AddCommand(list)

	var after int64
	var limit int
	show := &cobra.Command{
		Use:   "show <stream>",
		Short: "Show a stream's version and events",
		Long: `Show prints the events of one stream in version order.

Example:
  contentctl streams show workspace:live
  contentctl streams show content_stream:0b6f... --after 10 --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStreamsShow(cmd, args[0], after, limit)
		},
	}
	show.Flags().Int64Var(&after, "after", 0, "only events after this stream version")
	show.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.AddCommand(show)
	return cmd
}

func (c *cli) runStreamsList(cmd *cobra.Command, category string) error {
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	streams, err := store.ListStreams(cmd.Context(), strings.TrimSpace(category))
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}
	type streamView struct {
		Name    string `json:"name"`
		Version int64  `json:"version"`
	}
	views := make([]streamView, len(streams))
	for i, s := range streams {
		views[i] = streamView{Name: s.Name, Version: s.Version}
	}
	return c.render(cmd, views, func(w io.Writer) {
		fmt.Fprintln(w, "STREAM\tVERSION")
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%d\n", v.Name, v.Version)
		}
	})
}

func (c *cli) runStreamsShow(cmd *cobra.Command, stream string, after int64, limit int) error {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return fmt.Errorf("stream name is required")
	}
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.StreamVersion(cmd.Context(), stream)
	if err != nil {
		return fmt.Errorf("stream version: %w", err)
	}
	events, err := store.ReadStream(cmd.Context(), stream, after, limit)
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	views := make([]eventView, len(events))
	for i, evt := range events {
		views[i] = newEventView(evt)
	}
	out := struct {
		Stream  string      `json:"stream"`
		Version int64       `json:"version"`
		Events  []eventView `json:"events"`
	}{Stream: stream, Version: version, Events: views}
	return c.render(cmd, out, func(w io.Writer) {
		fmt.Fprintf(w, "%s\tversion %d\n\n", stream, version)
		writeEventTable(w, views)
	})
}

func (c *cli) eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the global event log",
	}

	var (
		stream string
		filter string
		after  int64
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List events from the global log",
		Long: `List reads the global log in sequence order, optionally narrowed to a
virtual stream and an AIP-160 filter over stream, type, command_type, seq
and ts.

Example:
  contentctl events list --stream category:workspace
  contentctl events list --filter 'type = "subtree.tagged" AND seq > 100'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, err := storage.ParseVirtualStream(stream)
			if err != nil {
				return err
			}
			return c.runEventsList(cmd, storage.ReadAllRequest{
				AfterSeq: after,
				Limit:    limit,
				Category: category,
				Filter:   filter,
			})
		},
	}
	list.Flags().StringVar(&stream, "stream", storage.AllStreams, `virtual stream: "$all" or "category:<name>"`)
	list.Flags().StringVar(&filter, "filter", "", "AIP-160 filter expression")
	list.Flags().Int64Var(&after, "after", 0, "only events after this global sequence")
	list.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.AddCommand(list)
	return cmd
}

func (c *cli) runEventsList(cmd *cobra.Command, req storage.ReadAllRequest) error {
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ReadAll(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	views := make([]eventView, len(events))
	for i, evt := range events {
		views[i] = newEventView(evt)
	}
	return c.render(cmd, views, func(w io.Writer) {
		writeEventTable(w, views)
	})
}
