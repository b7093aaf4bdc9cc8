package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/record"
	"github.com/roach88/loadkit/internal/store"
)

// LoadView is the JSON form of a journaled load.
type LoadView struct {
	Seq        int64     `json:"seq"`
	ID         string    `json:"id"`
	Collection string    `json:"collection,omitempty"`
	Loader     string    `json:"loader"`
	Convention string    `json:"convention"`
	Targets    int       `json:"targets"`
	Adhoc      int       `json:"adhoc,omitempty"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	Merges     int       `json:"merges"`
	Error      string    `json:"error,omitempty"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished,omitzero"`
}

// MergeView is the JSON form of a journaled merge.
type MergeView struct {
	Seq       int64 `json:"seq"`
	Added     int   `json:"added"`
	Updated   int   `json:"updated"`
	Unchanged int   `json:"unchanged"`
}

// LoadDetail is a load with its merges.
type LoadDetail struct {
	LoadView
	MergeList []MergeView `json:"merge_list"`
}

// VersionView is one write of a record key.
type VersionView struct {
	LoadID string        `json:"load_id"`
	Hash   string        `json:"hash"`
	Record record.Record `json:"record"`
}

// InspectOptions holds flags shared by the inspect subcommands.
type InspectOptions struct {
	*RootOptions
	Collection string
	Status     string
	Limit      int
}

// NewInspectCommand creates the inspect command and its subcommands.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Query the load journal",
		Long: `Query the load journal written when a database is configured
(--db or "database" in the config file).

Examples:
  loadkit inspect loads --db ./loadkit.db --collection pages --limit 10
  loadkit inspect load 0190a3c2-... --db ./loadkit.db
  loadkit inspect records pages --db ./loadkit.db
  loadkit inspect records pages pages/index.html --db ./loadkit.db`,
	}

	loads := &cobra.Command{
		Use:           "loads",
		Short:         "List journaled loads",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(st *store.Store) error {
				return runInspectLoads(opts, cmd, st)
			})
		},
	}
	loads.Flags().StringVar(&opts.Collection, "collection", "", "only loads of this collection")
	loads.Flags().StringVar(&opts.Status, "status", "", "only loads with this status (running|succeeded|failed)")
	loads.Flags().IntVar(&opts.Limit, "limit", 0, "only the most recent loads")

	load := &cobra.Command{
		Use:           "load <id>",
		Short:         "Show one load and its merges",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(st *store.Store) error {
				return runInspectLoad(opts, cmd, st, args[0])
			})
		},
	}

	records := &cobra.Command{
		Use:           "records <collection> [key]",
		Short:         "Show the latest journaled records, or the history of one key",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(st *store.Store) error {
				if len(args) == 2 {
					return runInspectHistory(opts, cmd, st, args[0], args[1])
				}
				return runInspectRecords(opts, cmd, st, args[0])
			})
		},
	}

	cmd.AddCommand(loads, load, records)
	return cmd
}

func withJournal(opts *InspectOptions, cmd *cobra.Command, fn func(*store.Store) error) error {
	if opts.Config.Database == "" {
		return NewExitError(ExitCommandError, "no database configured (use --db or set database in the config file)")
	}
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	return fn(st)
}

func runInspectLoads(opts *InspectOptions, cmd *cobra.Command, st *store.Store) error {
	filter := store.LoadFilter{
		Collection: opts.Collection,
		Status:     engine.LoadStatus(opts.Status),
		Limit:      opts.Limit,
	}
	loads, err := st.ReadLoads(commandContext(cmd), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read loads", err)
	}

	views := make([]LoadView, len(loads))
	for i, l := range loads {
		views[i] = toLoadView(l)
	}
	if opts.Format == "json" {
		return opts.formatter(cmd).encode(CLIResponse{Status: "ok", Data: views})
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No loads found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tCOLLECTION\tCONVENTION\tSTATUS\tRECORDS\tMERGES")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			v.Seq, v.ID, orDash(v.Collection), v.Convention, v.Status, v.Records, v.Merges)
	}
	return tw.Flush()
}

func runInspectLoad(opts *InspectOptions, cmd *cobra.Command, st *store.Store, id string) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	l, err := st.ReadLoad(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		if opts.Format == "json" {
			_ = f.Error(CodeNotFound, fmt.Sprintf("load %s not found", id), nil)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("load %s not found", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read load", err)
	}
	merges, err := st.ReadMerges(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read merges", err)
	}

	detail := LoadDetail{LoadView: toLoadView(l), MergeList: make([]MergeView, len(merges))}
	for i, m := range merges {
		detail.MergeList[i] = MergeView{Seq: m.Seq, Added: m.Added, Updated: m.Updated, Unchanged: m.Unchanged}
	}
	if opts.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: detail, LoadID: id})
	}
	writeLoadDetail(cmd.OutOrStdout(), detail)
	return nil
}

func runInspectRecords(opts *InspectOptions, cmd *cobra.Command, st *store.Store, collection string) error {
	set, err := st.ReadLatest(commandContext(cmd), collection)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}
	if opts.Format == "json" {
		return opts.formatter(cmd).encode(CLIResponse{Status: "ok", Data: set})
	}

	w := cmd.OutOrStdout()
	if len(set) == 0 {
		fmt.Fprintf(w, "No records journaled for %s.\n", collection)
		return nil
	}
	for _, key := range set.Keys() {
		fmt.Fprintf(w, "%s  %d bytes\n", key, len(set[key].Content))
	}
	return nil
}

func runInspectHistory(opts *InspectOptions, cmd *cobra.Command, st *store.Store, collection, key string) error {
	versions, err := st.ReadKeyHistory(commandContext(cmd), collection, key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read key history", err)
	}

	views := make([]VersionView, len(versions))
	for i, v := range versions {
		views[i] = VersionView{LoadID: v.LoadID, Hash: v.Hash, Record: v.Record}
	}
	if opts.Format == "json" {
		return opts.formatter(cmd).encode(CLIResponse{Status: "ok", Data: views})
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintf(w, "No history for %s in %s.\n", key, collection)
		return nil
	}
	for i, v := range views {
		fmt.Fprintf(w, "%d. %s  %s  %d bytes\n", i+1, v.LoadID, shortHash(v.Hash), len(v.Record.Content))
	}
	return nil
}

func toLoadView(l store.Load) LoadView {
	return LoadView{
		Seq:        l.Seq,
		ID:         l.ID,
		Collection: l.Collection,
		Loader:     l.Loader,
		Convention: l.Convention.String(),
		Targets:    l.Targets,
		Adhoc:      l.Adhoc,
		Status:     string(l.Status),
		Records:    l.Records,
		Merges:     l.Merges,
		Error:      l.Err,
		Started:    l.Started,
		Finished:   l.Finished,
	}
}

func writeLoadDetail(w io.Writer, d LoadDetail) {
	fmt.Fprintf(w, "Load:       %s\n", d.ID)
	fmt.Fprintf(w, "Collection: %s\n", orDash(d.Collection))
	fmt.Fprintf(w, "Loader:     %s (%s)\n", d.Loader, d.Convention)
	fmt.Fprintf(w, "Status:     %s\n", d.Status)
	if d.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", d.Error)
	}
	fmt.Fprintf(w, "Records:    %d\n", d.Records)
	fmt.Fprintf(w, "Started:    %s\n", d.Started.Format(time.RFC3339))
	if !d.Finished.IsZero() {
		fmt.Fprintf(w, "Duration:   %s\n", d.Finished.Sub(d.Started))
	}
	for _, m := range d.MergeList {
		fmt.Fprintf(w, "  merge %d: +%d ~%d =%d\n", m.Seq, m.Added, m.Updated, m.Unchanged)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
