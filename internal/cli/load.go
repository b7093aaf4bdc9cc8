package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Literal bool              // treat the two targets as key and content
	Locals  map[string]string // merged into every record's data
	Using   string            // convention override for this call
}

// LoadOutput is the data payload of a load.
type LoadOutput struct {
	Collection string     `json:"collection,omitempty"`
	Convention string     `json:"convention"`
	LoadID     string     `json:"load_id,omitempty"`
	Events     int        `json:"events,omitempty"`
	Records    record.Set `json:"records"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <accessor> [pattern...]",
		Short: "Load records through a collection accessor",
		Long: `Call a collection accessor (singular or plural name) and print the
records it loaded.

Patterns are glob patterns resolved against the base directory. A pattern
without glob characters names a single file, which must exist. With
--literal, the two arguments are a record key and its content.

Exit codes:
  0 - Load succeeded
  1 - Load failed
  2 - Command error (bad config, unknown convention, etc.)

Examples:
  loadkit load pages 'pages/*.html'
  loadkit load layout layouts/base.html --local site=docs
  loadkit load partial button '<button/>' --literal
  loadkit load includes 'includes/*' --using sync --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().BoolVar(&opts.Literal, "literal", false, "treat arguments as key and content")
	cmd.Flags().StringToStringVarP(&opts.Locals, "local", "l", nil, "local data as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Using, "using", "", "convention override (sync|callback|deferred|stream)")

	return cmd
}

func runLoad(opts *LoadOptions, cmd *cobra.Command, name string, targets []string) error {
	ctx := commandContext(cmd)

	callArgs, err := opts.callArgs(targets)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	rt, err := opts.openRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	conv := accessorConvention(rt.Engine, name)
	if opts.Using != "" {
		c, err := loader.ParseConvention(opts.Using)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --using", err)
		}
		conv = c
		callArgs = append(callArgs, engine.Using(c))
	}
	if conv == loader.Callback {
		callArgs = append(callArgs, func(error, record.Set) {})
	}

	f := opts.formatter(cmd)
	res := rt.Engine.Call(ctx, name, callArgs...)

	out := LoadOutput{
		Collection: res.Collection(),
		Convention: res.Convention().String(),
		LoadID:     res.LoadID(),
	}
	if res.Err() == nil && res.Convention() == loader.Stream {
		// Merges already happen per event; the events are only counted.
		_ = res.Stream().Each(ctx, func(set record.Set) error {
			out.Events++
			f.VerboseLog("event %d: %d record(s)", out.Events, len(set))
			return nil
		})
	}

	set, err := res.Wait(ctx)
	if err != nil {
		if opts.Format == "json" {
			_ = f.Error(loadErrorCode(err), err.Error(), out)
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("load %s failed", name), err)
	}
	out.Records = set
	if out.Records == nil {
		out.Records = record.Set{}
	}

	if opts.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: out, LoadID: out.LoadID})
	}
	writeLoadText(cmd.OutOrStdout(), out)
	return nil
}

// callArgs turns command-line targets into accessor arguments. Patterns
// travel as one []string so that two patterns are never read as a literal
// key and content.
func (o *LoadOptions) callArgs(targets []string) ([]any, error) {
	var args []any
	switch {
	case o.Literal:
		if len(targets) != 2 {
			return nil, fmt.Errorf("--literal takes exactly a key and its content, got %d argument(s)", len(targets))
		}
		args = []any{targets[0], targets[1]}
	case len(targets) > 0:
		args = []any{targets}
	}

	if len(o.Locals) > 0 {
		locals := make(record.Locals, len(o.Locals))
		for k, v := range o.Locals {
			locals[k] = v
		}
		args = append(args, locals)
	}
	return args, nil
}

// accessorConvention returns the convention of the collection behind an
// accessor name, or Sync if there is none.
func accessorConvention(e *engine.Engine, name string) loader.Convention {
	for _, c := range e.Collections() {
		if c.Plural() == name || c.Singular() == name {
			return c.Convention()
		}
	}
	return loader.Sync
}

func writeLoadText(w io.Writer, out LoadOutput) {
	fmt.Fprintf(w, "%s (%s) %s\n", out.Collection, out.Convention, out.LoadID)
	for _, key := range out.Records.Keys() {
		r := out.Records[key]
		fmt.Fprintf(w, "  %s  %d bytes", key, len(r.Content))
		if len(r.Data) > 0 {
			fmt.Fprintf(w, "  %d data key(s)", len(r.Data))
		}
		fmt.Fprintln(w)
	}
	if out.Events > 0 {
		fmt.Fprintf(w, "%d record(s) in %d event(s)\n", len(out.Records), out.Events)
		return
	}
	fmt.Fprintf(w, "%d record(s)\n", len(out.Records))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
