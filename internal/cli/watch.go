package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/loaders"
	"github.com/roach88/loadkit/internal/record"
)

// watchLoader is the loader name the watch stage is registered under.
const watchLoader = "watch"

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Debounce    time.Duration
	SkipInitial bool
}

// WatchEvent is one batch of reloaded records.
type WatchEvent struct {
	Seq     int        `json:"seq"`
	LoadID  string     `json:"load_id,omitempty"`
	Records record.Set `json:"records"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <pattern>...",
		Short: "Stream records as matching files change",
		Long: `Load every file matching the patterns, then load each one again
whenever it is written or created, until interrupted.

Patterns use doublestar syntax: "**" matches any number of directories and
"{a,b}" matches either alternative. Directories created later under a "**"
pattern are picked up as they appear.

Examples:
  loadkit watch 'pages/*.html'
  loadkit watch 'pages/**/*.html'
  loadkit watch 'layouts/*.hbs' --debounce 250ms --skip-initial
  loadkit watch 'pages/*.html' --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd, args)
		},
	}

	def := loaders.DefaultWatchConfig()
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", def.Debounce, "quiet period before a changed file is reloaded")
	cmd.Flags().BoolVar(&opts.SkipInitial, "skip-initial", false, "only emit files that change after startup")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command, patterns []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := opts.openRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	stage := rt.Templates.Watch(loaders.WatchConfig{
		Debounce:    opts.Debounce,
		SkipInitial: opts.SkipInitial,
	})
	if err := rt.Engine.Loader(watchLoader, loader.Stream, stage); err != nil {
		return WrapExitError(ExitCommandError, "failed to register watch loader", err)
	}

	res := rt.Engine.LoadWith(ctx, watchLoader, patterns)
	if err := res.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to start watch", err)
	}

	f := opts.formatter(cmd)
	f.VerboseLog("watching %v (load %s)", patterns, res.LoadID())

	seq := 0
	err = res.Stream().Each(ctx, func(set record.Set) error {
		seq++
		ev := WatchEvent{Seq: seq, LoadID: res.LoadID(), Records: set}
		if opts.Format == "json" {
			return f.encode(CLIResponse{Status: "ok", Data: ev, LoadID: ev.LoadID})
		}
		w := cmd.OutOrStdout()
		for _, key := range set.Keys() {
			fmt.Fprintf(w, "[%d] %s  %d bytes\n", seq, key, len(set[key].Content))
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "watch failed", err)
	}
	return nil
}
