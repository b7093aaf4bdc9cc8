package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// CollectionInfo describes one configured collection.
type CollectionInfo struct {
	Singular   string `json:"singular"`
	Plural     string `json:"plural"`
	Convention string `json:"convention"`
	State      string `json:"state"`
}

// NewCollectionsCommand creates the collections command.
func NewCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List configured collections",
		Long: `List the collections the config defines, with the accessor names and
convention of each.

Examples:
  loadkit collections
  loadkit collections --config site.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollections(rootOpts, cmd)
		},
	}
}

func runCollections(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := opts.openRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	var infos []CollectionInfo
	for _, c := range rt.Engine.Collections() {
		infos = append(infos, CollectionInfo{
			Singular:   c.Singular(),
			Plural:     c.Plural(),
			Convention: c.Convention().String(),
			State:      c.State().String(),
		})
	}

	if opts.Format == "json" {
		if infos == nil {
			infos = []CollectionInfo{}
		}
		return opts.formatter(cmd).encode(CLIResponse{Status: "ok", Data: infos})
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLURAL\tSINGULAR\tCONVENTION")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Plural, info.Singular, info.Convention)
	}
	return tw.Flush()
}
