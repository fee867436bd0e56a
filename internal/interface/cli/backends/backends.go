package backends

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

// NewCommand creates the backends command
func NewCommand(opts *common.Options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Show configured model backends and whether each is usable",
		Long: `Check each configured backend for its credential or binary without sending
any request to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := opts.InitializeContainer(cmd, 0)
			if err != nil {
				return err
			}
			defer container.Close()

			statuses := container.DescribeBackends()
			w := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			if len(statuses) == 0 {
				_, err := w.Write([]byte("no backends configured; add provider.backends to " + container.GetPaths().Config + "\n"))
				return err
			}
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "available"
				if !s.Available {
					state = "unavailable"
				}
				rows = append(rows, []string{s.Name, s.Type, s.Model, common.Status(state), s.Reason})
			}
			return common.RenderTable(w, []string{"NAME", "TYPE", "MODEL", "STATE", "REASON"}, rows)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print as JSON")
	return cmd
}
