package cli

import (
	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/backends"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/backups"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/initcmd"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/run"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/status"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/version"
)

// NewRoot builds the c4h command tree
func NewRoot() *cobra.Command {
	opts := &common.Options{}

	cmd := &cobra.Command{
		Use:   "c4h",
		Short: "Intent-driven code refactoring",
		Long: `c4h turns a natural-language intent into file changes: it discovers the
project, asks an LLM backend for a solution, applies the edits with numbered
backups, and validates the result, iterating until the run succeeds or the
iteration budget is spent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	opts.BindFlags(cmd)

	cmd.AddCommand(run.NewCommand(opts))
	cmd.AddCommand(status.NewCommand(opts))
	cmd.AddCommand(backups.NewCommand(opts))
	cmd.AddCommand(backends.NewCommand(opts))
	cmd.AddCommand(initcmd.NewCommand(opts))
	cmd.AddCommand(version.NewCommand())

	markUsageErrors(cmd)
	return cmd
}

// markUsageErrors makes flag and argument errors of every command exit with
// the usage code.
func markUsageErrors(cmd *cobra.Command) {
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return common.UsageError(err)
	})
	if validate := cmd.Args; validate != nil {
		cmd.Args = func(c *cobra.Command, args []string) error {
			if err := validate(c, args); err != nil {
				return common.UsageError(err)
			}
			return nil
		}
	}
	for _, sub := range cmd.Commands() {
		markUsageErrors(sub)
	}
}
