package backups

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

// NewCommand creates the backups command group
func NewCommand(opts *common.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List and restore numbered file backups",
		Long: `Every file mutation first copies the file to <file>.bak_NNN. These commands
list the backups of one file and restore any of them.`,
	}
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newRestoreCmd(opts))
	return cmd
}

func newListCmd(opts *common.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list <file>",
		Short: "List the backups of a file, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := opts.InitializeContainer(cmd, 0)
			if err != nil {
				return err
			}
			defer container.Close()

			path := resolve(container.GetPaths().Project, args[0])
			records, err := container.GetMutator().Backups(path)
			if err != nil {
				return fmt.Errorf("failed to list backups of %s: %w", path, err)
			}

			w := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(w, "no backups of %s\n", path)
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					fmt.Sprintf("%03d", r.Number),
					filepath.Base(r.BackupPath),
					fmt.Sprintf("%d", r.Size),
					r.CreatedAt.Local().Format(time.DateTime),
				})
			}
			return common.RenderTable(w, []string{"NO", "BACKUP", "BYTES", "CREATED"}, rows)
		},
	}
}

func newRestoreCmd(opts *common.Options) *cobra.Command {
	var number int

	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a file from one of its backups (default: the latest)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := opts.InitializeContainer(cmd, 0)
			if err != nil {
				return err
			}
			defer container.Close()

			path := resolve(container.GetPaths().Project, args[0])
			rec, err := container.GetMutator().Restore(path, number)
			if err != nil {
				return common.Failed(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", path, filepath.Base(rec.BackupPath))
			return nil
		},
	}
	cmd.Flags().IntVarP(&number, "number", "n", -1, "backup number to restore (default latest)")
	return cmd
}

// resolve makes a relative file argument relative to the project root
func resolve(project, file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(project, file)
}
