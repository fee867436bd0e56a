package initcmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/persistence/file"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

const (
	gitignoreBegin = "# >>> c4h"
	gitignoreEnd   = "# <<< c4h"
)

// NewCommand creates the init command
func NewCommand(opts *common.Options) *cobra.Command {
	return newCommand(opts, afero.NewOsFs())
}

func newCommand(opts *common.Options, fs afero.Fs) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .c4h/config.yaml in the project",
		Long: `Initialize the project for c4h: write a starter config.yaml under the c4h
home directory (.c4h unless C4H_HOME is set), create var/, and keep var/ and
the state database out of git.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := app.ResolvePaths(opts.Project, nil)
			if opts.Config != "" {
				paths.Config = opts.Config
			}
			w := cmd.OutOrStdout()

			if err := fs.MkdirAll(paths.Var, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", paths.Var, err)
			}

			exists, err := afero.Exists(fs, paths.Config)
			if err != nil {
				return err
			}
			switch {
			case exists && !force:
				fmt.Fprintf(w, "SKIP: %s (exists; use --force to overwrite)\n", paths.Config)
			default:
				if err := file.WriteFileAtomic(fs, paths.Config, config.DefaultConfigYAML(), file.DefaultPerm); err != nil {
					return fmt.Errorf("failed to write %s: %w", paths.Config, err)
				}
				action := "WROTE"
				if exists {
					action = "WROTE (force)"
				}
				fmt.Fprintf(w, "%s: %s\n", action, paths.Config)
			}

			if err := updateGitignore(fs, paths, w); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not update .gitignore: %v\n", err)
			}

			fmt.Fprintf(w, "Initialized c4h in %s\n", paths.Home)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config.yaml")
	return cmd
}

// updateGitignore appends the c4h block once. Only a home inside the project
// is ignored.
func updateGitignore(fs afero.Fs, paths app.Paths, w io.Writer) error {
	rel, err := filepath.Rel(paths.Project, paths.Home)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)

	gitignorePath := filepath.Join(paths.Project, ".gitignore")
	existing, err := afero.ReadFile(fs, gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}

	content := string(existing)
	if strings.Contains(content, gitignoreBegin) {
		fmt.Fprintln(w, "SKIP: .gitignore c4h block already present")
		return nil
	}

	var b strings.Builder
	b.WriteString(content)
	if len(content) > 0 {
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\n/%s/var/\n/%s/*.db\n/%s/*.db-*\n%s\n", gitignoreBegin, rel, rel, rel, gitignoreEnd)

	if err := file.WriteFileAtomic(fs, gitignorePath, []byte(b.String()), file.DefaultPerm); err != nil {
		return err
	}
	fmt.Fprintln(w, "APPENDED: .gitignore c4h block")
	return nil
}
