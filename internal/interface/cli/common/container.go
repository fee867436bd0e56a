package common

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/infrastructure/di"
)

// Options holds the persistent flags shared by every command
type Options struct {
	Project  string
	Config   string
	LogLevel string
}

// BindFlags registers the shared flags on the root command
func (o *Options) BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.Project, "project", "p", ".", "project root directory")
	flags.StringVar(&o.Config, "config", "", "config file (default <project>/.c4h/config.yaml)")
	flags.StringVar(&o.LogLevel, "log-level", "", "override log_level (debug, info, warn, error)")
}

// InitializeContainer creates the DI container for the selected project.
// A failure is a configuration problem and maps to the usage exit code.
func (o *Options) InitializeContainer(cmd *cobra.Command, maxIterations int) (*di.Container, error) {
	container, err := di.NewContainer(cmd.Context(), di.Config{
		ProjectPath:   o.Project,
		ConfigPath:    o.Config,
		LogLevel:      o.LogLevel,
		MaxIterations: maxIterations,
		LogWriter:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, UsageError(fmt.Errorf("failed to initialize: %w", err))
	}
	return container, nil
}
