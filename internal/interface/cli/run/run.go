package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/dto"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/metrics"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

type runFlags struct {
	intent        string
	maxIterations int
	metricsAddr   string
	jsonOutput    bool
}

// NewCommand creates the run command
func NewCommand(opts *common.Options) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [intent]",
		Short: "Run an intent against the project until validation passes",
		Long: `Run discovery, solution, edit and validate against the project, iterating
until the validate stage passes or the iteration limit is reached.

Exit status is 0 when the run succeeds, 1 when it fails, 2 on usage or
configuration errors and 130 when interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if flags.intent != "" {
					return common.UsageError(errors.New("intent given both as argument and --intent"))
				}
				flags.intent = args[0]
			}
			if strings.TrimSpace(flags.intent) == "" {
				return common.UsageError(errors.New("intent is required"))
			}
			if flags.maxIterations < 0 {
				return common.UsageError(fmt.Errorf("--max-iterations must be >= 1, got %d", flags.maxIterations))
			}
			return runIntent(cmd, opts, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.intent, "intent", "i", "", "intent describing the change to make")
	cmd.Flags().IntVarP(&flags.maxIterations, "max-iterations", "n", 0, "override max_iterations")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "print the result as JSON")
	return cmd
}

func runIntent(cmd *cobra.Command, opts *common.Options, flags *runFlags) error {
	ctx := cmd.Context()

	container, err := opts.InitializeContainer(cmd, flags.maxIterations)
	if err != nil {
		return err
	}
	defer container.Close()
	logger := container.GetLogger()

	addr := flags.metricsAddr
	if addr == "" {
		addr = container.GetConfig().Metrics.Addr
	}
	if addr != "" {
		stop, err := serveMetrics(ctx, addr, container.GetMetrics(), logger)
		if err != nil {
			return common.UsageError(err)
		}
		defer stop()
	}

	out, err := container.GetRunIntentUseCase().Execute(ctx, dto.RunIntentInput{
		ProjectPath:   container.GetPaths().Project,
		Intent:        flags.intent,
		MaxIterations: flags.maxIterations,
	})
	if err != nil {
		switch {
		case errors.Is(err, execution.ErrInvalidRun):
			return common.UsageError(err)
		case errors.Is(err, lock.ErrLockHeld):
			return common.Failed(fmt.Errorf("another run is in progress for this project: %w", err))
		default:
			return common.Failed(err)
		}
	}

	if flags.jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), out)
	}

	switch {
	case out.Succeeded():
		return nil
	case ctx.Err() != nil:
		return common.Interrupted(errors.New(out.Error))
	default:
		return common.Failed(errors.New(out.Error))
	}
}

// serveMetrics starts the metrics endpoint and returns a function that stops it
func serveMetrics(ctx context.Context, addr string, rec *metrics.Recorder, logger app.Logger) (func(), error) {
	srv, err := metrics.Listen(addr, rec, logger)
	if err != nil {
		return nil, err
	}
	srvCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx); err != nil {
			logger.Warn("metrics server: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func printSummary(w io.Writer, out *dto.RunIntentOutput) {
	fmt.Fprintf(w, "run %s %s after %d iteration(s)\n", out.RunID, common.Status(out.Status), out.Iterations)
	if out.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", out.Error)
	}
	for _, p := range out.Changed {
		fmt.Fprintf(w, "  changed: %s\n", p)
	}
	fmt.Fprintln(w, common.Dim(fmt.Sprintf("  elapsed: %dms", out.ElapsedMs)))
}

func printJSON(w io.Writer, out *dto.RunIntentOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
