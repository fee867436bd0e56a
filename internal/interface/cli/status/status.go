package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/health"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/dto"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infrastructure/di"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

type flags struct {
	json     bool
	limit    int
	journal  bool
	locks    bool
	archived bool
}

// NewCommand creates the status command
func NewCommand(opts *common.Options) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show persisted workflow runs",
		Long: `Without arguments, list the most recent runs of the project together with
the last health summary and the current holder of the project run lock.
With a run ID, show that run's stage history.

--locks lists every run lock known to the state backend.
--archived adds the run's archived artifacts and falls back to the newest
archived snapshot when the run is no longer in the state backend.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.locks && len(args) == 1 {
				return common.UsageError(errors.New("--locks does not take a run ID"))
			}
			if f.archived && len(args) == 0 {
				return common.UsageError(errors.New("--archived requires a run ID"))
			}

			container, err := opts.InitializeContainer(cmd, 0)
			if err != nil {
				return err
			}
			defer container.Close()

			w := cmd.OutOrStdout()
			switch {
			case f.locks:
				return listLocks(cmd.Context(), container, w, f.json)
			case len(args) == 1:
				return showRun(cmd, container, execution.RunID(args[0]), f)
			default:
				return listRuns(cmd, container, w, f.limit, f.json)
			}
		},
	}

	cmd.Flags().BoolVar(&f.json, "json", false, "print as JSON")
	cmd.Flags().IntVar(&f.limit, "limit", 10, "number of runs to list")
	cmd.Flags().BoolVar(&f.journal, "journal", false, "include journal entries of the run")
	cmd.Flags().BoolVar(&f.locks, "locks", false, "list every run lock instead of runs")
	cmd.Flags().BoolVar(&f.archived, "archived", false, "include archived artifacts of the run")
	return cmd
}

func listRuns(cmd *cobra.Command, c *di.Container, w io.Writer, limit int, jsonOutput bool) error {
	states, err := c.GetStateRepository().FindRecent(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	h, err := health.Read(c.GetFS(), c.GetPaths().Health)
	if err != nil {
		c.GetLogger().Warn("failed to read health: %v", err)
	}
	held := projectLock(cmd.Context(), c)

	runs := make([]dto.RunSummaryDTO, 0, len(states))
	for _, s := range states {
		runs = append(runs, dto.NewRunSummaryDTO(s))
	}

	if jsonOutput {
		return writeJSON(w, struct {
			Health *health.Health      `json:"health,omitempty"`
			Lock   *dto.RunLockDTO     `json:"lock,omitempty"`
			Runs   []dto.RunSummaryDTO `json:"runs"`
		}{h, held, runs})
	}

	if h != nil {
		fmt.Fprintf(w, "last run %s: %s at %s (iteration %d, step %s)\n",
			h.RunID, common.Status(okText(h.Ok)), h.Ts, h.Turn, h.Step)
	}
	if held != nil {
		fmt.Fprintf(w, "lock held by run %s (pid %d on %s) %s\n",
			held.RunID, held.PID, held.Hostname, expiryText(held))
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID,
			common.Status(r.Status),
			fmt.Sprintf("%d", r.Iteration),
			r.UpdatedAt.Local().Format(time.DateTime),
			truncate(r.Intent, 40),
			truncate(r.Error, 50),
		})
	}
	return common.RenderTable(w, []string{"RUN", "STATUS", "ITER", "UPDATED", "INTENT", "ERROR"}, rows)
}

// projectLock returns the lock on the current project, nil when free
func projectLock(ctx context.Context, c *di.Container) *dto.RunLockDTO {
	id, err := lock.NewLockID(c.GetPaths().Project)
	if err != nil {
		c.GetLogger().Warn("failed to derive lock id: %v", err)
		return nil
	}
	l, err := c.GetLockService().FindRunLock(ctx, id)
	if err != nil {
		if !errors.Is(err, lock.ErrLockNotFound) {
			c.GetLogger().Warn("failed to read run lock: %v", err)
		}
		return nil
	}
	d := dto.NewRunLockDTO(l)
	return &d
}

func listLocks(ctx context.Context, c *di.Container, w io.Writer, jsonOutput bool) error {
	locks, err := c.GetLockService().ListRunLocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list run locks: %w", err)
	}
	list := make([]dto.RunLockDTO, 0, len(locks))
	for _, l := range locks {
		list = append(list, dto.NewRunLockDTO(l))
	}

	if jsonOutput {
		return writeJSON(w, struct {
			Locks []dto.RunLockDTO `json:"locks"`
		}{list})
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no run locks held")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, l := range list {
		rows = append(rows, []string{
			truncate(l.LockID, 16),
			l.RunID,
			fmt.Sprintf("%d", l.PID),
			l.Hostname,
			l.ExpiresAt.Local().Format(time.DateTime),
			common.Status(lockState(l)),
		})
	}
	return common.RenderTable(w, []string{"LOCK", "RUN", "PID", "HOST", "EXPIRES", "STATE"}, rows)
}

func showRun(cmd *cobra.Command, c *di.Container, id execution.RunID, f flags) error {
	ctx := cmd.Context()

	var archive output.StorageGateway
	if f.archived {
		archive = c.GetStorageGateway()
		if archive == nil {
			return common.UsageError(errors.New("archive is disabled; set archive.type to local or s3"))
		}
	}

	state, err := c.GetStateRepository().FindByID(ctx, id)
	switch {
	case execution.IsNotFound(err):
		state = nil
	case err != nil:
		return err
	}

	var artifacts []*output.ArtifactMetadata
	if archive != nil {
		artifacts, err = archive.ListArtifacts(ctx, id.String())
		if err != nil {
			return fmt.Errorf("failed to list archived artifacts: %w", err)
		}
		if state == nil {
			state, err = loadArchivedState(ctx, archive, artifacts)
			if err != nil {
				return err
			}
		}
	}
	if state == nil {
		return common.Failed(fmt.Errorf("run %s not found", id))
	}
	detail := dto.NewRunDetailDTO(state)

	var entries []output.JournalEntry
	if f.journal {
		entries, err = app.ReadJournal(c.GetPaths().Journal, id.String())
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
	}

	archived := make([]dto.ArtifactDTO, 0, len(artifacts))
	for _, a := range artifacts {
		archived = append(archived, dto.NewArtifactDTO(a))
	}

	w := cmd.OutOrStdout()
	if f.json {
		return writeJSON(w, struct {
			dto.RunDetailDTO
			Journal []output.JournalEntry `json:"journal,omitempty"`
			Archive []dto.ArtifactDTO     `json:"archive,omitempty"`
		}{detail, entries, archived})
	}

	fmt.Fprintf(w, "run:        %s\n", detail.RunID)
	fmt.Fprintf(w, "project:    %s\n", detail.ProjectPath)
	fmt.Fprintf(w, "intent:     %s\n", detail.Intent)
	fmt.Fprintf(w, "status:     %s\n", common.Status(detail.Status))
	fmt.Fprintf(w, "iterations: %d/%d\n", detail.Iteration, detail.MaxIterations)
	if detail.Error != "" {
		fmt.Fprintf(w, "error:      %s\n", detail.Error)
	}

	rows := make([][]string, 0, len(detail.Stages))
	for _, st := range detail.Stages {
		if st.Status == execution.StagePending.String() {
			continue
		}
		rows = append(rows, []string{fmt.Sprintf("%d", st.Iteration), st.Stage, common.Status(st.Status), truncate(st.Error, 60)})
	}
	if err := common.RenderTable(w, []string{"ITER", "STAGE", "STATUS", "ERROR"}, rows); err != nil {
		return err
	}

	if f.journal {
		jrows := make([][]string, 0, len(entries))
		for _, e := range entries {
			jrows = append(jrows, []string{
				e.Ts.Local().Format(time.TimeOnly),
				fmt.Sprintf("%d", e.Turn),
				e.Step,
				common.Status(e.Decision),
				fmt.Sprintf("%dms", e.ElapsedMs),
			})
		}
		if err := common.RenderTable(w, []string{"TIME", "TURN", "STEP", "DECISION", "ELAPSED"}, jrows); err != nil {
			return err
		}
	}

	if f.archived {
		if len(archived) == 0 {
			fmt.Fprintln(w, "no archived artifacts")
			return nil
		}
		arows := make([][]string, 0, len(archived))
		for _, a := range archived {
			arows = append(arows, []string{
				a.Type,
				fmt.Sprintf("%d", a.Size),
				a.UploadedAt.Local().Format(time.DateTime),
				a.StoragePath,
			})
		}
		return common.RenderTable(w, []string{"TYPE", "SIZE", "UPLOADED", "LOCATION"}, arows)
	}
	return nil
}

// loadArchivedState decodes the newest state snapshot among artifacts.
// It returns nil when none was archived.
func loadArchivedState(ctx context.Context, archive output.StorageGateway, artifacts []*output.ArtifactMetadata) (*execution.WorkflowState, error) {
	var newest *output.ArtifactMetadata
	for _, a := range artifacts {
		if a.Type != output.ArtifactTypeState {
			continue
		}
		if newest == nil || a.UploadedAt.After(newest.UploadedAt) {
			newest = a
		}
	}
	if newest == nil {
		return nil, nil
	}

	artifact, err := archive.LoadArtifact(ctx, newest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived state: %w", err)
	}
	var state execution.WorkflowState
	if err := json.Unmarshal(artifact.Content, &state); err != nil {
		return nil, fmt.Errorf("failed to decode archived state %s: %w", newest.ID, err)
	}
	return &state, nil
}

func lockState(l dto.RunLockDTO) string {
	if l.Expired {
		return "expired"
	}
	return "held"
}

func expiryText(l *dto.RunLockDTO) string {
	if l.Expired {
		return fmt.Sprintf("expired at %s", l.ExpiresAt.Local().Format(time.DateTime))
	}
	return fmt.Sprintf("until %s", l.ExpiresAt.Local().Format(time.DateTime))
}

func okText(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
