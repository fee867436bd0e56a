package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/execution"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

const (
	// DefaultPassWhen is the pass condition of a check without pass_when
	DefaultPassWhen = "exit_code == 0"

	defaultCheckTimeout = 5 * time.Minute
	maxCheckOutput      = 64 * 1024
)

type check struct {
	name     string
	command  []string
	timeout  time.Duration
	passWhen *vm.Program
	source   string
}

// Validate runs the configured check commands in the project directory
type Validate struct {
	checks []check
	logger app.Logger
}

// passEnv is the environment available to pass_when expressions
func passEnv(exitCode int, out string, changed []string) map[string]interface{} {
	return map[string]interface{}{
		"exit_code":     exitCode,
		"output":        out,
		"changed_files": changed,
	}
}

// NewValidate compiles every pass_when expression up front so a typo fails
// at startup rather than after the edits are applied
func NewValidate(cfg config.ValidateConfig, logger app.Logger) (*Validate, error) {
	if logger == nil {
		logger = app.NopLogger()
	}
	v := &Validate{logger: logger}
	for _, c := range cfg.Checks {
		if len(c.Command) == 0 {
			return nil, fmt.Errorf("check %s: command is empty", c.Name)
		}
		source := strings.TrimSpace(c.PassWhen)
		if source == "" {
			source = DefaultPassWhen
		}
		program, err := expr.Compile(source, expr.Env(passEnv(0, "", nil)), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("check %s: pass_when: %w", c.Name, err)
		}
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultCheckTimeout
		}
		v.checks = append(v.checks, check{
			name:     c.Name,
			command:  c.Command,
			timeout:  timeout,
			passWhen: program,
			source:   source,
		})
	}
	return v, nil
}

var _ output.ValidateExecutor = (*Validate)(nil)

// Execute runs every check. The outcome is Success whenever the checks ran;
// report.Passed says whether all of them passed.
func (v *Validate) Execute(ctx context.Context, in output.ValidateInput) outcome.Outcome[execution.ValidationReport] {
	if in.ProjectPath == "" {
		return outcome.Failure[execution.ValidationReport](outcome.InvalidInput, "project path is empty")
	}
	var changed []string
	for _, r := range in.Applied {
		if r.IsApplied() {
			changed = append(changed, r.Path)
		}
	}
	if len(changed) == 0 {
		return outcome.Failure[execution.ValidationReport](outcome.InvalidInput, "no applied changes to validate")
	}

	report := execution.ValidationReport{Passed: true, Checks: make([]execution.CheckResult, 0, len(v.checks))}
	if len(v.checks) == 0 {
		report.Diagnostics = "no checks configured"
		return outcome.Success(report)
	}

	var diag strings.Builder
	for _, c := range v.checks {
		if err := ctx.Err(); err != nil {
			return outcome.Failure[execution.ValidationReport](outcome.TransientFailure, fmt.Sprintf("validation cancelled: %v", err))
		}
		res, err := v.run(ctx, c, in.ProjectPath, changed)
		if err != nil {
			return outcome.Failure[execution.ValidationReport](outcome.InvalidInput, fmt.Sprintf("check %s could not start: %v", c.name, err))
		}
		if ctx.Err() != nil {
			return outcome.Failure[execution.ValidationReport](outcome.TransientFailure, fmt.Sprintf("validation cancelled during %s: %v", c.name, ctx.Err()))
		}
		report.Checks = append(report.Checks, res)
		if !res.Passed {
			report.Passed = false
			fmt.Fprintf(&diag, "== %s (exit %d) ==\n", res.Name, res.ExitCode)
			if res.Error != "" {
				fmt.Fprintf(&diag, "%s\n", res.Error)
			}
			if res.Output != "" {
				diag.WriteString(strings.TrimRight(res.Output, "\n"))
				diag.WriteString("\n")
			}
		}
		v.logger.Info("check %s: passed=%t exit=%d (%s)", res.Name, res.Passed, res.ExitCode, res.Duration.Round(time.Millisecond))
	}
	report.Diagnostics = strings.TrimRight(diag.String(), "\n")
	return outcome.Success(report)
}

// run executes one check. The error is set only when the command could not
// be started at all, so there is no exit status to judge.
func (v *Validate) run(ctx context.Context, c check, dir string, changed []string) (execution.CheckResult, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, c.command[0], c.command[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), "C4H_CHANGED_FILES="+strings.Join(changed, "\n"))

	start := time.Now()
	out, err := cmd.CombinedOutput()
	res := execution.CheckResult{
		Name:     c.name,
		Output:   truncate(string(out), maxCheckOutput),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.ExitCode = -1
		res.Error = fmt.Sprintf("timed out after %s", c.timeout)
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Error = err.Error()
		return res, nil
	default:
		return res, err
	}

	passed, err := expr.Run(c.passWhen, passEnv(res.ExitCode, res.Output, changed))
	if err != nil {
		res.Error = fmt.Sprintf("pass_when %q: %v", c.source, err)
		return res, nil
	}
	res.Passed, _ = passed.(bool)
	return res, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
