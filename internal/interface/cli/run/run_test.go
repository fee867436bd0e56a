package run

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/infrastructure/di"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

const offlineConfig = `provider:
  max_attempts: 1
  backends:
    - name: offline
      type: mock
`

const unavailableConfig = `provider:
  max_attempts: 1
  backends:
    - name: claude
      type: anthropic
      model: claude-sonnet-4-5
      api_key_env: C4H_TEST_NO_SUCH_KEY
`

func setupProject(t *testing.T, config string) string {
	t.Helper()
	t.Setenv("C4H_HOME", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('hi')\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".c4h"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".c4h", "config.yaml"), []byte(config), 0o644))
	return dir
}

func execute(t *testing.T, project string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand(&common.Options{Project: project})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRun_Succeeds(t *testing.T) {
	project := setupProject(t, offlineConfig)

	out, err := execute(t, project, "add logging")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded after 1 iteration(s)")
}

func TestRun_JSONOutput(t *testing.T) {
	project := setupProject(t, offlineConfig)

	out, err := execute(t, project, "--intent", "add logging", "--json")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "succeeded", result["status"])
	assert.NotEmpty(t, result["run_id"])
}

func TestRun_FailedRunExitsOne(t *testing.T) {
	project := setupProject(t, unavailableConfig)

	out, err := execute(t, project, "add logging")
	require.Error(t, err)
	assert.Equal(t, common.ExitFailed, common.ExitCode(err))
	assert.Contains(t, out, "failed")
	assert.Contains(t, err.Error(), "C4H_TEST_NO_SUCH_KEY")
}

func TestRun_UsageErrors(t *testing.T) {
	project := setupProject(t, offlineConfig)

	tests := []struct {
		name string
		args []string
	}{
		{"missing intent", nil},
		{"blank intent", []string{"   "}},
		{"intent twice", []string{"a", "--intent", "b"}},
		{"negative iterations", []string{"x", "--max-iterations", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, project, tt.args...)
			require.Error(t, err)
			assert.Equal(t, common.ExitUsage, common.ExitCode(err))
		})
	}
}

func TestRun_InvalidConfigIsUsageError(t *testing.T) {
	project := setupProject(t, "max_iterations: 0\n")

	_, err := execute(t, project, "add logging")
	require.Error(t, err)
	assert.Equal(t, common.ExitUsage, common.ExitCode(err))
}

func TestRun_RefusesWhileLocked(t *testing.T) {
	project := setupProject(t, offlineConfig)
	ctx := context.Background()

	holder, err := di.NewContainer(ctx, di.Config{ProjectPath: project, LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)
	defer holder.Close()

	lockID, err := lock.NewLockID(holder.GetPaths().Project)
	require.NoError(t, err)
	_, err = holder.GetLockService().AcquireRunLock(ctx, lockID, "other-run")
	require.NoError(t, err)
	defer holder.GetLockService().ReleaseRunLock(ctx, lockID, "other-run")

	_, err = execute(t, project, "add logging")
	require.Error(t, err)
	assert.Equal(t, common.ExitFailed, common.ExitCode(err))
	assert.ErrorIs(t, err, lock.ErrLockHeld)
}

func TestRun_ServesMetrics(t *testing.T) {
	project := setupProject(t, offlineConfig)

	out, err := execute(t, project, "add logging", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
}
