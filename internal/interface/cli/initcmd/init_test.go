package initcmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/infra/config"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/interface/cli/common"
)

func execute(t *testing.T, fs afero.Fs, project string, args ...string) string {
	t.Helper()
	cmd := newCommand(&common.Options{Project: project}, fs)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestInit_WritesConfigAndGitignore(t *testing.T) {
	t.Setenv("C4H_HOME", "")
	fs := afero.NewMemMapFs()

	out := execute(t, fs, "/proj")
	assert.Contains(t, out, "WROTE: /proj/.c4h/config.yaml")
	assert.Contains(t, out, "APPENDED")

	data, err := afero.ReadFile(fs, "/proj/.c4h/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, string(config.DefaultConfigYAML()), string(data))

	isDir, err := afero.IsDir(fs, "/proj/.c4h/var")
	require.NoError(t, err)
	assert.True(t, isDir)

	gi, err := afero.ReadFile(fs, "/proj/.gitignore")
	require.NoError(t, err)
	assert.Contains(t, string(gi), "/.c4h/var/")
	assert.Contains(t, string(gi), "/.c4h/*.db")
}

func TestInit_GeneratedConfigLoads(t *testing.T) {
	t.Setenv("C4H_HOME", "")
	fs := afero.NewMemMapFs()
	execute(t, fs, "/proj")

	cfg, err := config.LoadSettings(fs, "/proj/.c4h/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Source)
	assert.NotEmpty(t, cfg.Provider.Backends)
}

func TestInit_Idempotent(t *testing.T) {
	t.Setenv("C4H_HOME", "")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/.gitignore", []byte("node_modules"), 0o644))

	execute(t, fs, "/proj")
	require.NoError(t, afero.WriteFile(fs, "/proj/.c4h/config.yaml", []byte("max_iterations: 5\n"), 0o644))

	out := execute(t, fs, "/proj")
	assert.Contains(t, out, "SKIP: /proj/.c4h/config.yaml")
	assert.Contains(t, out, "SKIP: .gitignore")

	data, err := afero.ReadFile(fs, "/proj/.c4h/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "max_iterations: 5\n", string(data), "existing config is preserved")

	gi, err := afero.ReadFile(fs, "/proj/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "node_modules\n\n# >>> c4h\n/.c4h/var/\n/.c4h/*.db\n/.c4h/*.db-*\n# <<< c4h\n", string(gi))
}

func TestInit_Force(t *testing.T) {
	t.Setenv("C4H_HOME", "")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/proj/.c4h/config.yaml", []byte("old"), 0o644))

	out := execute(t, fs, "/proj", "--force")
	assert.Contains(t, out, "WROTE (force)")

	data, err := afero.ReadFile(fs, "/proj/.c4h/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, string(config.DefaultConfigYAML()), string(data))
}

func TestInit_ExternalHomeIsNotIgnored(t *testing.T) {
	t.Setenv("C4H_HOME", filepath.FromSlash("/elsewhere/c4h"))
	fs := afero.NewMemMapFs()

	out := execute(t, fs, "/proj")
	assert.Contains(t, out, "WROTE: /elsewhere/c4h/config.yaml")

	exists, err := afero.Exists(fs, "/proj/.gitignore")
	require.NoError(t, err)
	assert.False(t, exists)
}
