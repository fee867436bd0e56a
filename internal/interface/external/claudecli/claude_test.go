package claudecli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClaude writes a shell script standing in for the claude binary
func fakeClaude(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRun_ParsesJSONResult(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"result","is_error":false,"result":"hello from claude","total_cost_usd":0.01}'`)

	resp, err := Runner{Bin: bin, Timeout: 5 * time.Second}.Run(context.Background(), "", "say hi")
	require.NoError(t, err)
	assert.Equal(t, "hello from claude", resp.Result)
	assert.InDelta(t, 0.01, resp.TotalCost, 1e-9)
}

func TestRun_PassesArguments(t *testing.T) {
	bin := fakeClaude(t, `printf '%s\n' "$@"`)

	resp, err := Runner{Bin: bin, Model: "opus"}.Run(context.Background(), "be brief", "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "raw", resp.Type)

	args := strings.Split(strings.TrimSpace(resp.Result), "\n")
	assert.Equal(t, []string{"-p", "--output-format", "json", "--model", "opus", "--append-system-prompt", "be brief", "the prompt"}, args)
}

func TestRun_ErrorResponse(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"result","is_error":true,"result":"credit balance too low"}'`)

	_, err := Runner{Bin: bin}.Run(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit balance too low")
}

func TestRun_NonZeroExit(t *testing.T) {
	bin := fakeClaude(t, `echo "not logged in" >&2; exit 3`)

	_, err := Runner{Bin: bin}.Run(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestRun_Timeout(t *testing.T) {
	bin := fakeClaude(t, `exec sleep 5`)

	start := time.Now()
	_, err := Runner{Bin: bin, Timeout: 50 * time.Millisecond}.Run(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestAvailable(t *testing.T) {
	assert.ErrorIs(t, Runner{Bin: "definitely-not-a-real-claude-binary"}.Available(), ErrNotInstalled)

	bin := fakeClaude(t, `true`)
	assert.NoError(t, Runner{Bin: bin}.Available())
}
