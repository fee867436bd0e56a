package common

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", base, ExitFailed},
		{"usage", UsageError(base), ExitUsage},
		{"failed", Failed(base), ExitFailed},
		{"interrupted", Interrupted(base), ExitInterrupted},
		{"wrapped usage", fmt.Errorf("outer: %w", UsageError(base)), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := UsageError(base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "exit status 130", (&ExitError{Code: ExitInterrupted}).Error())
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, []string{"RUN", "STATUS"}, [][]string{
		{"01ABC", Status("succeeded")},
		{"01DEF", Status("failed")},
	}))

	out := buf.String()
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "01ABC")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "failed")
}
