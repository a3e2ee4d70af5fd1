package terraform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cloudcity/internal/apperr"
	"github.com/yourusername/cloudcity/internal/logger"
)

func TestCommandExecutor(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		timeout time.Duration
		wantErr string
	}{
		{name: "success", command: []string{"sh", "-c", "touch applied"}},
		{name: "non-zero exit", command: []string{"sh", "-c", "echo boom >&2; exit 3"}, wantErr: "boom"},
		{name: "timeout", command: []string{"sleep", "5"}, timeout: 50 * time.Millisecond, wantErr: "apply timed out"},
		{name: "missing binary", command: []string{"cloudcity-no-such-binary"}, wantErr: "cloudcity-no-such-binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			err := NewCommandExecutor(tt.command, logger.Nop()).Apply(ctx, dir)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.FileExists(t, filepath.Join(dir, "applied"))
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrExecutor))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCommandExecutor_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { NewCommandExecutor(nil, logger.Nop()) })
}

func TestNoopExecutor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NoopExecutor{Logger: logger.Nop()}.Apply(context.Background(), dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(NoopExecutor{}.Apply(ctx, dir), apperr.ErrExecutor))
}
