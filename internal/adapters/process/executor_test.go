package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-ci/gantry/pkg/ports"
)

func TestExecutor_Execute(t *testing.T) {
	exe := NewExecutor()
	ctx := context.Background()

	t.Run("Captures Output On Success", func(t *testing.T) {
		res, err := exe.Execute(ctx, ports.Command{Line: "echo hello; echo oops >&2"})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Contains(t, res.Output, "hello")
		assert.Contains(t, res.Output, "oops", "stderr is captured alongside stdout")
	})

	t.Run("Reports Non-Zero Exit Without Error", func(t *testing.T) {
		res, err := exe.Execute(ctx, ports.Command{Line: "exit 3"})
		require.NoError(t, err, "a completed subprocess is a result, not an executor failure")
		assert.Equal(t, 3, res.ExitCode)
	})

	t.Run("Passes Exactly The Given Environment", func(t *testing.T) {
		t.Setenv("GANTRY_LEAK_CHECK", "leaked")

		res, err := exe.Execute(ctx, ports.Command{
			Line: "echo CI=$CI LEAK=$GANTRY_LEAK_CHECK",
			Env:  []string{"CI=true", "PATH=/usr/bin:/bin"},
		})
		require.NoError(t, err)
		assert.Contains(t, res.Output, "CI=true")
		assert.NotContains(t, res.Output, "leaked", "process env must not leak into stages")
	})

	t.Run("Runs In Working Directory", func(t *testing.T) {
		dir := t.TempDir()
		res, err := exe.Execute(ctx, ports.Command{Line: "pwd", Dir: dir, Env: []string{"PATH=/usr/bin:/bin"}})
		require.NoError(t, err)
		assert.Contains(t, res.Output, dir)
	})

	t.Run("Kills On Context Timeout", func(t *testing.T) {
		tctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := exe.Execute(tctx, ports.Command{Line: "sleep 10", Env: []string{"PATH=/usr/bin:/bin"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Less(t, time.Since(start), 5*time.Second, "subprocess must be killed, not awaited")
	})
}
