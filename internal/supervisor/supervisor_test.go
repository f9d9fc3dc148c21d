//go:build !windows

package supervisor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookworks/hookrun/config"
	"github.com/hookworks/hookrun/internal/supervisor"
	"github.com/hookworks/hookrun/options"
	"github.com/hookworks/hookrun/pkg/log"
)

func testOptions(t *testing.T) *options.RunOptions {
	t.Helper()

	return &options.RunOptions{
		Logger:      log.Discard(),
		ProjectRoot: t.TempDir(),
	}
}

func testConfig(t *testing.T, command string) *config.ResolvedHookConfig {
	t.Helper()

	return &config.ResolvedHookConfig{
		PluginName: "p",
		PluginRoot: t.TempDir(),
		HookName:   "lint",
		Directory:  t.TempDir(),
		Command:    command,
		Enabled:    true,
	}
}

func duration(d time.Duration) *time.Duration {
	return &d
}

func TestRunSuccess(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	result := sup.Run(context.Background(), "p/lint@x", testConfig(t, "echo hello"), "checkpoint")

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
	assert.False(t, result.IdleTimedOut)
	require.Len(t, result.Output, 1)
	assert.Equal(t, supervisor.SourceStdout, result.Output[0].Source)
	assert.Equal(t, "hello", result.Output[0].Text)
}

func TestRunFailureExitCode(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	result := sup.Run(context.Background(), "p/lint@x", testConfig(t, "echo oops >&2; exit 3"), "checkpoint")

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	require.Len(t, result.Output, 1)
	assert.Equal(t, supervisor.SourceStderr, result.Output[0].Source)
	assert.Equal(t, "oops", result.Output[0].Text)
}

func TestRunCapturesBothStreams(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	result := sup.Run(context.Background(), "p/lint@x", testConfig(t, "echo out; echo err >&2"), "checkpoint")

	require.True(t, result.Success)
	assert.Len(t, result.Output, 2)

	sources := map[supervisor.Source]string{}
	for _, line := range result.Output {
		sources[line.Source] = line.Text
	}

	assert.Equal(t, "out", sources[supervisor.SourceStdout])
	assert.Equal(t, "err", sources[supervisor.SourceStderr])
}

func TestRunOverallTimeout(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	cfg := testConfig(t, "sleep 10")
	cfg.Timeout = duration(200 * time.Millisecond)

	start := time.Now()
	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	assert.False(t, result.Success)
	assert.True(t, result.TimedOut)
	assert.False(t, result.IdleTimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunIdleTimeout(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	// The command produces output and then goes silent. The idle window
	// fires even though the command would eventually exit 0.
	cfg := testConfig(t, "echo working; sleep 10; echo done")
	cfg.IdleTimeout = duration(300 * time.Millisecond)

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	assert.False(t, result.Success)
	assert.True(t, result.IdleTimedOut)
	assert.False(t, result.TimedOut)
}

func TestRunIdleTimerResetsOnOutput(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	// Each line arrives well within the idle window; the hook finishes even
	// though its total runtime exceeds the window.
	cfg := testConfig(t, "for i in 1 2 3 4 5 6; do echo tick; sleep 0.1; done")
	cfg.IdleTimeout = duration(400 * time.Millisecond)

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	assert.True(t, result.Success)
	assert.False(t, result.IdleTimedOut)
	assert.Len(t, result.Output, 6)
}

func TestRunIdleTimerResetsWithoutNewlines(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	// Progress output with no newline at all still counts as activity:
	// the idle window resets per byte received, not per complete line.
	cfg := testConfig(t, "i=0; while [ $i -lt 12 ]; do printf .; sleep 0.1; i=$((i+1)); done; echo")
	cfg.IdleTimeout = duration(500 * time.Millisecond)

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	assert.True(t, result.Success)
	assert.False(t, result.IdleTimedOut)
	require.Len(t, result.Output, 1)
	assert.Equal(t, "............", result.Output[0].Text)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	result := sup.Run(ctx, "p/lint@x", testConfig(t, "sleep 10"), "checkpoint")

	assert.False(t, result.Success)
	assert.True(t, result.Canceled)
	assert.False(t, result.TimedOut)
}

func TestRunSpawnFailure(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	cfg := testConfig(t, "echo hi")
	cfg.Directory = "/nonexistent/definitely/not/here"

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	require.NotEmpty(t, result.Output)
	assert.Equal(t, supervisor.SourceSystem, result.Output[0].Source)
	assert.Contains(t, result.Output[0].Text, "failed to start")
}

func TestRunPluginRootSubstitution(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	cfg := testConfig(t, "echo ${HOOKRUN_PLUGIN_ROOT}")

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	require.True(t, result.Success)
	require.Len(t, result.Output, 1)
	assert.Equal(t, cfg.PluginRoot, result.Output[0].Text)
}

func TestRunEnvironmentContract(t *testing.T) {
	t.Parallel()

	opts := testOptions(t)
	opts.SessionID = "sess-1"
	opts.AgentID = "agent-1"
	opts.CheckpointType = "manual"
	opts.CheckpointID = "ckpt-9"

	sup := supervisor.New(log.Discard(), opts, nil)

	cfg := testConfig(t, `echo "$HOOKRUN_PROJECT_ROOT|$HOOKRUN_EVENT|$HOOKRUN_SESSION_ID|$HOOKRUN_AGENT_ID|$HOOKRUN_CHECKPOINT_TYPE|$HOOKRUN_CHECKPOINT_ID"`)

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	require.True(t, result.Success)
	require.Len(t, result.Output, 1)
	assert.Equal(t, opts.ProjectRoot+"|checkpoint|sess-1|agent-1|manual|ckpt-9", result.Output[0].Text)
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Line(instanceKey string, line supervisor.OutputLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = append(s.lines, instanceKey+": "+line.Text)
}

func TestRunStreamsToSink(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	sup := supervisor.New(log.Discard(), testOptions(t), sink)

	result := sup.Run(context.Background(), "p/lint@x", testConfig(t, "echo one; echo two"), "checkpoint")

	require.True(t, result.Success)
	assert.Equal(t, []string{"p/lint@x: one", "p/lint@x: two"}, sink.lines)
}

func TestRunManyLinesDoesNotStall(t *testing.T) {
	t.Parallel()

	sup := supervisor.New(log.Discard(), testOptions(t), nil)

	// Far more lines than the internal channel buffers.
	cfg := testConfig(t, "i=0; while [ $i -lt 2000 ]; do echo line $i; i=$((i+1)); done")
	cfg.Timeout = duration(20 * time.Second)

	result := sup.Run(context.Background(), "p/lint@x", cfg, "checkpoint")

	require.True(t, result.Success)
	assert.Len(t, result.Output, 2000)
}
