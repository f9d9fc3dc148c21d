// Package supervisor runs one resolved hook instance as a subprocess under
// two independent deadlines: an overall timeout that fires regardless of
// activity, and an optional idle timeout that resets on every byte of
// output received.
package supervisor

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hookworks/hookrun/config"
	"github.com/hookworks/hookrun/options"
	"github.com/hookworks/hookrun/pkg/log"
)

// DefaultTimeout is the overall deadline applied when the resolved config
// does not override it.
const DefaultTimeout = 30 * time.Second

const lineBufferSize = 256

// Environment variables injected into every supervised subprocess.
const (
	PluginRootEnvName  = "HOOKRUN_PLUGIN_ROOT"
	ProjectRootEnvName = "HOOKRUN_PROJECT_ROOT"
	EventEnvName       = "HOOKRUN_EVENT"
	SessionIDEnvName   = "HOOKRUN_SESSION_ID"
	AgentIDEnvName     = "HOOKRUN_AGENT_ID"
)

// Source tags an output line with the stream it came from.
type Source string

const (
	// SourceStdout marks a line read from the subprocess stdout.
	SourceStdout Source = "stdout"

	// SourceStderr marks a line read from the subprocess stderr.
	SourceStderr Source = "stderr"

	// SourceSystem marks a line produced by the supervisor itself, such as
	// a spawn failure or a timeout notice.
	SourceSystem Source = "system"
)

// OutputLine is one captured line of subprocess output.
type OutputLine struct {
	Source Source
	Text   string
}

// Result is the terminal outcome of running one hook instance. Immutable
// once produced.
type Result struct {
	Config *config.ResolvedHookConfig

	Output   []OutputLine
	Duration time.Duration
	ExitCode int

	// Success is true iff the process exited 0 and no deadline fired.
	Success bool

	// TimedOut reports the overall deadline firing.
	TimedOut bool

	// IdleTimedOut reports the idle window elapsing with no output.
	IdleTimedOut bool

	// Canceled reports an external interrupt, not a per-instance deadline.
	Canceled bool
}

// Sink receives live output lines while the subprocess runs. Implementations
// must be safe for concurrent use; the engine streams from every instance of
// a phase at once.
type Sink interface {
	Line(instanceKey string, line OutputLine)
}

// Supervisor executes hook instances.
type Supervisor struct {
	logger log.Logger
	opts   *options.RunOptions
	sink   Sink
}

// New returns a Supervisor. The sink may be nil when live output is off.
func New(logger log.Logger, opts *options.RunOptions, sink Sink) *Supervisor {
	return &Supervisor{logger: logger, opts: opts, sink: sink}
}

// Run executes the instance and always returns a Result; failures to even
// spawn the process are reported as output text, never as an error, so the
// aggregate report has a readable reason for every instance.
func (s *Supervisor) Run(ctx context.Context, instanceKey string, cfg *config.ResolvedHookConfig, event string) *Result {
	start := time.Now()
	result := &Result{Config: cfg, ExitCode: -1}

	command := strings.ReplaceAll(cfg.Command, "${"+PluginRootEnvName+"}", cfg.PluginRoot)

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = cfg.Directory
	cmd.Env = s.subprocessEnv(cfg, event)
	configureProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailure(result, start, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailure(result, start, err)
	}

	if err := cmd.Start(); err != nil {
		return s.spawnFailure(result, start, err)
	}

	s.logger.Debugf("Started %s: %s", instanceKey, command)

	lines := make(chan OutputLine, lineBufferSize)
	activity := make(chan struct{}, 1)

	var readers sync.WaitGroup

	readers.Add(2)

	go readLines(&readers, watchActivity(stdout, activity), SourceStdout, lines)
	go readLines(&readers, watchActivity(stderr, activity), SourceStderr, lines)

	done := make(chan error, 1)

	go func() {
		readers.Wait()
		close(lines)

		done <- cmd.Wait()
	}()

	waitErr := s.supervise(ctx, instanceKey, cfg, cmd, lines, activity, done, result)

	result.Duration = time.Since(start)

	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if waitErr == nil {
		result.ExitCode = 0
	}

	result.Success = waitErr == nil && !result.TimedOut && !result.IdleTimedOut && !result.Canceled

	return result
}

// supervise is the single aggregator for one instance: it captures and
// forwards output lines, arms both deadline timers, and kills the process
// group when one fires. Returns the subprocess wait error.
func (s *Supervisor) supervise(
	ctx context.Context,
	instanceKey string,
	cfg *config.ResolvedHookConfig,
	cmd *exec.Cmd,
	lines chan OutputLine,
	activity chan struct{},
	done chan error,
	result *Result,
) error {
	overall := DefaultTimeout
	if cfg.Timeout != nil {
		overall = *cfg.Timeout
	}

	overallTimer := time.NewTimer(overall)
	defer overallTimer.Stop()

	var idleC <-chan time.Time

	var idleTimer *time.Timer

	if cfg.IdleTimeout != nil {
		idleTimer = time.NewTimer(*cfg.IdleTimeout)
		defer idleTimer.Stop()

		idleC = idleTimer.C
	}

	consume := func(line OutputLine) {
		result.Output = append(result.Output, line)

		if s.sink != nil {
			s.sink.Line(instanceKey, line)
		}
	}

	// The idle window resets on every byte the readers pull off the pipes,
	// not on complete lines: a process emitting progress output without
	// newlines is not idle.
	resetIdle := func() {
		if idleTimer == nil || result.IdleTimedOut {
			return
		}

		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}

		idleTimer.Reset(*cfg.IdleTimeout)
	}

	open := lines
	ctxDone := ctx.Done()

	for {
		select {
		case line, ok := <-open:
			if !ok {
				open = nil
				continue
			}

			consume(line)

		case <-activity:
			resetIdle()

		case <-overallTimer.C:
			result.TimedOut = true
			result.Output = append(result.Output, OutputLine{
				Source: SourceSystem,
				Text:   "killed: exceeded overall timeout of " + overall.String(),
			})

			killProcessGroup(cmd)

		case <-idleC:
			result.IdleTimedOut = true
			result.Output = append(result.Output, OutputLine{
				Source: SourceSystem,
				Text:   "killed: no output within idle timeout of " + cfg.IdleTimeout.String(),
			})

			idleC = nil

			killProcessGroup(cmd)

		case <-ctxDone:
			result.Canceled = true
			result.Output = append(result.Output, OutputLine{
				Source: SourceSystem,
				Text:   "killed: run interrupted",
			})

			ctxDone = nil

			killProcessGroup(cmd)

		case waitErr := <-done:
			// The line channel is closed before done is signaled; drain
			// whatever is still buffered.
			for line := range lines {
				consume(line)
			}

			return waitErr
		}
	}
}

func (s *Supervisor) spawnFailure(result *Result, start time.Time, err error) *Result {
	result.Duration = time.Since(start)
	result.Output = append(result.Output, OutputLine{
		Source: SourceSystem,
		Text:   "failed to start: " + err.Error(),
	})

	return result
}

// subprocessEnv builds the environment per the engine contract: the caller's
// environment with the plugin and project roots, the triggering event, a PATH
// that resolves nested hookrun invocations to this binary, and the checkpoint
// and session correlation variables when present.
func (s *Supervisor) subprocessEnv(cfg *config.ResolvedHookConfig, event string) []string {
	env := os.Environ()

	env = append(env,
		PluginRootEnvName+"="+cfg.PluginRoot,
		ProjectRootEnvName+"="+s.opts.ProjectRoot,
		EventEnvName+"="+event,
	)

	if s.opts.BinDir != "" {
		env = append(env, "PATH="+s.opts.BinDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}

	if s.opts.CheckpointType != "" {
		env = append(env,
			options.CheckpointTypeEnvName+"="+s.opts.CheckpointType,
			options.CheckpointIDEnvName+"="+s.opts.CheckpointID,
		)
	}

	if s.opts.SessionID != "" {
		env = append(env, SessionIDEnvName+"="+s.opts.SessionID)
	}

	if s.opts.AgentID != "" {
		env = append(env, AgentIDEnvName+"="+s.opts.AgentID)
	}

	return env
}

func readLines(wg *sync.WaitGroup, r io.Reader, source Source, lines chan<- OutputLine) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		lines <- OutputLine{Source: source, Text: scanner.Text()}
	}
}

// watchActivity wraps a pipe so every successful read signals the activity
// channel. The signal is best-effort: the channel holds one pending notice
// and further reads coalesce into it.
func watchActivity(r io.Reader, activity chan<- struct{}) io.Reader {
	return &activityReader{r: r, activity: activity}
}

type activityReader struct {
	r        io.Reader
	activity chan<- struct{}
}

func (ar *activityReader) Read(p []byte) (int, error) {
	n, err := ar.r.Read(p)
	if n > 0 {
		select {
		case ar.activity <- struct{}{}:
		default:
		}
	}

	return n, err
}
