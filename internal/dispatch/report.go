package dispatch

import (
	"fmt"
	"strings"

	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/supervisor"
)

// maxSummaryLines bounds the captured output quoted per failed instance in
// the summary.
const maxSummaryLines = 20

// Status is the terminal state of one hook instance within a run.
type Status string

const (
	// StatusSuccess means the instance ran and exited cleanly.
	StatusSuccess Status = "success"

	// StatusFailed means the instance ran and failed (non-zero exit,
	// timeout, idle timeout, or spawn failure).
	StatusFailed Status = "failed"

	// StatusSkipped means change detection proved the instance's inputs
	// unchanged. Skips count neither for nor against the run outcome.
	StatusSkipped Status = "skipped"

	// StatusCanceled means an external interrupt stopped the instance.
	StatusCanceled Status = "canceled"

	// StatusNotRun means an earlier phase failure (fail-fast) or interrupt
	// stopped the run before this instance was scheduled.
	StatusNotRun Status = "not_run"
)

// InstanceReport is the reported outcome of one hook instance.
type InstanceReport struct {
	// Result holds the execution detail; nil for skipped and not-run
	// instances.
	Result *supervisor.Result

	PluginName string
	HookName   string
	Directory  string
	Status     Status
}

// RunReport aggregates every instance outcome of one dispatched event.
type RunReport struct {
	Event     string
	Instances []InstanceReport

	// ConfigErrors lists per-source configuration diagnostics that skipped
	// a plugin or directory without failing the run.
	ConfigErrors []string

	// Success is true iff no instance failed or was canceled. Skipped and
	// not-run instances do not count against it.
	Success bool
}

// Failures returns the instances that failed or were canceled.
func (r *RunReport) Failures() []InstanceReport {
	var failures []InstanceReport

	for _, instance := range r.Instances {
		if instance.Status == StatusFailed || instance.Status == StatusCanceled {
			failures = append(failures, instance)
		}
	}

	return failures
}

// Err aggregates the run's failures into a single error for library callers,
// one wrapped error per failed instance. Returns nil when the run succeeded.
func (r *RunReport) Err() error {
	var merr *errors.MultiError

	for _, failure := range r.Failures() {
		merr = merr.Append(errors.Errorf("hook %s/%s failed in %s: %s",
			failure.PluginName, failure.HookName, failure.Directory, failureKind(failure)))
	}

	return merr.ErrorOrNil()
}

// Summary renders a human-readable account of the run: one block per failed
// instance naming the plugin, hook, directory, failure kind, and the tail of
// its captured output.
func (r *RunReport) Summary() string {
	var b strings.Builder

	ran, skipped := 0, 0

	for _, instance := range r.Instances {
		switch instance.Status {
		case StatusSkipped:
			skipped++
		case StatusNotRun:
		default:
			ran++
		}
	}

	fmt.Fprintf(&b, "event %s: %d ran, %d skipped", r.Event, ran, skipped)

	for _, diag := range r.ConfigErrors {
		fmt.Fprintf(&b, "\nconfig error: %s", diag)
	}

	for _, failure := range r.Failures() {
		fmt.Fprintf(&b, "\n\nFAILED %s/%s in %s (%s)",
			failure.PluginName, failure.HookName, failure.Directory, failureKind(failure))

		for _, line := range tailLines(failure.Result) {
			fmt.Fprintf(&b, "\n  [%s] %s", line.Source, line.Text)
		}
	}

	return b.String()
}

func failureKind(instance InstanceReport) string {
	switch {
	case instance.Result == nil:
		return "no result"
	case instance.Result.TimedOut:
		return "timeout"
	case instance.Result.IdleTimedOut:
		return "idle timeout"
	case instance.Result.Canceled:
		return "interrupted"
	default:
		return fmt.Sprintf("exit code %d", instance.Result.ExitCode)
	}
}

func tailLines(result *supervisor.Result) []supervisor.OutputLine {
	if result == nil {
		return nil
	}

	if len(result.Output) <= maxSummaryLines {
		return result.Output
	}

	return result.Output[len(result.Output)-maxSummaryLines:]
}
