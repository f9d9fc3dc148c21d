// Package options defines the runtime configuration for a hookrun invocation.
// All environment toggles are read exactly once, here, when the options are
// constructed; nothing re-reads the environment mid-run.
package options

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/hookworks/hookrun/pkg/log"
)

// Environment variables recognized by hookrun.
const (
	DisableEnvName        = "HOOKRUN_DISABLE"
	NoCacheEnvName        = "HOOKRUN_NO_CACHE"
	VerboseEnvName        = "HOOKRUN_VERBOSE"
	LogLevelEnvName       = "HOOKRUN_LOG_LEVEL"
	CheckpointTypeEnvName = "HOOKRUN_CHECKPOINT_TYPE"
	CheckpointIDEnvName   = "HOOKRUN_CHECKPOINT_ID"
)

// RunOptions carries everything a dispatch needs: project location, toggles,
// writers, and the logger. Constructed once per invocation and treated as
// read-only afterwards.
type RunOptions struct {
	Logger log.Logger

	// Writer and ErrWriter receive live-streamed hook output when Verbose
	// is set. They must be safe for concurrent writes or wrapped before use.
	Writer    io.Writer
	ErrWriter io.Writer

	// ProjectRoot is the absolute path of the project being dispatched.
	ProjectRoot string

	// BinDir is prepended to PATH for every supervised subprocess so nested
	// hookrun invocations resolve to the same binary.
	BinDir string

	// CheckpointType and CheckpointID correlate hook runs with the
	// triggering checkpoint event. Forwarded to subprocesses verbatim.
	CheckpointType string
	CheckpointID   string

	// SessionID and AgentID come from the caller's stdin payload. Forwarded
	// to subprocesses, never interpreted.
	SessionID string
	AgentID   string

	// Disabled short-circuits dispatch before any discovery work.
	Disabled bool

	// NoCache bypasses change detection: every enabled hook runs and no
	// manifests are written.
	NoCache bool

	// Verbose live-streams subprocess output instead of only aggregating it.
	Verbose bool

	// FailFast stops scheduling further phases once a phase has a failure.
	FailFast bool
}

// NewRunOptions builds RunOptions for the given project root, reading the
// environment toggles once.
func NewRunOptions(projectRoot string) (*RunOptions, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	logger := log.New(log.WithLevel(os.Getenv(LogLevelEnvName)))

	binDir := ""
	if executable, err := os.Executable(); err == nil {
		binDir = filepath.Dir(executable)
	}

	// An interactive terminal only sets the default; the env var, when
	// present, wins in either direction, as does the CLI flag later.
	verbose := isatty.IsTerminal(os.Stdout.Fd())
	if raw, ok := os.LookupEnv(VerboseEnvName); ok {
		verbose = flagValue(raw)
	}

	return &RunOptions{
		Logger:         logger,
		Writer:         os.Stdout,
		ErrWriter:      os.Stderr,
		ProjectRoot:    absRoot,
		BinDir:         binDir,
		CheckpointType: os.Getenv(CheckpointTypeEnvName),
		CheckpointID:   os.Getenv(CheckpointIDEnvName),
		Disabled:       envFlagSet(DisableEnvName),
		NoCache:        envFlagSet(NoCacheEnvName),
		Verbose:        verbose,
	}, nil
}

// CacheDir returns the directory holding change-detection manifests for this
// project.
func (opts *RunOptions) CacheDir() string {
	return filepath.Join(opts.ProjectRoot, ".hookrun", "cache")
}

func envFlagSet(name string) bool {
	return flagValue(os.Getenv(name))
}

func flagValue(raw string) bool {
	switch raw {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
