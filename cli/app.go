// Package cli defines the hookrun command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hookworks/hookrun/config"
	"github.com/hookworks/hookrun/internal/dispatch"
	"github.com/hookworks/hookrun/internal/errors"
	"github.com/hookworks/hookrun/internal/plugins"
	"github.com/hookworks/hookrun/options"
	"github.com/hookworks/hookrun/pkg/log"
)

// Process exit codes.
const (
	ExitCodeSuccess     = 0
	ExitCodeFailure     = 1
	ExitCodeConfigError = 2
)

const appHelpName = "hookrun"

// stdinPayload is the optional JSON document callers pipe in to correlate a
// dispatch with their session. Unknown fields are ignored on purpose: the
// payload is the caller's document, hookrun only borrows two fields.
type stdinPayload struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
}

// NewApp assembles the urfave/cli application.
func NewApp() *cli.App {
	return &cli.App{
		Name:  appHelpName,
		Usage: "run plugin hooks for project lifecycle events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "working-dir",
				Usage:   "project root to dispatch hooks in",
				Value:   ".",
				EnvVars: []string{"HOOKRUN_WORKING_DIR"},
			},
			&cli.BoolFlag{
				Name:    "no-cache",
				Usage:   "run every enabled hook, bypassing change detection",
				EnvVars: []string{options.NoCacheEnvName},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "stream hook output live instead of only summarizing",
				EnvVars: []string{options.VerboseEnvName},
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "stop scheduling further phases after the first failed phase",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level: trace, debug, info, warn, error",
				EnvVars: []string{options.LogLevelEnvName},
			},
		},
		Commands: []*cli.Command{
			dispatchCommand(),
			hooksCommand(),
		},
		ExitErrHandler: func(_ *cli.Context, _ error) {
			// Exit codes are produced by RunApp, not by urfave's handler.
		},
	}
}

// RunApp runs the application and maps the outcome to a process exit code.
func RunApp(args []string) int {
	exitCode := ExitCodeSuccess

	defer errors.Recover(func(cause error) {
		fmt.Fprintf(os.Stderr, "panic: %v\n", cause)
		os.Exit(ExitCodeConfigError)
	})

	if err := NewApp().Run(args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.message != "" {
				fmt.Fprintln(os.Stderr, exitErr.message)
			}

			return exitErr.code
		}

		fmt.Fprintf(os.Stderr, "%s: %v\n", appHelpName, err)

		return ExitCodeConfigError
	}

	return exitCode
}

type exitError struct {
	message string
	code    int
}

func (err *exitError) Error() string { return err.message }

func dispatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "dispatch",
		Usage:     "run every hook registered for a lifecycle event",
		ArgsUsage: "<event>",
		Action: func(cliCtx *cli.Context) error {
			if cliCtx.NArg() != 1 {
				return &exitError{message: "dispatch requires exactly one event argument", code: ExitCodeConfigError}
			}

			opts, err := buildOptions(cliCtx)
			if err != nil {
				return &exitError{message: err.Error(), code: ExitCodeConfigError}
			}

			readStdinPayload(os.Stdin, opts)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := dispatch.NewCoordinator(opts).DispatchEvent(ctx, cliCtx.Args().First())
			if err != nil {
				return &exitError{message: err.Error(), code: ExitCodeConfigError}
			}

			if summary := report.Summary(); summary != "" {
				fmt.Fprintln(opts.ErrWriter, summary)
			}

			if !report.Success {
				return &exitError{code: ExitCodeFailure}
			}

			return nil
		},
	}
}

func hooksCommand() *cli.Command {
	return &cli.Command{
		Name:  "hooks",
		Usage: "inspect installed plugin hooks",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "list every declared hook, optionally filtered by event",
				ArgsUsage: "[event]",
				Action: func(cliCtx *cli.Context) error {
					opts, err := buildOptions(cliCtx)
					if err != nil {
						return &exitError{message: err.Error(), code: ExitCodeConfigError}
					}

					return listHooks(opts, cliCtx.Args().First())
				},
			},
		},
	}
}

func buildOptions(cliCtx *cli.Context) (*options.RunOptions, error) {
	opts, err := options.NewRunOptions(cliCtx.String("working-dir"))
	if err != nil {
		return nil, err
	}

	if level := cliCtx.String("log-level"); level != "" {
		opts.Logger = log.New(log.WithLevel(level))
	}

	opts.NoCache = opts.NoCache || cliCtx.Bool("no-cache")
	opts.FailFast = cliCtx.Bool("fail-fast")

	// --verbose overrides the terminal-based default in both directions:
	// --verbose=false turns live streaming off even on a TTY.
	if cliCtx.IsSet("verbose") {
		opts.Verbose = cliCtx.Bool("verbose")
	}

	return opts, nil
}

// readStdinPayload extracts session correlation fields from a piped JSON
// document. Anything unparseable is ignored; the payload is advisory.
func readStdinPayload(stdin *os.File, opts *options.RunOptions) {
	info, err := stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil || len(raw) == 0 {
		return
	}

	var payload stdinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		opts.Logger.Debugf("Ignoring unparseable stdin payload: %v", err)
		return
	}

	opts.SessionID = payload.SessionID
	opts.AgentID = payload.AgentID
}

func listHooks(opts *options.RunOptions, event string) error {
	installed, err := plugins.NewFSRegistry(opts.ProjectRoot).List()
	if err != nil {
		return &exitError{message: err.Error(), code: ExitCodeConfigError}
	}

	for _, plugin := range installed {
		declared, err := config.LoadPluginHooks(plugin.Name, plugin.Root)
		if err != nil {
			fmt.Fprintf(opts.ErrWriter, "%s: %v\n", plugin.Name, err)
			continue
		}

		hookNames := declared.HookNames()
		if event != "" {
			hookNames = declared.HooksForEvent(event)
		}

		for _, hookName := range hookNames {
			def := declared.Definition(hookName)
			fmt.Fprintf(opts.Writer, "%s/%s\t%s\t%s\n", plugin.Name, hookName, joinEvents(def), def.Description)
		}
	}

	return nil
}

func joinEvents(def *config.PluginHookDefinition) string {
	out := ""
	for i, event := range def.Events {
		if i > 0 {
			out += ","
		}

		out += event
	}

	return out
}
