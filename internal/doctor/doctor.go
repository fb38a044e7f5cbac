// Package doctor provides diagnostic checks for a render worker's adaptor
// setup.
//
// The default checks validate:
//   - the engine executable is on PATH
//   - the engine client script can be found
//   - the IPC socket directory is writable and short enough for a socket path
//   - the payload schemas compile
//   - the config file, when present, is the one in use
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/enginefarm/unreal-adaptor/internal/adaptor"
	"github.com/enginefarm/unreal-adaptor/internal/buildinfo"
)

// maxSocketPath is the smallest sun_path limit across supported platforms,
// less room for the session dir and socket name.
const maxSocketPath = 104 - 40

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string
	Status  Status
	Message string
	Detail  string // Optional additional detail
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Options is the adaptor setup under diagnosis.
type Options struct {
	Engine     adaptor.EngineConfig
	SocketDir  string
	ConfigFile string
}

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks for opts.
func New(opts Options) *Runner {
	r := &Runner{}

	r.AddCheck("Engine", func(context.Context) Result { return checkEngine(opts.Engine.Executable) })
	r.AddCheck("Client script", func(context.Context) Result { return checkClientScript(opts.Engine) })
	r.AddCheck("Socket dir", func(context.Context) Result { return checkSocketDir(opts.SocketDir) })
	r.AddCheck("Schemas", func(context.Context) Result { return checkSchemas() })
	r.AddCheck("Config", func(context.Context) Result { return checkConfigFile(opts.ConfigFile) })
	r.AddCheck("Version", func(context.Context) Result { return checkVersion() })

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		if ctx.Err() != nil {
			break
		}

		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

func checkEngine(executable string) Result {
	if executable == "" {
		executable = adaptor.DefaultEngineExecutable
	}

	path, err := exec.LookPath(executable)
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found", executable),
			Detail:  "Put the engine on PATH or set engine.executable",
		}
	}

	return Result{Status: StatusPass, Message: path}
}

func checkClientScript(engine adaptor.EngineConfig) Result {
	script, err := engine.ResolveClientScript()
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: "Not found",
			Detail:  err.Error(),
		}
	}

	return Result{Status: StatusPass, Message: script}
}

func checkSocketDir(dir string) Result {
	if dir == "" {
		dir = os.TempDir()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{Status: StatusFail, Message: dir, Detail: err.Error()}
	}

	scratch, err := os.MkdirTemp(dir, "doctor-")
	if err != nil {
		return Result{Status: StatusFail, Message: fmt.Sprintf("%s is not writable", dir), Detail: err.Error()}
	}

	_ = os.RemoveAll(scratch)

	if abs, err := filepath.Abs(dir); err == nil && len(abs) > maxSocketPath {
		return Result{
			Status:  StatusWarn,
			Message: dir,
			Detail:  "Path is long enough that the socket path may exceed the OS limit; set ipc.socket_dir",
		}
	}

	return Result{Status: StatusPass, Message: dir}
}

func checkSchemas() Result {
	if _, err := adaptor.NewValidator(); err != nil {
		return Result{Status: StatusFail, Message: "Invalid", Detail: err.Error()}
	}

	return Result{Status: StatusPass, Message: "init_data, run_data"}
}

func checkConfigFile(path string) Result {
	if path == "" {
		return Result{Status: StatusPass, Message: "Defaults (no config file)"}
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Result{Status: StatusPass, Message: fmt.Sprintf("Defaults (%s not present)", path)}
		}

		return Result{Status: StatusWarn, Message: path, Detail: err.Error()}
	}

	return Result{Status: StatusPass, Message: path}
}

func checkVersion() Result {
	if buildinfo.Version == "dev" {
		return Result{Status: StatusWarn, Message: "Development build"}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("v%s (%s)", buildinfo.Version, buildinfo.Commit)}
}

// RenderResults formats diagnostic results to the given output writer.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		if len(r.Name) > maxNameLen {
			maxNameLen = len(r.Name)
		}
	}

	for _, r := range results {
		width := maxNameLen + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", width, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", width, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", width, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", r.Status.Symbol(), width, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

const (
	checkMark   = "✓" // ✓
	xMark       = "✗" // ✗
	warningMark = "⚠" // ⚠
)
