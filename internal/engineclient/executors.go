package engineclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/enginefarm/unreal-adaptor/internal/handler"
)

// PathMapper maps a path recorded on the submitting machine.
type PathMapper interface {
	MapPath(ctx context.Context, path string) (string, error)
}

// ScriptExecutor runs custom step scripts. The script is executed with its
// arguments passed as --key=value flags; its output is forwarded and its
// last output line is reported as the step result.
type ScriptExecutor struct {
	Out io.Writer
}

// RunScript runs args["script_path"].
func (e *ScriptExecutor) RunScript(ctx context.Context, args map[string]any) error {
	path, _ := args["script_path"].(string)

	if err := checkScript(path); err != nil {
		e.fail(path, err)
		return nil
	}

	scriptArgs, _ := args["script_args"].(map[string]any)

	result, err := runStreaming(ctx, e.Out, path, flags(scriptArgs)...)
	if err != nil {
		e.fail(path, err)
		return nil
	}

	fmt.Fprintf(e.Out, "%s%s\n", handler.CustomCompletePrefix, result)

	return nil
}

func (e *ScriptExecutor) fail(path string, err error) {
	fmt.Fprintf(e.Out, "%sError occurred while executing the given script %s: %v\n",
		handler.CustomErrorPrefix, path, err)
}

// WaitResult is a keep-alive: custom scripts run synchronously.
func (e *ScriptExecutor) WaitResult(context.Context, map[string]any) error {
	return waitResult(e.Out)
}

func checkScript(path string) error {
	if path == "" {
		return errors.New("script_path is required")
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("script %s does not exist or it is not a file", path)
	}

	return nil
}

// RenderExecutor runs an external render command for a render task.
type RenderExecutor struct {
	Out io.Writer

	// Command is the render program and its leading arguments.
	Command []string

	// Paths maps task paths before they are passed to the command. Nil
	// leaves paths unchanged.
	Paths PathMapper
}

// RunScript renders the queue manifest, or the level sequence, level and
// job configuration given in args.
func (e *RenderExecutor) RunScript(ctx context.Context, args map[string]any) error {
	if len(e.Command) == 0 {
		fmt.Fprintf(e.Out, "%sno render command configured\n", handler.RenderErrorPrefix)
		return nil
	}

	taskArgs, err := e.renderArgs(ctx, args)
	if err != nil {
		fmt.Fprintf(e.Out, "%s%v\n", handler.RenderErrorPrefix, err)
		return nil
	}

	argv := append(append([]string(nil), e.Command[1:]...), taskArgs...)

	if _, err := runStreaming(ctx, e.Out, e.Command[0], argv...); err != nil {
		fmt.Fprintf(e.Out, "%s%v\n", handler.RenderErrorPrefix, err)
		return nil
	}

	fmt.Fprintln(e.Out, handler.RenderComplete)

	return nil
}

// WaitResult is a keep-alive while the render runs.
func (e *RenderExecutor) WaitResult(context.Context, map[string]any) error {
	return waitResult(e.Out)
}

func (e *RenderExecutor) renderArgs(ctx context.Context, args map[string]any) ([]string, error) {
	var out []string

	add := func(flag, key string) error {
		v, _ := args[key].(string)
		if v == "" {
			return nil
		}

		mapped, err := e.mapPath(ctx, v)
		if err != nil {
			return err
		}

		out = append(out, "--"+flag+"="+mapped)

		return nil
	}

	if manifest, _ := args["queue_manifest_path"].(string); manifest != "" {
		if err := add("queue-manifest", "queue_manifest_path"); err != nil {
			return nil, err
		}
	} else {
		for _, key := range []string{"level_sequence_path", "level_path", "job_configuration_path"} {
			if v, _ := args[key].(string); v == "" {
				return nil, fmt.Errorf("%s is required without queue_manifest_path", key)
			}

			if err := add(strings.ReplaceAll(key, "_", "-"), key); err != nil {
				return nil, err
			}
		}
	}

	if err := add("output-path", "output_path"); err != nil {
		return nil, err
	}

	return out, nil
}

func (e *RenderExecutor) mapPath(ctx context.Context, path string) (string, error) {
	if e.Paths == nil {
		return path, nil
	}

	mapped, err := e.Paths.MapPath(ctx, path)
	if err != nil {
		return "", fmt.Errorf("map path %s: %w", path, err)
	}

	return mapped, nil
}

func waitResult(out io.Writer) error {
	fmt.Fprintln(out, handler.WaitStart)
	fmt.Fprintln(out, handler.WaitFinish)

	return nil
}

// flags renders script arguments as sorted --key=value flags.
func flags(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("--%s=%v", k, args[k]))
	}

	return out
}

// runStreaming runs a program, copying its combined output line by line to
// out, and returns the last non-empty line.
func runStreaming(ctx context.Context, out io.Writer, path string, args ...string) (string, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	startErr := cmd.Start()

	_ = pw.Close()

	if startErr != nil {
		_ = pr.Close()
		return "", fmt.Errorf("start %s: %w", path, startErr)
	}

	var last string

	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(out, line)

		if strings.TrimSpace(line) != "" {
			last = strings.TrimSpace(line)
		}
	}

	_ = pr.Close()

	if err := cmd.Wait(); err != nil {
		return last, fmt.Errorf("%s failed: %w", path, err)
	}

	return last, nil
}
