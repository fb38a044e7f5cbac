package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/enginefarm/unreal-adaptor/internal/adaptor"
	clierrors "github.com/enginefarm/unreal-adaptor/internal/errors"
	"github.com/enginefarm/unreal-adaptor/internal/testutil"
)

// fakeEngineEnv makes the test binary act as the engine when the adaptor
// launches it.
const fakeEngineEnv = "UNREAL_ADAPTOR_FAKE_ENGINE"

func TestMain(m *testing.M) {
	switch os.Getenv(fakeEngineEnv) {
	case "":
		os.Exit(m.Run())
	case "import-error":
		fmt.Println("LogPython: Error: ModuleNotFoundError: No module named 'unreal_adaptor'")
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		os.Exit(fakeEngine())
	}
}

// fakeEngine runs the engine client with a shell render command, the way
// the in-editor client would run Movie Render Queue.
func fakeEngine() int {
	render := []string{"sh", "-c", `echo "Render Executor: Progress: 50"; echo "rendering $*"`, "render"}

	if err := runEngineClient(context.Background(), os.Stdout, render); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return 0
}

func setupFakeEngine(t *testing.T, mode string) adaptor.Config {
	t.Helper()

	isolateConfig(t)

	engine, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable() error = %v", err)
	}

	script := filepath.Join(t.TempDir(), "unreal_client.py")
	if err := os.WriteFile(script, []byte("# engine client\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(fakeEngineEnv, mode)
	t.Setenv("UNREAL_ADAPTOR_ENGINE_EXECUTABLE", engine)
	t.Setenv("UNREAL_ADAPTOR_ENGINE_CLIENT_SCRIPT", script)
	t.Setenv("UNREAL_ADAPTOR_ADAPTOR_ENGINE_START_TIMEOUT", "30s")
	t.Setenv("UNREAL_ADAPTOR_ADAPTOR_ENGINE_END_TIMEOUT", "10s")
	t.Setenv("UNREAL_ADAPTOR_ADAPTOR_ENGINE_START_POLL_INTERVAL", "10ms")
	t.Setenv("UNREAL_ADAPTOR_ADAPTOR_RENDER_POLL_INTERVAL", "10ms")
	t.Setenv("UNREAL_ADAPTOR_ADAPTOR_CLEANUP_POLL_INTERVAL", "10ms")

	return adaptorConfig(loadTestConfig(t))
}

func TestRunSession_RenderAndCustomStep(t *testing.T) {
	cfg := setupFakeEngine(t, "client")
	step := testutil.WriteScript(t, "step.sh", "echo \"step $1\"\n")

	out, stdout, stderr := testWriter()
	out.ReserveStdout()

	init := map[string]any{
		"project_path": "/p/Film.uproject",
		"path_mapping_rules": []any{
			map[string]any{"source_path_format": "POSIX", "source_path": "/shots", "destination_path": "/mnt/shots"},
		},
	}
	runs := []map[string]any{
		{"handler": "render", "queue_manifest_path": "/shots/sh010/queue.utxt"},
		{"handler": "custom", "script_path": step, "script_args": map[string]any{"shot": "sh010"}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := runSession(ctx, out, cfg, init, runs); err != nil {
		t.Fatalf("runSession() error = %v\nstderr:\n%s", err, stderr.String())
	}

	status := stdout.String()

	for _, want := range []string{
		"openjd_progress: 0\n",
		"openjd_status: Initializing Unreal Engine\n",
		"openjd_progress: 50\n",
		"openjd_progress: 100\n",
	} {
		if !strings.Contains(status, want) {
			t.Errorf("stdout missing %q:\n%s", want, status)
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(status), "\n") {
		if !strings.HasPrefix(line, "openjd_") {
			t.Errorf("stdout carries a non-status line %q", line)
		}
	}

	if !strings.Contains(stderr.String(), "Session complete") {
		t.Errorf("stderr = %q, want the completion message", stderr.String())
	}
}

func TestRunSession_EngineImportError(t *testing.T) {
	cfg := setupFakeEngine(t, "import-error")

	out, _, _ := testWriter()
	out.ReserveStdout()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := runSession(ctx, out, cfg, map[string]any{"project_path": "/p/Film.uproject"}, nil)

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) {
		t.Fatalf("runSession() error = %v, want CLIError", err)
	}

	if cliErr.Code != clierrors.ExitExecution {
		t.Errorf("code = %d, want %d", cliErr.Code, clierrors.ExitExecution)
	}

	if !strings.Contains(cliErr.Hint, "engine.python_paths") {
		t.Errorf("hint = %q, want the python path hint", cliErr.Hint)
	}
}

func TestRunSession_InvalidInitData(t *testing.T) {
	cfg := setupFakeEngine(t, "client")

	out, stdout, _ := testWriter()

	err := runSession(context.Background(), out, cfg, map[string]any{"project_path": ""}, nil)

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitValidation {
		t.Fatalf("runSession() error = %v, want validation CLIError", err)
	}

	if strings.Contains(stdout.String(), "openjd_status") {
		t.Errorf("invalid init data should not report status, got %q", stdout.String())
	}
}

func TestValidateCommand(t *testing.T) {
	isolateConfig(t)

	runFile := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(runFile, []byte("handler: render\nqueue_manifest_path: /q.utxt\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:    "valid",
			args:    []string{"--init-data", `{"project_path": "/p/Film.uproject"}`, "--run-data", "file://" + runFile},
			wantOut: "1 run data payload(s) valid",
		},
		{
			name:     "render without paths",
			args:     []string{"--run-data", `{"handler": "render"}`},
			wantCode: clierrors.ExitValidation,
		},
		{
			name:     "nothing given",
			wantCode: clierrors.ExitUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, buf, _ := testWriter()

			err := executeWith(t, newValidateCmd(), out, tt.args...)

			if tt.wantCode != 0 {
				var cliErr *clierrors.CLIError
				if !clierrors.As(err, &cliErr) || cliErr.Code != tt.wantCode {
					t.Fatalf("validate error = %v, want code %d", err, tt.wantCode)
				}

				return
			}

			if err != nil {
				t.Fatalf("validate error = %v", err)
			}

			if !strings.Contains(buf.String(), tt.wantOut) {
				t.Errorf("output = %q, want to contain %q", buf.String(), tt.wantOut)
			}
		})
	}
}
