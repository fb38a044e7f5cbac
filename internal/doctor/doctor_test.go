package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/enginefarm/unreal-adaptor/internal/adaptor"
	"github.com/enginefarm/unreal-adaptor/internal/testutil"
)

func TestCheckEngine(t *testing.T) {
	engine := testutil.WriteScript(t, "UnrealEditor-Cmd", "exit 0\n")
	t.Setenv("PATH", filepath.Dir(engine))

	if got := checkEngine(""); got.Status != StatusPass || got.Message != engine {
		t.Errorf("checkEngine(default) = %+v, want pass at %s", got, engine)
	}

	if got := checkEngine("NoSuchEditor"); got.Status != StatusFail {
		t.Errorf("checkEngine(missing) status = %v, want fail", got.Status)
	}
}

func TestCheckClientScript(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, filepath.FromSlash(adaptor.ClientScriptRelPath))

	if err := os.MkdirAll(filepath.Dir(script), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(script, []byte("# client\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := checkClientScript(adaptor.EngineConfig{ClientSearchPaths: []string{t.TempDir(), root}})
	if got.Status != StatusPass || got.Message != script {
		t.Errorf("checkClientScript() = %+v, want pass at %s", got, script)
	}

	got = checkClientScript(adaptor.EngineConfig{ClientSearchPaths: []string{t.TempDir()}})
	if got.Status != StatusFail || !strings.Contains(got.Detail, adaptor.ClientScriptRelPath) {
		t.Errorf("checkClientScript(missing) = %+v", got)
	}
}

func TestCheckSocketDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s")

	if got := checkSocketDir(dir); got.Status != StatusPass {
		t.Errorf("checkSocketDir() = %+v, want pass", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	if len(entries) != 0 {
		t.Errorf("write check left %d entries behind", len(entries))
	}

	long := filepath.Join(t.TempDir(), strings.Repeat("d", maxSocketPath))
	if got := checkSocketDir(long); got.Status != StatusWarn {
		t.Errorf("checkSocketDir(long) = %+v, want warn", got)
	}
}

func TestCheckSocketDir_NotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	if got := checkSocketDir(dir); got.Status != StatusFail {
		t.Errorf("checkSocketDir(read-only) = %+v, want fail", got)
	}
}

func TestCheckConfigFile(t *testing.T) {
	present := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(present, []byte("engine:\n  pty: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "none", path: "", want: "Defaults"},
		{name: "absent", path: filepath.Join(t.TempDir(), "config.yaml"), want: "not present"},
		{name: "present", path: present, want: present},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkConfigFile(tt.path)
			if got.Status != StatusPass || !strings.Contains(got.Message, tt.want) {
				t.Errorf("checkConfigFile(%q) = %+v, want pass containing %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCheckSchemas(t *testing.T) {
	if got := checkSchemas(); got.Status != StatusPass {
		t.Errorf("checkSchemas() = %+v", got)
	}
}

func TestRunnerNamesResults(t *testing.T) {
	r := &Runner{}
	r.AddCheck("first", func(context.Context) Result { return Result{Status: StatusPass} })
	r.AddCheck("second", func(context.Context) Result { return Result{Status: StatusFail} })
	r.AddCheck("third", func(context.Context) Result { return Result{Status: StatusWarn} })

	results := r.Run(context.Background())
	if len(results) != 3 || results[0].Name != "first" || results[2].Name != "third" {
		t.Fatalf("Run() = %+v", results)
	}

	passed, failed, warnings := Summary(results)
	if passed != 1 || failed != 1 || warnings != 1 {
		t.Errorf("Summary() = %d, %d, %d, want 1, 1, 1", passed, failed, warnings)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{}
	r.AddCheck("cancels", func(context.Context) Result {
		cancel()
		return Result{Status: StatusPass}
	})
	r.AddCheck("skipped", func(context.Context) Result {
		t.Error("check ran after cancel")
		return Result{}
	})

	if got := r.Run(ctx); len(got) != 1 {
		t.Errorf("Run() returned %d results, want 1", len(got))
	}
}

func TestRenderResults(t *testing.T) {
	var sb strings.Builder

	line := func(prefix string) func(string, ...any) {
		return func(format string, args ...any) {
			sb.WriteString(prefix + fmt.Sprintf(format, args...) + "\n")
		}
	}

	RenderResults([]Result{
		{Name: "Engine", Status: StatusPass, Message: "/opt/ue/UnrealEditor-Cmd"},
		{Name: "Socket dir", Status: StatusWarn, Message: "/tmp", Detail: "long"},
		{Name: "Schemas", Status: StatusFail, Message: "Invalid"},
	}, line(""), line("ok "), line("warn "), line("fail "), line(""))

	want := "ok Engine        /opt/ue/UnrealEditor-Cmd\n" +
		"warn Socket dir    /tmp\n" +
		"    long\n" +
		"fail Schemas       Invalid\n"

	if sb.String() != want {
		t.Errorf("RenderResults() =\n%s\nwant\n%s", sb.String(), want)
	}
}
