package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	clierrors "github.com/enginefarm/unreal-adaptor/internal/errors"
)

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(yamlFile, []byte("handler: custom\nscript_path: /p/step.py\nscript_args:\n  shot: sh010\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		value   string
		wantKey string
		wantVal any
		wantErr string
	}{
		{name: "inline json", value: `{"project_path": "/p/Film.uproject"}`, wantKey: "project_path", wantVal: "/p/Film.uproject"},
		{name: "inline yaml", value: "handler: render\nqueue_manifest_path: /q.utxt", wantKey: "handler", wantVal: "render"},
		{name: "file", value: "file://" + yamlFile, wantKey: "script_path", wantVal: "/p/step.py"},
		{name: "missing file", value: "file://" + filepath.Join(dir, "nope.yaml"), wantErr: "nope.yaml"},
		{name: "not an object", value: `[1, 2]`, wantErr: "inline payload"},
		{name: "empty", value: "", wantErr: "inline payload"},
		{name: "malformed", value: `{"handler": `, wantErr: "inline payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(tt.value)

			if tt.wantErr != "" {
				var cliErr *clierrors.CLIError
				if !clierrors.As(err, &cliErr) {
					t.Fatalf("readPayload() error = %v, want CLIError", err)
				}

				if cliErr.Code != clierrors.ExitUsage || !strings.Contains(cliErr.Message, tt.wantErr) {
					t.Errorf("readPayload() error = %+v, want usage error mentioning %q", cliErr, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("readPayload() error = %v", err)
			}

			if got[tt.wantKey] != tt.wantVal {
				t.Errorf("payload[%q] = %v, want %v", tt.wantKey, got[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestReadPayload_NestedMaps(t *testing.T) {
	got, err := readPayload("handler: custom\nscript_path: /s.py\nscript_args:\n  frames: 10\n")
	if err != nil {
		t.Fatalf("readPayload() error = %v", err)
	}

	args, ok := got["script_args"].(map[string]any)
	if !ok {
		t.Fatalf("script_args = %T, want map[string]any", got["script_args"])
	}

	if args["frames"] != 10 {
		t.Errorf("frames = %v (%T), want 10", args["frames"], args["frames"])
	}
}

func TestReadPayloads_StopsAtFirstError(t *testing.T) {
	_, err := readPayloads([]string{`{"handler": "render"}`, `[]`})
	if err == nil {
		t.Fatal("readPayloads() error = nil, want error for the second payload")
	}

	got, err := readPayloads(nil)
	if err != nil || len(got) != 0 {
		t.Errorf("readPayloads(nil) = %v, %v", got, err)
	}
}
