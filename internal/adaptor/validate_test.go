package adaptor

import (
	"errors"
	"testing"
)

func TestValidateInit(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	tests := []struct {
		name    string
		payload map[string]any
		wantErr bool
	}{
		{name: "project only", payload: map[string]any{"project_path": "P"}},
		{
			name: "with rules",
			payload: map[string]any{
				"project_path": "P",
				"path_mapping_rules": []map[string]any{
					{"source_path_format": "POSIX", "source_path": "/a", "destination_path": "/b"},
				},
			},
		},
		{name: "nil", payload: nil, wantErr: true},
		{name: "missing project", payload: map[string]any{}, wantErr: true},
		{name: "empty project", payload: map[string]any{"project_path": ""}, wantErr: true},
		{name: "project not a string", payload: map[string]any{"project_path": 4}, wantErr: true},
		{
			name: "bad rule format",
			payload: map[string]any{
				"project_path": "P",
				"path_mapping_rules": []any{
					map[string]any{"source_path_format": "AMIGA", "source_path": "/a", "destination_path": "/b"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateInit(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateInit() error = %v, wantErr %v", err, tt.wantErr)
			}

			var verr *ValidationError
			if err != nil && (!errors.As(err, &verr) || verr.Payload != "init data") {
				t.Errorf("ValidateInit() error = %#v, want init data ValidationError", err)
			}
		})
	}
}

func TestValidateRun(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	tests := []struct {
		name    string
		payload map[string]any
		wantErr bool
	}{
		{name: "render manifest", payload: map[string]any{"handler": "render", "queue_manifest_path": "X"}},
		{
			name: "render job",
			payload: map[string]any{
				"handler":                "render",
				"level_sequence_path":    "/Game/Seq",
				"level_path":             "/Game/Map",
				"job_configuration_path": "/Game/Config",
			},
		},
		{name: "render partial job", payload: map[string]any{"handler": "render", "level_path": "/Game/Map"}, wantErr: true},
		{name: "render nothing", payload: map[string]any{"handler": "render"}, wantErr: true},
		{name: "custom", payload: map[string]any{"handler": "custom", "script_path": "/s.py", "script_args": map[string]any{"a": 1}}},
		{name: "custom without script", payload: map[string]any{"handler": "custom"}, wantErr: true},
		{name: "unknown handler passes", payload: map[string]any{"handler": "houdini"}},
		{name: "handler not a string", payload: map[string]any{"handler": 3}, wantErr: true},
		{name: "script args not an object", payload: map[string]any{"handler": "custom", "script_path": "/s", "script_args": "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRun(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRun() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
