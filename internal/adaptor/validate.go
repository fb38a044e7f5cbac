package adaptor

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://schemas.enginefarm.dev/unreal-adaptor/"

// Validator checks init and run payloads against the embedded schemas.
type Validator struct {
	init *jsonschema.Schema
	run  *jsonschema.Schema
}

var defaultValidator = sync.OnceValues(NewValidator)

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()

	for _, name := range []string{"init_data.schema.json", "run_data.schema.json"} {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}

		if err := c.AddResource(schemaBaseURL+name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	initSchema, err := c.Compile(schemaBaseURL + "init_data.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile init data schema: %w", err)
	}

	runSchema, err := c.Compile(schemaBaseURL + "run_data.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile run data schema: %w", err)
	}

	return &Validator{init: initSchema, run: runSchema}, nil
}

// ValidateInit validates an init payload.
func (v *Validator) ValidateInit(payload map[string]any) error {
	return validate(v.init, "init data", payload)
}

// ValidateRun validates a run payload.
func (v *Validator) ValidateRun(payload map[string]any) error {
	return validate(v.run, "run data", payload)
}

func validate(schema *jsonschema.Schema, name string, payload map[string]any) error {
	if payload == nil {
		return &ValidationError{Payload: name, Err: fmt.Errorf("payload is empty")}
	}

	// Round-trip through JSON so values decoded from YAML or built in Go
	// reach the validator as plain JSON types.
	data, err := json.Marshal(payload)
	if err != nil {
		return &ValidationError{Payload: name, Err: err}
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &ValidationError{Payload: name, Err: err}
	}

	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Payload: name, Err: err}
	}

	return nil
}
