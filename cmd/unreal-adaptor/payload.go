package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	clierrors "github.com/enginefarm/unreal-adaptor/internal/errors"
)

const fileScheme = "file://"

// readPayload decodes an init or run payload given inline as JSON or YAML,
// or as file://<path>.
func readPayload(value string) (map[string]any, error) {
	data := []byte(value)
	source := "inline payload"

	if path, ok := strings.CutPrefix(value, fileScheme); ok {
		source = value

		b, err := os.ReadFile(path)
		if err != nil {
			return nil, clierrors.PayloadUnreadable(source, err)
		}

		data = b
	}

	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, clierrors.PayloadUnreadable(source, err)
	}

	if payload == nil {
		return nil, clierrors.PayloadUnreadable(source, fmt.Errorf("payload is empty"))
	}

	return payload, nil
}

// readPayloads decodes each value in order.
func readPayloads(values []string) ([]map[string]any, error) {
	payloads := make([]map[string]any, 0, len(values))

	for _, v := range values {
		p, err := readPayload(v)
		if err != nil {
			return nil, err
		}

		payloads = append(payloads, p)
	}

	return payloads, nil
}
