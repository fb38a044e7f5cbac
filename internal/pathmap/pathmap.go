// Package pathmap rewrites paths recorded on a submitting machine into paths
// valid on the worker running the engine.
package pathmap

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Source path formats.
const (
	FormatPOSIX   = "POSIX"
	FormatWindows = "WINDOWS"
)

// Rule maps a source path prefix to a destination prefix.
type Rule struct {
	SourcePathFormat string `json:"source_path_format"`
	SourcePath       string `json:"source_path"`
	DestinationPath  string `json:"destination_path"`
}

// Rules is an ordered set of mapping rules. Longer source prefixes are
// tried first.
type Rules []Rule

// FromPayload converts the decoded path_mapping_rules payload value.
func FromPayload(v any) (Rules, error) {
	if v == nil {
		return nil, nil
	}

	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("path_mapping_rules: expected a list, got %T", v)
	}

	rules := make(Rules, 0, len(items))

	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path_mapping_rules[%d]: expected an object, got %T", i, item)
		}

		r := Rule{}
		r.SourcePathFormat, _ = m["source_path_format"].(string)
		r.SourcePath, _ = m["source_path"].(string)
		r.DestinationPath, _ = m["destination_path"].(string)

		if r.SourcePath == "" || r.DestinationPath == "" {
			return nil, fmt.Errorf("path_mapping_rules[%d]: source_path and destination_path are required", i)
		}

		rules = append(rules, r)
	}

	return rules.sorted(), nil
}

func (rs Rules) sorted() Rules {
	out := append(Rules(nil), rs...)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].SourcePath) > len(out[j].SourcePath)
	})

	return out
}

// Map applies the first matching rule. It reports false when no rule
// matched, in which case the input is returned unchanged.
func (rs Rules) Map(path string) (string, bool) {
	for _, r := range rs.sorted() {
		if mapped, ok := r.apply(path); ok {
			return mapped, true
		}
	}

	return path, false
}

func (r Rule) apply(path string) (string, bool) {
	src, p := r.SourcePath, path

	windows := strings.EqualFold(r.SourcePathFormat, FormatWindows)
	if windows {
		src = strings.ReplaceAll(src, `\`, "/")
		p = strings.ReplaceAll(p, `\`, "/")
	}

	src = strings.TrimSuffix(src, "/")

	var hasPrefix bool
	if windows {
		hasPrefix = len(p) >= len(src) && strings.EqualFold(p[:len(src)], src)
	} else {
		hasPrefix = strings.HasPrefix(p, src)
	}

	if !hasPrefix {
		return "", false
	}

	rest := p[len(src):]
	if rest != "" && rest[0] != '/' {
		// Prefix ends mid-component, e.g. /mnt/proj vs /mnt/project.
		return "", false
	}

	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return r.DestinationPath, true
	}

	return filepath.Join(r.DestinationPath, filepath.FromSlash(rest)), true
}
