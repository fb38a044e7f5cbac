package supervisor

import (
	"os"
	"strings"
)

// SetEnv returns a copy of env with key set to value.
func SetEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)

	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}

	return append(out, prefix+value)
}

// LookupEnv returns the value of key in env.
func LookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="

	for i := len(env) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(env[i], prefix); ok {
			return v, true
		}
	}

	return "", false
}

// AppendPathList returns a copy of env with dirs appended to the
// path-list variable key, skipping empty and duplicate entries.
func AppendPathList(env []string, key string, dirs ...string) []string {
	current, _ := LookupEnv(env, key)

	var parts []string
	if current != "" {
		parts = strings.Split(current, string(os.PathListSeparator))
	}

	seen := make(map[string]bool, len(parts)+len(dirs))
	for _, p := range parts {
		seen[p] = true
	}

	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}

		seen[d] = true
		parts = append(parts, d)
	}

	if len(parts) == 0 {
		return append([]string(nil), env...)
	}

	return SetEnv(env, key, strings.Join(parts, string(os.PathListSeparator)))
}
