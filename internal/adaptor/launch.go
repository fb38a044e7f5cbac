package adaptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEngineExecutable is expected on PATH, for example from a Rez
// environment.
const DefaultEngineExecutable = "UnrealEditor-Cmd"

// ClientScriptRelPath is where the engine client script lives below a
// search path entry.
const ClientScriptRelPath = "deadline/unreal_adaptor/UnrealClient/unreal_client.py"

var engineLogArgs = []string{
	"-log",
	"-unattended",
	"-stdout",
	"-NoLoadingScreen",
	"-NoScreenMessages",
	"-RenderOffscreen",
	"-allowstdoutlogverbosity",
}

// EngineConfig describes how the engine is launched.
type EngineConfig struct {
	Executable string
	ExtraArgs  []string

	// ClientScript is the engine-side client run at startup. When empty it
	// is searched for under ClientSearchPaths.
	ClientScript      string
	ClientSearchPaths []string

	// PythonPaths are appended to the engine's PYTHONPATH.
	PythonPaths []string

	PTY bool
}

// ResolveClientScript returns the client script path.
func (e EngineConfig) ResolveClientScript() (string, error) {
	if e.ClientScript != "" {
		if info, err := os.Stat(e.ClientScript); err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s", ErrClientScriptNotFound, e.ClientScript)
		}

		return e.ClientScript, nil
	}

	for _, dir := range e.ClientSearchPaths {
		candidate := filepath.Join(dir, filepath.FromSlash(ClientScriptRelPath))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: check that %s exists in one of: %s",
		ErrClientScriptNotFound, ClientScriptRelPath, strings.Join(e.ClientSearchPaths, ", "))
}

// Args returns the engine arguments for a project and client script.
func (e EngineConfig) Args(projectPath, clientScript string) []string {
	args := make([]string, 0, len(engineLogArgs)+len(e.ExtraArgs)+2)
	args = append(args, projectPath)
	args = append(args, engineLogArgs...)
	args = append(args, e.ExtraArgs...)
	args = append(args, "-execcmds=r.HLOD 0,py "+strings.ReplaceAll(clientScript, `\`, "/"))

	return args
}

// SearchPaths returns the PYTHONPATH entries the engine needs to import the
// client package, followed by the configured extra paths.
func (e EngineConfig) SearchPaths(clientScript string) []string {
	paths := []string{clientRoot(clientScript)}
	return append(paths, e.PythonPaths...)
}

// clientRoot returns the directory containing the client's top-level
// package, or the script's directory for a standalone script.
func clientRoot(script string) string {
	slashed := filepath.ToSlash(script)
	if root, ok := strings.CutSuffix(slashed, "/"+ClientScriptRelPath); ok {
		return filepath.FromSlash(root)
	}

	return filepath.Dir(script)
}
