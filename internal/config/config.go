// Package config handles adaptor configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (UNREAL_ADAPTOR_*)
//  2. Config file (<user config dir>/unreal-adaptor/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/enginefarm/unreal-adaptor/internal/paths"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "UNREAL_ADAPTOR"

// DefaultEngineExecutable is the engine binary looked up on PATH.
const DefaultEngineExecutable = "UnrealEditor-Cmd"

// Configuration keys.
const (
	KeyServerStartTimeout = "adaptor.server_start_timeout"
	KeyServerEndTimeout   = "adaptor.server_end_timeout"
	KeyEngineStartTimeout = "adaptor.engine_start_timeout"
	KeyEngineEndTimeout   = "adaptor.engine_end_timeout"

	KeyServerPollInterval      = "adaptor.server_poll_interval"
	KeyEngineStartPollInterval = "adaptor.engine_start_poll_interval"
	KeyRenderPollInterval      = "adaptor.render_poll_interval"
	KeyCleanupPollInterval     = "adaptor.cleanup_poll_interval"

	KeyEngineExecutable  = "engine.executable"
	KeyEngineExtraArgs   = "engine.extra_args"
	KeyClientScript      = "engine.client_script"
	KeyClientSearchPaths = "engine.client_search_paths"
	KeyPythonPaths       = "engine.python_paths"
	KeyEnginePTY         = "engine.pty"
	KeyEngineRenderCmd   = "engine.render_command"
	KeySocketDir         = "ipc.socket_dir"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"
	KeyLogStderr = "log.stderr"
)

// Setting describes one configuration key.
type Setting struct {
	Key         string
	Description string
	Default     any
}

// Settings lists every key the adaptor reads, in display order.
func Settings() []Setting {
	return []Setting{
		{KeyServerStartTimeout, "Wait for the IPC server to bind", 30 * time.Second},
		{KeyServerEndTimeout, "Wait for the IPC server to stop", 30 * time.Second},
		{KeyEngineStartTimeout, "Wait for the engine to drain its bootstrap actions", 24 * time.Hour},
		{KeyEngineEndTimeout, "Wait for the engine to exit after close", 30 * time.Second},
		{KeyServerPollInterval, "Poll interval while the server binds", 10 * time.Millisecond},
		{KeyEngineStartPollInterval, "Poll interval while the engine starts", 100 * time.Millisecond},
		{KeyRenderPollInterval, "Poll interval while rendering", time.Second},
		{KeyCleanupPollInterval, "Poll interval while the engine exits", 100 * time.Millisecond},
		{KeyEngineExecutable, "Engine executable name or path", DefaultEngineExecutable},
		{KeyEngineExtraArgs, "Extra engine command line arguments", []string{}},
		{KeyClientScript, "Engine client script; searched for when empty", ""},
		{KeyClientSearchPaths, "Directories searched for the client script", []string{}},
		{KeyPythonPaths, "Directories appended to the engine PYTHONPATH", []string{}},
		{KeyEnginePTY, "Run the engine under a pseudo-terminal", false},
		{KeyEngineRenderCmd, "Render program used by the engine client", []string{}},
		{KeySocketDir, "Parent directory of the IPC socket", paths.SocketDir()},
		{KeyLogLevel, "Log level: error, warn, info, debug", "info"},
		{KeyLogFormat, "Log format: json, text", "json"},
		{KeyLogFile, "Structured log file; empty uses the state dir", ""},
		{KeyLogStderr, "Structured logging to stderr: auto, on, off", "auto"},
	}
}

// Lookup returns the setting for key.
func Lookup(key string) (Setting, bool) {
	i := slices.IndexFunc(Settings(), func(s Setting) bool { return s.Key == key })
	if i < 0 {
		return Setting{}, false
	}

	return Settings()[i], true
}

// Config holds the adaptor configuration.
type Config struct {
	v    *viper.Viper
	file string
}

// Load reads configuration from all sources. A malformed config file is
// reported on stderr and ignored.
func Load() *Config {
	cfg, err := LoadFile("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
	}

	return cfg
}

// LoadFile reads configuration from path, or from the default config file
// when path is empty. A missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for _, s := range Settings() {
		v.SetDefault(s.Key, s.Default)
	}

	v.SetConfigType("yaml")

	explicit := path != ""
	if !explicit {
		if defaultPath, err := paths.ConfigFile(); err == nil {
			path = defaultPath
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{v: v, file: path}

	if path == "" {
		return cfg, nil
	}

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if !explicit && os.IsNotExist(err) {
			return cfg, nil
		}

		if _, ok := err.(viper.ConfigFileNotFoundError); ok && !explicit {
			return cfg, nil
		}

		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	return cfg, nil
}

// File returns the config file this configuration reads and writes.
func (c *Config) File() string {
	return c.file
}

// Get returns a configuration value.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetDuration returns a configuration value as a duration. Strings use
// time.ParseDuration syntax ("30s", "24h").
func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// GetPathList returns a list of paths. A single string, for example from
// an environment variable, is split on the OS path list separator.
func (c *Config) GetPathList(key string) []string {
	if s, ok := c.v.Get(key).(string); ok {
		return filepath.SplitList(s)
	}

	return c.v.GetStringSlice(key)
}

// GetArgs returns a list of arguments. A single string is split on
// whitespace.
func (c *Config) GetArgs(key string) []string {
	return c.v.GetStringSlice(key)
}

// Set sets a configuration value and persists it to the config file.
func (c *Config) Set(key string, value any) error {
	if _, ok := Lookup(key); !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	if c.file == "" {
		return fmt.Errorf("no config file location available")
	}

	c.v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(c.file), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := c.v.WriteConfigAs(c.file); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// All returns all configuration as a map.
func (c *Config) All() map[string]any {
	return c.v.AllSettings()
}
