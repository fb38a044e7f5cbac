package adaptor

import "time"

// Config holds the controller's timeouts, poll intervals and engine launch
// settings.
type Config struct {
	ServerStartTimeout time.Duration
	ServerEndTimeout   time.Duration
	EngineStartTimeout time.Duration
	EngineEndTimeout   time.Duration

	ServerPollInterval      time.Duration
	EngineStartPollInterval time.Duration
	RenderPollInterval      time.Duration
	CleanupPollInterval     time.Duration

	// SocketDir is the parent directory of the IPC socket. Empty means the
	// OS temp dir.
	SocketDir string

	Engine EngineConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ServerStartTimeout:      30 * time.Second,
		ServerEndTimeout:        30 * time.Second,
		EngineStartTimeout:      24 * time.Hour,
		EngineEndTimeout:        30 * time.Second,
		ServerPollInterval:      10 * time.Millisecond,
		EngineStartPollInterval: 100 * time.Millisecond,
		RenderPollInterval:      time.Second,
		CleanupPollInterval:     100 * time.Millisecond,
		Engine: EngineConfig{
			Executable: DefaultEngineExecutable,
		},
	}
}

// withIntervalDefaults fills in unset poll intervals. Timeouts are left as
// given so a zero timeout stays zero.
func (c Config) withIntervalDefaults() Config {
	d := DefaultConfig()

	if c.ServerPollInterval <= 0 {
		c.ServerPollInterval = d.ServerPollInterval
	}

	if c.EngineStartPollInterval <= 0 {
		c.EngineStartPollInterval = d.EngineStartPollInterval
	}

	if c.RenderPollInterval <= 0 {
		c.RenderPollInterval = d.RenderPollInterval
	}

	if c.CleanupPollInterval <= 0 {
		c.CleanupPollInterval = d.CleanupPollInterval
	}

	if c.Engine.Executable == "" {
		c.Engine.Executable = d.Engine.Executable
	}

	return c
}
