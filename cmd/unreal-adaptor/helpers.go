package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/enginefarm/unreal-adaptor/internal/adaptor"
	"github.com/enginefarm/unreal-adaptor/internal/config"
	clierrors "github.com/enginefarm/unreal-adaptor/internal/errors"
)

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFromContext returns the config loaded by the root command, or the
// default config for commands run without it.
func configFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}

	return config.Load()
}

// adaptorConfig maps configuration keys onto the controller's settings.
func adaptorConfig(cfg *config.Config) adaptor.Config {
	return adaptor.Config{
		ServerStartTimeout:      cfg.GetDuration(config.KeyServerStartTimeout),
		ServerEndTimeout:        cfg.GetDuration(config.KeyServerEndTimeout),
		EngineStartTimeout:      cfg.GetDuration(config.KeyEngineStartTimeout),
		EngineEndTimeout:        cfg.GetDuration(config.KeyEngineEndTimeout),
		ServerPollInterval:      cfg.GetDuration(config.KeyServerPollInterval),
		EngineStartPollInterval: cfg.GetDuration(config.KeyEngineStartPollInterval),
		RenderPollInterval:      cfg.GetDuration(config.KeyRenderPollInterval),
		CleanupPollInterval:     cfg.GetDuration(config.KeyCleanupPollInterval),
		SocketDir:               cfg.GetString(config.KeySocketDir),
		Engine: adaptor.EngineConfig{
			Executable:        cfg.GetString(config.KeyEngineExecutable),
			ExtraArgs:         cfg.GetArgs(config.KeyEngineExtraArgs),
			ClientScript:      cfg.GetString(config.KeyClientScript),
			ClientSearchPaths: cfg.GetPathList(config.KeyClientSearchPaths),
			PythonPaths:       cfg.GetPathList(config.KeyPythonPaths),
			PTY:               cfg.GetBool(config.KeyEnginePTY),
		},
	}
}

// sessionError maps a lifecycle error onto a CLIError with an exit code and
// a hint for the worker's operator.
func sessionError(ctx context.Context, cfg adaptor.Config, err error) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return clierrors.SessionCanceled()
	}

	var (
		validation   *adaptor.ValidationError
		startTimeout *adaptor.StartupTimeoutError
		initTimeout  *adaptor.InitTimeoutError
		logged       *adaptor.SubprocessLoggedError
		render       *adaptor.RenderFailureError
		initFailure  *adaptor.InitFailureError
		notRunning   *adaptor.NotRunningError
	)

	switch {
	case errors.Is(err, adaptor.ErrSessionStopped):
		return clierrors.SessionCanceled()
	case errors.As(err, &validation):
		return clierrors.InvalidPayload(validation.Payload, validation.Err)
	case errors.Is(err, adaptor.ErrClientScriptNotFound):
		return clierrors.ClientScriptNotFound(err)
	case errors.Is(err, exec.ErrNotFound):
		return clierrors.EngineNotFound(cfg.Engine.Executable)
	case errors.As(err, &startTimeout):
		return clierrors.EngineTimedOut("IPC server startup", startTimeout.Timeout, err)
	case errors.As(err, &initTimeout):
		return clierrors.EngineTimedOut("initialization", initTimeout.Timeout, err)
	case errors.As(err, &logged):
		return clierrors.EngineFailed(0, logged.Line, err)
	case errors.As(err, &render):
		return clierrors.EngineFailed(render.ExitCode, "", err)
	case errors.As(err, &initFailure), errors.As(err, &notRunning):
		return clierrors.EngineFailed(0, "", err)
	default:
		return err
	}
}

func usageError(cmd *cobra.Command, message string) error {
	return &clierrors.CLIError{
		Message: message,
		Hint:    fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
		Code:    clierrors.ExitUsage,
	}
}
