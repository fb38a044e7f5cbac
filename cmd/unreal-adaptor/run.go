package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/enginefarm/unreal-adaptor/internal/adaptor"
	"github.com/enginefarm/unreal-adaptor/internal/observability"
	"github.com/enginefarm/unreal-adaptor/internal/output"
)

func newRunCmd() *cobra.Command {
	var (
		initData string
		runData  []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an Unreal render session",
		Long: `Start Unreal with the init data, execute each run payload in order, then
stop the engine and clean up. Progress and status are written to stdout as
openjd_progress and openjd_status lines; everything else goes to stderr.
SIGINT or SIGTERM cancels the session and terminates the engine.

Payloads are JSON or YAML, given inline or as file://<path>.`,
		Example: `  unreal-adaptor run --init-data file://init.yaml --run-data file://run.yaml
  unreal-adaptor run --init-data '{"project_path": "/p/Film.uproject"}' \
    --run-data '{"handler": "custom", "script_path": "/p/step.py"}'`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			out.ReserveStdout()

			init, err := readPayload(initData)
			if err != nil {
				return err
			}

			runs, err := readPayloads(runData)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := adaptorConfig(configFromContext(ctx))

			return runSession(ctx, out, cfg, init, runs)
		},
	}

	cmd.Flags().StringVar(&initData, "init-data", "", "Session init data (JSON, YAML or file://path)")
	cmd.Flags().StringArrayVar(&runData, "run-data", nil, "Run data; repeat for several runs in one session")
	_ = cmd.MarkFlagRequired("init-data")

	return cmd
}

func runSession(ctx context.Context, out *output.Writer, cfg adaptor.Config, init map[string]any, runs []map[string]any) error {
	logger := observability.FromContext(ctx)

	c, err := adaptor.New(adaptor.Options{
		Config:   cfg,
		Reporter: adaptor.NewLineReporter(out.Out),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	out.Info("Starting Unreal session with %d run(s)", len(runs))

	err = adaptor.RunSession(ctx, c, init, runs)

	logger.Info("Session finished",
		slog.String("event.type", "session.finish"),
		slog.String("adaptor.state", c.State().String()),
		slog.Bool("success", err == nil),
	)

	if err != nil {
		return sessionError(ctx, cfg, err)
	}

	out.Success("Session complete")

	return nil
}
