package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/enginefarm/unreal-adaptor/internal/config"
	"github.com/enginefarm/unreal-adaptor/internal/engineclient"
	"github.com/enginefarm/unreal-adaptor/internal/handler"
	"github.com/enginefarm/unreal-adaptor/internal/observability"
)

func newEngineClientCmd() *cobra.Command {
	var renderCommand []string

	cmd := &cobra.Command{
		Use:    "engine-client",
		Short:  "Run the engine-side action loop",
		Hidden: true,
		Long: `Poll the adaptor socket named by UNREAL_ADAPTOR_SOCKET_PATH for actions and
execute them until the adaptor sends close. Stand-in for the in-editor client
when the engine is driven by an external render program.`,
		Example: `  unreal-adaptor engine-client --render-command /opt/farm/mrq-render`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(renderCommand) == 0 {
				renderCommand = configFromContext(ctx).GetArgs(config.KeyEngineRenderCmd)
			}

			return runEngineClient(ctx, cmd.OutOrStdout(), renderCommand)
		},
	}

	cmd.Flags().StringArrayVar(&renderCommand, "render-command", nil, "Render program and leading arguments (default engine.render_command)")

	return cmd
}

func runEngineClient(ctx context.Context, out io.Writer, renderCommand []string) error {
	socket, err := engineclient.SocketPathFromEnv()
	if err != nil {
		return err
	}

	render := &engineclient.RenderExecutor{Out: out, Command: renderCommand}

	client, err := engineclient.New(engineclient.Options{
		SocketPath: socket,
		Out:        out,
		Executors: map[string]handler.Executor{
			handler.NameRender: render,
			handler.NameCustom: &engineclient.ScriptExecutor{Out: out},
		},
		Logger: observability.FromContext(ctx),
	})
	if err != nil {
		return err
	}

	render.Paths = client.IPC()

	return client.Run(ctx)
}
