package main

import (
	"github.com/spf13/cobra"

	"github.com/enginefarm/unreal-adaptor/internal/doctor"
	clierrors "github.com/enginefarm/unreal-adaptor/internal/errors"
	"github.com/enginefarm/unreal-adaptor/internal/output"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the worker's adaptor setup",
		Long: `Run diagnostic checks on the render worker: the engine executable, the
engine client script, the IPC socket directory, the payload schemas and the
config file. Exits non-zero when a check fails.`,
		Example: `  unreal-adaptor doctor
  UNREAL_ADAPTOR_ENGINE_EXECUTABLE=/opt/ue/UnrealEditor-Cmd unreal-adaptor doctor`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := configFromContext(cmd.Context())
			acfg := adaptorConfig(cfg)

			runner := doctor.New(doctor.Options{
				Engine:     acfg.Engine,
				SocketDir:  acfg.SocketDir,
				ConfigFile: cfg.File(),
			})
			results := runner.Run(cmd.Context())

			renderDoctor(out, results)

			if _, failed, _ := doctor.Summary(results); failed > 0 {
				return clierrors.New(clierrors.ExitConfig, "doctor found problems").
					WithHint("Fix the failed checks above and rerun 'unreal-adaptor doctor'")
			}

			return nil
		},
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	out.Println("unreal-adaptor doctor")
	out.Println("=====================")
	out.Println()

	doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	passed, failed, warnings := doctor.Summary(results)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}
