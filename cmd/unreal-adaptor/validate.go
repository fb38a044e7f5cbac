package main

import (
	"github.com/spf13/cobra"

	"github.com/enginefarm/unreal-adaptor/internal/adaptor"
	"github.com/enginefarm/unreal-adaptor/internal/output"
)

// ValidationReport is the JSON form of a validate run.
type ValidationReport struct {
	InitData bool `json:"init_data"`
	RunData  int  `json:"run_data"`
}

func newValidateCmd() *cobra.Command {
	var (
		initData string
		runData  []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate init and run payloads",
		Long: `Check init and run payloads against the adaptor's schemas without starting
Unreal. Payloads are JSON or YAML, given inline or as file://<path>.`,
		Example: `  unreal-adaptor validate --init-data file://init.yaml
  unreal-adaptor validate --init-data file://init.yaml --run-data file://run.yaml --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			v, err := adaptor.NewValidator()
			if err != nil {
				return err
			}

			if initData == "" && len(runData) == 0 {
				return usageError(cmd, "nothing to validate")
			}

			report := ValidationReport{}

			if initData != "" {
				init, err := readPayload(initData)
				if err != nil {
					return err
				}

				if err := v.ValidateInit(init); err != nil {
					return sessionError(cmd.Context(), adaptor.Config{}, err)
				}

				report.InitData = true
			}

			runs, err := readPayloads(runData)
			if err != nil {
				return err
			}

			for _, run := range runs {
				if err := v.ValidateRun(run); err != nil {
					return sessionError(cmd.Context(), adaptor.Config{}, err)
				}

				report.RunData++
			}

			if out.JSON {
				return out.PrintJSON(report)
			}

			if report.InitData {
				out.Success("init data is valid")
			}

			if report.RunData > 0 {
				out.Success("%d run data payload(s) valid", report.RunData)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&initData, "init-data", "", "Session init data (JSON, YAML or file://path)")
	cmd.Flags().StringArrayVar(&runData, "run-data", nil, "Run data; repeat to validate several")

	return cmd
}
