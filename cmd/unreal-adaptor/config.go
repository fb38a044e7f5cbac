package main

import (
	"github.com/spf13/cobra"

	"github.com/enginefarm/unreal-adaptor/internal/config"
	clierrors "github.com/enginefarm/unreal-adaptor/internal/errors"
	"github.com/enginefarm/unreal-adaptor/internal/output"
)

// SettingInfo is the JSON form of one configuration key.
type SettingInfo struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Description string `json:"description"`
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify unreal-adaptor configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long: `Display every configuration key with its effective value, after the config
file and UNREAL_ADAPTOR_* environment overrides are applied.`,
		Example: `  unreal-adaptor config list
  unreal-adaptor config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := configFromContext(cmd.Context())

			settings := config.Settings()
			infos := make([]SettingInfo, 0, len(settings))

			for _, s := range settings {
				infos = append(infos, SettingInfo{
					Key:         s.Key,
					Value:       cfg.Get(s.Key),
					Default:     s.Default,
					Description: s.Description,
				})
			}

			if out.JSON {
				return out.PrintJSON(infos)
			}

			if file := cfg.File(); file != "" {
				out.Muted("# %s", file)
			}

			for _, info := range infos {
				out.Print("%s = %v\n", info.Key, info.Value)
			}

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the effective value of a single configuration key.`,
		Example: `  unreal-adaptor config get engine.executable`,
		Args:    exactArgs("<key>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]

			if _, ok := config.Lookup(key); !ok {
				return clierrors.UnknownConfigKey(key)
			}

			value := configFromContext(cmd.Context()).Get(key)

			if out.JSON {
				return out.PrintJSON(map[string]any{key: value})
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Set a configuration value",
		Long:    `Set a configuration key to the given value. The value is persisted to the config file.`,
		Example: `  unreal-adaptor config set engine.executable /opt/UE_5.4/Engine/Binaries/Linux/UnrealEditor-Cmd`,
		Args:    exactArgs("<key>", "<value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			if _, ok := config.Lookup(key); !ok {
				return clierrors.UnknownConfigKey(key)
			}

			if err := configFromContext(cmd.Context()).Set(key, value); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}
