package configcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/devserve/pkg/config"
)

const configLongDesc string = `Print the loaded configuration as JSON.

The output includes every alias resolved to its absolute path and the
config fingerprint, which is stable across loads of an unchanged file.

Examples:
  devserve config
  devserve config --config web/devserve.config.yaml`

const configShortDesc string = "Print the resolved configuration"

type configCommander struct {
	configPath string
}

type configOutput struct {
	Path        string            `json:"path,omitempty"`
	Config      *config.Config    `json:"config"`
	Aliases     map[string]string `json:"resolvedAliases"`
	Fingerprint string            `json:"fingerprint"`
}

func NewConfigCmd() *cobra.Command {
	cmder := &configCommander{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to the config file")

	return cmd
}

func (c *configCommander) run(_ context.Context, cmd *cobra.Command) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}

	cfg, path, err := config.LoadOrDefault(c.configPath, cwd)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	aliases, err := cfg.ResolveAliases()
	if err != nil {
		return fmt.Errorf("could not resolve aliases: %w", err)
	}

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(configOutput{
		Path:        path,
		Config:      cfg,
		Aliases:     aliases,
		Fingerprint: fingerprint,
	})
}
