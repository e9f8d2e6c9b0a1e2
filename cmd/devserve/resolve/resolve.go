package resolvecmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/devserve/pkg/alias"
	"github.com/papercomputeco/devserve/pkg/config"
)

const resolveLongDesc string = `Resolve an aliased import specifier to an absolute path.

The alias table comes from resolve.alias in the config file; relative
targets are resolved against the config file's directory, never the
current working directory.

Examples:
  devserve resolve @/components/App.vue
  devserve resolve --config web/devserve.config.toml @`

const resolveShortDesc string = "Resolve an aliased specifier"

type resolveCommander struct {
	configPath string
}

func NewResolveCmd() *cobra.Command {
	cmder := &resolveCommander{}

	cmd := &cobra.Command{
		Use:   "resolve <specifier>",
		Short: resolveShortDesc,
		Long:  resolveLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to the config file")

	return cmd
}

func (c *resolveCommander) run(_ context.Context, cmd *cobra.Command, specifier string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}

	cfg, _, err := config.LoadOrDefault(c.configPath, cwd)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	table, err := cfg.ResolveAliases()
	if err != nil {
		return fmt.Errorf("could not resolve aliases: %w", err)
	}

	resolver, err := alias.New(table, 0)
	if err != nil {
		return err
	}

	path, ok := resolver.Resolve(specifier)
	if !ok {
		return fmt.Errorf("no alias matches %q", specifier)
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
