package main

import (
	"os"

	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/devserve/cmd/devserve/config"
	resolvecmder "github.com/papercomputeco/devserve/cmd/devserve/resolve"
	servecmder "github.com/papercomputeco/devserve/cmd/devserve/serve"
)

const rootLongDesc string = `devserve is a development server for front-end projects.

It reads a devserve.config.{toml,jsonc,json,yaml} declaration, activates
the listed plugins, resolves path aliases relative to the config file,
and forwards proxied URL prefixes to another origin while serving every
other path from the project root.`

func main() {
	cmd := &cobra.Command{
		Use:           "devserve",
		Short:         "Front-end development server",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(resolvecmder.NewResolveCmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
