package main

import (
	"fmt"
	"os"

	"github.com/artpar/statekit/bootstrap"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "statekit",
	Short: "Typed, observable state objects from declarative manifests",
	Long: `statekit builds typed state objects from YAML type manifests.

Types declare properties with data types, defaults, allow-lists and
constraints. Instances coerce and validate every write and emit change
events.

Commands:
  statekit validate types.yaml              # Check a manifest
  statekit apply types.yaml --type person   # Build an instance and set values
  statekit watch types/                     # Re-validate on every change`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "statekit.yaml", "config file path (YAML or TOML)")
}

// newApp builds the App for a command. manifest overrides schema.path.
func newApp(cmd *cobra.Command, manifest string, metrics bool) (*bootstrap.App, error) {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		SchemaPath: manifest,
		LogOutput:  cmd.ErrOrStderr(),
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	if app.SchemaPath() == "" {
		app.Shutdown()
		return nil, fmt.Errorf("no manifest: pass one as an argument or set schema.path")
	}
	return app, nil
}

func manifestArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
