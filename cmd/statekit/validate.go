package main

import (
	"fmt"
	"io"

	"github.com/artpar/statekit/bootstrap"
	"github.com/artpar/statekit/core/formatter"
	"github.com/artpar/statekit/core/schema"
	"github.com/spf13/cobra"
)

const (
	checkMark = "✓"
	crossMark = "✗"
	warnMark  = "!"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a type manifest",
	Long: `Validate a type manifest file or directory.

Checks:
  - YAML syntax is valid
  - Type and property names are identifiers
  - extends and children name declared types
  - No inheritance cycles
  - Defaults, allow-lists and constraints are well formed
  - Every type resolves into a schema

Examples:
  statekit validate types.yaml
  statekit validate ./types --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var (
	validateOutput string
	validateQuiet  bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "table", "output format (table, json, yaml)")
	validateCmd.Flags().BoolVarP(&validateQuiet, "quiet", "q", false, "only report errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	f, err := formatter.Lookup(validateOutput)
	if err != nil {
		return err
	}

	app, err := newApp(cmd, manifestArg(args), false)
	if err != nil {
		fmt.Fprintf(out, "  %s Manifest valid\n", crossMark)
		return err
	}
	defer app.Shutdown()

	if validateQuiet {
		return nil
	}

	fmt.Fprintf(out, "  %s Manifest valid: %s (%d types)\n", checkMark, app.SchemaPath(), len(app.TypeNames()))
	for _, w := range schema.Lint(app.Manifest(), []string{"string", "date", "array", "object"}) {
		fmt.Fprintf(out, "  %s %s\n", warnMark, w)
	}
	fmt.Fprintln(out)

	return describeTypes(out, app, f)
}

func describeTypes(w io.Writer, app *bootstrap.App, f formatter.Formatter) error {
	infos := make([]formatter.TypeInfo, 0, len(app.TypeNames()))
	for _, name := range app.TypeNames() {
		t, err := app.Type(name)
		if err != nil {
			return err
		}
		info, err := formatter.Describe(t)
		if err != nil {
			return fmt.Errorf("type %q: %w", name, err)
		}
		infos = append(infos, info)
	}
	return f.FormatTypes(w, infos, formatter.FormatOptions{})
}
