package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/artpar/statekit/adapters/metrics"
	"github.com/artpar/statekit/core/formatter"
	"github.com/artpar/statekit/core/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply [manifest]",
	Short: "Build an instance of a type and apply attributes",
	Long: `Build an instance of a manifest type, apply attributes in one set call
and print the resulting state with its change log.

Values given with --set are parsed as YAML scalars, so numbers, booleans,
null and inline lists keep their types.

Examples:
  statekit apply types.yaml --type person --set name=Ada --set born=1815-12-10
  statekit apply types.yaml --type person --file ada.yaml --output json
  statekit apply --type person --set tags='[math, poetry]' --metrics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

var (
	applyType    string
	applySet     []string
	applyUnset   []string
	applyFile    string
	applyOutput  string
	applySilent  bool
	applyMetrics bool
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVarP(&applyType, "type", "t", "", "type to instantiate (required)")
	applyCmd.Flags().StringArrayVarP(&applySet, "set", "s", nil, "attribute as key=value (repeatable)")
	applyCmd.Flags().StringArrayVar(&applyUnset, "unset", nil, "property to unset after applying (repeatable)")
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "YAML file with attributes")
	applyCmd.Flags().StringVarP(&applyOutput, "output", "o", "table", "output format (table, json, yaml)")
	applyCmd.Flags().BoolVar(&applySilent, "silent", false, "apply without emitting change events")
	applyCmd.Flags().BoolVar(&applyMetrics, "metrics", false, "print Prometheus metrics after the snapshot")
	applyCmd.MarkFlagRequired("type")
}

func runApply(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	f, err := formatter.Lookup(applyOutput)
	if err != nil {
		return err
	}

	attrs, err := collectAttributes(applyFile, applySet)
	if err != nil {
		return err
	}

	app, err := newApp(cmd, manifestArg(args), applyMetrics)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	s, err := app.NewState(applyType, nil)
	if err != nil {
		return err
	}

	log := formatter.Record(s)
	defer log.Stop()

	var opts []state.Option
	if applySilent {
		opts = append(opts, state.Silent())
	}

	if _, err := s.SetMany(attrs, opts...); err != nil {
		f.FormatError(out, err)
		return fmt.Errorf("apply attributes: %w", err)
	}
	if len(applyUnset) > 0 {
		if _, err := s.Unset(applyUnset, opts...); err != nil {
			f.FormatError(out, err)
			return fmt.Errorf("unset attributes: %w", err)
		}
	}

	snap := formatter.Capture(s)
	snap.Changes = log.Entries()
	if err := f.FormatSnapshot(out, snap, formatter.FormatOptions{}); err != nil {
		return err
	}

	if applyMetrics && app.Registry != nil {
		fmt.Fprintln(out)
		return metrics.WriteText(out, app.Registry)
	}
	return nil
}

// collectAttributes merges the attribute file with --set pairs. Pairs win.
func collectAttributes(file string, pairs []string) (map[string]any, error) {
	attrs := make(map[string]any)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read attributes: %w", err)
		}
		if err := yaml.Unmarshal(data, &attrs); err != nil {
			return nil, fmt.Errorf("parse attributes %s: %w", file, err)
		}
		if attrs == nil {
			attrs = make(map[string]any)
		}
	}

	for _, pair := range pairs {
		key, value, err := parsePair(pair)
		if err != nil {
			return nil, err
		}
		attrs[key] = value
	}
	return attrs, nil
}

// parsePair splits key=value and decodes the value as YAML.
func parsePair(pair string) (string, any, error) {
	key, raw, ok := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q: want key=value", pair)
	}

	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("invalid --set %q: %w", pair, err)
	}
	return key, value, nil
}
