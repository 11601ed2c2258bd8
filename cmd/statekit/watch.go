package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/statekit/core/schema"
	"github.com/artpar/statekit/core/state"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [manifest]",
	Short: "Re-validate a manifest on every change",
	Long: `Watch a manifest file or directory and re-validate it whenever a
.yaml or .yml file changes. The config file is reloaded too, so logging
and the default extra_properties policy can change while watching.

Examples:
  statekit watch types.yaml
  statekit watch ./types`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchDebounce time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 100*time.Millisecond, "wait this long after a change before validating")
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	app, err := newApp(cmd, manifestArg(args), false)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if app.Holder != nil {
		if err := app.WatchConfig(); err != nil {
			log := app.Log()
			log.Warn().Err(err).Msg("config hot reload disabled")
		}
	}

	path := app.SchemaPath()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	check := func() {
		policy := state.Policy(app.Config().Schema.ExtraProperties)
		revalidate(out, path, policy)
	}
	check()

	return watchManifest(ctx, path, watchDebounce, check)
}

// revalidate loads and resolves the manifest and prints the outcome.
func revalidate(w io.Writer, path string, policy state.Policy) bool {
	stamp := time.Now().Format("15:04:05")

	m, err := schema.Load(path)
	if err == nil {
		_, err = schema.Resolve(m, schema.BuildOptions{ExtraProperties: policy})
	}
	if err != nil {
		fmt.Fprintf(w, "[%s] %s %s: %v\n", stamp, crossMark, path, err)
		return false
	}

	fmt.Fprintf(w, "[%s] %s %s: %d types\n", stamp, checkMark, path, len(m.Types))
	return true
}

// watchManifest calls fn after manifest files under path change, until
// ctx is done.
func watchManifest(ctx context.Context, path string, debounce time.Duration, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	target := ""
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return watcher.Add(p)
			}
			return nil
		})
	} else {
		// Watch the directory (more reliable for editors that do atomic saves)
		target = filepath.Base(path)
		err = watcher.Add(filepath.Dir(path))
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, target) {
				continue
			}
			if event.Op&fsnotify.Create != 0 && target == "" {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					watcher.Add(event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// relevant reports whether event touches a manifest file. A non-empty
// target restricts it to that file name.
func relevant(event fsnotify.Event, target string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if target != "" {
		return name == target
	}
	if event.Op&fsnotify.Create != 0 {
		if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
			return true
		}
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
