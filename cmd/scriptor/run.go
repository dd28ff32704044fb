package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		watch    bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <file> [arg] [args...]",
		Short: "Run an entry module and print its result",
		Long: `Run loads the entry module, calls its default (or main) export with the
optional argument and waits for every promise and host operation to finish.
All arguments after the file are visible to the script as require("os").args.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			entry := entryPath(args[0])
			var arg any
			if len(args) > 1 {
				arg = args[1]
			}

			if watch {
				return a.watch(ctx, entry, arg, args[1:], debounce)
			}
			return a.runOnce(ctx, entry, arg, args[1:])
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run when files next to the entry change")
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before a watched re-run")
	return cmd
}

// entryPath makes bare file names resolve as paths.
func entryPath(p string) string {
	if filepath.IsAbs(p) || len(p) > 0 && p[0] == '.' {
		return p
	}
	return "./" + p
}

func (a *app) runOnce(ctx context.Context, entry string, arg any, args []string) error {
	w, err := a.worker(ctx, args)
	if err != nil {
		return err
	}
	defer w.Close()

	a.log.Debug("running", zap.String("entry", entry), zap.String("worker", w.ID()))
	result, err := w.RunMain(ctx, entry, arg)
	if err != nil {
		return err
	}
	return printResult(a.stdout, result)
}

// watch runs entry, then again after every burst of changes in its
// directory, until ctx ends.
func (a *app) watch(ctx context.Context, entry string, arg any, args []string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(entry)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.cfg.Cwd, dir)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	rerun := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := a.runOnce(ctx, entry, arg, args); err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
		a.log.Info("waiting for changes", zap.String("dir", dir))

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				a.log.Debug("file event", zap.String("event", event.String()))
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case rerun <- struct{}{}:
					default:
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				a.log.Error("file watcher error", zap.Error(err))

			case <-rerun:
				break wait
			}
		}
	}
}

// printResult writes strings as is and other values as JSON. Undefined
// results print nothing.
func printResult(w io.Writer, v any) error {
	switch r := v.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(w, r)
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, err = fmt.Fprintln(w, v)
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
