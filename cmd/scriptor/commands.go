package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/scriptor/config"
	"github.com/wippyai/scriptor/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	extStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <code>",
		Short: "Evaluate a script and print the settled result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.worker(ctx, nil)
			if err != nil {
				return err
			}
			defer w.Close()

			result, err := w.Eval(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(a.stdout, result)
		},
	}
}

func newPluginsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the loader plugins and the extensions they claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.options(nil)
			vm, err := runtime.New(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer vm.Close()

			fmt.Fprintln(a.stdout, titleStyle.Render("Plugins"))
			infos := vm.Plugins()
			if len(infos) == 0 {
				fmt.Fprintln(a.stdout, helpStyle.Render("no plugins in "+pluginDir(opts)))
				return nil
			}
			for _, info := range infos {
				exts := make([]string, len(info.Extensions))
				for i, e := range info.Extensions {
					exts[i] = "." + e
				}
				fmt.Fprintf(a.stdout, "%s %s\n", pathStyle.Render(info.Path), extStyle.Render(strings.Join(exts, " ")))
			}
			fmt.Fprintln(a.stdout, helpStyle.Render("extensions: "+strings.Join(vm.Registry().Extensions(), ", ")))
			return nil
		},
	}
}

func pluginDir(opts runtime.Options) string {
	if opts.PluginDir != "" {
		return opts.PluginDir
	}
	if opts.Root != "" {
		return filepath.Join(opts.Root, "loaders")
	}
	return "(none)"
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration root with its cache and loaders directories",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := config.EnsureRoot(a.cfg.Root); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, a.cfg.Root)
			return nil
		},
	}
}

// evalLine runs one REPL entry on the worker.
func evalLine(ctx context.Context, w *runtime.Worker, line string) (string, error) {
	v, err := w.Eval(ctx, line)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := printResult(&b, v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
