package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autopeer-io/denhub/cmd/denhub-device-generator/app/options"
	"github.com/autopeer-io/denhub/internal/generator"
	"github.com/autopeer-io/denhub/pkg/app"
	"github.com/autopeer-io/denhub/pkg/device"

	// Command modules listed by the commands subcommand.
	_ "github.com/autopeer-io/denhub/pkg/modules/sysinfo"
)

const (
	commandName = "denhub-device-generator"
	commandDesc = `Scaffold a denhub device project.

With --init, a wizard asks for the device identity and writes config.json.
Then, or without --init, the code generator writes main.go when missing and
appends a handler stub to handler.go for every command of config.json that
has none yet.`
)

func NewApp() *app.App {
	opts := options.NewGeneratorOptions()
	application := app.NewApp(
		commandName,
		"Scaffold a denhub device project",
		app.WithDescription(commandDesc),
		app.WithVersion(device.Version),
		app.WithOptions(opts),
		app.WithNoConfig(),
		app.WithSilence(),
		app.WithDefaultValidArgs(),
		app.WithCommands(newCommandsCommand(opts)),
		app.WithRunFunc(run(opts, os.Stdin, os.Stdout)),
	)
	return application
}

func run(opts *options.GeneratorOptions, in io.Reader, out io.Writer) app.RunFunc {
	return func() error {
		if opts.Init {
			done, err := runWizard(opts, in, out)
			if err != nil || done {
				return err
			}
		}

		cfg, err := device.LoadConfig(opts.Config)
		if err != nil {
			return err
		}
		return generate(cfg, opts, out)
	}
}

// runWizard reports done when the user does not want code generation.
func runWizard(opts *options.GeneratorOptions, in io.Reader, out io.Writer) (bool, error) {
	old, err := generator.LoadExisting(opts.Config)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", opts.Config, err)
	}

	w, err := generator.RunWizard(old, in, out)
	if err != nil {
		return false, err
	}
	if w.Aborted {
		return true, nil
	}
	if w.Write {
		if opts.DryRun {
			fmt.Fprintf(out, "--- %s\n%s", opts.Config, w.Preview())
		} else {
			if err := generator.WriteConfig(opts.Config, []byte(w.Preview())); err != nil {
				return false, err
			}
			fmt.Fprintf(out, "Wrote %s\n", opts.Config)
		}
	}
	return !w.Generate, nil
}

func generate(cfg *device.Config, opts *options.GeneratorOptions, out io.Writer) error {
	res, err := generator.Generate(cfg, opts.Dir)
	if err != nil {
		return err
	}

	for _, f := range []generator.File{res.Main, res.Handler} {
		switch {
		case !f.Changed:
			fmt.Fprintf(out, "Unchanged %s\n", f.Path)
		case opts.DryRun:
			fmt.Fprintf(out, "--- %s\n%s\n", f.Path, f.Content)
		}
	}
	if opts.DryRun {
		return nil
	}
	if err := res.Write(); err != nil {
		return err
	}

	for _, name := range res.Added {
		fmt.Fprintf(out, "Added handler for %s\n", name)
	}
	fmt.Fprintln(out, "All was completed. Run it with: go mod tidy && go run .")
	return nil
}

func newCommandsCommand(opts *options.GeneratorOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the commands of the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Complete(); err != nil {
				return err
			}
			cfg, err := device.LoadConfig(opts.Config)
			if err != nil {
				return err
			}
			return generator.PrintCommands(cmd.OutOrStdout(), cfg, device.Modules())
		},
	}
	cmd.Flags().StringVar(&opts.Dir, "dir", opts.Dir, "Directory of the device project.")
	cmd.Flags().StringVar(&opts.Config, "config", opts.Config, "Path to config.json. Defaults to config.json in --dir.")
	return cmd
}
