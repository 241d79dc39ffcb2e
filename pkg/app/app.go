package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/denhub/pkg/log"
)

// EnvPrefix prefixes the environment variables that override flags, so that
// --http.addr can be set with DENHUB_HTTP_ADDR.
const EnvPrefix = "DENHUB"

// optionsFlagName names the flag pointing at an options file. Keys of the
// file are flag names, nested on dots: {"http": {"addr": ":9465"}}.
const optionsFlagName = "options"

// RunFunc defines the application's startup callback function.
type RunFunc func() error

// NamedFlagSetOptions abstracts configuration options for reading parameters
// from the command line in named sections.
type NamedFlagSetOptions interface {
	// Flags returns the command line flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in default values derived from other options.
	Complete() error

	// Validate validates the options.
	Validate() error
}

// LogOptions is implemented by options that carry logger settings. The
// standard logger is initialized from them before RunFunc is called.
type LogOptions interface {
	LoggerOptions() *log.Options
}

// App is the main structure of a cli application.
type App struct {
	name        string
	shortDesc   string
	description string
	version     string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	silence     bool
	noConfig    bool
	optionsFile string
	args        cobra.PositionalArgs
	commands    []*cobra.Command
	v           *viper.Viper
	cmd         *cobra.Command
}

// NewApp creates a new application instance based on the given application
// name, short description and options.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		v:         viper.New(),
	}

	for _, o := range opts {
		o(a)
	}

	a.buildCommand()

	return a
}

// Command returns the cobra command of the application.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits with status 1 on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:   a.name,
		Short: a.shortDesc,
		Long:  a.description,
		// Errors are printed once by Run.
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
		Version:       a.version,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.Flags().SetNormalizeFunc(cliflag.WordSepNormalizeFunc)

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
		for _, name := range fss.Order {
			cmd.Flags().AddFlagSet(fss.FlagSets[name])
		}
	}

	global := fss.FlagSet("Global")
	global.BoolP("help", "h", false, fmt.Sprintf("Help for %s.", a.name))
	if a.options != nil && !a.noConfig {
		global.StringVar(&a.optionsFile, optionsFlagName, "", "Read options from a YAML or JSON file. Command line flags take precedence.")
	}
	cmd.Flags().AddFlagSet(global)

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	if len(a.commands) > 0 {
		cmd.AddCommand(a.commands...)
	}
	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if a.options != nil {
		if err := a.bindOptions(cmd.Flags()); err != nil {
			return err
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
		if lo, ok := a.options.(LogOptions); ok {
			log.Init(lo.LoggerOptions())
		}
	}

	if !a.silence {
		log.Info("Starting application", "name", a.name, "version", a.version)
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			log.Debug("Flag value", "name", f.Name, "value", f.Value.String())
		})
	}

	return a.runFunc()
}

// bindOptions fills the flags not set on the command line from DENHUB_*
// environment variables, then from the options file.
func (a *App) bindOptions(fs *pflag.FlagSet) error {
	if a.optionsFile != "" {
		a.v.SetConfigFile(a.optionsFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read options file %s: %w", a.optionsFile, err)
		}
	}
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(fs); err != nil {
		return err
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == optionsFlagName || !a.v.IsSet(f.Name) {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if err := sv.Replace(a.stringSlice(f.Name)); err != nil {
				errs = append(errs, fmt.Errorf("%s (%s_%s): %w", f.Name, EnvPrefix, envKey(f.Name), err))
			}
			return
		}
		val := a.v.GetString(f.Name)
		if val == f.Value.String() {
			return
		}
		if err := fs.Set(f.Name, val); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s_%s): %w", f.Name, EnvPrefix, envKey(f.Name), err))
		}
	})

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// stringSlice reads a list value. Environment variables hold it comma
// separated.
func (a *App) stringSlice(key string) []string {
	if s, ok := a.v.Get(key).(string); ok {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return a.v.GetStringSlice(key)
}

func envKey(flag string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(flag))
}
