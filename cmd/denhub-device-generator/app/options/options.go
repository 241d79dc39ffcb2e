package options

import (
	"fmt"
	"os"
	"path/filepath"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/denhub/pkg/app"
	"github.com/autopeer-io/denhub/pkg/device"
)

type GeneratorOptions struct {
	Init   bool   `json:"init" mapstructure:"init"`
	Dir    string `json:"dir" mapstructure:"dir"`
	Config string `json:"config" mapstructure:"config"`
	DryRun bool   `json:"dry-run" mapstructure:"dry-run"`
}

var _ app.NamedFlagSetOptions = (*GeneratorOptions)(nil)

func NewGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{
		Dir: ".",
	}
}

func (o *GeneratorOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	fs := fss.FlagSet("Generator")
	fs.BoolVarP(&o.Init, "init", "i", o.Init, "Run the configuration wizard before the code generator.")
	fs.StringVar(&o.Dir, "dir", o.Dir, "Directory of the device project.")
	fs.StringVar(&o.Config, "config", o.Config, "Path to config.json. Defaults to config.json in --dir.")
	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun, "Print the generated files instead of writing them.")

	return fss
}

func (o *GeneratorOptions) Complete() error {
	if o.Config == "" {
		o.Config = filepath.Join(o.Dir, device.ConfigFileName)
	}
	return nil
}

func (o *GeneratorOptions) Validate() error {
	errs := []error{}

	if fi, err := os.Stat(o.Dir); err != nil {
		errs = append(errs, fmt.Errorf("--dir: %w", err))
	} else if !fi.IsDir() {
		errs = append(errs, fmt.Errorf("--dir: %s is not a directory", o.Dir))
	}

	return utilerrors.NewAggregate(errs)
}
