// kworder CLI - inspects captured frames and recovers keyword argument order
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/chazu/kworder/manifest"
	"github.com/chazu/kworder/pkg/inspect"
)

// Version is overridden at link time.
var Version = "0.1.0-dev"

// app carries what every subcommand needs once flags and configuration
// have been resolved.
type app struct {
	configPath string
	colorMode  string
	verbose    int

	manifest  *manifest.Manifest
	extractor *inspect.Extractor
	cache     *inspect.Cache
	log       commonlog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "kworder",
		Short:         "Recover keyword argument order from compiled call sites",
		Long:          `kworder decodes captured CPython 2.7 frames and reports the keyword names each call site passes, in the order they were written.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to kworder.toml (default: search upward from the working directory)")
	root.PersistentFlags().StringVar(&a.colorMode, "color", "auto", "colorize output (auto|on|off)")
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(newDisasmCmd(a))
	root.AddCommand(newNamesCmd(a))
	root.AddCommand(newScanCmd(a))
	root.AddCommand(newCatalogCmd(a))
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) setup() error {
	m, err := a.loadManifest()
	if err != nil {
		return err
	}
	a.manifest = m

	commonlog.Configure(m.Log.Verbosity+a.verbose, m.LogFile())
	a.log = commonlog.GetLogger("kworder.cli")

	if err := applyColorMode(a.colorMode, isTerminal(os.Stdout)); err != nil {
		return err
	}

	set, err := m.InstructionSet()
	if err != nil {
		return err
	}
	opts := []inspect.Option{inspect.WithInstructionSet(set)}
	if m.Analysis.Cache {
		a.cache = inspect.NewCache(m.Analysis.CacheSize)
		opts = append(opts, inspect.WithCache(a.cache))
	}
	a.extractor = inspect.NewExtractor(opts...)
	return nil
}

func (a *app) loadManifest() (*manifest.Manifest, error) {
	if a.configPath != "" {
		return manifest.LoadFile(a.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cannot determine working directory: %w", err)
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(wd)
	}
	return m, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
