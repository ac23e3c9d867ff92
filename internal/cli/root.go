package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string
	Database   string
	Backend    string
	Dataset    string
	Kind       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the annostore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "annostore",
		Short: "annostore - versioned annotation store",
		Long: `A versioned annotation store for connectomics datasets.

Each annotation id keeps a head record plus an ordered chain of archived
records, one per dataset version, so reads can ask for the state at any
release tag.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")
	flags.StringVar(&opts.Database, "db", "", "database path (overrides config)")
	flags.StringVar(&opts.Backend, "backend", "", "storage backend: sqlite|badger (overrides config)")
	flags.StringVar(&opts.Dataset, "dataset", "default", "dataset of the annotations")
	flags.StringVar(&opts.Kind, "kind", "neurons", "record kind of the annotations")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewChangesCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
