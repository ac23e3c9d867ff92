package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/annostore/internal/annotations"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	ReadOptions
	OnlyID bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{ReadOptions: ReadOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "query <file|->",
		Short: "Query annotations by field values",
		Long: `Query annotations with a JSON object of field constraints.

Scalars match by equality and lists by membership; all constraints of an
object must hold. A list of objects returns the union of their matches
without duplicates.

Example:
  echo '{"status": ["Traced", "Roughly traced"]}' | annostore query -
  annostore query --version v1.0.0 --onlyid where.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "match the state at this version tag")
	cmd.Flags().BoolVar(&opts.Changes, "changes", false, "print every stored version of each match")
	cmd.Flags().BoolVar(&opts.OnlyID, "onlyid", false, "print matching ids only")
	cmd.Flags().StringVar(&opts.IDField, "id-field", "", "id field (default from config)")

	return cmd
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	queries, err := readRecords(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	wheres := make([]map[string]any, len(queries))
	for i, q := range queries {
		wheres[i] = q
	}

	e, err := openEnv(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	matches, err := e.engine.QueryAny(cmd.Context(), e.scope, wheres, annotations.ReadOptions{
		IDField: opts.IDField,
		Version: opts.Version,
		Changes: opts.Changes && !opts.OnlyID,
	})
	if err != nil {
		return fail(f, "query failed", err)
	}

	if opts.OnlyID {
		ids := make([]any, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		if f.Format == "json" {
			return f.Success(ids)
		}
		for _, id := range ids {
			fmt.Fprintln(f.Writer, id)
		}
		return nil
	}
	return f.Records(recordsOf(matches, opts.Changes))
}
