package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/record"
)

// ReadOptions holds flags shared by the read commands.
type ReadOptions struct {
	*RootOptions
	Version string
	Changes bool
	IDField string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <ids>",
		Short: "Fetch annotations by id",
		Long: `Fetch annotations by a comma-separated list of ids.

With --version each id resolves to the newest state at or below that
tag; ids whose history starts after it are omitted. With --changes every
stored version of each id is printed, newest first.

Example:
  annostore get 7
  annostore get 7,8,9 --version v1.0.0
  annostore get 7 --changes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "read the state at this version tag")
	cmd.Flags().BoolVar(&opts.Changes, "changes", false, "print every stored version")
	cmd.Flags().StringVar(&opts.IDField, "id-field", "", "id field (default from config)")

	return cmd
}

func runGet(opts *ReadOptions, raw string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ids, err := annotations.ParseIDs(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid ids", err)
	}

	e, err := openEnv(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	matches, err := e.engine.Fetch(cmd.Context(), e.scope, ids, annotations.ReadOptions{
		IDField: opts.IDField,
		Version: opts.Version,
		Changes: opts.Changes,
	})
	if err != nil {
		return fail(f, "fetch failed", err)
	}
	if len(matches) == 0 && len(ids) == 1 {
		return fail(f, "fetch failed", &annotations.Error{
			Code: annotations.CodeNotFound, Op: "get", ID: raw,
			Message: "no matching annotation",
		})
	}
	return f.Records(recordsOf(matches, opts.Changes))
}

// NewChangesCommand creates the changes command.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changes <id>",
		Short: "Print the version history of one id",
		Long: `Print the head and every archived record of one id, newest first.

Example:
  annostore changes 7 --dataset hemibrain`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runChanges(opts *RootOptions, raw string, cmd *cobra.Command) error {
	f := formatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ids, err := annotations.ParseIDs(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid id", err)
	}
	if len(ids) != 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("changes takes one id, got %d", len(ids)))
	}

	e, err := openEnv(opts, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	revs, err := e.engine.Changes(cmd.Context(), e.scope, ids[0], "")
	if err != nil {
		return fail(f, "changes failed", err)
	}
	recs := make([]record.Record, len(revs))
	for i, rev := range revs {
		recs[i] = rev.Public()
	}
	return f.Records(recs)
}

// recordsOf flattens matches into the records to print.
func recordsOf(matches []annotations.Match, changes bool) []record.Record {
	var recs []record.Record
	for _, m := range matches {
		if !changes {
			recs = append(recs, m.Revision.Public())
			continue
		}
		for _, rev := range m.Changes {
			recs = append(recs, rev.Public())
		}
	}
	return recs
}
