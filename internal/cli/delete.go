package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/annostore/internal/annotations"
)

// DeleteResult reports how many documents a delete removed.
type DeleteResult struct {
	ID      any `json:"id"`
	Deleted int `json:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an id and its whole history",
		Long: `Remove the head and every archived record of one id.

This is an administrative operation outside the versioning model. It is
not transactional; rerun it if it fails part way.

Example:
  annostore delete 7 --dataset hemibrain`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDelete(opts *RootOptions, raw string, cmd *cobra.Command) error {
	f := formatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ids, err := annotations.ParseIDs(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid id", err)
	}
	if len(ids) != 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("delete takes one id, got %d", len(ids)))
	}

	e, err := openEnv(opts, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	removed, err := e.engine.Delete(cmd.Context(), e.scope, ids[0])
	if err != nil {
		return fail(f, "delete failed", err)
	}
	if f.Format == "json" {
		return f.Success(DeleteResult{ID: ids[0], Deleted: removed})
	}
	fmt.Fprintf(f.Writer, "deleted %v (%d documents)\n", ids[0], removed)
	return nil
}
