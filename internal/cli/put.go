package cli

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/version"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Version     string
	Conditional []string
	Replace     bool
	IDField     string
	User        string
}

// PutResult describes one committed write.
type PutResult struct {
	ID      any    `json:"id"`
	Key     string `json:"key"`
	Version string `json:"version"`
	Outcome string `json:"outcome"`
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Write annotations",
		Long: `Write one JSON annotation object or a list of them.

Without --version the write updates the current head in place. A version
newer than the head promotes the payload and archives the old head; an
older version is inserted into the archived chain.

Writes are applied in order and stop at the first failure; the writes
that committed before it are reported.

Example:
  annostore put --dataset hemibrain --version v1.2.0 neurons.json
  echo '{"bodyid": 7, "status": "Traced"}' | annostore put -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "target version tag (default: head version)")
	cmd.Flags().StringSliceVar(&opts.Conditional, "conditional", nil, "fields kept when the head already holds a value")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "drop head fields absent from the payload")
	cmd.Flags().StringVar(&opts.IDField, "id-field", "", "payload field holding the id (default from config)")
	cmd.Flags().StringVar(&opts.User, "user", "", "writer identity (default: OS user)")

	return cmd
}

func runPut(opts *PutOptions, path string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	payloads, err := readRecords(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	e, err := openEnv(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	who := opts.User
	if who == "" {
		if u, err := user.Current(); err == nil {
			who = u.Username
		}
	}

	results, err := e.engine.WriteMany(cmd.Context(), e.scope, payloads, annotations.WriteOptions{
		IDField:     opts.IDField,
		Version:     opts.Version,
		Conditional: opts.Conditional,
		Replace:     opts.Replace,
		User:        who,
	})
	out := make([]PutResult, len(results))
	for i, res := range results {
		out[i] = PutResult{
			ID:      res.ID,
			Key:     res.Key,
			Version: version.Format(res.Version),
			Outcome: string(res.Outcome),
		}
	}
	if f.Format != "json" {
		for _, r := range out {
			fmt.Fprintf(f.Writer, "%-8s %v %s (%s)\n", r.Outcome, r.ID, r.Version, r.Key)
		}
	}
	if err != nil {
		return fail(f, fmt.Sprintf("write failed after %d of %d", len(results), len(payloads)), err)
	}
	if f.Format == "json" {
		return f.Success(out)
	}
	f.VerboseLog("wrote %d annotation(s) to %s", len(out), e.scope)
	return nil
}
