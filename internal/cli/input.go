package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/record"
)

// readRecords reads a JSON object or list of objects from path, or from
// stdin when path is "-".
func readRecords(path string, stdin io.Reader) ([]record.Record, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read input", err)
	}
	recs, _, err := record.DecodeMany(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid input %s", path), err)
	}
	return recs, nil
}

// fail reports an engine error in the configured format and returns the
// matching exit error.
func fail(f *OutputFormatter, message string, err error) error {
	if f.Format == "json" {
		code := string(annotations.CodeOf(err))
		if code == "" {
			code = string(annotations.CodeStorage)
		}
		if outErr := f.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
	}
	return engineExitError(message, err)
}
