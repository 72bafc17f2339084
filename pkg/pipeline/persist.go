package pipeline

import (
	"os"

	"github.com/cockroachdb/errors"
)

// WriteScriptFile writes script verbatim to path, replacing any existing file
func WriteScriptFile(path, script string) error {
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to write script to %s", path),
			"check that the directory exists and is writable")
	}
	return nil
}
