//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/sift/internal/errors"
)

// Windows has no O_NOFOLLOW; ValidatePath has already rejected symlinks.

func createExportFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
}

func openImportFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewFileNotFound(path)
	}
	return f, err
}
