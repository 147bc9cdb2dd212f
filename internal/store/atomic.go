package store

import (
	"os"

	"github.com/facebookgo/atomicfile"
)

// WriteFile replaces path with data. Readers see either the old or the new content.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := atomicfile.New(path, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return err
	}
	return f.Close()
}
