package apiserver

import (
	"errors"
	"os"
)

// readDirNames lists the base names of the regular files directly
// under dir, used by the capture inventory endpoint.
func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
