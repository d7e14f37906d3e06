package ingestion

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
)

const csvExtension = ".csv"

// ListCSVFiles returns the base names of the regular files in dir ending in .csv, in any case.
// Subdirectories are not descended into.
func ListCSVFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, models.NewLoadError(models.ErrDirectoryList, dir, "error listing directory", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), csvExtension) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// PendingFiles returns the source files whose exact name is not already in the target.
func PendingFiles(source, target []string) []string {
	archived := make(map[string]struct{}, len(target))
	for _, name := range target {
		archived[name] = struct{}{}
	}

	pending := make([]string, 0, len(source))
	for _, name := range source {
		if _, ok := archived[name]; ok {
			continue
		}
		pending = append(pending, name)
	}
	return pending
}

// EnsureDir makes sure path exists as a directory, creating it and its parents if needed.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("error checking directory %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", path, err)
	}
	return nil
}
