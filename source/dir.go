package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/actinodb/migrate/script"
)

// Dir reads upgrade scripts from a directory on disk. Files whose names do
// not match the upgrade pattern are ignored.
type Dir struct {
	Path string
}

func (d Dir) Scripts(ctx context.Context) ([]script.Script, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read script directory: %w", err)
	}

	var scripts []script.Script
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, ok := script.ParseFilename(entry.Name()); !ok {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(d.Path, entry.Name()))
		if err != nil {
			return nil, err
		}
		s, err := script.Parse(entry.Name(), contents)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}
