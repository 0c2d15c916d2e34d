package source

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/actinodb/migrate/script"
)

// FS reads upgrade scripts from the root of a file system, typically an
// embedded one.
type FS struct {
	fsys fs.FS
}

func NewFS(fsys fs.FS) FS {
	return FS{fsys: fsys}
}

func (f FS) Scripts(ctx context.Context) ([]script.Script, error) {
	entries, err := fs.ReadDir(f.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read script fs: %w", err)
	}

	var scripts []script.Script
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, ok := script.ParseFilename(entry.Name()); !ok {
			continue
		}
		contents, err := fs.ReadFile(f.fsys, entry.Name())
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
