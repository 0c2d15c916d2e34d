// Package source loads upgrade scripts from the places they are published:
// a directory, an embedded file system, or an S3 prefix.
package source

import (
	"context"

	"github.com/actinodb/migrate/script"
)

// Source lists and parses the upgrade scripts at one location.
type Source interface {
	Scripts(ctx context.Context) ([]script.Script, error)
}

// Load gathers scripts from every source in order. Duplicate or gapped
// version pairs are not resolved here; chain construction rejects them.
func Load(ctx context.Context, sources ...Source) ([]script.Script, error) {
	var scripts []script.Script
	for _, src := range sources {
		batch, err := src.Scripts(ctx)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, batch...)
	}
	return scripts, nil
}
