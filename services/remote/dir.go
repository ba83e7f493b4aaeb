package remotesvc

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DirStore serves exports from a local directory.
type DirStore struct {
	Root string
}

var _ ObjectStore = DirStore{}

func (s DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	return data, errors.Wrapf(err, "reading %s", key)
}

func (s DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.Root, filepath.FromSlash(prefix)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", prefix)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
