package filestore

import (
	"context"
	"errors"
	"io/fs"
)

// WalkFunc is called by [Walk] for every visited file and directory. Returning
// fs.SkipDir from a directory skips its contents; returning fs.SkipAll stops
// the walk without error.
type WalkFunc func(path string, info *EntryInfo, err error) error

// Walk visits the tree rooted at root depth first, root included. It works
// with any [StorageEngine] through Stat and ReadDir.
func Walk(ctx context.Context, engine StorageEngine, root string, fn WalkFunc) error {
	info, err := engine.Stat(ctx, root)
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = walk(ctx, engine, root, info, fn)
	}
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func walk(ctx context.Context, engine StorageEngine, path string, info *EntryInfo, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !info.IsDir {
		return fn(path, info, nil)
	}

	if err := fn(path, info, nil); err != nil {
		return err
	}

	entries, err := engine.ReadDir(ctx, path)
	if err != nil {
		if err = fn(path, nil, err); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		err := walk(ctx, engine, entry.Path, entry, fn)
		if errors.Is(err, fs.SkipDir) {
			if entry.IsDir {
				continue
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
