package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/vaultiq/mediavault/common/tenantpath"
)

// Disk is one named storage backend for committed media. Every key is
// forced through the tenant path resolver before it touches the backend.
type Disk interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (os.FileInfo, error)
	DirExists(ctx context.Context, dir string) (bool, error)
	DeleteDir(ctx context.Context, dir string) error
}

// LocalDisk is a billy-backed disk. Production uses osfs rooted at the
// disk's configured directory; tests use memfs.
type LocalDisk struct {
	name string
	fs   billy.Filesystem
}

// NewLocalDisk creates a disk over the given filesystem
func NewLocalDisk(name string, fs billy.Filesystem) *LocalDisk {
	return &LocalDisk{name: name, fs: fs}
}

func (d *LocalDisk) Name() string { return d.name }

// Put writes a file at key, creating parent directories.
func (d *LocalDisk) Put(ctx context.Context, key string, r io.Reader) error {
	clean, err := tenantpath.Sanitize(key)
	if err != nil {
		return err
	}

	if err := d.fs.MkdirAll(path.Dir(clean), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", clean, err)
	}

	f, err := d.fs.Create(clean)
	if err != nil {
		return fmt.Errorf("create %s: %w", clean, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", clean, err)
	}

	return f.Close()
}

// Open opens the file at key for reading.
func (d *LocalDisk) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := tenantpath.Sanitize(key)
	if err != nil {
		return nil, err
	}

	f, err := d.fs.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", clean, err)
	}
	return f, nil
}

// Stat returns file info for key.
func (d *LocalDisk) Stat(ctx context.Context, key string) (os.FileInfo, error) {
	clean, err := tenantpath.Sanitize(key)
	if err != nil {
		return nil, err
	}
	return d.fs.Stat(clean)
}

// DirExists reports whether dir exists on the disk.
func (d *LocalDisk) DirExists(ctx context.Context, dir string) (bool, error) {
	clean, err := tenantpath.Sanitize(dir)
	if err != nil {
		return false, err
	}

	if _, err := d.fs.Stat(clean); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteDir removes dir recursively. Removing a directory that is already
// gone is a no-op, which keeps cleanup runs idempotent.
func (d *LocalDisk) DeleteDir(ctx context.Context, dir string) error {
	clean, err := tenantpath.Sanitize(dir)
	if err != nil {
		return err
	}

	if err := util.RemoveAll(d.fs, clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", clean, err)
	}
	return nil
}

// Registry resolves disk names to configured disks.
type Registry struct {
	disks map[string]Disk
}

// NewRegistry creates a registry from the given disks
func NewRegistry(disks ...Disk) *Registry {
	m := make(map[string]Disk, len(disks))
	for _, d := range disks {
		m[d.Name()] = d
	}
	return &Registry{disks: m}
}

// Get returns the disk with the given name.
func (r *Registry) Get(name string) (Disk, error) {
	d, ok := r.disks[name]
	if !ok {
		return nil, fmt.Errorf("unknown disk: %s", name)
	}
	return d, nil
}
