// Package storage ships a finished dump file to its long-term home.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fullstorydev/quicksync/config"
)

type Storage interface {
	// Save stores src under name and returns where it ended up.
	Save(ctx context.Context, src io.ReadSeeker, name string) (string, error)
}

// New returns the storage selected by conf, or nil when the dump should stay
// where it was written.
func New(ctx context.Context, conf config.StorageConfig) (Storage, error) {
	switch conf.Provider {
	case "":
		return nil, nil
	case "local":
		return NewLocalStorage(conf.Local), nil
	case "s3":
		st, err := NewS3Storage(conf.S3)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "gcs":
		st, err := NewGCSStorage(ctx, conf.GCS)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, errors.Errorf("unsupported storage provider: %s", conf.Provider)
}

// Ship saves the file at path to s under its base name.
func Ship(ctx context.Context, s Storage, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open dump for upload")
	}
	defer f.Close()
	return s.Save(ctx, f, filepath.Base(path))
}

type LocalStorage struct {
	conf config.LocalConfig
}

func NewLocalStorage(c config.LocalConfig) *LocalStorage {
	return &LocalStorage{conf: c}
}

func (ls *LocalStorage) Save(_ context.Context, src io.ReadSeeker, name string) (string, error) {
	if ls.conf.SaveDir == "" {
		return "", errors.New("local storage needs a savedir")
	}
	if err := os.MkdirAll(ls.conf.SaveDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create save dir")
	}
	dest := filepath.Join(ls.conf.SaveDir, name)
	if sameFile(src, dest) {
		return dest, nil
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", errors.Wrap(err, "create local copy")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		out.Close()
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", errors.Wrapf(err, "copy to %s", dest)
	}
	return dest, out.Close()
}

// sameFile reports whether src is the open file already stored at dest.
func sameFile(src io.ReadSeeker, dest string) bool {
	f, ok := src.(*os.File)
	if !ok {
		return false
	}
	si, err := f.Stat()
	if err != nil {
		return false
	}
	di, err := os.Stat(dest)
	if err != nil {
		return false
	}
	return os.SameFile(si, di)
}
