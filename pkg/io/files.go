package io

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// create file with its parent direcrtory, if missing.
//
// args:
//   - name: filepath to be created.
//   - fmod: os.FileMode for file.
//   - dmod: os.FileMode for directory.
//
// Note that `dmod` effects to only newly-created direcotries.
// So, directoreis which have existed are not effected with `dmod`.
//
// return (*os.File, err):
//   When a file is created successfully, `(file, nil)` pair will be returned.
//   Or, if it failed creating one of file or direcories, `(nil, err)` pair will be returned.
//
func CreateAll(name string, fmod os.FileMode, dmod os.FileMode) (*os.File, error) {

	dirname := filepath.Dir(name)
	if err := os.MkdirAll(dirname, dmod); err != nil {
		return nil, err
	}

	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fmod)
}

// copy files in directory `src` into directory `dest`, recursively.
//
// `dest` and missing parent directories are created with permission 0777
// (before umask). Each copied file keeps the mode of its source.
//
// Symlinks are followed, not recreated.
func DirCopy(src string, dest string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0777)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		s, err := os.Open(p)
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := CreateAll(target, info.Mode().Perm(), 0777)
		if err != nil {
			return err
		}
		defer t.Close()

		_, err = io.Copy(t, s)
		return err
	})
}
