package io

import (
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestCreateAll(t *testing.T) {

	t.Run("it creates a file in directory", func(t *testing.T) {
		defaultUmask := syscall.Umask(0)
		defer syscall.Umask(defaultUmask)

		root, err := os.MkdirTemp("", "")
		if err != nil {
			t.Fatal("fail to create workdir.", err)
		}
		defer os.RemoveAll(root)

		CreateAll(filepath.Join(root, "foo", "bar", "targetFile"), 0700, 0707)

		fooStat, err := os.Stat(filepath.Join(root, "foo"))
		if err != nil || !fooStat.IsDir() {
			t.Fatal("cannot create directory (stat, err):", fooStat, err)
		}
		if fooStat.Mode().Perm() != 0707 {
			t.Fatal("directory mod is wrong. (actual, expected): ", fooStat.Mode(), fs.FileMode(0707))
		}

		barStat, err := os.Stat(filepath.Join(root, "foo", "bar"))
		if err != nil || !barStat.IsDir() {
			t.Fatal("cannot create directory (stat, err):", barStat, err)
		}
		if barStat.Mode().Perm() != 0707 {
			t.Fatal("directory mod is wrong. (actual, expected): ", barStat.Mode(), fs.FileMode(0707))
		}

		fStat, err := os.Stat(filepath.Join(root, "foo", "bar", "targetFile"))
		if err != nil || fStat.IsDir() {
			t.Fatal("cannot create targetFile (stat, err):", fStat, err)
		}
		if fStat.Mode().Perm() != 0700 {
			t.Fatal("target file mod is wrong. (actual, expected): ", fStat.Mode(), fs.FileMode(0700))
		}
	})

	t.Run("it creates a file directly", func(t *testing.T) {
		defaultUmask := syscall.Umask(0)
		defer syscall.Umask(defaultUmask)

		root, err := os.MkdirTemp("", "")
		if err != nil {
			t.Fatal("fail to create workdir.", err)
		}
		defer os.RemoveAll(root)

		CreateAll(filepath.Join(root, "targetFile"), 0777, 0700)

		fStat, err := os.Stat(filepath.Join(root, "targetFile"))
		if err != nil || fStat.IsDir() || !fStat.Mode().IsRegular() {
			t.Fatal("cannot create targetFile (stat, err):", fStat, err)
		}
		if fStat.Mode().Perm() != 0777 {
			t.Fatal("target file mod is wrong. (actual, expected): ", fStat.Mode(), fs.FileMode(0777))
		}
	})
}

func TestDirCopy(t *testing.T) {

	t.Run("it copies files and subdirectories", func(t *testing.T) {
		defaultUmask := syscall.Umask(0)
		defer syscall.Umask(defaultUmask)

		root, err := os.MkdirTemp("", "")
		if err != nil {
			t.Fatal("fail to create workdir.", err)
		}
		defer os.RemoveAll(root)

		src := filepath.Join(root, "src")
		if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
			t.Fatal("fail to create source tree.", err)
		}
		if err := os.WriteFile(filepath.Join(src, "a.sql"), []byte("create table a;"), 0644); err != nil {
			t.Fatal("fail to create source file.", err)
		}
		if err := os.WriteFile(filepath.Join(src, "sub", "b.sql"), []byte("create table b;"), 0600); err != nil {
			t.Fatal("fail to create source file.", err)
		}

		dest := filepath.Join(root, "dest")
		if err := DirCopy(src, dest); err != nil {
			t.Fatal("DirCopy causes error:", err)
		}

		a, err := os.ReadFile(filepath.Join(dest, "a.sql"))
		if err != nil || string(a) != "create table a;" {
			t.Error("a.sql is not copied (content, err):", string(a), err)
		}
		aStat, err := os.Stat(filepath.Join(dest, "a.sql"))
		if err != nil || aStat.Mode().Perm() != 0644 {
			t.Error("a.sql mode is wrong (stat, err):", aStat, err)
		}

		b, err := os.ReadFile(filepath.Join(dest, "sub", "b.sql"))
		if err != nil || string(b) != "create table b;" {
			t.Error("sub/b.sql is not copied (content, err):", string(b), err)
		}
		bStat, err := os.Stat(filepath.Join(dest, "sub", "b.sql"))
		if err != nil || bStat.Mode().Perm() != 0600 {
			t.Error("sub/b.sql mode is wrong (stat, err):", bStat, err)
		}
	})

	t.Run("it overwrites files in an existing destination", func(t *testing.T) {
		root, err := os.MkdirTemp("", "")
		if err != nil {
			t.Fatal("fail to create workdir.", err)
		}
		defer os.RemoveAll(root)

		src := filepath.Join(root, "src")
		if err := os.MkdirAll(src, 0755); err != nil {
			t.Fatal("fail to create source tree.", err)
		}
		if err := os.WriteFile(filepath.Join(src, "a.sql"), []byte("new"), 0644); err != nil {
			t.Fatal("fail to create source file.", err)
		}

		dest := filepath.Join(root, "dest")
		if err := os.MkdirAll(dest, 0755); err != nil {
			t.Fatal("fail to create destination.", err)
		}
		if err := os.WriteFile(filepath.Join(dest, "a.sql"), []byte("old old old"), 0644); err != nil {
			t.Fatal("fail to create destination file.", err)
		}

		if err := DirCopy(src, dest); err != nil {
			t.Fatal("DirCopy causes error:", err)
		}

		a, err := os.ReadFile(filepath.Join(dest, "a.sql"))
		if err != nil || string(a) != "new" {
			t.Error("a.sql is not overwritten (content, err):", string(a), err)
		}
	})

	t.Run("it causes error when the source does not exist", func(t *testing.T) {
		root, err := os.MkdirTemp("", "")
		if err != nil {
			t.Fatal("fail to create workdir.", err)
		}
		defer os.RemoveAll(root)

		if err := DirCopy(filepath.Join(root, "no-such-dir"), filepath.Join(root, "dest")); err == nil {
			t.Error("no error occured")
		}
	})
}
