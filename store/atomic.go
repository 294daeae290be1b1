package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileWrite is one file of a WriteFilesAtomic group.
type FileWrite struct {
	Path  string
	Write func(w io.Writer) error
}

// WriteFileAtomic writes through a temp file in the target directory and
// renames it over path, so readers never observe a half-written file.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	tmp, err := stage(path, write)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into %q: %w", path, err)
	}
	return nil
}

// WriteFilesAtomic replaces every file of the group or none of them. All
// files are staged before the first rename. When a rename fails, files
// already moved into place are rolled back to their previous content, or
// removed when they did not exist before.
func WriteFilesAtomic(files []FileWrite) (err error) {
	temps := make([]string, 0, len(files))
	defer func() {
		if err != nil {
			for _, tmp := range temps {
				os.Remove(tmp)
			}
		}
	}()
	for _, f := range files {
		tmp, err := stage(f.Path, f.Write)
		if err != nil {
			return err
		}
		temps = append(temps, tmp)
	}

	type committed struct {
		path   string
		backup string
	}
	var done []committed
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			c := done[i]
			if c.backup != "" {
				os.Rename(c.backup, c.path)
			} else {
				os.Remove(c.path)
			}
		}
	}

	for i, f := range files {
		backup, err := backupExisting(f.Path)
		if err != nil {
			rollback()
			return err
		}
		if err := os.Rename(temps[i], f.Path); err != nil {
			if backup != "" {
				os.Rename(backup, f.Path)
			}
			rollback()
			return fmt.Errorf("rename into %q: %w", f.Path, err)
		}
		done = append(done, committed{path: f.Path, backup: backup})
	}

	for _, c := range done {
		if c.backup != "" {
			os.Remove(c.backup)
		}
	}
	return nil
}

// stage writes a synced temp file next to path and returns its name.
func stage(path string, write func(w io.Writer) error) (name string, err error) {
	if err := ensureDir(path); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err = write(buf); err != nil {
		return "", err
	}
	if err = buf.Flush(); err != nil {
		return "", fmt.Errorf("flush %q: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync %q: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", path, err)
	}
	return tmp.Name(), nil
}

// backupExisting moves a regular file at path aside and returns where it went.
// Anything that is not a regular file is left for the rename to reject.
func backupExisting(path string) (string, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}
	backup := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".bak")
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("back up %q: %w", path, err)
	}
	return backup, nil
}

// WriteBytesAtomic is WriteFileAtomic for an in-memory payload.
func WriteBytesAtomic(path string, data []byte) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
