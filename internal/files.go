package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// FullPathname returns the given filename as an absolute path.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// SamePath reports whether two filenames refer to the same path after
// cleaning, or to the same existing file.
func SamePath(file1, file2 string) bool {
	path1, err1 := FullPathname(file1)
	path2, err2 := FullPathname(file2)
	if err1 == nil && err2 == nil && filepath.Clean(path1) == filepath.Clean(path2) {
		return true
	}
	info1, err1 := os.Stat(file1)
	info2, err2 := os.Stat(file2)
	return err1 == nil && err2 == nil && os.SameFile(info1, info2)
}

// MkdirAll is os.MkdirAll with panics in place of errors
func MkdirAll(path string, perm os.FileMode) {
	if err := os.MkdirAll(path, perm); err != nil {
		log.Panic(err)
	}
}

// FileCreate is os.Create with panics in place of errors
func FileCreate(name string) *os.File {
	f, err := os.Create(name)
	if err != nil {
		log.Panic(err)
	}
	return f
}

// Close is c.Close() with panics in place of errors
func Close(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Panic(err)
	}
}
