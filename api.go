// Package fatread defines the interfaces and error kinds shared by the read-only
// FAT32 driver in drivers/fat and the command-line tools built on top of it.
package fatread

import (
	"os"
)

// ReadingDriver is the interface for drivers supporting read operations.
type ReadingDriver interface {
	// ReadDir returns the entries of the directory at the given path, in on-disk
	// order. An empty path means the current working directory.
	ReadDir(path string) ([]os.FileInfo, error)
	// ReadFile return the contents of the file at the given path.
	ReadFile(path string) ([]byte, error)
}

// WorkingDirectoryDriver is the interface for drivers that keep track of a current
// directory. Relative paths given to the other methods are resolved against it.
type WorkingDirectoryDriver interface {
	// Chdir changes the current directory. On failure the current directory is
	// left untouched.
	Chdir(path string) error
	// Getwd returns the absolute logical path of the current directory, "/" for the
	// root.
	Getwd() string
}

// Driver is the interface for drivers implementing all driver capabilities.
type Driver interface {
	ReadingDriver
	WorkingDirectoryDriver
}
