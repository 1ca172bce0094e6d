package fat

import (
	"errors"
	"io"
	"io/fs"

	"github.com/dargueta/fatread"
)

// volumeFS exposes a mounted volume as an fs.FS rooted at the volume's root
// directory. It's independent of the driver's current directory.
type volumeFS struct {
	drv *Driver
}

// FS returns a view of the volume implementing fs.FS. Names are resolved without
// regard to case, as on any FAT file system.
func (drv *Driver) FS() fs.FS {
	return &volumeFS{drv: drv}
}

func toPathError(op, name string, err error) error {
	if errors.Is(err, fatread.ErrNotFound) {
		err = fs.ErrNotExist
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

func (vfs *volumeFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	dirent, _, err := vfs.drv.resolve(PathSeparator + name)
	if err != nil {
		return nil, toPathError("open", name, err)
	}
	if name == "." {
		dirent.name = "."
	}

	if dirent.IsDir() {
		return &volumeDir{drv: vfs.drv, dirent: dirent, path: name}, nil
	}
	return &volumeFile{dirent: dirent, reader: vfs.drv.openFile(&dirent), path: name}, nil
}

// -----------------------------------------------------------------------------

type volumeFile struct {
	dirent Dirent
	reader io.Reader
	path   string
	closed bool
}

func (f *volumeFile) Stat() (fs.FileInfo, error) {
	return &f.dirent, nil
}

func (f *volumeFile) Read(buffer []byte) (int, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "read", Path: f.path, Err: fs.ErrClosed}
	}
	return f.reader.Read(buffer)
}

func (f *volumeFile) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.path, Err: fs.ErrClosed}
	}
	f.closed = true
	return nil
}

// -----------------------------------------------------------------------------

type volumeDir struct {
	drv     *Driver
	dirent  Dirent
	path    string
	entries []fs.DirEntry
	loaded  bool
	offset  int
	closed  bool
}

func (d *volumeDir) Stat() (fs.FileInfo, error) {
	return &d.dirent, nil
}

func (d *volumeDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fatread.ErrNotAFile}
}

func (d *volumeDir) Close() error {
	if d.closed {
		return &fs.PathError{Op: "close", Path: d.path, Err: fs.ErrClosed}
	}
	d.closed = true
	return nil
}

func (d *volumeDir) load() error {
	decoder := d.drv.openDirectory(&d.dirent)
	entries := []fs.DirEntry{}
	for decoder.Next() {
		dirent := decoder.Dirent()
		if dirent.IsVolumeLabel() || dirent.IsDotEntry() {
			continue
		}
		entries = append(entries, fs.FileInfoToDirEntry(&dirent))
	}
	if err := decoder.Err(); err != nil {
		return err
	}

	d.entries = entries
	d.loaded = true
	return nil
}

// ReadDir implements fs.ReadDirFile.
func (d *volumeDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.closed {
		return nil, &fs.PathError{Op: "readdir", Path: d.path, Err: fs.ErrClosed}
	}
	if !d.loaded {
		if err := d.load(); err != nil {
			return nil, toPathError("readdir", d.path, err)
		}
	}

	remaining := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	d.offset += n
	return remaining[:n], nil
}
