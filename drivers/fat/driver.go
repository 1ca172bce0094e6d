package fat

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dargueta/fatread"
	c "github.com/dargueta/fatread/drivers/common"
	"github.com/sirupsen/logrus"
)

// Driver is a mounted, read-only FAT32 volume. It keeps track of a current
// directory that relative paths are resolved against.
//
// A Driver isn't safe for concurrent use.
type Driver struct {
	source  c.BlockSource
	boot    *BootSector
	fat     *Table
	cwd     Dirent
	cwdPath []string
	log     logrus.FieldLogger
}

var _ fatread.Driver = (*Driver)(nil)

// Option configures a Driver at mount time.
type Option func(*Driver)

// WithLogger sets the logger the driver reports to. By default nothing is logged.
func WithLogger(log logrus.FieldLogger) Option {
	return func(drv *Driver) {
		drv.log = log
	}
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}

// Mount reads the boot sector from block 0 of `source` and prepares the volume
// for reading. The block size of `source` must match the sector size recorded in
// the boot sector.
func Mount(source c.BlockSource, options ...Option) (*Driver, error) {
	drv := &Driver{
		source:  source,
		log:     discardLogger(),
		cwdPath: []string{},
	}
	for _, option := range options {
		option(drv)
	}

	if source.BytesPerBlock() < BootSectorSize {
		return nil, fatread.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"block size must be at least %d bytes, got %d",
				BootSectorSize,
				source.BytesPerBlock()))
	}

	firstBlock := make([]byte, source.BytesPerBlock())
	err := source.ReadBlock(0, firstBlock)
	if err != nil {
		return nil, fatread.CastToDriverError(err).WithMessage("failed to read boot sector")
	}

	boot, err := ParseBootSector(firstBlock)
	if err != nil {
		return nil, err
	}

	if uint(boot.BytesPerSector) != source.BytesPerBlock() {
		return nil, fatread.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"volume has %d-byte sectors but the block source has %d-byte blocks",
				boot.BytesPerSector,
				source.BytesPerBlock()))
	}

	if source.TotalBlocks() < boot.TotalSectors {
		drv.log.WithFields(logrus.Fields{
			"image_sectors":  source.TotalBlocks(),
			"volume_sectors": boot.TotalSectors,
		}).Warn("image is smaller than the volume it contains; reads near the end will fail")
	}

	drv.boot = boot
	drv.fat = NewTable(boot, source)
	drv.cwd = drv.rootDirent()

	drv.log.WithFields(logrus.Fields{
		"bytes_per_sector":    boot.BytesPerSector,
		"sectors_per_cluster": boot.SectorsPerCluster,
		"reserved_sectors":    boot.ReservedSectors,
		"fats":                boot.NumFATs,
		"sectors_per_fat":     boot.SectorsPerFAT,
		"root_cluster":        boot.RootCluster,
		"total_clusters":      boot.TotalClusters,
	}).Debug("mounted FAT32 volume")
	return drv, nil
}

// MountImage mounts a volume stored in a raw image file, such as one created with
// dd. The sector size is taken from the boot sector.
func MountImage(stream io.ReadSeeker, options ...Option) (*Driver, error) {
	probe, err := c.NewBasicBlockStream(stream)
	if err != nil {
		return nil, err
	}
	if probe.TotalBlocks() == 0 {
		return nil, fatread.ErrInvalidBootSector.WithMessage(
			"image is too small to hold a boot sector")
	}

	firstSector := make([]byte, BootSectorSize)
	err = probe.ReadBlock(0, firstSector)
	if err != nil {
		return nil, err
	}

	boot, err := ParseBootSector(firstSector)
	if err != nil {
		return nil, err
	}

	source, err := c.NewBlockStream(stream, 0, uint(boot.BytesPerSector), 0)
	if err != nil {
		return nil, err
	}
	return Mount(source, options...)
}

// BootSector returns the parsed boot sector of the volume.
func (drv *Driver) BootSector() *BootSector {
	return drv.boot
}

// Table returns the allocation table of the volume.
func (drv *Driver) Table() *Table {
	return drv.fat
}

// openDirectory returns a decoder over the entries of `directory`.
func (drv *Driver) openDirectory(directory *Dirent) *DirentDecoder {
	reader := NewChainReader(drv.source, drv.boot, drv.fat, directory.FirstCluster)
	return NewDirentDecoder(reader, drv.log)
}

// Stat returns the directory entry at `path`. The root directory has no entry of
// its own, so a synthetic one named "/" is returned for it.
func (drv *Driver) Stat(path string) (Dirent, error) {
	dirent, _, err := drv.resolve(path)
	return dirent, err
}

// ListDir returns the entries of the directory at `path` in on-disk order,
// including "." and ".." but not the volume label. An empty path lists the
// current directory.
func (drv *Driver) ListDir(path string) ([]Dirent, error) {
	directory, _, err := drv.resolve(path)
	if err != nil {
		return nil, err
	}
	if !directory.IsDir() {
		return nil, fatread.ErrNotADirectory.WithMessage(path)
	}

	dirents := []Dirent{}
	decoder := drv.openDirectory(&directory)
	for decoder.Next() {
		dirent := decoder.Dirent()
		if dirent.IsVolumeLabel() {
			continue
		}
		dirents = append(dirents, dirent)
	}
	if err := decoder.Err(); err != nil {
		drv.log.WithField("path", path).WithError(err).Debug("directory listing failed")
		return nil, err
	}
	return dirents, nil
}

// ReadDir is ListDir returning os.FileInfo values.
func (drv *Driver) ReadDir(path string) ([]os.FileInfo, error) {
	dirents, err := drv.ListDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, len(dirents))
	for i := range dirents {
		infos[i] = &dirents[i]
	}
	return infos, nil
}

// openFile returns a reader over exactly the bytes of the file `dirent`. A chain
// that ends before the declared file size is reached gives ErrCorruptChain.
func (drv *Driver) openFile(dirent *Dirent) io.Reader {
	if dirent.Size() == 0 {
		return strings.NewReader("")
	}
	chain := NewChainReader(drv.source, drv.boot, drv.fat, dirent.FirstCluster)
	return &sizedReader{
		reader:    io.LimitReader(chain, dirent.Size()),
		remaining: dirent.Size(),
		name:      dirent.Name(),
	}
}

// ReadFile returns the contents of the file at `path`, exactly as many bytes as
// its directory entry declares.
func (drv *Driver) ReadFile(path string) ([]byte, error) {
	dirent, _, err := drv.resolve(path)
	if err != nil {
		return nil, err
	}
	if dirent.IsDir() {
		return nil, fatread.ErrNotAFile.WithMessage(path)
	}

	maxSize := int64(drv.boot.TotalClusters) * int64(drv.boot.BytesPerCluster)
	if dirent.Size() > maxSize {
		return nil, fatread.ErrCorruptChain.WithMessage(
			fmt.Sprintf(
				"%s claims to be %d bytes but the volume only holds %d",
				path,
				dirent.Size(),
				maxSize))
	}

	data := make([]byte, dirent.Size())
	_, err = io.ReadFull(drv.openFile(&dirent), data)
	if err != nil {
		drv.log.WithField("path", path).WithError(err).Debug("file read failed")
		return nil, fatread.CastToDriverError(err)
	}
	return data, nil
}

// Chdir changes the current directory. If `path` can't be resolved or isn't a
// directory, the current directory stays the same.
func (drv *Driver) Chdir(path string) error {
	dirent, stack, err := drv.resolve(path)
	if err != nil {
		return err
	}
	if !dirent.IsDir() {
		return fatread.ErrNotADirectory.WithMessage(path)
	}

	drv.cwd = dirent
	drv.cwdPath = stack
	return nil
}

// Getwd returns the absolute path of the current directory.
func (drv *Driver) Getwd() string {
	return PathSeparator + strings.Join(drv.cwdPath, PathSeparator)
}

// Label returns the volume label. The label entry in the root directory takes
// precedence over the copy in the boot sector, which formatting tools often
// leave as "NO NAME".
func (drv *Driver) Label() (string, error) {
	root := drv.rootDirent()
	decoder := drv.openDirectory(&root)
	for decoder.Next() {
		dirent := decoder.Dirent()
		if dirent.IsVolumeLabel() {
			return dirent.Name(), nil
		}
	}
	if err := decoder.Err(); err != nil {
		return "", err
	}
	return drv.boot.Label(), nil
}

// -----------------------------------------------------------------------------

// sizedReader turns an early end of stream into ErrCorruptChain, since a file's
// cluster chain must be long enough to hold all of its data.
type sizedReader struct {
	reader    io.Reader
	remaining int64
	name      string
}

func (r *sizedReader) Read(buffer []byte) (int, error) {
	n, err := r.reader.Read(buffer)
	r.remaining -= int64(n)
	if errors.Is(err, io.EOF) && r.remaining > 0 {
		return n, fatread.ErrCorruptChain.WithMessage(
			fmt.Sprintf("cluster chain of %q ends %d bytes early", r.name, r.remaining))
	}
	return n, err
}
