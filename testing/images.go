package testing

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/dargueta/fatread/drivers/common"
	"github.com/dargueta/fatread/drivers/fat"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
	"golang.org/x/text/encoding/charmap"
)

// LoadImage returns a stream over a copy of `imageBytes`. The image must be
// exactly `sectorSize * totalSectors` bytes.
//
//   - Writes to the stream do not affect `imageBytes`.
//   - The size of the stream is fixed. Attempting to write past the end of this
//     buffer will trigger an error.
func LoadImage(
	t *testing.T, imageBytes []byte, sectorSize, totalSectors uint,
) io.ReadWriteSeeker {
	require.Greater(t, len(imageBytes), 0, "image is empty")
	require.Equal(
		t,
		totalSectors*sectorSize,
		uint(len(imageBytes)),
		"image is wrong size",
	)

	imageCopy := make([]byte, len(imageBytes))
	copy(imageCopy, imageBytes)
	return bytesextra.NewReadWriteSeeker(imageCopy)
}

// The timestamp every entry created by FAT32Image gets: 2023-05-17 12:34:56.
const (
	TestDate = uint16((43 << 9) | (5 << 5) | 17)
	TestTime = uint16((12 << 11) | (34 << 5) | (56 / 2))
)

// FAT32Image builds small FAT32 volumes in memory for tests. Clusters are handed
// out in increasing order starting right after the root directory, so tests can
// predict where things end up.
type FAT32Image struct {
	t           *testing.T
	Boot        fat.RawFAT32BootSector
	data        []byte
	fat         []uint32
	nextCluster uint32
	directories map[uint32]*directoryBuilder
	aliasCount  map[uint32]int
}

type directoryBuilder struct {
	clusters []uint32
	records  int
}

// NewFAT32Image creates an empty volume with 512-byte sectors, one sector per
// cluster, and 200 data clusters.
func NewFAT32Image(t *testing.T) *FAT32Image {
	return NewFAT32ImageWithGeometry(t, 512, 1, 200)
}

// NewFAT32ImageWithGeometry creates an empty volume with the given sector size,
// cluster size, and number of data clusters. Two FATs are always created.
func NewFAT32ImageWithGeometry(
	t *testing.T, bytesPerSector uint16, sectorsPerCluster uint8, dataClusters uint32,
) *FAT32Image {
	const reservedSectors = 4
	const numFATs = 2

	fatBytes := (dataClusters + 2) * 4
	sectorsPerFAT := (fatBytes + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
	totalSectors := reservedSectors + numFATs*sectorsPerFAT +
		dataClusters*uint32(sectorsPerCluster)

	image := &FAT32Image{
		t:           t,
		data:        make([]byte, totalSectors*uint32(bytesPerSector)),
		fat:         make([]uint32, dataClusters+2),
		nextCluster: 3,
		directories: map[uint32]*directoryBuilder{},
		aliasCount:  map[uint32]int{},
		Boot: fat.RawFAT32BootSector{
			JmpBoot:           [3]byte{0xEB, 0x58, 0x90},
			BytesPerSector:    bytesPerSector,
			SectorsPerCluster: sectorsPerCluster,
			ReservedSectors:   reservedSectors,
			NumFATs:           numFATs,
			Media:             0xF8,
			SectorsPerTrack:   32,
			NumHeads:          64,
			TotalSectors32:    totalSectors,
			SectorsPerFAT32:   sectorsPerFAT,
			RootCluster:       2,
			FSInfoSector:      1,
			BackupBootSector:  0,
			DriveNumber:       0x80,
			ExBootSignature:   0x29,
			VolumeID:          0x1234ABCD,
			Signature:         [2]byte{0x55, 0xAA},
		},
	}
	copy(image.Boot.OEMName[:], "FATREAD ")
	copy(image.Boot.VolumeLabel[:], "NO NAME    ")
	copy(image.Boot.FileSystemType[:], "FAT32   ")

	image.fat[0] = 0x0FFFFFF8
	image.fat[1] = 0x0FFFFFFF
	image.fat[2] = 0x0FFFFFFF
	image.directories[2] = &directoryBuilder{clusters: []uint32{2}}
	return image
}

// RootCluster is the first cluster of the root directory.
func (image *FAT32Image) RootCluster() uint32 {
	return image.Boot.RootCluster
}

func (image *FAT32Image) bytesPerCluster() int {
	return int(image.Boot.BytesPerSector) * int(image.Boot.SectorsPerCluster)
}

// ClusterOffset returns the byte offset of a data cluster in the image.
func (image *FAT32Image) ClusterOffset(cluster uint32) int {
	firstDataSector := uint32(image.Boot.ReservedSectors) +
		uint32(image.Boot.NumFATs)*image.Boot.SectorsPerFAT32
	sector := firstDataSector + (cluster-2)*uint32(image.Boot.SectorsPerCluster)
	return int(sector) * int(image.Boot.BytesPerSector)
}

func (image *FAT32Image) allocate() uint32 {
	cluster := image.nextCluster
	require.Less(
		image.t, int(cluster), len(image.fat), "test image ran out of clusters")
	image.nextCluster++
	image.fat[cluster] = 0x0FFFFFFF
	return cluster
}

// allocateChain allocates enough clusters to hold `size` bytes and links them.
// It returns 0 if `size` is 0.
func (image *FAT32Image) allocateChain(size int) []uint32 {
	count := (size + image.bytesPerCluster() - 1) / image.bytesPerCluster()
	chain := make([]uint32, count)
	for i := range chain {
		chain[i] = image.allocate()
		if i > 0 {
			image.fat[chain[i-1]] = chain[i]
		}
	}
	return chain
}

// SetFATEntry overwrites an entry in the allocation table, e.g. to create a
// corrupted chain. The value is written to every FAT copy.
func (image *FAT32Image) SetFATEntry(cluster uint32, value uint32) {
	image.fat[cluster] = value
}

// FATEntry returns the current value of an entry in the allocation table.
func (image *FAT32Image) FATEntry(cluster uint32) uint32 {
	return image.fat[cluster]
}

// WriteCluster overwrites the beginning of a data cluster.
func (image *FAT32Image) WriteCluster(cluster uint32, data []byte) {
	require.LessOrEqual(image.t, len(data), image.bytesPerCluster())
	copy(image.data[image.ClusterOffset(cluster):], data)
}

// AddRecord appends a raw 32-byte record to a directory, growing the directory's
// cluster chain if it's full.
func (image *FAT32Image) AddRecord(directory uint32, record []byte) {
	require.Len(image.t, record, fat.DirentSize)
	dir, ok := image.directories[directory]
	require.Truef(image.t, ok, "cluster %d isn't a directory", directory)

	perCluster := image.bytesPerCluster() / fat.DirentSize
	if dir.records == len(dir.clusters)*perCluster {
		next := image.allocate()
		image.fat[dir.clusters[len(dir.clusters)-1]] = next
		dir.clusters = append(dir.clusters, next)
	}

	cluster := dir.clusters[dir.records/perCluster]
	offset := image.ClusterOffset(cluster) + (dir.records%perCluster)*fat.DirentSize
	copy(image.data[offset:offset+fat.DirentSize], record)
	dir.records++
}

// ShortRecord builds a short directory entry. `name` is the 11-byte padded 8.3
// name, e.g. "HELLO   TXT".
func ShortRecord(name string, attributes uint8, cluster uint32, size uint32) []byte {
	raw := fat.RawDirent{
		AttributeFlags:   attributes,
		CreatedTime:      TestTime,
		CreatedDate:      TestDate,
		LastAccessedDate: TestDate,
		FirstClusterHigh: uint16(cluster >> 16),
		LastModifiedTime: TestTime,
		LastModifiedDate: TestDate,
		FirstClusterLow:  uint16(cluster & 0xFFFF),
		FileSize:         size,
	}
	padded := []byte(fmt.Sprintf("%-11s", name))
	copy(raw.Name[:], padded[:8])
	copy(raw.Extension[:], padded[8:11])

	record := make([]byte, fat.DirentSize)
	writer := bytewriter.New(record)
	err := binary.Write(writer, binary.LittleEndian, &raw)
	if err != nil {
		panic(err)
	}
	return record
}

// LongNameRecords builds the long name records for `name` belonging to the short
// entry with 11-byte name `shortName`, in on-disk order (last fragment first).
func LongNameRecords(name string, shortName []byte) [][]byte {
	units := utf16.Encode([]rune(name))
	count := (len(units) + 12) / 13
	padded := make([]uint16, count*13)
	for i := range padded {
		switch {
		case i < len(units):
			padded[i] = units[i]
		case i == len(units):
			padded[i] = 0x0000
		default:
			padded[i] = 0xFFFF
		}
	}

	checksum := fat.ShortNameChecksum(shortName)
	records := make([][]byte, 0, count)
	for sequence := count; sequence >= 1; sequence-- {
		record := make([]byte, fat.DirentSize)
		record[0] = byte(sequence)
		if sequence == count {
			record[0] |= 0x40
		}
		record[11] = fat.AttrLongName
		record[13] = checksum

		chars := padded[(sequence-1)*13 : sequence*13]
		i := 0
		for _, span := range [][2]int{{1, 11}, {14, 26}, {28, 32}} {
			for offset := span[0]; offset < span[1]; offset += 2 {
				binary.LittleEndian.PutUint16(record[offset:], chars[i])
				i++
			}
		}
		records = append(records, record)
	}
	return records
}

// encodeShortName tries to express `name` as a padded 11-byte 8.3 name. It fails
// if the name has lowercase letters or doesn't fit.
func encodeShortName(name string) (string, bool) {
	if name != strings.ToUpper(name) || strings.ContainsAny(name, " +,;=[]") {
		return "", false
	}

	base, ext := name, ""
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		base, ext = name[:dot], name[dot+1:]
	}
	if base == "" || len(base) > 8 || len(ext) > 3 || strings.Contains(base, ".") {
		return "", false
	}
	for _, r := range name {
		if _, ok := charmap.CodePage437.EncodeRune(r); !ok {
			return "", false
		}
	}
	return fmt.Sprintf("%-8s%-3s", base, ext), true
}

// aliasFor makes up a unique "BASE~N.EXT" short name for a long name.
func (image *FAT32Image) aliasFor(directory uint32, name string) string {
	image.aliasCount[directory]++
	upper := strings.ToUpper(name)
	base, ext := upper, ""
	if dot := strings.LastIndex(upper, "."); dot > 0 {
		base, ext = upper[:dot], upper[dot+1:]
	}

	keep := func(s string, max int) string {
		var builder strings.Builder
		for _, r := range s {
			if builder.Len() >= max {
				break
			}
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				builder.WriteRune(r)
			}
		}
		return builder.String()
	}

	base = keep(base, 6)
	if base == "" {
		base = "FILE"
	}
	base = fmt.Sprintf("%s~%d", base, image.aliasCount[directory])
	return fmt.Sprintf("%-8s%-3s", base, keep(ext, 3))
}

// addEntry adds a named entry to `directory`, preceded by long name records if the
// name can't be stored as an 8.3 name. It returns the 11-byte short name used.
func (image *FAT32Image) addEntry(
	directory uint32, name string, attributes uint8, cluster uint32, size uint32,
) string {
	shortName, ok := encodeShortName(name)
	if !ok {
		shortName = image.aliasFor(directory, name)
		for _, record := range LongNameRecords(name, []byte(shortName)) {
			image.AddRecord(directory, record)
		}
	}
	image.AddRecord(directory, ShortRecord(shortName, attributes, cluster, size))
	return shortName
}

// AddFile creates a file in `directory` and returns its first cluster, or 0 for
// an empty file.
func (image *FAT32Image) AddFile(directory uint32, name string, content []byte) uint32 {
	chain := image.allocateChain(len(content))
	for i, cluster := range chain {
		start := i * image.bytesPerCluster()
		end := start + image.bytesPerCluster()
		if end > len(content) {
			end = len(content)
		}
		image.WriteCluster(cluster, content[start:end])
	}

	first := uint32(0)
	if len(chain) > 0 {
		first = chain[0]
	}
	image.addEntry(directory, name, fat.AttrArchived, first, uint32(len(content)))
	return first
}

// AddDirectory creates a subdirectory of `parent` with the usual "." and ".."
// entries, and returns its first cluster.
func (image *FAT32Image) AddDirectory(parent uint32, name string) uint32 {
	cluster := image.allocate()
	image.directories[cluster] = &directoryBuilder{clusters: []uint32{cluster}}

	parentRef := parent
	if parent == image.RootCluster() {
		parentRef = 0
	}
	image.AddRecord(cluster, ShortRecord(".", fat.AttrDirectory, cluster, 0))
	image.AddRecord(cluster, ShortRecord("..", fat.AttrDirectory, parentRef, 0))

	image.addEntry(parent, name, fat.AttrDirectory, cluster, 0)
	return cluster
}

// SetVolumeLabel adds a volume label entry to the root directory and copies the
// label into the boot sector.
func (image *FAT32Image) SetVolumeLabel(label string) {
	padded := fmt.Sprintf("%-11s", label)
	copy(image.Boot.VolumeLabel[:], padded)
	image.AddRecord(
		image.RootCluster(), ShortRecord(padded, fat.AttrVolumeLabel|fat.AttrArchived, 0, 0))
}

// Bytes returns the finished image.
func (image *FAT32Image) Bytes() []byte {
	output := make([]byte, len(image.data))
	copy(output, image.data)

	writer := bytewriter.New(output[:fat.BootSectorSize])
	err := binary.Write(writer, binary.LittleEndian, &image.Boot)
	require.NoError(image.t, err, "failed to serialize boot sector")

	bytesPerSector := int(image.Boot.BytesPerSector)
	for copyIndex := 0; copyIndex < int(image.Boot.NumFATs); copyIndex++ {
		fatStart := (int(image.Boot.ReservedSectors) +
			copyIndex*int(image.Boot.SectorsPerFAT32)) * bytesPerSector
		for cluster, value := range image.fat {
			binary.LittleEndian.PutUint32(output[fatStart+cluster*4:], value)
		}
	}
	return output
}

// TotalSectors returns the size of the image, in sectors.
func (image *FAT32Image) TotalSectors() uint {
	return uint(image.Boot.TotalSectors32)
}

// Stream returns the finished image as a seekable stream.
func (image *FAT32Image) Stream() io.ReadWriteSeeker {
	return LoadImage(
		image.t, image.Bytes(), uint(image.Boot.BytesPerSector), image.TotalSectors())
}

// NewImageSource returns a block source over the finished image with blocks the
// size of the image's sectors.
func NewImageSource(t *testing.T, image *FAT32Image) *common.BlockStream {
	source, err := common.NewBlockStream(
		image.Stream(), image.TotalSectors(), uint(image.Boot.BytesPerSector), 0)
	require.NoError(t, err, "failed to create block source")
	return source
}

// Mount mounts the finished image, failing the test if that doesn't work.
func (image *FAT32Image) Mount(options ...fat.Option) *fat.Driver {
	driver, err := fat.MountImage(image.Stream(), options...)
	require.NoError(image.t, err, "failed to mount test image")
	return driver
}
