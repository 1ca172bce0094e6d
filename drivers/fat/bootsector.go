// Package fat implements a read-only driver for FAT32 file systems.

package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dargueta/fatread"
	"github.com/noxer/bytewriter"
)

type ClusterID uint32
type SectorID uint32

// BootSectorSize is the number of bytes in the boot sector that the parser
// looks at, regardless of the sector size of the volume.
const BootSectorSize = 512

// FirstDataCluster is the ID of the first cluster of the data region.
const FirstDataCluster = ClusterID(2)

// RawFAT32BootSector is the on-disk representation of a FAT32 boot sector,
// including the extended BIOS parameter block. It's exactly 512 bytes long.
type RawFAT32BootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	SectorsPerFAT32   uint32
	ExtFlags          uint16
	FSVersion         uint16
	RootCluster       uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
	Reserved          [12]byte
	DriveNumber       uint8
	NTReserved        uint8
	ExBootSignature   uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
	BootCode          [420]byte
	Signature         [2]byte
}

// BootSector is the parsed boot sector together with the volume geometry
// derived from it. It never changes after the volume is mounted.
type BootSector struct {
	RawFAT32BootSector
	TotalSectors    uint
	SectorsPerFAT   uint
	TotalFATSectors uint
	FirstFATSector  SectorID
	FirstDataSector SectorID
	BytesPerCluster uint
	TotalClusters   uint
	// MaxCluster is the highest cluster ID that can be used on this volume. It's
	// limited both by the size of the data region and by the number of entries
	// that fit in one copy of the FAT.
	MaxCluster        ClusterID
	DirentsPerCluster int
}

func isPowerOfTwo(value uint) bool {
	return value != 0 && (value&(value-1)) == 0
}

func invalidBootSector(format string, args ...interface{}) error {
	return fatread.ErrInvalidBootSector.WithMessage(fmt.Sprintf(format, args...))
}

// ParseBootSector decodes the first 512 bytes of `raw` as a FAT32 boot sector and
// computes the volume geometry. It does no I/O.
func ParseBootSector(raw []byte) (*BootSector, error) {
	if len(raw) < BootSectorSize {
		return nil, invalidBootSector(
			"need at least %d bytes, got %d", BootSectorSize, len(raw))
	}

	rawHeader := RawFAT32BootSector{}
	err := binary.Read(
		bytes.NewReader(raw[:BootSectorSize]), binary.LittleEndian, &rawHeader)
	if err != nil {
		return nil, fatread.ErrInvalidBootSector.Wrap(err)
	}

	if rawHeader.Signature != [2]byte{0x55, 0xAA} {
		return nil, invalidBootSector(
			"bad signature: expected 55 AA, got %02X %02X",
			rawHeader.Signature[0],
			rawHeader.Signature[1])
	}

	bytesPerSector := uint(rawHeader.BytesPerSector)
	if !isPowerOfTwo(bytesPerSector) || bytesPerSector < 512 || bytesPerSector > 4096 {
		return nil, invalidBootSector(
			"bad value for BytesPerSector: need 512, 1024, 2048, or 4096, got %d",
			bytesPerSector)
	}

	sectorsPerCluster := uint(rawHeader.SectorsPerCluster)
	if !isPowerOfTwo(sectorsPerCluster) || sectorsPerCluster > 128 {
		return nil, invalidBootSector(
			"SectorsPerCluster must be a power of 2 in 1-128, got %d",
			sectorsPerCluster)
	}

	if rawHeader.NumFATs == 0 {
		return nil, invalidBootSector("number of FATs can't be 0")
	}
	if rawHeader.ReservedSectors == 0 {
		return nil, invalidBootSector("reserved sector count can't be 0")
	}

	// FAT12 and FAT16 volumes have a fixed-size root directory and a 16-bit FAT
	// size. FAT32 volumes must have neither.
	if rawHeader.RootEntryCount != 0 || rawHeader.SectorsPerFAT16 != 0 {
		return nil, invalidBootSector(
			"not a FAT32 volume: root entry count %d, 16-bit FAT size %d",
			rawHeader.RootEntryCount,
			rawHeader.SectorsPerFAT16)
	}
	if rawHeader.SectorsPerFAT32 == 0 {
		return nil, invalidBootSector("not a FAT32 volume: 32-bit FAT size is 0")
	}

	var totalSectors uint
	if rawHeader.TotalSectors16 != 0 {
		totalSectors = uint(rawHeader.TotalSectors16)
	} else {
		totalSectors = uint(rawHeader.TotalSectors32)
	}

	sectorsPerFAT := uint(rawHeader.SectorsPerFAT32)
	totalFATSectors := uint(rawHeader.NumFATs) * sectorsPerFAT
	firstDataSector := uint(rawHeader.ReservedSectors) + totalFATSectors
	if totalSectors <= firstDataSector {
		return nil, invalidBootSector(
			"no room for data: %d total sectors, data region starts at %d",
			totalSectors,
			firstDataSector)
	}

	totalClusters := (totalSectors - firstDataSector) / sectorsPerCluster
	if totalClusters == 0 {
		return nil, invalidBootSector("volume has no data clusters")
	}

	// The highest cluster addressable by the data region is totalClusters + 1
	// because numbering starts at 2. The FAT may be too small to describe all of
	// them, in which case the extras are unusable.
	maxCluster := totalClusters + 1
	fatCapacity := (sectorsPerFAT * bytesPerSector / 4) - 1
	if fatCapacity < maxCluster {
		maxCluster = fatCapacity
	}
	if maxCluster > 0x0FFFFFEF {
		maxCluster = 0x0FFFFFEF
	}
	if maxCluster < uint(FirstDataCluster) {
		return nil, invalidBootSector("FAT is too small to describe any clusters")
	}

	if rawHeader.RootCluster < uint32(FirstDataCluster) || uint(rawHeader.RootCluster) > maxCluster {
		return nil, invalidBootSector(
			"root directory cluster %d not in range [2, %d]",
			rawHeader.RootCluster,
			maxCluster)
	}

	bytesPerCluster := bytesPerSector * sectorsPerCluster
	return &BootSector{
		RawFAT32BootSector: rawHeader,
		TotalSectors:       totalSectors,
		SectorsPerFAT:      sectorsPerFAT,
		TotalFATSectors:    totalFATSectors,
		FirstFATSector:     SectorID(rawHeader.ReservedSectors),
		FirstDataSector:    SectorID(firstDataSector),
		BytesPerCluster:    bytesPerCluster,
		TotalClusters:      totalClusters,
		MaxCluster:         ClusterID(maxCluster),
		DirentsPerCluster:  int(bytesPerCluster) / DirentSize,
	}, nil
}

// Bytes serializes the raw boot sector fields back into their 512-byte on-disk
// form.
func (boot *BootSector) Bytes() []byte {
	output := make([]byte, BootSectorSize)
	writer := bytewriter.New(output)
	// Can't fail: the struct is exactly as big as the buffer.
	_ = binary.Write(writer, binary.LittleEndian, &boot.RawFAT32BootSector)
	return output
}

// ClusterToSector gives the absolute sector number of the first sector of a data
// cluster.
func (boot *BootSector) ClusterToSector(cluster ClusterID) SectorID {
	return boot.FirstDataSector +
		SectorID(uint(cluster-FirstDataCluster)*uint(boot.SectorsPerCluster))
}

// IsValidCluster returns true if `cluster` refers to a cluster in the data region.
func (boot *BootSector) IsValidCluster(cluster ClusterID) bool {
	return cluster >= FirstDataCluster && cluster <= boot.MaxCluster
}

// Label returns the volume label stored in the extended BPB, with the padding
// removed. Formatting tools write "NO NAME" when there isn't one.
func (boot *BootSector) Label() string {
	return strings.TrimRight(decodeOEMString(boot.VolumeLabel[:]), " ")
}
