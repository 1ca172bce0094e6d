// Package common contains definitions of fundamental types and functions used
// by the file system drivers.
package common

// BlockID is the absolute index of a block (sector) on a block source.
type BlockID uint

// LogicalBlock is the index of a block relative to the beginning of some object
// on the image, such as a FAT copy.
type LogicalBlock uint

//go:generate mockgen -source=types.go -destination=../../testing/mocks.go -package testing

// BlockSource is the only way a driver touches the disk image. Implementations
// must fill `buffer`, which is exactly BytesPerBlock() bytes long, with the
// contents of block `block`, or return an error.
type BlockSource interface {
	BytesPerBlock() uint
	TotalBlocks() uint
	ReadBlock(block BlockID, buffer []byte) error
}
