package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/fatread"
	c "github.com/dargueta/fatread/drivers/common"
	"github.com/dargueta/fatread/drivers/common/blockcache"
)

// FATEntry is a single 28-bit entry in a FAT32 allocation table. The top four
// bits of the on-disk value are reserved and always masked off.
type FATEntry uint32

const (
	fatEntryMask = 0x0FFFFFFF
	// FATFree marks a cluster that isn't allocated to anything.
	FATFree = FATEntry(0)
	// FATBadCluster marks a cluster that must not be used.
	FATBadCluster = FATEntry(0x0FFFFFF7)
	// FATEndOfChain is the canonical end-of-chain marker. Any value greater than
	// or equal to it also ends a chain.
	FATEndOfChain = FATEntry(0x0FFFFFF8)
	// FATMaxNextCluster is the highest value that can point to another cluster.
	FATMaxNextCluster = FATEntry(0x0FFFFFEF)
)

func (e FATEntry) IsFree() bool {
	return e == FATFree
}

func (e FATEntry) IsBad() bool {
	return e == FATBadCluster
}

func (e FATEntry) IsEndOfChain() bool {
	return e >= FATEndOfChain
}

// IsNextCluster returns true if the entry is a link to another cluster. It says
// nothing about whether that cluster actually exists on the volume.
func (e FATEntry) IsNextCluster() bool {
	return e >= FATEntry(FirstDataCluster) && e <= FATMaxNextCluster
}

// Table gives access to the first copy of the FAT. Sectors are read from the
// block source the first time an entry in them is needed and kept afterwards.
type Table struct {
	boot  *BootSector
	cache *blockcache.BlockCache
}

// NewTable creates a Table reading the first FAT of the volume described by
// `boot` from `source`. Mirror copies are never consulted.
func NewTable(boot *BootSector, source c.BlockSource) *Table {
	firstSector := c.BlockID(boot.FirstFATSector)

	fetch := func(blockIndex c.LogicalBlock, buffer []byte) error {
		err := source.ReadBlock(firstSector+c.BlockID(blockIndex), buffer)
		return fatread.CastToDriverError(err)
	}

	return &Table{
		boot:  boot,
		cache: blockcache.New(uint(boot.BytesPerSector), boot.SectorsPerFAT, fetch),
	}
}

// ReadEntry returns the FAT entry for `cluster`.
func (table *Table) ReadEntry(cluster ClusterID) (FATEntry, error) {
	if !table.boot.IsValidCluster(cluster) {
		return 0, fatread.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"cluster %d not in range [2, %d]", cluster, table.boot.MaxCluster))
	}

	offset := int64(cluster) * 4
	buffer := make([]byte, 4)
	_, err := table.cache.ReadAt(buffer, offset)
	if err != nil {
		return 0, fatread.CastToDriverError(err)
	}

	return FATEntry(binary.LittleEndian.Uint32(buffer) & fatEntryMask), nil
}

// MaxCluster returns the highest valid cluster ID on the volume.
func (table *Table) MaxCluster() ClusterID {
	return table.boot.MaxCluster
}
