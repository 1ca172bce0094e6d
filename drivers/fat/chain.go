package fat

import (
	"fmt"
	"io"

	"github.com/dargueta/fatread"
	c "github.com/dargueta/fatread/drivers/common"
)

// ChainWalker is a cursor over the clusters of a chain. Clusters are looked up in
// the FAT one at a time as Next is called, so walking only part of a chain only
// reads the FAT sectors needed for that part.
//
//	walker := table.Walk(start)
//	for walker.Next() {
//		cluster := walker.Cluster()
//		...
//	}
//	if err := walker.Err(); err != nil {
//		...
//	}
type ChainWalker struct {
	table   *Table
	start   ClusterID
	current ClusterID
	visited c.ClusterSet
	started bool
	done    bool
	index   uint
	err     error
}

// Walk returns a cursor over the cluster chain beginning at `start`.
func (table *Table) Walk(start ClusterID) *ChainWalker {
	return &ChainWalker{
		table:   table,
		start:   start,
		visited: c.NewClusterSet(uint(table.MaxCluster()) + 1),
	}
}

func (walker *ChainWalker) fail(err error) bool {
	walker.err = err
	walker.done = true
	return false
}

// Next advances to the next cluster in the chain. It returns false once the end
// of the chain is reached or an error occurs; use Err to tell the two apart.
func (walker *ChainWalker) Next() bool {
	if walker.done {
		return false
	}

	var next ClusterID
	if !walker.started {
		walker.started = true
		if !walker.table.boot.IsValidCluster(walker.start) {
			return walker.fail(
				fatread.ErrOutOfRange.WithMessage(
					fmt.Sprintf(
						"invalid cluster %d cannot start a cluster chain",
						walker.start)))
		}
		next = walker.start
	} else {
		entry, err := walker.table.ReadEntry(walker.current)
		if err != nil {
			return walker.fail(err)
		}

		switch {
		case entry.IsEndOfChain():
			walker.done = true
			return false
		case entry.IsBad():
			return walker.fail(
				fatread.ErrCorruptChain.WithMessage(
					fmt.Sprintf(
						"cluster %d at index %d in chain from %d is marked bad",
						walker.current,
						walker.index,
						walker.start)))
		case entry.IsFree():
			return walker.fail(
				fatread.ErrCorruptChain.WithMessage(
					fmt.Sprintf(
						"cluster %d at index %d in chain from %d links to a free cluster",
						walker.current,
						walker.index,
						walker.start)))
		case !entry.IsNextCluster() || ClusterID(entry) > walker.table.MaxCluster():
			return walker.fail(
				fatread.ErrOutOfRange.WithMessage(
					fmt.Sprintf(
						"cluster %d followed by invalid cluster 0x%x in chain from %d",
						walker.current,
						uint32(entry),
						walker.start)))
		}

		next = ClusterID(entry)
		walker.index++
	}

	added, err := walker.visited.Add(c.UnitID(next))
	if err != nil {
		return walker.fail(err)
	}
	if !added {
		return walker.fail(
			fatread.ErrCorruptChain.WithMessage(
				fmt.Sprintf(
					"cycle detected: cluster %d appears twice in chain from %d",
					next,
					walker.start)))
	}

	walker.current = next
	return true
}

// Cluster returns the cluster the cursor is on. It's only meaningful after Next
// returned true.
func (walker *ChainWalker) Cluster() ClusterID {
	return walker.current
}

// Err returns the error that stopped the walk, or nil if the walk is still going
// or reached the end of the chain normally.
func (walker *ChainWalker) Err() error {
	return walker.err
}

// Collect walks the rest of the chain and returns every cluster in it.
func (walker *ChainWalker) Collect() ([]ClusterID, error) {
	chain := []ClusterID{}
	for walker.Next() {
		chain = append(chain, walker.Cluster())
	}
	return chain, walker.Err()
}

// -----------------------------------------------------------------------------

// ChainReader is an io.Reader over the data of all clusters in a chain, in chain
// order. Each cluster is read from the block source when the reader reaches it.
type ChainReader struct {
	source  c.BlockSource
	boot    *BootSector
	walker  *ChainWalker
	cluster []byte
	offset  int
	err     error
}

// NewChainReader creates a reader over the cluster chain starting at `start`.
func NewChainReader(
	source c.BlockSource, boot *BootSector, table *Table, start ClusterID,
) *ChainReader {
	return &ChainReader{
		source: source,
		boot:   boot,
		walker: table.Walk(start),
	}
}

// readCluster loads the data of `cluster` into the reader's buffer, one sector at
// a time.
func (reader *ChainReader) readCluster(cluster ClusterID) error {
	if reader.cluster == nil {
		reader.cluster = make([]byte, reader.boot.BytesPerCluster)
	}

	bytesPerSector := uint(reader.boot.BytesPerSector)
	firstSector := c.BlockID(reader.boot.ClusterToSector(cluster))
	for i := uint(0); i < uint(reader.boot.SectorsPerCluster); i++ {
		buffer := reader.cluster[i*bytesPerSector : (i+1)*bytesPerSector]
		err := reader.source.ReadBlock(firstSector+c.BlockID(i), buffer)
		if err != nil {
			return fatread.CastToDriverError(err).WithMessage(
				fmt.Sprintf("failed to read cluster %d", cluster))
		}
	}
	reader.offset = 0
	return nil
}

// Read implements io.Reader. Errors from the chain walker or the block source are
// returned as-is and are sticky; the end of the chain is io.EOF.
func (reader *ChainReader) Read(buffer []byte) (int, error) {
	if reader.err != nil {
		return 0, reader.err
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	if reader.cluster == nil || reader.offset >= len(reader.cluster) {
		if !reader.walker.Next() {
			reader.err = reader.walker.Err()
			if reader.err == nil {
				reader.err = io.EOF
			}
			return 0, reader.err
		}

		err := reader.readCluster(reader.walker.Cluster())
		if err != nil {
			reader.err = err
			return 0, err
		}
	}

	n := copy(buffer, reader.cluster[reader.offset:])
	reader.offset += n
	return n, nil
}
