// Package blockcache provides a block-oriented read cache that can be used for
// providing a contiguous view of a single file system object stored on the disk
// image, such as a copy of the FAT. Blocks are only fetched from storage the
// first time they're accessed.
//
// All block indexes begin at 0.

package blockcache

import (
	"fmt"

	"github.com/dargueta/fatread"
	c "github.com/dargueta/fatread/drivers/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the underlying storage into `buffer`. `buffer` is guaranteed
// to be the size of exactly one block.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

type BlockCache struct {
	blocks        map[c.LogicalBlock][]byte
	fetch         FetchBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
}

// New creates a new BlockCache. No blocks are loaded until they're accessed, and
// memory is only allocated for blocks that have been loaded, so `totalBlocks` can
// be far larger than what would fit in memory.
func New(
	bytesPerBlock uint,
	totalBlocks uint,
	fetchCb FetchBlockCallback,
) *BlockCache {
	return &BlockCache{
		blocks:        map[c.LogicalBlock][]byte{},
		fetch:         fetchCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// BytesPerBlock returns the size of a single block, in bytes.
func (cache *BlockCache) BytesPerBlock() uint {
	return cache.bytesPerBlock
}

// TotalBlocks returns the size of the cache, in blocks.
func (cache *BlockCache) TotalBlocks() uint {
	return cache.totalBlocks
}

// Size returns the size of the cache, in bytes.
func (cache *BlockCache) Size() int64 {
	return int64(cache.bytesPerBlock) * int64(cache.totalBlocks)
}

// LoadedBlocks returns the number of blocks currently held in memory.
func (cache *BlockCache) LoadedBlocks() int {
	return len(cache.blocks)
}

// IsLoaded returns true if the block has already been fetched from storage.
func (cache *BlockCache) IsLoaded(blockIndex c.LogicalBlock) bool {
	_, ok := cache.blocks[blockIndex]
	return ok
}

// checkBounds verifies that `numBlocks` blocks can be accessed in the cache
// starting from block `start`. If not, it returns an error describing the exact
// conditions. If no error would occur, this returns nil.
func (cache *BlockCache) checkBounds(start c.LogicalBlock, numBlocks uint) error {
	if uint(start)+numBlocks > cache.totalBlocks || uint(start)+numBlocks < uint(start) {
		return fatread.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d blocks from block %d; range not in [0, %d)",
				numBlocks,
				start,
				cache.totalBlocks,
			))
	}
	return nil
}

// loadBlock returns the cached contents of block `blockIndex`, fetching it from
// storage first if needed. The block index must already be bounds-checked.
func (cache *BlockCache) loadBlock(blockIndex c.LogicalBlock) ([]byte, error) {
	block, ok := cache.blocks[blockIndex]
	if ok {
		return block, nil
	}

	block = make([]byte, cache.bytesPerBlock)
	err := cache.fetch(blockIndex, block)
	if err != nil {
		return nil, fatread.CastToDriverError(err).WithMessage(
			fmt.Sprintf("failed to load block %d from source", blockIndex))
	}

	cache.blocks[blockIndex] = block
	return block, nil
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count)
	if err != nil {
		return err
	}

	for i := uint(0); i < count; i++ {
		_, err = cache.loadBlock(start + c.LogicalBlock(i))
		if err != nil {
			return err
		}
	}
	return nil
}

// Block returns a read-only view of a single block, loading it first if needed.
// Callers must not modify the returned slice.
func (cache *BlockCache) Block(blockIndex c.LogicalBlock) ([]byte, error) {
	err := cache.checkBounds(blockIndex, 1)
	if err != nil {
		return nil, err
	}
	return cache.loadBlock(blockIndex)
}

// LoadAll ensures all missing blocks are loaded from storage into the cache.
func (cache *BlockCache) LoadAll() error {
	return cache.loadBlockRange(0, cache.totalBlocks)
}

// ReadAt fills `buffer` with data beginning at byte offset `offset` into the
// cache, loading any missing blocks first. Neither `offset` nor the length of
// `buffer` need to be aligned to block boundaries.
//
// Attempting to read past the end of the cache will result in an error, and
// `buffer` will be left unmodified.
func (cache *BlockCache) ReadAt(buffer []byte, offset int64) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}
	if offset < 0 || offset+int64(len(buffer)) > cache.Size() {
		return 0, fatread.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't read %d bytes at offset %d; cache is %d bytes",
				len(buffer),
				offset,
				cache.Size()))
	}

	bytesPerBlock := int64(cache.bytesPerBlock)
	firstBlock := c.LogicalBlock(offset / bytesPerBlock)
	lastBlock := c.LogicalBlock((offset + int64(len(buffer)) - 1) / bytesPerBlock)

	err := cache.loadBlockRange(firstBlock, uint(lastBlock-firstBlock)+1)
	if err != nil {
		return 0, err
	}

	copied := 0
	for blockIndex := firstBlock; blockIndex <= lastBlock; blockIndex++ {
		block := cache.blocks[blockIndex]
		start := int64(0)
		if blockIndex == firstBlock {
			start = offset % bytesPerBlock
		}
		copied += copy(buffer[copied:], block[start:])
	}
	return copied, nil
}
