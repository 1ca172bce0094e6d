package common

import (
	"fmt"
	"io"

	"github.com/dargueta/fatread"
)

// BlockStream is an abstraction layer around a stream to make it look like a
// block source, e.g. a file that can only be read from in multiples of its
// fundamental unit, a "block".
type BlockStream struct {
	bytesPerBlock uint
	totalBlocks   uint
	// startOffset is an offset from the beginning of the stream, in bytes, that
	// will be considered the beginning of block 0 for the device. This is useful
	// for skipping over MBRs or other volumes stored on the same image.
	startOffset int64
	stream      io.ReadSeeker
}

// NewBlockStream wraps `stream` in a BlockStream. If `totalBlocks` is 0, the
// number of blocks is determined from the size of the stream.
func NewBlockStream(
	stream io.ReadSeeker, totalBlocks uint, blockSize uint, startOffset int64,
) (*BlockStream, error) {
	if blockSize == 0 {
		return nil, fatread.ErrInvalidArgument.WithMessage("block size can't be 0")
	}

	if totalBlocks == 0 {
		count, err := DetermineBlockCount(stream, blockSize, startOffset)
		if err != nil {
			return nil, err
		}
		totalBlocks = count
	}

	return &BlockStream{
		bytesPerBlock: blockSize,
		totalBlocks:   totalBlocks,
		startOffset:   startOffset,
		stream:        stream,
	}, nil
}

// NewBasicBlockStream is a constructor that creates a new BlockStream with
// 512-byte blocks, starting from an offset of 0, sized to fit the stream.
func NewBasicBlockStream(stream io.ReadSeeker) (*BlockStream, error) {
	return NewBlockStream(stream, 0, 512, 0)
}

// DetermineBlockCount gives the total number of blocks in a stream past
// `startOffset`, rounded down to the nearest block.
func DetermineBlockCount(stream io.Seeker, blockSize uint, startOffset int64) (uint, error) {
	offset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fatread.ErrIOFailed.Wrap(err)
	}
	if offset < startOffset {
		return 0, nil
	}
	return uint((offset - startOffset) / int64(blockSize)), nil
}

func (device *BlockStream) BytesPerBlock() uint {
	return device.bytesPerBlock
}

func (device *BlockStream) TotalBlocks() uint {
	return device.totalBlocks
}

// BlockIDToFileOffset converts a block ID into a byte offset into the backing
// I/O stream.
func (device *BlockStream) BlockIDToFileOffset(blockID BlockID) (int64, error) {
	if uint(blockID) >= device.totalBlocks {
		return -1,
			fatread.ErrIOFailed.WithMessage(
				fmt.Sprintf(
					"invalid block ID %d: not in range [0, %d)",
					blockID,
					device.totalBlocks))
	}
	return device.startOffset + (int64(blockID) * int64(device.bytesPerBlock)), nil
}

// CheckIOBounds checks to see if `dataLength` bytes can be read from the block
// stream, starting at blockID. If the bounds check fails, it returns an error
// indicating exactly what went wrong.
func (device *BlockStream) CheckIOBounds(blockID BlockID, dataLength uint) error {
	if uint(blockID) >= device.totalBlocks {
		return fatread.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"invalid block ID %d: not in range [0, %d)",
				blockID,
				device.totalBlocks))
	}

	if dataLength%device.bytesPerBlock != 0 {
		return fatread.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"data must be a multiple of the block size (%d B), got %d (remainder %d)",
				device.bytesPerBlock,
				dataLength,
				dataLength%device.bytesPerBlock))
	}

	dataSizeInBlocks := dataLength / device.bytesPerBlock
	if uint(blockID)+dataSizeInBlocks > device.totalBlocks {
		return fatread.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"block %d plus %d blocks of data extends past end of image",
				blockID,
				dataSizeInBlocks))
	}

	return nil
}

// ReadBlock fills `buffer` with the contents of block `blockID`. `buffer` must be
// exactly one block long.
func (device *BlockStream) ReadBlock(blockID BlockID, buffer []byte) error {
	if uint(len(buffer)) != device.bytesPerBlock {
		return fatread.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly %d bytes, got %d", device.bytesPerBlock, len(buffer)))
	}
	return device.Read(blockID, buffer)
}

// Read fills `buffer` with whole blocks starting from `blockID`. The length of
// `buffer` must be a multiple of the block size.
func (device *BlockStream) Read(blockID BlockID, buffer []byte) error {
	err := device.CheckIOBounds(blockID, uint(len(buffer)))
	if err != nil {
		return err
	}

	offset, err := device.BlockIDToFileOffset(blockID)
	if err != nil {
		return err
	}

	_, err = device.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return fatread.ErrIOFailed.Wrap(err)
	}

	_, err = io.ReadFull(device.stream, buffer)
	if err != nil {
		return fatread.ErrIOFailed.WithMessage(
			fmt.Sprintf("short read at block %d", blockID)).Wrap(err)
	}
	return nil
}
