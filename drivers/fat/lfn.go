package fat

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/dargueta/fatread"
)

const (
	// lfnLastFragment is set in the sequence byte of the fragment holding the end
	// of the name. It's the first fragment stored on disk.
	lfnLastFragment = 0x40
	lfnSequenceMask = 0x1F
	// lfnCharsPerFragment is the number of UTF-16 code units in one fragment.
	lfnCharsPerFragment = 13
	// MaxLongNameLength is the maximum number of UTF-16 code units in a long name.
	MaxLongNameLength = 255
)

// LongNameFragment is one 32-byte record holding up to 13 characters of a long
// file name.
type LongNameFragment struct {
	Sequence uint8
	IsLast   bool
	Checksum uint8
	Chars    [lfnCharsPerFragment]uint16
}

// NewLongNameFragmentFromBytes decodes a long name record. The caller must have
// already checked the attribute byte.
func NewLongNameFragmentFromBytes(data []byte) LongNameFragment {
	fragment := LongNameFragment{
		Sequence: data[0] & lfnSequenceMask,
		IsLast:   data[0]&lfnLastFragment != 0,
		Checksum: data[13],
	}

	i := 0
	for _, span := range [][2]int{{1, 11}, {14, 26}, {28, 32}} {
		for offset := span[0]; offset < span[1]; offset += 2 {
			fragment.Chars[i] = binary.LittleEndian.Uint16(data[offset : offset+2])
			i++
		}
	}
	return fragment
}

// ShortNameChecksum computes the checksum of an 11-byte 8.3 name that long name
// fragments use to refer to the short entry they belong to.
func ShortNameChecksum(shortName []byte) uint8 {
	var sum uint8
	for _, b := range shortName {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}

// longNameBuilder accumulates long name fragments in the order they're found on
// disk until the short entry they belong to shows up.
type longNameBuilder struct {
	fragments []LongNameFragment
}

func (b *longNameBuilder) reset() {
	b.fragments = b.fragments[:0]
}

func (b *longNameBuilder) add(fragment LongNameFragment) {
	if fragment.IsLast {
		// Start of a new name. Anything before it was orphaned.
		b.reset()
	}
	b.fragments = append(b.fragments, fragment)
}

func (b *longNameBuilder) pending() bool {
	return len(b.fragments) > 0
}

// build validates the buffered fragments against the short entry with the given
// raw name and returns the assembled long name. On any failure it returns an
// error; the caller is expected to fall back to the short name.
func (b *longNameBuilder) build(shortName []byte) (string, error) {
	if len(b.fragments) == 0 {
		return "", nil
	}

	expectedChecksum := ShortNameChecksum(shortName)
	first := b.fragments[0]
	if !first.IsLast {
		return "", fatread.ErrChecksumMismatch.WithMessage(
			"first long name fragment isn't marked as the last one")
	}
	if int(first.Sequence) != len(b.fragments) {
		return "", fatread.ErrChecksumMismatch.WithMessage(
			fmt.Sprintf(
				"expected %d long name fragments, found %d",
				first.Sequence,
				len(b.fragments)))
	}

	for i, fragment := range b.fragments {
		if fragment.Checksum != expectedChecksum {
			return "", fatread.ErrChecksumMismatch.WithMessage(
				fmt.Sprintf(
					"fragment %d has checksum 0x%02x, short name has 0x%02x",
					fragment.Sequence,
					fragment.Checksum,
					expectedChecksum))
		}
		if int(fragment.Sequence) != len(b.fragments)-i {
			return "", fatread.ErrChecksumMismatch.WithMessage(
				fmt.Sprintf(
					"fragment sequence out of order: expected %d, got %d",
					len(b.fragments)-i,
					fragment.Sequence))
		}
	}

	// Fragments are stored last-first, so walk them backwards.
	units := make([]uint16, 0, len(b.fragments)*lfnCharsPerFragment)
	for i := len(b.fragments) - 1; i >= 0; i-- {
		for _, char := range b.fragments[i].Chars {
			if char == 0x0000 {
				return string(utf16.Decode(units)), nil
			}
			units = append(units, char)
		}
	}

	if len(units) > MaxLongNameLength {
		return "", fatread.ErrNameTooLong.WithMessage(
			fmt.Sprintf("long name has %d characters", len(units)))
	}
	return string(utf16.Decode(units)), nil
}
