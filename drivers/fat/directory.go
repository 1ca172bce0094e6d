package fat

import (
	"errors"
	"io"

	"github.com/dargueta/fatread"
	"github.com/sirupsen/logrus"
)

// DirentDecoder turns a stream of raw 32-byte directory records into directory
// entries, assembling long file names along the way. Deleted records and long
// name fragments never come out of it; volume labels and the "." and ".."
// entries do, and are flagged as such.
//
// Decoding stops at the first record beginning with a null byte, at the end of
// the stream, or at a trailing partial record.
type DirentDecoder struct {
	records  io.Reader
	log      logrus.FieldLogger
	longName longNameBuilder
	record   [DirentSize]byte
	current  Dirent
	done     bool
	err      error
}

// NewDirentDecoder creates a decoder over `records`, typically a ChainReader over
// the clusters of a directory. Long name validation failures are reported to `log`
// at debug level.
func NewDirentDecoder(records io.Reader, log logrus.FieldLogger) *DirentDecoder {
	return &DirentDecoder{
		records: records,
		log:     log,
	}
}

// Next decodes the next directory entry. It returns false at the end of the
// directory or on error; use Err to tell the two apart.
func (decoder *DirentDecoder) Next() bool {
	for !decoder.done {
		_, err := io.ReadFull(decoder.records, decoder.record[:])
		if err != nil {
			decoder.done = true
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				decoder.err = fatread.CastToDriverError(err)
			}
			return false
		}

		switch decoder.record[0] {
		case direntEndOfDirectory:
			decoder.done = true
			return false
		case direntDeleted:
			decoder.longName.reset()
			continue
		}

		raw := NewRawDirentFromBytes(decoder.record[:])
		if raw.IsLongNameFragment() {
			decoder.longName.add(NewLongNameFragmentFromBytes(decoder.record[:]))
			continue
		}

		longName := ""
		if raw.AttributeFlags&AttrVolumeLabel == 0 && decoder.longName.pending() {
			longName, err = decoder.longName.build(raw.ShortNameBytes())
			if err != nil {
				decoder.log.WithFields(logrus.Fields{
					"short_name": raw.ShortName(),
					"error":      err.Error(),
				}).Debug("discarding invalid long file name")
				longName = ""
			}
		}
		decoder.longName.reset()

		decoder.current = NewDirentFromRaw(&raw, longName)
		return true
	}
	return false
}

// Dirent returns the entry decoded by the last successful call to Next.
func (decoder *DirentDecoder) Dirent() Dirent {
	return decoder.current
}

// Err returns the error that stopped decoding, if any. Reaching the end of the
// directory isn't an error.
func (decoder *DirentDecoder) Err() error {
	return decoder.err
}

// Collect decodes every remaining entry in the directory.
func (decoder *DirentDecoder) Collect() ([]Dirent, error) {
	dirents := []Dirent{}
	for decoder.Next() {
		dirents = append(dirents, decoder.Dirent())
	}
	return dirents, decoder.Err()
}
