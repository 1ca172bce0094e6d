package fat

import (
	"encoding/binary"
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1 << iota

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings. This driver doesn't honor it.
	AttrHidden = 1 << iota

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system.
	AttrSystem = 1 << iota

	// AttrVolumeLabel is an attribute flag that marks a directory entry as holding
	// the volume label of the file system. It should only appear in the root
	// directory.
	AttrVolumeLabel = 1 << iota

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	AttrDirectory = 1 << iota

	// AttrArchived is an attribute flag used by some systems to mark a directory entry
	// as modified since the last backup.
	AttrArchived = 1 << iota

	// AttrLongName is the combination of attribute flags that marks a record as a
	// fragment of a long file name rather than a real directory entry.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

const (
	// ntLowercaseBase is set in NTReserved when the base name of an 8.3 name was
	// written in lowercase.
	ntLowercaseBase = 0x08
	// ntLowercaseExtension is set in NTReserved when the extension of an 8.3 name
	// was written in lowercase.
	ntLowercaseExtension = 0x10
)

// Markers found in the first byte of a directory record.
const (
	direntEndOfDirectory = 0x00
	direntDeleted        = 0xE5
	// direntEscapedE5 replaces a real leading 0xE5 in the name so the entry isn't
	// mistaken for a deleted one.
	direntEscapedE5 = 0x05
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// RawDirent is the on-disk representation of a directory entry, broken down into its
// constituent fields.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// NewRawDirentFromBytes deserializes 32 bytes into a RawDirent struct for further
// processing.
func NewRawDirentFromBytes(data []byte) RawDirent {
	dirent := RawDirent{
		AttributeFlags:    data[11],
		NTReserved:        data[12],
		CreatedTimeTenths: data[13],
		CreatedTime:       binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(data[16:18]),
		LastAccessedDate:  binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(data[20:22]),
		LastModifiedTime:  binary.LittleEndian.Uint16(data[22:24]),
		LastModifiedDate:  binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:   binary.LittleEndian.Uint16(data[26:28]),
		FileSize:          binary.LittleEndian.Uint32(data[28:32]),
	}
	copy(dirent.Name[:], data[:8])
	copy(dirent.Extension[:], data[8:11])
	return dirent
}

// ShortNameBytes returns the 11 raw bytes of the 8.3 name, as used for computing
// long file name checksums.
func (raw *RawDirent) ShortNameBytes() []byte {
	name := make([]byte, 11)
	copy(name, raw.Name[:])
	copy(name[8:], raw.Extension[:])
	return name
}

// FirstCluster combines the two halves of the first cluster number.
func (raw *RawDirent) FirstCluster() ClusterID {
	return ClusterID((uint32(raw.FirstClusterHigh) << 16) | uint32(raw.FirstClusterLow))
}

// IsLongNameFragment returns true if this record holds part of a long file name.
func (raw *RawDirent) IsLongNameFragment() bool {
	return raw.AttributeFlags&0x3F == AttrLongName
}

// decodeOEMString converts bytes in the DOS OEM character set (code page 437) to
// a Go string.
func decodeOEMString(data []byte) string {
	var builder strings.Builder
	for _, b := range data {
		builder.WriteRune(charmap.CodePage437.DecodeByte(b))
	}
	return builder.String()
}

// ShortName converts the 8.3 name into its display form, e.g. "HELLO   TXT" to
// "HELLO.TXT". The lowercase flags some systems store in NTReserved are applied.
func (raw *RawDirent) ShortName() string {
	nameBytes := make([]byte, 8)
	copy(nameBytes, raw.Name[:])
	if nameBytes[0] == direntEscapedE5 {
		nameBytes[0] = direntDeleted
	}

	base := strings.TrimRight(decodeOEMString(nameBytes), " ")
	ext := strings.TrimRight(decodeOEMString(raw.Extension[:]), " ")

	if raw.NTReserved&ntLowercaseBase != 0 {
		base = strings.ToLower(base)
	}
	if raw.NTReserved&ntLowercaseExtension != 0 {
		ext = strings.ToLower(ext)
	}

	if ext == "" {
		return base
	}
	return base + "." + ext
}

// VolumeLabel returns the 11-byte name field as a volume label. Unlike file names
// there's no implied dot between the base name and the extension.
func (raw *RawDirent) VolumeLabel() string {
	return strings.TrimRight(decodeOEMString(raw.ShortNameBytes()), " ")
}

// DateFromInt converts the FAT on-disk representation of a date into a Go time.Time
// object. Dates with a zero day or month are invalid and give the zero time.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts converts a FAT timestamp into a time.Time object. datePart is
// required; timePart and tenths should be 0 if they're not present in the source
// field(s). `tenths` is in units of 10 ms and may add up to 1.99 s.
func TimestampFromParts(datePart uint16, timePart uint16, tenths uint8) time.Time {
	dateDt := DateFromInt(datePart)
	if dateDt.IsZero() {
		return dateDt
	}

	seconds := int(timePart&0x001f) * 2
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(tenths) * 10 * int(time.Millisecond)

	return time.Date(
		dateDt.Year(), dateDt.Month(), dateDt.Day(), hours, minutes, seconds, nanoseconds,
		time.UTC)
}

// AttrFlagsToFileMode converts FAT attribute flags into Go's os.FileMode.
func AttrFlagsToFileMode(flags uint8) os.FileMode {
	// FAT has no way to mark files as executable, so the executable bit is always clear
	// for files.
	var mode os.FileMode = 0o644
	if (flags & AttrReadOnly) != 0 {
		mode = 0o444
	}

	if (flags & AttrDirectory) != 0 {
		// Directories must be searchable.
		return os.ModeDir | mode | 0o111
	}
	return mode
}

// -----------------------------------------------------------------------------

// DirentKind says what sort of object a directory entry describes.
type DirentKind int

const (
	KindFile DirentKind = iota
	KindDirectory
	KindVolumeLabel
)

func (k DirentKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindVolumeLabel:
		return "volume label"
	default:
		return "unknown"
	}
}

// Dirent is a representation of a FAT directory entry's data in a user-friendly format,
// e.g. 0x50FC is a time.Time representing 2020-07-28 00:00:00 UTC.
type Dirent struct {
	name string
	// ShortName is the 8.3 name in display form.
	ShortName string
	// LongName is the VFAT long name, or empty if the entry has none or its long
	// name records were invalid.
	LongName       string
	AttributeFlags uint8
	Kind           DirentKind
	FirstCluster   ClusterID
	Created        time.Time
	LastAccessed   time.Time
	LastModified   time.Time
	size           int64
	isDot          bool
}

// NewDirentFromRaw creates a fully processed Dirent from a raw one. `longName` is
// the already-validated long name, or an empty string.
func NewDirentFromRaw(raw *RawDirent, longName string) Dirent {
	dirent := Dirent{
		AttributeFlags: raw.AttributeFlags,
		FirstCluster:   raw.FirstCluster(),
		LastAccessed:   DateFromInt(raw.LastAccessedDate),
		LastModified:   TimestampFromParts(raw.LastModifiedDate, raw.LastModifiedTime, 0),
		Created: TimestampFromParts(
			raw.CreatedDate, raw.CreatedTime, raw.CreatedTimeTenths),
	}

	switch {
	case raw.AttributeFlags&AttrVolumeLabel != 0:
		dirent.Kind = KindVolumeLabel
		dirent.ShortName = raw.VolumeLabel()
		dirent.name = dirent.ShortName
		return dirent
	case raw.AttributeFlags&AttrDirectory != 0:
		dirent.Kind = KindDirectory
	default:
		dirent.Kind = KindFile
		dirent.size = int64(raw.FileSize)
	}

	dirent.ShortName = raw.ShortName()
	dirent.isDot = dirent.ShortName == "." || dirent.ShortName == ".."
	if longName != "" && !dirent.isDot {
		dirent.LongName = longName
		dirent.name = longName
	} else {
		dirent.name = dirent.ShortName
	}
	return dirent
}

// newRootDirent creates the entry standing in for the root directory, which has
// no directory entry of its own.
func newRootDirent(rootCluster ClusterID) Dirent {
	return Dirent{
		name:           "/",
		ShortName:      "/",
		AttributeFlags: AttrDirectory,
		Kind:           KindDirectory,
		FirstCluster:   rootCluster,
	}
}

// IsDotEntry returns true for the "." and ".." entries every subdirectory has.
func (d *Dirent) IsDotEntry() bool { return d.isDot }

// IsVolumeLabel returns true if the entry holds the volume label.
func (d *Dirent) IsVolumeLabel() bool { return d.Kind == KindVolumeLabel }

// MatchesName returns true if `name` is equal to the long or the short name of the
// entry, ignoring case.
func (d *Dirent) MatchesName(name string) bool {
	if d.LongName != "" && strings.EqualFold(d.LongName, name) {
		return true
	}
	return strings.EqualFold(d.ShortName, name)
}

// Dirent implementation of FileInfo -------------------------------------------

// Name returns the display name of the directory entry: the long name if there is
// one, the 8.3 name otherwise.
func (d *Dirent) Name() string { return d.name }

// Size is the size of the directory entry if and ONLY if it's a regular file.
// Directories always have a size of 0.
func (d *Dirent) Size() int64 { return d.size }

func (d *Dirent) Mode() os.FileMode { return AttrFlagsToFileMode(d.AttributeFlags) }

func (d *Dirent) ModTime() time.Time { return d.LastModified }

func (d *Dirent) IsDir() bool { return d.Kind == KindDirectory }

func (d *Dirent) Sys() interface{} { return nil }
