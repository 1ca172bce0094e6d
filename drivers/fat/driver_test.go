package fat_test

import (
	"bytes"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/dargueta/fatread"
	"github.com/dargueta/fatread/drivers/common"
	"github.com/dargueta/fatread/drivers/fat"
	fatreadtest "github.com/dargueta/fatread/testing"
	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

const helloContent = "Hello, world!\n"

type sampleImage struct {
	*fatreadtest.FAT32Image
	helloCluster  uint32
	subdirCluster uint32
	deeperCluster uint32
	bigContent    []byte
}

// newSampleImage builds this tree:
//
//	/hello.txt
//	/subdir/
//	/subdir/nested.txt
//	/subdir/deeper/
//	/subdir/deeper/BIG.BIN      (3 clusters and a bit)
func newSampleImage(t *testing.T) *sampleImage {
	image := &sampleImage{FAT32Image: fatreadtest.NewFAT32Image(t)}
	root := image.RootCluster()

	image.helloCluster = image.AddFile(root, "hello.txt", []byte(helloContent))
	image.subdirCluster = image.AddDirectory(root, "subdir")
	image.AddFile(image.subdirCluster, "nested.txt", []byte("nested"))
	image.deeperCluster = image.AddDirectory(image.subdirCluster, "deeper")

	image.bigContent = make([]byte, 512*3+100)
	for i := range image.bigContent {
		image.bigContent[i] = byte(i * 7)
	}
	image.AddFile(image.deeperCluster, "BIG.BIN", image.bigContent)
	return image
}

func direntNames(dirents []fat.Dirent) []string {
	names := make([]string, len(dirents))
	for i := range dirents {
		names[i] = dirents[i].Name()
	}
	return names
}

func TestDriver__ListRoot(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	image.AddFile(image.RootCluster(), "hello.txt", []byte(helloContent))
	image.AddDirectory(image.RootCluster(), "subdir")
	drv := image.Mount()

	dirents, err := drv.ListDir("/")
	require.NoError(t, err)
	require.Len(t, dirents, 2)

	assert.Equal(t, "hello.txt", dirents[0].Name())
	assert.Equal(t, fat.KindFile, dirents[0].Kind)
	assert.EqualValues(t, len(helloContent), dirents[0].Size())
	assert.Equal(t, "subdir", dirents[1].Name())
	assert.Equal(t, fat.KindDirectory, dirents[1].Kind)
}

func TestDriver__ListDir__IncludesDotEntries(t *testing.T) {
	drv := newSampleImage(t).Mount()

	dirents, err := drv.ListDir("/subdir")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "nested.txt", "deeper"}, direntNames(dirents))
	assert.True(t, dirents[0].IsDotEntry())
	assert.True(t, dirents[1].IsDotEntry())
}

func TestDriver__ListDir__EmptyPathIsCurrentDirectory(t *testing.T) {
	drv := newSampleImage(t).Mount()
	require.NoError(t, drv.Chdir("/subdir/deeper"))

	dirents, err := drv.ListDir("")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "BIG.BIN"}, direntNames(dirents))
}

func TestDriver__ListDir__SkipsVolumeLabel(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	image.SetVolumeLabel("TESTVOL")
	image.AddFile(image.RootCluster(), "A.TXT", []byte("a"))
	drv := image.Mount()

	dirents, err := drv.ListDir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.TXT"}, direntNames(dirents))

	label, err := drv.Label()
	require.NoError(t, err)
	assert.Equal(t, "TESTVOL", label)
}

func TestDriver__Label__FallsBackToBootSector(t *testing.T) {
	label, err := fatreadtest.NewFAT32Image(t).Mount().Label()
	require.NoError(t, err)
	assert.Equal(t, "NO NAME", label)
}

func TestDriver__ListDir__SpansClusters(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	expected := []string{}
	// 40 short entries need 3 clusters of 16 records each.
	for i := 0; i < 40; i++ {
		name := strings.ToUpper(string(rune('A'+i%26))) + strings.Repeat("X", i/26) + ".DAT"
		image.AddFile(image.RootCluster(), name, []byte{byte(i)})
		expected = append(expected, name)
	}
	drv := image.Mount()

	dirents, err := drv.ListDir("/")
	require.NoError(t, err)
	assert.Equal(t, expected, direntNames(dirents))

	data, err := drv.ReadFile("/NX.DAT")
	require.NoError(t, err)
	assert.Equal(t, []byte{39}, data)
}

func TestDriver__ListDir__OnFile(t *testing.T) {
	drv := newSampleImage(t).Mount()

	_, err := drv.ListDir("/hello.txt")
	assert.ErrorIs(t, err, fatread.ErrNotADirectory)
}

func TestDriver__ListDir__CyclicDirectory(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	loop := image.AddDirectory(image.RootCluster(), "LOOP")
	// 30 files plus "." and ".." fill exactly two clusters, so the decoder never
	// sees an end-of-directory marker before following the chain.
	for i := 0; i < 30; i++ {
		name := string(rune('A'+i/10)) + string(rune('0'+i%10)) + ".TXT"
		image.AddFile(loop, name, []byte{byte(i)})
	}
	second := image.FATEntry(loop)
	image.SetFATEntry(second, loop)
	drv := image.Mount()

	_, err := drv.ListDir("/LOOP")
	assert.ErrorIs(t, err, fatread.ErrCorruptChain)

	// Resolution stops at the first match, so entries in the first cluster can
	// still be found.
	_, err = drv.Stat("/LOOP/A1.TXT")
	assert.NoError(t, err)
}

func TestDriver__ReadDir(t *testing.T) {
	drv := newSampleImage(t).Mount()

	infos, err := drv.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "hello.txt", infos[0].Name())
	assert.False(t, infos[0].IsDir())
	assert.Equal(t, "subdir", infos[1].Name())
	assert.True(t, infos[1].IsDir())
}

func TestDriver__ReadFile(t *testing.T) {
	image := newSampleImage(t)
	drv := image.Mount()

	data, err := drv.ReadFile("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte(helloContent), data)

	data, err = drv.ReadFile("/subdir/deeper/BIG.BIN")
	require.NoError(t, err)
	assert.Equal(t, image.bigContent, data)
}

func TestDriver__ReadFile__TruncatesToDeclaredSize(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	cluster := image.AddFile(image.RootCluster(), "FULL.BIN", bytes.Repeat([]byte{'x'}, 512))
	// Same cluster, but the entry only claims the first 10 bytes.
	image.AddRecord(image.RootCluster(), fatreadtest.ShortRecord("PART    BIN", 0, cluster, 10))
	drv := image.Mount()

	data, err := drv.ReadFile("PART.BIN")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'x'}, 10), data)
}

func TestDriver__ReadFile__ChainShorterThanSize(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	cluster := image.AddFile(image.RootCluster(), "A.BIN", []byte("abc"))
	image.AddRecord(image.RootCluster(), fatreadtest.ShortRecord("B       BIN", 0, cluster, 2000))
	drv := image.Mount()

	_, err := drv.ReadFile("B.BIN")
	assert.ErrorIs(t, err, fatread.ErrCorruptChain)
}

func TestDriver__ReadFile__SizeLargerThanVolume(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	image.AddRecord(image.RootCluster(), fatreadtest.ShortRecord("HUGE    BIN", 0, 3, 0xFFFFFFFF))
	drv := image.Mount()

	_, err := drv.ReadFile("HUGE.BIN")
	assert.ErrorIs(t, err, fatread.ErrCorruptChain)
}

func TestDriver__ReadFile__Empty(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	cluster := image.AddFile(image.RootCluster(), "EMPTY.TXT", nil)
	assert.EqualValues(t, 0, cluster)
	drv := image.Mount()

	data, err := drv.ReadFile("/EMPTY.TXT")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestDriver__ReadFile__Directory(t *testing.T) {
	drv := newSampleImage(t).Mount()

	_, err := drv.ReadFile("/subdir")
	assert.ErrorIs(t, err, fatread.ErrNotAFile)

	_, err = drv.ReadFile("/")
	assert.ErrorIs(t, err, fatread.ErrNotAFile)
}

func TestDriver__Resolve__Errors(t *testing.T) {
	drv := newSampleImage(t).Mount()

	tests := []struct {
		path     string
		expected error
	}{
		{path: "/nope.txt", expected: fatread.ErrNotFound},
		{path: "/subdir/nope/nested.txt", expected: fatread.ErrNotFound},
		{path: "/hello.txt/x", expected: fatread.ErrNotADirectory},
		{path: "/hello.txt/..", expected: fatread.ErrNotADirectory},
		{path: "/" + strings.Repeat("a", 256), expected: fatread.ErrNameTooLong},
	}

	for _, tt := range tests {
		_, err := drv.ReadFile(tt.path)
		assert.ErrorIs(t, err, tt.expected, tt.path)
	}
}

func TestDriver__Resolve__CaseInsensitive(t *testing.T) {
	drv := newSampleImage(t).Mount()

	for _, path := range []string{"/HELLO.TXT", "/Hello.Txt", "/hello~1.txt", "/SUBDIR/Deeper/big.bin"} {
		_, err := drv.Stat(path)
		assert.NoError(t, err, path)
	}
}

func TestDriver__Resolve__DotsAndSlashes(t *testing.T) {
	image := newSampleImage(t)
	drv := image.Mount()

	tests := []struct {
		path     string
		expected string
	}{
		{path: "//subdir///nested.txt", expected: "nested"},
		{path: "/subdir/./nested.txt", expected: "nested"},
		{path: "/subdir/deeper/../nested.txt", expected: "nested"},
		{path: "/subdir/deeper/../../hello.txt", expected: helloContent},
		{path: "/../../hello.txt", expected: helloContent},
	}
	for _, tt := range tests {
		data, err := drv.ReadFile(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.expected, string(data), tt.path)
	}
}

func TestDriver__Stat__Root(t *testing.T) {
	image := newSampleImage(t)
	drv := image.Mount()

	dirent, err := drv.Stat("/")
	require.NoError(t, err)
	assert.True(t, dirent.IsDir())
	assert.Equal(t, "/", dirent.Name())
	assert.EqualValues(t, image.RootCluster(), dirent.FirstCluster)

	dirent, err = drv.Stat("/subdir/..")
	require.NoError(t, err)
	assert.EqualValues(t, image.RootCluster(), dirent.FirstCluster)
}

func TestDriver__Chdir(t *testing.T) {
	drv := newSampleImage(t).Mount()
	assert.Equal(t, "/", drv.Getwd())

	require.NoError(t, drv.Chdir("subdir"))
	assert.Equal(t, "/subdir", drv.Getwd())

	require.NoError(t, drv.Chdir(".."))
	assert.Equal(t, "/", drv.Getwd())

	require.NoError(t, drv.Chdir(".."))
	assert.Equal(t, "/", drv.Getwd(), "parent of root must be root")
}

func TestDriver__Chdir__Nested(t *testing.T) {
	image := newSampleImage(t)
	drv := image.Mount()

	require.NoError(t, drv.Chdir("SUBDIR/DEEPER"))
	assert.Equal(t, "/subdir/deeper", drv.Getwd(), "path should use on-disk names")

	data, err := drv.ReadFile("BIG.BIN")
	require.NoError(t, err)
	assert.Equal(t, image.bigContent, data)

	data, err = drv.ReadFile("../nested.txt")
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))

	require.NoError(t, drv.Chdir(".."))
	assert.Equal(t, "/subdir", drv.Getwd())

	dirent, err := drv.Stat(".")
	require.NoError(t, err)
	assert.EqualValues(t, image.subdirCluster, dirent.FirstCluster)

	require.NoError(t, drv.Chdir("/"))
	assert.Equal(t, "/", drv.Getwd())
}

func TestDriver__Chdir__FailureLeavesStateAlone(t *testing.T) {
	drv := newSampleImage(t).Mount()
	require.NoError(t, drv.Chdir("/subdir"))

	err := drv.Chdir("nested.txt")
	assert.ErrorIs(t, err, fatread.ErrNotADirectory)
	assert.Equal(t, "/subdir", drv.Getwd())

	err = drv.Chdir("missing")
	assert.ErrorIs(t, err, fatread.ErrNotFound)
	assert.Equal(t, "/subdir", drv.Getwd())

	data, err := drv.ReadFile("nested.txt")
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

func TestMountImage__Invalid(t *testing.T) {
	_, err := fat.MountImage(bytesextra.NewReadWriteSeeker(make([]byte, 4096)))
	assert.ErrorIs(t, err, fatread.ErrInvalidBootSector)

	_, err = fat.MountImage(bytesextra.NewReadWriteSeeker([]byte{}))
	assert.ErrorIs(t, err, fatread.ErrInvalidBootSector)
}

func TestMount__BlockSizeMismatch(t *testing.T) {
	image := newSampleImage(t)
	source, err := common.NewBlockStream(image.Stream(), 0, 1024, 0)
	require.NoError(t, err)

	_, err = fat.Mount(source)
	assert.ErrorIs(t, err, fatread.ErrInvalidArgument)
}

func TestMount__LargeSectors(t *testing.T) {
	image := fatreadtest.NewFAT32ImageWithGeometry(t, 2048, 4, 30)
	content := bytes.Repeat([]byte("0123456789"), 2000)
	image.AddFile(image.RootCluster(), "numbers.txt", content)
	drv := image.Mount()

	data, err := drv.ReadFile("/numbers.txt")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestMount__WarnsAboutShortImage(t *testing.T) {
	image := newSampleImage(t)
	logger, hook := logtest.NewNullLogger()

	truncated := image.Bytes()[:512*100]
	drv, err := fat.MountImage(
		bytesextra.NewReadWriteSeeker(truncated), fat.WithLogger(logger))
	require.NoError(t, err)

	var warnings []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry)
		}
	}
	require.Len(t, warnings, 1)
	assert.EqualValues(t, 100, warnings[0].Data["image_sectors"])

	// Everything used by the sample tree lives near the start of the volume.
	data, err := drv.ReadFile("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, helloContent, string(data))
}

func TestDriver__ReadFile__IOFailure(t *testing.T) {
	image := newSampleImage(t)
	backing := fatreadtest.NewImageSource(t, image.FAT32Image)
	badBlock := common.BlockID(image.ClusterOffset(image.helloCluster) / 512)
	sourceErr := errors.New("sector unreadable")

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := fatreadtest.NewMockBlockSource(ctrl)
	source.EXPECT().BytesPerBlock().Return(uint(512)).AnyTimes()
	source.EXPECT().TotalBlocks().Return(backing.TotalBlocks()).AnyTimes()
	source.EXPECT().
		ReadBlock(gomock.Any(), gomock.Any()).
		DoAndReturn(func(block common.BlockID, buffer []byte) error {
			if block == badBlock {
				return sourceErr
			}
			return backing.ReadBlock(block, buffer)
		}).
		AnyTimes()

	drv, err := fat.Mount(source)
	require.NoError(t, err)

	_, err = drv.ReadFile("/hello.txt")
	assert.ErrorIs(t, err, fatread.ErrIOFailed)
	assert.ErrorIs(t, err, sourceErr)

	// Other files are unaffected.
	data, err := drv.ReadFile("/subdir/nested.txt")
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

func TestMount__BootSectorIOFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := fatreadtest.NewMockBlockSource(ctrl)
	source.EXPECT().BytesPerBlock().Return(uint(512)).AnyTimes()
	source.EXPECT().TotalBlocks().Return(uint(100)).AnyTimes()
	source.EXPECT().
		ReadBlock(common.BlockID(0), gomock.Any()).
		Return(errors.New("no medium"))

	_, err := fat.Mount(source)
	assert.ErrorIs(t, err, fatread.ErrIOFailed)
}

func TestDriver__FATSectorsReadLazily(t *testing.T) {
	image := newSampleImage(t)
	backing := fatreadtest.NewImageSource(t, image.FAT32Image)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	reads := map[common.BlockID]int{}
	source := fatreadtest.NewMockBlockSource(ctrl)
	source.EXPECT().BytesPerBlock().Return(uint(512)).AnyTimes()
	source.EXPECT().TotalBlocks().Return(backing.TotalBlocks()).AnyTimes()
	source.EXPECT().
		ReadBlock(gomock.Any(), gomock.Any()).
		DoAndReturn(func(block common.BlockID, buffer []byte) error {
			reads[block]++
			return backing.ReadBlock(block, buffer)
		}).
		AnyTimes()

	drv, err := fat.Mount(source)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = drv.ReadFile("/subdir/deeper/BIG.BIN")
		require.NoError(t, err)
	}

	// The FAT starts at sector 4. Every cluster in the sample is below 128, so
	// only the first FAT sector is needed, and only once. The mirror at sector 6
	// is never touched.
	assert.Equal(t, 1, reads[4])
	assert.Equal(t, 0, reads[5])
	assert.Equal(t, 0, reads[6])
	assert.Equal(t, 0, reads[7])
}

// hugeFATBootSector returns a lone boot sector for a volume that claims to have
// two FATs of `sectorsPerFAT` sectors each and nearly 2^32 sectors in total.
func hugeFATBootSector(t *testing.T, sectorsPerFAT uint32) []byte {
	image := fatreadtest.NewFAT32Image(t)
	boot, err := fat.ParseBootSector(image.Bytes()[:512])
	require.NoError(t, err)

	raw := boot.RawFAT32BootSector
	raw.SectorsPerFAT32 = sectorsPerFAT
	raw.TotalSectors32 = 0xFFFFFFFF
	crafted := &fat.BootSector{RawFAT32BootSector: raw}
	return crafted.Bytes()
}

func TestMount__HugeFATIsNotPreloaded(t *testing.T) {
	// 2^24 sectors of FAT is 8 GiB per copy.
	raw := hugeFATBootSector(t, 0x1000000)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	drv, err := fat.MountImage(bytes.NewReader(raw))
	runtime.ReadMemStats(&after)
	require.NoError(t, err)

	assert.Less(
		t,
		after.TotalAlloc-before.TotalAlloc,
		uint64(4<<20),
		"mounting allocated memory proportional to the declared FAT size")
	assert.EqualValues(t, 0x1000000, drv.BootSector().SectorsPerFAT)

	// None of the FAT or the data region exists in the image.
	_, err = drv.Table().ReadEntry(2)
	assert.ErrorIs(t, err, fatread.ErrIOFailed)

	runtime.ReadMemStats(&before)
	_, err = drv.ListDir("/")
	runtime.ReadMemStats(&after)
	assert.ErrorIs(t, err, fatread.ErrIOFailed)
	assert.Less(
		t,
		after.TotalAlloc-before.TotalAlloc,
		uint64(4<<20),
		"walking a chain allocated memory proportional to the volume size")
}
