package fat_test

import (
	"testing"

	"github.com/dargueta/fatread"
	"github.com/dargueta/fatread/drivers/fat"
	fatreadtest "github.com/dargueta/fatread/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBootSector__Geometry(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	raw := image.Bytes()

	boot, err := fat.ParseBootSector(raw[:512])
	require.NoError(t, err)

	// 200 data clusters need 202 FAT entries, which fit in 2 sectors.
	assert.EqualValues(t, 512, boot.BytesPerSector)
	assert.EqualValues(t, 1, boot.SectorsPerCluster)
	assert.EqualValues(t, 2, boot.SectorsPerFAT)
	assert.EqualValues(t, 4, boot.FirstFATSector)
	assert.EqualValues(t, 8, boot.FirstDataSector)
	assert.EqualValues(t, 208, boot.TotalSectors)
	assert.EqualValues(t, 200, boot.TotalClusters)
	assert.EqualValues(t, 201, boot.MaxCluster)
	assert.EqualValues(t, 512, boot.BytesPerCluster)
	assert.Equal(t, 16, boot.DirentsPerCluster)
	assert.EqualValues(t, 2, boot.RootCluster)
	assert.Equal(t, "NO NAME", boot.Label())
}

func TestParseBootSector__LargeSectors(t *testing.T) {
	image := fatreadtest.NewFAT32ImageWithGeometry(t, 4096, 8, 50)

	boot, err := fat.ParseBootSector(image.Bytes())
	require.NoError(t, err)
	assert.EqualValues(t, 4096, boot.BytesPerSector)
	assert.EqualValues(t, 32768, boot.BytesPerCluster)
	assert.EqualValues(t, 50, boot.TotalClusters)
	assert.Equal(t, 1024, boot.DirentsPerCluster)
}

func TestParseBootSector__RoundTrip(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	raw := image.Bytes()[:512]

	boot, err := fat.ParseBootSector(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, boot.Bytes())

	reparsed, err := fat.ParseBootSector(boot.Bytes())
	require.NoError(t, err)
	assert.Equal(t, boot, reparsed)
}

func TestParseBootSector__MaxClusterLimitedByFAT(t *testing.T) {
	image := fatreadtest.NewFAT32Image(t)
	// Claim far more sectors than the 2-sector FAT can describe. 2 sectors hold
	// 256 entries, so the last usable cluster is 255.
	image.Boot.TotalSectors32 = 10000

	boot, err := fat.ParseBootSector(image.Bytes()[:512])
	require.NoError(t, err)
	assert.EqualValues(t, 9992, boot.TotalClusters)
	assert.EqualValues(t, 255, boot.MaxCluster)
}

func TestParseBootSector__Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(raw *fat.RawFAT32BootSector)
	}{
		{
			name:   "bad signature",
			modify: func(raw *fat.RawFAT32BootSector) { raw.Signature = [2]byte{0x55, 0xAB} },
		},
		{
			name:   "zero bytes per sector",
			modify: func(raw *fat.RawFAT32BootSector) { raw.BytesPerSector = 0 },
		},
		{
			name:   "bytes per sector not a power of 2",
			modify: func(raw *fat.RawFAT32BootSector) { raw.BytesPerSector = 768 },
		},
		{
			name:   "bytes per sector too small",
			modify: func(raw *fat.RawFAT32BootSector) { raw.BytesPerSector = 256 },
		},
		{
			name:   "bytes per sector too big",
			modify: func(raw *fat.RawFAT32BootSector) { raw.BytesPerSector = 8192 },
		},
		{
			name:   "zero sectors per cluster",
			modify: func(raw *fat.RawFAT32BootSector) { raw.SectorsPerCluster = 0 },
		},
		{
			name:   "sectors per cluster not a power of 2",
			modify: func(raw *fat.RawFAT32BootSector) { raw.SectorsPerCluster = 3 },
		},
		{
			name:   "no FATs",
			modify: func(raw *fat.RawFAT32BootSector) { raw.NumFATs = 0 },
		},
		{
			name:   "no reserved sectors",
			modify: func(raw *fat.RawFAT32BootSector) { raw.ReservedSectors = 0 },
		},
		{
			name:   "FAT16 root directory",
			modify: func(raw *fat.RawFAT32BootSector) { raw.RootEntryCount = 512 },
		},
		{
			name: "FAT16 FAT size",
			modify: func(raw *fat.RawFAT32BootSector) {
				raw.SectorsPerFAT16 = 2
				raw.SectorsPerFAT32 = 0
			},
		},
		{
			name:   "no data region",
			modify: func(raw *fat.RawFAT32BootSector) { raw.TotalSectors32 = 8 },
		},
		{
			name:   "root cluster too low",
			modify: func(raw *fat.RawFAT32BootSector) { raw.RootCluster = 1 },
		},
		{
			name:   "root cluster too high",
			modify: func(raw *fat.RawFAT32BootSector) { raw.RootCluster = 202 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image := fatreadtest.NewFAT32Image(t)
			tt.modify(&image.Boot)

			boot, err := fat.ParseBootSector(image.Bytes()[:512])
			assert.Nil(t, boot)
			assert.ErrorIs(t, err, fatread.ErrInvalidBootSector)
		})
	}
}

func TestParseBootSector__TooShort(t *testing.T) {
	_, err := fat.ParseBootSector(make([]byte, 511))
	assert.ErrorIs(t, err, fatread.ErrInvalidBootSector)
}

func TestParseBootSector__AllZeroes(t *testing.T) {
	_, err := fat.ParseBootSector(make([]byte, 512))
	assert.ErrorIs(t, err, fatread.ErrInvalidBootSector)
}
