package main

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/dargueta/fatread"
	"github.com/dargueta/fatread/drivers/fat"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func (app *application) configureLogging(context *cli.Context) error {
	level, err := logrus.ParseLevel(context.String("log-level"))
	if err != nil {
		return fatread.ErrInvalidArgument.Wrap(err)
	}
	app.log.SetLevel(level)
	app.log.SetOutput(context.App.ErrWriter)
	return nil
}

// mount opens the image named by --image and mounts it. The caller must close
// the returned file once it's done with the driver.
func (app *application) mount(context *cli.Context) (*fat.Driver, afero.File, error) {
	imagePath := context.String("image")
	file, err := app.fs.Open(imagePath)
	if err != nil {
		return nil, nil, fatread.ErrIOFailed.Wrap(err)
	}

	drv, err := fat.MountImage(file, fat.WithLogger(app.log.WithField("image", imagePath)))
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return drv, file, nil
}

// listingRow is one line of `ls --csv` output.
type listingRow struct {
	Name         string `csv:"name"`
	ShortName    string `csv:"short_name"`
	Kind         string `csv:"kind"`
	Size         int64  `csv:"size"`
	FirstCluster uint32 `csv:"first_cluster"`
	Modified     string `csv:"modified"`
}

func newListingRow(dirent *fat.Dirent) listingRow {
	modified := ""
	if !dirent.LastModified.IsZero() {
		modified = dirent.LastModified.Format(time.RFC3339)
	}
	return listingRow{
		Name:         dirent.Name(),
		ShortName:    dirent.ShortName,
		Kind:         dirent.Kind.String(),
		Size:         dirent.Size(),
		FirstCluster: uint32(dirent.FirstCluster),
		Modified:     modified,
	}
}

// writeListing prints one entry per line, directories with a trailing slash.
func writeListing(out io.Writer, dirents []fat.Dirent) {
	if len(dirents) == 0 {
		fmt.Fprintln(out, "(empty)")
		return
	}
	for i := range dirents {
		marker := ""
		if dirents[i].IsDir() {
			marker = "/"
		}
		fmt.Fprintf(out, "%s%s\n", dirents[i].Name(), marker)
	}
}

// writeFileContents prints `data` as text if it's valid UTF-8, or a placeholder
// if it isn't. Output always ends with a newline.
func writeFileContents(out io.Writer, data []byte) {
	if utf8.Valid(data) {
		out.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Fprintln(out)
		}
		return
	}
	fmt.Fprintf(out, "<binary data, %d bytes>\n", len(data))
}

func (app *application) listDirectory(context *cli.Context) error {
	drv, file, err := app.mount(context)
	if err != nil {
		return err
	}
	defer file.Close()

	path := "/"
	if context.NArg() > 0 {
		path = context.Args().First()
	}

	dirents, err := drv.ListDir(path)
	if err != nil {
		return err
	}

	out := context.App.Writer
	if !context.Bool("csv") {
		writeListing(out, dirents)
		return nil
	}

	rows := make([]listingRow, len(dirents))
	for i := range dirents {
		rows[i] = newListingRow(&dirents[i])
	}
	return gocsv.Marshal(rows, out)
}

func (app *application) catFile(context *cli.Context) error {
	if context.NArg() != 1 {
		return fatread.ErrInvalidArgument.WithMessage("usage: cat PATH")
	}

	drv, file, err := app.mount(context)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := drv.ReadFile(context.Args().First())
	if err != nil {
		return err
	}
	writeFileContents(context.App.Writer, data)
	return nil
}

func (app *application) showInfo(context *cli.Context) error {
	drv, file, err := app.mount(context)
	if err != nil {
		return err
	}
	defer file.Close()

	label, err := drv.Label()
	if err != nil {
		return err
	}

	boot := drv.BootSector()
	out := context.App.Writer
	fmt.Fprintf(out, "Volume label:        %s\n", label)
	fmt.Fprintf(out, "Volume ID:           %04X-%04X\n", boot.VolumeID>>16, boot.VolumeID&0xFFFF)
	fmt.Fprintf(out, "Bytes per sector:    %d\n", boot.BytesPerSector)
	fmt.Fprintf(out, "Sectors per cluster: %d\n", boot.SectorsPerCluster)
	fmt.Fprintf(out, "Reserved sectors:    %d\n", boot.ReservedSectors)
	fmt.Fprintf(out, "FATs:                %d x %d sectors\n", boot.NumFATs, boot.SectorsPerFAT)
	fmt.Fprintf(out, "Total sectors:       %d\n", boot.TotalSectors)
	fmt.Fprintf(out, "Data clusters:       %d\n", boot.TotalClusters)
	fmt.Fprintf(out, "Root cluster:        %d\n", boot.RootCluster)
	return nil
}

func (app *application) runShell(context *cli.Context) error {
	drv, file, err := app.mount(context)
	if err != nil {
		return err
	}
	defer file.Close()

	shell := NewShell(drv, context.App.Writer, context.App.ErrWriter)
	return shell.Run(context.App.Reader)
}
