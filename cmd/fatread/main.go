package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// application holds what the commands share: where image files are opened from
// and the logger handed to the driver.
type application struct {
	fs  afero.Fs
	log *logrus.Logger
}

func newApp(fs afero.Fs, stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	state := &application{
		fs:  fs,
		log: logrus.New(),
	}

	return &cli.App{
		Name:      "fatread",
		Usage:     "Browse FAT32 disk images without mounting them",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "image",
				Aliases:  []string{"i"},
				Usage:    "path to the raw FAT32 image",
				EnvVars:  []string{"FATREAD_IMAGE"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "one of panic, fatal, error, warning, info, debug, trace",
				Value:   "warning",
				EnvVars: []string{"FATREAD_LOG_LEVEL"},
			},
		},
		Before: state.configureLogging,
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List a directory",
				Action:    state.listDirectory,
				ArgsUsage: "[PATH]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "print the listing as CSV with one row per entry",
					},
				},
			},
			{
				Name:      "cat",
				Usage:     "Print the contents of a file",
				Action:    state.catFile,
				ArgsUsage: "PATH",
			},
			{
				Name:   "info",
				Usage:  "Show the volume label and geometry",
				Action: state.showInfo,
			},
			{
				Name:   "shell",
				Usage:  "Start an interactive shell on the image",
				Action: state.runShell,
			},
		},
	}
}

func main() {
	app := newApp(afero.NewOsFs(), os.Stdin, os.Stdout, os.Stderr)

	err := app.Run(os.Args)
	if err != nil {
		logrus.Fatalf("fatal error: %s", err.Error())
	}
}
