package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dargueta/fatread"
)

const shellPrompt = "fatread> "

const shellHelp = `Commands:
  ls [path]     - List directory contents
  cat <file>    - Read and display file
  cd [path]     - Change directory
  pwd           - Print current directory
  exit/quit/q   - Exit
  help          - Show this help
`

// Shell is a line-oriented browser over a mounted volume. The working directory
// lives in the driver, so `cd` in one command affects relative paths in the next.
type Shell struct {
	drv    fatread.Driver
	out    io.Writer
	errOut io.Writer
}

func NewShell(drv fatread.Driver, out io.Writer, errOut io.Writer) *Shell {
	return &Shell{
		drv:    drv,
		out:    out,
		errOut: errOut,
	}
}

// Run reads commands from `in` until it's exhausted or the user exits. Errors
// from individual commands are printed and don't stop the loop; the only error
// returned is a failure to read `in` itself.
func (shell *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(shell.out, shellPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(shell.out)
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if !shell.Execute(fields[0], fields[1:]) {
			fmt.Fprintln(shell.out, "Goodbye!")
			return nil
		}
	}

	err := scanner.Err()
	if err != nil {
		return fatread.ErrIOFailed.Wrap(err)
	}
	return nil
}

// Execute runs one command. It returns false if the command asks the shell to
// exit.
func (shell *Shell) Execute(command string, args []string) bool {
	var err error

	switch command {
	case "ls":
		err = shell.list(args)
	case "cat":
		err = shell.cat(args)
	case "cd":
		err = shell.changeDirectory(args)
	case "pwd":
		fmt.Fprintln(shell.out, shell.drv.Getwd())
	case "help":
		fmt.Fprint(shell.out, shellHelp)
	case "exit", "quit", "q":
		return false
	default:
		fmt.Fprintf(shell.out, "Unknown command: %s. Type 'help' for help.\n", command)
	}

	if err != nil {
		fmt.Fprintf(shell.errOut, "Error: %s\n", err.Error())
	}
	return true
}

func (shell *Shell) list(args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	infos, err := shell.drv.ReadDir(path)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		fmt.Fprintln(shell.out, "(empty)")
		return nil
	}
	for _, info := range infos {
		if info.IsDir() {
			fmt.Fprintf(shell.out, "%s/\n", info.Name())
		} else {
			fmt.Fprintln(shell.out, info.Name())
		}
	}
	return nil
}

func (shell *Shell) cat(args []string) error {
	if len(args) == 0 {
		return fatread.ErrInvalidArgument.WithMessage("usage: cat <file>")
	}

	data, err := shell.drv.ReadFile(args[0])
	if err != nil {
		return err
	}
	writeFileContents(shell.out, data)
	return nil
}

func (shell *Shell) changeDirectory(args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	return shell.drv.Chdir(path)
}
