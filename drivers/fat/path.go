package fat

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/dargueta/fatread"
)

// PathSeparator separates the components of a path.
const PathSeparator = "/"

// Path is a parsed path. Empty components have been removed, but "." and ".."
// are kept since they can only be interpreted against the directory tree.
type Path struct {
	Absolute   bool
	Components []string
}

// ParsePath splits `text` into its components. A component longer than 255
// UTF-16 code units is rejected since no FAT long name can be that long.
func ParsePath(text string) (Path, error) {
	path := Path{
		Absolute:   strings.HasPrefix(text, PathSeparator),
		Components: []string{},
	}

	for _, component := range strings.Split(text, PathSeparator) {
		if component == "" {
			continue
		}
		length := len(utf16.Encode([]rune(component)))
		if length > MaxLongNameLength {
			return Path{}, fatread.ErrNameTooLong.WithMessage(
				fmt.Sprintf(
					"path component of %d UTF-16 units starting with %q",
					length,
					string([]rune(component)[:16])))
		}
		path.Components = append(path.Components, component)
	}
	return path, nil
}

// String gives the normalized textual form of the path.
func (p Path) String() string {
	joined := strings.Join(p.Components, PathSeparator)
	if p.Absolute {
		return PathSeparator + joined
	}
	return joined
}

// -----------------------------------------------------------------------------

func (drv *Driver) rootDirent() Dirent {
	return newRootDirent(ClusterID(drv.boot.RootCluster))
}

// findInDirectory scans `directory` for an entry whose long or short name matches
// `name`, ignoring case. Volume labels never match. The scan stops at the first
// match, so on-disk order decides between duplicates.
func (drv *Driver) findInDirectory(directory *Dirent, name string) (Dirent, bool, error) {
	decoder := drv.openDirectory(directory)
	for decoder.Next() {
		dirent := decoder.Dirent()
		if dirent.IsVolumeLabel() {
			continue
		}
		if dirent.MatchesName(name) {
			return dirent, true, nil
		}
	}
	return Dirent{}, false, decoder.Err()
}

// parentOf returns the directory containing `directory`, found through its ".."
// entry. A missing entry, or one pointing at cluster 0, means the parent is the
// root directory.
func (drv *Driver) parentOf(directory *Dirent) (Dirent, error) {
	if directory.FirstCluster == ClusterID(drv.boot.RootCluster) {
		return drv.rootDirent(), nil
	}

	decoder := drv.openDirectory(directory)
	for decoder.Next() {
		dirent := decoder.Dirent()
		if dirent.ShortName != ".." {
			continue
		}
		if dirent.FirstCluster == 0 || dirent.FirstCluster == ClusterID(drv.boot.RootCluster) {
			return drv.rootDirent(), nil
		}
		return dirent, nil
	}
	if err := decoder.Err(); err != nil {
		return Dirent{}, err
	}
	return drv.rootDirent(), nil
}

// resolve walks `text` from the root directory if it's absolute, or from the
// current directory if it's relative. It returns the entry the path refers to and
// the names of the directories leading to it from the root. The returned names
// are the display names found on disk, so they may differ in case from `text`.
func (drv *Driver) resolve(text string) (Dirent, []string, error) {
	path, err := ParsePath(text)
	if err != nil {
		return Dirent{}, nil, err
	}

	var current Dirent
	var stack []string
	if path.Absolute {
		current = drv.rootDirent()
		stack = []string{}
	} else {
		current = drv.cwd
		stack = append([]string{}, drv.cwdPath...)
	}

	for i, component := range path.Components {
		if !current.IsDir() {
			return Dirent{}, nil, fatread.ErrNotADirectory.WithMessage(
				PathSeparator + strings.Join(stack, PathSeparator))
		}

		switch component {
		case ".":
			continue
		case "..":
			parent, err := drv.parentOf(&current)
			if err != nil {
				return Dirent{}, nil, err
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 0 && parent.FirstCluster != ClusterID(drv.boot.RootCluster) {
				parent.name = stack[len(stack)-1]
				parent.isDot = false
			} else {
				stack = stack[:0]
			}
			current = parent
			continue
		}

		found, ok, err := drv.findInDirectory(&current, component)
		if err != nil {
			return Dirent{}, nil, err
		}
		if !ok {
			return Dirent{}, nil, fatread.ErrNotFound.WithMessage(
				fmt.Sprintf(
					"%q not found (component %d of %q)", component, i+1, text))
		}

		current = found
		stack = append(stack, found.Name())
	}

	return current, stack, nil
}
