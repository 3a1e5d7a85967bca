package pdf

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/matsen/bibshelf/internal/liberr"
)

// Readers accepted by NewOpener besides "system".
var Readers = []string{"system", "skim", "preview", "zathura", "evince", "okular"}

// Opener launches attachments in an external viewer.
type Opener struct {
	reader string
	goos   string
}

// NewOpener creates an opener for the named viewer; "" means the platform
// default.
func NewOpener(reader string) *Opener {
	if reader == "" {
		reader = "system"
	}
	return &Opener{reader: reader, goos: runtime.GOOS}
}

// Command returns the viewer command for an absolute path.
func (o *Opener) Command(path string) (*exec.Cmd, error) {
	switch o.goos {
	case "darwin":
		switch o.reader {
		case "skim":
			return exec.Command("open", "-a", "Skim", path), nil
		case "preview":
			return exec.Command("open", "-a", "Preview", path), nil
		default:
			return exec.Command("open", path), nil
		}
	case "linux", "freebsd", "openbsd":
		switch o.reader {
		case "zathura", "evince", "okular":
			return exec.Command(o.reader, path), nil
		default:
			return exec.Command("xdg-open", path), nil
		}
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", path), nil
	}
	return nil, fmt.Errorf("open %s: unsupported platform %s", path, o.goos)
}

// Open starts the viewer without waiting for it.
func (o *Opener) Open(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return liberr.New(liberr.ErrNotFound, "open attachment", path, err)
		}
		return liberr.New(liberr.ErrIO, "open attachment", path, err)
	}
	cmd, err := o.Command(path)
	if err != nil {
		return err
	}
	return cmd.Start()
}
