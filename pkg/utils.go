package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
)

// FindUpwards walks from start towards the filesystem root and returns the first path
// named name that exists.
func FindUpwards(start, name string) (string, error) {
	mypath, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", start)
	}

	for {
		candidate := filepath.Join(mypath, name)
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "Error ocurred while looking for %s", candidate)
		}

		nextPath := filepath.Dir(mypath)
		if mypath == nextPath {
			break
		}
		mypath = nextPath
	}

	return "", eris.Wrapf(os.ErrNotExist, "No %s found above %s", name, start)
}

// GetProgressBar returns a byte counting progress bar. It stays invisible on CI and
// when quiet is set.
func GetProgressBar(length int64, desc string, quiet bool) *progressbar.ProgressBar {
	if quiet || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
