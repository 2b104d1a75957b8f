package cmd

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// expandPatterns resolves glob patterns on Windows where the shell interpreter leaves
// them alone. Other platforms receive already expanded arguments.
func expandPatterns(args []string, ignoreEmpty bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		return args, nil
	}

	items := make([]string, 0, len(args))
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil && !ignoreEmpty {
			return nil, eris.Errorf("Pattern %s produced no matches", arg)
		}
		items = append(items, matches...)
	}
	return items, nil
}

func moveItems(args []string) error {
	if len(args) < 2 {
		return eris.New("Not enough parameters")
	}

	dest := filepath.Clean(args[len(args)-1])
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}
	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", destParent)
	}

	destIsDir := false
	info, err = os.Stat(dest)
	switch {
	case err == nil:
		destIsDir = info.IsDir()
	case !eris.Is(err, os.ErrNotExist):
		return eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
	}

	items, err := expandPatterns(args[:len(args)-1], false)
	if err != nil {
		return err
	}

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("Can't move multiple items to %s because it is not a directory", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		if err := os.Rename(item, itemDest); err != nil {
			return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
		}
	}
	return nil
}

func removeItems(args []string, recursive, force bool) error {
	items, err := expandPatterns(args, force)
	if err != nil {
		return err
	}

	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Lstat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		if err := os.RemoveAll(item); err != nil {
			return eris.Wrapf(err, "Could not delete %s", item)
		}
	}
	return nil
}

func makeDirs(args []string, parents bool) error {
	for _, item := range args {
		var err error
		if parents {
			err = os.MkdirAll(item, 0o770)
		} else {
			err = os.Mkdir(item, 0o770)
		}

		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", item)
		}
	}
	return nil
}

var mvCmd = &cobra.Command{
	Use:   "mv source... dest",
	Short: "Portable implementation of the POSIX mv command",
	RunE: func(cmd *cobra.Command, args []string) error {
		return moveItems(args)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm path...",
	Short: "Portable implementation of the POSIX rm command",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		return removeItems(args, recursive, force)
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir dir...",
	Short: "Portable implementation of the POSIX mkdir command",
	RunE: func(cmd *cobra.Command, args []string) error {
		parents, err := cmd.Flags().GetBool("parents")
		if err != nil {
			return err
		}

		return makeDirs(args, parents)
	},
}

func init() {
	rmCmd.Flags().BoolP("recursive", "r", false, "recursively delete directories")
	rmCmd.Flags().BoolP("force", "f", false, "ignore missing files")
	mkdirCmd.Flags().BoolP("parents", "p", false, "create parent directories as needed")

	rootCmd.AddCommand(mvCmd, rmCmd, mkdirCmd)
}
