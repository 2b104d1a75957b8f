package session

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Every error below names what failed and carries a hint for the user. They unwrap to
// the underlying cause where there is one.

// ConfigurationError means the session was set up without a usable source or used before Prepare
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid session configuration: " + e.Reason
}

func (e *ConfigurationError) Hint() string {
	return "pass one of --repo, --bundle or --remote-bundle"
}

// MissingBundleError means the local bundle file doesn't exist
type MissingBundleError struct {
	Path string
	Err  error
}

func (e *MissingBundleError) Error() string {
	return fmt.Sprintf("bundle %s does not exist", e.Path)
}

func (e *MissingBundleError) Unwrap() error { return e.Err }

func (e *MissingBundleError) Hint() string {
	return "check the bundle path"
}

// ExtractionError means a compressed bundle couldn't be unpacked
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Hint() string {
	return "check that tar is installed and the archive is not corrupt"
}

// CloneError means the bundle couldn't be cloned
type CloneError struct {
	Bundle string
	Dest   string
	Err    error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("failed to clone %s into %s: %v", e.Bundle, e.Dest, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

func (e *CloneError) Hint() string {
	return "check that git is installed and the file is a valid git bundle"
}

// InvalidURLError means the remote bundle URL can't be downloaded to a file
type InvalidURLError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InvalidURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid bundle URL %q: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid bundle URL %q: %s", e.URL, e.Reason)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

func (e *InvalidURLError) Hint() string {
	return "use an http(s) URL that points to a bundle file"
}

// TempDirError means no download directory could be created
type TempDirError struct {
	Err error
}

func (e *TempDirError) Error() string {
	return fmt.Sprintf("failed to create a temporary directory: %v", e.Err)
}

func (e *TempDirError) Unwrap() error { return e.Err }

func (e *TempDirError) Hint() string {
	return "check that mktemp is installed and the temp directory is writable"
}

// DownloadError means the remote bundle couldn't be downloaded
type DownloadError struct {
	URL  string
	Dest string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s to %s: %v", e.URL, e.Dest, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Hint() string {
	return "check your network access and the bundle URL"
}

// CheckoutError means the requested ref couldn't be checked out
type CheckoutError struct {
	Ref string
	Dir string
	Err error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("failed to check out %s in %s: %v", e.Ref, e.Dir, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

func (e *CheckoutError) Hint() string {
	return "check that the version exists in the repository"
}

// BootstrapError means the bootstrap task failed
type BootstrapError struct {
	Repo string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("failed to bootstrap %s: %v", e.Repo, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

func (e *BootstrapError) Hint() string {
	return "the packaging sources may be unreachable, check your network access"
}

// TaskError means one of the session's tasks failed
type TaskError struct {
	Task string
	Repo string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed in %s: %v", e.Task, e.Repo, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

func (e *TaskError) Hint() string {
	return "check the task output above"
}

// Hint returns the remediation hint of the first error in err's chain that has one
func Hint(err error) string {
	var hinter interface{ Hint() string }
	if eris.As(err, &hinter) {
		return hinter.Hint()
	}
	return ""
}
