package session

import "fmt"

// SourceKind tells where a session gets its packaging repository from
type SourceKind int

const (
	// RepoSource is a git checkout that already exists on disk
	RepoSource SourceKind = iota + 1
	// BundleSource is a git bundle file, optionally tar-compressed
	BundleSource
	// RemoteBundleSource is a bundle that has to be downloaded first
	RemoteBundleSource
)

func (k SourceKind) String() string {
	switch k {
	case RepoSource:
		return "repo"
	case BundleSource:
		return "bundle"
	case RemoteBundleSource:
		return "remote bundle"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source is exactly one of a local repository, a local bundle or a remote bundle
type Source struct {
	Kind     SourceKind
	Location string
}

// LocalRepo is a source for an existing checkout at path
func LocalRepo(path string) Source {
	return Source{Kind: RepoSource, Location: path}
}

// LocalBundle is a source for a git bundle file at path
func LocalBundle(path string) Source {
	return Source{Kind: BundleSource, Location: path}
}

// RemoteBundle is a source for a bundle downloaded from url
func RemoteBundle(url string) Source {
	return Source{Kind: RemoteBundleSource, Location: url}
}

func (s Source) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Location)
}

// SourceFrom picks the source from three optional values. A repository wins over a
// bundle which wins over a remote bundle.
func SourceFrom(repo, bundle, remoteBundle string) (Source, error) {
	switch {
	case repo != "":
		return LocalRepo(repo), nil
	case bundle != "":
		return LocalBundle(bundle), nil
	case remoteBundle != "":
		return RemoteBundle(remoteBundle), nil
	default:
		return Source{}, &ConfigurationError{Reason: "no repository, bundle or remote bundle was given"}
	}
}

func (s Source) validate() error {
	switch s.Kind {
	case RepoSource, BundleSource, RemoteBundleSource:
	default:
		return &ConfigurationError{Reason: "no repository, bundle or remote bundle was given"}
	}

	if s.Location == "" {
		return &ConfigurationError{Reason: fmt.Sprintf("the %s source has an empty location", s.Kind)}
	}
	return nil
}
