package xcross

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedTarget is returned when the catalog has no base
	// toolchain for the host/target pair.
	ErrUnsupportedTarget = errors.New("unsupported target")
	// ErrChecksumMismatch marks a downloaded archive whose digest does not
	// match its descriptor.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// UnsupportedTargetError names the host/target pair that has no base toolchain.
type UnsupportedTargetError struct {
	Host   string
	Target string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("no toolchain available for target %s on host %s", e.Target, e.Host)
}

func (e *UnsupportedTargetError) Is(target error) bool { return target == ErrUnsupportedTarget }

// TransportError wraps a failure to open or read the remote archive.
// Callers may retry the whole acquisition.
type TransportError struct {
	Package string
	URL     string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: fetching %s: %v", e.Package, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ChecksumError reports an integrity failure for one package.
type ChecksumError struct {
	Package string
	Want    string
	Got     string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: checksum mismatch: got %s, want %s", e.Package, e.Got, e.Want)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// FilesystemError is a fatal local I/O failure: allocating the temp dir,
// extracting into it, or publishing it.
type FilesystemError struct {
	Package string
	Op      string
	Path    string
	Err     error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Package, e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
