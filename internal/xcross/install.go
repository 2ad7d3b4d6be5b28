package xcross

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// readBufferSize is the largest chunk requested from the network in one
// read, and so the coarsest granularity of progress updates.
const readBufferSize = 64 << 10

var (
	errInstallNotStarted = errors.New("package install not started")
	errInstallConsumed   = errors.New("package install already completed")
	errInstallDiscarded  = errors.New("package install discarded")
)

// PackageManager turns descriptors into installed cache directories.
// Temporary extraction directories live under the cache root so the
// final rename never crosses filesystems.
type PackageManager struct {
	fetcher Fetcher
	tmpRoot string
}

// NewPackageManager returns a manager downloading through fetcher into cacheDir.
func NewPackageManager(fetcher Fetcher, cacheDir string) *PackageManager {
	return &PackageManager{fetcher: fetcher, tmpRoot: tempRoot(cacheDir)}
}

// Install allocates a private temporary directory for pkg and returns a
// handle ready to start. Nothing touches the network until Start.
func (m *PackageManager) Install(pkg Package, dest string) (*PackageInstall, error) {
	debugf("install %s -> %s", pkg, dest)
	format, err := archiveFormatFor(pkg.Path)
	if err != nil {
		return nil, err
	}
	if _, err := newHasher(pkg.Hash); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.tmpRoot, 0o755); err != nil {
		return nil, &FilesystemError{Package: pkg.String(), Op: "create", Path: m.tmpRoot, Err: err}
	}
	tmpDir, err := os.MkdirTemp(m.tmpRoot, string(pkg.Kind)+"-")
	if err != nil {
		return nil, &FilesystemError{Package: pkg.String(), Op: "create temp dir in", Path: m.tmpRoot, Err: err}
	}
	lock, err := lockTempDir(tmpDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, &FilesystemError{Package: pkg.String(), Op: "lock", Path: tmpDir, Err: err}
	}
	debugf("temp dir %s", tmpDir)

	return &PackageInstall{
		pkg:      pkg,
		format:   format,
		dest:     dest,
		fetcher:  m.fetcher,
		tmpDir:   tmpDir,
		lock:     lock,
		progress: newProgressSignal(),
		done:     make(chan struct{}),
	}, nil
}

// PackageInstall is one in-flight acquisition. It runs at most once and
// its result can be collected exactly once.
type PackageInstall struct {
	pkg     Package
	format  archiveFormat
	dest    string
	fetcher Fetcher
	tmpDir  string
	lock    *os.File

	progress  *ProgressSignal
	startOnce sync.Once
	started   atomic.Bool
	consumed  atomic.Bool
	done      chan struct{}
	err       error
}

// Total is the expected archive size in bytes.
func (p *PackageInstall) Total() int64 { return p.pkg.Size }

// Package returns the descriptor being installed.
func (p *PackageInstall) Package() Package { return p.pkg }

// Dest is the canonical cache path the package is published to.
func (p *PackageInstall) Dest() string { return p.dest }

// Start launches the worker and returns its progress signal. Later calls
// return the same signal without starting another worker. Cancelling ctx
// aborts the transfer.
func (p *PackageInstall) Start(ctx context.Context) *ProgressSignal {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go func() {
			p.err = p.run(ctx)
			close(p.done)
		}()
	})
	return p.progress
}

// Wait blocks until the worker has finished and returns its result. The
// package is visible at Dest only if Wait returns nil.
func (p *PackageInstall) Wait() error {
	if !p.started.Load() {
		return errInstallNotStarted
	}
	<-p.done
	if p.consumed.Swap(true) {
		return errInstallConsumed
	}
	return p.err
}

// Perform runs the install to completion without observing progress.
func (p *PackageInstall) Perform(ctx context.Context) error {
	p.Start(ctx)
	return p.Wait()
}

// Discard releases the temporary directory of a handle that was never
// started. It has no effect on a started install.
func (p *PackageInstall) Discard() {
	p.startOnce.Do(func() {
		p.started.Store(true)
		p.progress.close()
		releaseTempDir(p.tmpDir, p.lock)
		p.err = errInstallDiscarded
		close(p.done)
	})
}

func (p *PackageInstall) run(ctx context.Context) error {
	defer p.progress.close()
	defer releaseTempDir(p.tmpDir, p.lock)

	name := p.pkg.String()
	location := p.fetcher.Location(p.pkg.Path)
	debugf("fetching %s from %s", name, location)

	body, err := p.fetcher.Open(ctx, p.pkg.Path)
	if err != nil {
		return &TransportError{Package: name, URL: location, Err: err}
	}
	defer body.Close()

	hasher, err := newHasher(p.pkg.Hash)
	if err != nil {
		return err
	}
	network := &progressReader{r: body, signal: p.progress}
	stream := io.TeeReader(bufio.NewReaderSize(network, readBufferSize), hasher)

	extractErr := p.extract(stream)
	// Consume trailing bytes the decoder did not need so the digest and
	// the progress total cover the whole archive.
	_, drainErr := io.Copy(io.Discard, stream)

	if network.err != nil {
		return &TransportError{Package: name, URL: location, Err: network.err}
	}
	if drainErr != nil {
		return &FilesystemError{Package: name, Op: "read", Path: location, Err: drainErr}
	}
	if !checksumMatches(hasher.Sum(nil), p.pkg.Checksum) {
		return &ChecksumError{Package: name, Want: p.pkg.Checksum, Got: fmt.Sprintf("%x", hasher.Sum(nil))}
	}
	if extractErr != nil {
		return &FilesystemError{Package: name, Op: "extract into", Path: p.tmpDir, Err: extractErr}
	}
	if network.total != p.pkg.Size {
		debugf("%s: read %d bytes, catalog size is %d", name, network.total, p.pkg.Size)
	}
	return p.publish()
}

func (p *PackageInstall) extract(r io.Reader) error {
	dec, err := newDecompressor(p.format, r)
	if err != nil {
		return err
	}
	defer dec.Close()
	return extractTar(dec, p.tmpDir)
}

// publish renames the verified temp dir onto the canonical path. Losing a
// rename race to another process that published the same package is a
// success.
func (p *PackageInstall) publish() error {
	name := p.pkg.String()
	parent := filepath.Dir(p.dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return &FilesystemError{Package: name, Op: "create", Path: parent, Err: err}
	}
	// MkdirTemp creates 0700 directories.
	if err := os.Chmod(p.tmpDir, 0o755); err != nil {
		return &FilesystemError{Package: name, Op: "chmod", Path: p.tmpDir, Err: err}
	}
	if err := os.Rename(p.tmpDir, p.dest); err != nil {
		if info, statErr := os.Stat(p.dest); statErr == nil && info.IsDir() {
			debugf("%s was installed concurrently at %s", name, p.dest)
			return nil
		}
		return &FilesystemError{Package: name, Op: "publish", Path: p.dest, Err: err}
	}
	debugf("published %s at %s", name, p.dest)
	return nil
}
