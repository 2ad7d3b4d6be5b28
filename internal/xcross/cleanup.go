package xcross

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	tmpDirName = ".tmp"
	lockSuffix = ".lock"
)

func tempRoot(cacheDir string) string {
	return filepath.Join(cacheDir, tmpDirName)
}

// lockTempDir takes an exclusive flock on dir's sibling lock file. The
// lock is held for as long as an install is using dir; the kernel drops
// it if the process dies, which is what lets PruneTempDirs tell live
// directories from orphans.
func lockTempDir(dir string) (*os.File, error) {
	f, err := os.OpenFile(dir+lockSuffix, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// releaseTempDir removes dir (if it was not published) and its lock file,
// then drops the lock.
func releaseTempDir(dir string, lock *os.File) {
	if err := os.RemoveAll(dir); err != nil {
		debugf("failed to remove temp dir %s: %v", dir, err)
	}
	if lock == nil {
		return
	}
	_ = os.Remove(dir + lockSuffix)
	_ = unix.Flock(int(lock.Fd()), unix.LOCK_UN)
	lock.Close()
}

// PruneTempDirs removes temporary extraction directories left behind by
// processes that died mid-install. A directory is removed only when it
// is older than minAge and nobody holds its lock. It returns the paths
// removed.
func PruneTempDirs(cacheDir string, minAge time.Duration) ([]string, error) {
	root := tempRoot(cacheDir)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var removed []string
	cutoff := time.Now().Add(-minAge)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, lockSuffix) {
			// Lock files are handled with their directory; a lock whose
			// directory is gone is removed below.
			dir := filepath.Join(root, strings.TrimSuffix(name, lockSuffix))
			if _, err := os.Lstat(dir); os.IsNotExist(err) {
				if pruneLocked(dir, cutoff, false) {
					debugf("removed stale lock %s", dir+lockSuffix)
				}
			}
			continue
		}
		dir := filepath.Join(root, name)
		if pruneLocked(dir, cutoff, true) {
			removed = append(removed, dir)
		}
	}
	return removed, nil
}

// pruneLocked removes dir and its lock file if the lock is free and the
// lock file (or dir, if checkDir) is older than cutoff.
func pruneLocked(dir string, cutoff time.Time, checkDir bool) bool {
	stamp := dir + lockSuffix
	if checkDir {
		stamp = dir
	}
	info, err := os.Lstat(stamp)
	if err != nil || info.ModTime().After(cutoff) {
		return false
	}
	lock, err := lockTempDir(dir)
	if err != nil {
		// Someone is still extracting into it.
		return false
	}
	releaseTempDir(dir, lock)
	return true
}
