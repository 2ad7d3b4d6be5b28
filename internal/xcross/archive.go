package xcross

import (
	"archive/tar"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

type archiveFormat int

const (
	formatTar archiveFormat = iota
	formatTarGz
	formatTarBz2
	formatTarXz
	formatTarZst
)

// archiveFormatFor determines the compression from the remote path suffix.
func archiveFormatFor(path string) (archiveFormat, error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		return formatTarGz, nil
	case strings.HasSuffix(path, ".tar.bz2"):
		return formatTarBz2, nil
	case strings.HasSuffix(path, ".tar.xz"):
		return formatTarXz, nil
	case strings.HasSuffix(path, ".tar.zst"):
		return formatTarZst, nil
	case strings.HasSuffix(path, ".tar"):
		return formatTar, nil
	default:
		return 0, fmt.Errorf("unsupported archive format: %s", path)
	}
}

// newDecompressor wraps r in the streaming decoder for format.
func newDecompressor(format archiveFormat, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case formatTarGz:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, nil
	case formatTarBz2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case formatTarXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.NopCloser(xzr), nil
	case formatTarZst:
		zst, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zst.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// extractTar unpacks a tar stream into dest. Every write goes through an
// os.Root, so entries cannot land outside dest even by way of a symlink
// unpacked earlier. Links whose targets leave dest are rejected.
func extractTar(r io.Reader, dest string) error {
	root, err := os.OpenRoot(dest)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dest, err)
	}
	defer root.Close()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header: %w", err)
		}

		// Skip PAX headers (global or per-file)
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("illegal file path in archive: %s", hdr.Name)
		}

		if parent := filepath.Dir(name); parent != "." {
			if err := root.MkdirAll(parent, 0o755); err != nil {
				return fmt.Errorf("failed to create parent dir for %s: %w", name, err)
			}
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, os.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := writeTarFile(root, tr, name, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
			if err := root.Chtimes(name, hdr.AccessTime, hdr.ModTime); err != nil {
				return fmt.Errorf("failed to set times for file %s: %w", name, err)
			}
		case tar.TypeSymlink:
			if !symlinkStaysInside(name, hdr.Linkname) {
				return fmt.Errorf("illegal symlink in archive: %s -> %s", hdr.Name, hdr.Linkname)
			}
			_ = root.Remove(name)
			if err := root.Symlink(hdr.Linkname, name); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", name, hdr.Linkname, err)
			}
		case tar.TypeLink:
			link := filepath.Clean(filepath.FromSlash(hdr.Linkname))
			if !filepath.IsLocal(link) {
				return fmt.Errorf("illegal hard link in archive: %s -> %s", hdr.Name, hdr.Linkname)
			}
			_ = root.Remove(name)
			if err := root.Link(link, name); err != nil {
				return fmt.Errorf("failed to create hard link %s -> %s: %w", name, link, err)
			}
		default:
			debugf("Skipping unsupported tar entry type %c: %s", hdr.Typeflag, hdr.Name)
		}
	}
}

// symlinkStaysInside reports whether a link at name pointing to target
// resolves, lexically, within the extraction root.
func symlinkStaysInside(name, target string) bool {
	if target == "" || filepath.IsAbs(target) {
		return false
	}
	return filepath.IsLocal(filepath.Join(filepath.Dir(name), filepath.FromSlash(target)))
}

func writeTarFile(root *os.Root, r io.Reader, name string, mode os.FileMode) error {
	out, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", name, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", name, err)
	}
	return out.Close()
}
