package xcross

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type tarEntry struct {
	Name     string
	Body     string
	Dir      bool
	Linkname string
	Hardlink string
	Mode     int64
}

// sysrootEntries is a miniature toolchain layout.
var sysrootEntries = []tarEntry{
	{Name: "bin/", Dir: true},
	{Name: "bin/x86_64-unknown-linux-gnu-gcc", Body: "#!/bin/sh\necho gcc\n", Mode: 0o755},
	{Name: "bin/x86_64-unknown-linux-gnu-cc", Linkname: "x86_64-unknown-linux-gnu-gcc"},
	{Name: "x86_64-unknown-linux-gnu/include/stdio.h", Body: "/* stdio */\n"},
}

func makeTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: e.Mode}
		switch {
		case e.Dir:
			hdr.Typeflag = tar.TypeDir
			if hdr.Mode == 0 {
				hdr.Mode = 0o755
			}
		case e.Hardlink != "":
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = e.Hardlink
		case e.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Linkname
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
			if hdr.Mode == 0 {
				hdr.Mode = 0o644
			}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := io.WriteString(tw, e.Body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// makeArchive builds a compressed tarball for the format implied by name.
func makeArchive(t *testing.T, name string, entries []tarEntry) []byte {
	t.Helper()
	raw := makeTar(t, entries)
	format, err := archiveFormatFor(name)
	require.NoError(t, err)

	var buf bytes.Buffer
	var w io.WriteCloser
	switch format {
	case formatTar:
		return raw
	case formatTarGz:
		w = pgzip.NewWriter(&buf)
	case formatTarXz:
		w, err = xz.NewWriter(&buf)
		require.NoError(t, err)
	case formatTarZst:
		w, err = zstd.NewWriter(&buf)
		require.NoError(t, err)
	default:
		t.Fatalf("no test compressor for %s", name)
	}
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// testPackage describes data as a base package for x86_64-unknown-linux-gnu.
func testPackage(path string, data []byte) Package {
	return Package{
		Kind:   KindBase,
		Target: "x86_64-unknown-linux-gnu",
		Name:   "gcc-4.8.5",
		Artifact: Artifact{
			Path:     path,
			Size:     int64(len(data)),
			Hash:     HashSHA256,
			Checksum: sha256Hex(data),
		},
	}
}

// writeMirror stores files under a fresh directory usable with FileFetcher.
func writeMirror(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	return root
}

// tempDirEntries lists what is left under the cache's temp root.
func tempDirEntries(t *testing.T, cacheDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(tempRoot(cacheDir))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}

// bzip2Sysroot is testdata/sysroot.tar.bz2, the sysrootEntries layout
// compressed with bzip2. The standard library has no bzip2 writer, so the
// archive is checked in.
func bzip2Sysroot(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "sysroot.tar.bz2"))
	require.NoError(t, err)
	return data
}
