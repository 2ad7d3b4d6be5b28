package xcross

import "runtime"

// hostTriples maps GOOS/GOARCH to the target triple toolchains are
// published for. Only unix hosts are listed: temp dirs are guarded with
// flock.
var hostTriples = map[string]string{
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"linux/386":     "i686-unknown-linux-gnu",
	"freebsd/amd64": "x86_64-unknown-freebsd",
}

// hostTriple returns the triple for goos/goarch.
func hostTriple(goos, goarch string) (string, bool) {
	t, ok := hostTriples[goos+"/"+goarch]
	return t, ok
}

// detectHost guesses the triple of the running system.
func detectHost() (string, bool) {
	return hostTriple(runtime.GOOS, runtime.GOARCH)
}
