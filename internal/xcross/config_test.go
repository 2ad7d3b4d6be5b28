package xcross

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveGlobals restores the package settings after a test changes them.
func saveGlobals(t *testing.T) {
	cache, mirror, host, jobs, debug := CacheDir, MirrorURL, HostTriple, Jobs, Debug
	t.Cleanup(func() {
		CacheDir, MirrorURL, HostTriple, Jobs, Debug = cache, mirror, host, jobs, debug
	})
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xcross.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
XCROSS_CACHE_DIR = "/var/cache/xcross"
XCROSS_JOBS=2
not a pair
XCROSS_MIRROR='https://mirror.example.com/xcross'
`), 0o644))
	t.Setenv("XCROSS_JOBS", "8")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/xcross", cfg.Values["XCROSS_CACHE_DIR"])
	assert.Equal(t, "https://mirror.example.com/xcross", cfg.Values["XCROSS_MIRROR"])
	assert.Equal(t, "8", cfg.Values["XCROSS_JOBS"], "environment wins")
	assert.NotContains(t, cfg.Values, "not a pair")
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.Values)
}

func TestInitConfig(t *testing.T) {
	saveGlobals(t)
	cfg := &Config{Values: map[string]string{
		"XCROSS_CACHE_DIR": "/tmp/xcross-cache",
		"XCROSS_HOST":      testHost,
		"XCROSS_JOBS":      "3",
		"XCROSS_DEBUG":     "1",
	}}
	require.NoError(t, initConfig(cfg))
	assert.Equal(t, "/tmp/xcross-cache", CacheDir)
	assert.Equal(t, defaultMirror, MirrorURL)
	assert.Equal(t, testHost, HostTriple)
	assert.Equal(t, 3, Jobs)
	assert.True(t, Debug)
}

func TestInitConfigRejectsBadJobs(t *testing.T) {
	saveGlobals(t)
	for _, jobs := range []string{"0", "-1", "many"} {
		cfg := &Config{Values: map[string]string{"XCROSS_HOST": testHost, "XCROSS_JOBS": jobs}}
		assert.ErrorContains(t, initConfig(cfg), "XCROSS_JOBS", jobs)
	}
}

func TestHTTPTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"90", 90 * time.Second},
		{"-5", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		cfg := &Config{Values: map[string]string{"XCROSS_HTTP_TIMEOUT": tt.value}}
		assert.Equal(t, tt.want, cfg.HTTPTimeout(), tt.value)
	}
}

func TestHostTriple(t *testing.T) {
	triple, ok := hostTriple("darwin", "amd64")
	assert.True(t, ok)
	assert.Equal(t, testHost, triple)

	_, ok = hostTriple("plan9", "386")
	assert.False(t, ok)

	_, ok = hostTriple("windows", "amd64")
	assert.False(t, ok, "temp dir locking needs flock")
}
