package xcross

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetEnvName(t *testing.T) {
	tests := []struct {
		triple string
		want   string
	}{
		{"x86_64-unknown-linux-gnu", "X86_64_UNKNOWN_LINUX_GNU"},
		{"aarch64-apple-darwin", "AARCH64_APPLE_DARWIN"},
		{"thumbv7em-none-eabihf", "THUMBV7EM_NONE_EABIHF"},
		{"armv7--linux..gnueabihf", "ARMV7_LINUX_GNUEABIHF"},
		{"-wasm32-wasi-", "WASM32_WASI"},
	}
	for _, tt := range tests {
		t.Run(tt.triple, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetEnvName(tt.triple))
		})
	}
}

func TestSynthesizeEnvironmentBase(t *testing.T) {
	base := ToolchainBase{Host: "x86_64-apple-darwin", Target: "x86_64-unknown-linux-gnu", GCCVersion: "4.8.5"}
	dir := filepath.Join("/cache", "base", "x86_64-unknown-linux-gnu", "5280e4a4bf8446da")

	env := SynthesizeEnvironment("x86_64-apple-darwin", base, dir, nil)

	gcc := filepath.Join(dir, "bin", "x86_64-unknown-linux-gnu-gcc")
	require.NotEmpty(t, env)
	assert.Equal(t, EnvVar{Name: "CARGO_TARGET_X86_64_UNKNOWN_LINUX_GNU_LINKER", Value: gcc}, env[0])

	cc, ok := env.Get("TARGET_CC")
	require.True(t, ok)
	assert.Equal(t, gcc, cc)

	ar, ok := env.Get("TARGET_AR")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "bin", "x86_64-unknown-linux-gnu-ar"), ar)

	cflags, ok := env.Get("TARGET_CFLAGS")
	require.True(t, ok)
	include := filepath.Join(dir, "x86_64-unknown-linux-gnu", "include")
	gccInclude := filepath.Join(dir, "lib", "gcc", "x86_64-unknown-linux-gnu", "4.8.5", "include")
	assert.Equal(t, "-nostdinc -I "+include+" -I "+gccInclude+" -isystem "+include+" --sysroot "+dir, cflags)

	host, ok := env.Get("HOST")
	require.True(t, ok)
	assert.Equal(t, "x86_64-apple-darwin", host)
}

func TestSynthesizeEnvironmentFeatures(t *testing.T) {
	base := ToolchainBase{Target: "x86_64-unknown-linux-gnu", GCCVersion: "4.8.5"}
	features := []ResolvedFeature{
		{
			ToolchainFeature: ToolchainFeature{Name: "openssl-sys", Env: []EnvTemplate{
				{Name: "OPENSSL_DIR", Value: "${PREFIX}"},
				{Name: "OPENSSL_STATIC", Value: "1"},
			}},
			Dir: "/cache/feature/openssl",
		},
		{
			ToolchainFeature: ToolchainFeature{Name: "lzma-sys", Env: []EnvTemplate{
				{Name: "PKG_CONFIG_PATH", Value: "${PREFIX}/lib/pkgconfig:${PREFIX}/share/pkgconfig"},
				{Name: "OPENSSL_STATIC", Value: "0"},
			}},
			Dir: "/cache/feature/xz",
		},
	}

	env := SynthesizeEnvironment("h", base, "/cache/base", features)

	v, _ := env.Get("OPENSSL_DIR")
	assert.Equal(t, "/cache/feature/openssl", v)
	v, _ = env.Get("PKG_CONFIG_PATH")
	assert.Equal(t, "/cache/feature/xz/lib/pkgconfig:/cache/feature/xz/share/pkgconfig", v)

	// A repeated name keeps its first position and takes the last value.
	names := make([]string, len(env))
	for i, e := range env {
		names[i] = e.Name
	}
	assert.Equal(t, []string{
		"CARGO_TARGET_X86_64_UNKNOWN_LINUX_GNU_LINKER",
		"TARGET_CC",
		"TARGET_AR",
		"TARGET_CFLAGS",
		"HOST",
		"OPENSSL_DIR",
		"OPENSSL_STATIC",
		"PKG_CONFIG_PATH",
	}, names)
	v, _ = env.Get("OPENSSL_STATIC")
	assert.Equal(t, "0", v)
}

func TestEnvironmentEnviron(t *testing.T) {
	env := Environment{{Name: "A", Value: "1"}, {Name: "B", Value: "x=y"}}
	assert.Equal(t, []string{"A=1", "B=x=y"}, env.Environ())

	_, ok := env.Get("C")
	assert.False(t, ok)
}
