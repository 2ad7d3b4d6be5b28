package xcross

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCargoMetadata(t *testing.T) {
	data := []byte(`{
		"packages": [
			{"name": "openssl-sys", "version": "0.9.35", "id": "openssl-sys 0.9.35"},
			{"name": "weird", "version": "latest"},
			{"name": "lzma-sys", "version": "0.1.10"}
		],
		"workspace_members": []
	}`)
	deps, err := parseCargoMetadata(data)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "openssl-sys", deps[0].Name)
	assert.Equal(t, "0.9.35", deps[0].Version.String())
	assert.Equal(t, "lzma-sys", deps[1].Name)
}

func TestParseCargoMetadataInvalid(t *testing.T) {
	_, err := parseCargoMetadata([]byte("warning: something\n"))
	assert.ErrorContains(t, err, "cargo metadata")
}
