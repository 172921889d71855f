package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, v, commit string) {
	t.Helper()
	origVersion, origCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = origVersion, origCommit })
	Version, Commit = v, commit
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.Platform, runtime.GOOS)
	assert.Contains(t, info.Platform, runtime.GOARCH)
}

func TestShort(t *testing.T) {
	withBuild(t, "1.2.0", "unknown")
	assert.Equal(t, "1.2.0", Short())

	withBuild(t, "1.2.0", "0123456789abcdef")
	assert.Equal(t, "1.2.0 (01234567)", Short())
}

func TestString(t *testing.T) {
	withBuild(t, "0.3.1", "unknown")
	s := String()
	assert.Contains(t, s, "netplay version 0.3.1")
	assert.NotContains(t, s, "commit:")

	withBuild(t, "0.3.1", "fedcba9876543210")
	assert.Contains(t, String(), "commit: fedcba98")
}

func TestJSON(t *testing.T) {
	withBuild(t, "2.0.0", "abc")

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "abc", info.Commit)
}

func TestUserAgent(t *testing.T) {
	withBuild(t, "0.1.0", "unknown")
	assert.Equal(t, "netplay/0.1.0", UserAgent())
}
