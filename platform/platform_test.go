package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		goos   string
		goarch string
		musl   bool
		want   ID
	}{
		{"windows", "386", false, WindowsX86},
		{"windows", "amd64", false, WindowsX64},
		{"windows", "arm64", false, WindowsArm64},
		{"darwin", "amd64", false, DarwinX64},
		{"darwin", "arm64", false, DarwinArm64},
		{"linux", "386", false, LinuxX86},
		{"linux", "amd64", false, LinuxX64},
		{"linux", "amd64", true, LinuxMuslX64},
		{"linux", "arm64", false, LinuxArm64},
		{"linux", "arm64", true, LinuxMuslArm64},
		{"plan9", "amd64", false, Unknown},
		{"darwin", "386", false, Unknown},
	}

	for _, tt := range tests {
		got := detect(tt.goos, tt.goarch, tt.musl)
		assert.Equal(t, tt.want, got, "%s/%s musl=%v", tt.goos, tt.goarch, tt.musl)
	}
}

func TestCurrentIsStable(t *testing.T) {
	first := Current()
	assert.NotEqual(t, ID(""), first)
	assert.Equal(t, first, Current())
}

func TestSetOverride(t *testing.T) {
	SetOverride(LinuxMuslArm64)
	t.Cleanup(func() { SetOverride("") })

	assert.Equal(t, LinuxMuslArm64, Current())

	SetOverride("")
	assert.NotEqual(t, ID(""), Current())
}

func TestMatches(t *testing.T) {
	assert.True(t, Any.Matches(LinuxX64))
	assert.True(t, LinuxX64.Matches(LinuxX64))
	assert.False(t, LinuxX64.Matches(LinuxMuslX64))
	assert.False(t, WindowsX64.Matches(DarwinArm64))
}

func TestIsWindows(t *testing.T) {
	assert.True(t, WindowsX86.IsWindows())
	assert.True(t, WindowsArm64.IsWindows())
	assert.False(t, LinuxX64.IsWindows())
	assert.False(t, Any.IsWindows())
}
