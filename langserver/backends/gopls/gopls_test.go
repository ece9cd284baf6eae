package gopls

import (
	"encoding/json"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/deps"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/platform"
)

func TestDependenciesResolvePerPlatform(t *testing.T) {
	all := dependencies()

	linux, ok := deps.Resolve(all, serverDep, platform.LinuxX64)
	require.True(t, ok)
	assert.Equal(t, "gopls", linux.BinaryName)
	assert.Equal(t, "sh", linux.InstallCommand[0])

	windows, ok := deps.Resolve(all, serverDep, platform.WindowsArm64)
	require.True(t, ok)
	assert.Equal(t, "gopls.exe", windows.BinaryName)
	assert.Equal(t, "cmd", windows.InstallCommand[0])

	musl, ok := deps.Resolve(all, serverDep, platform.LinuxMuslX64)
	require.True(t, ok)
	assert.Equal(t, "gopls", musl.BinaryName)
}

func TestIndexingDone(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params string
		want   bool
	}{
		{"progress end", "$/progress", `{"token":"t","value":{"kind":"end"}}`, true},
		{"progress begin", "$/progress", `{"token":"t","value":{"kind":"begin","title":"Setting up workspace"}}`, false},
		{"progress report", "$/progress", `{"token":"t","value":{"kind":"report"}}`, false},
		{"other method", "window/logMessage", `{"type":3,"message":"done"}`, false},
		{"malformed params", "$/progress", `{`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, indexingDone(tt.method, json.RawMessage(tt.params)))
		})
	}
}

func TestPathToURI(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"relative file", "/home/user/project", "main.go", "file:///home/user/project/main.go"},
		{"nested file", "/home/user/project", "cmd/app/main.go", "file:///home/user/project/cmd/app/main.go"},
		{"empty path means root", "/home/user/project", "", "file:///home/user/project"},
		{"absolute path passes through", "/home/user/project", "/tmp/other.go", "file:///tmp/other.go"},
		{"spaces preserved", "/home/user/my project", "my file.go", "file:///home/user/my project/my file.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(PathToURI(tt.root, tt.path)))
		})
	}
}

func TestURIToPath(t *testing.T) {
	assert.Equal(t, "/home/user/x.go", URIToPath(protocol.DocumentUri("file:///home/user/x.go")))
	assert.Equal(t, "notafileuri", URIToPath(protocol.DocumentUri("notafileuri")))
}

func TestRegister(t *testing.T) {
	r := langserver.NewRegistry("1.0.0")
	require.NoError(t, Register(r))
	assert.Equal(t, []string{Language}, r.Languages())

	meta, ok := r.Metadata(Language)
	require.True(t, ok)
	assert.NotEmpty(t, meta.Description)
}

func TestNewWithConfiguredBinary(t *testing.T) {
	cfg := &config.Config{
		Backends: map[string]config.BackendConfig{
			Language: {BinaryPath: "/usr/local/bin/gopls"},
		},
	}

	srv, err := New(cfg, t.TempDir(), langserver.Options{Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, err)
	assert.Equal(t, Language, srv.Language())
	assert.True(t, srv.IsIgnoredPath("vendor/github.com/pkg/errors/errors.go"))
	assert.False(t, srv.IsIgnoredPath("internal/server/server.go"))
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(&config.Config{}, t.TempDir(), langserver.Options{})
	require.Error(t, err)
}
