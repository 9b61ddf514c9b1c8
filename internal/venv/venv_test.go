package venv

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

type call struct {
	dir  string
	name string
	args []string
}

func newTestSetup(t *testing.T, answer string) (*Setup, *[]call, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	engine := filepath.Join(root, "engine")
	require.NoError(t, os.MkdirAll(engine, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "venv", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "venv", "bin", "activate"), []byte("# venv\n"), 0o644))

	var calls []call
	out := &bytes.Buffer{}
	s := NewSetup(root, engine)
	s.In = strings.NewReader(answer)
	s.Out = out
	s.Run = func(_ context.Context, dir string, _ io.Writer, name string, args ...string) error {
		calls = append(calls, call{dir: dir, name: name, args: args})
		return nil
	}
	return s, &calls, out
}

func TestConfirm(t *testing.T) {
	for answer, want := range map[string]bool{"y\n": true, "Y\n": true, "n\n": false, "yes\n": false, "": false} {
		s, _, _ := newTestSetup(t, answer)
		ok, err := s.Confirm()
		require.NoError(t, err)
		assert.Equal(t, want, ok, "answer %q", answer)
	}
}

func TestExecuteInstallsAndPatchesOnce(t *testing.T) {
	s, calls, out := newTestSetup(t, "y\n")
	require.NoError(t, s.Execute(context.Background()))

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, s.EngineDir, c.dir)
	assert.Equal(t, "python3", c.name)
	assert.Equal(t, []string{"setup.py", "install", "--prefix=" + filepath.Join(s.ProjectRoot, "venv")}, c.args)
	assert.Contains(t, out.String(), "Wrote to")

	data, err := os.ReadFile(s.ActivatePath())
	require.NoError(t, err)
	assert.Equal(t, "# venv\n\n\n"+ActivateHeader+"\n"+`export PYTHONPATH="`+s.ProjectRoot+`"`+"\n", string(data))

	written, err := s.EnsureActivateExport()
	require.NoError(t, err)
	assert.False(t, written)
	again, err := os.ReadFile(s.ActivatePath())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestExecuteAborted(t *testing.T) {
	s, calls, _ := newTestSetup(t, "n\n")
	err := s.Execute(context.Background())
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Empty(t, *calls)
}

func TestInstallEngineMissingDir(t *testing.T) {
	s, calls, _ := newTestSetup(t, "y\n")
	s.EngineDir = filepath.Join(s.ProjectRoot, "missing")

	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(s.InstallEngine(context.Background()), &cfgErr))
	assert.Empty(t, *calls)
}

func TestEnsureActivateExportMissingScript(t *testing.T) {
	s, _, _ := newTestSetup(t, "y\n")
	s.VenvDir = "other"
	_, err := s.EnsureActivateExport()
	assert.Error(t, err)
}
