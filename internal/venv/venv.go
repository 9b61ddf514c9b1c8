// Package venv wires the numerical engine's Python bindings into a local
// virtual environment: it installs the engine package under the venv prefix
// and makes the project importable from the venv's activate script.
package venv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

// DefaultVenvDir is the venv directory name under the project root.
const DefaultVenvDir = "venv"

// ActivateHeader precedes the export line appended to the activate script.
const ActivateHeader = "# Automatically added by 'spectra setup-venv'"

// ErrAborted is returned when the user rejects the confirmation prompt.
var ErrAborted = errors.New("setup aborted by user")

// Runner executes name with args inside dir.
type Runner func(ctx context.Context, dir string, out io.Writer, name string, args ...string) error

// ExecRunner runs commands with os/exec, streaming their output to out.
func ExecRunner(ctx context.Context, dir string, out io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s %s failed", name, strings.Join(args, " "))
	}
	return nil
}

// Setup holds the paths of one environment setup.
type Setup struct {
	ProjectRoot string
	// EngineDir contains the engine's setup.py (extern/engines/python).
	EngineDir string
	VenvDir   string

	In     io.Reader
	Out    io.Writer
	Run    Runner
	logger log.Logger
}

// NewSetup creates a Setup for projectRoot using the engine bindings in
// engineDir, prompting on stdin and reporting on stdout.
func NewSetup(projectRoot, engineDir string) *Setup {
	return &Setup{
		ProjectRoot: projectRoot,
		EngineDir:   engineDir,
		VenvDir:     DefaultVenvDir,
		In:          os.Stdin,
		Out:         os.Stdout,
		Run:         ExecRunner,
		logger:      log.GetLoggerWithName("venv"),
	}
}

func (s *Setup) venvPath() string {
	if filepath.IsAbs(s.VenvDir) {
		return s.VenvDir
	}
	return filepath.Join(s.ProjectRoot, s.VenvDir)
}

// ActivatePath returns <venv>/bin/activate.
func (s *Setup) ActivatePath() string {
	return filepath.Join(s.venvPath(), "bin", "activate")
}

// ExportLine is the line that puts the project root on PYTHONPATH.
func (s *Setup) ExportLine() string {
	return fmt.Sprintf("export PYTHONPATH=%q", s.ProjectRoot)
}

// Confirm shows the paths and asks for a y/n answer. Only "y" confirms.
func (s *Setup) Confirm() (bool, error) {
	fmt.Fprintln(s.Out, "\nPlease confirm the following:")
	fmt.Fprintf(s.Out, "   Engine dir = '%s'\n", s.EngineDir)
	fmt.Fprintf(s.Out, "   Virtual Env Dir = '%s'\n", s.VenvDir)
	fmt.Fprint(s.Out, "\nAre these correct? (y/n) ")

	line, err := bufio.NewReader(s.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.Wrap(err, "failed to read answer")
	}
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}

// InstallEngine runs "python3 setup.py install --prefix=<venv>" in the
// engine directory.
func (s *Setup) InstallEngine(ctx context.Context) error {
	if s.EngineDir == "" {
		return errors.NewConfigError("MATLABROOT", "engine directory is not set", nil)
	}
	if info, err := os.Stat(s.EngineDir); err != nil || !info.IsDir() {
		return errors.NewConfigError(s.EngineDir, "engine directory not found", err)
	}
	s.logger.Info("Installing engine", log.PathKey, s.EngineDir)
	return s.Run(ctx, s.EngineDir, s.Out, "python3", "setup.py", "install", "--prefix="+s.venvPath())
}

// EnsureActivateExport appends the PYTHONPATH export to the activate script
// unless a line already contains it. It reports whether the file changed.
func (s *Setup) EnsureActivateExport() (bool, error) {
	path := s.ActivatePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.NewConfigError(path, "activate script not readable", err)
	}
	export := s.ExportLine()
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, export) {
			return false, nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return false, errors.Wrapf(err, "failed to open %s", path)
	}
	if _, err := fmt.Fprintf(f, "\n\n%s\n%s\n", ActivateHeader, export); err != nil {
		f.Close()
		return false, errors.Wrapf(err, "failed to write %s", path)
	}
	return true, errors.WithStack(f.Close())
}

// Execute confirms, installs the engine and patches the activate script.
func (s *Setup) Execute(ctx context.Context) error {
	ok, err := s.Confirm()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(s.Out, "Please set MATLABROOT or pass -engine-dir and -venv.")
		return ErrAborted
	}
	if err := s.InstallEngine(ctx); err != nil {
		return err
	}
	written, err := s.EnsureActivateExport()
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(s.Out, "\nWrote to %s\n", s.ActivatePath())
	} else {
		fmt.Fprintf(s.Out, "\n\nMake sure this is in your '%s' file:\n%s\n", s.ActivatePath(), s.ExportLine())
	}
	return nil
}
