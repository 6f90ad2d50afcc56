package xo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const binaryName = "xo"

// FindRoot walks up from dir and returns the nearest ancestor containing
// a package.json, the project-root marker for JavaScript workspaces.
func FindRoot(dir string) (string, bool) {
	current := filepath.Clean(dir)
	for {
		marker := filepath.Join(current, "package.json")
		if info, err := os.Stat(marker); err == nil && !info.IsDir() {
			return current, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// CLIResolver locates the xo executable for a folder. A locally
// installed node_modules/.bin/xo anywhere above the folder wins over a
// global installation on PATH.
type CLIResolver struct {
	// Path, when set, overrides resolution with an explicit executable.
	Path string
	// Args are extra arguments passed through to every engine run.
	Args []string
}

func (r *CLIResolver) Resolve(_ context.Context, folder string) (Engine, error) {
	bin, err := r.locate(folder)
	if err != nil {
		return nil, &ResolutionError{Folder: folder, Err: err}
	}
	slog.Debug("resolved xo", "folder", folder, "bin", bin)
	return &CLIEngine{Bin: bin, Dir: folder, Args: r.Args}, nil
}

func (r *CLIResolver) locate(folder string) (string, error) {
	if r.Path != "" {
		if _, err := os.Stat(r.Path); err != nil {
			return "", fmt.Errorf("configured xo path: %w", err)
		}
		return r.Path, nil
	}

	current := filepath.Clean(folder)
	for {
		candidate := filepath.Join(current, "node_modules", ".bin", binaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	if bin, err := exec.LookPath(binaryName); err == nil {
		return bin, nil
	}
	return "", errors.New("xo is not installed locally or globally")
}
