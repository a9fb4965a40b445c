package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type DirChecker interface {
	Stat(name string) (os.FileInfo, error)
}

type osDirChecker struct{}

func (osDirChecker) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func OSDirChecker() DirChecker {
	return osDirChecker{}
}

// Resolve turns the --dir value of an action into the absolute directory
// sent to the server. Relative paths are taken from base and a leading ~/
// from the home directory. An empty value resolves to "" so the server
// falls back to the session's own directory.
func Resolve(base, raw string, checker DirChecker) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	path, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		base = strings.TrimSpace(base)
		if base == "" {
			if base, err = os.Getwd(); err != nil {
				return "", err
			}
		}
		path = filepath.Join(base, path)
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if err := ValidateDirectory(path, checker); err != nil {
		return "", fmt.Errorf("action directory %s: %w", path, err)
	}
	return path, nil
}

func ValidateDirectory(path string, checker DirChecker) error {
	if checker == nil {
		checker = OSDirChecker()
	}
	info, err := checker.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
