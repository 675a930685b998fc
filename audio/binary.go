package audio

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ErrBinaryNotFound is returned when an external tool cannot be located.
var ErrBinaryNotFound = errors.New("binary not found")

var (
	binaryCache   = map[string]string{}
	binaryCacheMu sync.Mutex
)

// FindBinary returns the path of an external tool such as ffmpeg.
//
// An explicit override wins when it points to an existing file or resolves
// through PATH. Otherwise the lookup order is:
//  1. next to the running executable (and ../Resources for bundled builds)
//  2. the current working directory and its vendor/ffmpeg directory
//  3. the system PATH
func FindBinary(name, override string) (string, error) {
	if override != "" {
		if fileExists(override) {
			return override, nil
		}
		if p, err := exec.LookPath(override); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, override)
	}

	binaryCacheMu.Lock()
	defer binaryCacheMu.Unlock()
	if p, ok := binaryCache[name]; ok {
		return p, nil
	}

	var searchPaths []string
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		searchPaths = append(searchPaths,
			filepath.Join(execDir, "..", "Resources", name),
			filepath.Join(execDir, name),
		)
	}
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(cwd, name),
			filepath.Join(cwd, "vendor", "ffmpeg", name),
		)
	}

	for _, p := range searchPaths {
		if fileExists(p) {
			binaryCache[name] = p
			return p, nil
		}
	}

	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}
	binaryCache[name] = p
	return p, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
