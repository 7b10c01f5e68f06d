// Package security provides path validation for directories the app deletes from.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// PathValidator guards directories whose contents are removed after use.
type PathValidator struct {
	criticalPaths []string
}

// NewPathValidator creates a new path validator with default settings.
func NewPathValidator() *PathValidator {
	return &PathValidator{
		criticalPaths: []string{
			"/",
			"/bin",
			"/sbin",
			"/usr",
			"/etc",
			"/var",
			"/tmp",
			"/opt",
			"/lib",
			"/System",
			"/Library",
			"/Applications",
		},
	}
}

// ValidateDeletionRoot checks that dir may hold files that get deleted once
// consumed. System directories and the home directory itself are refused.
func (v *PathValidator) ValidateDeletionRoot(dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("path must be absolute: %s", dir)
	}

	cleanPath := filepath.Clean(dir)
	if cleanPath != dir && strings.Contains(dir, "..") {
		return fmt.Errorf("path contains traversal components: %s", dir)
	}

	if homeDir, err := os.UserHomeDir(); err == nil && cleanPath == filepath.Clean(homeDir) {
		return fmt.Errorf("cannot use home directory: %s", dir)
	}

	if slices.Contains(v.criticalPaths, cleanPath) {
		return fmt.Errorf("cannot use system directory: %s", dir)
	}

	// Short children of system directories (/usr/bin, /etc/ssl) are refused too.
	for _, critical := range v.criticalPaths {
		if critical == "/" {
			continue
		}
		if strings.HasPrefix(cleanPath, critical+"/") && len(cleanPath) <= len(critical)+5 {
			return fmt.Errorf("cannot use system directory: %s", dir)
		}
	}

	return nil
}

// ValidateDeletable checks that path is a regular file directly inside root.
// Symlinks are refused so a link dropped into root cannot redirect a read.
func (v *PathValidator) ValidateDeletable(root, path string) error {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(root) {
		return fmt.Errorf("path is outside %s: %s", root, path)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

// AddCriticalPath adds a directory that can never be a deletion root.
func (v *PathValidator) AddCriticalPath(path string) {
	v.criticalPaths = append(v.criticalPaths, filepath.Clean(path))
}
