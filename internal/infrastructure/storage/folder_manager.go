package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Folder names under the watched root
const (
	FolderIncoming  = "incoming"
	FolderProcessed = "processed"
	FolderPending   = "pending"
	FolderFailed    = "failed"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// FolderManager owns the incoming/processed/pending/failed layout used by the watcher
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager rooted at baseDir
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Ensure creates every folder of the layout
func (m *FolderManager) Ensure() error {
	for _, name := range []string{FolderIncoming, FolderProcessed, FolderPending, FolderFailed} {
		path := m.GetPath(name)
		if err := os.MkdirAll(path, 0755); err != nil {
			m.logger.Error("Failed to create folder",
				zap.String("folder_path", path),
				zap.Error(err))
			return fmt.Errorf("failed to create folder: %w", err)
		}
	}
	return nil
}

// GetPath returns the path for a folder of the layout
func (m *FolderManager) GetPath(name string) string {
	return filepath.Join(m.baseDir, name)
}

// MoveTo moves src into the named folder and returns the new path. An existing file of
// the same name is never overwritten; the moved file gets a timestamp suffix instead.
func (m *FolderManager) MoveTo(src, folder string) (string, error) {
	dir := m.GetPath(folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	name := SanitizeName(filepath.Base(src))
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}

	if err := os.Rename(src, dst); err != nil {
		m.logger.Error("Failed to move file",
			zap.String("from", src),
			zap.String("to", dst),
			zap.Error(err))
		return "", fmt.Errorf("failed to move file: %w", err)
	}

	m.logger.Debug("Moved file", zap.String("from", src), zap.String("to", dst))
	return dst, nil
}

// SanitizeName returns a filesystem-safe file name without directory components
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "")
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "_" {
		return "upload"
	}
	return name
}
