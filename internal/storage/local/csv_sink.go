// Package local writes publication snapshots as CSV files on the local filesystem.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

// Config captures the parameters for the CSV sink.
type Config struct {
	// BaseDir is the directory that receives the CSV files.
	BaseDir string
	// Now stamps backup file names. Defaults to time.Now.
	Now func() time.Time
}

// Sink writes record sets to BaseDir. An existing file is copied to a
// timestamped backup and then atomically replaced.
type Sink struct {
	baseDir string
	now     func() time.Time
	logger  *zap.Logger
}

// New creates the base directory if needed and checks that it is writable.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{baseDir: cfg.BaseDir, now: cfg.Now, logger: logger}, nil
}

// Save writes records to name inside the base directory and returns a file:// URI.
func (s *Sink) Save(_ context.Context, name string, records []crawler.PublicationRecord) (string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	var buf bytes.Buffer
	if err := crawler.WriteCSV(&buf, records); err != nil {
		return "", err
	}
	tmpPath, err := writeTemp(filepath.Dir(fullPath), filepath.Base(fullPath), buf.Bytes())
	if err != nil {
		return "", err
	}
	s.backup(fullPath)
	if err := rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to replace file: %w", err)
	}
	return "file://" + fullPath, nil
}

// rename moves the finished temp file into place.
var rename = os.Rename

func writeTemp(dir, base string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return tmp.Name(), nil
}

func (s *Sink) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("file name is required")
	}
	fullPath := filepath.Join(s.baseDir, name)
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// backup copies an existing file to <stem>.backup_<unix>.csv, leaving the
// original in place. Failure only warns.
func (s *Sink) backup(fullPath string) {
	info, err := os.Stat(fullPath)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	backupPath := BackupPath(fullPath, s.now())
	if err := copyFile(fullPath, backupPath); err != nil {
		s.logger.Warn("could not create backup", zap.String("path", fullPath), zap.Error(err))
		return
	}
	s.logger.Info("created backup", zap.String("path", backupPath))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// BackupPath returns the backup location for path at t.
func BackupPath(path string, t time.Time) string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s.backup_%d.csv", stem, t.Unix())
}
