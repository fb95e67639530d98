package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const fileTimestampLayout = "20060102_150405"

// Store lays out the image tree under a base directory:
//
//	<base>/<YYYYMMDD>/inventory_<ts>.jpg   committed captures
//	<base>/<YYYYMMDD>/report_<day>.gif     animated artifacts
//	<base>/startup/startup_<ts>.jpg        first-run snapshots
//	<base>/state.json                      scheduler watermark
//	<base>/scheduler.lock                  cross-process action lock
type Store struct {
	baseDir string
}

func New(baseDir string) (*Store, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "startup")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) StatePath() string {
	return filepath.Join(s.baseDir, "state.json")
}

func (s *Store) LockPath() string {
	return filepath.Join(s.baseDir, "scheduler.lock")
}

// WriteImage stores a committed capture in its day directory and returns
// the path.
func (s *Store) WriteImage(day string, ts time.Time, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, day)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create day directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("inventory_%s.jpg", ts.Format(fileTimestampLayout)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write image %s: %w", path, err)
	}
	return path, nil
}

// WriteStartupImage stores a first-run snapshot outside any day bucket.
func (s *Store) WriteStartupImage(ts time.Time, data []byte) (string, error) {
	path := filepath.Join(s.baseDir, "startup", fmt.Sprintf("startup_%s.jpg", ts.Format(fileTimestampLayout)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write startup image %s: %w", path, err)
	}
	return path, nil
}

// WriteArtifact stores a day's animated artifact and returns the path.
func (s *Store) WriteArtifact(day string, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, day)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create day directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("report_%s.gif", day))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}
