package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FileBackend keeps the snapshot in <dir>/<name>.json with two rotated copies
// (<name>.backup.json, <name>.backup2.json). Writes go to a temp file that is
// synced and renamed over the main file; the main file is never truncated in place.
type FileBackend struct {
	main    string
	backup1 string
	backup2 string
	log     *zap.Logger
	now     func() time.Time
}

func NewFileBackend(dir, name string, log *zap.Logger) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	name = strings.TrimSuffix(name, ".json")
	if name == "" {
		name = "bets"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileBackend{
		main:    filepath.Join(dir, name+".json"),
		backup1: filepath.Join(dir, name+".backup.json"),
		backup2: filepath.Join(dir, name+".backup2.json"),
		log:     log.With(zap.String("backend", "file")),
		now:     time.Now,
	}, nil
}

func (f *FileBackend) Name() string { return "file" }

// Path is the main snapshot file.
func (f *FileBackend) Path() string { return f.main }

// Read returns the first valid copy among main, backup, backup2. A corrupt copy
// is preserved aside as <file>.corrupted.<timestamp>. When the data came from a
// backup, the main file is restored from it before returning.
func (f *FileBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found := false
	for _, path := range []string{f.main, f.backup1, f.backup2} {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		found = true
		if err != nil {
			f.log.Error("read snapshot copy", zap.String("path", path), zap.Error(err))
			continue
		}
		if !validObject(data) {
			f.log.Error("corrupt snapshot copy", zap.String("path", path))
			f.quarantine(path, data)
			continue
		}
		if path != f.main {
			f.log.Warn("recovered snapshot from backup", zap.String("path", path))
			if err := writeAtomic(f.main, data); err != nil {
				f.log.Error("restore main snapshot", zap.Error(err))
			}
		}
		return data, nil
	}
	if !found {
		return nil, ErrNoSnapshot
	}
	return nil, errors.New("no valid snapshot copy on disk")
}

// Write rotates backup -> backup2 and main -> backup, then atomically replaces main.
func (f *FileBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := copyIfExists(f.backup1, f.backup2); err != nil {
		return fmt.Errorf("rotate backup: %w", err)
	}
	if err := copyIfExists(f.main, f.backup1); err != nil {
		return fmt.Errorf("rotate main: %w", err)
	}
	if err := writeAtomic(f.main, data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (f *FileBackend) quarantine(path string, data []byte) {
	dst := fmt.Sprintf("%s.corrupted.%s", path, f.now().Format("20060102_150405"))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		f.log.Error("preserve corrupt snapshot", zap.String("path", dst), zap.Error(err))
		return
	}
	f.log.Info("corrupt snapshot preserved", zap.String("path", dst))
}

func validObject(data []byte) bool {
	var fields map[string]json.RawMessage
	return json.Unmarshal(data, &fields) == nil && fields != nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func copyIfExists(src, dst string) error {
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return writeAtomic(dst, data)
}
