// Package persist stores a whole document tree in a single file.
//
// The file holds either the tree as indented JSON or, when an encoder is set,
// a JSON string wrapping the encoder's output. Writes go to a temporary file
// in the same directory which is then renamed over the backing file, so the
// file always holds the last completed write.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruel/treedb/internal/codec"
	"github.com/maruel/treedb/internal/tree"
)

var (
	// ErrIO is returned when a file cannot be created, read, written or
	// copied.
	ErrIO = errors.New("i/o error")
	// ErrNoBackupFound is returned by [File.Restore] without a backup.
	ErrNoBackupFound = errors.New("no backup file found")
)

// File is the backing file of a tree and its backup.
type File struct {
	path       string
	backupPath string
	enc        codec.Encoder
	log        *slog.Logger
}

// New prepares the backing file at path. The containing directory is
// created if needed. enc may be nil to store plain JSON. log may be nil.
func New(path, backupPath string, enc codec.Encoder, log *slog.Logger) (*File, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(backupPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
			return nil, fmt.Errorf("%w: failed to create directory %s: %w", ErrIO, dir, err)
		}
	}
	return &File{path: path, backupPath: backupPath, enc: enc, log: log}, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// BackupPath returns the fixed backup file path.
func (f *File) BackupPath() string {
	return f.backupPath
}

// Load reads the tree, creating the file with an empty tree when missing.
func (f *File) Load() (map[string]any, error) {
	if _, err := os.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		if err := f.Save(map[string]any{}); err != nil {
			return nil, err
		}
		f.log.Info("Database file created", "path", f.path)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, f.path, err)
	}
	root, err := f.parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", f.path, err)
	}
	f.log.Info("Database loaded", "path", f.path, "keys", len(root))
	return root, nil
}

func (f *File) parse(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	v, err := tree.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", codec.ErrCorruptData, err)
	}
	switch t := v.(type) {
	case map[string]any:
		if f.enc != nil && len(t) != 0 {
			f.log.Warn("Loaded unencoded content; it will be encoded on next save", "path", f.path)
		}
		return t, nil
	case string:
		if f.enc == nil {
			return nil, fmt.Errorf("%w: content is encoded but encoding is disabled", codec.ErrCorruptData)
		}
		if t == "" {
			return map[string]any{}, nil
		}
		return f.enc.Decode(t)
	default:
		return nil, fmt.Errorf("%w: top level value must be an object", codec.ErrCorruptData)
	}
}

// Save writes root, replacing the previous content.
func (f *File) Save(root map[string]any) error {
	var v any = root
	if f.enc != nil {
		s, err := f.enc.Encode(root)
		if err != nil {
			return fmt.Errorf("failed to encode tree: %w", err)
		}
		v = s
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}
	if err := writeFile(f.path, bytes.NewReader(append(data, '\n'))); err != nil {
		return err
	}
	f.log.Info("Database saved", "path", f.path)
	return nil
}

// Raw returns the bytes of the backing file as stored.
func (f *File) Raw() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, f.path, err)
	}
	return data, nil
}

// Backup copies the backing file to the fixed backup path.
func (f *File) Backup() error {
	if err := copyFile(f.path, f.backupPath); err != nil {
		return err
	}
	f.log.Info("Backup created", "path", f.backupPath)
	return nil
}

// BackupTimestamped copies the backing file next to the fixed backup, with
// now in the name, and returns the new file's path.
func (f *File) BackupTimestamped(now time.Time) (string, error) {
	ext := filepath.Ext(f.backupPath)
	base := strings.TrimSuffix(f.backupPath, ext)
	dst := base + "-" + now.UTC().Format("20060102T150405.000") + "Z" + ext
	if err := copyFile(f.path, dst); err != nil {
		return "", err
	}
	f.log.Info("Backup created", "path", dst)
	return dst, nil
}

// Restore copies the backup over the backing file and returns the restored
// tree. The backup is decoded first; the backing file is left untouched when
// it cannot be.
func (f *File) Restore() (map[string]any, error) {
	data, err := os.ReadFile(f.backupPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.log.Error("No backup file found to restore", "path", f.backupPath)
			return nil, fmt.Errorf("%w: %s", ErrNoBackupFound, f.backupPath)
		}
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, f.backupPath, err)
	}
	root, err := f.parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup %s: %w", f.backupPath, err)
	}
	if err := writeFile(f.path, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	f.log.Info("Database restored from backup", "path", f.backupPath)
	return root, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: paths come from the store configuration
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", ErrIO, src, err)
	}
	defer func() {
		_ = in.Close()
	}()
	return writeFile(dst, in)
}

// writeFile writes r to a temporary file next to path then renames it over
// path.
func writeFile(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrIO, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to write %s: %w", ErrIO, path, err), tmp.Close(), os.Remove(tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to close temp file: %w", ErrIO, err), os.Remove(tmp.Name()))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Join(fmt.Errorf("%w: failed to replace %s: %w", ErrIO, path, err), os.Remove(tmp.Name()))
	}
	return nil
}
