package treedb

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maruel/treedb/internal/codec"
)

// Defaults for [Options].
const (
	DefaultDir            = "database"
	DefaultFilename       = "db.json"
	DefaultBackupFilename = "db_backup.json"
)

// Options configures [Open]. The zero value opens database/db.json as plain
// JSON.
type Options struct {
	// Dir holds the backing file and its backups. It is created if needed.
	Dir string
	// Filename is the backing file name within Dir.
	Filename string
	// BackupFilename is the fixed backup file name within Dir.
	BackupFilename string

	// EnableLog turns on informational logging to Logger.
	EnableLog bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// AutoBackup copies the backing file to the backup before each save.
	AutoBackup bool

	// Crypted stores the tree through the encoder named by EncryptionMethod
	// instead of as plain JSON.
	Crypted bool
	// EncryptionMethod is "plain" (alias "base64") or "keyed" (alias
	// "fernet"). Defaults to plain.
	EncryptionMethod string
	// EncryptionKey is the secret for the keyed method.
	EncryptionKey string
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Dir == "" {
		out.Dir = DefaultDir
	}
	if out.Filename == "" {
		out.Filename = DefaultFilename
	}
	if out.BackupFilename == "" {
		out.BackupFilename = DefaultBackupFilename
	}
	return out
}

func (o *Options) validate() error {
	for _, name := range []string{o.Filename, o.BackupFilename} {
		if name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("%w: file name %q must not contain a directory", codec.ErrConfiguration, name)
		}
	}
	if o.Filename == o.BackupFilename {
		return fmt.Errorf("%w: backup file name must differ from %q", codec.ErrConfiguration, o.Filename)
	}
	return nil
}

func (o *Options) logger() *slog.Logger {
	if !o.EnableLog {
		return slog.New(slog.DiscardHandler)
	}
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) encoder() (codec.Encoder, error) {
	if !o.Crypted {
		return nil, nil
	}
	return codec.New(o.EncryptionMethod, o.EncryptionKey)
}
