// Package treedb is an embedded, file backed document store addressed by
// slash delimited paths.
//
// The whole store is one JSON document rooted at a map. Values are read and
// written by path, such as "users/1/name":
//
//	db, err := treedb.Open(treedb.Options{Dir: "data"})
//	if err != nil {
//		return err
//	}
//	if err := db.Set("users/1", map[string]any{"name": "Aliou", "score": 10}); err != nil {
//		return err
//	}
//	err = db.Edit("users/1", map[string]any{"score": "+5"})
//
// Every successful mutation notifies the observers, then rewrites the whole
// file. The file holds either plain JSON or a JSON string wrapping the
// encoded tree, see [Options].
//
// A DB is not safe for concurrent use and a file must have a single owner.
package treedb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/maruel/treedb/internal/codec"
	"github.com/maruel/treedb/internal/export"
	"github.com/maruel/treedb/internal/observer"
	"github.com/maruel/treedb/internal/persist"
	"github.com/maruel/treedb/internal/remote"
	"github.com/maruel/treedb/internal/search"
	"github.com/maruel/treedb/internal/tree"
)

// DB is an open store.
type DB struct {
	opts   Options
	log    *slog.Logger
	enc    codec.Encoder
	file   *persist.File
	tree   *tree.Tree
	bus    observer.Bus
	closed bool
}

// Open loads the store described by opts, creating its directory and an
// empty backing file when missing.
func Open(opts Options) (*DB, error) {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, opErr("open", "", err)
	}
	enc, err := o.encoder()
	if err != nil {
		return nil, opErr("open", "", err)
	}
	log := o.logger()
	f, err := persist.New(filepath.Join(o.Dir, o.Filename), filepath.Join(o.Dir, o.BackupFilename), enc, log)
	if err != nil {
		return nil, opErr("open", o.Dir, err)
	}
	root, err := f.Load()
	if err != nil {
		return nil, opErr("open", f.Path(), err)
	}
	return &DB{opts: o, log: log, enc: enc, file: f, tree: tree.FromMap(root)}, nil
}

// Path returns the backing file path.
func (db *DB) Path() string {
	return db.file.Path()
}

// BackupPath returns the fixed backup file path.
func (db *DB) BackupPath() string {
	return db.file.BackupPath()
}

// Encoding returns the encoder name, or "json" when the file holds plain
// JSON.
func (db *DB) Encoding() string {
	if db.enc == nil {
		return "json"
	}
	return db.enc.Name()
}

// Close drops the observers. Every later call fails with [ErrClosed].
//
// Mutations are saved as they happen so Close has nothing to flush.
func (db *DB) Close() error {
	if db.closed {
		return opErr("close", "", ErrClosed)
	}
	db.closed = true
	db.bus = observer.Bus{}
	return nil
}

func (db *DB) check(op, path string) error {
	if db.closed {
		return opErr(op, path, ErrClosed)
	}
	return nil
}

// Exists reports whether path resolves. A malformed path does not exist.
func (db *DB) Exists(path string) bool {
	return !db.closed && db.tree.Exists(path)
}

// Get returns a copy of the value at path.
func (db *DB) Get(path string) (any, error) {
	if err := db.check("get", path); err != nil {
		return nil, err
	}
	v, err := db.tree.Get(path)
	return v, opErr("get", path, err)
}

// GetDB returns a copy of the whole tree.
func (db *DB) GetDB() (map[string]any, error) {
	if err := db.check("get_db", ""); err != nil {
		return nil, err
	}
	return db.tree.Snapshot(), nil
}

// Set inserts value at path, creating missing intermediate maps. value must
// be a map; nil stores an empty map. An existing path is [ErrAlreadyExists].
func (db *DB) Set(path string, value any) error {
	return db.mutate("set", observer.ActionSet, path, func() (any, error) {
		return db.tree.Set(path, value)
	})
}

// Edit updates the map at path.
//
// When every value of the map is a string starting with '+' or '-', such as
// {"score": "+5"}, each named number is incremented or decremented and the
// whole edit fails with [ErrInvalidIncrement] if any one cannot apply.
// Otherwise value is merged recursively into the current map.
func (db *DB) Edit(path string, value any) error {
	return db.mutate("edit", observer.ActionEdit, path, func() (any, error) {
		return db.tree.Edit(path, value)
	})
}

// Remove deletes the value at path.
func (db *DB) Remove(path string) error {
	return db.mutate("remove", observer.ActionRemove, path, func() (any, error) {
		return db.tree.Remove(path)
	})
}

// GetSubcollection returns a copy of the top level map coll, or an empty map
// when it does not exist.
func (db *DB) GetSubcollection(coll string) (map[string]any, error) {
	if err := db.check("get_subcollection", coll); err != nil {
		return nil, err
	}
	c, err := db.tree.GetCollection(coll)
	return c, opErr("get_subcollection", coll, err)
}

// GetItem returns a copy of item id of collection coll.
func (db *DB) GetItem(coll, id string) (any, error) {
	p := coll + tree.Separator + id
	if err := db.check("get_item", p); err != nil {
		return nil, err
	}
	v, err := db.tree.GetItem(coll, id)
	return v, opErr("get_item", p, err)
}

// SetSubcollection inserts value as item id of collection coll, creating the
// collection when needed.
func (db *DB) SetSubcollection(coll, id string, value any) error {
	p := coll + tree.Separator + id
	return db.mutate("set_subcollection", observer.ActionSetCollection, p, func() (any, error) {
		return db.tree.SetItem(coll, id, value)
	})
}

// AddItem inserts value in collection coll under a new time sortable
// identifier, which is returned.
func (db *DB) AddItem(coll string, value any) (string, error) {
	if err := db.check("add_item", coll); err != nil {
		return "", err
	}
	undo := db.undo()
	id, stored, err := db.tree.AddItem(coll, value)
	if err != nil {
		return "", opErr("add_item", coll, err)
	}
	p := coll + tree.Separator + id
	if err := db.commit(observer.ActionSetCollection, p, stored, undo); err != nil {
		return "", opErr("add_item", p, err)
	}
	return id, nil
}

// EditSubcollection edits item id of collection coll like [DB.Edit].
func (db *DB) EditSubcollection(coll, id string, value any) error {
	p := coll + tree.Separator + id
	return db.mutate("edit_subcollection", observer.ActionEditCollection, p, func() (any, error) {
		return db.tree.EditItem(coll, id, value)
	})
}

// RemoveItem deletes item id of collection coll.
func (db *DB) RemoveItem(coll, id string) error {
	p := coll + tree.Separator + id
	return db.mutate("remove_item", observer.ActionRemoveCollection, p, func() (any, error) {
		return db.tree.RemoveItem(coll, id)
	})
}

// RemoveSubcollection deletes the whole collection coll.
func (db *DB) RemoveSubcollection(coll string) error {
	return db.mutate("remove_subcollection", observer.ActionRemoveCollection, coll, func() (any, error) {
		return db.tree.RemoveCollection(coll)
	})
}

// mutate runs fn then commits its result. Nothing is persisted when fn
// fails.
func (db *DB) mutate(op, action, path string, fn func() (any, error)) error {
	if err := db.check(op, path); err != nil {
		return err
	}
	undo := db.undo()
	v, err := fn()
	if err != nil {
		return opErr(op, path, err)
	}
	return opErr(op, path, db.commit(action, path, v, undo))
}

// undo returns a function restoring the current tree. Observers are the only
// step that can veto an applied mutation, so the copy is only taken when
// there are some.
func (db *DB) undo() func() {
	if db.bus.Len() == 0 {
		return func() {}
	}
	snap := db.tree.Snapshot()
	return func() { db.tree.Replace(snap) }
}

// commit notifies the observers then persists. An observer error reverts
// the in-memory tree. A persistence error leaves the mutation in memory; the
// next successful save writes it.
func (db *DB) commit(action, path string, v any, undo func()) error {
	if err := db.bus.Notify(observer.Event{Action: action, Path: path, Value: tree.Clone(v)}); err != nil {
		undo()
		return err
	}
	db.log.Debug("Mutation applied", "action", action, "path", path)
	if db.opts.AutoBackup {
		if err := db.file.Backup(); err != nil {
			return err
		}
	}
	return db.file.Save(db.tree.Root())
}

// Subscribe registers fn for every mutation whose path starts with prefix.
// The match is a plain string prefix: "user" also matches "users/1".
// Callbacks run synchronously, before the mutation is saved; an error
// reverts the mutation and is returned to the caller wrapped in
// [ErrObserver].
func (db *DB) Subscribe(prefix string, fn func(Event) error) Handle {
	return db.bus.Subscribe(prefix, fn)
}

// Unsubscribe removes a subscription and reports whether it existed.
func (db *DB) Unsubscribe(prefix string, h Handle) bool {
	return db.bus.Unsubscribe(prefix, h)
}

// Raw returns the backing file content as stored.
func (db *DB) Raw() ([]byte, error) {
	if err := db.check("raw", db.Path()); err != nil {
		return nil, err
	}
	b, err := db.file.Raw()
	return b, opErr("raw", db.Path(), err)
}

// Backup copies the backing file to the fixed backup path.
func (db *DB) Backup() error {
	if err := db.check("backup", db.BackupPath()); err != nil {
		return err
	}
	return opErr("backup", db.BackupPath(), db.file.Backup())
}

// BackupTimestamped copies the backing file next to the fixed backup with
// the current time in its name, and returns the new path.
func (db *DB) BackupTimestamped() (string, error) {
	if err := db.check("backup", db.BackupPath()); err != nil {
		return "", err
	}
	p, err := db.file.BackupTimestamped(time.Now())
	return p, opErr("backup", db.BackupPath(), err)
}

// Restore replaces the backing file with the fixed backup and reloads it.
func (db *DB) Restore() error {
	if err := db.check("restore", db.BackupPath()); err != nil {
		return err
	}
	root, err := db.file.Restore()
	if err != nil {
		return opErr("restore", db.BackupPath(), err)
	}
	db.tree.Replace(root)
	return nil
}

// Reload discards the in-memory tree and reads the backing file again.
func (db *DB) Reload() error {
	if err := db.check("reload", db.Path()); err != nil {
		return err
	}
	root, err := db.file.Load()
	if err != nil {
		return opErr("reload", db.Path(), err)
	}
	db.tree.Replace(root)
	return nil
}

// Search returns every leaf equal to value, keyed by path. When key is not
// empty, only that top level entry is searched. See [search.Find] for the
// matching rules.
func (db *DB) Search(value any, key string) (map[string]any, error) {
	if err := db.check("search", key); err != nil {
		return nil, err
	}
	out, err := search.Find(db.tree.Root(), value, key)
	if err != nil {
		return nil, opErr("search", key, err)
	}
	if len(out) == 0 {
		db.log.Info("No match", "value", value, "key", key)
	}
	return out, nil
}

// ExportCSV writes the fragment at path, or the whole tree when path is
// empty, as CSV in the store directory and returns the file path. filename
// defaults to export.csv.
func (db *DB) ExportCSV(path, filename string) (string, error) {
	return db.export("export_csv", path, filename, export.WriteCSV)
}

// ExportYAML is like [DB.ExportCSV] with YAML output. filename defaults to
// export.yaml.
func (db *DB) ExportYAML(path, filename string) (string, error) {
	return db.export("export_yaml", path, filename, export.WriteYAML)
}

func (db *DB) export(op, path, filename string, write func(dir, filename string, data any) (string, error)) (string, error) {
	if err := db.check(op, path); err != nil {
		return "", err
	}
	var data any = db.tree.Root()
	if path != "" {
		v, err := db.tree.Get(path)
		if err != nil {
			return "", opErr(op, path, err)
		}
		data = v
	}
	out, err := write(db.opts.Dir, filename, data)
	if err != nil {
		return "", opErr(op, path, err)
	}
	db.log.Info("Exported", "path", path, "file", out)
	return out, nil
}

// PushBackup takes a timestamped backup and sends it through t. It returns
// the path of the backup that was sent.
func (db *DB) PushBackup(ctx context.Context, t Transport) (string, error) {
	p, err := db.BackupTimestamped()
	if err != nil {
		return "", err
	}
	if err := t.Send(ctx, p); err != nil {
		return p, opErr("push", p, fmt.Errorf("%s: %w", t.Name(), err))
	}
	db.log.Info("Backup sent", "transport", t.Name(), "path", p)
	return p, nil
}

// Transport sends a backup file off the machine.
type Transport = remote.Transport

// NewTelegramTransport returns a transport uploading backups to a Telegram
// chat through the Bot API.
func NewTelegramTransport(token, chatID string) Transport {
	return remote.NewTelegram(token, chatID)
}

// NewGitTransport returns a transport committing backups into the local git
// repository at dir, initializing it when needed.
func NewGitTransport(dir, name, email string) (Transport, error) {
	g, err := remote.NewGitArchive(dir, name, email)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Event describes a mutation delivered to observers.
type Event = observer.Event

// Handle identifies a subscription.
type Handle = observer.Handle

// Observer actions.
const (
	ActionSet              = observer.ActionSet
	ActionEdit             = observer.ActionEdit
	ActionRemove           = observer.ActionRemove
	ActionSetCollection    = observer.ActionSetCollection
	ActionEditCollection   = observer.ActionEditCollection
	ActionRemoveCollection = observer.ActionRemoveCollection
)
