// Package perfdb implements the performance database: a process-safe,
// multi-writer key/value store over a single flat text file. One line per
// record, key=id:payload;id:payload. Every mutation acquires the lock,
// re-reads the file, merges and atomically rewrites, so any interleaving
// of writers across threads and processes linearizes.
package perfdb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/convtune/internal/fields"
	"github.com/samcharles93/convtune/internal/lockfile"
)

var ErrKeyNotFound = errors.New("perfdb: key not found")

// DB is a short-lived handle onto one database file. Handles carry no
// cached state between operations; every call re-reads the file under the
// lock. The lock sidecar lives at <path>.lock.
type DB struct {
	path string
	lock *lockfile.LockFile
}

// New opens a handle onto the database at path. The file itself may not
// exist yet; a missing file behaves as an empty database.
func New(path string) (*DB, error) {
	lock, err := lockfile.Get(path + ".lock")
	if err != nil {
		return nil, err
	}
	return &DB{path: path, lock: lock}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// FindRecord returns the record stored under key, or nil if the key is
// absent.
func (db *DB) FindRecord(key string) (*Record, error) {
	var found *Record
	err := db.lock.WithShared(func() error {
		content, err := db.read()
		if err != nil {
			return err
		}
		found = content.records[key]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// FindRecordFor is FindRecord with the key serialized through the fields
// codec.
func (db *DB) FindRecordFor(key fields.Visitable) (*Record, error) {
	return db.FindRecord(fields.Encode(key))
}

// StoreRecord writes rec, replacing any existing record with the same key.
// Empty records are pruned rather than written.
func (db *DB) StoreRecord(rec *Record) error {
	return db.mutate(func(content *dbContent) (bool, error) {
		if rec.Len() == 0 {
			content.remove(rec.Key())
		} else {
			content.put(rec)
		}
		return true, nil
	})
}

// UpdateRecord merges rec into the stored record with the same key: ids
// present in rec overwrite, ids only on disk are kept. rec itself is
// updated to the merged state.
func (db *DB) UpdateRecord(rec *Record) error {
	return db.mutate(func(content *dbContent) (bool, error) {
		if existing := content.records[rec.Key()]; existing != nil {
			merged := NewRecord(rec.Key())
			merged.Merge(existing)
			merged.Merge(rec)
			*rec = *merged
		}
		if rec.Len() == 0 {
			content.remove(rec.Key())
		} else {
			content.put(rec)
		}
		return true, nil
	})
}

// RemoveRecord deletes the record stored under key, reporting whether one
// was present.
func (db *DB) RemoveRecord(key string) (bool, error) {
	removed := false
	err := db.mutate(func(content *dbContent) (bool, error) {
		if _, ok := content.records[key]; !ok {
			return false, nil
		}
		content.remove(key)
		removed = true
		return true, nil
	})
	return removed, err
}

// Load reads the payload stored under (key, id) into value. It reports
// false, leaving value untouched, when the key or id is absent.
func (db *DB) Load(key, id string, value fields.Visitable) (bool, error) {
	rec, err := db.FindRecord(key)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.GetValues(id, value), nil
}

// Update merges a single (id, value) into the record under key, creating
// the record if needed. When the encoded value equals what is already
// stored the file is left untouched.
func (db *DB) Update(key, id string, value fields.Visitable) error {
	payload := fields.Encode(value)
	return db.mutate(func(content *dbContent) (bool, error) {
		rec := content.records[key]
		if rec != nil {
			if prev, ok := rec.GetRaw(id); ok && prev == payload {
				return false, nil
			}
		} else {
			rec = NewRecord(key)
		}
		if !rec.SetRaw(id, payload) {
			return false, fmt.Errorf("perfdb: unstorable value for %s:%s", key, id)
		}
		content.put(rec)
		return true, nil
	})
}

// Remove deletes one id from the record under key, dropping the record
// entirely if it becomes empty. It reports false when the id was absent.
func (db *DB) Remove(key, id string) (bool, error) {
	removed := false
	err := db.mutate(func(content *dbContent) (bool, error) {
		rec := content.records[key]
		if rec == nil || !rec.EraseValues(id) {
			return false, nil
		}
		if rec.Len() == 0 {
			content.remove(key)
		}
		removed = true
		return true, nil
	})
	return removed, err
}

// Keys returns every record key currently stored, in file order.
func (db *DB) Keys() ([]string, error) {
	var keys []string
	err := db.lock.WithShared(func() error {
		content, err := db.read()
		if err != nil {
			return err
		}
		for _, line := range content.lines {
			if line.record != nil {
				keys = append(keys, line.record.Key())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// dbContent is a parsed snapshot of the file. Lines that failed to parse
// are held verbatim and written back untouched.
type dbContent struct {
	lines   []dbLine
	records map[string]*Record
}

type dbLine struct {
	record *Record
	raw    string
}

func (c *dbContent) put(rec *Record) {
	if _, ok := c.records[rec.Key()]; ok {
		for i := range c.lines {
			if c.lines[i].record != nil && c.lines[i].record.Key() == rec.Key() {
				c.lines[i].record = rec
				break
			}
		}
	} else {
		c.lines = append(c.lines, dbLine{record: rec})
	}
	c.records[rec.Key()] = rec
}

func (c *dbContent) remove(key string) {
	if _, ok := c.records[key]; !ok {
		return
	}
	delete(c.records, key)
	for i := range c.lines {
		if c.lines[i].record != nil && c.lines[i].record.Key() == key {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// init prepares an empty snapshot.
func (c *dbContent) init() {
	c.records = map[string]*Record{}
}

// read parses the file. A missing or unreadable file is treated as an
// empty database; only later write failures surface as errors.
func (db *DB) read() (*dbContent, error) {
	content := &dbContent{}
	content.init()

	f, err := os.Open(db.path)
	if err != nil {
		return content, nil
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if rec, ok := parseRecord(line); ok {
			content.put(rec)
		} else {
			content.lines = append(content.lines, dbLine{raw: line})
		}
	}
	if scanner.Err() != nil {
		content = &dbContent{}
		content.init()
	}
	return content, nil
}

// mutate runs fn against a fresh snapshot under the exclusive lock and,
// when fn reports dirty, rewrites the file atomically via a temp file and
// rename in the same directory.
func (db *DB) mutate(fn func(content *dbContent) (bool, error)) error {
	return db.lock.WithExclusive(func() error {
		content, err := db.read()
		if err != nil {
			return err
		}
		dirty, err := fn(content)
		if err != nil || !dirty {
			return err
		}
		return db.write(content)
	})
}

func (db *DB) write(content *dbContent) error {
	dir := filepath.Dir(db.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(db.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("perfdb: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	var sb strings.Builder
	for _, line := range content.lines {
		sb.Reset()
		if line.record != nil {
			if line.record.Len() == 0 {
				continue
			}
			line.record.writeLine(&sb)
		} else {
			sb.WriteString(line.raw)
		}
		sb.WriteByte('\n')
		if _, err := w.WriteString(sb.String()); err != nil {
			return cleanup(fmt.Errorf("perfdb: write %s: %w", tmpName, err))
		}
	}
	if err := w.Flush(); err != nil {
		return cleanup(fmt.Errorf("perfdb: flush %s: %w", tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("perfdb: close %s: %w", tmpName, err))
	}
	if err := os.Rename(tmpName, db.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("perfdb: rename over %s: %w", db.path, err)
	}
	return nil
}
