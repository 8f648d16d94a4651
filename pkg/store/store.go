// Package store archives trace documents in a local bbolt file so a run can
// be reopened by name or id without keeping the original file around.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/willibrandon/ChronoTrace/pkg/trace"
)

const (
	traceBucket = "trace"
	metaBucket  = "meta"
)

// ErrNotFound indicates a requested trace is missing
var ErrNotFound = errors.New("trace not found")

// namespace scopes the name-based document ids
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/willibrandon/ChronoTrace/trace"))

// Record describes an archived trace
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Entries    int       `json:"entries"`
	RunError   string    `json:"run_error,omitempty"`
	Size       int       `json:"size"`
	ImportedAt time.Time `json:"imported_at"`
}

// Store provides a BoltDB-backed trace archive
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens a BoltDB-backed store at the provided path
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DocumentID returns the id a document is archived under. It depends only
// on the document's content, so importing the same trace twice keeps a
// single copy.
func DocumentID(doc *trace.Document) (string, error) {
	plain, err := trace.EncodeBytes(doc, trace.NoCompression)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(namespace, plain).String(), nil
}

// Put archives doc under name and returns its record
func (s *Store) Put(ctx context.Context, name string, doc *trace.Document) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s == nil || s.db == nil {
		return Record{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(name) == "" {
		return Record{}, fmt.Errorf("trace name is required")
	}

	id, err := DocumentID(doc)
	if err != nil {
		return Record{}, err
	}
	payload, err := trace.EncodeBytes(doc, trace.ZstdCompression)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         id,
		Name:       name,
		Entries:    len(doc.Log),
		Size:       len(payload),
		ImportedAt: s.now().UTC(),
	}
	if doc.Error != nil {
		rec.RunError = doc.Error.Error()
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		traces, metas, err := buckets(tx)
		if err != nil {
			return err
		}
		if err := traces.Put([]byte(id), payload); err != nil {
			return err
		}
		return metas.Put([]byte(id), meta)
	})
	if err != nil {
		return Record{}, fmt.Errorf("put trace %s: %w", name, err)
	}
	return rec, nil
}

// Get fetches an archived document by id, or by name when no id matches.
// A name shared by several traces resolves to the latest import.
func (s *Store) Get(ctx context.Context, ref string) (*trace.Document, Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, Record{}, err
	}
	if s == nil || s.db == nil {
		return nil, Record{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(ref) == "" {
		return nil, Record{}, fmt.Errorf("trace id is required")
	}

	var (
		rec     Record
		payload []byte
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		traces, metas, err := buckets(tx)
		if err != nil {
			return err
		}
		key, err := resolve(metas, ref)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(metas.Get(key), &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		// bbolt values are only valid inside the transaction
		payload = append([]byte(nil), traces.Get(key)...)
		return nil
	})
	if err != nil {
		return nil, Record{}, err
	}

	doc, err := trace.DecodeBytes(payload)
	if err != nil {
		return nil, Record{}, fmt.Errorf("decode trace %s: %w", rec.ID, err)
	}
	return doc, rec, nil
}

// List returns every archived record, newest first
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, metas, err := buckets(tx)
		if err != nil {
			return err
		}
		return metas.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ImportedAt.Equal(records[j].ImportedAt) {
			return records[i].ImportedAt.After(records[j].ImportedAt)
		}
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// Delete removes an archived trace by id or name
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		traces, metas, err := buckets(tx)
		if err != nil {
			return err
		}
		key, err := resolve(metas, ref)
		if err != nil {
			return err
		}
		if err := traces.Delete(key); err != nil {
			return err
		}
		return metas.Delete(key)
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{traceBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func buckets(tx *bbolt.Tx) (traces, metas *bbolt.Bucket, err error) {
	traces = tx.Bucket([]byte(traceBucket))
	metas = tx.Bucket([]byte(metaBucket))
	if traces == nil || metas == nil {
		return nil, nil, fmt.Errorf("trace buckets are missing")
	}
	return traces, metas, nil
}

// resolve finds the key for an id or, failing that, the latest record
// with the given name.
func resolve(metas *bbolt.Bucket, ref string) ([]byte, error) {
	if metas.Get([]byte(ref)) != nil {
		return []byte(ref), nil
	}

	var (
		key    []byte
		latest time.Time
	)
	err := metas.ForEach(func(k, v []byte) error {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		if rec.Name == ref && (key == nil || rec.ImportedAt.After(latest)) {
			key = append([]byte(nil), k...)
			latest = rec.ImportedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%q: %w", ref, ErrNotFound)
	}
	return key, nil
}
