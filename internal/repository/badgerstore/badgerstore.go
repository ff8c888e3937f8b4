// Package badgerstore implements the repository interfaces on top of Badger,
// an embedded key-value store. It is the alternative to the SQLite backend
// for deployments that prefer an LSM-tree store (database.driver=badger).
//
// KEY LAYOUT:
//
//	user/<login>               → userRecord (JSON)
//	token/<githubToken>        → login (secondary index)
//	photo/<id>                 → model.Photo (JSON)
//	tag/<photoID>/<login>      → empty
//	usertag/<login>/<photoID>  → empty (reverse index for inPhotos)
//
// GitHub logins and xid ids never contain "/", so the separator is safe.
package badgerstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/sakif/photo-share/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

const (
	prefixUser  = "user/"
	prefixPhoto = "photo/"
)

// maxConflictRetries bounds how often a write is retried after Badger's
// optimistic concurrency control reports a conflicting transaction.
const maxConflictRetries = 3

// DB holds a connection to a Badger backend.
type DB struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database in dir. An empty dir opens an
// in-memory database, which is what the tests use.
func Open(dir string) (*DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: opening %q: %w", dir, err)
	}
	return &DB{db: db}, nil
}

// Close handles closing all connections to the database.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) Users() repository.UserRepository { return &UserStore{db: s.db} }

func (s *DB) Photos() repository.PhotoRepository { return &PhotoStore{db: s.db} }

func (s *DB) Tags() repository.TagRepository { return &TagStore{db: s.db} }

func key(parts ...string) []byte {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(p)
	}
	return b.Bytes()
}

// update runs fn in a read-write transaction, retrying on conflicts.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, k []byte, v any) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(b []byte) error {
		return json.Unmarshal(b, v)
	})
}

func setJSON(txn *badger.Txn, k []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, b)
}

// countPrefix counts keys under prefix without loading values.
func countPrefix(db *badger.DB, prefix string) (int, error) {
	n := 0
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// suffixes returns the last key segment of every key under prefix.
func suffixes(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		k := it.Item().Key()
		out = append(out, string(k[len(prefix):]))
	}
	return out
}
