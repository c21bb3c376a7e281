// Package cache serves page shells and static assets while the portal is
// unreachable. Entries live in a badger database under generation-prefixed
// keys; activating a new generation deletes every entry from older ones,
// which is the sole eviction mechanism.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "resp:"

// Resource classes, used for policy selection and metrics labels.
const (
	ClassDocument = "document"
	ClassStatic   = "static"
	ClassAPI      = "api"
)

// Entry is one cached response.
type Entry struct {
	Status   int                 `msgpack:"status"`
	Header   map[string][]string `msgpack:"header"`
	Body     []byte              `msgpack:"body"`
	Class    string              `msgpack:"class"`
	StoredAt time.Time           `msgpack:"stored_at"`
}

// Store is the badger-backed response cache for one named generation.
type Store struct {
	db         *badger.DB
	generation string
}

// NewStore opens (or creates) the cache at path for the given generation.
// An empty path opens an in-memory cache, used in tests.
func NewStore(path, generation string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return &Store{db: db, generation: generation}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Generation returns the active cache generation name.
func (s *Store) Generation() string {
	return s.generation
}

func (s *Store) key(requestKey string) []byte {
	return []byte(keyPrefix + s.generation + ":" + requestKey)
}

// Put stores a response under the current generation.
func (s *Store) Put(requestKey string, e *Entry) error {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(requestKey), data)
	})
	if err != nil {
		return fmt.Errorf("store entry: %w", err)
	}
	return nil
}

// Get retrieves a cached response from the current generation. The second
// return value reports whether an entry was found.
func (s *Store) Get(requestKey string) (*Entry, bool, error) {
	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(requestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &e)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read entry: %w", err)
	}
	return &e, true, nil
}

// Activate deletes every cached entry that does not belong to the current
// generation and returns how many were removed. This is the service-worker
// activation analog and the cache's only eviction path.
func (s *Store) Activate() (int, error) {
	current := []byte(keyPrefix + s.generation + ":")
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if !strings.HasPrefix(string(k), string(current)) {
				stale = append(stale, k)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan generations: %w", err)
	}

	for _, k := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(k)
		})
		if err != nil {
			return 0, fmt.Errorf("delete stale entry: %w", err)
		}
	}

	return len(stale), nil
}

// Status summarizes cache contents: entries in the current generation by
// class, plus how many stale previous-generation entries remain.
func (s *Store) Status() (*types.CacheStatus, error) {
	status := &types.CacheStatus{
		Generation:  s.generation,
		ByClass:     make(map[string]int),
		GeneratedAt: time.Now().UTC(),
	}
	current := keyPrefix + s.generation + ":"

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !strings.HasPrefix(string(item.Key()), current) {
				status.Stale++
				continue
			}
			status.Entries++
			var e Entry
			err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			status.ByClass[e.Class]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cache: %w", err)
	}

	return status, nil
}
