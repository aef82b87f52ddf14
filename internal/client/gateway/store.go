package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	precachePrefix = "precache-"
	runtimePrefix  = "runtime-"
)

var (
	bucketState = []byte("gateway_state")
	keyActive   = []byte("active")
	keyWaiting  = []byte("waiting")
)

// Entry is one stored response.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Store keeps the response caches as bbolt buckets in one file. Bucket
// names carry the cache version.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the cache file at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketState, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores e under key in the named cache, creating the cache on demand.
func (s *Store) Put(cache, key string, e *Entry) error {
	v, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(cache))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", cache, err)
		}
		return b.Put([]byte(key), v)
	})
}

// Get returns the entry for key, nil when the cache or key does not exist.
func (s *Store) Get(cache, key string) (*Entry, error) {
	var e *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cache))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		e = &Entry{}
		return json.Unmarshal(v, e)
	})
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", cache, err)
	}
	return e, nil
}

// Caches lists the cache buckets.
func (s *Store) Caches() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if strings.HasPrefix(n, precachePrefix) || strings.HasPrefix(n, runtimePrefix) {
				names = append(names, n)
			}
			return nil
		})
	})
	return names, err
}

// Len returns the number of entries in a cache, 0 when it does not exist.
func (s *Store) Len(cache string) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(cache)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Prune deletes every cache whose version is not keep.
func (s *Store) Prune(keep string) ([]string, error) {
	var deleted []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		var names []string
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if version, ok := cacheVersion(n); ok && version != keep {
				names = append(names, n)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, n := range names {
			if err := tx.DeleteBucket([]byte(n)); err != nil {
				return fmt.Errorf("delete bucket %s: %w", n, err)
			}
			deleted = append(deleted, n)
		}
		return nil
	})
	return deleted, err
}

func (s *Store) versions() (active, waiting string, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		active = string(b.Get(keyActive))
		waiting = string(b.Get(keyWaiting))
		return nil
	})
	return active, waiting, err
}

func (s *Store) setVersions(active, waiting string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if err := b.Put(keyActive, []byte(active)); err != nil {
			return err
		}
		return b.Put(keyWaiting, []byte(waiting))
	})
}

func cacheVersion(name string) (string, bool) {
	for _, p := range []string{precachePrefix, runtimePrefix} {
		if v, ok := strings.CutPrefix(name, p); ok {
			return v, true
		}
	}
	return "", false
}
