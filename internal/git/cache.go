package git

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gitviz/gitviz/internal/logging"
	"github.com/gitviz/gitviz/internal/models"
)

var scanBucket = []byte("scans")

// Cache is a best-effort store of scan results. A repository that gained
// commits gets a new HEAD and therefore a new key, so stale entries are
// never served; they are simply left behind in the file.
type Cache struct {
	db  *bolt.DB
	log *logging.Logger
}

// CacheKey identifies one cached scan result. Label and Prefixed are part
// of the key because stored events carry the repository label in RepoID
// and, when prefixing is on, in every path; the same repository scanned
// under another label or without prefixing is a different entry.
type CacheKey struct {
	RepoPath string
	Head     string
	Label    string
	Prefixed bool
	Start    time.Time
	End      time.Time
}

func (k CacheKey) bytes() []byte {
	variant := "bare"
	if k.Prefixed {
		variant = "prefixed"
	}
	return []byte(fmt.Sprintf("%s@%s:%s..%s:%s:%s",
		k.RepoPath, k.Head,
		k.Start.Format(time.RFC3339), k.End.Format(time.RFC3339),
		k.Label, variant))
}

// OpenCache opens (or creates) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening scan cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(scanBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing scan cache: %w", err)
	}
	return &Cache{db: db, log: logging.Get().Component("scan-cache")}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached events for the key, if present. Decode failures
// are treated as misses; the cache never fails a scan.
func (c *Cache) Get(key CacheKey) ([]models.CommitEvent, bool) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(scanBucket).Get(key.bytes()); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false
	}

	var events []models.CommitEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		c.log.Warn("discarding undecodable cache entry", "repo", key.RepoPath, "error", err)
		return nil, false
	}
	return events, true
}

// Put stores the events under the key.
func (c *Cache) Put(key CacheKey, events []models.CommitEvent) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(scanBucket).Put(key.bytes(), raw)
	})
}
