// Package playersbolt remembers every endpoint the lobby has heard from, so
// the history survives restarts.
package playersbolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bMeta       = "meta"
	bByEndpoint = "sightings_by_endpoint"
	bByTS       = "sightings_by_ts"
	kTotal      = "total_sightings"

	defaultTO = 2 * time.Second
)

// Sighting is the stored record for one endpoint.
type Sighting struct {
	Endpoint  string    `json:"endpoint"`
	Name      string    `json:"name"`
	Via       string    `json:"via,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     uint64    `json:"count"`
}

// ErrLocked means another process (usually a second lobby on this host)
// holds the database file.
var ErrLocked = errors.New("sighting history in use by another process")

// Store is a BoltDB-backed sighting history.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) a BoltDB database at path. It gives up with
// ErrLocked when the file stays locked for a couple of seconds.
func Open(path string) (*Store, error) {
	return open(path, defaultTO)
}

func open(path string, lockTimeout time.Duration) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{bMeta, bByEndpoint, bByTS} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// NoteSighting records that in.Endpoint was heard at in.LastSeen (now when
// zero). The first sighting time is kept; name and last-seen are replaced
// and the count bumped.
func (s *Store) NoteSighting(in Sighting) error {
	if in.Endpoint == "" {
		return errors.New("missing endpoint")
	}
	if in.LastSeen.IsZero() {
		in.LastSeen = time.Now()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		byEP := tx.Bucket([]byte(bByEndpoint))
		byTS := tx.Bucket([]byte(bByTS))
		meta := tx.Bucket([]byte(bMeta))

		rec := Sighting{Endpoint: in.Endpoint, FirstSeen: in.LastSeen}
		if raw := byEP.Get([]byte(in.Endpoint)); raw != nil {
			if err := json.Unmarshal(raw, &rec); err != nil {
				// corrupt record: start over rather than fail every sighting
				rec = Sighting{Endpoint: in.Endpoint, FirstSeen: in.LastSeen}
			} else if err := byTS.Delete(tsKey(rec.LastSeen.UnixNano(), rec.Endpoint)); err != nil {
				return err
			}
		}
		rec.Name = in.Name
		if in.Via != "" {
			rec.Via = in.Via
		}
		rec.LastSeen = in.LastSeen
		rec.Count++

		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := byEP.Put([]byte(rec.Endpoint), val); err != nil {
			return err
		}
		if err := byTS.Put(tsKey(rec.LastSeen.UnixNano(), rec.Endpoint), nil); err != nil {
			return err
		}
		return meta.Put([]byte(kTotal), encodeU64(decodeU64(meta.Get([]byte(kTotal)))+1))
	})
}

// Get returns the record for endpoint, if any.
func (s *Store) Get(endpoint string) (Sighting, bool, error) {
	var (
		out   Sighting
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bByEndpoint)).Get([]byte(endpoint))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &out)
	})
	return out, found, err
}

// Recent returns up to n records, most recently seen first.
func (s *Store) Recent(n int) ([]Sighting, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]Sighting, 0, min(n, 64))
	err := s.db.View(func(tx *bolt.Tx) error {
		byTS := tx.Bucket([]byte(bByTS))
		byEP := tx.Bucket([]byte(bByEndpoint))
		c := byTS.Cursor()
		for k, _ := c.Last(); k != nil && len(out) < n; k, _ = c.Prev() {
			_, ep := splitTSKey(k)
			if ep == "" {
				continue
			}
			raw := byEP.Get([]byte(ep))
			if raw == nil {
				continue
			}
			var rec Sighting
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Stats returns the number of distinct endpoints and the total number of
// sightings recorded.
func (s *Store) Stats() (endpoints int, total uint64, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		endpoints = tx.Bucket([]byte(bByEndpoint)).Stats().KeyN
		total = decodeU64(tx.Bucket([]byte(bMeta)).Get([]byte(kTotal)))
		return nil
	})
	return endpoints, total, err
}

func tsKey(ts int64, endpoint string) []byte {
	// big-endian timestamp for ordering; 0x00 then the endpoint
	b := make([]byte, 8+1+len(endpoint))
	binary.BigEndian.PutUint64(b[:8], uint64(ts))
	b[8] = 0
	copy(b[9:], endpoint)
	return b
}

func splitTSKey(k []byte) (int64, string) {
	if len(k) < 9 {
		return 0, ""
	}
	return int64(binary.BigEndian.Uint64(k[:8])), string(k[9:])
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
