package journal

import (
	"fmt"
	"os"
	"time"

	bbolt "go.etcd.io/bbolt"
)

const storeFileMode os.FileMode = 0o600

var defaultStoreOptions = &bbolt.Options{Timeout: 5 * time.Second, NoGrowSync: true}

// Store is the shared bbolt handle backing every channel's journal on this
// process: one open *bbolt.DB, one bucket per channel id, keyed by
// 8-byte big-endian sequence number so bucket iteration order equals
// append order (spec.md §4.5). Grounded on
// internal/cluster/boltdb_store.go's single-db-one-bucket pattern,
// generalized here to one-bucket-per-channel since a journal-backed
// reactor system may expose several channels against the same file.
type Store struct {
	db   *bbolt.DB
	path string
}

// OpenStore opens (or creates) the bbolt database at path.
func OpenStore(path string) (*Store, error) {
	optionsCopy := *defaultStoreOptions
	db, err := bbolt.Open(path, storeFileMode, &optionsCopy)
	if err != nil {
		return nil, fmt.Errorf("journal: opening store %q: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// ensureBucket creates channel's bucket if it does not already exist.
func (s *Store) ensureBucket(channel string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(channel))
		return err
	})
}

// append writes raw under seq's big-endian key in channel's bucket.
func (s *Store) append(channel string, seq uint64, raw []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(channel))
		if bucket == nil {
			return fmt.Errorf("journal: bucket %q missing", channel)
		}
		return bucket.Put(sequenceKey(seq), raw)
	})
}

// scanFrom opens a read transaction and invokes fn for every entry in
// channel's bucket whose key is strictly greater than after, in ascending
// (append) order, stopping early if fn returns false.
func (s *Store) scanFrom(channel string, after uint64, fn func(seq uint64, raw []byte) bool) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(channel))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		var k, v []byte
		if after == 0 {
			k, v = cursor.First()
		} else {
			k, v = cursor.Seek(sequenceKey(after))
			if k != nil && sequenceFromKey(k) == after {
				k, v = cursor.Next()
			}
		}
		for k != nil {
			if !fn(sequenceFromKey(k), v) {
				return nil
			}
			k, v = cursor.Next()
		}
		return nil
	})
}

// maxSeq returns the highest sequence number currently appended to
// channel's bucket, or 0 if the bucket is empty or does not exist yet.
// The ingress loop seeks here before its first scan so a driver restart
// tails from the journal's current end rather than replaying history
// (spec.md §4.5 ingress step 1).
func (s *Store) maxSeq(channel string) (uint64, error) {
	var seq uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(channel))
		if bucket == nil {
			return nil
		}
		k, _ := bucket.Cursor().Last()
		if k != nil {
			seq = sequenceFromKey(k)
		}
		return nil
	})
	return seq, err
}

// Close releases the underlying bbolt handle.
func (s *Store) Close() error {
	return s.db.Close()
}
