// Package store persists gateway state that must survive restarts.
package store

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

var (
	bucketSession = []byte("session")
	keyCurrent    = []byte("current")
)

// OpenTimeout bounds waiting for the file lock.
const OpenTimeout = time.Second

// Store is a bolt database file.
type Store struct {
	Clock fx.Clock

	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{Clock: fx.SystemClock, db: db}, nil
}

// SaveSession implements cloud.SessionStore.
func (s *Store) SaveSession(sid, dtg string) error {
	rec := &SessionRecord{Sid: sid, Dtg: dtg, UpdatedAt: s.Clock.Now().Unix()}
	data, err := proto.Marshal(rec)
	if err != nil {
		return err
	}
	glog.V(2).Infof("store session %s", rec)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyCurrent, data)
	})
}

// LoadSession returns the last saved session, or nil when none.
func (s *Store) LoadSession() (*SessionRecord, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSession).Get(keyCurrent); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}
	var rec SessionRecord
	if err := proto.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// Close implements io.Closer.
func (s *Store) Close() error {
	return s.db.Close()
}
