package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// Top-level buckets
	STATE_BUCKET       = "state"
	ELIGIBILITY_BUCKET = "eligibility"
	CONFIG_BUCKET      = "config"

	// Nested under eligibility
	EXCLUDED_BUCKET  = "excluded"
	BLACKLIST_BUCKET = "blacklist"

	// Nested under config
	NOTIFICATIONS_BUCKET = "notifications"

	// Keys within the state bucket; each holds one JSON document
	EPOCH_RECORD_KEY = "epochs"
	TAX_RECORD_KEY   = "tax"
)

type Storage struct {
	db *bolt.DB
}

// InitStorage opens (creating if needed) the database for the given network
// and ensures all buckets exist. One file per network keeps devnet runs from
// polluting mainnet history.
func InitStorage(dataDir, network string) (*Storage, error) {

	dbFile := filepath.Join(dataDir, fmt.Sprintf("nukebot-%s.db", network))

	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open database %s", dbFile)
	}

	// Ensure buckets exist, and migrations
	err = db.Update(func(tx *bolt.Tx) error {

		if _, err := tx.CreateBucketIfNotExists([]byte(STATE_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create state bucket")
		}

		eb, err := tx.CreateBucketIfNotExists([]byte(ELIGIBILITY_BUCKET))
		if err != nil {
			return errors.Wrap(err, "Cannot create eligibility bucket")
		}
		if _, err := eb.CreateBucketIfNotExists([]byte(EXCLUDED_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create excluded bucket")
		}
		if _, err := eb.CreateBucketIfNotExists([]byte(BLACKLIST_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create blacklist bucket")
		}

		cb, err := tx.CreateBucketIfNotExists([]byte(CONFIG_BUCKET))
		if err != nil {
			return errors.Wrap(err, "Cannot create config bucket")
		}
		if _, err := cb.CreateBucketIfNotExists([]byte(NOTIFICATIONS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create notifications bucket")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("File", dbFile).Info("Database opened")

	return &Storage{db: db}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	log.Info("Database closed")
}

// Itob returns an 8-byte big endian representation of v.
func Itob(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Btoi converts an 8-byte big endian buffer back to an int
func Btoi(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
