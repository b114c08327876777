package storage

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// GetEpochRecord returns the raw epoch/cycle document, or nil if none has
// been written yet. The epochs package owns the JSON shape; storage only
// moves bytes.
func (s *Storage) GetEpochRecord() ([]byte, error) {

	var record []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(STATE_BUCKET))
		if b == nil {
			return errors.New("Unable to locate state bucket")
		}

		if v := b.Get([]byte(EPOCH_RECORD_KEY)); v != nil {
			record = make([]byte, len(v))
			copy(record, v)
		}

		return nil
	})

	return record, err
}

// SaveEpochRecord persists the epoch/cycle document. A failure here is fatal
// to the calling cycle; losing the audit trail is worse than a failed cycle.
func (s *Storage) SaveEpochRecord(record []byte) error {

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(STATE_BUCKET))
		if b == nil {
			return errors.New("Unable to locate state bucket")
		}

		return b.Put([]byte(EPOCH_RECORD_KEY), record)
	})
}
