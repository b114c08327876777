package storage

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// GetTaxRecord returns the raw tax-state document, or nil if none exists.
func (s *Storage) GetTaxRecord() ([]byte, error) {

	var record []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(STATE_BUCKET))
		if b == nil {
			return errors.New("Unable to locate state bucket")
		}

		if v := b.Get([]byte(TAX_RECORD_KEY)); v != nil {
			record = make([]byte, len(v))
			copy(record, v)
		}

		return nil
	})

	return record, err
}

// SaveTaxRecord persists the tax-state document
func (s *Storage) SaveTaxRecord(record []byte) error {

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(STATE_BUCKET))
		if b == nil {
			return errors.New("Unable to locate state bucket")
		}

		return b.Put([]byte(TAX_RECORD_KEY), record)
	})
}
