package storage

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Eligibility lists are keyed on the wallet address with an empty value;
// presence is membership. Excluded wallets simply receive no rewards,
// blacklisted wallets are excluded and flagged for the UI.

func (s *Storage) AddEligibilityWallet(list, wallet string) error {

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ELIGIBILITY_BUCKET)).Bucket([]byte(list))
		if b == nil {
			return errors.Errorf("Unable to locate eligibility list '%s'", list)
		}

		return b.Put([]byte(wallet), []byte{})
	})
}

func (s *Storage) RemoveEligibilityWallet(list, wallet string) error {

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ELIGIBILITY_BUCKET)).Bucket([]byte(list))
		if b == nil {
			return errors.Errorf("Unable to locate eligibility list '%s'", list)
		}

		return b.Delete([]byte(wallet))
	})
}

func (s *Storage) GetEligibilityWallets(list string) ([]string, error) {

	var wallets []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ELIGIBILITY_BUCKET)).Bucket([]byte(list))
		if b == nil {
			return errors.Errorf("Unable to locate eligibility list '%s'", list)
		}

		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			wallets = append(wallets, string(k))
		}

		return nil
	})

	return wallets, err
}
