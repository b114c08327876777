package tax

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/storage"
)

// EligibilitySet answers whether a wallet may receive rewards.
type EligibilitySet struct {
	excluded map[solana.PublicKey]struct{}
}

func (s *EligibilitySet) Eligible(wallet solana.PublicKey) bool {
	_, found := s.excluded[wallet]
	return !found
}

func (s *EligibilitySet) ExcludedCount() int {
	return len(s.excluded)
}

// EligibilityProvider supplies the reward filter applied before every
// distribution.
type EligibilityProvider interface {
	EligibleSet(ctx context.Context) (*EligibilitySet, error)
}

// StorageEligibility reads the operator-managed excluded and blacklist
// lists and adds the wallets that must never receive rewards regardless:
// the bot's own wallets and the pool vaults.
type StorageEligibility struct {
	db     *storage.Storage
	always []solana.PublicKey
}

func NewStorageEligibility(db *storage.Storage, always ...solana.PublicKey) *StorageEligibility {
	return &StorageEligibility{db: db, always: always}
}

func (p *StorageEligibility) EligibleSet(ctx context.Context) (*EligibilitySet, error) {

	set := &EligibilitySet{excluded: make(map[solana.PublicKey]struct{})}

	for _, wallet := range p.always {
		set.excluded[wallet] = struct{}{}
	}

	for _, list := range []string{storage.EXCLUDED_BUCKET, storage.BLACKLIST_BUCKET} {

		wallets, err := p.db.GetEligibilityWallets(list)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to load eligibility list '%s'", list)
		}

		for _, raw := range wallets {
			key, err := solana.PublicKeyFromBase58(raw)
			if err != nil {
				log.WithFields(log.Fields{
					"List": list, "Wallet": raw,
				}).Warn("Ignoring malformed wallet in eligibility list")
				continue
			}
			set.excluded[key] = struct{}{}
		}
	}

	return set, nil
}
