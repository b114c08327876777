// Package wallet loads the bot's signing keypairs. The operating wallet is
// the withdraw-withheld authority and pays every transaction; the treasury
// wallet only ever receives, but its keypair is held too so the treasury
// share can be moved on manual intervention.
package wallet

import (
	"crypto/ed25519"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	OPERATING_KEY_ENV = "OPERATING_WALLET_KEY"
	TREASURY_KEY_ENV  = "TREASURY_WALLET_KEY"
)

type Wallet struct {
	operating solana.PrivateKey
	treasury  solana.PrivateKey
}

// Init loads both keypairs from the environment. Missing or malformed keys
// are configuration errors; the bot cannot run without them.
func Init() (*Wallet, error) {

	operating, err := loadKey(OPERATING_KEY_ENV)
	if err != nil {
		return nil, err
	}

	treasury, err := loadKey(TREASURY_KEY_ENV)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"Operating": operating.PublicKey(), "Treasury": treasury.PublicKey(),
	}).Info("Loaded wallets")

	return &Wallet{operating: operating, treasury: treasury}, nil
}

func loadKey(envVar string) (solana.PrivateKey, error) {

	encoded := os.Getenv(envVar)
	if encoded == "" {
		return nil, errors.Errorf("%s is not set; export the base58-encoded secret key", envVar)
	}

	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode %s", envVar)
	}

	// A full keypair is 64 bytes; a 32-byte value is just the seed and
	// means the key was exported the wrong way
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("%s must decode to %d bytes, got %d (seed-only keys are not supported)",
			envVar, ed25519.PrivateKeySize, len(raw))
	}

	return solana.PrivateKey(raw), nil
}

// OperatingKey returns the full signing key for transaction building.
func (w *Wallet) OperatingKey() solana.PrivateKey {
	return w.operating
}

// Operating is the operating wallet's address.
func (w *Wallet) Operating() solana.PublicKey {
	return w.operating.PublicKey()
}

// Treasury is the treasury wallet's address.
func (w *Wallet) Treasury() solana.PublicKey {
	return w.treasury.PublicKey()
}

// Signer resolves signing keys during transaction signing. The treasury
// key is resolved too: when the mint's withdraw authority is the treasury
// wallet, the withdraw transaction carries its signature.
func (w *Wallet) Signer(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(w.operating.PublicKey()) {
		return &w.operating
	}
	if key.Equals(w.treasury.PublicKey()) {
		return &w.treasury
	}
	return nil
}
