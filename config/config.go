package config

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/util"
)

const (
	// Threshold policy modes. Token mode compares raw integer units,
	// USD mode converts through the price resolver first.
	MODE_TOKEN = "token"
	MODE_USD   = "usd"
)

// Config carries every tunable of the tax pipeline. Amounts are raw integer
// units (token base units or lamports); USD thresholds are exact rationals
// parsed from decimal strings. Wallet secret keys are deliberately not held
// here; the wallet package reads its own environment.
type Config struct {
	Network      string
	RPCURL       string
	BackupRPCURL string
	VenueAPIURL  string

	Mint   solana.PublicKey
	PoolID solana.PublicKey

	// Harvest gate: defer the cycle when the withheld total is below this
	MinTaxThresholdMode   string
	MinTaxThresholdTokens uint64
	MinTaxThresholdUSD    *big.Rat

	// Split a harvest bigger than the ceiling into BatchCount swaps
	BatchCeilingMode   string
	BatchCeilingTokens uint64
	BatchCeilingUSD    *big.Rat
	BatchCount         int
	BatchDelay         time.Duration

	// Proceeds split, fixed 75/25 by default
	HolderShareBps   uint64
	TreasuryShareBps uint64

	SlippageBps        uint64
	MinSwapOutLamports uint64

	// Per-holder payout policy
	MinPayoutMode     string
	MinPayoutLamports uint64
	MinPayoutUSD      *big.Rat
	DustFloorLamports uint64
	FeeBufferLamports uint64

	EpochRetentionDays int
	TaxHistoryCap      int

	HarvestChunkSize    int
	SendRetries         int
	ConfirmPolls        int
	ConfirmPollInterval time.Duration
}

// Load merges network defaults, an optional .env file and the process
// environment. Mint and pool id are the only hard requirements.
func Load(network string) (*Config, error) {

	// Missing .env is fine; the process env may carry everything
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("No .env file loaded")
	}

	nc, err := util.GetNetworkConstants(network)
	if err != nil {
		return nil, err
	}

	c := &Config{
		Network:      network,
		RPCURL:       envStr("SOLANA_RPC_URL", nc.RPCURL),
		BackupRPCURL: envStr("SOLANA_RPC_BACKUP_URL", nc.BackupRPCURL),
		VenueAPIURL:  envStr("RAYDIUM_API_URL", nc.VenueAPIURL),

		MinTaxThresholdMode:   envMode("MIN_TAX_THRESHOLD_MODE", MODE_TOKEN),
		MinTaxThresholdTokens: envUint64("MIN_TAX_THRESHOLD_TOKENS", 1_000_000),
		MinTaxThresholdUSD:    envUSD("MIN_TAX_THRESHOLD_USD", "5"),

		BatchCeilingMode:   envMode("SWAP_BATCH_CEILING_MODE", MODE_TOKEN),
		BatchCeilingTokens: envUint64("SWAP_BATCH_CEILING_TOKENS", 0),
		BatchCeilingUSD:    envUSD("SWAP_BATCH_CEILING_USD", "0"),
		BatchCount:         envInt("SWAP_BATCH_COUNT", 4),
		BatchDelay:         envDuration("SWAP_BATCH_DELAY", 10*time.Second),

		HolderShareBps:   envUint64("HOLDER_SHARE_BPS", 7500),
		TreasuryShareBps: envUint64("TREASURY_SHARE_BPS", 2500),

		SlippageBps:        envUint64("SWAP_SLIPPAGE_BPS", 200),
		MinSwapOutLamports: envUint64("MIN_SWAP_OUT_LAMPORTS", 100_000),

		MinPayoutMode:     envMode("MIN_PAYOUT_MODE", MODE_TOKEN),
		MinPayoutLamports: envUint64("MIN_PAYOUT_LAMPORTS", 100_000),
		MinPayoutUSD:      envUSD("MIN_PAYOUT_USD", "0.01"),
		DustFloorLamports: envUint64("DUST_FLOOR_LAMPORTS", 5_000),
		FeeBufferLamports: envUint64("FEE_BUFFER_LAMPORTS", 10_000),

		EpochRetentionDays: envInt("EPOCH_RETENTION_DAYS", 30),
		TaxHistoryCap:      envInt("TAX_HISTORY_CAP", 100),

		HarvestChunkSize:    envInt("HARVEST_CHUNK_SIZE", 20),
		SendRetries:         envInt("SEND_RETRIES", 3),
		ConfirmPolls:        envInt("CONFIRM_POLLS", 10),
		ConfirmPollInterval: envDuration("CONFIRM_POLL_INTERVAL", 3*time.Second),
	}

	mint := os.Getenv("TOKEN_MINT")
	if mint == "" {
		return nil, errors.New("TOKEN_MINT is not set; cannot operate without a mint")
	}
	c.Mint, err = solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to parse TOKEN_MINT")
	}

	pool := os.Getenv("RAYDIUM_POOL_ID")
	if pool == "" {
		return nil, errors.New("RAYDIUM_POOL_ID is not set; cannot swap without a pool")
	}
	c.PoolID, err = solana.PublicKeyFromBase58(pool)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to parse RAYDIUM_POOL_ID")
	}

	if c.HolderShareBps+c.TreasuryShareBps != 10_000 {
		return nil, errors.Errorf("holder/treasury split must sum to 10000 bps, got %d+%d",
			c.HolderShareBps, c.TreasuryShareBps)
	}

	if c.BatchCount < 1 {
		return nil, errors.New("SWAP_BATCH_COUNT must be at least 1")
	}

	return c, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envMode(key, def string) string {

	v := os.Getenv(key)
	if v == "" {
		return def
	}

	if v != MODE_TOKEN && v != MODE_USD {
		log.WithFields(log.Fields{
			"Key": key, "Value": v,
		}).Warnf("Unknown threshold mode; using '%s'", def)
		return def
	}

	return v
}

func envUint64(key string, def uint64) uint64 {

	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.WithError(err).WithField("Key", key).Warn("Unparseable env value; using default")
		return def
	}

	return n
}

func envInt(key string, def int) int {

	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithError(err).WithField("Key", key).Warn("Unparseable env value; using default")
		return def
	}

	return n
}

func envDuration(key string, def time.Duration) time.Duration {

	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		log.WithError(err).WithField("Key", key).Warn("Unparseable env duration; using default")
		return def
	}

	return d
}

// envUSD parses a decimal USD amount as an exact rational
func envUSD(key, def string) *big.Rat {

	v := os.Getenv(key)
	if v == "" {
		v = def
	}

	r, ok := new(big.Rat).SetString(v)
	if !ok {
		log.WithField("Key", key).Warn("Unparseable USD value; using default")
		r, _ = new(big.Rat).SetString(def)
	}

	return r
}
