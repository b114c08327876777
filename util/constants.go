package util

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	NETWORK_MAINNET = "mainnet"
	NETWORK_DEVNET  = "devnet"

	// One distribution cycle every 5 minutes, 288 per UTC day
	CYCLE_MINUTES  = 5
	CYCLES_PER_DAY = (24 * 60) / CYCLE_MINUTES

	CycleDuration = CYCLE_MINUTES * time.Minute

	LAMPORTS_PER_SOL = 1_000_000_000
)

// Token-2022 owns the taxed mint; swaps settle into wrapped SOL which is a
// classic SPL token account.
var (
	Token2022Program = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	WrappedSolMint   = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	MemoProgram      = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

// Raydium program identities for the three pool shapes we can route through.
var (
	RaydiumAmmV4Program   = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumAmmV4Authority = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
	RaydiumCpmmProgram    = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	RaydiumClmmProgram    = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
)

type NetworkConstants struct {
	RPCURL       string
	BackupRPCURL string
	VenueAPIURL  string
}

func GetNetworkConstants(network string) (*NetworkConstants, error) {

	switch network {
	case NETWORK_MAINNET:
		return &NetworkConstants{
			RPCURL:       "https://api.mainnet-beta.solana.com",
			BackupRPCURL: "https://solana-rpc.publicnode.com",
			VenueAPIURL:  "https://api-v3.raydium.io",
		}, nil
	case NETWORK_DEVNET:
		return &NetworkConstants{
			RPCURL:       "https://api.devnet.solana.com",
			BackupRPCURL: "https://api.devnet.solana.com",
			VenueAPIURL:  "https://api-v3-devnet.raydium.io",
		}, nil
	}

	// Unknown network
	return nil, fmt.Errorf("No such network '%s' exists", network)
}

func IsValidNetwork(maybeNetwork string) bool {
	return maybeNetwork == NETWORK_MAINNET || maybeNetwork == NETWORK_DEVNET
}

func AvailableNetworks() string {
	return NETWORK_MAINNET + "," + NETWORK_DEVNET
}
