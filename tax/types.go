package tax

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TaxState is the durable record of everything the pipeline has moved
// since first run. Counters only grow; the distribution history is bounded
// with the oldest entries dropped first. Amounts that can exceed 2^53 are
// string-encoded so JSON consumers cannot silently lose precision.
type TaxState struct {
	TotalTaxCollected   uint64 `json:"totalTaxCollected,string"`
	TotalRewardAmount   uint64 `json:"totalRewardAmount,string"`
	TotalTreasuryAmount uint64 `json:"totalTreasuryAmount,string"`
	TotalSolDistributed uint64 `json:"totalSolDistributed,string"`
	TotalSolToTreasury  uint64 `json:"totalSolToTreasury,string"`

	LastTaxDistribution time.Time `json:"lastTaxDistribution"`
	LastSwapTx          string    `json:"lastSwapTx,omitempty"`
	LastDistributionTx  string    `json:"lastDistributionTx,omitempty"`

	TaxDistributions []TaxDistribution `json:"taxDistributions"`
}

// TaxDistribution is one bounded-history entry: what one cycle harvested,
// swapped, and paid out.
type TaxDistribution struct {
	Timestamp   time.Time `json:"timestamp"`
	Epoch       string    `json:"epoch"`
	CycleNumber int       `json:"cycleNumber"`

	NukeHarvested uint64 `json:"nukeHarvested,string"`
	SolProceeds   uint64 `json:"solProceeds,string"`
	SolToHolders  uint64 `json:"solToHolders,string"`
	SolToTreasury uint64 `json:"solToTreasury,string"`

	HoldersPaid    int      `json:"holdersPaid"`
	HoldersSkipped int      `json:"holdersSkipped"`
	SwapSignatures []string `json:"swapSignatures,omitempty"`

	// Non-fatal sub-errors, currently only a failed treasury transfer
	SubError string `json:"subError,omitempty"`
}

// Result reports one completed pipeline run back to the cycle runner.
type Result struct {
	Harvested     uint64
	Proceeds      uint64
	HolderShare   uint64
	TreasuryShare uint64

	Distribution *DistributionResult

	SwapSignatures    []solana.Signature
	TreasurySignature solana.Signature

	// Treasury-transfer failure does not roll back holder payouts; it is
	// carried here instead of aborting the cycle
	TreasuryError error
}

// WalletPayment is one holder actually paid.
type WalletPayment struct {
	Wallet    solana.PublicKey
	Amount    uint64
	Signature solana.Signature
}

// WalletSkip is one holder considered but not paid, with the reason.
type WalletSkip struct {
	Wallet solana.PublicKey
	Amount uint64
	Reason string
}

// DistributionResult is the full accounting of one payout batch: every
// eligible holder lands in exactly one of the two lists.
type DistributionResult struct {
	TotalWeight   uint64
	TotalPaid     uint64
	Paid          []WalletPayment
	Skipped       []WalletSkip
	LastSignature solana.Signature
}
