// Package tax runs the harvest, swap, and distribute pipeline for the
// taxed mint, and owns the durable counters that audit it. One coordinator
// instance serves the whole process; cycles never overlap.
package tax

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/config"
	"nukebot/fetcher"
	"nukebot/raydium"
	"nukebot/solclient"
	"nukebot/util"
)

// Holder and mint lookups ride the cached-fetch layer; a cycle takes a few
// minutes at most, so these windows keep one cycle on one snapshot without
// going stale across cycles.
const (
	holdersTTL       = 30 * time.Second
	holdersCooldown  = 10 * time.Second
	mintInfoTTL      = 60 * time.Second
	mintInfoCooldown = 15 * time.Second
)

// Chain is the slice of the RPC client the pipeline uses. Narrow so tests
// can stand in a fake ledger.
type Chain interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	GetTokenHolders(ctx context.Context, mint solana.PublicKey) ([]*solclient.TokenAccount, error)
	GetMintInfo(ctx context.Context, mint solana.PublicKey) (*solclient.MintInfo, error)
	SendInstructions(ctx context.Context, instructions []solana.Instruction, payer solana.PublicKey, signer func(solana.PublicKey) *solana.PrivateKey, opts solclient.SendOptions) (solana.Signature, error)
}

// Swapper converts harvested tokens into lamports.
type Swapper interface {
	Swap(ctx context.Context, amountIn uint64) (*raydium.SwapResult, error)
}

// PriceResolver values raw amounts in USD for the dual-mode thresholds.
type PriceResolver interface {
	TokenUSD(ctx context.Context, amount uint64, decimals uint8) (*big.Rat, error)
	LamportsUSD(ctx context.Context, lamports uint64) (*big.Rat, error)
}

// Store persists the tax state document.
type Store interface {
	GetTaxRecord() ([]byte, error)
	SaveTaxRecord([]byte) error
}

// CoordinatorConfig wires the coordinator's collaborators.
type CoordinatorConfig struct {
	Config      *config.Config
	Chain       Chain
	Swapper     Swapper
	Prices      PriceResolver
	Eligibility EligibilityProvider
	Store       Store

	Operating solana.PublicKey
	Treasury  solana.PublicKey
	Signer    func(solana.PublicKey) *solana.PrivateKey

	SendOpts solclient.SendOptions
}

type Coordinator struct {
	cfg         *config.Config
	chain       Chain
	swapper     Swapper
	prices      PriceResolver
	eligibility EligibilityProvider
	store       Store
	clock       clockwork.Clock

	operating solana.PublicKey
	treasury  solana.PublicKey
	signer    func(solana.PublicKey) *solana.PrivateKey
	sendOpts  solclient.SendOptions

	holders  *fetcher.Cached[[]*solclient.TokenAccount]
	mintInfo *fetcher.Cached[*solclient.MintInfo]

	mu    sync.Mutex
	state *TaxState
}

func NewCoordinator(cc CoordinatorConfig) (*Coordinator, error) {
	return NewCoordinatorWithClock(cc, clockwork.NewRealClock())
}

func NewCoordinatorWithClock(cc CoordinatorConfig, clock clockwork.Clock) (*Coordinator, error) {

	c := &Coordinator{
		cfg:         cc.Config,
		chain:       cc.Chain,
		swapper:     cc.Swapper,
		prices:      cc.Prices,
		eligibility: cc.Eligibility,
		store:       cc.Store,
		clock:       clock,
		operating:   cc.Operating,
		treasury:    cc.Treasury,
		signer:      cc.Signer,
		sendOpts:    cc.SendOpts,
	}

	c.holders = fetcher.NewWithClock("token-holders", holdersTTL, holdersCooldown, solclient.IsRateLimited,
		func(ctx context.Context) ([]*solclient.TokenAccount, error) {
			return c.chain.GetTokenHolders(ctx, c.cfg.Mint)
		}, clock)

	c.mintInfo = fetcher.NewWithClock("mint-info", mintInfoTTL, mintInfoCooldown, solclient.IsRateLimited,
		func(ctx context.Context) (*solclient.MintInfo, error) {
			return c.chain.GetMintInfo(ctx, c.cfg.Mint)
		}, clock)

	raw, err := cc.Store.GetTaxRecord()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to load tax state")
	}

	state := &TaxState{}
	if raw != nil {
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, errors.Wrap(err, "Unable to parse stored tax state")
		}
	}
	c.state = state

	return c, nil
}

// ProcessWithheldTax runs one full pipeline cycle. A nil result with a nil
// error means the cycle deferred: the withheld amount stays on chain and
// rolls into the next cycle's scan, and no counter moves.
func (c *Coordinator) ProcessWithheldTax(ctx context.Context, epoch string, cycleNumber int) (*Result, error) {

	mint, err := c.mintInfo.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read mint info")
	}

	if mint.TransferFee == nil {
		log.WithField("Mint", c.cfg.Mint).Error("Mint carries no transfer fee extension; there is nothing to harvest")
		return nil, nil
	}

	authority := mint.TransferFee.WithdrawWithheldAuthority
	if authority.IsZero() {
		log.WithField("Mint", c.cfg.Mint).Error(
			"Mint has no withdraw-withheld authority; assign the operating wallet as authority to enable harvesting")
		return nil, nil
	}
	if !authority.Equals(c.operating) && !authority.Equals(c.treasury) {
		log.WithFields(log.Fields{
			"Authority": authority, "Operating": c.operating, "Treasury": c.treasury,
		}).Error("Withdraw-withheld authority is not a bot wallet; fix the wallet keys or rotate the mint authority")
		return nil, nil
	}

	holders, err := c.holders.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to enumerate holders")
	}

	var accountWithheld uint64
	for _, holder := range holders {
		accountWithheld += holder.Withheld
	}
	totalAvailable := accountWithheld + mint.TransferFee.WithheldAmount

	if totalAvailable == 0 {
		log.Debug("No withheld fees accrued; nothing to do")
		return nil, nil
	}

	below, err := c.belowThreshold(ctx, totalAvailable, mint.Decimals)
	if err != nil {
		return nil, err
	}
	if below {
		log.WithFields(log.Fields{
			"Available": util.FormatAmount(totalAvailable, mint.Decimals), "Mode": c.cfg.MinTaxThresholdMode,
		}).Info("Withheld total below harvest threshold; deferring")
		return nil, nil
	}

	withdrawn, err := c.harvestWithheld(ctx, holders, authority)

	// Harvesting rewrote withheld balances on chain either way
	c.holders.Invalidate()
	c.mintInfo.Invalidate()

	if err != nil {
		return nil, err
	}
	if withdrawn == 0 {
		log.Warn("Harvest withdrew nothing; deferring")
		return nil, nil
	}

	batches, err := c.splitBatches(ctx, withdrawn, mint.Decimals)
	if err != nil {
		return nil, err
	}

	result := &Result{Harvested: withdrawn}

	for i, amount := range batches {

		if i > 0 && c.cfg.BatchDelay > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}

		swap, err := c.swapper.Swap(ctx, amount)
		if err != nil {
			// Fail closed: the harvested tokens stay in the operating
			// wallet and are picked up by manual intervention, never
			// re-queued automatically
			return nil, errors.Wrapf(err, "Swap %d/%d failed", i+1, len(batches))
		}

		result.Proceeds += swap.AmountOut
		result.SwapSignatures = append(result.SwapSignatures, swap.Signature)
	}

	result.HolderShare = bpsShare(result.Proceeds, c.cfg.HolderShareBps)
	result.TreasuryShare = result.Proceeds - result.HolderShare

	distribution, err := c.distribute(ctx, result.HolderShare)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to start distribution")
	}
	result.Distribution = distribution

	if result.TreasuryShare > 0 {
		if sig, err := c.transferTreasury(ctx, result.TreasuryShare); err != nil {
			log.WithError(err).Error("Treasury transfer failed; share remains in operating wallet")
			result.TreasuryError = err
		} else {
			result.TreasurySignature = sig
		}
	}

	if err := c.recordDistribution(epoch, cycleNumber, result); err != nil {
		// The money moved; hand the result up even though the audit write
		// failed so the cycle record still carries the amounts
		return result, err
	}

	return result, nil
}

func (c *Coordinator) belowThreshold(ctx context.Context, available uint64, decimals uint8) (bool, error) {

	if c.cfg.MinTaxThresholdMode == config.MODE_USD {
		value, err := c.prices.TokenUSD(ctx, available, decimals)
		if err != nil {
			return false, errors.Wrap(err, "Unable to price withheld total")
		}
		return value.Cmp(c.cfg.MinTaxThresholdUSD) < 0, nil
	}

	return available < c.cfg.MinTaxThresholdTokens, nil
}

// splitBatches divides the withdrawn amount into equal swaps when it
// exceeds the configured ceiling. The remainder folds into the last batch
// even when that pushes it past the ceiling; the fixed count bounds the
// cycle's runtime.
func (c *Coordinator) splitBatches(ctx context.Context, withdrawn uint64, decimals uint8) ([]uint64, error) {

	over, err := c.overBatchCeiling(ctx, withdrawn, decimals)
	if err != nil {
		return nil, err
	}
	if !over || c.cfg.BatchCount <= 1 {
		return []uint64{withdrawn}, nil
	}

	count := uint64(c.cfg.BatchCount)
	part := withdrawn / count
	if part == 0 {
		return []uint64{withdrawn}, nil
	}

	batches := make([]uint64, count)
	for i := range batches {
		batches[i] = part
	}
	batches[count-1] += withdrawn % count

	log.WithFields(log.Fields{
		"Withdrawn": withdrawn, "Batches": count, "PerBatch": part,
	}).Info("Splitting harvest into batched swaps")

	return batches, nil
}

func (c *Coordinator) overBatchCeiling(ctx context.Context, withdrawn uint64, decimals uint8) (bool, error) {

	if c.cfg.BatchCeilingMode == config.MODE_USD {
		if c.cfg.BatchCeilingUSD.Sign() <= 0 {
			return false, nil
		}
		value, err := c.prices.TokenUSD(ctx, withdrawn, decimals)
		if err != nil {
			return false, errors.Wrap(err, "Unable to price harvest for batching")
		}
		return value.Cmp(c.cfg.BatchCeilingUSD) > 0, nil
	}

	return c.cfg.BatchCeilingTokens > 0 && withdrawn > c.cfg.BatchCeilingTokens, nil
}

func (c *Coordinator) transferTreasury(ctx context.Context, lamports uint64) (solana.Signature, error) {

	transfer := system.NewTransferInstruction(lamports, c.operating, c.treasury).Build()

	sig, err := c.chain.SendInstructions(ctx, []solana.Instruction{transfer}, c.operating, c.signer, c.sendOpts)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "Unable to transfer treasury share")
	}

	log.WithFields(log.Fields{
		"Amount": util.FormatSol(lamports), "Signature": sig,
	}).Info("Transferred treasury share")

	return sig, nil
}

// recordDistribution folds a completed run into the durable counters. A
// write failure is surfaced to the caller; the audit trail outranks a
// green cycle.
func (c *Coordinator) recordDistribution(epoch string, cycleNumber int, result *Result) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().UTC()

	c.state.TotalTaxCollected += result.Harvested
	c.state.TotalRewardAmount += result.HolderShare
	c.state.TotalTreasuryAmount += result.TreasuryShare
	c.state.TotalSolDistributed += result.Distribution.TotalPaid
	if result.TreasuryError == nil {
		c.state.TotalSolToTreasury += result.TreasuryShare
	}
	c.state.LastTaxDistribution = now

	if n := len(result.SwapSignatures); n > 0 {
		c.state.LastSwapTx = result.SwapSignatures[n-1].String()
	}
	if !result.Distribution.LastSignature.IsZero() {
		c.state.LastDistributionTx = result.Distribution.LastSignature.String()
	}

	entry := TaxDistribution{
		Timestamp:      now,
		Epoch:          epoch,
		CycleNumber:    cycleNumber,
		NukeHarvested:  result.Harvested,
		SolProceeds:    result.Proceeds,
		SolToHolders:   result.HolderShare,
		SolToTreasury:  result.TreasuryShare,
		HoldersPaid:    len(result.Distribution.Paid),
		HoldersSkipped: len(result.Distribution.Skipped),
	}
	for _, sig := range result.SwapSignatures {
		entry.SwapSignatures = append(entry.SwapSignatures, sig.String())
	}
	if result.TreasuryError != nil {
		entry.SubError = result.TreasuryError.Error()
	}

	c.state.TaxDistributions = append(c.state.TaxDistributions, entry)
	if limit := c.cfg.TaxHistoryCap; limit > 0 && len(c.state.TaxDistributions) > limit {
		overflow := len(c.state.TaxDistributions) - limit
		c.state.TaxDistributions = append([]TaxDistribution(nil), c.state.TaxDistributions[overflow:]...)
	}

	raw, err := json.Marshal(c.state)
	if err != nil {
		return errors.Wrap(err, "Unable to encode tax state")
	}
	if err := c.store.SaveTaxRecord(raw); err != nil {
		return errors.Wrap(err, "Unable to persist tax state")
	}

	return nil
}

// TaxStatistics returns a copy of the durable counters for read-only
// consumers.
func (c *Coordinator) TaxStatistics() *TaxState {

	c.mu.Lock()
	defer c.mu.Unlock()

	out := *c.state
	out.TaxDistributions = append([]TaxDistribution(nil), c.state.TaxDistributions...)

	return &out
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

func bpsShare(amount, bps uint64) uint64 {
	share := new(big.Int).SetUint64(amount)
	share.Mul(share, new(big.Int).SetUint64(bps))
	share.Div(share, big.NewInt(10_000))
	return share.Uint64()
}
