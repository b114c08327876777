package tax

import (
	"bytes"
	"context"
	"math"
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/config"
	"nukebot/util"
)

// computeRewards allocates total across owners proportionally to balance,
// flooring each share. Flooring guarantees the aggregate never exceeds
// total; the few lamports of rounding remainder stay in the operating
// wallet.
func computeRewards(total uint64, balances map[solana.PublicKey]uint64) map[solana.PublicKey]uint64 {

	var weight big.Int
	for _, balance := range balances {
		weight.Add(&weight, new(big.Int).SetUint64(balance))
	}
	if total == 0 || weight.Sign() == 0 {
		return nil
	}

	totalInt := new(big.Int).SetUint64(total)

	rewards := make(map[solana.PublicKey]uint64, len(balances))
	for owner, balance := range balances {
		reward := new(big.Int).SetUint64(balance)
		reward.Mul(reward, totalInt)
		reward.Div(reward, &weight)
		if reward.Sign() > 0 {
			rewards[owner] = reward.Uint64()
		}
	}

	return rewards
}

// distribute pays total out to eligible holders by balance weight.
// Pre-flight failures (holder enumeration, eligibility, USD valuation)
// abort before any transfer; once transfers start, every holder ends up
// accounted for in the result and individual failures never stop the
// batch.
func (c *Coordinator) distribute(ctx context.Context, total uint64) (*DistributionResult, error) {

	result := &DistributionResult{}

	holders, err := c.holders.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to enumerate holders")
	}

	eligible, err := c.eligibility.EligibleSet(ctx)
	if err != nil {
		return nil, err
	}

	// A wallet may own several token accounts; weight is the sum
	balances := make(map[solana.PublicKey]uint64)
	for _, holder := range holders {
		if holder.Amount == 0 || !eligible.Eligible(holder.Owner) {
			continue
		}
		balances[holder.Owner] += holder.Amount
		result.TotalWeight += holder.Amount
	}

	if len(balances) == 0 {
		log.Warn("No eligible holders with balance; nothing to distribute")
		return result, nil
	}

	minPayout, err := c.minPayoutLamports(ctx)
	if err != nil {
		return nil, err
	}

	rewards := computeRewards(total, balances)

	owners := make([]solana.PublicKey, 0, len(rewards))
	for owner := range rewards {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})

	log.WithFields(log.Fields{
		"Total": util.FormatSol(total), "Holders": len(owners), "Weight": result.TotalWeight,
	}).Info("Distributing holder rewards")

	for _, owner := range owners {
		reward := rewards[owner]

		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Skipped = append(result.Skipped, WalletSkip{Wallet: owner, Amount: reward, Reason: "canceled: " + ctxErr.Error()})
			continue
		}

		if reward < c.cfg.DustFloorLamports {
			result.Skipped = append(result.Skipped, WalletSkip{Wallet: owner, Amount: reward, Reason: "below dust floor"})
			continue
		}
		if reward < minPayout {
			result.Skipped = append(result.Skipped, WalletSkip{Wallet: owner, Amount: reward, Reason: "below minimum payout"})
			continue
		}

		// The paying wallet must cover this transfer and its fee right now;
		// earlier payouts in this very batch have been draining it
		balance, err := c.chain.GetBalance(ctx, c.operating)
		if err != nil {
			result.Skipped = append(result.Skipped, WalletSkip{Wallet: owner, Amount: reward, Reason: "balance check failed: " + err.Error()})
			continue
		}
		if balance < reward+c.cfg.FeeBufferLamports {
			result.Skipped = append(result.Skipped, WalletSkip{Wallet: owner, Amount: reward, Reason: "insufficient operating balance"})
			continue
		}

		transfer := system.NewTransferInstruction(reward, c.operating, owner).Build()

		sig, err := c.chain.SendInstructions(ctx, []solana.Instruction{transfer}, c.operating, c.signer, c.sendOpts)
		if err != nil {
			log.WithError(err).WithField("Wallet", owner).Error("Holder payout failed")
			result.Skipped = append(result.Skipped, WalletSkip{Wallet: owner, Amount: reward, Reason: "transfer failed: " + err.Error()})
			continue
		}

		result.Paid = append(result.Paid, WalletPayment{Wallet: owner, Amount: reward, Signature: sig})
		result.TotalPaid += reward
		result.LastSignature = sig

		log.WithFields(log.Fields{
			"Wallet": owner, "Amount": util.FormatSol(reward), "Signature": sig,
		}).Info("Paid holder reward")
	}

	return result, nil
}

// minPayoutLamports resolves the per-holder minimum into lamports. USD
// mode converts once per batch, so a dead price feed surfaces before any
// transfer is attempted.
func (c *Coordinator) minPayoutLamports(ctx context.Context) (uint64, error) {

	if c.cfg.MinPayoutMode != config.MODE_USD {
		return c.cfg.MinPayoutLamports, nil
	}

	solPrice, err := c.prices.LamportsUSD(ctx, util.LAMPORTS_PER_SOL)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to price the payout minimum")
	}
	if solPrice.Sign() <= 0 {
		return 0, errors.New("SOL price is zero; cannot evaluate USD payout minimum")
	}

	lamports := new(big.Rat).Quo(c.cfg.MinPayoutUSD, solPrice)
	lamports.Mul(lamports, new(big.Rat).SetInt64(util.LAMPORTS_PER_SOL))

	// Round up; a payout must never undercut the configured minimum
	return ratCeilUint64(lamports), nil
}

func ratCeilUint64(r *big.Rat) uint64 {

	if r.Sign() <= 0 {
		return 0
	}

	quo, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if !quo.IsUint64() {
		return math.MaxUint64
	}

	return quo.Uint64()
}
