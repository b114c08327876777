package tax

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/solclient"
	"nukebot/util"
)

// harvestWithheld sweeps withheld fees from every holding account into the
// mint, then withdraws the mint's whole withheld balance into the
// operating wallet's token account. Returns what actually arrived there,
// measured as the account's balance delta.
func (c *Coordinator) harvestWithheld(ctx context.Context, holders []*solclient.TokenAccount, authority solana.PublicKey) (uint64, error) {

	sources := make([]solana.PublicKey, 0, len(holders))
	for _, holder := range holders {
		if holder.Withheld > 0 {
			sources = append(sources, holder.Address)
		}
	}

	chunk := c.cfg.HarvestChunkSize
	if chunk < 1 {
		chunk = 1
	}

	for start := 0; start < len(sources); start += chunk {

		end := start + chunk
		if end > len(sources) {
			end = len(sources)
		}

		harvest := solclient.NewHarvestWithheldInstruction(util.Token2022Program, c.cfg.Mint, sources[start:end])

		sig, err := c.chain.SendInstructions(ctx, []solana.Instruction{harvest}, c.operating, c.signer, c.sendOpts)
		if err != nil {
			return 0, errors.Wrapf(err, "Unable to harvest withheld fees (accounts %d-%d)", start, end-1)
		}

		log.WithFields(log.Fields{
			"Accounts": end - start, "Signature": sig,
		}).Debug("Harvested withheld fees into mint")
	}

	operatingAccount, err := solclient.DeriveTokenAccount(c.operating, util.Token2022Program, c.cfg.Mint)
	if err != nil {
		return 0, err
	}

	before, err := c.tokenBalance(ctx, operatingAccount)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to read operating token balance")
	}

	withdraw := []solana.Instruction{
		solclient.NewCreateTokenAccountInstruction(c.operating, operatingAccount, c.operating, c.cfg.Mint, util.Token2022Program),
		solclient.NewWithdrawWithheldFromMintInstruction(util.Token2022Program, c.cfg.Mint, operatingAccount, authority),
	}

	sig, err := c.chain.SendInstructions(ctx, withdraw, c.operating, c.signer, c.sendOpts)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to withdraw withheld fees from mint")
	}

	after, err := c.tokenBalance(ctx, operatingAccount)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to confirm withdrawn amount")
	}
	if after < before {
		return 0, errors.Errorf("Operating token balance shrank during withdraw (%d -> %d)", before, after)
	}

	withdrawn := after - before

	log.WithFields(log.Fields{
		"Withdrawn": withdrawn, "Signature": sig,
	}).Info("Withdrew withheld fees to operating wallet")

	return withdrawn, nil
}

// tokenBalance reads a token account's balance, treating a missing account
// as zero.
func (c *Coordinator) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {

	data, err := c.chain.GetAccountData(ctx, account)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}

	parsed, err := solclient.ParseTokenAccount(account, data)
	if err != nil {
		return 0, err
	}

	return parsed.Amount, nil
}
