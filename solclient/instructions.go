package solclient

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Transfer-fee extension instructions live behind a two-byte discriminator:
// the extension prefix, then the operation.
const (
	transferFeePrefix = 26

	withdrawWithheldFromMintOp = 2
	harvestWithheldToMintOp    = 4

	createIdempotentOp = 1
)

// DeriveTokenAccount computes the associated token account of owner for
// mint under the given token program. The classic helper in the SDK
// hard-codes the original token program, so token-2022 mints need the
// derivation spelled out.
func DeriveTokenAccount(owner, tokenProgram, mint solana.PublicKey) (solana.PublicKey, error) {

	address, _, err := solana.FindProgramAddress([][]byte{
		owner.Bytes(),
		tokenProgram.Bytes(),
		mint.Bytes(),
	}, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "Unable to derive token account for %s", owner)
	}

	return address, nil
}

// NewCreateTokenAccountInstruction creates the associated token account if
// it does not exist yet; a no-op otherwise (the idempotent variant).
func NewCreateTokenAccountInstruction(payer, account, owner, mint, tokenProgram solana.PublicKey) solana.Instruction {

	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(tokenProgram, false, false),
		},
		[]byte{createIdempotentOp},
	)
}

// NewHarvestWithheldInstruction sweeps withheld fees from the given token
// accounts into the mint. Permissionless; anyone may crank it.
func NewHarvestWithheldInstruction(tokenProgram, mint solana.PublicKey, sources []solana.PublicKey) solana.Instruction {

	accounts := make(solana.AccountMetaSlice, 0, len(sources)+1)
	accounts = append(accounts, solana.NewAccountMeta(mint, true, false))
	for _, source := range sources {
		accounts = append(accounts, solana.NewAccountMeta(source, true, false))
	}

	return solana.NewInstruction(
		tokenProgram,
		accounts,
		[]byte{transferFeePrefix, harvestWithheldToMintOp},
	)
}

// NewWithdrawWithheldFromMintInstruction moves the mint's accumulated
// withheld balance into destination. Only the mint's withdraw-withheld
// authority may sign this.
func NewWithdrawWithheldFromMintInstruction(tokenProgram, mint, destination, authority solana.PublicKey) solana.Instruction {

	return solana.NewInstruction(
		tokenProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(mint, true, false),
			solana.NewAccountMeta(destination, true, false),
			solana.NewAccountMeta(authority, false, true),
		},
		[]byte{transferFeePrefix, withdrawWithheldFromMintOp},
	)
}
