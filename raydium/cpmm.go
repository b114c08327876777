package raydium

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"nukebot/util"
)

// The CPMM and CLMM programs are anchor-built: instructions are selected by
// the first 8 bytes of sha256("global:<name>"), accounts by
// sha256("account:<name>").
func anchorDiscriminator(kind, name string) []byte {
	sum := sha256.Sum256([]byte(kind + ":" + name))
	return sum[:8]
}

const cpmmAuthoritySeed = "vault_and_lp_mint_auth_seed"

// CPMM PoolState fields the swap path needs. The account runs longer; the
// tail is fee and observation accounting.
const cpmmPoolStateMinLen = 333

const (
	cpmmAmmConfigOff      = 8
	cpmmToken0VaultOff    = 72
	cpmmToken1VaultOff    = 104
	cpmmToken0MintOff     = 168
	cpmmToken1MintOff     = 200
	cpmmToken0ProgramOff  = 232
	cpmmToken1ProgramOff  = 264
	cpmmObservationKeyOff = 296
)

type cpmmPoolState struct {
	AmmConfig      solana.PublicKey
	Token0Vault    solana.PublicKey
	Token1Vault    solana.PublicKey
	Token0Mint     solana.PublicKey
	Token1Mint     solana.PublicKey
	Token0Program  solana.PublicKey
	Token1Program  solana.PublicKey
	ObservationKey solana.PublicKey
}

func parseCpmmPool(poolID solana.PublicKey, data []byte) (*cpmmPoolState, error) {

	if len(data) < cpmmPoolStateMinLen {
		return nil, errors.Errorf("CPMM pool account %s is %d bytes, want at least %d", poolID, len(data), cpmmPoolStateMinLen)
	}

	if want := anchorDiscriminator("account", "PoolState"); string(data[:8]) != string(want) {
		return nil, errors.Errorf("Account %s is not a CPMM pool state", poolID)
	}

	return &cpmmPoolState{
		AmmConfig:      solana.PublicKeyFromBytes(data[cpmmAmmConfigOff : cpmmAmmConfigOff+32]),
		Token0Vault:    solana.PublicKeyFromBytes(data[cpmmToken0VaultOff : cpmmToken0VaultOff+32]),
		Token1Vault:    solana.PublicKeyFromBytes(data[cpmmToken1VaultOff : cpmmToken1VaultOff+32]),
		Token0Mint:     solana.PublicKeyFromBytes(data[cpmmToken0MintOff : cpmmToken0MintOff+32]),
		Token1Mint:     solana.PublicKeyFromBytes(data[cpmmToken1MintOff : cpmmToken1MintOff+32]),
		Token0Program:  solana.PublicKeyFromBytes(data[cpmmToken0ProgramOff : cpmmToken0ProgramOff+32]),
		Token1Program:  solana.PublicKeyFromBytes(data[cpmmToken1ProgramOff : cpmmToken1ProgramOff+32]),
		ObservationKey: solana.PublicKeyFromBytes(data[cpmmObservationKeyOff : cpmmObservationKeyOff+32]),
	}, nil
}

// cpmmAuthority derives the program's shared vault authority.
func cpmmAuthority() (solana.PublicKey, error) {

	authority, _, err := solana.FindProgramAddress([][]byte{[]byte(cpmmAuthoritySeed)}, util.RaydiumCpmmProgram)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "Unable to derive CPMM authority")
	}

	return authority, nil
}

// buildCpmmSwapInstruction encodes swap_base_input. Input/output ordering
// of vaults, mints, and token programs follows the trade direction.
func buildCpmmSwapInstruction(poolID solana.PublicKey, pool *cpmmPoolState, authority solana.PublicKey, zeroForOne bool, userSource, userDest, payer solana.PublicKey, amountIn, minOut uint64) solana.Instruction {

	inVault, outVault := pool.Token0Vault, pool.Token1Vault
	inMint, outMint := pool.Token0Mint, pool.Token1Mint
	inProgram, outProgram := pool.Token0Program, pool.Token1Program
	if !zeroForOne {
		inVault, outVault = outVault, inVault
		inMint, outMint = outMint, inMint
		inProgram, outProgram = outProgram, inProgram
	}

	data := make([]byte, 0, 24)
	data = append(data, anchorDiscriminator("global", "swap_base_input")...)
	data = binary.LittleEndian.AppendUint64(data, amountIn)
	data = binary.LittleEndian.AppendUint64(data, minOut)

	return solana.NewInstruction(
		util.RaydiumCpmmProgram,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, false, true),
			solana.NewAccountMeta(authority, false, false),
			solana.NewAccountMeta(pool.AmmConfig, false, false),
			solana.NewAccountMeta(poolID, true, false),
			solana.NewAccountMeta(userSource, true, false),
			solana.NewAccountMeta(userDest, true, false),
			solana.NewAccountMeta(inVault, true, false),
			solana.NewAccountMeta(outVault, true, false),
			solana.NewAccountMeta(inProgram, false, false),
			solana.NewAccountMeta(outProgram, false, false),
			solana.NewAccountMeta(inMint, false, false),
			solana.NewAccountMeta(outMint, false, false),
			solana.NewAccountMeta(pool.ObservationKey, true, false),
		},
		data,
	)
}
