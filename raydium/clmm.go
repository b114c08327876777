package raydium

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"nukebot/util"
)

// CLMM PoolState fields the swap path needs; the rest of the 1544-byte
// account is tick and reward bookkeeping.
const clmmPoolStateMinLen = 273

const (
	clmmAmmConfigOff      = 9
	clmmTokenMint0Off     = 73
	clmmTokenMint1Off     = 105
	clmmTokenVault0Off    = 137
	clmmTokenVault1Off    = 169
	clmmObservationKeyOff = 201
	clmmTickSpacingOff    = 235
	clmmTickCurrentOff    = 269
)

// Ticks are grouped into fixed-width arrays; a swap must pass the arrays
// it may cross as remaining accounts.
const (
	clmmTicksPerArray  = 60
	clmmTickArraySeed  = "tick_array"
	clmmSwapTickArrays = 3
)

type clmmPoolState struct {
	AmmConfig      solana.PublicKey
	TokenMint0     solana.PublicKey
	TokenMint1     solana.PublicKey
	TokenVault0    solana.PublicKey
	TokenVault1    solana.PublicKey
	ObservationKey solana.PublicKey
	TickSpacing    uint16
	TickCurrent    int32
}

func parseClmmPool(poolID solana.PublicKey, data []byte) (*clmmPoolState, error) {

	if len(data) < clmmPoolStateMinLen {
		return nil, errors.Errorf("CLMM pool account %s is %d bytes, want at least %d", poolID, len(data), clmmPoolStateMinLen)
	}

	if want := anchorDiscriminator("account", "PoolState"); string(data[:8]) != string(want) {
		return nil, errors.Errorf("Account %s is not a CLMM pool state", poolID)
	}

	pool := &clmmPoolState{
		AmmConfig:      solana.PublicKeyFromBytes(data[clmmAmmConfigOff : clmmAmmConfigOff+32]),
		TokenMint0:     solana.PublicKeyFromBytes(data[clmmTokenMint0Off : clmmTokenMint0Off+32]),
		TokenMint1:     solana.PublicKeyFromBytes(data[clmmTokenMint1Off : clmmTokenMint1Off+32]),
		TokenVault0:    solana.PublicKeyFromBytes(data[clmmTokenVault0Off : clmmTokenVault0Off+32]),
		TokenVault1:    solana.PublicKeyFromBytes(data[clmmTokenVault1Off : clmmTokenVault1Off+32]),
		ObservationKey: solana.PublicKeyFromBytes(data[clmmObservationKeyOff : clmmObservationKeyOff+32]),
		TickSpacing:    binary.LittleEndian.Uint16(data[clmmTickSpacingOff : clmmTickSpacingOff+2]),
		TickCurrent:    int32(binary.LittleEndian.Uint32(data[clmmTickCurrentOff : clmmTickCurrentOff+4])),
	}

	if pool.TickSpacing == 0 {
		return nil, errors.Errorf("CLMM pool %s has zero tick spacing", poolID)
	}

	return pool, nil
}

// tickArrayStart floors a tick to its array's first tick. Works for
// negative ticks too; Go's integer division truncates toward zero, so the
// negative side needs the extra step down.
func tickArrayStart(tick int32, tickSpacing uint16) int32 {

	span := int32(tickSpacing) * clmmTicksPerArray

	start := tick / span
	if tick < 0 && tick%span != 0 {
		start--
	}

	return start * span
}

// swapTickArrays derives the tick array accounts a swap may cross,
// beginning at the current tick and walking in the direction of the trade.
func swapTickArrays(poolID solana.PublicKey, pool *clmmPoolState, zeroForOne bool) ([]solana.PublicKey, error) {

	span := int32(pool.TickSpacing) * clmmTicksPerArray
	start := tickArrayStart(pool.TickCurrent, pool.TickSpacing)

	arrays := make([]solana.PublicKey, 0, clmmSwapTickArrays)
	for i := 0; i < clmmSwapTickArrays; i++ {

		index := start
		if zeroForOne {
			index -= int32(i) * span
		} else {
			index += int32(i) * span
		}

		indexBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(indexBytes, uint32(index))

		address, _, err := solana.FindProgramAddress([][]byte{
			[]byte(clmmTickArraySeed),
			poolID.Bytes(),
			indexBytes,
		}, util.RaydiumClmmProgram)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to derive tick array %d for pool %s", index, poolID)
		}

		arrays = append(arrays, address)
	}

	return arrays, nil
}

// buildClmmSwapInstruction encodes the v2 swap, which handles pools whose
// mints live under the token-2022 program. Exact-in, no price limit.
func buildClmmSwapInstruction(poolID solana.PublicKey, pool *clmmPoolState, zeroForOne bool, tickArrays []solana.PublicKey, userSource, userDest, payer solana.PublicKey, amountIn, minOut uint64) solana.Instruction {

	inVault, outVault := pool.TokenVault0, pool.TokenVault1
	inMint, outMint := pool.TokenMint0, pool.TokenMint1
	if !zeroForOne {
		inVault, outVault = outVault, inVault
		inMint, outMint = outMint, inMint
	}

	data := make([]byte, 0, 41)
	data = append(data, anchorDiscriminator("global", "swap_v2")...)
	data = binary.LittleEndian.AppendUint64(data, amountIn)
	data = binary.LittleEndian.AppendUint64(data, minOut)
	data = append(data, make([]byte, 16)...) // sqrtPriceLimitX64 = 0: no limit
	data = append(data, 1)                   // isBaseInput: amount is the exact input

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, false, true),
		solana.NewAccountMeta(pool.AmmConfig, false, false),
		solana.NewAccountMeta(poolID, true, false),
		solana.NewAccountMeta(userSource, true, false),
		solana.NewAccountMeta(userDest, true, false),
		solana.NewAccountMeta(inVault, true, false),
		solana.NewAccountMeta(outVault, true, false),
		solana.NewAccountMeta(pool.ObservationKey, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(util.Token2022Program, false, false),
		solana.NewAccountMeta(util.MemoProgram, false, false),
		solana.NewAccountMeta(inMint, false, false),
		solana.NewAccountMeta(outMint, false, false),
	}
	for _, array := range tickArrays {
		accounts = append(accounts, solana.NewAccountMeta(array, true, false))
	}

	return solana.NewInstruction(util.RaydiumClmmProgram, accounts, data)
}
