package raydium

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"nukebot/util"
)

func randomKey(t *testing.T) solana.PublicKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey()
}

func putKey(data []byte, off int, key solana.PublicKey) {
	copy(data[off:off+32], key.Bytes())
}

// The discriminators these programs dispatch on are fixed by their IDLs;
// the runtime hashing must reproduce them exactly.
func TestAnchorDiscriminator(t *testing.T) {
	require.Equal(t, []byte{143, 190, 90, 218, 196, 30, 51, 222}, anchorDiscriminator("global", "swap_base_input"))
	require.Equal(t, []byte{43, 4, 237, 11, 26, 201, 30, 98}, anchorDiscriminator("global", "swap_v2"))
	require.Equal(t, []byte{247, 237, 227, 245, 215, 195, 222, 70}, anchorDiscriminator("account", "PoolState"))
}

func TestParseAmmPool(t *testing.T) {

	poolID := randomKey(t)
	baseVault := randomKey(t)
	quoteVault := randomKey(t)
	baseMint := randomKey(t)
	quoteMint := randomKey(t)
	openOrders := randomKey(t)
	targetOrders := randomKey(t)
	marketID := randomKey(t)
	marketProgram := randomKey(t)

	data := make([]byte, ammPoolStateLen)
	putKey(data, ammBaseVaultOff, baseVault)
	putKey(data, ammQuoteVaultOff, quoteVault)
	putKey(data, ammBaseMintOff, baseMint)
	putKey(data, ammQuoteMintOff, quoteMint)
	putKey(data, ammOpenOrdersOff, openOrders)
	putKey(data, ammTargetOrdersOff, targetOrders)
	putKey(data, ammMarketIDOff, marketID)
	putKey(data, ammMarketProgramOff, marketProgram)

	pool, err := parseAmmPool(poolID, data)
	require.NoError(t, err)

	require.Equal(t, baseVault, pool.BaseVault)
	require.Equal(t, quoteVault, pool.QuoteVault)
	require.Equal(t, baseMint, pool.BaseMint)
	require.Equal(t, quoteMint, pool.QuoteMint)
	require.Equal(t, openOrders, pool.OpenOrders)
	require.Equal(t, targetOrders, pool.TargetOrders)
	require.Equal(t, marketID, pool.MarketID)
	require.Equal(t, marketProgram, pool.MarketProgram)

	t.Run("wrong size", func(t *testing.T) {
		_, err := parseAmmPool(poolID, data[:ammPoolStateLen-1])
		require.Error(t, err)
	})
}

func TestParseSerumMarket(t *testing.T) {

	marketID := randomKey(t)
	bids := randomKey(t)
	asks := randomKey(t)
	eventQueue := randomKey(t)

	data := make([]byte, serumMarketStateLen)
	putKey(data, serumOwnAddressOff, marketID)
	binary.LittleEndian.PutUint64(data[serumVaultNonceOff:], 3)
	putKey(data, serumBidsOff, bids)
	putKey(data, serumAsksOff, asks)
	putKey(data, serumEventQueueOff, eventQueue)

	market, err := parseSerumMarket(marketID, data)
	require.NoError(t, err)

	require.Equal(t, uint64(3), market.VaultSignerNonce)
	require.Equal(t, bids, market.Bids)
	require.Equal(t, asks, market.Asks)
	require.Equal(t, eventQueue, market.EventQueue)

	t.Run("address mismatch", func(t *testing.T) {
		_, err := parseSerumMarket(randomKey(t), data)
		require.Error(t, err)
	})
}

func TestSerumVaultSigner(t *testing.T) {

	marketID := randomKey(t)
	program := randomKey(t)

	// Markets store the first nonce that lands off-curve; find it the same way
	var nonce uint64
	var signer solana.PublicKey
	var err error
	for nonce = 0; nonce < 255; nonce++ {
		signer, err = serumVaultSigner(marketID, nonce, program)
		if err == nil {
			break
		}
	}
	require.NoError(t, err)

	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)
	expected, cerr := solana.CreateProgramAddress([][]byte{marketID.Bytes(), nonceBytes}, program)
	require.NoError(t, cerr)
	require.Equal(t, expected, signer)
}

func TestBuildAmmSwapInstruction(t *testing.T) {

	poolID := randomKey(t)
	owner := randomKey(t)
	userSource := randomKey(t)
	userDest := randomKey(t)
	vaultSigner := randomKey(t)

	pool := &ammPoolState{
		BaseVault:     randomKey(t),
		QuoteVault:    randomKey(t),
		OpenOrders:    randomKey(t),
		TargetOrders:  randomKey(t),
		MarketID:      randomKey(t),
		MarketProgram: randomKey(t),
	}
	market := &serumMarketState{
		BaseVault:  randomKey(t),
		QuoteVault: randomKey(t),
		EventQueue: randomKey(t),
		Bids:       randomKey(t),
		Asks:       randomKey(t),
	}

	ix := buildAmmSwapInstruction(poolID, pool, market, vaultSigner, userSource, userDest, owner, 12_345, 678)

	require.Equal(t, util.RaydiumAmmV4Program, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 17)
	require.Equal(t, byte(ammSwapBaseInTag), data[0])
	require.Equal(t, uint64(12_345), binary.LittleEndian.Uint64(data[1:9]))
	require.Equal(t, uint64(678), binary.LittleEndian.Uint64(data[9:17]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 18)
	require.Equal(t, solana.TokenProgramID, accounts[0].PublicKey)
	require.Equal(t, poolID, accounts[1].PublicKey)
	require.Equal(t, userSource, accounts[15].PublicKey)
	require.True(t, accounts[15].IsWritable)
	require.Equal(t, userDest, accounts[16].PublicKey)

	// Only the wallet signs; the vault signer is a program address
	require.Equal(t, owner, accounts[17].PublicKey)
	require.True(t, accounts[17].IsSigner)
	require.False(t, accounts[14].IsSigner)
}

func TestBuildCpmmSwapInstruction(t *testing.T) {

	poolID := randomKey(t)
	authority := randomKey(t)
	payer := randomKey(t)
	userSource := randomKey(t)
	userDest := randomKey(t)

	pool := &cpmmPoolState{
		AmmConfig:      randomKey(t),
		Token0Vault:    randomKey(t),
		Token1Vault:    randomKey(t),
		Token0Mint:     randomKey(t),
		Token1Mint:     randomKey(t),
		Token0Program:  util.Token2022Program,
		Token1Program:  solana.TokenProgramID,
		ObservationKey: randomKey(t),
	}

	ix := buildCpmmSwapInstruction(poolID, pool, authority, true, userSource, userDest, payer, 50_000, 49_000)

	require.Equal(t, util.RaydiumCpmmProgram, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	require.Equal(t, anchorDiscriminator("global", "swap_base_input"), data[:8])
	require.Equal(t, uint64(50_000), binary.LittleEndian.Uint64(data[8:16]))
	require.Equal(t, uint64(49_000), binary.LittleEndian.Uint64(data[16:24]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 13)
	require.Equal(t, payer, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)
	require.Equal(t, pool.Token0Vault, accounts[6].PublicKey)
	require.Equal(t, pool.Token1Vault, accounts[7].PublicKey)
	require.Equal(t, pool.Token0Program, accounts[8].PublicKey)
	require.Equal(t, pool.Token0Mint, accounts[10].PublicKey)

	t.Run("reverse direction flips vault order", func(t *testing.T) {
		ix := buildCpmmSwapInstruction(poolID, pool, authority, false, userSource, userDest, payer, 1, 1)
		accounts := ix.Accounts()
		require.Equal(t, pool.Token1Vault, accounts[6].PublicKey)
		require.Equal(t, pool.Token0Vault, accounts[7].PublicKey)
		require.Equal(t, pool.Token1Program, accounts[8].PublicKey)
		require.Equal(t, pool.Token1Mint, accounts[10].PublicKey)
	})
}

func TestParseClmmPool(t *testing.T) {

	poolID := randomKey(t)
	ammConfig := randomKey(t)
	mint0 := randomKey(t)
	mint1 := randomKey(t)
	vault0 := randomKey(t)
	vault1 := randomKey(t)
	observation := randomKey(t)

	data := make([]byte, clmmPoolStateMinLen)
	copy(data[:8], anchorDiscriminator("account", "PoolState"))
	putKey(data, clmmAmmConfigOff, ammConfig)
	putKey(data, clmmTokenMint0Off, mint0)
	putKey(data, clmmTokenMint1Off, mint1)
	putKey(data, clmmTokenVault0Off, vault0)
	putKey(data, clmmTokenVault1Off, vault1)
	putKey(data, clmmObservationKeyOff, observation)
	binary.LittleEndian.PutUint16(data[clmmTickSpacingOff:], 10)
	tickCurrent := int32(-12_345)
	binary.LittleEndian.PutUint32(data[clmmTickCurrentOff:], uint32(tickCurrent))

	pool, err := parseClmmPool(poolID, data)
	require.NoError(t, err)

	require.Equal(t, ammConfig, pool.AmmConfig)
	require.Equal(t, mint0, pool.TokenMint0)
	require.Equal(t, mint1, pool.TokenMint1)
	require.Equal(t, vault0, pool.TokenVault0)
	require.Equal(t, vault1, pool.TokenVault1)
	require.Equal(t, observation, pool.ObservationKey)
	require.Equal(t, uint16(10), pool.TickSpacing)
	require.Equal(t, int32(-12_345), pool.TickCurrent)

	t.Run("wrong discriminator", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		copy(bad[:8], anchorDiscriminator("account", "AmmConfig"))
		_, err := parseClmmPool(poolID, bad)
		require.Error(t, err)
	})

	t.Run("zero tick spacing", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint16(bad[clmmTickSpacingOff:], 0)
		_, err := parseClmmPool(poolID, bad)
		require.Error(t, err)
	})
}

func TestTickArrayStart(t *testing.T) {

	// tickSpacing 10 gives arrays of 600 ticks
	cases := []struct {
		tick  int32
		start int32
	}{
		{0, 0},
		{599, 0},
		{600, 600},
		{1_234, 1_200},
		{-1, -600},
		{-600, -600},
		{-601, -1_200},
		{-1_234, -1_800},
	}

	for _, c := range cases {
		require.Equal(t, c.start, tickArrayStart(c.tick, 10), "tick %d", c.tick)
	}
}

func TestSwapTickArrays(t *testing.T) {

	poolID := randomKey(t)
	pool := &clmmPoolState{TickSpacing: 10, TickCurrent: -1_234}

	derive := func(start int32) solana.PublicKey {
		startBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(startBytes, uint32(start))
		key, _, err := solana.FindProgramAddress(
			[][]byte{[]byte("tick_array"), poolID.Bytes(), startBytes}, util.RaydiumClmmProgram)
		require.NoError(t, err)
		return key
	}

	t.Run("selling token0 walks down", func(t *testing.T) {
		arrays, err := swapTickArrays(poolID, pool, true)
		require.NoError(t, err)
		require.Equal(t, []solana.PublicKey{derive(-1_800), derive(-2_400), derive(-3_000)}, arrays)
	})

	t.Run("selling token1 walks up", func(t *testing.T) {
		arrays, err := swapTickArrays(poolID, pool, false)
		require.NoError(t, err)
		require.Equal(t, []solana.PublicKey{derive(-1_800), derive(-1_200), derive(-600)}, arrays)
	})
}

func TestBuildClmmSwapInstruction(t *testing.T) {

	poolID := randomKey(t)
	payer := randomKey(t)
	userSource := randomKey(t)
	userDest := randomKey(t)

	pool := &clmmPoolState{
		AmmConfig:      randomKey(t),
		TokenMint0:     randomKey(t),
		TokenMint1:     randomKey(t),
		TokenVault0:    randomKey(t),
		TokenVault1:    randomKey(t),
		ObservationKey: randomKey(t),
		TickSpacing:    10,
	}
	tickArrays := []solana.PublicKey{randomKey(t), randomKey(t), randomKey(t)}

	ix := buildClmmSwapInstruction(poolID, pool, true, tickArrays, userSource, userDest, payer, 77_000, 76_000)

	require.Equal(t, util.RaydiumClmmProgram, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 41)
	require.Equal(t, anchorDiscriminator("global", "swap_v2"), data[:8])
	require.Equal(t, uint64(77_000), binary.LittleEndian.Uint64(data[8:16]))
	require.Equal(t, uint64(76_000), binary.LittleEndian.Uint64(data[16:24]))
	require.Equal(t, make([]byte, 16), data[24:40]) // no price limit
	require.Equal(t, byte(1), data[40])             // exact input

	accounts := ix.Accounts()
	require.Len(t, accounts, 13+len(tickArrays))
	require.Equal(t, payer, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)
	require.Equal(t, pool.TokenVault0, accounts[5].PublicKey)
	require.Equal(t, pool.TokenVault1, accounts[6].PublicKey)
	require.Equal(t, util.MemoProgram, accounts[10].PublicKey)
	for i, array := range tickArrays {
		require.Equal(t, array, accounts[13+i].PublicKey)
		require.True(t, accounts[13+i].IsWritable)
	}

	t.Run("reverse direction flips vaults and mints", func(t *testing.T) {
		ix := buildClmmSwapInstruction(poolID, pool, false, tickArrays, userSource, userDest, payer, 1, 1)
		accounts := ix.Accounts()
		require.Equal(t, pool.TokenVault1, accounts[5].PublicKey)
		require.Equal(t, pool.TokenVault0, accounts[6].PublicKey)
		require.Equal(t, pool.TokenMint1, accounts[11].PublicKey)
	})
}
