package raydium

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"nukebot/util"
)

// The standard AMM keeps its serum market link inside a fixed 752-byte
// account. Only the fields the swap needs are pulled out; everything else
// in the layout is pool accounting.
const ammPoolStateLen = 752

const (
	ammBaseVaultOff     = 336
	ammQuoteVaultOff    = 368
	ammBaseMintOff      = 400
	ammQuoteMintOff     = 432
	ammOpenOrdersOff    = 496
	ammMarketIDOff      = 528
	ammMarketProgramOff = 560
	ammTargetOrdersOff  = 592
)

// Serum market state v3: 5 bytes of padding, then flags, then the fields.
const serumMarketStateLen = 388

const (
	serumOwnAddressOff   = 13
	serumVaultNonceOff   = 45
	serumBaseVaultOff    = 117
	serumQuoteVaultOff   = 165
	serumRequestQueueOff = 221
	serumEventQueueOff   = 253
	serumBidsOff         = 285
	serumAsksOff         = 317
)

const ammSwapBaseInTag = 9

type ammPoolState struct {
	BaseVault     solana.PublicKey
	QuoteVault    solana.PublicKey
	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
	OpenOrders    solana.PublicKey
	TargetOrders  solana.PublicKey
	MarketID      solana.PublicKey
	MarketProgram solana.PublicKey
}

func parseAmmPool(poolID solana.PublicKey, data []byte) (*ammPoolState, error) {

	if len(data) != ammPoolStateLen {
		return nil, errors.Errorf("AMM pool account %s is %d bytes, want %d", poolID, len(data), ammPoolStateLen)
	}

	return &ammPoolState{
		BaseVault:     solana.PublicKeyFromBytes(data[ammBaseVaultOff : ammBaseVaultOff+32]),
		QuoteVault:    solana.PublicKeyFromBytes(data[ammQuoteVaultOff : ammQuoteVaultOff+32]),
		BaseMint:      solana.PublicKeyFromBytes(data[ammBaseMintOff : ammBaseMintOff+32]),
		QuoteMint:     solana.PublicKeyFromBytes(data[ammQuoteMintOff : ammQuoteMintOff+32]),
		OpenOrders:    solana.PublicKeyFromBytes(data[ammOpenOrdersOff : ammOpenOrdersOff+32]),
		TargetOrders:  solana.PublicKeyFromBytes(data[ammTargetOrdersOff : ammTargetOrdersOff+32]),
		MarketID:      solana.PublicKeyFromBytes(data[ammMarketIDOff : ammMarketIDOff+32]),
		MarketProgram: solana.PublicKeyFromBytes(data[ammMarketProgramOff : ammMarketProgramOff+32]),
	}, nil
}

type serumMarketState struct {
	OwnAddress       solana.PublicKey
	VaultSignerNonce uint64
	BaseVault        solana.PublicKey
	QuoteVault       solana.PublicKey
	RequestQueue     solana.PublicKey
	EventQueue       solana.PublicKey
	Bids             solana.PublicKey
	Asks             solana.PublicKey
}

func parseSerumMarket(marketID solana.PublicKey, data []byte) (*serumMarketState, error) {

	if len(data) != serumMarketStateLen {
		return nil, errors.Errorf("Serum market account %s is %d bytes, want %d", marketID, len(data), serumMarketStateLen)
	}

	market := &serumMarketState{
		OwnAddress:       solana.PublicKeyFromBytes(data[serumOwnAddressOff : serumOwnAddressOff+32]),
		VaultSignerNonce: binary.LittleEndian.Uint64(data[serumVaultNonceOff : serumVaultNonceOff+8]),
		BaseVault:        solana.PublicKeyFromBytes(data[serumBaseVaultOff : serumBaseVaultOff+32]),
		QuoteVault:       solana.PublicKeyFromBytes(data[serumQuoteVaultOff : serumQuoteVaultOff+32]),
		RequestQueue:     solana.PublicKeyFromBytes(data[serumRequestQueueOff : serumRequestQueueOff+32]),
		EventQueue:       solana.PublicKeyFromBytes(data[serumEventQueueOff : serumEventQueueOff+32]),
		Bids:             solana.PublicKeyFromBytes(data[serumBidsOff : serumBidsOff+32]),
		Asks:             solana.PublicKeyFromBytes(data[serumAsksOff : serumAsksOff+32]),
	}

	if !market.OwnAddress.Equals(marketID) {
		return nil, errors.Errorf("Market account %s claims address %s", marketID, market.OwnAddress)
	}

	return market, nil
}

// serumVaultSigner recreates the market's vault authority from the nonce
// stored in its state.
func serumVaultSigner(marketID solana.PublicKey, nonce uint64, marketProgram solana.PublicKey) (solana.PublicKey, error) {

	nonceBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBytes, nonce)

	signer, err := solana.CreateProgramAddress([][]byte{marketID.Bytes(), nonceBytes}, marketProgram)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "Unable to derive vault signer for market %s", marketID)
	}

	return signer, nil
}

// buildAmmSwapInstruction encodes swap-base-in against a standard pool.
// The account list marries the pool's own accounts to its serum market's.
func buildAmmSwapInstruction(poolID solana.PublicKey, pool *ammPoolState, market *serumMarketState, vaultSigner solana.PublicKey, userSource, userDest, owner solana.PublicKey, amountIn, minOut uint64) solana.Instruction {

	data := make([]byte, 17)
	data[0] = ammSwapBaseInTag
	binary.LittleEndian.PutUint64(data[1:9], amountIn)
	binary.LittleEndian.PutUint64(data[9:17], minOut)

	return solana.NewInstruction(
		util.RaydiumAmmV4Program,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(poolID, true, false),
			solana.NewAccountMeta(util.RaydiumAmmV4Authority, false, false),
			solana.NewAccountMeta(pool.OpenOrders, true, false),
			solana.NewAccountMeta(pool.TargetOrders, true, false),
			solana.NewAccountMeta(pool.BaseVault, true, false),
			solana.NewAccountMeta(pool.QuoteVault, true, false),
			solana.NewAccountMeta(pool.MarketProgram, false, false),
			solana.NewAccountMeta(pool.MarketID, true, false),
			solana.NewAccountMeta(market.Bids, true, false),
			solana.NewAccountMeta(market.Asks, true, false),
			solana.NewAccountMeta(market.EventQueue, true, false),
			solana.NewAccountMeta(market.BaseVault, true, false),
			solana.NewAccountMeta(market.QuoteVault, true, false),
			solana.NewAccountMeta(vaultSigner, false, false),
			solana.NewAccountMeta(userSource, true, false),
			solana.NewAccountMeta(userDest, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		data,
	)
}
