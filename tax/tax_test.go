package tax

import (
	"context"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"nukebot/config"
	"nukebot/raydium"
	"nukebot/solclient"
	"nukebot/util"
)

type fakeChain struct {
	mint       *solclient.MintInfo
	mintErr    error
	holders    []*solclient.TokenAccount
	holdersErr error

	balance      uint64
	balanceQueue []uint64

	accounts map[solana.PublicKey][]byte

	sent      [][]solana.Instruction
	sendErr   func(call int, instructions []solana.Instruction) error
	afterSend func(f *fakeChain, instructions []solana.Instruction)
}

func (f *fakeChain) GetBalance(context.Context, solana.PublicKey) (uint64, error) {
	if len(f.balanceQueue) > 0 {
		next := f.balanceQueue[0]
		f.balanceQueue = f.balanceQueue[1:]
		return next, nil
	}
	return f.balance, nil
}

func (f *fakeChain) GetAccountData(_ context.Context, account solana.PublicKey) ([]byte, error) {
	return f.accounts[account], nil
}

func (f *fakeChain) GetTokenHolders(context.Context, solana.PublicKey) ([]*solclient.TokenAccount, error) {
	return f.holders, f.holdersErr
}

func (f *fakeChain) GetMintInfo(context.Context, solana.PublicKey) (*solclient.MintInfo, error) {
	return f.mint, f.mintErr
}

func (f *fakeChain) SendInstructions(_ context.Context, instructions []solana.Instruction, _ solana.PublicKey, _ func(solana.PublicKey) *solana.PrivateKey, _ solclient.SendOptions) (solana.Signature, error) {

	call := len(f.sent)
	f.sent = append(f.sent, instructions)

	if f.sendErr != nil {
		if err := f.sendErr(call, instructions); err != nil {
			return solana.Signature{}, err
		}
	}
	if f.afterSend != nil {
		f.afterSend(f, instructions)
	}

	return chainSignature(call), nil
}

func chainSignature(call int) solana.Signature {
	var sig solana.Signature
	binary.LittleEndian.PutUint64(sig[:8], uint64(call+1))
	return sig
}

type fakeSwapper struct {
	calls []uint64
	out   uint64
	err   error
}

func (s *fakeSwapper) Swap(_ context.Context, amountIn uint64) (*raydium.SwapResult, error) {

	s.calls = append(s.calls, amountIn)
	if s.err != nil {
		return nil, s.err
	}

	var sig solana.Signature
	sig[0] = 0x80
	binary.LittleEndian.PutUint64(sig[8:16], uint64(len(s.calls)))

	return &raydium.SwapResult{AmountIn: amountIn, AmountOut: s.out, Signature: sig}, nil
}

type fakePrices struct {
	tokenUSD *big.Rat
	solUSD   *big.Rat
	err      error
}

func (p *fakePrices) TokenUSD(_ context.Context, amount uint64, decimals uint8) (*big.Rat, error) {
	if p.err != nil {
		return nil, p.err
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Rat).SetFrac(new(big.Int).SetUint64(amount), scale)
	return value.Mul(value, p.tokenUSD), nil
}

func (p *fakePrices) LamportsUSD(_ context.Context, lamports uint64) (*big.Rat, error) {
	if p.err != nil {
		return nil, p.err
	}
	value := new(big.Rat).SetFrac(new(big.Int).SetUint64(lamports), big.NewInt(util.LAMPORTS_PER_SOL))
	return value.Mul(value, p.solUSD), nil
}

type staticEligibility struct {
	excluded []solana.PublicKey
	err      error
}

func (p *staticEligibility) EligibleSet(context.Context) (*EligibilitySet, error) {

	if p.err != nil {
		return nil, p.err
	}

	set := &EligibilitySet{excluded: make(map[solana.PublicKey]struct{})}
	for _, wallet := range p.excluded {
		set.excluded[wallet] = struct{}{}
	}
	return set, nil
}

type memStore struct {
	raw     []byte
	saveErr error
	saves   int
}

func (m *memStore) GetTaxRecord() ([]byte, error) { return m.raw, nil }

func (m *memStore) SaveTaxRecord(b []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.raw = append([]byte(nil), b...)
	m.saves++
	return nil
}

func tokenAccountBytes(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1
	return data
}

func isTransferTo(instructions []solana.Instruction, to solana.PublicKey) bool {
	if len(instructions) != 1 || !instructions[0].ProgramID().Equals(system.ProgramID) {
		return false
	}
	accounts := instructions[0].Accounts()
	return len(accounts) >= 2 && accounts[1].PublicKey.Equals(to)
}

func transferAmount(t *testing.T, ix solana.Instruction) uint64 {
	t.Helper()

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 12)
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[:4]))

	return binary.LittleEndian.Uint64(data[4:])
}

// harness wires a coordinator around fakes. The default fixture holds
// three holders with balances 100/100/800, 600 withheld across their
// accounts plus 400 on the mint, and a swap venue paying out 4 SOL.
type harness struct {
	cfg     *config.Config
	chain   *fakeChain
	swapper *fakeSwapper
	prices  *fakePrices
	elig    *staticEligibility
	store   *memStore
	clock   *clockwork.FakeClock

	mint         solana.PublicKey
	operating    solana.PublicKey
	treasury     solana.PublicKey
	operatingATA solana.PublicKey

	holderA solana.PublicKey
	holderB solana.PublicKey
	holderC solana.PublicKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		mint:      solana.NewWallet().PublicKey(),
		operating: solana.NewWallet().PublicKey(),
		treasury:  solana.NewWallet().PublicKey(),
		holderA:   solana.NewWallet().PublicKey(),
		holderB:   solana.NewWallet().PublicKey(),
		holderC:   solana.NewWallet().PublicKey(),
	}

	ata, err := solclient.DeriveTokenAccount(h.operating, util.Token2022Program, h.mint)
	require.NoError(t, err)
	h.operatingATA = ata

	h.cfg = &config.Config{
		Mint:                  h.mint,
		MinTaxThresholdMode:   config.MODE_TOKEN,
		MinTaxThresholdTokens: 500,
		BatchCeilingMode:      config.MODE_TOKEN,
		BatchCount:            4,
		HolderShareBps:        7500,
		TreasuryShareBps:      2500,
		MinPayoutMode:         config.MODE_TOKEN,
		MinPayoutLamports:     100_000,
		MinPayoutUSD:          big.NewRat(1, 100),
		DustFloorLamports:     5_000,
		FeeBufferLamports:     10_000,
		TaxHistoryCap:         100,
		HarvestChunkSize:      20,
		SendRetries:           1,
		ConfirmPolls:          1,
		ConfirmPollInterval:   time.Millisecond,
	}

	h.chain = &fakeChain{
		mint: &solclient.MintInfo{
			Address:  h.mint,
			Supply:   1_000_000_000,
			Decimals: 9,
			TransferFee: &solclient.TransferFeeConfig{
				WithdrawWithheldAuthority: h.operating,
				WithheldAmount:            400,
			},
		},
		holders: []*solclient.TokenAccount{
			{Address: solana.NewWallet().PublicKey(), Mint: h.mint, Owner: h.holderA, Amount: 100, Withheld: 300},
			{Address: solana.NewWallet().PublicKey(), Mint: h.mint, Owner: h.holderB, Amount: 100, Withheld: 300},
			{Address: solana.NewWallet().PublicKey(), Mint: h.mint, Owner: h.holderC, Amount: 800},
		},
		balance:  10_000_000_000,
		accounts: make(map[solana.PublicKey][]byte),
	}

	// The withdraw transaction is the only two-instruction send in a
	// cycle; landing it credits the operating token account
	h.chain.afterSend = func(f *fakeChain, instructions []solana.Instruction) {
		if len(instructions) != 2 {
			return
		}
		var current uint64
		if data := f.accounts[h.operatingATA]; data != nil {
			current = binary.LittleEndian.Uint64(data[64:72])
		}
		f.accounts[h.operatingATA] = tokenAccountBytes(h.mint, h.operating, current+1000)
	}

	h.swapper = &fakeSwapper{out: 4_000_000_000}
	h.prices = &fakePrices{tokenUSD: big.NewRat(1, 1), solUSD: big.NewRat(100, 1)}
	h.elig = &staticEligibility{}
	h.store = &memStore{}
	h.clock = clockwork.NewFakeClockAt(time.Date(2026, 8, 23, 10, 2, 30, 0, time.UTC))

	return h
}

func (h *harness) coordinator(t *testing.T) *Coordinator {
	t.Helper()

	c, err := NewCoordinatorWithClock(CoordinatorConfig{
		Config:      h.cfg,
		Chain:       h.chain,
		Swapper:     h.swapper,
		Prices:      h.prices,
		Eligibility: h.elig,
		Store:       h.store,
		Operating:   h.operating,
		Treasury:    h.treasury,
		Signer:      func(solana.PublicKey) *solana.PrivateKey { return nil },
		SendOpts:    solclient.SendOptions{Retries: 1, ConfirmPolls: 1, ConfirmInterval: time.Millisecond},
	}, h.clock)
	require.NoError(t, err)

	return c
}

func TestProcessWithheldTax(t *testing.T) {

	ctx := context.Background()

	t.Run("pays holders and treasury by share", func(t *testing.T) {

		h := newHarness(t)
		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 123)
		require.NoError(t, err)
		require.NotNil(t, result)

		require.Equal(t, uint64(1000), result.Harvested)
		require.Equal(t, []uint64{1000}, h.swapper.calls)
		require.Equal(t, uint64(4_000_000_000), result.Proceeds)
		require.Equal(t, uint64(3_000_000_000), result.HolderShare)
		require.Equal(t, uint64(1_000_000_000), result.TreasuryShare)
		require.NoError(t, result.TreasuryError)
		require.False(t, result.TreasurySignature.IsZero())

		// Balance-weighted floor split of the 75% share
		require.Len(t, result.Distribution.Paid, 3)
		paid := make(map[solana.PublicKey]uint64)
		for _, p := range result.Distribution.Paid {
			paid[p.Wallet] = p.Amount
		}
		require.Equal(t, uint64(300_000_000), paid[h.holderA])
		require.Equal(t, uint64(300_000_000), paid[h.holderB])
		require.Equal(t, uint64(2_400_000_000), paid[h.holderC])
		require.Equal(t, uint64(3_000_000_000), result.Distribution.TotalPaid)
		require.Equal(t, uint64(1000), result.Distribution.TotalWeight)
		require.Empty(t, result.Distribution.Skipped)

		// harvest, withdraw, three payouts, treasury
		require.Len(t, h.chain.sent, 6)
		require.True(t, h.chain.sent[0][0].ProgramID().Equals(util.Token2022Program))
		require.Len(t, h.chain.sent[1], 2)
		treasuryTx := h.chain.sent[5]
		require.True(t, isTransferTo(treasuryTx, h.treasury))
		require.Equal(t, uint64(1_000_000_000), transferAmount(t, treasuryTx[0]))

		state := c.TaxStatistics()
		require.Equal(t, uint64(1000), state.TotalTaxCollected)
		require.Equal(t, uint64(3_000_000_000), state.TotalRewardAmount)
		require.Equal(t, uint64(1_000_000_000), state.TotalTreasuryAmount)
		require.Equal(t, uint64(3_000_000_000), state.TotalSolDistributed)
		require.Equal(t, uint64(1_000_000_000), state.TotalSolToTreasury)
		require.Equal(t, h.clock.Now().UTC(), state.LastTaxDistribution)
		require.NotEmpty(t, state.LastSwapTx)
		require.NotEmpty(t, state.LastDistributionTx)

		require.Len(t, state.TaxDistributions, 1)
		entry := state.TaxDistributions[0]
		require.Equal(t, "20657", entry.Epoch)
		require.Equal(t, 123, entry.CycleNumber)
		require.Equal(t, uint64(1000), entry.NukeHarvested)
		require.Equal(t, uint64(4_000_000_000), entry.SolProceeds)
		require.Equal(t, 3, entry.HoldersPaid)
		require.Equal(t, 0, entry.HoldersSkipped)
		require.Empty(t, entry.SubError)

		require.Equal(t, 1, h.store.saves)

		// A fresh coordinator on the same store sees the same counters
		reloaded := h.coordinator(t)
		require.Equal(t, state, reloaded.TaxStatistics())
	})

	t.Run("defers below token threshold without touching state", func(t *testing.T) {

		h := newHarness(t)
		h.cfg.MinTaxThresholdTokens = 5_000

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.Nil(t, result)

		require.Empty(t, h.chain.sent)
		require.Empty(t, h.swapper.calls)
		require.Zero(t, h.store.saves)
		require.Zero(t, c.TaxStatistics().TotalTaxCollected)
	})

	t.Run("defers below usd threshold", func(t *testing.T) {

		h := newHarness(t)
		h.cfg.MinTaxThresholdMode = config.MODE_USD
		h.cfg.MinTaxThresholdUSD = big.NewRat(50, 1)
		// 1000 raw at 9 decimals is worth next to nothing at $1/token
		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.Nil(t, result)
		require.Empty(t, h.chain.sent)
	})

	t.Run("skips mint without fee extension", func(t *testing.T) {

		h := newHarness(t)
		h.chain.mint.TransferFee = nil

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.Nil(t, result)
		require.Empty(t, h.chain.sent)
	})

	t.Run("rejects foreign withdraw authority", func(t *testing.T) {

		h := newHarness(t)
		h.chain.mint.TransferFee.WithdrawWithheldAuthority = solana.NewWallet().PublicKey()

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.Nil(t, result)
		require.Empty(t, h.chain.sent)
	})

	t.Run("accepts treasury as withdraw authority", func(t *testing.T) {

		h := newHarness(t)
		h.chain.mint.TransferFee.WithdrawWithheldAuthority = h.treasury

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, uint64(1000), result.Harvested)
	})

	t.Run("propagates mint lookup failure", func(t *testing.T) {

		h := newHarness(t)
		h.chain.mintErr = errors.New("rpc down")

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.Error(t, err)
		require.Nil(t, result)
	})

	t.Run("rolls over when withdraw lands nothing", func(t *testing.T) {

		h := newHarness(t)
		for _, holder := range h.chain.holders {
			holder.Withheld = 0
		}
		h.chain.mint.TransferFee.WithheldAmount = 1000
		h.chain.afterSend = nil

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.Nil(t, result)

		// Only the withdraw transaction went out; no sources to harvest
		require.Len(t, h.chain.sent, 1)
		require.Zero(t, h.store.saves)
	})

	t.Run("swap failure aborts before any payout", func(t *testing.T) {

		h := newHarness(t)
		h.swapper.err = errors.New("slippage exceeded")

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Swap 1/1")
		require.Nil(t, result)

		// Harvest and withdraw happened, then nothing else moved
		require.Len(t, h.chain.sent, 2)
		require.Zero(t, h.store.saves)
		require.Zero(t, c.TaxStatistics().TotalTaxCollected)
	})

	t.Run("splits oversized harvest into delayed batches", func(t *testing.T) {

		h := newHarness(t)
		h.cfg.BatchCeilingTokens = 300
		h.cfg.BatchDelay = 10 * time.Second
		h.swapper.out = 1_000_000_000

		c := h.coordinator(t)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 3; i++ {
				h.clock.BlockUntil(1)
				h.clock.Advance(h.cfg.BatchDelay)
			}
		}()

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.NotNil(t, result)
		<-done

		require.Equal(t, []uint64{250, 250, 250, 250}, h.swapper.calls)
		require.Equal(t, uint64(4_000_000_000), result.Proceeds)
		require.Len(t, result.SwapSignatures, 4)
	})

	t.Run("treasury failure is recorded but not fatal", func(t *testing.T) {

		h := newHarness(t)
		h.chain.sendErr = func(_ int, instructions []solana.Instruction) error {
			if isTransferTo(instructions, h.treasury) {
				return errors.New("blockhash expired")
			}
			return nil
		}

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.NoError(t, err)
		require.NotNil(t, result)

		require.Error(t, result.TreasuryError)
		require.True(t, result.TreasurySignature.IsZero())
		require.Equal(t, uint64(3_000_000_000), result.Distribution.TotalPaid)

		state := c.TaxStatistics()
		require.Equal(t, uint64(1_000_000_000), state.TotalTreasuryAmount)
		require.Zero(t, state.TotalSolToTreasury)
		require.Contains(t, state.TaxDistributions[0].SubError, "blockhash expired")
	})

	t.Run("save failure still returns the result", func(t *testing.T) {

		h := newHarness(t)
		h.store.saveErr = errors.New("disk full")

		c := h.coordinator(t)

		result, err := c.ProcessWithheldTax(ctx, "20657", 1)
		require.Error(t, err)
		require.Contains(t, err.Error(), "Unable to persist tax state")
		require.NotNil(t, result)
		require.Equal(t, uint64(3_000_000_000), result.Distribution.TotalPaid)
	})

	t.Run("history cap keeps the newest entries", func(t *testing.T) {

		h := newHarness(t)
		h.cfg.TaxHistoryCap = 2

		c := h.coordinator(t)

		for cycle := 1; cycle <= 3; cycle++ {
			result, err := c.ProcessWithheldTax(ctx, "20657", cycle)
			require.NoError(t, err)
			require.NotNil(t, result)
		}

		state := c.TaxStatistics()
		require.Len(t, state.TaxDistributions, 2)
		require.Equal(t, 2, state.TaxDistributions[0].CycleNumber)
		require.Equal(t, 3, state.TaxDistributions[1].CycleNumber)
		require.Equal(t, uint64(3000), state.TotalTaxCollected)
	})
}
