package raydium

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"nukebot/solclient"
)

// Reserves chosen so the constant-product division is exact: with a 25bps
// venue fee, 10_000 in becomes 9_975, and 990_025 + 9_975 = 1_000_000.
const (
	testReserveIn  = 990_025
	testReserveOut = 2_000_000
)

func TestComputeQuote(t *testing.T) {

	t.Run("no transfer fee", func(t *testing.T) {
		q, err := computeQuote(quoteParams{
			AmountIn:    10_000,
			ReserveIn:   testReserveIn,
			ReserveOut:  testReserveOut,
			SlippageBps: 200,
		})
		require.NoError(t, err)

		require.Equal(t, uint64(10_000), q.EffectiveIn)
		require.Equal(t, uint64(19_950), q.EstimateOut)
		require.Equal(t, uint64(19_551), q.MinimumOut)
	})

	t.Run("transfer fee halves the input", func(t *testing.T) {
		q, err := computeQuote(quoteParams{
			AmountIn:    20_000,
			TransferFee: solclient.TransferFee{Bps: 5_000, MaxFee: 1 << 50},
			ReserveIn:   testReserveIn,
			ReserveOut:  testReserveOut,
			SlippageBps: 200,
		})
		require.NoError(t, err)

		// The pool sees 10_000, so the estimate matches the unfeed case
		require.Equal(t, uint64(10_000), q.EffectiveIn)
		require.Equal(t, uint64(19_950), q.EstimateOut)
		require.Equal(t, uint64(19_551), q.MinimumOut)
	})

	t.Run("transfer fee respects the maximum", func(t *testing.T) {
		q, err := computeQuote(quoteParams{
			AmountIn:    20_000,
			TransferFee: solclient.TransferFee{Bps: 5_000, MaxFee: 100},
			ReserveIn:   testReserveIn,
			ReserveOut:  testReserveOut,
			SlippageBps: 200,
		})
		require.NoError(t, err)
		require.Equal(t, uint64(19_900), q.EffectiveIn)
	})

	t.Run("missing fee maximum means uncapped", func(t *testing.T) {
		_, err := computeQuote(quoteParams{
			AmountIn:    10_000,
			TransferFee: solclient.TransferFee{Bps: 10_000, MaxFee: 0},
			ReserveIn:   testReserveIn,
			ReserveOut:  testReserveOut,
		})
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("zero slippage keeps the estimate", func(t *testing.T) {
		q, err := computeQuote(quoteParams{
			AmountIn:   10_000,
			ReserveIn:  testReserveIn,
			ReserveOut: testReserveOut,
		})
		require.NoError(t, err)
		require.Equal(t, q.EstimateOut, q.MinimumOut)
	})
}

func TestComputeQuoteRejections(t *testing.T) {

	t.Run("zero reserves", func(t *testing.T) {
		_, err := computeQuote(quoteParams{AmountIn: 1_000, ReserveIn: 0, ReserveOut: testReserveOut})
		require.ErrorIs(t, err, ErrInsufficientLiquidity)

		_, err = computeQuote(quoteParams{AmountIn: 1_000, ReserveIn: testReserveIn, ReserveOut: 0})
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := computeQuote(quoteParams{AmountIn: 0, ReserveIn: testReserveIn, ReserveOut: testReserveOut})
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrInsufficientLiquidity))
	})

	t.Run("pool too thin for the trade", func(t *testing.T) {
		// Selling a hundred times the reserve would drain most of the pool;
		// the minimum output lands above half the destination reserve
		_, err := computeQuote(quoteParams{
			AmountIn:   100 * testReserveIn,
			ReserveIn:  testReserveIn,
			ReserveOut: testReserveOut,
		})
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("minimum output under the floor", func(t *testing.T) {
		_, err := computeQuote(quoteParams{
			AmountIn:    10_000,
			ReserveIn:   testReserveIn,
			ReserveOut:  testReserveOut,
			SlippageBps: 200,
			MinOutFloor: 100_000,
		})
		require.ErrorIs(t, err, ErrBelowOutputFloor)
	})
}
