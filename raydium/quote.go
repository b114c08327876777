package raydium

import (
	"math"
	"math/big"

	"github.com/pkg/errors"

	"nukebot/solclient"
)

// The venue takes 25bps on the post-transfer-fee input for every pool
// shape the bot trades.
const (
	venueFeeBps    = 25
	bpsDenominator = 10_000
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
	ErrBelowOutputFloor      = errors.New("minimum output below configured floor")
)

// Quote is a pre-trade estimate. All amounts are raw units; the math is
// integer-only so repeated cycles cannot accumulate rounding drift.
type Quote struct {
	AmountIn    uint64
	EffectiveIn uint64
	EstimateOut uint64
	MinimumOut  uint64
	ReserveIn   uint64
	ReserveOut  uint64
}

type quoteParams struct {
	AmountIn    uint64
	TransferFee solclient.TransferFee
	ReserveIn   uint64
	ReserveOut  uint64
	SlippageBps uint64
	MinOutFloor uint64
}

// computeQuote applies the mint's transfer fee to the nominal input, runs
// the constant-product estimate with the venue's trading fee, and derives
// the slippage-bounded minimum. Rejects trades into thin pools.
func computeQuote(p quoteParams) (*Quote, error) {

	if p.ReserveIn == 0 || p.ReserveOut == 0 {
		return nil, errors.Wrapf(ErrInsufficientLiquidity, "pool reserves %d/%d", p.ReserveIn, p.ReserveOut)
	}
	if p.AmountIn == 0 {
		return nil, errors.New("Swap amount is zero")
	}

	// The pool only ever sees the post-tax amount; fee schedules with no
	// stated maximum are uncapped
	fee := p.TransferFee
	if fee.Bps > 0 && fee.MaxFee == 0 {
		fee.MaxFee = math.MaxUint64
	}
	effectiveIn := p.AmountIn - fee.Calculate(p.AmountIn)
	if effectiveIn == 0 {
		return nil, errors.Wrap(ErrInsufficientLiquidity, "transfer fee consumes entire input")
	}

	// Constant product with the venue fee on the input side:
	// out = reserveOut * in' / (reserveIn + in'), in' = in * (1 - fee)
	inWithFee := new(big.Int).SetUint64(effectiveIn)
	inWithFee.Mul(inWithFee, big.NewInt(bpsDenominator-venueFeeBps))
	inWithFee.Div(inWithFee, big.NewInt(bpsDenominator))

	reserveIn := new(big.Int).SetUint64(p.ReserveIn)
	reserveOut := new(big.Int).SetUint64(p.ReserveOut)

	out := new(big.Int).Mul(reserveOut, inWithFee)
	out.Div(out, new(big.Int).Add(reserveIn, inWithFee))

	minOut := new(big.Int).Mul(out, big.NewInt(bpsDenominator-int64(p.SlippageBps)))
	minOut.Div(minOut, big.NewInt(bpsDenominator))

	quote := &Quote{
		AmountIn:    p.AmountIn,
		EffectiveIn: effectiveIn,
		EstimateOut: out.Uint64(),
		MinimumOut:  minOut.Uint64(),
		ReserveIn:   p.ReserveIn,
		ReserveOut:  p.ReserveOut,
	}

	// A pool that cannot cover twice the acceptable output is too thin to
	// quote honestly
	if p.ReserveOut/2 < quote.MinimumOut {
		return nil, errors.Wrapf(ErrInsufficientLiquidity, "destination reserve %d under twice minimum output %d",
			p.ReserveOut, quote.MinimumOut)
	}

	if quote.MinimumOut < p.MinOutFloor {
		return nil, errors.Wrapf(ErrBelowOutputFloor, "minimum output %d under floor %d", quote.MinimumOut, p.MinOutFloor)
	}

	return quote, nil
}
