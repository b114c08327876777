package raydium

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"nukebot/util"
)

// PriceResolver values raw on-chain amounts in USD using the venue's price
// feed. Dual-mode thresholds compare against these values; the math stays
// in exact rationals so threshold checks never wobble on float rounding.
type PriceResolver struct {
	api  *API
	mint solana.PublicKey
}

func NewPriceResolver(api *API, mint solana.PublicKey) *PriceResolver {
	return &PriceResolver{api: api, mint: mint}
}

// TokenUSD values a raw amount of the taxed mint.
func (r *PriceResolver) TokenUSD(ctx context.Context, amount uint64, decimals uint8) (*big.Rat, error) {

	price, err := r.priceOf(ctx, r.mint)
	if err != nil {
		return nil, err
	}

	value := new(big.Rat).SetFrac(new(big.Int).SetUint64(amount), pow10(decimals))
	return value.Mul(value, price), nil
}

// LamportsUSD values a lamport amount through the wrapped SOL price.
func (r *PriceResolver) LamportsUSD(ctx context.Context, lamports uint64) (*big.Rat, error) {

	price, err := r.priceOf(ctx, util.WrappedSolMint)
	if err != nil {
		return nil, err
	}

	value := new(big.Rat).SetFrac(new(big.Int).SetUint64(lamports), big.NewInt(util.LAMPORTS_PER_SOL))
	return value.Mul(value, price), nil
}

func (r *PriceResolver) priceOf(ctx context.Context, mint solana.PublicKey) (*big.Rat, error) {

	prices, err := r.api.Prices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to resolve prices")
	}

	price, ok := prices[mint]
	if !ok {
		return nil, errors.Errorf("Venue API has no USD price for %s", mint)
	}

	return price, nil
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
