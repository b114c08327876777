package raydium

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/solclient"
	"nukebot/util"
)

// Base fee of a single-signature transaction. The temporary wrapped-SOL
// account's rent is refunded by the close in the same transaction, so the
// payer's lamport delta is swap proceeds minus exactly this fee.
const txFeeLamports = 5_000

// These two simulation failures mean the pool or mint is configured
// differently than the bot believes; retrying will not help.
var (
	ErrUnrecognizedInstruction = errors.New("venue program did not recognize the swap instruction")
	ErrTransferFeeRejected     = errors.New("token program rejected the transfer fee")
)

// SwapResult reports one executed swap. AmountOut is the observed lamport
// delta when the chain confirmed in time, the quote estimate otherwise.
type SwapResult struct {
	AmountIn  uint64
	AmountOut uint64
	Estimated bool
	Signature solana.Signature
}

// Swapper sells the taxed mint into wrapped SOL through whichever pool
// shape the venue descriptor names, and unwraps the proceeds.
type Swapper struct {
	client *solclient.Client
	api    *API
	mint   solana.PublicKey
	owner  solana.PublicKey
	signer func(solana.PublicKey) *solana.PrivateKey

	slippageBps uint64
	minOutFloor uint64
	sendOpts    solclient.SendOptions
}

func NewSwapper(client *solclient.Client, api *API, mint, owner solana.PublicKey, signer func(solana.PublicKey) *solana.PrivateKey, slippageBps, minOutFloor uint64, sendOpts solclient.SendOptions) *Swapper {
	return &Swapper{
		client:      client,
		api:         api,
		mint:        mint,
		owner:       owner,
		signer:      signer,
		slippageBps: slippageBps,
		minOutFloor: minOutFloor,
		sendOpts:    sendOpts,
	}
}

// Swap sells amountIn of the taxed mint for SOL. Create-wrapped-account,
// swap, and unwrap ride in one transaction; a failure anywhere leaves the
// tokens untouched in the operating wallet.
func (s *Swapper) Swap(ctx context.Context, amountIn uint64) (*SwapResult, error) {

	pool, err := s.api.PoolInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to resolve pool descriptor")
	}

	sellsA, err := pool.SellsMintA(s.mint)
	if err != nil {
		return nil, err
	}

	sellSide, buySide := pool.MintA, pool.MintB
	if !sellsA {
		sellSide, buySide = buySide, sellSide
	}
	if !buySide.Address.Equals(util.WrappedSolMint) {
		return nil, errors.Errorf("Pool %s does not trade against wrapped SOL", pool.ID)
	}

	reserveA, reserveB, err := s.poolReserves(ctx, pool)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := reserveA, reserveB
	if !sellsA {
		reserveIn, reserveOut = reserveOut, reserveIn
	}

	quote, err := computeQuote(quoteParams{
		AmountIn:    amountIn,
		TransferFee: solclient.TransferFee{Bps: sellSide.TransferFeeBps, MaxFee: sellSide.MaxTransferFee},
		ReserveIn:   reserveIn,
		ReserveOut:  reserveOut,
		SlippageBps: s.slippageBps,
		MinOutFloor: s.minOutFloor,
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"Pool": pool.ID, "Kind": pool.Kind.String(), "AmountIn": quote.AmountIn,
		"EffectiveIn": quote.EffectiveIn, "EstimateOut": quote.EstimateOut, "MinimumOut": quote.MinimumOut,
	}).Info("Quoted swap")

	userSource, err := solclient.DeriveTokenAccount(s.owner, tokenProgramOf(sellSide), s.mint)
	if err != nil {
		return nil, err
	}
	userDest, err := solclient.DeriveTokenAccount(s.owner, solana.TokenProgramID, util.WrappedSolMint)
	if err != nil {
		return nil, err
	}

	swapIx, err := s.buildSwapInstruction(ctx, pool, userSource, userDest, amountIn, quote.MinimumOut)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{
		solclient.NewCreateTokenAccountInstruction(s.owner, userDest, s.owner, util.WrappedSolMint, solana.TokenProgramID),
		swapIx,
		token.NewCloseAccountInstruction(userDest, s.owner, s.owner, nil).Build(),
	}

	balanceBefore, balanceErr := s.client.GetBalance(ctx, s.owner)

	sig, err := s.client.SendInstructions(ctx, instructions, s.owner, s.signer, s.sendOpts)
	if err != nil {
		return nil, classifySimulation(err)
	}

	result := &SwapResult{
		AmountIn:  amountIn,
		AmountOut: quote.EstimateOut,
		Estimated: true,
		Signature: sig,
	}

	// Prefer what the wallet actually received over the estimate
	if balanceErr == nil {
		if after, err := s.client.GetBalance(ctx, s.owner); err == nil && after+txFeeLamports > balanceBefore {
			result.AmountOut = after + txFeeLamports - balanceBefore
			result.Estimated = false
		}
	}

	log.WithFields(log.Fields{
		"Signature": sig, "AmountOut": result.AmountOut, "Estimated": result.Estimated,
	}).Info("Swap confirmed")

	return result, nil
}

// poolReserves prefers the API's reserve numbers and falls back to reading
// the vault accounts directly.
func (s *Swapper) poolReserves(ctx context.Context, pool *PoolInfo) (uint64, uint64, error) {

	if pool.HasReserves {
		return pool.ReserveA, pool.ReserveB, nil
	}

	log.WithField("Pool", pool.ID).Debug("API reserves absent; reading vaults")

	datas, err := s.client.GetMultipleAccountData(ctx, pool.VaultA, pool.VaultB)
	if err != nil {
		return 0, 0, err
	}
	if len(datas) != 2 || datas[0] == nil || datas[1] == nil {
		return 0, 0, errors.Errorf("Pool %s vault accounts are missing on chain", pool.ID)
	}

	vaultA, err := solclient.ParseTokenAccount(pool.VaultA, datas[0])
	if err != nil {
		return 0, 0, errors.Wrap(err, "Unable to parse vault A")
	}
	vaultB, err := solclient.ParseTokenAccount(pool.VaultB, datas[1])
	if err != nil {
		return 0, 0, errors.Wrap(err, "Unable to parse vault B")
	}

	return vaultA.Amount, vaultB.Amount, nil
}

// buildSwapInstruction resolves the accounts and encoding for the pool's
// shape. Each shape reads its own on-chain state; the descriptor alone is
// not enough to assemble the account list.
func (s *Swapper) buildSwapInstruction(ctx context.Context, pool *PoolInfo, userSource, userDest solana.PublicKey, amountIn, minOut uint64) (solana.Instruction, error) {

	data, err := s.client.GetAccountData(ctx, pool.ID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.Errorf("Pool account %s does not exist on chain", pool.ID)
	}

	switch pool.Kind {

	case KindStandard:
		amm, err := parseAmmPool(pool.ID, data)
		if err != nil {
			return nil, err
		}

		marketData, err := s.client.GetAccountData(ctx, amm.MarketID)
		if err != nil {
			return nil, err
		}
		if marketData == nil {
			return nil, errors.Errorf("Market account %s does not exist on chain", amm.MarketID)
		}
		market, err := parseSerumMarket(amm.MarketID, marketData)
		if err != nil {
			return nil, err
		}

		vaultSigner, err := serumVaultSigner(amm.MarketID, market.VaultSignerNonce, amm.MarketProgram)
		if err != nil {
			return nil, err
		}

		return buildAmmSwapInstruction(pool.ID, amm, market, vaultSigner, userSource, userDest, s.owner, amountIn, minOut), nil

	case KindCpmm:
		state, err := parseCpmmPool(pool.ID, data)
		if err != nil {
			return nil, err
		}

		zeroForOne := s.mint.Equals(state.Token0Mint)
		if !zeroForOne && !s.mint.Equals(state.Token1Mint) {
			return nil, errors.Errorf("CPMM pool %s does not hold mint %s", pool.ID, s.mint)
		}

		authority, err := cpmmAuthority()
		if err != nil {
			return nil, err
		}

		return buildCpmmSwapInstruction(pool.ID, state, authority, zeroForOne, userSource, userDest, s.owner, amountIn, minOut), nil

	case KindClmm:
		state, err := parseClmmPool(pool.ID, data)
		if err != nil {
			return nil, err
		}

		zeroForOne := s.mint.Equals(state.TokenMint0)
		if !zeroForOne && !s.mint.Equals(state.TokenMint1) {
			return nil, errors.Errorf("CLMM pool %s does not hold mint %s", pool.ID, s.mint)
		}

		tickArrays, err := swapTickArrays(pool.ID, state, zeroForOne)
		if err != nil {
			return nil, err
		}

		return buildClmmSwapInstruction(pool.ID, state, zeroForOne, tickArrays, userSource, userDest, s.owner, amountIn, minOut), nil
	}

	return nil, errors.Errorf("Pool kind %s has no swap encoder", pool.Kind)
}

// classifySimulation maps known program rejections onto configuration
// errors. Anything unmatched passes through unchanged.
func classifySimulation(err error) error {

	var sim *solclient.SimulationError
	if !errors.As(err, &sim) {
		return err
	}

	logs := strings.ToLower(strings.Join(sim.Logs, " "))
	switch {
	case strings.Contains(logs, "invalid instruction"),
		strings.Contains(logs, "instructionfallbacknotfound"),
		strings.Contains(logs, "fallback functions are not supported"):
		return errors.Wrap(ErrUnrecognizedInstruction, sim.Error())

	case strings.Contains(logs, "transfer fee"),
		strings.Contains(logs, "transferfee"),
		strings.Contains(logs, "fee mismatch"):
		return errors.Wrap(ErrTransferFeeRejected, sim.Error())
	}

	return err
}

// tokenProgramOf falls back to the classic token program when the API
// omitted a mint's owning program.
func tokenProgramOf(m PoolMint) solana.PublicKey {
	if m.Program.IsZero() {
		return solana.TokenProgramID
	}
	return m.Program
}
