// Package raydium talks to the Raydium venue: its HTTP API for pool and
// price lookups, and its three on-chain program shapes (standard AMM,
// CPMM, CLMM) for executing swaps.
package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"nukebot/fetcher"
	"nukebot/util"
)

const (
	poolInfoTTL      = 60 * time.Second
	poolInfoCooldown = 20 * time.Second
	priceTTL         = 60 * time.Second
	priceCooldown    = 20 * time.Second
)

// PriceMap holds USD prices keyed by mint. Values are exact rationals
// parsed from the API's decimal strings.
type PriceMap map[solana.PublicKey]*big.Rat

type API struct {
	baseURL string
	client  *http.Client
	poolID  solana.PublicKey
	mint    solana.PublicKey

	poolInfo *fetcher.Cached[*PoolInfo]
	prices   *fetcher.Cached[PriceMap]
}

// NewAPI builds the venue API client for one pool and its taxed mint.
// Lookups are cached; see the package fetcher for the staleness contract.
func NewAPI(baseURL string, poolID, mint solana.PublicKey) *API {

	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		poolID:  poolID,
		mint:    mint,
	}

	a.poolInfo = fetcher.New("pool-info", poolInfoTTL, poolInfoCooldown, IsRateLimited, a.fetchPoolInfo)
	a.prices = fetcher.New("mint-prices", priceTTL, priceCooldown, IsRateLimited, a.fetchPrices)

	return a
}

// PoolInfo returns the cached pool descriptor.
func (a *API) PoolInfo(ctx context.Context) (*PoolInfo, error) {
	return a.poolInfo.Get(ctx)
}

// Prices returns cached USD prices for the taxed mint and wrapped SOL.
func (a *API) Prices(ctx context.Context) (PriceMap, error) {
	return a.prices.Get(ctx)
}

// apiError carries the HTTP status so throttling can be told apart from
// real failures.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("venue API returned %d: %s", e.status, e.body)
}

// IsRateLimited reports whether the venue API rejected a call for rate.
func IsRateLimited(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status == http.StatusTooManyRequests
	}
	return false
}

func (a *API) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {

	req, err := http.NewRequestWithContext(ctx, "GET", a.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "Unable to build venue API request")
	}
	req.URL.RawQuery = query.Encode()

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "Unable to reach venue API %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "Unable to decode venue API response from %s", path)
	}

	return nil
}

// Wire shapes of the venue API. Amounts come as JSON numbers in human
// units; they are kept as json.Number and converted exactly, never through
// a float.
type poolInfoResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    []poolInfoEntry `json:"data"`
}

type poolInfoEntry struct {
	Type        string         `json:"type"`
	ProgramID   string         `json:"programId"`
	ID          string         `json:"id"`
	MintA       mintDescriptor `json:"mintA"`
	MintB       mintDescriptor `json:"mintB"`
	MintAmountA json.Number    `json:"mintAmountA"`
	MintAmountB json.Number    `json:"mintAmountB"`
	Vault       vaultEntry     `json:"vault"`
}

type mintDescriptor struct {
	Address    string `json:"address"`
	ProgramID  string `json:"programId"`
	Decimals   *uint8 `json:"decimals"`
	Extensions struct {
		FeeConfig *feeConfigEntry `json:"feeConfig"`
	} `json:"extensions"`
}

type feeConfigEntry struct {
	TransferFeeBasisPoints uint16      `json:"transferFeeBasisPoints"`
	MaximumFee             json.Number `json:"maximumFee"`
}

type vaultEntry struct {
	A string `json:"A"`
	B string `json:"B"`
}

type priceResponse struct {
	Success bool              `json:"success"`
	Msg     string            `json:"msg"`
	Data    map[string]string `json:"data"`
}

func (a *API) fetchPoolInfo(ctx context.Context) (*PoolInfo, error) {

	query := url.Values{}
	query.Set("ids", a.poolID.String())

	var resp poolInfoResponse
	if err := a.getJSON(ctx, "/pools/info/ids", query, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, errors.Errorf("Venue API rejected pool lookup: %s", resp.Msg)
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return nil, errors.Errorf("Venue API has no pool %s", a.poolID)
	}

	return parsePoolInfo(&resp.Data[0])
}

func (a *API) fetchPrices(ctx context.Context) (PriceMap, error) {

	query := url.Values{}
	query.Set("mints", a.mint.String()+","+util.WrappedSolMint.String())

	var resp priceResponse
	if err := a.getJSON(ctx, "/mint/price", query, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, errors.Errorf("Venue API rejected price lookup: %s", resp.Msg)
	}

	prices := make(PriceMap, len(resp.Data))
	for mint, price := range resp.Data {
		key, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			continue
		}
		rat, ok := new(big.Rat).SetString(price)
		if !ok {
			return nil, errors.Errorf("Venue API returned unparseable price '%s' for %s", price, mint)
		}
		prices[key] = rat
	}

	return prices, nil
}
