// Package solclient wraps the Solana JSON-RPC client with endpoint
// failover and request pacing. All chain reads and writes the bot performs
// go through this package; nothing else talks RPC directly.
package solclient

import (
	"context"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Public RPC endpoints tolerate roughly 10 req/s before throwing 429s;
// leave headroom for bursts at cycle start.
const (
	requestsPerSecond = 8
	requestBurst      = 16
)

type Client struct {
	primary *rpc.Client
	backup  *rpc.Client

	limiter *rate.Limiter

	lock      sync.Mutex
	current   *rpc.Client
	isPrimary bool
}

// New builds a client against the primary endpoint with an optional backup.
// An empty backup URL disables failover.
func New(primaryURL, backupURL string) *Client {

	c := &Client{
		primary:   rpc.New(primaryURL),
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		isPrimary: true,
	}
	c.current = c.primary

	if backupURL != "" {
		c.backup = rpc.New(backupURL)
	}

	log.WithFields(log.Fields{
		"Primary": primaryURL, "Backup": backupURL,
	}).Info("Solana RPC client ready")

	return c
}

func (c *Client) useBackup() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.backup != nil {
		c.current = c.backup
		c.isPrimary = false
	}
}

func (c *Client) usePrimary() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.current = c.primary
	c.isPrimary = true
}

func (c *Client) endpoint() (*rpc.Client, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current, c.isPrimary
}

// OnPrimary reports whether the client is currently using its primary
// endpoint. Exposed for the status API.
func (c *Client) OnPrimary() bool {
	_, isPrimary := c.endpoint()
	return isPrimary
}

// call runs fn against the current endpoint, flipping to the other one and
// retrying once on failure. Rate-limit errors are not failed over; both
// endpoints would just get hammered in turn.
func (c *Client) call(ctx context.Context, name string, fn func(*rpc.Client) error) error {

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "Rate limiter interrupted")
	}

	cl, wasPrimary := c.endpoint()

	err := fn(cl)
	if err == nil {
		return nil
	}

	if c.backup == nil || IsRateLimited(err) {
		return err
	}

	log.WithError(err).WithFields(log.Fields{
		"Call": name, "Primary": wasPrimary,
	}).Warn("RPC call failed; switching endpoint")

	if wasPrimary {
		c.useBackup()
	} else {
		c.usePrimary()
	}

	cl, _ = c.endpoint()
	return fn(cl)
}

// IsRateLimited detects HTTP 429 / throttling responses so callers can fall
// back to cached data instead of retrying.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

// GetBalance returns an address's lamport balance.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {

	var balance uint64

	err := c.call(ctx, "GetBalance", func(cl *rpc.Client) error {
		res, err := cl.GetBalance(ctx, account, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		balance = res.Value
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "Unable to get balance of %s", account)
	}

	return balance, nil
}

// GetAccountData returns an account's raw data bytes, or nil if the account
// does not exist.
func (c *Client) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {

	var data []byte

	err := c.call(ctx, "GetAccountInfo", func(cl *rpc.Client) error {
		res, err := cl.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			if err == rpc.ErrNotFound {
				data = nil
				return nil
			}
			return err
		}
		data = res.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to get account %s", account)
	}

	return data, nil
}

// GetMultipleAccountData fetches several accounts in one call. Missing
// accounts come back as nil entries in the same order as the request.
func (c *Client) GetMultipleAccountData(ctx context.Context, accounts ...solana.PublicKey) ([][]byte, error) {

	var out [][]byte

	err := c.call(ctx, "GetMultipleAccounts", func(cl *rpc.Client) error {
		res, err := cl.GetMultipleAccountsWithOpts(ctx, accounts, &rpc.GetMultipleAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return err
		}

		out = make([][]byte, len(res.Value))
		for i, acct := range res.Value {
			if acct == nil {
				continue
			}
			out[i] = acct.Data.GetBinary()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "Unable to get multiple accounts")
	}

	return out, nil
}

// GetLatestBlockhash returns a blockhash fresh enough to build against.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {

	var hash solana.Hash

	err := c.call(ctx, "GetLatestBlockhash", func(cl *rpc.Client) error {
		res, err := cl.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		hash = res.Value.Blockhash
		return nil
	})
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "Unable to get latest blockhash")
	}

	return hash, nil
}
