package solclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SendOptions bounds the retry and confirmation behavior of one
// transaction submission.
type SendOptions struct {
	Retries         int
	ConfirmPolls    int
	ConfirmInterval time.Duration
	SkipSimulation  bool
}

// SimulationError carries the program logs of a failed preflight so callers
// can classify what the venue program rejected.
type SimulationError struct {
	TxErr interface{}
	Logs  []string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %v; logs: %s", e.TxErr, strings.Join(e.Logs, " | "))
}

// SendInstructions builds, signs, simulates, and submits one transaction,
// then waits for it to reach confirmed commitment. The returned signature
// is valid even when confirmation ultimately fails; the caller decides
// whether an unconfirmed send is fatal.
func (c *Client) SendInstructions(ctx context.Context, instructions []solana.Instruction, payer solana.PublicKey, signer func(solana.PublicKey) *solana.PrivateKey, opts SendOptions) (solana.Signature, error) {

	blockhash, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "Unable to build transaction")
	}

	if _, err := tx.Sign(signer); err != nil {
		return solana.Signature{}, errors.Wrap(err, "Unable to sign transaction")
	}

	if !opts.SkipSimulation {
		if err := c.simulate(ctx, tx); err != nil {
			return solana.Signature{}, err
		}
	}

	sig, err := c.sendWithRetry(ctx, tx, opts.Retries)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := c.confirmTransaction(ctx, sig, opts.ConfirmPolls, opts.ConfirmInterval); err != nil {
		return sig, err
	}

	return sig, nil
}

func (c *Client) simulate(ctx context.Context, tx *solana.Transaction) error {

	var simErr *SimulationError

	err := c.call(ctx, "SimulateTransaction", func(cl *rpc.Client) error {
		res, err := cl.SimulateTransaction(ctx, tx)
		if err != nil {
			return err
		}
		if res.Value.Err != nil {
			simErr = &SimulationError{TxErr: res.Value.Err, Logs: res.Value.Logs}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "Unable to simulate transaction")
	}
	if simErr != nil {
		return simErr
	}

	return nil
}

// sendWithRetry submits with preflight skipped; simulation already ran once
// and re-running it on every attempt just burns the blockhash window.
func (c *Client) sendWithRetry(ctx context.Context, tx *solana.Transaction, retries int) (solana.Signature, error) {

	if retries < 1 {
		retries = 1
	}

	var lastErr error

	for attempt := 1; attempt <= retries; attempt++ {

		var sig solana.Signature
		err := c.call(ctx, "SendTransaction", func(cl *rpc.Client) error {
			s, err := cl.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
				SkipPreflight:       true,
				PreflightCommitment: rpc.CommitmentProcessed,
			})
			if err != nil {
				return err
			}
			sig = s
			return nil
		})
		if err == nil {
			return sig, nil
		}

		lastErr = err
		log.WithError(err).WithField("Attempt", attempt).Warn("Transaction submission failed")

		if attempt < retries {
			if err := sleepCtx(ctx, time.Duration(attempt)*500*time.Millisecond); err != nil {
				return solana.Signature{}, err
			}
		}
	}

	return solana.Signature{}, errors.Wrap(lastErr, "Unable to submit transaction")
}

func (c *Client) confirmTransaction(ctx context.Context, sig solana.Signature, polls int, interval time.Duration) error {

	if polls < 1 {
		polls = 1
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}

	for i := 0; i < polls; i++ {

		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}

		var status *rpc.SignatureStatusesResult
		err := c.call(ctx, "GetSignatureStatuses", func(cl *rpc.Client) error {
			res, err := cl.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				return err
			}
			if len(res.Value) > 0 {
				status = res.Value[0]
			}
			return nil
		})
		if err != nil || status == nil {
			continue
		}

		if status.Err != nil {
			return errors.Errorf("Transaction %s failed on chain: %v", sig, status.Err)
		}

		if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
			return nil
		}
	}

	return errors.Errorf("Transaction %s not confirmed after %d polls", sig, polls)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
