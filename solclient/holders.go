package solclient

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/util"
)

// GetTokenHolders enumerates every token account of the mint, zero-balance
// accounts included; an emptied account can still carry withheld fees that
// the harvest must sweep. Token-2022 accounts vary in size with their
// extensions, so the scan filters on the mint field alone.
func (c *Client) GetTokenHolders(ctx context.Context, mint solana.PublicKey) ([]*TokenAccount, error) {

	var result rpc.GetProgramAccountsResult

	err := c.call(ctx, "GetProgramAccounts", func(cl *rpc.Client) error {
		res, err := cl.GetProgramAccountsWithOpts(ctx, util.Token2022Program, &rpc.GetProgramAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
			Filters: []rpc.RPCFilter{
				{
					Memcmp: &rpc.RPCFilterMemcmp{
						Offset: 0,
						Bytes:  solana.Base58(mint.Bytes()),
					},
				},
			},
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to scan token accounts of %s", mint)
	}

	holders := make([]*TokenAccount, 0, len(result))
	for _, keyed := range result {
		account, err := ParseTokenAccount(keyed.Pubkey, keyed.Account.Data.GetBinary())
		if err != nil {
			// One malformed account must not sink the whole scan
			log.WithError(err).WithField("Account", keyed.Pubkey).Warn("Skipping unparseable token account")
			continue
		}
		holders = append(holders, account)
	}

	log.WithFields(log.Fields{
		"Mint": mint, "Accounts": len(holders),
	}).Debug("Scanned token accounts")

	return holders, nil
}
