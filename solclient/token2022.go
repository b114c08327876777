package solclient

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Token-2022 account layouts. Both mints and token accounts occupy the
// classic 165-byte footprint, followed by a one-byte account type
// discriminator and a TLV region holding extensions.
const (
	tokenAccountBaseLen = 165
	mintBaseLen         = 82

	accountTypeMint    = 1
	accountTypeAccount = 2

	// Extension identifiers in the TLV region
	extTransferFeeConfig = 1
	extTransferFeeAmount = 2

	transferFeeConfigLen = 108
	transferFeeAmountLen = 8
)

// TransferFee is one entry of the mint's two-epoch fee schedule.
type TransferFee struct {
	Epoch  uint64
	MaxFee uint64
	Bps    uint16
}

// Calculate returns the fee withheld from a transfer of amount, rounded up
// and capped at the schedule's maximum.
func (f TransferFee) Calculate(amount uint64) uint64 {

	if f.Bps == 0 || amount == 0 {
		return 0
	}

	fee := new(big.Int).Mul(new(big.Int).SetUint64(amount), big.NewInt(int64(f.Bps)))
	fee.Add(fee, big.NewInt(9999))
	fee.Div(fee, big.NewInt(10000))

	if !fee.IsUint64() || fee.Uint64() > f.MaxFee {
		return f.MaxFee
	}

	return fee.Uint64()
}

// TransferFeeConfig is the mint-level fee extension: who may withdraw
// withheld fees, what has been harvested into the mint so far, and the
// fee schedule across the epoch boundary.
type TransferFeeConfig struct {
	WithdrawWithheldAuthority solana.PublicKey
	WithheldAmount            uint64
	Older                     TransferFee
	Newer                     TransferFee
}

// FeeAt picks the schedule entry active at the given chain epoch.
func (c *TransferFeeConfig) FeeAt(epoch uint64) TransferFee {
	if epoch >= c.Newer.Epoch {
		return c.Newer
	}
	return c.Older
}

// MintInfo is the parsed state of a token-2022 mint.
type MintInfo struct {
	Address     solana.PublicKey
	Supply      uint64
	Decimals    uint8
	TransferFee *TransferFeeConfig
}

// TokenAccount is a parsed token-2022 holder account.
type TokenAccount struct {
	Address  solana.PublicKey
	Mint     solana.PublicKey
	Owner    solana.PublicKey
	Amount   uint64
	Frozen   bool
	Withheld uint64
}

// ParseMint decodes a token-2022 mint account, including its transfer-fee
// extension when present.
func ParseMint(address solana.PublicKey, data []byte) (*MintInfo, error) {

	if len(data) < mintBaseLen {
		return nil, errors.Errorf("Mint account %s is %d bytes, want at least %d", address, len(data), mintBaseLen)
	}

	info := &MintInfo{
		Address:  address,
		Supply:   binary.LittleEndian.Uint64(data[36:44]),
		Decimals: data[44],
	}

	if data[45] != 1 {
		return nil, errors.Errorf("Mint account %s is not initialized", address)
	}

	exts, err := parseExtensions(address, data, accountTypeMint)
	if err != nil {
		return nil, err
	}

	if raw, ok := exts[extTransferFeeConfig]; ok {
		if len(raw) != transferFeeConfigLen {
			return nil, errors.Errorf("Transfer fee config on %s is %d bytes, want %d", address, len(raw), transferFeeConfigLen)
		}
		info.TransferFee = &TransferFeeConfig{
			WithdrawWithheldAuthority: solana.PublicKeyFromBytes(raw[32:64]),
			WithheldAmount:            binary.LittleEndian.Uint64(raw[64:72]),
			Older: TransferFee{
				Epoch:  binary.LittleEndian.Uint64(raw[72:80]),
				MaxFee: binary.LittleEndian.Uint64(raw[80:88]),
				Bps:    binary.LittleEndian.Uint16(raw[88:90]),
			},
			Newer: TransferFee{
				Epoch:  binary.LittleEndian.Uint64(raw[90:98]),
				MaxFee: binary.LittleEndian.Uint64(raw[98:106]),
				Bps:    binary.LittleEndian.Uint16(raw[106:108]),
			},
		}
	}

	return info, nil
}

// ParseTokenAccount decodes a token-2022 holder account, including the
// withheld-fee extension when present.
func ParseTokenAccount(address solana.PublicKey, data []byte) (*TokenAccount, error) {

	if len(data) < tokenAccountBaseLen {
		return nil, errors.Errorf("Token account %s is %d bytes, want at least %d", address, len(data), tokenAccountBaseLen)
	}

	account := &TokenAccount{
		Address: address,
		Mint:    solana.PublicKeyFromBytes(data[0:32]),
		Owner:   solana.PublicKeyFromBytes(data[32:64]),
		Amount:  binary.LittleEndian.Uint64(data[64:72]),
		Frozen:  data[108] == 2,
	}

	exts, err := parseExtensions(address, data, accountTypeAccount)
	if err != nil {
		return nil, err
	}

	if raw, ok := exts[extTransferFeeAmount]; ok {
		if len(raw) != transferFeeAmountLen {
			return nil, errors.Errorf("Withheld amount on %s is %d bytes, want %d", address, len(raw), transferFeeAmountLen)
		}
		account.Withheld = binary.LittleEndian.Uint64(raw)
	}

	return account, nil
}

// parseExtensions walks the TLV region after the base account. Returns an
// empty map for legacy-sized accounts with no extension area.
func parseExtensions(address solana.PublicKey, data []byte, wantType byte) (map[uint16][]byte, error) {

	exts := make(map[uint16][]byte)

	if len(data) <= tokenAccountBaseLen {
		return exts, nil
	}

	if data[tokenAccountBaseLen] != wantType {
		return nil, errors.Errorf("Account %s has type %d, want %d", address, data[tokenAccountBaseLen], wantType)
	}

	off := tokenAccountBaseLen + 1
	for off+4 <= len(data) {
		extType := binary.LittleEndian.Uint16(data[off : off+2])
		extLen := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		off += 4

		// Type 0 marks padding at the end of the region
		if extType == 0 {
			break
		}

		if off+extLen > len(data) {
			return nil, errors.Errorf("Extension %d on %s overruns account data", extType, address)
		}

		exts[extType] = data[off : off+extLen]
		off += extLen
	}

	return exts, nil
}

// GetMintInfo fetches and parses the mint.
func (c *Client) GetMintInfo(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {

	data, err := c.GetAccountData(ctx, mint)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.Errorf("Mint %s does not exist", mint)
	}

	return ParseMint(mint, data)
}
