package raydium

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"nukebot/util"
)

// PoolKind selects the venue program shape a swap must be encoded for.
type PoolKind int

const (
	KindStandard PoolKind = iota
	KindCpmm
	KindClmm
)

func (k PoolKind) String() string {
	switch k {
	case KindStandard:
		return "Standard"
	case KindCpmm:
		return "CPMM"
	case KindClmm:
		return "CLMM"
	}
	return "Unknown"
}

// PoolMint describes one side of the pool.
type PoolMint struct {
	Address        solana.PublicKey
	Program        solana.PublicKey
	Decimals       uint8
	TransferFeeBps uint16
	MaxTransferFee uint64
}

// PoolInfo is the venue API's pool descriptor, validated and decoded into
// chain types.
type PoolInfo struct {
	ID      solana.PublicKey
	Kind    PoolKind
	Program solana.PublicKey

	MintA PoolMint
	MintB PoolMint

	VaultA solana.PublicKey
	VaultB solana.PublicKey

	// Reserves in raw units; only valid when HasReserves is set. Absent
	// reserves are read live from the vaults instead.
	ReserveA    uint64
	ReserveB    uint64
	HasReserves bool
}

// SellsMintA reports swap direction: true when the mint being sold is side
// A of the pool.
func (p *PoolInfo) SellsMintA(sellMint solana.PublicKey) (bool, error) {
	switch sellMint {
	case p.MintA.Address:
		return true, nil
	case p.MintB.Address:
		return false, nil
	}
	return false, errors.Errorf("Mint %s is not traded by pool %s", sellMint, p.ID)
}

func resolveKind(program solana.PublicKey) (PoolKind, error) {
	switch program {
	case util.RaydiumAmmV4Program:
		return KindStandard, nil
	case util.RaydiumCpmmProgram:
		return KindCpmm, nil
	case util.RaydiumClmmProgram:
		return KindClmm, nil
	}
	return 0, errors.Errorf("Pool program %s is not a supported venue shape", program)
}

// parsePoolInfo validates the wire entry. Every field the swap path relies
// on must be present; only the type tag and reserves may be absent.
func parsePoolInfo(entry *poolInfoEntry) (*PoolInfo, error) {

	program, err := requiredKey("programId", entry.ProgramID)
	if err != nil {
		return nil, err
	}
	id, err := requiredKey("id", entry.ID)
	if err != nil {
		return nil, err
	}
	vaultA, err := requiredKey("vault.A", entry.Vault.A)
	if err != nil {
		return nil, err
	}
	vaultB, err := requiredKey("vault.B", entry.Vault.B)
	if err != nil {
		return nil, err
	}

	mintA, err := parsePoolMint("mintA", &entry.MintA)
	if err != nil {
		return nil, err
	}
	mintB, err := parsePoolMint("mintB", &entry.MintB)
	if err != nil {
		return nil, err
	}

	kind, err := resolveKind(program)
	if err != nil {
		return nil, err
	}

	// The type tag is advisory; an omitted one means the common shape
	poolType := entry.Type
	if poolType == "" {
		poolType = "Standard"
	}

	pool := &PoolInfo{
		ID:      id,
		Kind:    kind,
		Program: program,
		MintA:   *mintA,
		MintB:   *mintB,
		VaultA:  vaultA,
		VaultB:  vaultB,
	}

	// Reserves are a convenience; fall back to live vault reads when the
	// API omits them or reports them unparseably
	if entry.MintAmountA != "" && entry.MintAmountB != "" {
		reserveA, errA := util.ParseDecimalAmount(entry.MintAmountA.String(), mintA.Decimals)
		reserveB, errB := util.ParseDecimalAmount(entry.MintAmountB.String(), mintB.Decimals)
		if errA == nil && errB == nil {
			pool.ReserveA = reserveA
			pool.ReserveB = reserveB
			pool.HasReserves = true
		} else {
			log.WithFields(log.Fields{
				"AmountA": entry.MintAmountA, "AmountB": entry.MintAmountB,
			}).Debug("Ignoring unparseable API reserves; will read vaults")
		}
	}

	log.WithFields(log.Fields{
		"Pool": id, "Kind": kind.String(), "Type": poolType,
	}).Debug("Resolved pool descriptor")

	return pool, nil
}

func parsePoolMint(field string, desc *mintDescriptor) (*PoolMint, error) {

	address, err := requiredKey(field+".address", desc.Address)
	if err != nil {
		return nil, err
	}

	if desc.Decimals == nil {
		return nil, errors.Errorf("Venue API response missing required field '%s.decimals'", field)
	}

	mint := &PoolMint{
		Address:  address,
		Decimals: *desc.Decimals,
	}

	if desc.ProgramID != "" {
		program, err := solana.PublicKeyFromBase58(desc.ProgramID)
		if err != nil {
			return nil, errors.Wrapf(err, "Venue API returned bad key in '%s.programId'", field)
		}
		mint.Program = program
	}

	if fee := desc.Extensions.FeeConfig; fee != nil {
		mint.TransferFeeBps = fee.TransferFeeBasisPoints
		if fee.MaximumFee != "" {
			maxFee, err := strconv.ParseUint(fee.MaximumFee.String(), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Venue API returned bad '%s' fee maximum", field)
			}
			mint.MaxTransferFee = maxFee
		}
	}

	return mint, nil
}

func requiredKey(field, value string) (solana.PublicKey, error) {

	if value == "" {
		return solana.PublicKey{}, errors.Errorf("Venue API response missing required field '%s'", field)
	}

	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "Venue API returned bad key in '%s'", field)
	}

	return key, nil
}
