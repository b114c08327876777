package util

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// ParseDecimalAmount converts a human-readable decimal amount (as the venue
// API reports reserves, e.g. "12345.678901") into raw integer units for a
// mint with the given decimals. The conversion is exact string arithmetic;
// excess fractional digits are truncated. Floats never enter amount math.
func ParseDecimalAmount(s string, decimals uint8) (uint64, error) {

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	if strings.HasPrefix(s, "-") {
		return 0, errors.Errorf("negative amount '%s'", s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}

	if whole == "" {
		whole = "0"
	}

	// Scale the fraction to exactly 'decimals' digits
	if len(frac) > int(decimals) {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	raw, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return 0, errors.Errorf("unparseable amount '%s'", s)
	}

	if !raw.IsUint64() {
		return 0, errors.Errorf("amount '%s' overflows uint64", s)
	}

	return raw.Uint64(), nil
}

// FormatAmount renders raw integer units as a decimal string for logs and
// notifications. Trailing fractional zeros are kept out of messages.
func FormatAmount(raw uint64, decimals uint8) string {

	s := new(big.Int).SetUint64(raw).String()

	if decimals == 0 {
		return s
	}

	if len(s) <= int(decimals) {
		s = strings.Repeat("0", int(decimals)-len(s)+1) + s
	}

	cut := len(s) - int(decimals)
	out := s[:cut] + "." + s[cut:]
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")

	return out
}

// FormatSol renders lamports as a SOL amount.
func FormatSol(lamports uint64) string {
	return FormatAmount(lamports, 9)
}
