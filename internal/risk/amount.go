package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAmountDecimals is the precision of one wei.
	MaxAmountDecimals = 18
	// maxWeiDigits is the length of the largest uint256.
	maxWeiDigits    = 78
	maxWeiBits      = 256
	maxAmountLength = 100

	// MaxDelayHours caps any timelock, one year.
	MaxDelayHours = 8760
)

// ErrAmountOutOfRange is returned for amounts that cannot be expressed as a
// uint256 number of wei.
var ErrAmountOutOfRange = errors.New("amount out of range")

// ParseAmount parses a native amount. Exponent notation is accepted but the
// result must be a whole number of wei that fits in uint256, so later
// arithmetic never materialises huge coefficients.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxAmountLength {
		return decimal.Decimal{}, fmt.Errorf("%w: %d characters", ErrAmountOutOfRange, len(raw))
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// CheckAmount reports whether d is a whole number of wei within uint256. The
// exponent and digit count are checked before any coefficient is scaled.
func CheckAmount(d decimal.Decimal) error {
	if d.IsZero() {
		return nil
	}
	exp := int64(d.Exponent())
	if exp < -(MaxAmountDecimals + maxAmountLength) {
		return fmt.Errorf("%w: more than %d decimal places", ErrAmountOutOfRange, MaxAmountDecimals)
	}
	if exp > maxWeiDigits || int64(d.NumDigits())+exp+MaxAmountDecimals > maxWeiDigits {
		return fmt.Errorf("%w: exceeds uint256 wei", ErrAmountOutOfRange)
	}
	wei := d.Abs().Shift(MaxAmountDecimals)
	if !wei.IsInteger() {
		return fmt.Errorf("%w: more than %d decimal places", ErrAmountOutOfRange, MaxAmountDecimals)
	}
	if wei.BigInt().BitLen() > maxWeiBits {
		return fmt.Errorf("%w: exceeds uint256 wei", ErrAmountOutOfRange)
	}
	return nil
}
