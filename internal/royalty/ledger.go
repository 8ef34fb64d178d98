// internal/royalty/ledger.go
package royalty

import (
	"errors"
	"fmt"
	"math"
)

// TotalBasisPoints is 100.00%.
const TotalBasisPoints int64 = 10000

// ErrInvariant marks every royalty split arithmetic violation.
var ErrInvariant = errors.New("royalty split invariant violated")

// Split is one collaborator's percentage of the distributable amount.
// Index 0 of a split list is always the primary creator.
type Split struct {
	Identity    string `json:"identity" validate:"required,identity"`
	BasisPoints int64  `json:"basis_points" validate:"bps"`
}

// Share is the amount owed to one collaborator for a single sale.
type Share struct {
	Identity    string `json:"identity"`
	BasisPoints int64  `json:"basis_points"`
	Amount      int64  `json:"amount"`
}

// ValidateSplit checks that splits is non-empty, every percentage is positive,
// identities are unique and the total is exactly TotalBasisPoints. When primary
// is set, splits[0] must belong to it.
func ValidateSplit(splits []Split, primary string) error {
	if len(splits) == 0 {
		return fmt.Errorf("%w: split must contain at least the primary creator", ErrInvariant)
	}

	if primary != "" && splits[0].Identity != primary {
		return fmt.Errorf("%w: entry 0 must be the primary creator %q, got %q", ErrInvariant, primary, splits[0].Identity)
	}

	seen := make(map[string]struct{}, len(splits))
	var total int64
	for i, split := range splits {
		if split.Identity == "" {
			return fmt.Errorf("%w: entry %d has no identity", ErrInvariant, i)
		}
		if _, dup := seen[split.Identity]; dup {
			return fmt.Errorf("%w: identity %q appears more than once", ErrInvariant, split.Identity)
		}
		seen[split.Identity] = struct{}{}

		if split.BasisPoints <= 0 || split.BasisPoints > TotalBasisPoints {
			return fmt.Errorf("%w: entry %d percentage %d outside 1..%d", ErrInvariant, i, split.BasisPoints, TotalBasisPoints)
		}
		total += split.BasisPoints
	}

	if total != TotalBasisPoints {
		return fmt.Errorf("%w: percentages sum to %d, want %d", ErrInvariant, total, TotalBasisPoints)
	}

	return nil
}

// Sum returns the total basis points of splits.
func Sum(splits []Split) int64 {
	var total int64
	for _, split := range splits {
		total += split.BasisPoints
	}
	return total
}

// PlatformFee returns floor(salePrice * feeBps / 10000).
func PlatformFee(salePrice, feeBps int64) int64 {
	if salePrice <= 0 || feeBps <= 0 {
		return 0
	}
	if feeBps >= TotalBasisPoints {
		return salePrice
	}
	return mulDiv(salePrice, feeBps)
}

// ComputeDistribution splits salePrice-fee across splits. Each share is
// floored and the remainder goes to index 0, so the result always sums to
// exactly salePrice-fee.
func ComputeDistribution(salePrice, fee int64, splits []Split) ([]Share, error) {
	if salePrice < 0 || fee < 0 {
		return nil, fmt.Errorf("%w: negative amounts (price %d, fee %d)", ErrInvariant, salePrice, fee)
	}
	if fee > salePrice {
		return nil, fmt.Errorf("%w: fee %d exceeds sale price %d", ErrInvariant, fee, salePrice)
	}
	if err := ValidateSplit(splits, ""); err != nil {
		return nil, err
	}

	distributable := salePrice - fee
	shares := make([]Share, len(splits))
	var allocated int64
	for i, split := range splits {
		amount := mulDiv(distributable, split.BasisPoints)
		shares[i] = Share{
			Identity:    split.Identity,
			BasisPoints: split.BasisPoints,
			Amount:      amount,
		}
		allocated += amount
	}
	shares[0].Amount += distributable - allocated

	return shares, nil
}

// mulDiv computes floor(amount * bps / 10000) for amount >= 0 and
// 0 <= bps <= 10000 without overflowing int64.
func mulDiv(amount, bps int64) int64 {
	if amount <= math.MaxInt64/TotalBasisPoints {
		return amount * bps / TotalBasisPoints
	}
	whole := amount / TotalBasisPoints
	rest := amount % TotalBasisPoints
	return whole*bps + rest*bps/TotalBasisPoints
}
