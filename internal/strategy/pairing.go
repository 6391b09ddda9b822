package strategy

import "github.com/alanyoungcy/liquidbot/internal/domain"

// LargestPairing selects the largest borrow and the largest collateral by
// USD value. Ties go to the first position in list order.
type LargestPairing struct{}

// Name returns the pairing identifier.
func (LargestPairing) Name() string { return "largest" }

// Select implements Pairing.
func (LargestPairing) Select(borrows []domain.BorrowPosition, collaterals []domain.CollateralPosition) (domain.BorrowPosition, domain.CollateralPosition) {
	b := borrows[0]
	for _, p := range borrows[1:] {
		if p.ValueUSD > b.ValueUSD {
			b = p
		}
	}
	c := collaterals[0]
	for _, p := range collaterals[1:] {
		if p.ValueUSD > c.ValueUSD {
			c = p
		}
	}
	return b, c
}

// SameAssetAvoidingPairing behaves like LargestPairing but prefers a
// collateral in a different market from the chosen borrow, falling back to
// the largest collateral when every collateral shares the borrow's market.
type SameAssetAvoidingPairing struct{}

// Name returns the pairing identifier.
func (SameAssetAvoidingPairing) Name() string { return "cross_asset" }

// Select implements Pairing.
func (SameAssetAvoidingPairing) Select(borrows []domain.BorrowPosition, collaterals []domain.CollateralPosition) (domain.BorrowPosition, domain.CollateralPosition) {
	b, c := LargestPairing{}.Select(borrows, collaterals)
	if c.Market.Market != b.Market.Market {
		return b, c
	}
	found := false
	var best domain.CollateralPosition
	for _, p := range collaterals {
		if p.Market.Market == b.Market.Market {
			continue
		}
		if !found || p.ValueUSD > best.ValueUSD {
			best, found = p, true
		}
	}
	if found {
		return b, best
	}
	return b, c
}
