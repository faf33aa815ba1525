package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

// FindNeighbor returns the first listing in pool, owned by someone other than
// the candidate's owner, priced within gap on the competitive side of the
// candidate. For SELL the neighbor must be at or above the candidate, for BUY
// at or below.
func FindNeighbor(candidate p2p.Listing, pool []p2p.Listing, gap decimal.Decimal, side p2p.Side) (p2p.Listing, bool) {
	price := candidate.PriceDecimal()
	owner := candidate.Owner()

	for _, neighbor := range pool {
		if neighbor.Owner() == owner {
			continue
		}
		np := neighbor.PriceDecimal()

		var diff decimal.Decimal
		if side == p2p.SideSell {
			diff = np.Sub(price)
		} else {
			diff = price.Sub(np)
		}
		if diff.IsNegative() {
			continue
		}
		if diff.LessThanOrEqual(gap) {
			return neighbor, true
		}
	}
	return p2p.Listing{}, false
}

// HasQualifyingNeighbor reports whether FindNeighbor finds a match.
func HasQualifyingNeighbor(candidate p2p.Listing, pool []p2p.Listing, gap decimal.Decimal, side p2p.Side) bool {
	_, ok := FindNeighbor(candidate, pool, gap, side)
	return ok
}

// firstWithNeighbor returns the first candidate that has a qualifying neighbor in pool.
func firstWithNeighbor(candidates, pool []p2p.Listing, gap decimal.Decimal, side p2p.Side) (p2p.Listing, p2p.Listing, bool) {
	for _, c := range candidates {
		if n, ok := FindNeighbor(c, pool, gap, side); ok {
			return c, n, true
		}
	}
	return p2p.Listing{}, p2p.Listing{}, false
}
