// Package loyalty classifies customers into tiers from their lifetime points
// and computes the points a sale earns.
package loyalty

// PointsPerDollar is the accrual rate. Only whole dollars earn points.
const PointsPerDollar = 1

// Tier is one rung of the loyalty ladder.
type Tier struct {
	Name            string  `json:"name"`
	MinPoints       int64   `json:"minPoints"`
	DiscountPercent float64 `json:"discountPercent"`
}

// Table is a tier ladder sorted ascending by MinPoints. The first tier must
// start at zero.
type Table []Tier

// DefaultTiers is the ladder every vendor uses today.
var DefaultTiers = Table{
	{Name: "Bronze", MinPoints: 0, DiscountPercent: 0},
	{Name: "Silver", MinPoints: 500, DiscountPercent: 5},
	{Name: "Gold", MinPoints: 1000, DiscountPercent: 10},
	{Name: "Platinum", MinPoints: 2500, DiscountPercent: 15},
}

// Classify returns the highest tier whose minimum is at or below lifetime,
// together with its 1-based level.
func (t Table) Classify(lifetime int64) (Tier, int) {
	if len(t) == 0 {
		return Tier{}, 0
	}
	idx := 0
	for i, tier := range t {
		if tier.MinPoints <= lifetime {
			idx = i
		}
	}
	return t[idx], idx + 1
}

// Lookup finds a tier by name.
func (t Table) Lookup(name string) (Tier, bool) {
	for _, tier := range t {
		if tier.Name == name {
			return tier, true
		}
	}
	return Tier{}, false
}

// PointsEarned truncates the sale total to whole dollars. A negative total
// earns nothing.
func PointsEarned(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return totalCents * PointsPerDollar / 100
}

// Accrual is the outcome of crediting one sale to an account.
type Accrual struct {
	PointsEarned   int64
	PointsBalance  int64
	LifetimePoints int64
	Tier           Tier
	TierLevel      int
	PreviousTier   string
	TierChanged    bool
}

// Accrue credits a sale against the current balances and reclassifies.
func (t Table) Accrue(balance, lifetime int64, currentTier string, totalCents int64) Accrual {
	earned := PointsEarned(totalCents)
	newLifetime := lifetime + earned
	tier, level := t.Classify(newLifetime)

	return Accrual{
		PointsEarned:   earned,
		PointsBalance:  balance + earned,
		LifetimePoints: newLifetime,
		Tier:           tier,
		TierLevel:      level,
		PreviousTier:   currentTier,
		TierChanged:    tier.Name != currentTier,
	}
}
