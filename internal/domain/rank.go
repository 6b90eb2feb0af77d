package domain

import (
	"fmt"
	"math"
	"sort"
)

// RankTier is one of the ordered reputation bands derived purely from score.
type RankTier string

const (
	RankBronze   RankTier = "BRONZE"
	RankSilver   RankTier = "SILVER"
	RankGold     RankTier = "GOLD"
	RankPlatinum RankTier = "PLATINUM"
	RankDiamond  RankTier = "DIAMOND"
)

// RankTiers lists the tiers in ascending order.
func RankTiers() []RankTier {
	return []RankTier{RankBronze, RankSilver, RankGold, RankPlatinum, RankDiamond}
}

// TierBoundary names a tier and the lowest score that reaches it.
type TierBoundary struct {
	Tier     RankTier `yaml:"tier" json:"tier"`
	MinScore int64    `yaml:"min_score" json:"min_score"`
}

// tierRange is an inclusive [min,max] score range owned by one tier.
type tierRange struct {
	tier RankTier
	min  int64
	max  int64
}

// RankTable classifies scores into tiers. The ranges partition the integer
// line: the lowest tier is unbounded below, the highest unbounded above, and
// each tier's max is the next tier's min minus one.
type RankTable struct {
	ranges []tierRange
}

// NewRankTable builds a RankTable from ascending boundaries. The first
// boundary's MinScore is ignored (the bottom tier absorbs every lower score,
// negatives included).
func NewRankTable(boundaries []TierBoundary) (*RankTable, error) {
	if len(boundaries) == 0 {
		return nil, fmt.Errorf("rank table requires at least one tier")
	}

	sorted := make([]TierBoundary, len(boundaries))
	copy(sorted, boundaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })

	seen := make(map[RankTier]bool, len(sorted))
	for i := 1; i < len(sorted); i++ {
		if sorted[i].MinScore == sorted[i-1].MinScore {
			return nil, fmt.Errorf("rank tiers %s and %s share min score %d", sorted[i-1].Tier, sorted[i].Tier, sorted[i].MinScore)
		}
	}

	ranges := make([]tierRange, len(sorted))
	for i, b := range sorted {
		if seen[b.Tier] {
			return nil, fmt.Errorf("duplicate rank tier %s", b.Tier)
		}
		seen[b.Tier] = true

		min := b.MinScore
		if i == 0 {
			min = math.MinInt64
		}
		max := int64(math.MaxInt64)
		if i < len(sorted)-1 {
			max = sorted[i+1].MinScore - 1
		}
		ranges[i] = tierRange{tier: b.Tier, min: min, max: max}
	}

	return &RankTable{ranges: ranges}, nil
}

// DefaultTierBoundaries returns the standard five-tier ladder.
func DefaultTierBoundaries() []TierBoundary {
	return []TierBoundary{
		{Tier: RankBronze, MinScore: 0},
		{Tier: RankSilver, MinScore: 1201},
		{Tier: RankGold, MinScore: 1501},
		{Tier: RankPlatinum, MinScore: 1801},
		{Tier: RankDiamond, MinScore: 2101},
	}
}

// MustDefaultRankTable builds the default table; the defaults are statically
// valid so construction cannot fail.
func MustDefaultRankTable() *RankTable {
	t, err := NewRankTable(DefaultTierBoundaries())
	if err != nil {
		panic(err)
	}
	return t
}

// Classify returns the single tier whose range contains score. The bottom
// tier is the fallback; it is unreachable given total range coverage.
func (t *RankTable) Classify(score int64) RankTier {
	lo, hi := 0, len(t.ranges)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		r := t.ranges[mid]
		switch {
		case score < r.min:
			hi = mid - 1
		case score > r.max:
			lo = mid + 1
		default:
			return r.tier
		}
	}
	return t.ranges[0].tier
}

// Tiers returns the tiers in ascending order.
func (t *RankTable) Tiers() []RankTier {
	tiers := make([]RankTier, len(t.ranges))
	for i, r := range t.ranges {
		tiers[i] = r.tier
	}
	return tiers
}

// Compare returns a negative value if a ranks below b, zero if equal, and a
// positive value if a ranks above b. Unknown tiers compare below known ones.
func (t *RankTable) Compare(a, b RankTier) int {
	return t.ordinal(a) - t.ordinal(b)
}

func (t *RankTable) ordinal(tier RankTier) int {
	for i, r := range t.ranges {
		if r.tier == tier {
			return i
		}
	}
	return -1
}
