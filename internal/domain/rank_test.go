package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRankTableValidation(t *testing.T) {
	_, err := NewRankTable(nil)
	assert.Error(t, err)

	_, err = NewRankTable([]TierBoundary{
		{Tier: RankBronze, MinScore: 0},
		{Tier: RankBronze, MinScore: 100},
	})
	assert.Error(t, err, "duplicate tier must be rejected")

	_, err = NewRankTable([]TierBoundary{
		{Tier: RankBronze, MinScore: 0},
		{Tier: RankSilver, MinScore: 0},
	})
	assert.Error(t, err, "duplicate min score must be rejected")
}

func TestClassifyDefaultBoundaries(t *testing.T) {
	table := MustDefaultRankTable()

	tests := []struct {
		score int64
		want  RankTier
	}{
		{-500, RankBronze},
		{0, RankBronze},
		{1200, RankBronze},
		{1201, RankSilver},
		{1500, RankSilver},
		{1501, RankGold},
		{1800, RankGold},
		{1801, RankPlatinum},
		{2100, RankPlatinum},
		{2101, RankDiamond},
		{1_000_000, RankDiamond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Classify(tt.score), "score %d", tt.score)
	}
}

// Every score belongs to exactly one tier: classification at each boundary and
// one step either side never skips or overlaps.
func TestClassifyPartitionsScoreLine(t *testing.T) {
	table := MustDefaultRankTable()
	tiers := table.Tiers()
	require.Len(t, tiers, 5)

	boundaries := DefaultTierBoundaries()
	for i := 1; i < len(boundaries); i++ {
		min := boundaries[i].MinScore
		below := table.Classify(min - 1)
		at := table.Classify(min)
		assert.Equal(t, boundaries[i-1].Tier, below)
		assert.Equal(t, boundaries[i].Tier, at)
	}
}

func TestClassifyUnorderedBoundaries(t *testing.T) {
	table, err := NewRankTable([]TierBoundary{
		{Tier: RankGold, MinScore: 200},
		{Tier: RankBronze, MinScore: 0},
		{Tier: RankSilver, MinScore: 100},
	})
	require.NoError(t, err)

	assert.Equal(t, RankBronze, table.Classify(99))
	assert.Equal(t, RankSilver, table.Classify(100))
	assert.Equal(t, RankGold, table.Classify(200))
}

func TestCompare(t *testing.T) {
	table := MustDefaultRankTable()

	assert.Positive(t, table.Compare(RankDiamond, RankBronze))
	assert.Negative(t, table.Compare(RankSilver, RankGold))
	assert.Zero(t, table.Compare(RankGold, RankGold))
	assert.Negative(t, table.Compare(RankTier("UNKNOWN"), RankBronze))
}
