package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityTypeValid(t *testing.T) {
	for _, at := range ActivityTypes() {
		assert.True(t, at.Valid(), "%s", at)
	}
	assert.False(t, ActivityType("UPVOTE").Valid())
	assert.False(t, ActivityType("").Valid())
	assert.False(t, ActivityType("like").Valid(), "variants are case sensitive")
}

func TestActivityTypeAdminSourced(t *testing.T) {
	admin := map[ActivityType]bool{
		ActivityAdminAdjustment:   true,
		ActivityAdminSuspension:   true,
		ActivityAdminUnsuspension: true,
	}
	for _, at := range ActivityTypes() {
		assert.Equal(t, admin[at], at.AdminSourced(), "%s", at)
	}
}

func TestActivityTypeDefaultWeight(t *testing.T) {
	weights := map[ActivityType]int64{
		ActivityLike:              2,
		ActivitySave:              3,
		ActivityComment:           1,
		ActivityReport:            -5,
		ActivityAdminAdjustment:   0,
		ActivityAdminSuspension:   0,
		ActivityAdminUnsuspension: 0,
	}
	for _, at := range ActivityTypes() {
		assert.Equal(t, weights[at], at.DefaultWeight(), "%s", at)
	}
	assert.Zero(t, ActivityType("UNKNOWN").DefaultWeight())
}
