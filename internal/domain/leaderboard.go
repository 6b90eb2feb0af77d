package domain

import (
	"time"
)

// WindowType identifies the fixed aggregation period of a leaderboard.
type WindowType string

const (
	WindowDaily   WindowType = "DAILY"
	WindowWeekly  WindowType = "WEEKLY"
	WindowMonthly WindowType = "MONTHLY"
)

// Valid reports whether w is a known window type.
func (w WindowType) Valid() bool {
	switch w {
	case WindowDaily, WindowWeekly, WindowMonthly:
		return true
	}
	return false
}

// WindowTypes lists every window type.
func WindowTypes() []WindowType {
	return []WindowType{WindowDaily, WindowWeekly, WindowMonthly}
}

// Range returns the [start,end) bounds of the window containing t. Daily
// windows are calendar days, weekly windows run Monday through Sunday and
// monthly windows are calendar months, all in t's location.
func (w WindowType) Range(t time.Time) (time.Time, time.Time) {
	switch w {
	case WindowWeekly:
		day := t
		for day.Weekday() != time.Monday {
			day = day.AddDate(0, 0, -1)
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 0, 7)
	case WindowMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 0, 1)
	}
}

// LeaderboardEntry is one row of a materialized leaderboard snapshot. Score
// is the window-scoped delta sum, not the lifetime ledger score.
type LeaderboardEntry struct {
	WindowType   WindowType `json:"window_type"`
	WindowStart  time.Time  `json:"window_start"`
	WindowEnd    time.Time  `json:"window_end"`
	UserID       string     `json:"user_id"`
	Rank         int        `json:"rank"`
	Score        int64      `json:"score"`
	LikeCount    int64      `json:"like_count"`
	SaveCount    int64      `json:"save_count"`
	CommentCount int64      `json:"comment_count"`
}

// WindowAggregate is one user's raw activity totals within a window, the
// input the leaderboard builder ranks.
type WindowAggregate struct {
	UserID       string
	Score        int64
	LikeCount    int64
	SaveCount    int64
	CommentCount int64
}
