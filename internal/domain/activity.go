package domain

import "time"

// ActivityType identifies a scoring-relevant user action. Each variant
// carries a signed default weight; the effective weight table is supplied
// through configuration.
type ActivityType string

const (
	ActivityLike              ActivityType = "LIKE"
	ActivitySave              ActivityType = "SAVE"
	ActivityComment           ActivityType = "COMMENT"
	ActivityReport            ActivityType = "REPORT"
	ActivityAdminAdjustment   ActivityType = "ADMIN_ADJUSTMENT"
	ActivityAdminSuspension   ActivityType = "ADMIN_SUSPENSION"
	ActivityAdminUnsuspension ActivityType = "ADMIN_UNSUSPENSION"
)

// ActivityTypes lists every known variant. Extend this list and the switches
// below together when adding a variant.
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityLike,
		ActivitySave,
		ActivityComment,
		ActivityReport,
		ActivityAdminAdjustment,
		ActivityAdminSuspension,
		ActivityAdminUnsuspension,
	}
}

// Valid reports whether t is a known variant. The switch is exhaustive so a
// new variant is a compile-time visible change here.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityLike, ActivitySave, ActivityComment, ActivityReport,
		ActivityAdminAdjustment, ActivityAdminSuspension, ActivityAdminUnsuspension:
		return true
	}
	return false
}

// AdminSourced reports whether t originates from an administrative action.
// Admin-sourced deltas bypass the suspension check and do not reset the
// inactivity clock.
func (t ActivityType) AdminSourced() bool {
	switch t {
	case ActivityAdminAdjustment, ActivityAdminSuspension, ActivityAdminUnsuspension:
		return true
	}
	return false
}

// DefaultWeight returns the built-in score weight for t.
func (t ActivityType) DefaultWeight() int64 {
	switch t {
	case ActivityLike:
		return 2
	case ActivitySave:
		return 3
	case ActivityComment:
		return 1
	case ActivityReport:
		return -5
	case ActivityAdminAdjustment, ActivityAdminSuspension, ActivityAdminUnsuspension:
		return 0
	}
	return 0
}

// Activity is an immutable, timestamped record of a scoring-relevant action.
// ScoreDelta captures the weight actually applied at write time so historical
// reports stay stable if weights change later.
type Activity struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Type          ActivityType `json:"activity_type"`
	ScoreDelta    int64        `json:"score_delta"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	ReferenceType string       `json:"reference_type,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ActivitySubmission is a request to record an activity event. ActivityID is
// optional; when supplied it acts as an idempotency key so replaying the same
// event never double-applies its score delta.
type ActivitySubmission struct {
	ActivityID    string       `json:"activity_id,omitempty"`
	UserID        string       `json:"user_id"`
	Type          ActivityType `json:"activity_type"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	ReferenceType string       `json:"reference_type,omitempty"`
}

// BatchActivitySubmission represents multiple activity submissions.
type BatchActivitySubmission struct {
	Activities []ActivitySubmission `json:"activities"`
}

// AppendOutcome describes the result of an activity log append.
type AppendOutcome int

const (
	// AppendInserted means the activity is new and its delta has not been
	// applied to the ledger yet.
	AppendInserted AppendOutcome = iota
	// AppendDuplicateApplied means the activity was logged earlier and its
	// delta already reached the ledger; the replay is a no-op.
	AppendDuplicateApplied
	// AppendDuplicatePending means the activity was logged earlier but a
	// previous attempt failed before the ledger write; the delta still needs
	// applying.
	AppendDuplicatePending
)

// ActivityPattern is a burst of same-type activity by one user within a
// window, returned by the abnormal-pattern detector.
type ActivityPattern struct {
	UserID    string       `json:"user_id"`
	Type      ActivityType `json:"activity_type"`
	Count     int64        `json:"count"`
	FirstSeen time.Time    `json:"first_seen"`
	LastSeen  time.Time    `json:"last_seen"`
}
