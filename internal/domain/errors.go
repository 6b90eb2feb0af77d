package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidActivityType    = errors.New("invalid activity type")
	ErrAccountSuspended       = errors.New("account is suspended")
	ErrConcurrentModification = errors.New("concurrent score modification")
	ErrRewardNotFound         = errors.New("reward not found")
	ErrRewardAlreadyClaimed   = errors.New("reward already claimed")
	ErrRewardExpired          = errors.New("reward has expired")
	ErrSnapshotNotFound       = errors.New("leaderboard snapshot not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInternalError          = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrRewardNotFound) || errors.Is(err, ErrSnapshotNotFound)
}
