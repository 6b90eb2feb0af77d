package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reputation-engine/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// In-memory implementations of the storage ports, mirroring the Postgres and
// Redis behavior the services rely on: versioned optimistic writes, the
// applied flag marked together with the ledger write, and idempotent log
// appends.

type fakeLog struct {
	mu      sync.Mutex
	entries map[string]*logEntry
}

type logEntry struct {
	act     domain.Activity
	applied bool
}

func newFakeLog() *fakeLog {
	return &fakeLog{entries: make(map[string]*logEntry)}
}

func (l *fakeLog) AppendActivity(_ context.Context, a *domain.Activity) (domain.AppendOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[a.ID]; ok {
		if e.applied {
			return domain.AppendDuplicateApplied, nil
		}
		return domain.AppendDuplicatePending, nil
	}
	l.entries[a.ID] = &logEntry{act: *a}
	return domain.AppendInserted, nil
}

func (l *fakeLog) markApplied(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		e.applied = true
	}
}

func (l *fakeLog) UserDeltaSince(_ context.Context, userID string, since time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, e := range l.entries {
		if e.act.UserID == userID && !e.act.CreatedAt.Before(since) {
			sum += e.act.ScoreDelta
		}
	}
	return sum, nil
}

func (l *fakeLog) UserTypeCountsSince(_ context.Context, userID string, since time.Time) (map[domain.ActivityType]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[domain.ActivityType]int64)
	for _, e := range l.entries {
		if e.act.UserID == userID && !e.act.CreatedAt.Before(since) {
			counts[e.act.Type]++
		}
	}
	return counts, nil
}

func (l *fakeLog) AbnormalPatterns(_ context.Context, start, end time.Time, threshold int64) ([]domain.ActivityPattern, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	type key struct {
		user string
		typ  domain.ActivityType
	}
	groups := make(map[key]*domain.ActivityPattern)
	for _, e := range l.entries {
		if e.act.CreatedAt.Before(start) || e.act.CreatedAt.After(end) {
			continue
		}
		k := key{e.act.UserID, e.act.Type}
		p, ok := groups[k]
		if !ok {
			p = &domain.ActivityPattern{UserID: k.user, Type: k.typ, FirstSeen: e.act.CreatedAt, LastSeen: e.act.CreatedAt}
			groups[k] = p
		}
		p.Count++
		if e.act.CreatedAt.Before(p.FirstSeen) {
			p.FirstSeen = e.act.CreatedAt
		}
		if e.act.CreatedAt.After(p.LastSeen) {
			p.LastSeen = e.act.CreatedAt
		}
	}
	var out []domain.ActivityPattern
	for _, p := range groups {
		if p.Count > threshold {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLog) WindowAggregates(_ context.Context, start, end time.Time) ([]domain.WindowAggregate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byUser := make(map[string]*domain.WindowAggregate)
	for _, e := range l.entries {
		if e.act.CreatedAt.Before(start) || !e.act.CreatedAt.Before(end) {
			continue
		}
		a, ok := byUser[e.act.UserID]
		if !ok {
			a = &domain.WindowAggregate{UserID: e.act.UserID}
			byUser[e.act.UserID] = a
		}
		a.Score += e.act.ScoreDelta
		switch e.act.Type {
		case domain.ActivityLike:
			a.LikeCount++
		case domain.ActivitySave:
			a.SaveCount++
		case domain.ActivityComment:
			a.CommentCount++
		}
	}
	var out []domain.WindowAggregate
	for _, a := range byUser {
		out = append(out, *a)
	}
	return out, nil
}

func (l *fakeLog) TypeStatistics(_ context.Context, start, end time.Time) (map[domain.ActivityType]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := make(map[domain.ActivityType]int64)
	for _, e := range l.entries {
		if e.act.CreatedAt.Before(start) || e.act.CreatedAt.After(end) {
			continue
		}
		stats[e.act.Type]++
	}
	return stats, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	scores map[string]domain.UserScore
	log    *fakeLog

	// failUpdates makes the next N updates lose the optimistic race.
	failUpdates int
}

func newFakeLedger(log *fakeLog) *fakeLedger {
	return &fakeLedger{scores: make(map[string]domain.UserScore), log: log}
}

func (f *fakeLedger) GetUserScore(_ context.Context, userID string) (*domain.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scores[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := s
	return &copied, nil
}

func (f *fakeLedger) InsertUserScore(_ context.Context, s *domain.UserScore, activityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scores[s.UserID]; ok {
		return domain.ErrConcurrentModification
	}
	now := time.Now()
	s.Version = 1
	s.CreatedAt = now
	s.UpdatedAt = now
	f.scores[s.UserID] = *s
	if activityID != "" && f.log != nil {
		f.log.markApplied(activityID)
	}
	return nil
}

func (f *fakeLedger) UpdateUserScore(_ context.Context, s *domain.UserScore, activityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return domain.ErrConcurrentModification
	}
	existing, ok := f.scores[s.UserID]
	if !ok || existing.Version != s.Version {
		return domain.ErrConcurrentModification
	}
	s.Version++
	s.UpdatedAt = time.Now()
	f.scores[s.UserID] = *s
	if activityID != "" && f.log != nil {
		f.log.markApplied(activityID)
	}
	return nil
}

func (f *fakeLedger) TopUsers(_ context.Context, limit int) ([]domain.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.UserScore, 0, len(f.scores))
	for _, s := range f.scores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentScore != out[j].CurrentScore {
			return out[i].CurrentScore > out[j].CurrentScore
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) InactiveUsers(_ context.Context, cutoff time.Time, limit int) ([]domain.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UserScore
	for _, s := range f.scores {
		if !s.LastActivityAt.Before(cutoff) || s.AccountSuspended || s.CurrentScore <= 0 {
			continue
		}
		if !s.LastDecayAt.IsZero() && !s.LastDecayAt.Before(cutoff) {
			continue
		}
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLedger) UsersWithScoreJump(_ context.Context, threshold int64) ([]domain.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UserScore
	for _, s := range f.scores {
		jump := s.CurrentScore - s.PreviousScore
		if jump < 0 {
			jump = -jump
		}
		if jump > threshold {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeLedger) AllScores(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.scores))
	for id, s := range f.scores {
		out[id] = s.CurrentScore
	}
	return out, nil
}

func (f *fakeLedger) AllUserIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.scores))
	for id := range f.scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeLedger) RankDistribution(_ context.Context) (map[domain.RankTier]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dist := make(map[domain.RankTier]int64)
	for _, s := range f.scores {
		dist[s.RankTier]++
	}
	return dist, nil
}

type fakeIndex struct {
	mu     sync.Mutex
	scores map[string]int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{scores: make(map[string]int64)}
}

func (f *fakeIndex) Upsert(_ context.Context, userID string, score int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[userID] = score
	return nil
}

func (f *fakeIndex) sorted() []domain.RankEntry {
	entries := make([]domain.RankEntry, 0, len(f.scores))
	for id, score := range f.scores {
		entries = append(entries, domain.RankEntry{UserID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func (f *fakeIndex) TopN(_ context.Context, n int) ([]domain.RankEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.sorted()
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (f *fakeIndex) RankOf(_ context.Context, userID string) (*domain.RankEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.sorted() {
		if e.UserID == userID {
			entry := e
			return &entry, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeIndex) Rebuild(_ context.Context, scores map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = make(map[string]int64, len(scores))
	for id, s := range scores {
		f.scores[id] = s
	}
	return nil
}

func (f *fakeIndex) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.scores)), nil
}

type fakeBadgeStore struct {
	mu      sync.Mutex
	badges  map[string]map[string]time.Time
	rewards map[string]domain.Reward
}

func newFakeBadgeStore() *fakeBadgeStore {
	return &fakeBadgeStore{
		badges:  make(map[string]map[string]time.Time),
		rewards: make(map[string]domain.Reward),
	}
}

func (f *fakeBadgeStore) AwardBadge(_ context.Context, userID, badgeCode string, achievedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badges[userID] == nil {
		f.badges[userID] = make(map[string]time.Time)
	}
	if _, ok := f.badges[userID][badgeCode]; ok {
		return false, nil
	}
	f.badges[userID][badgeCode] = achievedAt
	return true, nil
}

func (f *fakeBadgeStore) UserBadges(_ context.Context, userID string) ([]domain.UserBadge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UserBadge
	for code, at := range f.badges[userID] {
		out = append(out, domain.UserBadge{UserID: userID, BadgeCode: code, AchievedAt: at})
	}
	return out, nil
}

func (f *fakeBadgeStore) CreateReward(_ context.Context, rw *domain.Reward) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewards[rw.ID] = *rw
	return nil
}

func (f *fakeBadgeStore) GetReward(_ context.Context, rewardID string) (*domain.Reward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rw, ok := f.rewards[rewardID]
	if !ok {
		return nil, domain.ErrRewardNotFound
	}
	copied := rw
	return &copied, nil
}

func (f *fakeBadgeStore) UnclaimedRewards(_ context.Context, userID string) ([]domain.Reward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reward
	for _, rw := range f.rewards {
		if rw.UserID == userID && !rw.IsClaimed {
			out = append(out, rw)
		}
	}
	return out, nil
}

func (f *fakeBadgeStore) MarkRewardClaimed(_ context.Context, rewardID string, claimedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rw, ok := f.rewards[rewardID]
	if !ok {
		return domain.ErrRewardNotFound
	}
	if rw.IsClaimed {
		return domain.ErrRewardAlreadyClaimed
	}
	rw.IsClaimed = true
	rw.ClaimedAt = claimedAt
	f.rewards[rewardID] = rw
	return nil
}

type fakeLeaderboardStore struct {
	mu        sync.Mutex
	snapshots map[string][]domain.LeaderboardEntry
}

func newFakeLeaderboardStore() *fakeLeaderboardStore {
	return &fakeLeaderboardStore{snapshots: make(map[string][]domain.LeaderboardEntry)}
}

func snapshotKey(windowType domain.WindowType, start time.Time) string {
	return string(windowType) + "|" + start.UTC().Format(time.RFC3339)
}

func (f *fakeLeaderboardStore) ReplaceSnapshot(_ context.Context, windowType domain.WindowType, start, _ time.Time, entries []domain.LeaderboardEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]domain.LeaderboardEntry, len(entries))
	copy(copied, entries)
	f.snapshots[snapshotKey(windowType, start)] = copied
	return nil
}

func (f *fakeLeaderboardStore) TopEntries(_ context.Context, windowType domain.WindowType, start time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.snapshots[snapshotKey(windowType, start)]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]domain.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *fakeLeaderboardStore) UserEntry(_ context.Context, windowType domain.WindowType, start time.Time, userID string) (*domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.snapshots[snapshotKey(windowType, start)]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	for _, e := range entries {
		if e.UserID == userID {
			entry := e
			return &entry, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

type notification struct {
	kind   string
	userID string
	detail string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (f *fakeNotifier) NotifyTierChange(userID string, previous, current domain.RankTier, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notification{kind: "tier_change", userID: userID, detail: string(previous) + ">" + string(current)})
}

func (f *fakeNotifier) NotifyScoreUpdate(userID string, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notification{kind: "score_update", userID: userID})
}

func (f *fakeNotifier) NotifyBadge(userID, badgeCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notification{kind: "badge", userID: userID, detail: badgeCode})
}

func (f *fakeNotifier) byKind(kind string) []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification
	for _, e := range f.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}
