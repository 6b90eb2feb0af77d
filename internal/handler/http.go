package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reputation-engine/internal/domain"
	"github.com/reputation-engine/internal/service"
	"github.com/reputation-engine/internal/websocket"
)

// Handler provides HTTP handlers for the scoring engine API
type Handler struct {
	scoring     *service.ScoringService
	leaderboard *service.LeaderboardService
	badges      *service.BadgeService
	admin       *service.AdminService
	hub         *websocket.Hub
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	scoring *service.ScoringService,
	leaderboard *service.LeaderboardService,
	badges *service.BadgeService,
	admin *service.AdminService,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		scoring:     scoring,
		leaderboard: leaderboard,
		badges:      badges,
		admin:       admin,
		hub:         hub,
		logger:      logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Activity ingestion
		r.Post("/activities", h.RecordActivity)
		r.Post("/activities/batch", h.RecordActivityBatch)

		// User queries
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/score", h.GetUserScore)
			r.Get("/badges", h.GetUserBadges)
			r.Get("/rewards", h.GetUserRewards)
		})

		// Rewards
		r.Post("/rewards/{rewardID}/claim", h.ClaimReward)

		// Rankings
		r.Route("/rankings", func(r chi.Router) {
			r.Get("/top", h.GetTopUsers)
			r.Get("/realtime/top", h.GetRealtimeTop)
			r.Get("/realtime/users/{userID}", h.GetRealtimeRank)
		})

		// Windowed leaderboards
		r.Route("/leaderboards/{windowType}", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/users/{userID}", h.GetLeaderboardUser)
		})

		// Admin operations
		r.Route("/admin", func(r chi.Router) {
			r.Post("/users/{userID}/score", h.AdminAdjustScore)
			r.Post("/users/{userID}/suspend", h.AdminSuspend)
			r.Post("/users/{userID}/unsuspend", h.AdminUnsuspend)
			r.Get("/suspicious", h.AdminSuspiciousUsers)
			r.Get("/activity-patterns", h.AdminActivityPatterns)
			r.Get("/stats/ranks", h.AdminRankStats)
			r.Get("/stats/activities", h.AdminActivityStats)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// handleError maps domain errors to HTTP statuses. Anything unrecognized is a
// 500 with the detail kept out of the response body.
func (h *Handler) handleError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidActivityType):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrAccountSuspended):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrRewardAlreadyClaimed), errors.Is(err, domain.ErrConcurrentModification):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrRewardExpired):
		h.writeError(w, http.StatusGone, err)
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// queryInt parses an integer query parameter, falling back on def.
func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return def
}

// queryInt64 parses an int64 query parameter, falling back on def.
func queryInt64(r *http.Request, name string, def int64) int64 {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	}
	return def
}

// queryTime parses an RFC3339 query parameter, falling back on def.
func queryTime(r *http.Request, name string, def time.Time) time.Time {
	if s := r.URL.Query().Get(name); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return def
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// RecordActivity handles a single activity submission
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var sub domain.ActivitySubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	update, err := h.scoring.RecordActivity(r.Context(), sub)
	if err != nil {
		h.handleError(w, err, "failed to record activity")
		return
	}

	h.writeSuccess(w, update)
}

// RecordActivityBatch handles batch activity submission
func (h *Handler) RecordActivityBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchActivitySubmission
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if len(batch.Activities) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	results := h.scoring.RecordBatch(r.Context(), batch)
	h.writeSuccess(w, map[string]interface{}{
		"received": len(batch.Activities),
		"results":  results,
	})
}

// GetUserScore returns a user's ledger record
func (h *Handler) GetUserScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	score, err := h.scoring.GetUserScore(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "failed to get user score")
		return
	}

	h.writeSuccess(w, score)
}

// GetUserBadges returns a user's achieved badges
func (h *Handler) GetUserBadges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	badges, err := h.badges.UserBadges(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "failed to get user badges")
		return
	}

	h.writeSuccess(w, badges)
}

// GetUserRewards returns a user's unclaimed rewards
func (h *Handler) GetUserRewards(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	rewards, err := h.badges.UnclaimedRewards(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "failed to get user rewards")
		return
	}

	h.writeSuccess(w, rewards)
}

// ClaimReward claims a reward for the requesting user
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	rewardID := chi.URLParam(r, "rewardID")
	if rewardID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	reward, err := h.badges.ClaimReward(r.Context(), rewardID, req.UserID)
	if err != nil {
		h.handleError(w, err, "failed to claim reward")
		return
	}

	h.writeSuccess(w, reward)
}

// GetTopUsers returns the highest lifetime scores
func (h *Handler) GetTopUsers(w http.ResponseWriter, r *http.Request) {
	limit := h.leaderboard.ClampLimit(queryInt(r, "limit", 0))

	users, err := h.scoring.GetTopUsers(r.Context(), limit)
	if err != nil {
		h.handleError(w, err, "failed to get top users")
		return
	}

	h.writeSuccess(w, users)
}

// GetRealtimeTop returns the top of the realtime rank index
func (h *Handler) GetRealtimeTop(w http.ResponseWriter, r *http.Request) {
	limit := h.leaderboard.ClampLimit(queryInt(r, "limit", 0))

	entries, err := h.scoring.GetRealtimeTop(r.Context(), limit)
	if err != nil {
		h.handleError(w, err, "failed to get realtime top")
		return
	}

	h.writeSuccess(w, entries)
}

// GetRealtimeRank returns a user's realtime position
func (h *Handler) GetRealtimeRank(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.scoring.GetRealtimeRank(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "failed to get realtime rank")
		return
	}

	h.writeSuccess(w, entry)
}

// GetLeaderboard returns a windowed leaderboard. The at parameter selects the
// window; it defaults to the current one.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	windowType := domain.WindowType(chi.URLParam(r, "windowType"))
	at := queryTime(r, "at", time.Now())
	limit := queryInt(r, "limit", 0)

	entries, err := h.leaderboard.GetTop(r.Context(), windowType, at, limit)
	if err != nil {
		h.handleError(w, err, "failed to get leaderboard")
		return
	}

	h.writeSuccess(w, entries)
}

// GetLeaderboardUser returns one user's row in a windowed leaderboard
func (h *Handler) GetLeaderboardUser(w http.ResponseWriter, r *http.Request) {
	windowType := domain.WindowType(chi.URLParam(r, "windowType"))
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	at := queryTime(r, "at", time.Now())

	entry, err := h.leaderboard.GetUserRanking(r.Context(), windowType, at, userID)
	if err != nil {
		h.handleError(w, err, "failed to get leaderboard ranking")
		return
	}

	h.writeSuccess(w, entry)
}

// AdminAdjustScore applies a manual score delta
func (h *Handler) AdminAdjustScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req struct {
		Delta  int64  `json:"delta"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	update, err := h.admin.AdjustScore(r.Context(), userID, req.Delta, req.Reason)
	if err != nil {
		h.handleError(w, err, "failed to adjust score")
		return
	}

	h.writeSuccess(w, update)
}

// AdminSuspend suspends an account
func (h *Handler) AdminSuspend(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	update, err := h.admin.Suspend(r.Context(), userID, req.Reason)
	if err != nil {
		h.handleError(w, err, "failed to suspend account")
		return
	}

	h.writeSuccess(w, update)
}

// AdminUnsuspend lifts a suspension
func (h *Handler) AdminUnsuspend(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	update, err := h.admin.Unsuspend(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "failed to unsuspend account")
		return
	}

	h.writeSuccess(w, update)
}

// AdminSuspiciousUsers returns users with large recent score jumps
func (h *Handler) AdminSuspiciousUsers(w http.ResponseWriter, r *http.Request) {
	threshold := queryInt64(r, "threshold", 0)

	users, err := h.admin.SuspiciousUsers(r.Context(), threshold)
	if err != nil {
		h.handleError(w, err, "failed to get suspicious users")
		return
	}

	h.writeSuccess(w, users)
}

// AdminActivityPatterns returns same-type activity bursts in a time range
func (h *Handler) AdminActivityPatterns(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start := queryTime(r, "start", now.Add(-24*time.Hour))
	end := queryTime(r, "end", now)
	threshold := queryInt64(r, "threshold", 0)

	patterns, err := h.admin.AbnormalPatterns(r.Context(), start, end, threshold)
	if err != nil {
		h.handleError(w, err, "failed to get activity patterns")
		return
	}

	h.writeSuccess(w, patterns)
}

// AdminRankStats returns the rank tier distribution
func (h *Handler) AdminRankStats(w http.ResponseWriter, r *http.Request) {
	dist, err := h.admin.RankDistribution(r.Context())
	if err != nil {
		h.handleError(w, err, "failed to get rank distribution")
		return
	}

	h.writeSuccess(w, dist)
}

// AdminActivityStats returns activity counts per type in a time range
func (h *Handler) AdminActivityStats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start := queryTime(r, "start", now.Add(-24*time.Hour))
	end := queryTime(r, "end", now)

	stats, err := h.admin.ActivityStatistics(r.Context(), start, end)
	if err != nil {
		h.handleError(w, err, "failed to get activity statistics")
		return
	}

	h.writeSuccess(w, stats)
}
