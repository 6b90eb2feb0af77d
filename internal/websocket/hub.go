package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reputation-engine/internal/domain"
)

// Message types
const (
	MessageTypeScoreUpdate       = "score_update"
	MessageTypeTierChange        = "tier_change"
	MessageTypeBadgeAwarded      = "badge_awarded"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Channel names. Per-user events go to "user:<id>"; tier changes and badge
// awards are additionally fanned out on shared channels.
const (
	ChannelTiers  = "tiers"
	ChannelBadges = "badges"
)

// UserChannel returns the per-user event channel name.
func UserChannel(userID string) string {
	return "user:" + userID
}

// LeaderboardChannel returns the channel for one leaderboard window type.
func LeaderboardChannel(windowType domain.WindowType) string {
	return fmt.Sprintf("leaderboard:%s", windowType)
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TierChangeEvent is the payload of a tier transition broadcast.
type TierChangeEvent struct {
	UserID       string          `json:"user_id"`
	PreviousTier domain.RankTier `json:"previous_tier"`
	CurrentTier  domain.RankTier `json:"current_tier"`
	Score        int64           `json:"score"`
}

// ScoreUpdateEvent is the payload of a score change broadcast.
type ScoreUpdateEvent struct {
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

// BadgeEvent is the payload of a badge award broadcast.
type BadgeEvent struct {
	UserID    string `json:"user_id"`
	BadgeCode string `json:"badge_code"`
}

// LeaderboardUpdate contains leaderboard data for broadcast
type LeaderboardUpdate struct {
	WindowType domain.WindowType         `json:"window_type"`
	Entries    []domain.LeaderboardEntry `json:"entries"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by channel
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for channel, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, channel)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.channel]; !ok {
				h.clients[req.channel] = make(map[*Client]bool)
			}
			h.clients[req.channel][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "channel", req.channel)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.channel]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.channel)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "channel", req.channel)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the channel's subscribers, or to every
// client when the channel is empty.
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	if message.Channel != "" {
		if clients, ok := h.clients[message.Channel]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

func (h *Hub) publish(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// NotifyScoreUpdate broadcasts a score change to the user's channel.
func (h *Hub) NotifyScoreUpdate(userID string, score int64) {
	h.publish(&Message{
		Type:      MessageTypeScoreUpdate,
		Channel:   UserChannel(userID),
		Data:      ScoreUpdateEvent{UserID: userID, Score: score},
		Timestamp: time.Now(),
	})
}

// NotifyTierChange broadcasts a tier transition to the user's channel and the
// shared tiers channel.
func (h *Hub) NotifyTierChange(userID string, previous, current domain.RankTier, score int64) {
	event := TierChangeEvent{
		UserID:       userID,
		PreviousTier: previous,
		CurrentTier:  current,
		Score:        score,
	}
	now := time.Now()
	h.publish(&Message{Type: MessageTypeTierChange, Channel: UserChannel(userID), Data: event, Timestamp: now})
	h.publish(&Message{Type: MessageTypeTierChange, Channel: ChannelTiers, Data: event, Timestamp: now})
}

// NotifyBadge broadcasts a badge award to the user's channel and the shared
// badges channel.
func (h *Hub) NotifyBadge(userID, badgeCode string) {
	event := BadgeEvent{UserID: userID, BadgeCode: badgeCode}
	now := time.Now()
	h.publish(&Message{Type: MessageTypeBadgeAwarded, Channel: UserChannel(userID), Data: event, Timestamp: now})
	h.publish(&Message{Type: MessageTypeBadgeAwarded, Channel: ChannelBadges, Data: event, Timestamp: now})
}

// BroadcastLeaderboardUpdate sends fresh leaderboard entries to the window's
// subscribers.
func (h *Hub) BroadcastLeaderboardUpdate(windowType domain.WindowType, entries []domain.LeaderboardEntry) {
	h.publish(&Message{
		Type:      MessageTypeLeaderboardUpdate,
		Channel:   LeaderboardChannel(windowType),
		Data:      LeaderboardUpdate{WindowType: windowType, Entries: entries},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a channel subscription
func (h *Hub) Subscribe(client *Client, channel string) {
	h.subscribe <- &subscriptionRequest{client: client, channel: channel}
}

// Unsubscribe removes a client from a channel subscription
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.unsubscribe <- &subscriptionRequest{client: client, channel: channel}
}

// GetSubscriberCount returns the number of subscribers for a channel
func (h *Hub) GetSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[channel]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
