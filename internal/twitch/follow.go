package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// TopicAlertTrigger is the broadcast topic for alert events.
const TopicAlertTrigger = "alert-trigger"

// FollowAlertPayload is the alert-trigger payload for a new follow.
type FollowAlertPayload struct {
	Type string `json:"type"`
	User string `json:"user"`
	At   int64  `json:"at"`
}

// follower is one entry from the Helix channel followers list.
type follower struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	FollowedAt string `json:"followed_at"`
}

type followersPage struct {
	Data []follower `json:"data"`
}

// CursorStore persists the last-seen follower id so restarts do not re-alert.
type CursorStore interface {
	Get(ctx context.Context, sessionKey string) (string, error)
	Set(ctx context.Context, sessionKey, id string) error
}

// RedisCursorStore keeps follow cursors in Redis.
type RedisCursorStore struct {
	client *redis.Client
}

// NewRedisCursorStore creates a Redis-backed cursor store.
func NewRedisCursorStore(client *redis.Client) *RedisCursorStore {
	return &RedisCursorStore{client: client}
}

func (s *RedisCursorStore) key(sessionKey string) string {
	return "overlay:follow:cursor:" + sessionKey
}

// Get returns the stored cursor, or "" when none exists.
func (s *RedisCursorStore) Get(ctx context.Context, sessionKey string) (string, error) {
	v, err := s.client.Get(ctx, s.key(sessionKey)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// Set stores the cursor.
func (s *RedisCursorStore) Set(ctx context.Context, sessionKey, id string) error {
	return s.client.Set(ctx, s.key(sessionKey), id, 0).Err()
}

// baselineCursor marks "baseline established, zero followers seen".
const baselineCursor = "-"

// FollowAdapter polls the Helix followers list per monitored session. The
// first successful poll only establishes a baseline; each later poll publishes
// at most one new-follow alert (the most recent follower), a deliberate
// trade-off that drops intermediate follows under bursts to avoid alert storms.
type FollowAdapter struct {
	baseURL  string
	clientID string
	token    string
	interval time.Duration
	pub      Publisher
	cursors  CursorStore
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*followersPage]
	logger   *zap.Logger
	registry *Registry
}

// NewFollowAdapter creates the follower polling adapter.
func NewFollowAdapter(baseURL, clientID, token string, interval time.Duration, pub Publisher, cursors CursorStore, logger *zap.Logger) *FollowAdapter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &FollowAdapter{
		baseURL:  baseURL,
		clientID: clientID,
		token:    token,
		interval: interval,
		pub:      pub,
		cursors:  cursors,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
	a.breaker = gobreaker.NewCircuitBreaker[*followersPage](gobreaker.Settings{
		Name:    "helix-followers",
		Timeout: 2 * interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	a.registry = NewRegistry(KindFollow, a.run, logger)
	return a
}

// Start begins polling followers of the broadcaster for the session.
func (a *FollowAdapter) Start(sessionKey, broadcasterID string) {
	a.registry.Start(sessionKey, broadcasterID)
}

// Stop stops polling for the session, cancelling the timer before returning.
func (a *FollowAdapter) Stop(sessionKey string) { a.registry.Stop(sessionKey) }

// IsActive reports whether the session has a live poller.
func (a *FollowAdapter) IsActive(sessionKey string) bool { return a.registry.IsActive(sessionKey) }

// StopAll stops every poller (process shutdown).
func (a *FollowAdapter) StopAll() { a.registry.StopAll() }

func (a *FollowAdapter) run(ctx context.Context, sessionKey, broadcasterID string) {
	a.pollOnce(ctx, sessionKey, broadcasterID)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx, sessionKey, broadcasterID)
		}
	}
}

// pollOnce fetches the most recent followers and diffs against the cursor.
// Errors are logged and polling continues on the next interval.
func (a *FollowAdapter) pollOnce(ctx context.Context, sessionKey, broadcasterID string) {
	page, err := a.breaker.Execute(func() (*followersPage, error) {
		return a.fetchFollowers(ctx, broadcasterID)
	})
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("follower poll failed",
				zap.String("session_key", sessionKey), zap.Error(err))
		}
		return
	}

	cursor, err := a.cursors.Get(ctx, sessionKey)
	if err != nil {
		a.logger.Warn("follow cursor read failed", zap.String("session_key", sessionKey), zap.Error(err))
		return
	}

	latest := baselineCursor
	if len(page.Data) > 0 {
		latest = page.Data[0].UserID
	}

	if cursor == "" {
		// First poll establishes the baseline, no event.
		if err := a.cursors.Set(ctx, sessionKey, latest); err != nil {
			a.logger.Warn("follow cursor write failed", zap.String("session_key", sessionKey), zap.Error(err))
		}
		return
	}
	if latest == cursor || latest == baselineCursor {
		return
	}
	a.pub.Publish(sessionKey, TopicAlertTrigger, FollowAlertPayload{
		Type: "follow",
		User: page.Data[0].UserName,
		At:   time.Now().Unix(),
	})
	if err := a.cursors.Set(ctx, sessionKey, latest); err != nil {
		a.logger.Warn("follow cursor write failed", zap.String("session_key", sessionKey), zap.Error(err))
	}
}

func (a *FollowAdapter) fetchFollowers(ctx context.Context, broadcasterID string) (*followersPage, error) {
	u := fmt.Sprintf("%s/channels/followers?broadcaster_id=%s&first=5", a.baseURL, url.QueryEscape(broadcasterID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Client-Id", a.clientID)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helix request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix status: %d", resp.StatusCode)
	}
	var page followersPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode followers: %w", err)
	}
	return &page, nil
}
