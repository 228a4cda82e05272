package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCursorStore struct {
	mu      sync.Mutex
	cursors map[string]string
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]string)}
}

func (s *memCursorStore) Get(_ context.Context, sessionKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[sessionKey], nil
}

func (s *memCursorStore) Set(_ context.Context, sessionKey, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[sessionKey] = id
	return nil
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []FollowAlertPayload
}

func (r *alertRecorder) Publish(_, topic string, payload interface{}) {
	if topic != TopicAlertTrigger {
		return
	}
	r.mu.Lock()
	r.alerts = append(r.alerts, payload.(FollowAlertPayload))
	r.mu.Unlock()
}

func (r *alertRecorder) all() []FollowAlertPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FollowAlertPayload(nil), r.alerts...)
}

// fakeHelix serves a mutable followers page, newest first.
type fakeHelix struct {
	mu        sync.Mutex
	followers []follower
}

func (f *fakeHelix) set(followers ...follower) {
	f.mu.Lock()
	f.followers = followers
	f.mu.Unlock()
}

func (f *fakeHelix) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		page := followersPage{Data: append([]follower(nil), f.followers...)}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(page)
	}
}

func TestFollowPollBaselineThenAlert(t *testing.T) {
	helix := &fakeHelix{}
	srv := httptest.NewServer(helix.handler())
	defer srv.Close()

	pub := &alertRecorder{}
	store := newMemCursorStore()
	a := NewFollowAdapter(srv.URL, "clientid", "token", time.Hour, pub, store, nil)
	ctx := context.Background()

	// Baseline poll: existing followers produce no alert.
	helix.set(follower{UserID: "100", UserName: "earlybird"})
	a.pollOnce(ctx, "sess1", "777")
	assert.Empty(t, pub.all())

	// Nothing changed, still no alert.
	a.pollOnce(ctx, "sess1", "777")
	assert.Empty(t, pub.all())

	// A new follower lands at the head of the list.
	helix.set(
		follower{UserID: "200", UserName: "newfan"},
		follower{UserID: "100", UserName: "earlybird"},
	)
	a.pollOnce(ctx, "sess1", "777")

	alerts := pub.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "follow", alerts[0].Type)
	assert.Equal(t, "newfan", alerts[0].User)

	// Cursor advanced, the same follower never re-alerts.
	a.pollOnce(ctx, "sess1", "777")
	assert.Len(t, pub.all(), 1)
}

func TestFollowPollAtMostOneAlertPerCycle(t *testing.T) {
	helix := &fakeHelix{}
	srv := httptest.NewServer(helix.handler())
	defer srv.Close()

	pub := &alertRecorder{}
	a := NewFollowAdapter(srv.URL, "clientid", "token", time.Hour, pub, newMemCursorStore(), nil)
	ctx := context.Background()

	helix.set(follower{UserID: "1", UserName: "first"})
	a.pollOnce(ctx, "sess1", "777")

	// Three follows arrive between polls; only the most recent alerts.
	helix.set(
		follower{UserID: "4", UserName: "fourth"},
		follower{UserID: "3", UserName: "third"},
		follower{UserID: "2", UserName: "second"},
		follower{UserID: "1", UserName: "first"},
	)
	a.pollOnce(ctx, "sess1", "777")

	alerts := pub.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "fourth", alerts[0].User)
}

func TestFollowPollZeroFollowerBaseline(t *testing.T) {
	helix := &fakeHelix{}
	srv := httptest.NewServer(helix.handler())
	defer srv.Close()

	pub := &alertRecorder{}
	store := newMemCursorStore()
	a := NewFollowAdapter(srv.URL, "clientid", "token", time.Hour, pub, store, nil)
	ctx := context.Background()

	// No followers at all: baseline is still established.
	a.pollOnce(ctx, "sess1", "777")
	assert.Empty(t, pub.all())

	// The very first follower then alerts.
	helix.set(follower{UserID: "1", UserName: "pioneer"})
	a.pollOnce(ctx, "sess1", "777")

	alerts := pub.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "pioneer", alerts[0].User)
}

func TestFollowPollFetchErrorKeepsCursor(t *testing.T) {
	helix := &fakeHelix{}
	var failing bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failing
		mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		helix.handler()(w, r)
	}))
	defer srv.Close()

	pub := &alertRecorder{}
	store := newMemCursorStore()
	a := NewFollowAdapter(srv.URL, "clientid", "token", time.Hour, pub, store, nil)
	ctx := context.Background()

	helix.set(follower{UserID: "1", UserName: "first"})
	a.pollOnce(ctx, "sess1", "777")

	mu.Lock()
	failing = true
	mu.Unlock()
	a.pollOnce(ctx, "sess1", "777")
	assert.Empty(t, pub.all())

	mu.Lock()
	failing = false
	mu.Unlock()
	helix.set(
		follower{UserID: "2", UserName: "second"},
		follower{UserID: "1", UserName: "first"},
	)
	a.pollOnce(ctx, "sess1", "777")

	alerts := pub.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, "second", alerts[0].User)
}
