package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(sessionKey, role string, buffer int) *Client {
	return &Client{
		ID:         uuid.New().String(),
		SessionKey: sessionKey,
		Role:       role,
		send:       make(chan WSMessage, buffer),
	}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestPublishReachesAllSessionMembers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c1 := newTestClient("sessA", RoleControl, 8)
	c2 := newTestClient("sessA", RoleRender, 8)
	other := newTestClient("sessB", RoleRender, 8)
	hub.attach(c1)
	hub.attach(c2)
	hub.attach(other)

	hub.Publish("sessA", TopicColorScheme, map[string]string{"scheme": "dark"})

	for _, c := range []*Client{c1, c2} {
		msgs := drain(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, TopicColorScheme, msgs[0].Event)
	}
	// Never observed by a connection attached to a different session.
	assert.Empty(t, drain(other))
}

func TestPublishExceptSkipsSender(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sender := newTestClient("sessA", RoleControl, 8)
	receiver := newTestClient("sessA", RoleRender, 8)
	hub.attach(sender)
	hub.attach(receiver)

	hub.PublishExcept("sessA", TopicSceneToggle, json.RawMessage(`{"scene":"brb"}`), sender.ID)

	assert.Empty(t, drain(sender))
	require.Len(t, drain(receiver), 1)
}

func TestPublishAfterDetachSkipsSilently(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient("sessA", RoleRender, 8)
	hub.attach(c)
	hub.detach(c)

	// Must not panic or deliver.
	hub.Publish("sessA", TopicWeather, map[string]bool{"enabled": true})
	assert.Empty(t, drain(c))
	assert.Equal(t, 0, hub.MemberCount("sessA"))
}

func TestSlowMemberDoesNotStallOthers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	slow := newTestClient("sessA", RoleRender, 1)
	fast := newTestClient("sessA", RoleRender, 8)
	hub.attach(slow)
	hub.attach(fast)

	// Fill the slow member's buffer; subsequent publishes drop for it only.
	hub.Publish("sessA", TopicNowPlaying, map[string]string{"track": "one"})
	hub.Publish("sessA", TopicNowPlaying, map[string]string{"track": "two"})

	assert.Len(t, drain(slow), 1)
	assert.Len(t, drain(fast), 2)
}

func TestSameTopicOrderPreservedPerMember(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient("sessA", RoleRender, 16)
	hub.attach(c)

	for i := 0; i < 5; i++ {
		hub.Publish("sessA", TopicCountdownTimers, map[string]int{"seq": i})
	}
	msgs := drain(c)
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		var p struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &p))
		assert.Equal(t, i, p.Seq)
	}
}

// stallingSub blocks inside SubscribeSession for one session until released,
// imitating a slow Redis round trip.
type stallingSub struct {
	stallKey string
	entered  chan string
	release  chan struct{}
}

func (s *stallingSub) SubscribeSession(sessionKey string, _ func(topic string, payload []byte)) (func(), error) {
	if sessionKey == s.stallKey {
		s.entered <- sessionKey
		<-s.release
	}
	return func() {}, nil
}

func TestSlowSubscribeDoesNotBlockHub(t *testing.T) {
	sub := &stallingSub{stallKey: "sessA", entered: make(chan string, 1), release: make(chan struct{})}
	defer close(sub.release)
	hub := NewHub(zap.NewNop(), nil, sub)

	slow := newTestClient("sessA", RoleRender, 8)
	go hub.attach(slow)

	select {
	case <-sub.entered:
	case <-time.After(time.Second):
		t.Fatal("subscribe was never started")
	}

	// While sessA's subscribe is stuck in Redis, other sessions keep working.
	other := newTestClient("sessB", RoleRender, 8)
	done := make(chan struct{})
	go func() {
		hub.attach(other)
		hub.Publish("sessB", TopicWeather, map[string]bool{"enabled": true})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub blocked behind a slow subscribe")
	}
	require.Len(t, drain(other), 1)
}

func TestLastDetachSignalsSessionEmpty(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	var emptied []string
	hub.SetSessionEmptyHandler(func(sessionKey string) {
		emptied = append(emptied, sessionKey)
	})

	c1 := newTestClient("sessA", RoleControl, 1)
	c2 := newTestClient("sessA", RoleRender, 1)
	hub.attach(c1)
	hub.attach(c2)

	hub.detach(c1)
	assert.Empty(t, emptied, "session still has a member")

	hub.detach(c2)
	assert.Equal(t, []string{"sessA"}, emptied)
}

func TestMembers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c1 := newTestClient("sessA", RoleControl, 1)
	c2 := newTestClient("sessA", RoleRender, 1)
	hub.attach(c1)
	hub.attach(c2)

	members := hub.Members("sessA")
	assert.ElementsMatch(t, []string{c1.ID, c2.ID}, members)
	assert.Empty(t, hub.Members("sessB"))
}
