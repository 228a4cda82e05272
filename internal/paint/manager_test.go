package paint

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]map[string]*TemplateState
	saves  int
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]map[string]*TemplateState)}
}

func (s *memStore) LoadPaintStates(_ context.Context, sessionKey string) (map[string]*TemplateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*TemplateState)
	for id, st := range s.states[sessionKey] {
		out[id] = st
	}
	return out, nil
}

func (s *memStore) SavePaintStates(_ context.Context, sessionKey string, states map[string]*TemplateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionKey] = states
	s.saves++
	return nil
}

type recordingPub struct {
	mu     sync.Mutex
	topics []string
	last   interface{}
}

func (p *recordingPub) Publish(_, topic string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.last = payload
}

func (p *recordingPub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

func TestManagerHandleChat(t *testing.T) {
	store := newMemStore()
	pub := &recordingPub{}
	m := NewManager(NewEngine(0), store, pub, zap.NewNop())
	ctx := context.Background()

	m.HandleChat(ctx, "sess1", "alice", "!paint 3 red")
	require.Equal(t, 1, pub.count())
	payload, ok := pub.last.(StatePayload)
	require.True(t, ok)
	assert.Equal(t, "heart", payload.TemplateID)
	assert.Equal(t, "#ff0000", payload.State.Fills[3].Color)
	assert.Equal(t, 1, store.saves)

	// Non-command chat does nothing.
	m.HandleChat(ctx, "sess1", "alice", "nice stream")
	assert.Equal(t, 1, pub.count())

	// Rejected duplicate produces no publish and no save.
	m.HandleChat(ctx, "sess1", "bob", "!paint 3 blue")
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, 1, store.saves)
}

func TestManagerResetLeavesOtherTemplates(t *testing.T) {
	store := newMemStore()
	m := NewManager(NewEngine(0), store, &recordingPub{}, zap.NewNop())
	ctx := context.Background()

	m.ApplyCommand(ctx, "sess1", "heart", "alice", Command{RegionID: 1})
	m.ApplyCommand(ctx, "sess1", "star", "alice", Command{RegionID: 1})

	require.True(t, m.Reset(ctx, "sess1", "heart"))

	heart, ok := m.State(ctx, "sess1", "heart")
	require.True(t, ok)
	assert.Empty(t, heart.Fills)

	star, ok := m.State(ctx, "sess1", "star")
	require.True(t, ok)
	assert.True(t, star.Fills[1].Filled)
}

func TestManagerLoadsPersistedStates(t *testing.T) {
	store := newMemStore()
	first := NewManager(NewEngine(0), store, &recordingPub{}, zap.NewNop())
	ctx := context.Background()
	first.ApplyCommand(ctx, "sess1", "heart", "alice", Command{RegionID: 2, Color: "#00ff00"})

	// A fresh manager (process restart) sees the persisted fills.
	second := NewManager(NewEngine(0), store, &recordingPub{}, zap.NewNop())
	st, ok := second.State(ctx, "sess1", "heart")
	require.True(t, ok)
	require.NotNil(t, st.Fills[2])
	assert.Equal(t, "#00ff00", st.Fills[2].Color)
	assert.Equal(t, "alice", st.Fills[2].FilledBy)
}

// serializingStore marshals everything it receives, the way the real
// repository does, so shared mutable state shows up under the race detector.
type serializingStore struct{}

func (serializingStore) LoadPaintStates(context.Context, string) (map[string]*TemplateState, error) {
	return map[string]*TemplateState{}, nil
}

func (serializingStore) SavePaintStates(_ context.Context, _ string, states map[string]*TemplateState) error {
	_, err := json.Marshal(states)
	return err
}

func TestManagerConcurrentMutationAndPersist(t *testing.T) {
	m := NewManager(NewEngine(0), serializingStore{}, &recordingPub{}, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch g % 2 {
				case 0:
					m.FillAll(ctx, "sess1", "heart", "bob")
				default:
					m.ApplyCommand(ctx, "sess1", "star", "alice", Command{RegionID: 1 + i%3})
				}
			}
		}(g)
	}
	wg.Wait()

	st, ok := m.State(ctx, "sess1", "heart")
	require.True(t, ok)
	assert.NotNil(t, st.CompletedAt)
}

func TestManagerStateReturnsDetachedCopy(t *testing.T) {
	m := NewManager(NewEngine(0), newMemStore(), &recordingPub{}, zap.NewNop())
	ctx := context.Background()
	m.ApplyCommand(ctx, "sess1", "heart", "alice", Command{RegionID: 3, Color: "#ff0000"})

	st, ok := m.State(ctx, "sess1", "heart")
	require.True(t, ok)
	st.Fills[3].Color = "#000000"
	delete(st.Fills, 3)

	again, ok := m.State(ctx, "sess1", "heart")
	require.True(t, ok)
	require.NotNil(t, again.Fills[3])
	assert.Equal(t, "#ff0000", again.Fills[3].Color)
}

func TestManagerActiveTemplate(t *testing.T) {
	m := NewManager(NewEngine(0), newMemStore(), &recordingPub{}, zap.NewNop())
	assert.Equal(t, "heart", m.ActiveTemplate("sess1"))
	assert.True(t, m.SetActiveTemplate("sess1", "star"))
	assert.Equal(t, "star", m.ActiveTemplate("sess1"))
	assert.False(t, m.SetActiveTemplate("sess1", "nope"))
}
