// Package tts serializes announcement playback: one item in flight per
// session, bounded FIFO behind it, and guaranteed forward progress even when
// the downstream playback engine never signals completion.
package tts

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/pkg/metrics"
)

// DefaultMaxQueue bounds waiting announcements per session; oldest dropped on overflow.
const DefaultMaxQueue = 20

// Item is one queued announcement.
type Item struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Voice      string    `json:"voice,omitempty"`
	Rate       float64   `json:"rate,omitempty"`
	Pitch      float64   `json:"pitch,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Player hands an item to the playback engine. done may be called once with
// the playback result, or never: some hosting environments swallow the
// engine's completion callbacks entirely, which is why the coordinator runs
// its own fallback timer.
type Player interface {
	Speak(sessionKey string, item Item, done func(error))
}

// Coordinator owns per-session announcement queues.
type Coordinator struct {
	player   Player
	logger   *zap.Logger
	maxQueue int
	cps      int           // estimated playback characters per second
	margin   time.Duration // safety margin on top of the estimate

	mu       sync.Mutex
	sessions map[string]*sessionQueue
}

type sessionQueue struct {
	items   []Item
	current *inflight
}

type inflight struct {
	id       string
	finished bool
	fallback *time.Timer
}

// NewCoordinator creates a playback coordinator.
func NewCoordinator(player Player, maxQueue, charsPerSecond int, margin time.Duration, logger *zap.Logger) *Coordinator {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	if charsPerSecond <= 0 {
		charsPerSecond = 15
	}
	if margin <= 0 {
		margin = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		player:   player,
		logger:   logger,
		maxQueue: maxQueue,
		cps:      charsPerSecond,
		margin:   margin,
		sessions: make(map[string]*sessionQueue),
	}
}

// Enqueue accepts an announcement for a session. While an item is in flight,
// new enqueues wait their turn; when the queue is full the oldest waiting
// item is dropped.
func (c *Coordinator) Enqueue(sessionKey, text, voice string, rate, pitch float64) Item {
	item := Item{
		ID:         uuid.New().String(),
		Text:       text,
		Voice:      voice,
		Rate:       rate,
		Pitch:      pitch,
		EnqueuedAt: time.Now(),
	}
	c.mu.Lock()
	sq := c.sessions[sessionKey]
	if sq == nil {
		sq = &sessionQueue{}
		c.sessions[sessionKey] = sq
	}
	sq.items = append(sq.items, item)
	if len(sq.items) > c.maxQueue {
		dropped := sq.items[0]
		sq.items = sq.items[1:]
		c.logger.Debug("announcement queue full, dropped oldest",
			zap.String("session_key", sessionKey), zap.String("item_id", dropped.ID))
	}
	var next *Item
	if sq.current == nil {
		next = c.startNextLocked(sessionKey, sq)
	}
	metrics.TTSQueueDepth.Set(float64(c.depthLocked()))
	c.mu.Unlock()

	if next != nil {
		c.player.Speak(sessionKey, *next, c.doneFunc(sessionKey, next.ID))
	}
	return item
}

// Complete signals playback completion for an item (from the engine callback
// relayed over the hub). A completion for anything but the current in-flight
// item is a no-op.
func (c *Coordinator) Complete(sessionKey, itemID string) {
	c.advance(sessionKey, itemID, "engine")
}

// QueueDepth returns the number of waiting items for a session.
func (c *Coordinator) QueueDepth(sessionKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sq := c.sessions[sessionKey]; sq != nil {
		return len(sq.items)
	}
	return 0
}

// advance finishes the current item and starts the next one. Exactly one of
// the two signals (engine completion, fallback timer) wins; the loser is a
// no-op thanks to the single-assignment finished flag under the mutex.
func (c *Coordinator) advance(sessionKey, itemID, via string) {
	c.mu.Lock()
	sq := c.sessions[sessionKey]
	if sq == nil || sq.current == nil || sq.current.id != itemID || sq.current.finished {
		c.mu.Unlock()
		return
	}
	sq.current.finished = true
	if sq.current.fallback != nil {
		sq.current.fallback.Stop()
	}
	sq.current = nil
	next := c.startNextLocked(sessionKey, sq)
	metrics.TTSQueueDepth.Set(float64(c.depthLocked()))
	c.mu.Unlock()

	c.logger.Debug("announcement finished",
		zap.String("session_key", sessionKey), zap.String("item_id", itemID), zap.String("via", via))
	if next != nil {
		c.player.Speak(sessionKey, *next, c.doneFunc(sessionKey, next.ID))
	}
}

// startNextLocked pops the head and arms its fallback timer. Callers hold c.mu
// and must invoke the player outside the lock with the returned item.
func (c *Coordinator) startNextLocked(sessionKey string, sq *sessionQueue) *Item {
	if len(sq.items) == 0 {
		return nil
	}
	item := sq.items[0]
	sq.items = sq.items[1:]
	cur := &inflight{id: item.ID}
	cur.fallback = time.AfterFunc(c.estimate(item), func() {
		c.advance(sessionKey, item.ID, "fallback")
	})
	sq.current = cur
	return &item
}

// estimate sizes the fallback timer from payload length and speech rate.
func (c *Coordinator) estimate(item Item) time.Duration {
	d := time.Duration(len(item.Text)) * time.Second / time.Duration(c.cps)
	if d < time.Second {
		d = time.Second
	}
	return d + c.margin
}

func (c *Coordinator) depthLocked() int {
	total := 0
	for _, sq := range c.sessions {
		total += len(sq.items)
	}
	return total
}

func (c *Coordinator) doneFunc(sessionKey, itemID string) func(error) {
	return func(err error) {
		if err != nil {
			// Engine errors advance the queue just like normal completion.
			c.logger.Warn("playback engine error",
				zap.String("session_key", sessionKey), zap.String("item_id", itemID), zap.Error(err))
		}
		c.advance(sessionKey, itemID, "engine")
	}
}
