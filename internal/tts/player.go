package tts

// TopicTTSSpeak is the broadcast topic carrying items to render-side speech synthesis.
const TopicTTSSpeak = "tts-speak"

// Publisher fans a payload out to every live connection of a session.
type Publisher interface {
	Publish(sessionKey, topic string, payload interface{})
}

// BroadcastPlayer speaks by publishing the item to the session's render
// clients, where the browser speech engine plays it. It never invokes done:
// completion comes back as a tts-complete hub message (Coordinator.Complete),
// and the fallback timer covers environments that never report it.
type BroadcastPlayer struct {
	pub Publisher
}

// NewBroadcastPlayer creates the hub-backed playback engine.
func NewBroadcastPlayer(pub Publisher) *BroadcastPlayer {
	return &BroadcastPlayer{pub: pub}
}

// Speak publishes the item on the tts-speak topic.
func (p *BroadcastPlayer) Speak(sessionKey string, item Item, _ func(error)) {
	p.pub.Publish(sessionKey, TopicTTSSpeak, item)
}
