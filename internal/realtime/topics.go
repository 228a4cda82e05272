package realtime

// Broadcast topics. Each payload is flat and self-contained; no topic depends
// on another topic's delivery to be meaningful.
const (
	TopicChatMessage      = "chat-message"
	TopicColorScheme      = "color-scheme-change"
	TopicCustomColors     = "custom-colors-change"
	TopicWeather          = "weather-change"
	TopicNowPlaying       = "now-playing"
	TopicSceneToggle      = "scene-toggle"
	TopicCountdownTimers  = "countdown-timers"
	TopicEmoteWall        = "emote-wall"
	TopicComponentLayouts = "component-layouts"
	TopicChatHighlight    = "chat-highlight"
	TopicPaintState       = "paint-state"
	TopicPaintCommand     = "paint-command"
	TopicBackground       = "background-change"
	TopicEventLabels      = "event-labels-update"
	TopicStreamStats      = "stream-stats-config"
	TopicAlertTrigger     = "alert-trigger"
	TopicWheelSpin        = "wheel-spin"
	TopicWheelConfig      = "wheel-config-update"
	TopicFontFamily       = "font-family-change"
	TopicTTSSpeak         = "tts-speak"
	TopicSaveState        = "save-state"
)

// Inbound-only events (client -> server), never broadcast as-is.
const (
	EventJoin        = "join"
	EventSnapshot    = "snapshot"
	EventTTSComplete = "tts-complete"
)

// stateTopics are the control-side mutations persisted into the session
// snapshot. Ephemeral topics (chat, alerts, spins) are broadcast only.
var stateTopics = map[string]bool{
	TopicColorScheme:      true,
	TopicCustomColors:     true,
	TopicWeather:          true,
	TopicSceneToggle:      true,
	TopicCountdownTimers:  true,
	TopicComponentLayouts: true,
	TopicBackground:       true,
	TopicEventLabels:      true,
	TopicStreamStats:      true,
	TopicWheelConfig:      true,
	TopicFontFamily:       true,
}

// broadcastOnly are control-originated topics relayed to the session without
// a snapshot write (self-contained one-shot events).
var broadcastOnly = map[string]bool{
	TopicNowPlaying:    true,
	TopicEmoteWall:     true,
	TopicChatHighlight: true,
	TopicAlertTrigger:  true,
	TopicWheelSpin:     true,
}

// IsStateTopic reports whether a topic's payload is persisted in the snapshot.
func IsStateTopic(topic string) bool {
	return stateTopics[topic]
}
