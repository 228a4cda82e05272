package twitch

import (
	"strings"
)

// Viewer roles, highest precedence first.
const (
	RoleBroadcaster = "broadcaster"
	RoleModerator   = "moderator"
	RoleVIP         = "vip"
	RoleSubscriber  = "subscriber"
	RoleFirstTime   = "first_time"
	RoleViewer      = "viewer"
)

// ircMessage is one parsed IRCv3 line.
type ircMessage struct {
	tags    map[string]string
	prefix  string
	command string
	params  []string
	text    string // trailing parameter
}

// parseIRC parses a single IRC line with optional v3 tags.
// Malformed lines come back with an empty command and are skipped upstream.
func parseIRC(line string) ircMessage {
	msg := ircMessage{tags: map[string]string{}}
	line = strings.TrimRight(line, "\r\n")

	if strings.HasPrefix(line, "@") {
		cut := strings.IndexByte(line, ' ')
		if cut < 0 {
			return msg
		}
		for _, tag := range strings.Split(line[1:cut], ";") {
			if k, v, ok := strings.Cut(tag, "="); ok {
				msg.tags[k] = unescapeTag(v)
			} else {
				msg.tags[tag] = ""
			}
		}
		line = line[cut+1:]
	}
	if strings.HasPrefix(line, ":") {
		cut := strings.IndexByte(line, ' ')
		if cut < 0 {
			return msg
		}
		msg.prefix = line[1:cut]
		line = line[cut+1:]
	}
	if body, trailing, ok := strings.Cut(line, " :"); ok {
		msg.text = trailing
		line = body
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return msg
	}
	msg.command = fields[0]
	msg.params = fields[1:]
	return msg
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(v string) string {
	r := strings.NewReplacer(`\:`, ";", `\s`, " ", `\\`, `\`, `\r`, "\r", `\n`, "\n")
	return r.Replace(v)
}

// sender extracts the login name from an IRC prefix (nick!user@host).
func (m ircMessage) sender() string {
	if cut := strings.IndexByte(m.prefix, '!'); cut > 0 {
		return m.prefix[:cut]
	}
	return m.prefix
}

// classifyRole derives the sender's role from badge and membership tags.
// Ordered precedence: broadcaster/moderator > VIP > subscriber > first-time
// chatter > plain viewer.
func classifyRole(tags map[string]string) string {
	badges := tags["badges"]
	switch {
	case strings.Contains(badges, "broadcaster/"):
		return RoleBroadcaster
	case tags["mod"] == "1" || strings.Contains(badges, "moderator/"):
		return RoleModerator
	case tags["vip"] == "1" || strings.Contains(badges, "vip/"):
		return RoleVIP
	case tags["subscriber"] == "1" || strings.Contains(badges, "subscriber/") || strings.Contains(badges, "founder/"):
		return RoleSubscriber
	case tags["first-msg"] == "1":
		return RoleFirstTime
	default:
		return RoleViewer
	}
}
