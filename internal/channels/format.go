package channels

import (
	"regexp"
	"strings"
)

// Channel is the logical channel a session/response is bound to.
type Channel string

const (
	ChannelUI        Channel = "ui"
	ChannelTelegram  Channel = "telegram"
	ChannelDiscord   Channel = "discord"
	ChannelHeartbeat Channel = "heartbeat"
)

// SplitThreshold is the per-channel chunk size used when splitting a
// response for delivery.
var SplitThreshold = map[Channel]int{
	ChannelUI:       48,
	ChannelTelegram: 4000,
	ChannelDiscord:  1900,
}

// aliasMap maps known source identifiers to a canonical Channel.
var aliasMap = map[string]Channel{
	"web":          ChannelUI,
	"frontend":     ChannelUI,
	"chat":         ChannelUI,
	"telegram_bot": ChannelTelegram,
	"discord_bot":  ChannelDiscord,
	"task":         ChannelHeartbeat,
}

// ResolveChannel maps a raw channel identifier to a canonical Channel,
// falling back to inferring it from the session_id prefix and finally to
// "ui" when nothing matches.
func ResolveChannel(raw, sessionID string) Channel {
	if c, ok := aliasMap[raw]; ok {
		return c
	}
	switch Channel(raw) {
	case ChannelUI, ChannelTelegram, ChannelDiscord, ChannelHeartbeat:
		return Channel(raw)
	}
	switch {
	case strings.HasPrefix(sessionID, "telegram_"):
		return ChannelTelegram
	case strings.HasPrefix(sessionID, "discord_"):
		return ChannelDiscord
	case strings.HasPrefix(sessionID, "task_"):
		return ChannelHeartbeat
	case strings.HasPrefix(sessionID, "sub-"):
		return ChannelHeartbeat
	default:
		return ChannelUI
	}
}

var (
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	angleURLRe  = regexp.MustCompile(`<(https?://[^>\s]+)>`)
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	blockquoteRe = regexp.MustCompile(`(?m)^>\s?`)
	boldRe      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	codeFenceRe = regexp.MustCompile("(?m)^```[a-zA-Z0-9]*\\n|```")
	listBulletRe = regexp.MustCompile(`(?m)^(\s*)[*+]\s+`)
)

// Sanitize normalizes a response for delivery: CRLF/CR collapse to LF,
// [text](url) unwraps to "text (url)", and angle-bracketed bare URLs lose
// their brackets.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = mdLinkRe.ReplaceAllString(text, "$1 ($2)")
	text = angleURLRe.ReplaceAllString(text, "$1")
	return text
}

// FlattenMarkdown strips markdown structure that Telegram's plain delivery
// mode cannot render: headings, blockquote markers, bold emphasis, and code
// fences, normalizing list bullets to "- ".
func FlattenMarkdown(text string) string {
	text = headingRe.ReplaceAllString(text, "")
	text = blockquoteRe.ReplaceAllString(text, "")
	text = boldRe.ReplaceAllString(text, "$1")
	text = codeFenceRe.ReplaceAllString(text, "")
	text = listBulletRe.ReplaceAllString(text, "$1- ")
	return text
}

// Format renders text for delivery on ch: sanitize always, and flatten
// markdown additionally for Telegram.
func Format(text string, ch Channel) string {
	text = Sanitize(text)
	if ch == ChannelTelegram {
		text = FlattenMarkdown(text)
	}
	return text
}

// Split breaks a formatted response into channel-sized chunks using the
// channel's configured threshold, preferring newline boundaries, then
// whitespace, else a hard break (delegating to MessageChunker).
func Split(text string, ch Channel) []string {
	max, ok := SplitThreshold[ch]
	if !ok || max <= 0 {
		max = 4000
	}
	return NewMessageChunker(max).Chunk(text)
}
