package hub

import "strings"

const bannerGuidelines = `

GUIDELINES:
- Stay focused on the topic above
- When the topic is fully understood and resolved, naturally conclude the conversation
- Either party can end by saying the discussion is complete
- Idle conversations will auto-disconnect when the idle timeout elapses
`

// IntentBanner formats the conversation intent as a visible banner shown to
// both parties. Guidelines are included on first contact only.
func IntentBanner(intent string, includeGuidelines bool) string {
	if intent == "" {
		return ""
	}

	border := strings.Repeat("=", 60)
	banner := "\n" + border + "\nCONVERSATION FOCUS: " + intent + "\n" + border
	if includeGuidelines {
		banner += bannerGuidelines
	}
	return banner
}
