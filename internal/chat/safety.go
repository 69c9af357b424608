package chat

import (
	"regexp"
	"strings"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// harmfulPatterns flag requests that get the safety note appended to the
// system prompt. Matching is on lower-cased text.
var harmfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`steal\s+(passwords|credentials|cookies)`),
	regexp.MustCompile(`phish(ing)?\b`),
	regexp.MustCompile(`\bransomware\b`),
	regexp.MustCompile(`\bmalware\b`),
	regexp.MustCompile(`bypass\s+(av|antivirus|edr)`),
	regexp.MustCompile(`\bkeylogger\b`),
	regexp.MustCompile(`\bcredential\s+stuffing\b`),
	regexp.MustCompile(`\bexploit\s+chain\b`),
	regexp.MustCompile(`\breverse\s+shell\b`),
}

// SafetyNote is appended to the system prompt for flagged requests.
const SafetyNote = "\nSafety note: The user request appears potentially harmful. Refuse any instructions/code enabling wrongdoing.\n" +
	"Offer high-level explanation, detection, mitigation, and safe lab guidance only."

// NeedsSafetyNote reports whether text matches a harmful request pattern.
func NeedsSafetyNote(text string) bool {
	t := strings.ToLower(text)
	for _, p := range harmfulPatterns {
		if p.MatchString(t) {
			return true
		}
	}
	return false
}

// withSafetyNote appends SafetyNote to the system prompt when the latest user
// message is flagged. Without a system prompt the note becomes one.
func withSafetyNote(messages []types.Message) []types.Message {
	if !NeedsSafetyNote(latestUserText(messages)) {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		messages[0].Content += SafetyNote
		return messages
	}
	note := types.NewTextMessage(types.RoleSystem, strings.TrimPrefix(SafetyNote, "\n"))
	return append([]types.Message{note}, messages...)
}
