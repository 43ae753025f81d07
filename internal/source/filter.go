package source

import (
	"regexp"
	"strings"
)

// iconTokens are glyph names and control labels that leak out of meeting UI
// chrome as text content. A candidate whose text is dominated by these is
// chrome, not captions.
var iconTokens = map[string]struct{}{
	"mic":            {},
	"mic_off":        {},
	"videocam":       {},
	"videocam_off":   {},
	"present_to_all": {},
	"more_vert":      {},
	"more_horiz":     {},
	"call_end":       {},
	"chat":           {},
	"closed_caption": {},
	"front_hand":     {},
	"mood":           {},
	"fullscreen":     {},
	"volume_up":      {},
	"settings":       {},
}

// instructionPhrases mark navigational UI copy rather than speech.
var instructionPhrases = []string{
	"turn on captions",
	"turn off captions",
	"click to",
	"tap to",
	"press ctrl",
	"press cmd",
	"join now",
	"ask to join",
	"leave call",
	"is presenting",
	"meeting details",
	"people in this call",
	"you're the only one here",
}

var (
	// 12:04, 3:15 PM, 01:02:33
	timestampPattern = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?\s*([ap]m)?$`)
	// abc-defg-hij meeting codes
	meetingIDPattern = regexp.MustCompile(`\b[a-z]{3}-[a-z]{4}-[a-z]{3}\b`)
)

// maxIconWordLength: text composed entirely of words at or below this rune
// length is a run of icon glyphs, not speech.
const maxIconWordLength = 2

// IsCaptionShaped reports whether text plausibly is live caption content.
// The filter is shared by all discovery strategies so they agree on what a
// caption looks like.
func IsCaptionShaped(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lowered := strings.ToLower(trimmed)

	if timestampPattern.MatchString(lowered) {
		return false
	}
	if meetingIDPattern.MatchString(lowered) {
		return false
	}
	for _, phrase := range instructionPhrases {
		if strings.Contains(lowered, phrase) {
			return false
		}
	}

	words := strings.Fields(lowered)
	var iconCount int
	for _, word := range words {
		if _, ok := iconTokens[strings.Trim(word, ".,!?")]; ok {
			iconCount++
		}
	}
	if iconCount*2 >= len(words) {
		return false
	}

	if len(words) >= 2 {
		allShort := true
		for _, word := range words {
			if len([]rune(word)) > maxIconWordLength {
				allShort = false
				break
			}
		}
		if allShort {
			return false
		}
	}

	return true
}
