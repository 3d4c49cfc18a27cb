package dispatcher

import (
	"strings"

	"linkrelay/internal/domain"
)

// Host markers in precedence order. YouTube is checked first, so a text
// carrying both kinds of link is treated as YouTube.
var (
	youtubeMarkers   = []string{"youtube.com", "youtu.be"}
	instagramMarkers = []string{"instagram.com"}
)

// Classify maps text to the platform of the link it contains.
func Classify(text string) domain.SourceKind {
	switch {
	case containsAny(text, youtubeMarkers):
		return domain.SourceYouTube
	case containsAny(text, instagramMarkers):
		return domain.SourceInstagram
	default:
		return domain.SourceUnrecognized
	}
}

// ExtractLink returns the first whitespace-separated token of text that
// carries a marker for kind. Without such a token the trimmed text is
// returned as is.
func ExtractLink(text string, kind domain.SourceKind) string {
	var markers []string
	switch kind {
	case domain.SourceYouTube:
		markers = youtubeMarkers
	case domain.SourceInstagram:
		markers = instagramMarkers
	default:
		return strings.TrimSpace(text)
	}
	for _, field := range strings.Fields(text) {
		if containsAny(field, markers) {
			return field
		}
	}
	return strings.TrimSpace(text)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
